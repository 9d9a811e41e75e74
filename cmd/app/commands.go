package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/injector"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/pkg"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/infrastructures"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/pkg/sqlimpact"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var cfg *infrastructures.AppConfig

	cmd := &cobra.Command{
		Use:           "change-engine",
		Short:         "Change request lifecycle and approval engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := infrastructures.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			infrastructures.NewLogger(parsed)
			cfg = parsed
			return nil
		},
	}

	cmd.AddCommand(
		newServeCmd(func() *infrastructures.AppConfig { return cfg }),
		newMigrateCmd(func() *infrastructures.AppConfig { return cfg }),
		newAnalyzeCmd(func() *infrastructures.AppConfig { return cfg }),
	)
	return cmd
}

func newServeCmd(config func() *infrastructures.AppConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config()
			logger := infrastructures.GetLogger()

			app, err := injector.InitializeApplication(cfg)
			if err != nil {
				return fmt.Errorf("initialize application: %w", err)
			}

			router := fiber.New(fiber.Config{
				AppName:      cfg.AppName,
				ReadTimeout:  time.Second * 60,
				WriteTimeout: cfg.DispatchTimeout + time.Second*30,
				IdleTimeout:  time.Second * 60,
				ErrorHandler: pkg.ErrorHandler,
			})

			router.Use(cors.New(cors.Config{
				AllowOrigins:  cfg.CORSOrigins,
				AllowHeaders:  "Origin, Content-Type, Accept, X-Actor-ID, X-Actor-Role",
				AllowMethods:  "GET, POST, PATCH, OPTIONS",
				ExposeHeaders: "Content-Length, X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset",
				MaxAge:        300,
			}))

			app.RegisterRoutes(router)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.WithField("addr", cfg.HTTPAddr).Info("http server listening")
				errCh <- router.Listen(cfg.HTTPAddr)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.DispatchTimeout+5*time.Second)
			defer cancel()
			return router.ShutdownWithContext(shutdownCtx)
		},
	}
}

func newMigrateCmd(config func() *infrastructures.AppConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			db := infrastructures.NewDatabase(config())
			if err := infrastructures.Migrate(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			infrastructures.GetLogger().Info("schema is up to date")
			return nil
		},
	}
}

func newAnalyzeCmd(config func() *infrastructures.AppConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <file|->",
		Short: "Print the impact verdict of a SQL statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			statement, err := readStatement(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			cfg := config()
			analyzer := sqlimpact.New(sqlimpact.Options{
				DefaultTableRows: cfg.AnalyzerTableRows,
				TableRows:        cfg.AnalyzerTableHints,
			})
			verdict, err := analyzer.Analyze(statement)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(verdict)
		},
	}
}

func readStatement(stdin io.Reader, arg string) (string, error) {
	var (
		raw []byte
		err error
	)
	if arg == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(arg)
	}
	if err != nil {
		return "", fmt.Errorf("read statement: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}
