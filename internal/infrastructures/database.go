package infrastructures

import (
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/models"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func NewDatabase(cfg *AppConfig) *gorm.DB {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		logrus.Fatalf("failed to connect database: %v", err)
	}
	return db
}

// Migrate creates or updates the engine tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.ChangeRequest{},
		&models.ApprovalDecision{},
		&models.AuditEvent{},
	)
}
