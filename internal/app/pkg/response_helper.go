package pkg

import (
	"errors"
	"reflect"

	"github.com/gofiber/fiber/v2"
	appError "github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/errors"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/models"
	"github.com/sirupsen/logrus"
)

func SuccessResponse[T any](c *fiber.Ctx, data T) error {
	return c.JSON(models.WebResponse[T]{
		Success: true,
		Data:    data,
	})
}

// CreatedResponse is SuccessResponse with 201 Created.
func CreatedResponse[T any](c *fiber.Ctx, data T) error {
	c.Status(fiber.StatusCreated)
	return SuccessResponse(c, data)
}

func ErrorResponse(c *fiber.Ctx, err error) error {
	var appErr *appError.AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.StatusCode).JSON(models.WebResponse[any]{
			Success: false,
			Message: appErr.Message,
			Code:    string(appErr.Code),
			Reasons: appErr.Reasons,
		})
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(models.WebResponse[any]{
			Success: false,
			Message: fiberErr.Message,
			Code:    string(appError.CodeBadRequest),
		})
	}

	logrus.Errorf("[%s] %s", reflect.TypeOf(err).String(), err)

	return c.Status(fiber.StatusInternalServerError).JSON(models.WebResponse[any]{
		Success: false,
		Message: "Internal Server Error",
		Code:    string(appError.CodeInternal),
	})
}

// ErrorHandler is the fiber.Config error handler; it renders errors that
// escape handlers, such as unknown routes, in the same envelope.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) && fiberErr.Code == fiber.StatusNotFound {
		return ErrorResponse(c, appError.NewNotFoundError(fiberErr.Message))
	}
	return ErrorResponse(c, err)
}
