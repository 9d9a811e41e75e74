package pkg

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/errors"
)

// ParseID reads a uuid route parameter.
func ParseID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	raw := c.Params(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.NewBadRequestError("Invalid " + name + ": " + raw)
	}
	return id, nil
}

// ParseBody decodes a JSON body into dst.
func ParseBody(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return errors.NewBadRequestError("Invalid request body")
	}
	return nil
}

// ParseQuery decodes query parameters into dst.
func ParseQuery(c *fiber.Ctx, dst any) error {
	if err := c.QueryParser(dst); err != nil {
		return errors.NewBadRequestError("Invalid query parameters")
	}
	return nil
}
