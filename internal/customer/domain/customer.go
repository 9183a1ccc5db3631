package domain

import (
	"errors"
	"strings"
	"time"
)

// Customer represents the purchasing account that subscriptions belong to.
type Customer struct {
	ID        string
	Email     string
	Name      string
	Company   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate validates the customer for persistence. Returns an error describing
// the first validation failure.
func (c *Customer) Validate() error {
	if c.Email == "" {
		return errors.New("email is required")
	}
	if !strings.Contains(c.Email, "@") {
		return errors.New("email is malformed")
	}
	if c.Name == "" {
		return errors.New("name is required")
	}
	return nil
}
