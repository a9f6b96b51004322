// Package schema validates event payloads against their declared constraints
// before they are published.
package schema

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validator checks event structs against their `validate` tags.
type Validator struct {
	validate *validator.Validate
}

// New creates a Validator.
func New() *Validator {
	return &Validator{validate: validator.New()}
}

// Validate returns a descriptive error when the event violates its tags.
func (v *Validator) Validate(event any) error {
	if err := v.validate.Struct(event); err != nil {
		return fmt.Errorf("event schema: %w", err)
	}
	return nil
}
