package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators registers server-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("database_url", validateDatabaseURL); err != nil {
		return fmt.Errorf("failed to register database_url validator: %w", err)
	}
	if err := v.RegisterValidation("duration", validateDuration); err != nil {
		return fmt.Errorf("failed to register duration validator: %w", err)
	}
	return nil
}

// validateDatabaseURL accepts postgres://, postgresql:// and sqlite:// URLs.
func validateDatabaseURL(fl validator.FieldLevel) bool {
	raw := fl.Field().String()
	// sqlite://:memory: is not a parseable URL, so SQLite is checked by prefix.
	if rest, ok := strings.CutPrefix(raw, "sqlite://"); ok {
		return rest != ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "postgres", "postgresql":
		return u.Host != ""
	default:
		return false
	}
}

// validateDuration accepts anything ParseDuration accepts.
func validateDuration(fl validator.FieldLevel) bool {
	_, err := ParseDuration(fl.Field().String())
	return err == nil
}

// Validate validates the Config using struct tags and custom cross-field rules.
// Returns an error if validation fails, with actionable error messages.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateProductionSecrets(); err != nil {
		return err
	}

	if err := c.validateTierNames(); err != nil {
		return err
	}

	return nil
}

// validateProductionSecrets requires AUTH_SECRET in production.
func (c *Config) validateProductionSecrets() error {
	if c.IsProduction() && c.Auth.Secret == "" {
		return errors.New("auth.secret (AUTH_SECRET) is required in production")
	}
	return nil
}

// validateTierNames ensures tier names are unique, since they namespace bucket keys.
func (c *Config) validateTierNames() error {
	seen := make(map[string]struct{}, len(c.RateLimit.Tiers))
	for i, tier := range c.RateLimit.Tiers {
		if _, dup := seen[tier.Name]; dup {
			return fmt.Errorf("rate_limit.tiers[%d]: duplicate tier name: %s", i, tier.Name)
		}
		seen[tier.Name] = struct{}{}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, e.Param())
	case "gtefield":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "database_url":
		return fmt.Sprintf("%s must be a postgres://, postgresql:// or sqlite:// URL", field)
	case "duration":
		return fmt.Sprintf("%s must be a duration such as \"30s\" or \"1 minute\"", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
