package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	logColors = map[string]struct{}{
		"": {}, "black": {}, "red": {}, "green": {}, "yellow": {},
		"blue": {}, "magenta": {}, "cyan": {}, "white": {},
	}
)

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		_ = v.RegisterValidation("logcolor", func(fl validator.FieldLevel) bool {
			_, ok := logColors[fl.Field().String()]
			return ok
		})

		validateInst = v
	})
	return validateInst
}

// Validate performs struct-tag and cross-field validation of the configuration.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("configuration is nil")
	}

	if err := validatorInstance().Struct(c); err != nil {
		return convertValidationError(err)
	}

	if !strings.Contains(c.Selectors.ProviderItem, "%s") {
		return errors.New("selectors.provider_item must contain a %s placeholder for the provider name")
	}
	for i, tmpl := range c.Selectors.PermissionToggles {
		if !strings.Contains(tmpl, "%s") {
			return fmt.Errorf("selectors.permission_toggles[%d] must contain a %%s placeholder for the label", i)
		}
	}
	if len(c.Selectors.AffirmativeMarkers) > 0 && len(c.Selectors.NegativeMarkers) > 0 {
		for _, a := range c.Selectors.AffirmativeMarkers {
			for _, n := range c.Selectors.NegativeMarkers {
				if strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(n)) {
					return fmt.Errorf("status marker %q is both affirmative and negative", a)
				}
			}
		}
	}
	if c.Credentials.Present() && (c.Selectors.LoginUsername == "" || c.Selectors.LoginPassword == "" || c.Selectors.LoginSubmit == "") {
		return errors.New("credentials are set but the login selectors are incomplete")
	}
	return nil
}

func convertValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeFieldError(fe))
	}
	sort.Strings(msgs)
	return errors.New(strings.Join(msgs, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	// Namespace is "Config.Engine.ActionAttempts"; drop the root type.
	field := fe.Namespace()
	if idx := strings.Index(field, "."); idx >= 0 {
		field = field[idx+1:]
	}

	switch fe.Tag() {
	case "required", "required_with":
		return fmt.Sprintf("%s is required", field)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "logcolor":
		return fmt.Sprintf("%s: unknown color %q", field, fe.Value())
	case "gte", "gt", "lte", "min":
		return fmt.Sprintf("%s fails %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
	}
}
