package guildconfig

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"guildwarden/internal/utils"
)

var hexColorRegex = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every field that failed validation. Nothing is
// persisted when it is returned.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Field+" "+fe.Message)
	}
	return "invalid config: " + strings.Join(parts, "; ")
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator with the snowflake and hexrgb tags
// registered. Field names are reported by their JSON key.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("snowflake", func(fl validator.FieldLevel) bool {
			return utils.IsSnowflake(fl.Field().String())
		})
		_ = v.RegisterValidation("hexrgb", func(fl validator.FieldLevel) bool {
			return hexColorRegex.MatchString(fl.Field().String())
		})
		validate = v
	})
	return validate
}

// ValidateSection checks partial against the named section's schema, as if it
// were applied on top of the defaults.
func ValidateSection(name string, partial map[string]any) error {
	sec, err := lookupSection(name)
	if err != nil {
		return err
	}
	defaults, err := toDocument(Defaults())
	if err != nil {
		return err
	}
	_, err = sec.apply(defaults, partial)
	return err
}

// apply merges partial into the section of doc and validates the result.
// The returned document is a copy; doc is left untouched.
func (s section) apply(doc map[string]any, partial map[string]any) (map[string]any, error) {
	if err := rejectNulls(s.name, partial); err != nil {
		return nil, err
	}
	cfg := Defaults()
	if err := decodeStrict(s.name, partial, s.target(&cfg)); err != nil {
		return nil, err
	}

	merged := Merge(s.extract(doc), partial)

	cfg = Defaults()
	target := s.target(&cfg)
	if err := decodeStrict(s.name, merged, target); err != nil {
		return nil, err
	}
	if err := Validator().Struct(target); err != nil {
		return nil, toValidationError(s.name, err)
	}

	out := Merge(doc, nil)
	s.put(out, merged)
	return out, nil
}

func toValidationError(sectionName string, err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	out := &ValidationError{Errors: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		field := fe.Namespace()
		if idx := strings.Index(field, "."); idx >= 0 {
			field = field[idx+1:]
		}
		out.Errors = append(out.Errors, FieldError{
			Field:   joinField(sectionName, field),
			Message: describe(fe),
		})
	}
	return out
}

func describe(fe validator.FieldError) string {
	sized := fe.Kind() == reflect.Slice || fe.Kind() == reflect.String
	unit := "characters"
	if fe.Kind() == reflect.Slice {
		unit = "items"
	}

	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if sized {
			return fmt.Sprintf("must have at least %s %s", fe.Param(), unit)
		}
		return "must be at least " + fe.Param()
	case "max":
		if sized {
			return fmt.Sprintf("must have at most %s %s", fe.Param(), unit)
		}
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "gtefield":
		return "must not be lower than the minimum"
	case "snowflake":
		return "must be a Discord ID (17-19 digits)"
	case "hexrgb":
		return "must be a hex colour like #5865F2"
	case "timezone":
		return "must be an IANA timezone such as Europe/Paris"
	case "fqdn":
		return "must be a domain name such as youtube.com"
	default:
		return "is invalid"
	}
}

// ValidateStruct runs the shared validator over any tagged struct and
// returns a *ValidationError keyed by JSON field names.
func ValidateStruct(value any) error {
	if err := Validator().Struct(value); err != nil {
		return toValidationError("", err)
	}
	return nil
}
