package booking

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidationError reports every violated field, not just the first, so the
// client can correct the whole form in one pass.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// ValidateBookingRequest checks the submit payload against its struct tags
// and collects all violations into one ValidationError.
func ValidateBookingRequest(req BookingRequest) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fieldName(fe)] = fieldMessage(fe)
	}
	return &ValidationError{Fields: fields}
}

func fieldName(fe validator.FieldError) string {
	// Namespace looks like BookingRequest.Details.Name; drop the root.
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return strings.ToLower(ns[i+1:])
	}
	return strings.ToLower(fe.Field())
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "min":
		if fe.Kind().String() == "int" {
			return fmt.Sprintf("must be at least %s", fe.Param())
		}
		return fmt.Sprintf("minimum length is %s", fe.Param())
	case "max":
		if fe.Kind().String() == "int" {
			return fmt.Sprintf("must be at most %s", fe.Param())
		}
		return fmt.Sprintf("maximum length is %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("invalid value for %s", strings.ToLower(fe.Field()))
	}
}
