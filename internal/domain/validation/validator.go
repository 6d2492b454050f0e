package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// inputFieldRoot is the details key used when the input as a whole is wrong.
const inputFieldRoot = "input"

// InputValidator decodes RPC inputs and validates them with `validate`
// struct tags. Unknown keys are dropped. Field errors are keyed by JSON
// field name.
type InputValidator struct {
	validate *validator.Validate
}

// NewInputValidator creates a new InputValidator.
func NewInputValidator() *InputValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return &InputValidator{validate: v}
}

var defaultInputValidator = NewInputValidator()

// DecodeInput decodes raw into a T using the default InputValidator.
func DecodeInput[T any](raw json.RawMessage) (T, error) {
	var dst T
	err := defaultInputValidator.Decode(raw, &dst)
	return dst, err
}

// Decode unmarshals raw into dst, ignoring unknown fields, then validates
// dst. Missing or null input decodes as an empty object so that required
// fields are reported individually. Returns a *ValidationError on failure.
func (v *InputValidator) Decode(raw json.RawMessage, dst any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if err := dec.Decode(dst); err != nil {
		return decodeError(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return NewValidationError("Invalid input", FieldErrors{inputFieldRoot: "unexpected data after input"})
	}

	return v.Struct(dst)
}

// Struct validates an already decoded value.
func (v *InputValidator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return NewValidationError("Invalid input", FieldErrors{inputFieldRoot: "invalid input"})
	}
	fields := make(FieldErrors, len(verrs))
	for _, fe := range verrs {
		fields[fieldPath(fe)] = fieldMessage(fe)
	}
	return NewValidationError("Invalid input", fields)
}

// decodeError converts encoding/json errors into a ValidationError.
func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = inputFieldRoot
		}
		return NewValidationError("Invalid input", FieldErrors{
			field: fmt.Sprintf("Expected %s, received %s", jsonTypeName(typeErr.Type), typeErr.Value),
		})
	}

	return NewValidationError("Invalid input", FieldErrors{inputFieldRoot: "malformed JSON"})
}

// fieldPath strips the top-level struct name from a validator namespace,
// e.g. "createTodoInput.title" becomes "title".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

// fieldMessage creates a client-facing message for a single field error.
func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Required"
	case "min":
		return fmt.Sprintf("Must contain at least %s character(s)", fe.Param())
	case "max":
		return fmt.Sprintf("Must contain at most %s character(s)", fe.Param())
	case "email":
		return "Invalid email"
	case "oneof":
		return fmt.Sprintf("Must be one of: %s", fe.Param())
	default:
		return fmt.Sprintf("Failed validation: %s", fe.Tag())
	}
}

// jsonTypeName names a Go type the way a JSON client thinks of it.
func jsonTypeName(t reflect.Type) string {
	if t == nil {
		return "value"
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Slice, reflect.Array:
		return "array"
	default:
		return "object"
	}
}
