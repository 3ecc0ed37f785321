package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// formatValidationErrors превращает ошибки validator в карту поле → сообщение.
func formatValidationErrors(err error) map[string]string {
	fields := make(map[string]string)

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return fields
	}
	for _, e := range ve {
		_, field, ok := strings.Cut(e.Namespace(), ".")
		if !ok {
			field = e.Field()
		}
		fields[field] = formatFieldError(e)
	}
	return fields
}

func formatFieldError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "max":
		return fmt.Sprintf("Maximum length is %s", e.Param())
	case "gte":
		return fmt.Sprintf("Must be greater than or equal to %s", e.Param())
	default:
		return fmt.Sprintf("Validation failed on '%s'", e.Tag())
	}
}

// decodeAndValidate читает JSON-тело в T и проверяет его. При ошибке ответ уже записан.
func decodeAndValidate[T any](w http.ResponseWriter, r *http.Request) (*T, bool) {
	var req T

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return nil, false
	}

	if err := validate.Struct(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:  "Validation failed",
			Fields: formatValidationErrors(err),
		})
		return nil, false
	}
	return &req, true
}
