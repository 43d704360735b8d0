package crm

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/clinic/backend/internal/domain/shared"
	"github.com/go-playground/validator/v10"
)

var requestValidator = newRequestValidator()

// newRequestValidator reports fields by their json names, the names callers
// actually send
func newRequestValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateRequest checks the struct tags of a request. Only the first failing
// field is reported.
func validateRequest(req any) error {
	err := requestValidator.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return shared.NewValidationError(err.Error())
	}
	fe := fieldErrs[0]
	return shared.NewValidationError(fmt.Sprintf("%s %s", fe.Field(), describeRule(fe)))
}

func describeRule(fe validator.FieldError) string {
	unit := ""
	if fe.Kind() == reflect.String {
		unit = " characters"
	}
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "needs at least " + fe.Param() + unit
	case "max":
		return "allows at most " + fe.Param() + unit
	case "len":
		return "must be exactly " + fe.Param() + unit
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "alphanum":
		return "takes letters and digits only"
	default:
		return "fails the " + fe.Tag() + " rule"
	}
}
