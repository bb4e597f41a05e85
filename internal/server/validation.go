package server

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/staybook/internal/financial"
)

var registerValidatorsOnce sync.Once

// registerValidators teaches gin's validator the domain tags and makes it
// report JSON field names.
func registerValidators() {
	registerValidatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "" {
				name = strings.SplitN(field.Tag.Get("form"), ",", 2)[0]
			}
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("payment_method", func(fl validator.FieldLevel) bool {
			_, err := financial.ParsePaymentMethod(fl.Field().String())
			return err == nil
		})
	})
}

// bindingErrors converts validator failures into the API's field errors.
// It returns nil when err is not a validation failure, e.g. malformed JSON.
func bindingErrors(err error) []ValidationError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, ValidationError{
			Field:   fe.Field(),
			Code:    bindingCode(fe),
			Message: bindingMessage(fe),
		})
	}
	return out
}

func bindingCode(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	default:
		return "invalid_" + fe.Field()
	}
}

func bindingMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "payment_method":
		return "payment_method must be cash or transfer"
	default:
		return "invalid value"
	}
}

// bindError maps a ShouldBind failure onto the error middleware.
func bindError(err error) error {
	if fields := bindingErrors(err); len(fields) > 0 {
		return &ValidationErrors{Errors: fields}
	}
	return invalidRequestError()
}
