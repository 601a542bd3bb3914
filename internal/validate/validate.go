package validate

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Leganyst/court-booking/internal/calendar"
	"github.com/Leganyst/court-booking/internal/model"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	// В сообщениях используем json-имена полей
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	registerCustomValidations()
}

func registerCustomValidations() {
	// YYYY-MM-DD
	_ = validate.RegisterValidation("date", func(fl validator.FieldLevel) bool {
		_, err := calendar.ParseDate(fl.Field().String())
		return err == nil
	})

	_ = validate.RegisterValidation("payment_method", func(fl validator.FieldLevel) bool {
		switch model.PaymentMethod(fl.Field().String()) {
		case model.PaymentMethodCash, model.PaymentMethodCard, model.PaymentMethodTransfer, model.PaymentMethodQR:
			return true
		}
		return false
	})

	_ = validate.RegisterValidation("payment_mode", func(fl validator.FieldLevel) bool {
		switch model.PaymentMode(fl.Field().String()) {
		case model.PaymentModeBulk, model.PaymentModePerSession:
			return true
		}
		return false
	})
}

// Struct проверяет структуру и возвращает все нарушения в стабильном порядке.
func Struct(s any) []string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}

	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fieldMessage(fe))
	}
	sort.Strings(out)
	return out
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + ": is required"
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s: must contain at least %s item(s)", field, fe.Param())
		}
		return fmt.Sprintf("%s: must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s: must be at most %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s: must be at least %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s: must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s: must be one of %s", field, fe.Param())
	case "date":
		return field + ": must be a date in YYYY-MM-DD format"
	case "payment_method":
		return field + ": must be cash, card, transfer or qr"
	case "payment_mode":
		return field + ": must be bulk or per_session"
	default:
		return field + ": invalid value"
	}
}
