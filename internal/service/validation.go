package service

import (
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/pkg/errors"

	"tutor-tasks/internal/model"
)

var (
	validate   *validator.Validate
	translator ut.Translator

	metricKeyTag  = "metric_key"
	metricKeyText = "{0} must be one of exercises_submitted, levels_completed, hours_spent"

	errInvalidInput = errors.New("invalid input")
)

func init() {
	english := en.New()
	translator, _ = ut.New(english, english).GetTranslator("en")

	validate = validator.New()
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation(metricKeyTag, func(fl validator.FieldLevel) bool {
		return model.MetricKey(fl.Field().String()).Valid()
	})
	_ = validate.RegisterTranslation(
		metricKeyTag, translator,
		func(t ut.Translator) error { return t.Add(metricKeyTag, metricKeyText, false) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(metricKeyTag, fe.Field())
			return s
		},
	)
}

// validateStruct runs struct tags and converts failures into a ValidationError.
func validateStruct(input interface{}) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return NewValidationError(err)
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: fieldPath(fe), Error: fe.Translate(translator)})
	}
	return NewValidationError(errInvalidInput, fields...)
}

// fieldPath drops the root struct name: "TemplateInput.target.hours_spent" -> "target.hours_spent".
func fieldPath(fe validator.FieldError) string {
	parts := strings.SplitN(fe.Namespace(), ".", 2)
	if len(parts) == 2 {
		return parts[1]
	}
	return fe.Field()
}
