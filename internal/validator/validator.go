package validator

import (
	"errors"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/id"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	id_translations "github.com/go-playground/validator/v10/translations/id"
)

// Indonesian is the default; clients sending Accept-Language: en get English.
var (
	uni     *ut.UniversalTranslator
	transID ut.Translator
	transEN ut.Translator
)

// customMessages are the translations of the project's own tags.
var customMessages = map[string]map[string]string{
	"notblank": {
		"id": "{0} tidak boleh kosong",
		"en": "{0} must not be blank",
	},
}

// Setup registers the validator with Indonesian and English translations on
// Gin's binding engine. Call once during application startup.
func Setup() {
	v, ok := binding.Validator.Engine().(*govalidator.Validate)
	if !ok {
		return
	}

	// Error maps are keyed by the JSON field name.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("notblank", notBlank)

	uni = ut.New(id.New(), id.New(), en.New())
	transID, _ = uni.GetTranslator("id")
	transEN, _ = uni.GetTranslator("en")
	_ = id_translations.RegisterDefaultTranslations(v, transID)
	_ = en_translations.RegisterDefaultTranslations(v, transEN)

	for tag, msgs := range customMessages {
		for locale, msg := range msgs {
			trans := transID
			if locale == "en" {
				trans = transEN
			}
			_ = v.RegisterTranslation(tag, trans,
				func(ut ut.Translator) error { return ut.Add(tag, msg, true) },
				func(ut ut.Translator, fe govalidator.FieldError) string {
					t, _ := ut.T(fe.Tag(), fe.Field())
					return t
				},
			)
		}
	}
}

// notBlank rejects strings made only of whitespace.
func notBlank(fl govalidator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return true
	}
	return strings.TrimSpace(fl.Field().String()) != ""
}

// TranslateErrors maps a binding error to field name -> message. Errors
// that are not validation errors (malformed JSON) come back under "detail".
func TranslateErrors(err error) map[string]string {
	return translate(err, transID)
}

func translate(err error, trans ut.Translator) map[string]string {
	fields := make(map[string]string)

	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) && trans != nil {
		for _, fe := range ve {
			fields[fe.Field()] = fe.Translate(trans)
		}
		return fields
	}

	fields["detail"] = err.Error()
	return fields
}

// translatorFor picks the translator from the request's Accept-Language.
func translatorFor(c *gin.Context) ut.Translator {
	if strings.HasPrefix(strings.ToLower(c.GetHeader("Accept-Language")), "en") {
		return transEN
	}
	return transID
}

// Bind binds and validates the JSON body into dst.
// Returns nil on success or a translated field error map on failure.
func Bind(c *gin.Context, dst interface{}) map[string]string {
	if err := c.ShouldBindJSON(dst); err != nil {
		return translate(err, translatorFor(c))
	}
	return nil
}

// BindQuery binds and validates query parameters into dst.
func BindQuery(c *gin.Context, dst interface{}) map[string]string {
	if err := c.ShouldBindQuery(dst); err != nil {
		return translate(err, translatorFor(c))
	}
	return nil
}
