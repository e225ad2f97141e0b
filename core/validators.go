package core

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

const requiredText = "this field is required"

var alphaNumUnderRegex = regexp.MustCompile(`^[\w\s]+$`)

// customValidations are the tags shared by all packages.
var customValidations = []struct {
	tag  string
	text string
	fn   validator.Func
}{
	{
		tag:  "alphanum_",
		text: "only alphanumeric characters and underscores are allowed",
		fn:   func(fl validator.FieldLevel) bool { return alphaNumUnderRegex.MatchString(fl.Field().String()) },
	},
	{
		// a reason or a title made of whitespace only
		tag:  "nonblank",
		text: "this field cannot be blank",
		fn:   func(fl validator.FieldLevel) bool { return strings.TrimSpace(fl.Field().String()) != "" },
	},
}

// NewTranslator returns the english translator used for validation messages.
func NewTranslator() ut.Translator {
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	return translator
}

// InitValidators registers the default english messages, the JSON field names and the custom tags.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	validate.RegisterTagNameFunc(jsonFieldName)

	for _, cv := range customValidations {
		_ = validate.RegisterValidation(cv.tag, cv.fn)
		RegisterCustomTranslation(validate, translator, cv.tag, cv.text)
	}
	for _, tag := range []string{"required", "required_with"} {
		RegisterCustomTranslation(validate, translator, tag, requiredText, true)
	}
}

func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	ovrd := len(override) > 0 && override[0]
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}
