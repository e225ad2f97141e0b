package user

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/masomo-materials/core"
)

const (
	knownRolesTag  = "knownroles"
	knownRolesText = "invalid roles"

	usernameOrEmailTag  = "username_or_email"
	usernameOrEmailText = "one of username or email is required"

	pwdMinLen = 8
	pwdMaxSim = .7 // max difflib ratio between the password and a user attribute
)

var specialCharRegex = regexp.MustCompile("[^A-Za-z0-9]")

// pwdRule is one check of the password policy; rules run in order and the first failure is reported.
type pwdRule struct {
	tag  string
	text string
	ok   func(pwd string, attrs []string) bool
}

var pwdPolicy = []pwdRule{
	{
		tag:  "pwdminlen",
		text: fmt.Sprintf("password must contain at least %d characters", pwdMinLen),
		ok:   func(pwd string, _ []string) bool { return len([]rune(pwd)) >= pwdMinLen },
	},
	{
		tag:  "pwdnospace",
		text: "password must not contain whitespace",
		ok:   func(pwd string, _ []string) bool { return strings.IndexFunc(pwd, unicode.IsSpace) < 0 },
	},
	{
		tag:  "pwdnotallnum",
		text: "password cannot be entirely numeric",
		ok: func(pwd string, _ []string) bool {
			return strings.IndexFunc(pwd, func(r rune) bool { return !unicode.IsDigit(r) }) >= 0
		},
	},
	{
		tag:  "pwdcplx",
		text: "password must contain at least 1 uppercase character, 1 lowercase character, 1 digit and 1 special character",
		ok: func(pwd string, _ []string) bool {
			return strings.IndexFunc(pwd, unicode.IsUpper) >= 0 &&
				strings.IndexFunc(pwd, unicode.IsLower) >= 0 &&
				strings.IndexFunc(pwd, unicode.IsDigit) >= 0 &&
				specialCharRegex.MatchString(pwd)
		},
	},
	{
		tag:  "pwdtoosim",
		text: "password cannot be similar to user attributes",
		ok: func(pwd string, attrs []string) bool {
			pwdChars := strings.Split(strings.ToLower(pwd), "")
			for _, attr := range attrs {
				if attr == "" {
					continue
				}
				m := difflib.NewMatcher(pwdChars, strings.Split(strings.ToLower(attr), ""))
				if m.QuickRatio() >= pwdMaxSim {
					return false
				}
			}
			return true
		},
	},
}

// InitValidators registers the user validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(knownRolesTag, knownRolesValidation)
	core.RegisterCustomTranslation(validate, translator, knownRolesTag, knownRolesText)

	validate.RegisterStructValidation(newUserStructValidation, NewUser{})
	core.RegisterCustomTranslation(validate, translator, usernameOrEmailTag, usernameOrEmailText)
	for _, rule := range pwdPolicy {
		core.RegisterCustomTranslation(validate, translator, rule.tag, rule.text)
	}
}

func knownRolesValidation(fl validator.FieldLevel) bool {
	roles, ok := fl.Field().Interface().([]string)
	if !ok {
		return false
	}
	for _, role := range roles {
		if !knownRoles[role] {
			return false
		}
	}
	return true
}

func newUserStructValidation(sl validator.StructLevel) {
	nu, ok := sl.Current().Interface().(NewUser)
	if !ok {
		return
	}

	if nu.Username == "" && nu.Email == "" {
		sl.ReportError(nu.Username, "username", "Username", usernameOrEmailTag, "")
		sl.ReportError(nu.Email, "email", "Email", usernameOrEmailTag, "")
	}

	attrs := []string{nu.Name, nu.Username, nu.Email}
	for _, rule := range pwdPolicy {
		if !rule.ok(nu.Password, attrs) {
			sl.ReportError(nu.Password, "password", "Password", rule.tag, "")
			return
		}
	}
}
