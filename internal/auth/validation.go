package auth

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/hitoshi/unlinked/internal/model"
)

// パスワードポリシー
const (
	PasswordMinLength = 8
	PasswordMaxLength = 32
	// bcryptは72バイトを超える入力を扱えない。
	passwordMaxBytes = 72
)

// SignupInput はメールアドレスによる新規登録の入力。
type SignupInput struct {
	Email    string     `json:"email" validate:"required,email,max=254"`
	Password string     `json:"password" validate:"required,pwlen,pwbytes,pwlower,pwupper,pwdigit,pwsymbol"`
	Role     model.Role `json:"role" validate:"omitempty,accountrole"`
}

// LoginInput はメールアドレスによるログインの入力。
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// InputValidator は入力構造体を検証し、最初に違反したルールの文言を返す。
type InputValidator struct {
	validate *validator.Validate
	trans    ut.Translator
}

type rule struct {
	tag     string
	message string
	check   validator.Func
}

var customRules = []rule{
	{"pwlen", fmt.Sprintf("Password must be between %d and %d characters", PasswordMinLength, PasswordMaxLength), validPasswordLength},
	{"pwbytes", fmt.Sprintf("Password must be at most %d bytes", passwordMaxBytes), validPasswordBytes},
	{"pwlower", "Password must contain at least one lowercase letter", containsRune(unicode.IsLower)},
	{"pwupper", "Password must contain at least one uppercase letter", containsRune(unicode.IsUpper)},
	{"pwdigit", "Password must contain at least one number", containsRune(unicode.IsDigit)},
	{"pwsymbol", "Password must contain at least one special character", containsRune(isSymbol)},
	{"accountrole", "Role must be one of " + roleList(), validRole},
}

// NewInputValidator はInputValidatorを生成する。
func NewInputValidator() (*InputValidator, error) {
	locale := en.New()
	trans, _ := ut.New(locale, locale).GetTranslator("en")

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	if err := en_translations.RegisterDefaultTranslations(v, trans); err != nil {
		return nil, fmt.Errorf("failed to register default translations: %w", err)
	}

	for _, r := range customRules {
		if err := v.RegisterValidation(r.tag, r.check); err != nil {
			return nil, fmt.Errorf("failed to register %s validation: %w", r.tag, err)
		}
		if err := registerMessage(v, trans, r.tag, r.message); err != nil {
			return nil, err
		}
	}

	overrides := map[string]string{
		"required": "{0} is required",
		"email":    "Invalid email address",
		"max":      "{0} must be at most {1} characters",
	}
	for tag, message := range overrides {
		if err := registerMessage(v, trans, tag, message); err != nil {
			return nil, err
		}
	}

	return &InputValidator{validate: v, trans: trans}, nil
}

// Validate は入力を検証する。違反がある場合は最初の違反をValidationErrorとして返す。
func (iv *InputValidator) Validate(input any) error {
	err := iv.validate.Struct(input)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return model.NewValidationError(fieldErrs[0].Translate(iv.trans))
	}
	return model.NewInternalError(fmt.Errorf("failed to validate input: %w", err))
}

func registerMessage(v *validator.Validate, trans ut.Translator, tag, message string) error {
	err := v.RegisterTranslation(tag, trans,
		func(t ut.Translator) error {
			return t.Add(tag, message, true)
		},
		func(t ut.Translator, fe validator.FieldError) string {
			msg, err := t.T(fe.Tag(), fieldLabel(fe.Field()), fe.Param())
			if err != nil {
				return fe.Error()
			}
			return msg
		},
	)
	if err != nil {
		return fmt.Errorf("failed to register %s message: %w", tag, err)
	}
	return nil
}

func fieldLabel(field string) string {
	if field == "" {
		return field
	}
	r, size := utf8.DecodeRuneInString(field)
	return string(unicode.ToUpper(r)) + field[size:]
}

func validPasswordLength(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	n := utf8.RuneCountInString(s)
	return n >= PasswordMinLength && n <= PasswordMaxLength
}

func validPasswordBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= passwordMaxBytes
}

func containsRune(pred func(rune) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return strings.IndexFunc(fl.Field().String(), pred) >= 0
	}
}

func isSymbol(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}

func validRole(fl validator.FieldLevel) bool {
	return model.Role(fl.Field().String()).Valid()
}

func roleList() string {
	roles := model.Roles()
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}
