package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

const (
	minPhoneDigits    = 10
	minPasswordLength = 6
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return isValidUsername(fl.Field().String())
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return isValidPhone(fl.Field().String())
	})
	return v
}

type registerFields struct {
	Name     string `json:"name" validate:"required,max=100"`
	Username string `json:"username" validate:"required,min=3,max=50,username"`
	Phone    string `json:"phone" validate:"required,phone"`
	Password string `json:"password" validate:"required,min=6"`
}

type updateFields struct {
	Name  *string `json:"name" validate:"omitnil,min=1,max=100"`
	Phone *string `json:"phone" validate:"omitnil,phone"`
}

var fieldMessages = map[string]string{
	"name.required":     "name cannot be empty",
	"name.min":          "name cannot be empty",
	"name.max":          "name must be at most 100 characters long",
	"username.required": "username is required",
	"username.min":      "username must be at least 3 characters long",
	"username.max":      "username must be at most 50 characters long",
	"username.username": "username must contain only letters, numbers, hyphens, and underscores",
	"phone.required":    "phone is required",
	"phone.phone":       fmt.Sprintf("phone number must contain at least %d digits", minPhoneDigits),
	"password.required": "password is required",
	"password.min":      fmt.Sprintf("password must be at least %d characters long", minPasswordLength),
}

// validateStruct traduce los errores de validator a un ValidationError.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{}
	seen := make(map[string]bool)
	for _, fe := range verrs {
		if seen[fe.Field()] {
			continue
		}
		seen[fe.Field()] = true
		msg, ok := fieldMessages[fe.Field()+"."+fe.Tag()]
		if !ok {
			msg = fmt.Sprintf("%s is not valid", fe.Field())
		}
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Message: msg})
	}
	return out
}

func isValidUsername(username string) bool {
	if username == "" {
		return false
	}
	for _, r := range username {
		if r > unicode.MaxASCII {
			return false
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' {
			return false
		}
	}
	return true
}

func isValidPhone(phone string) bool {
	digits := 0
	for _, r := range phone {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == ' ' || r == '+' || r == '-' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits >= minPhoneDigits
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
