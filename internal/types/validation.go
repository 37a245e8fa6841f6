package types

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// fieldLabels maps struct field names to the labels shown to users.
var fieldLabels = map[string]string{
	"Name":     "Product name",
	"Desc":     "Product description",
	"Email":    "Email",
	"FullName": "Full name",
	"Password": "Password",
}

// ValidationMessage renders the first failing field of a validation error as
// a user-facing sentence. Other errors are returned as is.
func ValidationMessage(err error) string {
	if err == nil {
		return ""
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}

	fe := verrs[0]
	label, ok := fieldLabels[fe.Field()]
	if !ok {
		label = fe.Field()
	}

	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "email":
		return label + " must be a valid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters long", label, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid (%s)", label, fe.Tag())
	}
}
