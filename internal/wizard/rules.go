package wizard

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// emailChar excludes "@" and every character browsers treat as whitespace,
// which is wider than RE2's \s.
const emailChar = `[^@\t\n\v\f\r\p{Zs}\x{2028}\x{2029}\x{FEFF}]`

var (
	emailPattern  = regexp.MustCompile(`^` + emailChar + `+@` + emailChar + `+\.` + emailChar + `+$`)
	cardPattern   = regexp.MustCompile(`^\d{16}$`)
	expiryPattern = regexp.MustCompile(`^(0[1-9]|1[0-2])/\d{2}$`)
	cvvPattern    = regexp.MustCompile(`^\d{3,4}$`)
)

// isSpace matches the same set as emailChar's exclusions.
func isSpace(r rune) bool {
	switch r {
	case '\t', '\n', '\v', '\f', '\r', '\u2028', '\u2029', '\uFEFF':
		return true
	}
	return unicode.Is(unicode.Zs, r)
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if isSpace(r) {
			return -1
		}
		return r
	}, s)
}

// Validation tags registered on the package validator.
const (
	tagPresent    = "present"
	tagEmail      = "email_format"
	tagCardNumber = "card_number"
	tagCardExpiry = "card_expiry"
	tagCardCvv    = "card_cvv"
)

// messages maps a failed tag on a field to the text shown to the user.
var messages = map[Field]map[string]string{
	FirstName: {tagPresent: "First name is required"},
	LastName:  {tagPresent: "Last name is required"},
	Email: {
		tagPresent: "Email is required",
		tagEmail:   "Invalid email format",
	},
	Phone:   {tagPresent: "Phone is required"},
	Address: {tagPresent: "Address is required"},
	City:    {tagPresent: "City is required"},
	ZipCode: {tagPresent: "ZIP code is required"},
	Country: {tagPresent: "Country is required"},
	CardNumber: {
		tagPresent:    "Card number is required",
		tagCardNumber: "Card number must be 16 digits",
	},
	CardExpiry: {
		tagPresent:    "Expiry date is required",
		tagCardExpiry: "Invalid format (MM/YY)",
	},
	CardCvv: {
		tagPresent: "CVV is required",
		tagCardCvv: "CVV must be 3 or 4 digits",
	},
}

// Tags on one field run left to right and stop at the first failure, so
// "present" always wins over the format check.
type personalStep struct {
	FirstName string `field:"firstName" validate:"present"`
	LastName  string `field:"lastName" validate:"present"`
	Email     string `field:"email" validate:"present,email_format"`
	Phone     string `field:"phone" validate:"present"`
}

type addressStep struct {
	Address string `field:"address" validate:"present"`
	City    string `field:"city" validate:"present"`
	ZipCode string `field:"zipCode" validate:"present"`
	Country string `field:"country" validate:"present"`
}

type paymentStep struct {
	CardNumber string `field:"cardNumber" validate:"present,card_number"`
	CardExpiry string `field:"cardExpiry" validate:"present,card_expiry"`
	CardCvv    string `field:"cardCvv" validate:"present,card_cvv"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// Report failures under the form's field names instead of Go struct names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("field")
	})

	must := func(tag string, fn validator.Func) {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("wizard: register %s: %v", tag, err))
		}
	}
	must(tagPresent, func(fl validator.FieldLevel) bool {
		return strings.TrimFunc(fl.Field().String(), isSpace) != ""
	})
	must(tagEmail, func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})
	must(tagCardNumber, func(fl validator.FieldLevel) bool {
		return cardPattern.MatchString(stripSpace(fl.Field().String()))
	})
	must(tagCardExpiry, func(fl validator.FieldLevel) bool {
		return expiryPattern.MatchString(fl.Field().String())
	})
	must(tagCardCvv, func(fl validator.FieldLevel) bool {
		return cvvPattern.MatchString(fl.Field().String())
	})

	return v
}

// stepInput builds the struct validated for phase p.
func stepInput(p Phase, fields map[Field]string) (interface{}, error) {
	switch p {
	case PhasePersonal:
		return personalStep{
			FirstName: fields[FirstName],
			LastName:  fields[LastName],
			Email:     fields[Email],
			Phone:     fields[Phone],
		}, nil
	case PhaseAddress:
		return addressStep{
			Address: fields[Address],
			City:    fields[City],
			ZipCode: fields[ZipCode],
			Country: fields[Country],
		}, nil
	case PhasePayment:
		return paymentStep{
			CardNumber: fields[CardNumber],
			CardExpiry: fields[CardExpiry],
			CardCvv:    fields[CardCvv],
		}, nil
	default:
		return nil, fmt.Errorf("no fields to validate in phase %s", p)
	}
}

// ValidateStep checks every field of phase p and returns one message per
// failing field. An empty map means the step passes.
func ValidateStep(p Phase, fields map[Field]string) map[Field]string {
	failures := make(map[Field]string)

	input, err := stepInput(p, fields)
	if err != nil {
		return failures
	}

	err = validate.Struct(input)
	if err == nil {
		return failures
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		// Only reachable on a programming error in the step structs.
		panic(fmt.Sprintf("wizard: validate %s: %v", p, err))
	}
	for _, fe := range verrs {
		name := Field(fe.Field())
		failures[name] = Message(name, fe.Tag())
	}
	return failures
}

// Message returns the user-facing text for a failed tag on a field.
func Message(name Field, tag string) string {
	if msg, ok := messages[name][tag]; ok {
		return msg
	}
	return fmt.Sprintf("%s is invalid", name)
}
