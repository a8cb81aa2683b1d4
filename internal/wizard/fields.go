// Package wizard implements the three-step checkout form: personal details,
// shipping address and payment card. It holds field values, validates the
// active step on forward navigation and reports submission once the payment
// step passes.
package wizard

import "errors"

// Field names one of the eleven inputs of the form.
type Field string

const (
	FirstName  Field = "firstName"
	LastName   Field = "lastName"
	Email      Field = "email"
	Phone      Field = "phone"
	Address    Field = "address"
	City       Field = "city"
	ZipCode    Field = "zipCode"
	Country    Field = "country"
	CardNumber Field = "cardNumber"
	CardExpiry Field = "cardExpiry"
	CardCvv    Field = "cardCvv"
)

// ErrUnknownField is returned when an update names a field the form does not have.
var ErrUnknownField = errors.New("unknown field")

// AllFields lists every field in display order.
var AllFields = []Field{
	FirstName, LastName, Email, Phone,
	Address, City, ZipCode, Country,
	CardNumber, CardExpiry, CardCvv,
}

// stepFields groups the fields validated by each step.
var stepFields = map[Phase][]Field{
	PhasePersonal: {FirstName, LastName, Email, Phone},
	PhaseAddress:  {Address, City, ZipCode, Country},
	PhasePayment:  {CardNumber, CardExpiry, CardCvv},
}

// ParseField resolves a field by its name. Matching is exact.
func ParseField(name string) (Field, bool) {
	for _, f := range AllFields {
		if string(f) == name {
			return f, true
		}
	}
	return "", false
}

// FieldsFor returns the fields validated when leaving the given phase.
func FieldsFor(p Phase) []Field {
	return stepFields[p]
}
