package wizard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateStepEmail(t *testing.T) {
	base := map[Field]string{FirstName: "a", LastName: "b", Phone: "c"}

	tests := []struct {
		email string
		want  string
	}{
		{"", "Email is required"},
		{"john@example.com", ""},
		{"a@b.c", ""},
		{"john doe@example.com", "Invalid email format"},
		{"john@@example.com", "Invalid email format"},
		{"@example.com", "Invalid email format"},
		{"john@example.", "Invalid email format"},
		{" john@example.com", "Invalid email format"},
		{"john\u00a0doe@example.com", "Invalid email format"},
		{"john@example\v.com", "Invalid email format"},
		{"john@exa\ufeffmple.com", "Invalid email format"},
		{"jöhn@exämple.de", ""},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			fields := map[Field]string{Email: tt.email}
			for k, v := range base {
				fields[k] = v
			}
			got := ValidateStep(PhasePersonal, fields)
			assert.Equal(t, tt.want, got[Email])
		})
	}
}

func TestValidateStepCardExpiry(t *testing.T) {
	tests := map[string]bool{
		"01/25":   true,
		"09/00":   true,
		"12/99":   true,
		"00/25":   false,
		"13/25":   false,
		"1/25":    false,
		"12/2025": false,
		"12-25":   false,
	}

	for expiry, valid := range tests {
		t.Run(expiry, func(t *testing.T) {
			got := ValidateStep(PhasePayment, map[Field]string{
				CardNumber: "1234567890123456",
				CardExpiry: expiry,
				CardCvv:    "123",
			})
			if valid {
				assert.Empty(t, got)
			} else {
				assert.Equal(t, "Invalid format (MM/YY)", got[CardExpiry])
			}
		})
	}
}

func TestValidateStepCardNumber(t *testing.T) {
	tests := map[string]string{
		"1234567890123456":                   "",
		"1234 5678 9012 3456":                "",
		"\t1234567890123456\n":               "",
		"1234\u00a05678\u00a09012\u00a03456": "",
		"1234\v5678\v9012\v3456":             "",
		"\ufeff1234567890123456":             "",
		"123456789012345":                    "Card number must be 16 digits",
		"12345678901234567":                  "Card number must be 16 digits",
		"1234-5678-9012-3456":                "Card number must be 16 digits",
		"abcdabcdabcdabcd":                   "Card number must be 16 digits",
		"   ":                                "Card number is required",
		"\u00a0\u2003":                       "Card number is required",
	}

	for number, want := range tests {
		t.Run(number, func(t *testing.T) {
			got := ValidateStep(PhasePayment, map[Field]string{
				CardNumber: number,
				CardExpiry: "12/25",
				CardCvv:    "123",
			})
			assert.Equal(t, want, got[CardNumber])
		})
	}
}

func TestValidateStepSubmittedHasNoRules(t *testing.T) {
	assert.Empty(t, ValidateStep(PhaseSubmitted, map[Field]string{}))
}

func TestMessageFallback(t *testing.T) {
	assert.Equal(t, "Phone is required", Message(Phone, tagPresent))
	assert.Equal(t, "phone is invalid", Message(Phone, "e164"))
}

func TestFieldsFor(t *testing.T) {
	assert.Equal(t, []Field{CardNumber, CardExpiry, CardCvv}, FieldsFor(PhasePayment))
	assert.Nil(t, FieldsFor(PhaseSubmitted))
}
