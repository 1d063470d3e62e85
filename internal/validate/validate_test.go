package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/srinumudili/CodeMate/internal/apperr"
)

func TestStrongPassword(t *testing.T) {
	cases := map[string]bool{
		"Sup3r$ecret": true,
		"Str0ng!Pass": true,
		"S3c!":        false,
		"alllower1!":  false,
		"ALLUPPER1!":  false,
		"NoDigits!!":  false,
		"NoSymbol12":  false,
		"Pässw0rd+":   true,
	}
	for in, want := range cases {
		assert.Equal(t, want, StrongPassword(in), in)
	}
}

type sample struct {
	Name    string  `json:"name" validate:"required,min=4"`
	Email   string  `json:"email" validate:"omitempty,email"`
	Gender  *string `json:"gender" validate:"omitempty,oneof=male female others"`
	Website string  `json:"website" validate:"omitempty,url"`
	Secret  string  `validate:"omitempty,strongpassword"`
}

func TestStructMessages(t *testing.T) {
	robot := "robot"
	cases := map[string]sample{
		"name is required":                          {},
		"name must be at least 4":                   {Name: "Al"},
		"Email is not valid":                        {Name: "Alice", Email: "nope"},
		"gender must be one of: male female others": {Name: "Alice", Gender: &robot},
		"website must be a valid URL":               {Name: "Alice", Website: "not a url"},
		"Please enter a strong password":            {Name: "Alice", Secret: "weak"},
	}
	for want, in := range cases {
		err := Struct(in)
		assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument), want)
		assert.EqualError(t, err, want)
	}

	assert.NoError(t, Struct(sample{Name: "Alice", Email: "alice@example.com"}))
}
