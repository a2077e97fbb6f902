package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		raw, region, want string
	}{
		{"+91 98765 43210", "IN", "919876543210"},
		{"+919876543210", "", "919876543210"},
		{"0091 98765-43210", "IN", "919876543210"},
		{"98765 43210", "IN", "919876543210"},
		{"+1 (415) 555-2671", "IN", "14155552671"},
		{"  ", "IN", ""},
		{"abc-12", "", "12"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Normalize(tc.raw, tc.region), tc.raw)
	}
}

func TestDigits(t *testing.T) {
	assert.Equal(t, "911234567890", Digits("+91 (123) 456-7890"))
	assert.Equal(t, "", Digits("none"))
}
