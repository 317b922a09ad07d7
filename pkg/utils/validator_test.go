package utils

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValidateCoordinates(t *testing.T) {
	assert.NoError(t, ValidateCoordinates(0, 0))
	assert.NoError(t, ValidateCoordinates(90, 180))
	assert.NoError(t, ValidateCoordinates(-90, -180))
	assert.Error(t, ValidateCoordinates(90.001, 0))
	assert.Error(t, ValidateCoordinates(0, -180.001))
}

func TestValidateAmount(t *testing.T) {
	assert.NoError(t, ValidateAmount(decimal.RequireFromString("0.01")))
	assert.NoError(t, ValidateAmount(decimal.NewFromInt(1000000)))
	assert.Error(t, ValidateAmount(decimal.Zero))
	assert.Error(t, ValidateAmount(decimal.NewFromInt(-10)))
	assert.Error(t, ValidateAmount(decimal.RequireFromString("1000000.01")))
}

func TestSanitizeStringStripsControlCharacters(t *testing.T) {
	assert.Equal(t, "dealer visit", SanitizeString("dealer\x00 visit\x1f"))
	assert.Equal(t, "ab", SanitizeString("a\x7fb"))
	assert.Equal(t, "plain text", SanitizeString("plain text"))
}

func TestSanitizeStringReusesPattern(t *testing.T) {
	// The pattern is compiled once at package load; hammering the
	// sanitizer must not allocate a new regexp per call.
	in := strings.Repeat("x\ty", 100)
	want := strings.Repeat("xy", 100)
	n := testing.AllocsPerRun(200, func() {
		_ = SanitizeString(in)
	})
	assert.Equal(t, want, SanitizeString(in))
	// Replacement itself allocates; compilation would add dozens more.
	assert.Less(t, n, 20.0)
}
