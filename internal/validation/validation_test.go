package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidID(t *testing.T) {
	assert.True(t, IsValidID("msl_a1b2c3d4e5f60718293a4b5c"))
	assert.True(t, IsValidID("vote_0123456789abcdef01234567"))
	assert.True(t, IsValidID("d41d8cd9-8f00-b204-e980-0998ecf8427e"))
	assert.False(t, IsValidID(""))
	assert.False(t, IsValidID("UPPERCASE_ID"))
	assert.False(t, IsValidID("msl_"))
	assert.False(t, IsValidID("toolongprefix_abcdef12"))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "hello", SanitizeString("  hello  ", 100))
	assert.Equal(t, "ab", SanitizeString("abcdef", 2))
	assert.Equal(t, "ab", SanitizeString("a\x00b", 100))
}

func TestValidate_CollectsErrors(t *testing.T) {
	errs := Validate(
		Required("clan_id", ""),
		ValidID("missile_id", "not a valid id!"),
		MaxLength("reason", "ok", 100),
	)
	assert.Len(t, errs, 2)
	assert.Equal(t, "clan_id", errs[0].Field)
	assert.Equal(t, "missile_id", errs[1].Field)
}

func TestOneOf(t *testing.T) {
	assert.Nil(t, OneOf("component", "warhead", "warhead", "guidance")())
	assert.NotNil(t, OneOf("component", "engine", "warhead", "guidance")())
	assert.Nil(t, OneOf("component", "", "warhead")()) // empty handled by Required
}
