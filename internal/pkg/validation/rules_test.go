package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAcronym(t *testing.T) {
	valid := []string{"LDROI1001", "MLSMM2153A", "BIRCO2101", "WFARM1234", "XHULP1009"}
	for _, acronym := range valid {
		assert.True(t, IsAcronym(acronym), acronym)
	}

	invalid := []string{
		"",
		"ldroi1001",  // lowercase
		"LDROI100",   // only three digits
		"LDROI10011", // trailing digit instead of partim letter
		"ADROI1001",  // unknown site letter
		"LD1001",     // entity part too short
		"LDROIX1001", // entity part too long
		"LDROI1001a", // lowercase partim letter
	}
	for _, acronym := range invalid {
		assert.False(t, IsAcronym(acronym), acronym)
	}
}

func TestIsPartimLetter(t *testing.T) {
	assert.True(t, IsPartimLetter("A"))
	assert.True(t, IsPartimLetter("Z"))
	assert.False(t, IsPartimLetter(""))
	assert.False(t, IsPartimLetter("a"))
	assert.False(t, IsPartimLetter("AB"))
	assert.False(t, IsPartimLetter("1"))
}

func TestStruct_CustomTags(t *testing.T) {
	type payload struct {
		Acronym string `validate:"required,lu_acronym"`
		Letter  string `validate:"omitempty,partim_letter"`
	}

	assert.NoError(t, Struct(&payload{Acronym: "LDROI1001"}))
	assert.NoError(t, Struct(&payload{Acronym: "LDROI1001", Letter: "B"}))
	assert.Error(t, Struct(&payload{Acronym: "droit"}))
	assert.Error(t, Struct(&payload{Acronym: "LDROI1001", Letter: "b"}))
	assert.Error(t, Struct(&payload{}))
}
