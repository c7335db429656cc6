package validation

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

// Validation rule patterns
var (
	// Learning unit acronym: one site letter, 2 to 4 letters for the entity,
	// 4 digits, and an optional partim letter (LDROI1001, MLSMM2153A).
	AcronymPattern = `^[BLMWX][A-Z]{2,4}\d{4}[A-Z]?$`

	// Partim letter: one uppercase letter appended to the full acronym.
	PartimLetterPattern = `^[A-Z]$`
)

// CompiledPatterns caches compiled regex patterns for better performance
var CompiledPatterns = struct {
	Acronym      *regexp.Regexp
	PartimLetter *regexp.Regexp
}{
	Acronym:      regexp.MustCompile(AcronymPattern),
	PartimLetter: regexp.MustCompile(PartimLetterPattern),
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Registration cannot fail for func-based rules with valid tag names.
	_ = v.RegisterValidation("lu_acronym", func(fl validator.FieldLevel) bool {
		return CompiledPatterns.Acronym.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("partim_letter", func(fl validator.FieldLevel) bool {
		return CompiledPatterns.PartimLetter.MatchString(fl.Field().String())
	})
	return v
}

// Struct validates a payload against its validate tags.
func Struct(payload interface{}) error {
	return validate.Struct(payload)
}

// IsAcronym reports whether the value is a well-formed learning unit acronym.
func IsAcronym(value string) bool {
	return CompiledPatterns.Acronym.MatchString(value)
}

// IsPartimLetter reports whether the value is a single uppercase letter.
func IsPartimLetter(value string) bool {
	return CompiledPatterns.PartimLetter.MatchString(value)
}
