package passwords

import (
	"regexp"

	"github.com/dmitrijs2005/ecomauth/internal/common"
	validation "github.com/go-ozzo/ozzo-validation"
)

const MinLength = 12

var (
	lowerRe    = regexp.MustCompile(`[a-z]`)
	upperRe    = regexp.MustCompile(`[A-Z]`)
	digitRe    = regexp.MustCompile(`[0-9]`)
	nonAlnumRe = regexp.MustCompile(`[^A-Za-z0-9_]`)
)

// Validate checks password against the strength policy. The first violated
// rule is returned as a common.ErrValidation error.
func Validate(password string) error {
	err := validation.Validate(password,
		validation.Required.Error("Password is required"),
		validation.RuneLength(MinLength, 0).Error("Password must contain atleast 12 characters"),
		validation.Match(lowerRe).Error("Password must contain atleast one lowercase character"),
		validation.Match(upperRe).Error("Password must contain atleast one uppercase character"),
		validation.Match(digitRe).Error("Password must contain atleast one digit character"),
		validation.Match(nonAlnumRe).Error("Password must contain atleast one non alphanumeric character"),
	)
	if err != nil {
		return common.NewError(common.ErrValidation, err.Error(), nil)
	}
	return nil
}
