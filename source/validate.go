package source

import "github.com/pkg/errors"

var errValidation = errors.New("missing required field")

// Missing is the error validators return for an absent field.
func Missing(field string) error {
	return errors.Wrap(errValidation, field)
}

// Require returns the first Missing error among fields whose ok flag is false.
// Fields are checked in order so the error names the first gap.
func Require(checks ...Check) error {
	for _, c := range checks {
		if !c.OK {
			return Missing(c.Field)
		}
	}
	return nil
}

// Check pairs a field name with whether it is present.
type Check struct {
	Field string
	OK    bool
}

// Field is shorthand for building a Check.
func Field(name string, ok bool) Check { return Check{Field: name, OK: ok} }
