package param

import (
	"encoding/json"
	"fmt"
	"math"
)

// Family identifies the algebraic order of a parameter's univariate cost landscape.
type Family int

const (
	// SingleFrequency parameters have univariate cost a + b·cos(x+c).
	SingleFrequency Family = iota
	// TwoFrequency parameters have univariate cost a + b·cos(x/2+c) + d·cos(x+e).
	TwoFrequency
)

// Families lists every valid family in sweep order.
var Families = []Family{SingleFrequency, TwoFrequency}

func (f Family) String() string {
	switch f {
	case SingleFrequency:
		return "single"
	case TwoFrequency:
		return "two"
	default:
		return fmt.Sprintf("Family(%d)", int(f))
	}
}

// Validate returns ErrInvalidFamily if f is not a known family.
func (f Family) Validate() error {
	switch f {
	case SingleFrequency, TwoFrequency:
		return nil
	default:
		return &InvalidFamilyError{Value: int(f)}
	}
}

// Period is the smallest period of the family's univariate cost.
func (f Family) Period() (float64, error) {
	switch f {
	case SingleFrequency:
		return 2 * math.Pi, nil
	case TwoFrequency:
		return 4 * math.Pi, nil
	default:
		return 0, &InvalidFamilyError{Value: int(f)}
	}
}

// ParseFamily converts the textual form produced by String back to a Family.
func ParseFamily(s string) (Family, error) {
	switch s {
	case "single":
		return SingleFrequency, nil
	case "two":
		return TwoFrequency, nil
	default:
		return 0, &InvalidFamilyError{Text: s}
	}
}

func (f Family) MarshalJSON() ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(f.String())
}

func (f *Family) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("family must be a string: %w", err)
	}
	parsed, err := ParseFamily(s)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// ErrInvalidFamily matches any InvalidFamilyError via errors.Is.
var ErrInvalidFamily = &InvalidFamilyError{}

// InvalidFamilyError is returned when a family tag is outside the closed set.
type InvalidFamilyError struct {
	Value int
	Text  string
}

func (e *InvalidFamilyError) Error() string {
	if e.Text != "" {
		return fmt.Sprintf("invalid parameter family %q", e.Text)
	}
	return fmt.Sprintf("invalid parameter family %d", e.Value)
}

func (e *InvalidFamilyError) Is(target error) bool {
	_, ok := target.(*InvalidFamilyError)
	return ok
}
