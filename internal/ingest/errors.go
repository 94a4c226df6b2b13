package ingest

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoValue marks a cell that carries no usable value (blank, NA, spreadsheet error code).
var ErrNoValue = errors.New("ingest: no value")

// CoercionError reports a non-blank cell that could not be read as the requested type.
type CoercionError struct {
	Kind  string
	Value any
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("cannot read %q as a %s", fmt.Sprint(e.Value), e.Kind)
}

// StructuralError blocks a whole upload: wrong sheet, missing columns, or no data.
type StructuralError struct {
	Reason    string
	Available []string
}

func (e *StructuralError) Error() string {
	if len(e.Available) == 0 {
		return e.Reason
	}
	return e.Reason + ". Available: " + strings.Join(e.Available, ", ")
}

// IsStructural reports whether err blocks the whole file.
func IsStructural(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}
