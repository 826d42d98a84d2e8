package model

import "fmt"

// DataIntegrityError reports an input field that cannot be used as given.
// It aborts the run.
type DataIntegrityError struct {
	Source string
	Row    int
	Key    string
	Field  string
	Value  string
	Err    error
}

func (e *DataIntegrityError) Error() string {
	msg := fmt.Sprintf("data integrity: %s row %d", e.Source, e.Row)
	if e.Key != "" {
		msg += fmt.Sprintf(" (%s)", e.Key)
	}
	msg += fmt.Sprintf(": field %q value %q", e.Field, e.Value)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DataIntegrityError) Unwrap() error {
	return e.Err
}
