package engine

import (
	"fmt"

	"github.com/pkg/errors"
)

// DataLoadError is fatal at startup: a source could not be read, a required
// column is missing, a value is malformed, or the join came back empty.
type DataLoadError struct {
	Path   string
	Reason string
	Err    error
}

func (e *DataLoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("load %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("load %s: %s", e.Path, e.Reason)
}

func (e *DataLoadError) Unwrap() error { return e.Err }

// UnknownCountryError is returned for a country that is not in the store.
type UnknownCountryError struct {
	Country string
}

func (e *UnknownCountryError) Error() string {
	return fmt.Sprintf("unknown country %q", e.Country)
}

// UnknownYearError is returned when no record has the selected year.
type UnknownYearError struct {
	Year int
}

func (e *UnknownYearError) Error() string {
	return fmt.Sprintf("no rows for year %d", e.Year)
}

// IsNotFound reports whether err is a per-request lookup miss that should
// degrade to an empty document.
func IsNotFound(err error) bool {
	var ce *UnknownCountryError
	var ye *UnknownYearError
	return errors.As(err, &ce) || errors.As(err, &ye)
}
