package errorutil

import "errors"

// ErrDataIntegrity is a base error type to use for failures that are due to
// unrecoverable inconsistencies in recorded trace data, such as a call path
// referencing a function no totals entry exists for.
var ErrDataIntegrity = errors.New("data integrity error")

// ErrNoResults represents situations in which no results were returned by the called API.
var ErrNoResults = errors.New("no results returned")
