package analysis

import "errors"

// Structural failures. Callers surface all three as "the AI did not return a
// usable answer"; they differ only for diagnostics.
var (
	ErrNoJSONFound   = errors.New("no JSON object found in reply")
	ErrMalformedJSON = errors.New("malformed JSON in reply")
	ErrMissingField  = errors.New("reply is missing a required field")
)
