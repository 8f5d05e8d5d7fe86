// Package id generates the nanoid-based identifiers used for session
// and dispatch correlation.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const hexAlphabet = "0123456789abcdef"

// SessionUUID returns a 16-character lowercase-hex id for a newly
// registered session (spec.md §9).
func SessionUUID() string {
	v, err := gonanoid.Generate(hexAlphabet, 16)
	if err != nil {
		panic(fmt.Sprintf("generate session uuid: %v", err))
	}
	return v
}

// DispatchTraceID returns a short id attached to the structured log
// fields of one dispatch fan-out, so concurrent per-client driver
// calls started from the same event firing can be correlated in the
// slog output.
func DispatchTraceID() string {
	v, err := gonanoid.Generate(hexAlphabet, 8)
	if err != nil {
		panic(fmt.Sprintf("generate dispatch trace id: %v", err))
	}
	return v
}
