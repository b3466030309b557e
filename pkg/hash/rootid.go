package hash

import (
	"github.com/vcsmount/core/pkg/errors"
)

// maxRootIdLen is the largest RootId string value the core accepts (2^32-1).
const maxRootIdLen = 1<<32 - 1

// RootId is an opaque, printable identifier of a source-control revision.
// Its internal form is a non-empty string; parsing and rendering are owned
// by the backing store, not by RootId itself (spec.md §3).
type RootId struct {
	value string
}

// NewRootId wraps s as a RootId, rejecting the empty string and values
// longer than 2^32-1 bytes.
func NewRootId(s string) (RootId, error) {
	if s == "" {
		return RootId{}, errors.New(errors.CodeInvalidRoot, "root id must not be empty").
			WithComponent("hash").WithOperation("NewRootId")
	}
	if len(s) > maxRootIdLen {
		return RootId{}, errors.New(errors.CodeInvalidRoot, "root id too long").
			WithComponent("hash").WithOperation("NewRootId")
	}
	return RootId{value: s}, nil
}

// String returns the printable form of the root id.
func (r RootId) String() string {
	return r.value
}

// IsZero reports whether r is the zero value (never produced by NewRootId).
func (r RootId) IsZero() bool {
	return r.value == ""
}

// Equal reports whether r and other carry the same value.
func (r RootId) Equal(other RootId) bool {
	return r.value == other.value
}
