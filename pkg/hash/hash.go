// Package hash provides the fixed-width content identifier used throughout
// the core, plus the opaque revision identifier (RootId).
package hash

import (
	"crypto/sha1" //nolint:gosec // content identifier width/algorithm is fixed by the spec, not a security boundary
	"encoding/hex"
	"io"
	"strconv"

	"github.com/vcsmount/core/pkg/errors"
)

// Size is the fixed width, in bytes, of a Hash.
const Size = 20

// Hash is a 20-byte content identifier for a Blob or Tree.
type Hash [Size]byte

// Zero is the all-zero Hash.
var Zero Hash

// New constructs a Hash from raw bytes, failing with CodeInvalidHash if the
// length is wrong.
func New(raw []byte) (Hash, error) {
	var h Hash
	if len(raw) != Size {
		return h, errors.New(errors.CodeInvalidHash, "raw hash must be 20 bytes").
			WithComponent("hash").WithOperation("New").
			WithContext("length", strconv.Itoa(len(raw)))
	}
	copy(h[:], raw)
	return h, nil
}

// FromHex parses a lowercase (or mixed-case) hex string into a Hash.
func FromHex(s string) (Hash, error) {
	var h Hash
	if len(s) != Size*2 {
		return h, errors.New(errors.CodeInvalidHash, "hex hash must be 40 characters").
			WithComponent("hash").WithOperation("FromHex").
			WithContext("length", strconv.Itoa(len(s)))
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, errors.New(errors.CodeInvalidHash, "invalid hex alphabet").
			WithComponent("hash").WithOperation("FromHex").WithCause(err)
	}
	copy(h[:], raw)
	return h, nil
}

// String renders the Hash as lowercase hex.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns the raw binary form.
func (h Hash) Bytes() []byte {
	return h[:]
}

// IsZero reports whether h is the all-zero hash.
func (h Hash) IsZero() bool {
	return h == Zero
}

// Equal reports whether h and other are the same hash.
func (h Hash) Equal(other Hash) bool {
	return h == other
}

// Compare orders hashes on their binary form; it returns -1, 0 or 1.
func (h Hash) Compare(other Hash) int {
	for i := range h {
		if h[i] != other[i] {
			if h[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Compute returns the SHA-1 hash of the given bytes.
func Compute(data []byte) Hash {
	sum := sha1.Sum(data) //nolint:gosec
	return Hash(sum)
}

// ComputeReader streams r through SHA-1 and returns the resulting Hash.
func ComputeReader(r io.Reader) (Hash, error) {
	h := sha1.New() //nolint:gosec
	if _, err := io.Copy(h, r); err != nil {
		return Zero, errors.New(errors.CodeTransport, "failed reading hash input").
			WithComponent("hash").WithOperation("ComputeReader").WithCause(err)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out, nil
}

// Sort sorts a slice of Hash in ascending binary order.
func Sort(hs []Hash) {
	// insertion sort is adequate: glob/tree fan-outs are small (directory
	// entry counts), and it avoids pulling in sort.Slice's reflection path
	// for a fixed-size-array element.
	for i := 1; i < len(hs); i++ {
		for j := i; j > 0 && hs[j-1].Compare(hs[j]) > 0; j-- {
			hs[j-1], hs[j] = hs[j], hs[j-1]
		}
	}
}
