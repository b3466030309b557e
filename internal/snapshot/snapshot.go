// Package snapshot implements the versioned SNAPSHOT binary record that
// remembers which source-control revision a checkout is pointing at
// (spec.md §4.2, §6).
package snapshot

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vcsmount/core/pkg/errors"
	"github.com/vcsmount/core/pkg/hash"
)

const (
	magic      = "eden"
	version1   = uint32(1)
	version2   = uint32(2)
	headerSize = 8 // 4 bytes magic + 4 bytes version

	// FileName is the name of the snapshot file within a client directory.
	FileName = "SNAPSHOT"
)

// Encode renders root as a version-2 SNAPSHOT body: "eden" + version(2) +
// uint32 length-prefixed string, per spec.md §4.2.
func Encode(root hash.RootId) []byte {
	value := root.String()
	buf := make([]byte, headerSize+4+len(value))
	copy(buf[0:4], magic)
	binary.BigEndian.PutUint32(buf[4:8], version2)
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(value))) //nolint:gosec // RootId length is bounded to 2^32-1 by NewRootId
	copy(buf[12:], value)
	return buf
}

// Decode parses a SNAPSHOT byte record of either version 1 or version 2,
// failing with CodeBadSnapshot on any malformed input (spec.md §4.2).
func Decode(data []byte) (hash.RootId, error) {
	if len(data) < headerSize {
		return hash.RootId{}, badSnapshot("file shorter than header", nil)
	}
	if string(data[0:4]) != magic {
		return hash.RootId{}, badSnapshot("missing magic", nil)
	}
	version := binary.BigEndian.Uint32(data[4:8])
	body := data[headerSize:]

	switch version {
	case version1:
		return decodeV1(body)
	case version2:
		return decodeV2(body)
	default:
		return hash.RootId{}, badSnapshot(fmt.Sprintf("unsupported version %d", version), nil)
	}
}

func decodeV1(body []byte) (hash.RootId, error) {
	switch len(body) {
	case hash.Size, hash.Size * 2:
		first := body[:hash.Size]
		root, err := hash.NewRootId(hex.EncodeToString(first))
		if err != nil {
			return hash.RootId{}, badSnapshot("v1 body produced invalid root id", err)
		}
		return root, nil
	default:
		return hash.RootId{}, badSnapshot(fmt.Sprintf("v1 body has unexpected length %d", len(body)), nil)
	}
}

func decodeV2(body []byte) (hash.RootId, error) {
	if len(body) < 4 {
		return hash.RootId{}, badSnapshot("v2 body missing length prefix", nil)
	}
	length := binary.BigEndian.Uint32(body[0:4])
	rest := body[4:]
	if uint64(length) != uint64(len(rest)) {
		return hash.RootId{}, badSnapshot("v2 body length mismatch", nil)
	}
	root, err := hash.NewRootId(string(rest))
	if err != nil {
		return hash.RootId{}, badSnapshot("v2 body produced invalid root id", err)
	}
	return root, nil
}

func badSnapshot(msg string, cause error) error {
	e := errors.New(errors.CodeBadSnapshot, msg).WithComponent("snapshot").WithOperation("Decode")
	if cause != nil {
		e = e.WithCause(cause)
	}
	return e
}

// Path returns the SNAPSHOT file path within clientDir.
func Path(clientDir string) string {
	return filepath.Join(clientDir, FileName)
}

// Write persists root as the current parent commit, atomically: the new
// content is written to a sibling temporary file which is then renamed over
// the snapshot path, so the file is always either the old or the new
// content, never partial (spec.md §5, §9).
func Write(clientDir string, root hash.RootId) error {
	target := Path(clientDir)
	tmp := target + ".tmp"

	if err := os.WriteFile(tmp, Encode(root), 0o644); err != nil { //nolint:gosec // snapshot file is not secret
		return errors.New(errors.CodeBadSnapshot, "failed writing temporary snapshot file").
			WithComponent("snapshot").WithOperation("Write").WithCause(err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return errors.New(errors.CodeBadSnapshot, "failed renaming snapshot file into place").
			WithComponent("snapshot").WithOperation("Write").WithCause(err)
	}
	return nil
}

// Read loads and decodes the SNAPSHOT file within clientDir.
func Read(clientDir string) (hash.RootId, error) {
	data, err := os.ReadFile(Path(clientDir)) //nolint:gosec // path is caller-controlled, not user input
	if err != nil {
		return hash.RootId{}, errors.New(errors.CodeBadSnapshot, "failed reading snapshot file").
			WithComponent("snapshot").WithOperation("Read").WithCause(err)
	}
	return Decode(data)
}
