package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"github.com/vcsmount/core/pkg/errors"
)

// MountProtocol names the transport the mount presents to the kernel bridge.
type MountProtocol string

const (
	ProtocolKernelFUSE      MountProtocol = "kernel-fuse"
	ProtocolKernelNFS       MountProtocol = "kernel-nfs"
	ProtocolUserspaceProjFS MountProtocol = "userspace-projected"
)

// CaseSensitivity names the mount's path comparison behavior.
type CaseSensitivity string

const (
	CaseSensitive   CaseSensitivity = "sensitive"
	CaseInsensitive CaseSensitivity = "insensitive"
)

// CheckoutConfig is the immutable, validated configuration of a single mount
// (spec.md §3, §4.3).
type CheckoutConfig struct {
	MountPath         string
	ClientDir         string
	RepositorySource  string
	RepositoryType    string
	Protocol          MountProtocol
	CaseSensitivity   CaseSensitivity
	RequireUTF8Path   bool
	EnableTreeOverlay bool
	GUID              string // Windows only; empty elsewhere
}

// rawConfig mirrors the on-disk config.toml structure (spec.md §6).
type rawConfig struct {
	Repository struct {
		Path              string `toml:"path"`
		Type              string `toml:"type"`
		Protocol          string `toml:"protocol"`
		CaseSensitive     *bool  `toml:"case-sensitive"`
		RequireUTF8Path   *bool  `toml:"require-utf8-path"`
		EnableTreeOverlay bool   `toml:"enable-tree-overlay"`
		GUID              string `toml:"guid"`
	} `toml:"repository"`
}

const configFileName = "config.toml"

// LoadCheckoutConfig reads <clientDir>/config.toml and builds a validated
// CheckoutConfig, applying the platform defaults from spec.md §4.3.
func LoadCheckoutConfig(clientDir string) (*CheckoutConfig, error) {
	path := filepath.Join(clientDir, configFileName)

	var raw rawConfig
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, errors.New(errors.CodeBadConfig, "failed parsing config.toml").
			WithComponent("config").WithOperation("LoadCheckoutConfig").
			WithCause(err).WithContext("path", path)
	}

	if raw.Repository.Path == "" || raw.Repository.Type == "" {
		return nil, errors.New(errors.CodeBadConfig, "repository.path and repository.type are required").
			WithComponent("config").WithOperation("LoadCheckoutConfig").WithContext("path", path)
	}

	cfg := &CheckoutConfig{
		MountPath:         clientDir,
		ClientDir:         clientDir,
		RepositorySource:  raw.Repository.Path,
		RepositoryType:    raw.Repository.Type,
		Protocol:          defaultProtocol(),
		CaseSensitivity:   defaultCaseSensitivity(),
		RequireUTF8Path:   true,
		EnableTreeOverlay: raw.Repository.EnableTreeOverlay,
	}

	if raw.Repository.Protocol == "nfs" {
		cfg.Protocol = ProtocolKernelNFS
	}
	if raw.Repository.CaseSensitive != nil {
		if *raw.Repository.CaseSensitive {
			cfg.CaseSensitivity = CaseSensitive
		} else {
			cfg.CaseSensitivity = CaseInsensitive
		}
	}
	if raw.Repository.RequireUTF8Path != nil {
		cfg.RequireUTF8Path = *raw.Repository.RequireUTF8Path
	}

	if runtime.GOOS == "windows" {
		if raw.Repository.GUID != "" {
			cfg.GUID = raw.Repository.GUID
		} else {
			cfg.GUID = uuid.NewString()
		}
	}

	return cfg, nil
}

func defaultProtocol() MountProtocol {
	if runtime.GOOS == "windows" {
		return ProtocolUserspaceProjFS
	}
	return ProtocolKernelFUSE
}

func defaultCaseSensitivity() CaseSensitivity {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		return CaseInsensitive
	}
	return CaseSensitive
}

// LoadClientDirectoryMap reads <edenDir>/config.json: a mount-name ->
// client-directory mapping, tolerant of // and /* */ comments and trailing
// commas. An empty file yields an empty map (spec.md §4.3, §6).
func LoadClientDirectoryMap(edenDir string) (map[string]string, error) {
	path := filepath.Join(edenDir, "config.json")
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-controlled, not user input
	if err != nil {
		return nil, errors.New(errors.CodeBadConfig, "failed reading config.json").
			WithComponent("config").WithOperation("LoadClientDirectoryMap").
			WithCause(err).WithContext("path", path)
	}

	scrubbed := stripJSONComments(data)
	if len(bytes.TrimSpace(scrubbed)) == 0 {
		return map[string]string{}, nil
	}

	var out map[string]string
	if err := json.Unmarshal(scrubbed, &out); err != nil {
		return nil, errors.New(errors.CodeBadConfig, "failed parsing config.json").
			WithComponent("config").WithOperation("LoadClientDirectoryMap").
			WithCause(err).WithContext("path", path)
	}
	if out == nil {
		out = map[string]string{}
	}
	return out, nil
}

// stripJSONComments removes // line comments and /* */ block comments,
// then strips trailing commas before an object/array close, so config.json
// may be hand-edited with comments the way a developer workstation tool
// expects. No JSONC library appears in the example corpus (see DESIGN.md),
// so this small scrubber stays on encoding/json plus a hand-rolled pass.
func stripJSONComments(data []byte) []byte {
	var out bytes.Buffer
	inString := false
	escaped := false

	for i := 0; i < len(data); i++ {
		c := data[i]

		if inString {
			out.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch {
		case c == '"':
			inString = true
			out.WriteByte(c)
		case c == '/' && i+1 < len(data) && data[i+1] == '/':
			for i < len(data) && data[i] != '\n' {
				i++
			}
			out.WriteByte('\n')
		case c == '/' && i+1 < len(data) && data[i+1] == '*':
			i += 2
			for i+1 < len(data) && !(data[i] == '*' && data[i+1] == '/') {
				i++
			}
			i++
		default:
			out.WriteByte(c)
		}
	}

	return stripTrailingCommas(out.Bytes())
}

func stripTrailingCommas(data []byte) []byte {
	var out bytes.Buffer
	inString := false
	escaped := false

	for i := 0; i < len(data); i++ {
		c := data[i]
		if inString {
			out.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			out.WriteByte(c)
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(data) && isJSONSpace(data[j]) {
				j++
			}
			if j < len(data) && (data[j] == '}' || data[j] == ']') {
				continue // drop the trailing comma
			}
		}
		out.WriteByte(c)
	}
	return out.Bytes()
}

func isJSONSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
