// Package glob compiles slash-separated patterns into a trie of GlobNode
// values that internal/globeval walks against a directory tree (spec.md
// §4.6.1).
package glob

import (
	"path"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/vcsmount/core/pkg/errors"
	"github.com/vcsmount/core/pkg/model"
)

// GlobNode is one trie node: the path component it was compiled from, plus
// its ordinary and recursive ("**") children.
type GlobNode struct {
	Pattern         string
	IsLeaf          bool
	HasSpecials     bool
	AlwaysMatch     bool
	IncludeDotfiles bool

	Ordinary  map[string]*GlobNode
	Recursive map[string]*GlobNode
}

func newNode(pattern string, includeDotfiles bool) *GlobNode {
	return &GlobNode{
		Pattern:         pattern,
		HasSpecials:     hasSpecialChars(pattern),
		IncludeDotfiles: includeDotfiles,
		Ordinary:        make(map[string]*GlobNode),
		Recursive:       make(map[string]*GlobNode),
	}
}

// NewRoot returns an empty trie root that patterns are compiled into.
func NewRoot() *GlobNode {
	return &GlobNode{Ordinary: make(map[string]*GlobNode), Recursive: make(map[string]*GlobNode)}
}

// Compile builds a trie from patterns, sharing structure across patterns
// with a common prefix, and returns its root.
func Compile(patterns []string, includeDotfiles bool) (*GlobNode, error) {
	root := NewRoot()
	for _, p := range patterns {
		if err := root.AddPattern(p, includeDotfiles); err != nil {
			return nil, err
		}
	}
	return root, nil
}

// AddPattern inserts pattern into the trie rooted at root, per §4.6.1:
// tokens are looked up left to right, children are deduplicated by exact
// token text, and the node consuming the last token is marked a leaf.
func (root *GlobNode) AddPattern(pattern string, includeDotfiles bool) error {
	if !includeDotfiles && pattern == "**" {
		pattern = "**/*"
	}

	tokens := strings.Split(pattern, "/")
	node := root
	for _, tok := range tokens {
		if tok == "" {
			return badPattern(pattern, "empty path component")
		}
		if strings.IndexByte(tok, 0) >= 0 {
			return badPattern(pattern, "NUL byte in path component")
		}

		if tok == "**" {
			node = node.childOf(node.Recursive, tok, includeDotfiles)
			continue
		}

		if hasSpecialChars(tok) {
			if _, err := path.Match(tok, ""); err != nil {
				return badPattern(pattern, err.Error())
			}
		} else if err := model.ValidateName(tok); err != nil {
			return badPattern(pattern, err.Error())
		}

		node = node.childOf(node.Ordinary, tok, includeDotfiles)
	}
	node.IsLeaf = true
	return nil
}

func (n *GlobNode) childOf(children map[string]*GlobNode, tok string, includeDotfiles bool) *GlobNode {
	if existing, ok := children[tok]; ok {
		return existing
	}
	child := newNode(tok, includeDotfiles)
	if (tok == "*" || tok == "**") && includeDotfiles {
		child.AlwaysMatch = true
	}
	children[tok] = child
	return child
}

// Matches reports whether name satisfies this node's pattern segment. Used
// for specials children, which must be iterated against directory entries
// rather than looked up by exact name.
func (n *GlobNode) Matches(name string) bool {
	if !n.HasSpecials {
		return name == n.Pattern
	}
	if !n.IncludeDotfiles && strings.HasPrefix(name, ".") {
		return false
	}
	if n.AlwaysMatch {
		return true
	}
	matched, _ := path.Match(n.Pattern, name)
	return matched
}

func hasSpecialChars(tok string) bool {
	return strings.ContainsAny(tok, "*?[\\")
}

func badPattern(pattern, reason string) error {
	return errors.New(errors.CodeBadPattern, "invalid glob pattern: "+reason).
		WithComponent("glob").WithOperation("AddPattern").
		WithContext("pattern", pattern)
}

// dumpNode is the YAML-serializable shape of a GlobNode subtree, used only
// by Dump — the trie itself stays map-based for O(1) child lookup.
type dumpNode struct {
	Pattern     string               `yaml:"pattern,omitempty"`
	Leaf        bool                 `yaml:"leaf,omitempty"`
	Specials    bool                 `yaml:"specials,omitempty"`
	AlwaysMatch bool                 `yaml:"always_match,omitempty"`
	Ordinary    map[string]*dumpNode `yaml:"ordinary,omitempty"`
	Recursive   map[string]*dumpNode `yaml:"recursive,omitempty"`
}

func (n *GlobNode) toDumpNode() *dumpNode {
	d := &dumpNode{
		Pattern:     n.Pattern,
		Leaf:        n.IsLeaf,
		Specials:    n.HasSpecials,
		AlwaysMatch: n.AlwaysMatch,
	}
	if len(n.Ordinary) > 0 {
		d.Ordinary = make(map[string]*dumpNode, len(n.Ordinary))
		for name, child := range n.Ordinary {
			d.Ordinary[name] = child.toDumpNode()
		}
	}
	if len(n.Recursive) > 0 {
		d.Recursive = make(map[string]*dumpNode, len(n.Recursive))
		for name, child := range n.Recursive {
			d.Recursive[name] = child.toDumpNode()
		}
	}
	return d
}

// Dump renders the trie rooted at n as YAML for diagnosing why a pattern
// does or does not match (spec.md §4.6.3).
func (n *GlobNode) Dump() (string, error) {
	out, err := yaml.Marshal(n.toDumpNode())
	if err != nil {
		return "", err
	}
	return string(out), nil
}
