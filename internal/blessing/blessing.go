// Package blessing classifies whether the running binary is an unmodified,
// officially distributed build.
//
// The classifier is a pure query. It is safe to call before bootstrap completes
// and is consulted only by the fatal-error exit policy.
package blessing

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"golang.org/x/crypto/blake2b"
)

// EmbeddedHash is the reference content hash stamped in at release time:
//
//	go build -ldflags "-X github.com/danmuck/enginecore/internal/blessing.EmbeddedHash=<hex>"
var EmbeddedHash string

var ErrNilFS = errors.New("blessing: nil filesystem")

// Evidence is the runtime state the classifier inspects. A nil Evidence means
// process state does not exist yet.
type Evidence interface {
	UserRanCommands() bool
	UsingCustomScriptsDir() bool
	CalculatedBlessingHash() string
}

// Classifier applies the blessing policy. Zero value is not useful; use New.
type Classifier struct {
	debug    bool
	embedded string
	evidence Evidence
}

// New returns a classifier using the build's debug flag and embedded hash.
func New(ev Evidence) Classifier {
	return Classifier{debug: DebugBuild, embedded: EmbeddedHash, evidence: ev}
}

// NewWith returns a classifier with explicit build facts.
func NewWith(debug bool, embedded string, ev Evidence) Classifier {
	return Classifier{debug: debug, embedded: embedded, evidence: ev}
}

// IsUnmodifiedBlessedBuild evaluates the rules in order; the first match wins.
// An uncalculated runtime hash counts as a match so early startup never misfires.
func (c Classifier) IsUnmodifiedBlessedBuild() bool {
	if c.debug {
		return false
	}
	if c.evidence != nil && c.evidence.UserRanCommands() {
		return false
	}
	if c.evidence != nil && c.evidence.UsingCustomScriptsDir() {
		return false
	}
	if c.embedded == "" {
		return false
	}
	if c.evidence == nil {
		return true
	}
	calced := c.evidence.CalculatedBlessingHash()
	return calced == "" || calced == c.embedded
}

// ComputeHash digests every regular file in fsys, in lexical path order,
// as path NUL content NUL. Returns lowercase hex blake2b-256.
func ComputeHash(fsys fs.FS) (string, error) {
	if fsys == nil {
		return "", ErrNilFS
	}
	var paths []string
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("blessing: walk content: %w", err)
	}
	sort.Strings(paths)

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	for _, p := range paths {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return "", fmt.Errorf("blessing: read %s: %w", p, err)
		}
		h.Write([]byte(p))
		h.Write([]byte{0})
		h.Write(data)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
