// Package ids generates sortable, prefix-typed identifiers for stored
// records. The prefix makes misrouted identifiers (an appeal id where an
// action id is expected) fail fast at lookup instead of matching.
package ids

import (
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Record prefixes.
const (
	PrefixAction     = "act"
	PrefixAppeal     = "apl"
	PrefixAssignment = "asg"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

func newULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewAction returns a fresh action record identifier.
func NewAction() string { return PrefixAction + "_" + newULID() }

// NewAppeal returns a fresh appeal identifier.
func NewAppeal() string { return PrefixAppeal + "_" + newULID() }

// NewAssignment returns a fresh assignment identifier.
func NewAssignment() string { return PrefixAssignment + "_" + newULID() }

// HasPrefix reports whether id carries the given record prefix.
func HasPrefix(id, prefix string) bool {
	return strings.HasPrefix(id, prefix+"_")
}
