// Package ids provides the server's single source of timestamps and the
// opaque identifiers assigned to boards and objects.
package ids

import (
	"regexp"
	"time"

	"github.com/teris-io/shortid"
)

// Now returns the monotonic server-side instant used to stamp every write.
// It is the only source of updatedAt across the server (spec §4.1).
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

var proposedIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidProposedID reports whether a client-proposed id is syntactically
// acceptable. Servers MUST accept client-proposed ids that pass this check
// and are not already in use (spec §4.1).
func ValidProposedID(id string) bool {
	return id != "" && proposedIDPattern.MatchString(id)
}

// NewObjectID returns an opaque identifier with negligible collision
// probability, used when a client does not propose its own id.
func NewObjectID() string {
	id, err := shortid.Generate()
	if err != nil {
		// shortid only fails on generator misconfiguration, which never
		// happens with the package-level default generator.
		panic(err)
	}
	return id
}

// NewBoardID returns an opaque board identifier using the same id space as
// objects.
func NewBoardID() string {
	return NewObjectID()
}
