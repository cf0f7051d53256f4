// Package snapshot persists captured deep sleep continuations between
// suspension and resumption, content addressed by their encoded form.
package snapshot

import (
	"errors"

	"github.com/guestbox/guestbox/wasienv"
)

// ErrNotExist is reported when no snapshot is stored under an id.
var ErrNotExist = errors.New("snapshot does not exist")

// Store defines the interface to persist continuation snapshots.
type Store interface {
	// Add persists the continuation and returns its content address.
	Add(rs wasienv.RewindState) (string, error)
	// Get loads the continuation stored under the id.
	Get(id string) (wasienv.RewindState, error)
	// Remove deletes a snapshot by id and reports whether it existed.
	Remove(id string) bool
	// List returns all stored snapshot ids.
	List() []string
}
