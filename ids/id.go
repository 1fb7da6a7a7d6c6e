// Package ids mints and tracks the unique identifiers shared by every
// PubSub entity class (Connection, ReaderGroup, DataSetReader, WriterGroup).
package ids

import (
	"crypto/rand"
	"encoding/binary"
	"sync"

	"github.com/axmq/uapubsub/status"
)

// ID identifies a single live entity, regardless of its class. The Manager
// is the only component that mints and releases IDs, so uniqueness across
// entity classes (spec invariant 5) reduces to uniqueness within one
// Registry.
type ID uint32

const maxMintAttempts = 32

// Registry tracks the set of IDs currently in use by live entities. It is
// the Go analogue of session.Manager's GenerateClientID retry loop,
// generalized from client IDs to a flat numeric identifier space.
type Registry struct {
	mu   sync.Mutex
	used map[ID]struct{}
}

// NewRegistry creates an empty identifier registry.
func NewRegistry() *Registry {
	return &Registry{used: make(map[ID]struct{})}
}

// Mint allocates an identifier not currently held by any live entity.
func (r *Registry) Mint() (ID, *status.Error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := 0; i < maxMintAttempts; i++ {
		candidate, err := randomID()
		if err != nil {
			return 0, status.Wrap(status.InternalError, err, "generate random identifier")
		}
		if candidate == 0 {
			continue // 0 is reserved as "no id"
		}
		if _, exists := r.used[candidate]; !exists {
			r.used[candidate] = struct{}{}
			return candidate, nil
		}
	}

	return 0, status.New(status.OutOfMemory, "identifier space exhausted")
}

// Reserve claims a caller-supplied identifier, failing if it is already in
// use. Used when a caller wants stable identifiers across a restart.
func (r *Registry) Reserve(id ID) *status.Error {
	if id == 0 {
		return status.New(status.InvalidArgument, "identifier 0 is reserved")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.used[id]; exists {
		return status.New(status.InvalidArgument, "identifier already in use")
	}
	r.used[id] = struct{}{}
	return nil
}

// Release returns id to the free pool. Safe to call on an id not
// currently registered.
func (r *Registry) Release(id ID) {
	r.mu.Lock()
	delete(r.used, id)
	r.mu.Unlock()
}

// Contains reports whether id is currently held by a live entity.
func (r *Registry) Contains(id ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.used[id]
	return ok
}

// Count returns the number of identifiers currently in use.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.used)
}

func randomID() (ID, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return ID(binary.BigEndian.Uint32(b[:])), nil
}
