package security

import (
	"sync"

	"github.com/axmq/uapubsub/status"
)

// KeyStorage holds the current and future key sets for one security
// group, shared by every ReaderGroup that references it (spec.md §3:
// "referenced by >=1 ReaderGroups").
type KeyStorage struct {
	GroupID  string
	refcount int
	Policy   PolicyContext
}

// Manager tracks KeyStorage instances by security-group id, refcounting
// attach/detach the way session.Manager tracks active sessions by client
// id.
type Manager struct {
	mu      sync.Mutex
	storage map[string]*KeyStorage
}

// NewManager creates an empty KeyStorage registry.
func NewManager() *Manager {
	return &Manager{storage: make(map[string]*KeyStorage)}
}

// Attach increments the refcount for groupID, creating the KeyStorage
// (with a PassthroughPolicy until keys are installed) if it does not yet
// exist.
func (m *Manager) Attach(groupID string) *KeyStorage {
	m.mu.Lock()
	defer m.mu.Unlock()

	ks, ok := m.storage[groupID]
	if !ok {
		ks = &KeyStorage{GroupID: groupID, Policy: PassthroughPolicy{}}
		m.storage[groupID] = ks
	}
	ks.refcount++
	return ks
}

// Detach decrements the refcount for groupID and removes it once no
// ReaderGroup references it.
func (m *Manager) Detach(groupID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ks, ok := m.storage[groupID]
	if !ok {
		return
	}
	ks.refcount--
	if ks.refcount <= 0 {
		delete(m.storage, groupID)
	}
}

// RefCount returns the current refcount for groupID, or 0 if unknown.
func (m *Manager) RefCount(groupID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ks, ok := m.storage[groupID]; ok {
		return ks.refcount
	}
	return 0
}

// InstallKeys installs or rolls over a key set on the KeyStorage for
// groupID, per spec.md §4.3:
//   - encoding must be UADP (checked by the caller, ReaderGroup, which
//     knows its own config) — InternalError otherwise.
//   - if tokenID differs from the current one, the nonce sequence resets
//     to 1 (PolicyContext.UpdateKeys detects the token change and resets
//     its own sequence counter; the caller only supplies the new nonce
//     bytes).
//   - on first installation a new PolicyContext is created; subsequent
//     calls update the existing context in place, preserving its
//     identity.
func (m *Manager) InstallKeys(groupID string, tokenID uint32, signingKey, encryptingKey, nonce []byte) *status.Error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ks, ok := m.storage[groupID]
	if !ok {
		return status.New(status.InternalError, "security: unknown security group")
	}

	if _, isPassthrough := ks.Policy.(PassthroughPolicy); isPassthrough {
		ks.Policy = NewAesSha256Policy(tokenID, signingKey, encryptingKey, nonce)
		return nil
	}

	ks.Policy.UpdateKeys(tokenID, signingKey, encryptingKey, nonce)
	return nil
}
