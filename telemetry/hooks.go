package telemetry

import (
	"sync"
	"sync/atomic"
)

// HookPoint identifies a lifecycle point a Hook can observe, the
// PubSub-domain analog of the teacher's hook.Event enum.
type HookPoint byte

const (
	OnConnectionStateChange HookPoint = iota
	OnReaderGroupStateChange
	OnDataSetReaderStateChange
	OnDecodeError
	OnSecurityError
)

func (p HookPoint) String() string {
	switch p {
	case OnConnectionStateChange:
		return "OnConnectionStateChange"
	case OnReaderGroupStateChange:
		return "OnReaderGroupStateChange"
	case OnDataSetReaderStateChange:
		return "OnDataSetReaderStateChange"
	case OnDecodeError:
		return "OnDecodeError"
	case OnSecurityError:
		return "OnSecurityError"
	default:
		return "Unknown"
	}
}

// StateChange describes an observed transition of some entity's state,
// reported through OnConnectionStateChange/OnReaderGroupStateChange/
// OnDataSetReaderStateChange. State values are carried as `any` since
// Hook lives below the pubsub package and cannot import its state type.
type StateChange struct {
	EntityID uint32
	From     any
	To       any
}

// Hook observes lifecycle events; a Hook only needs to implement the
// methods for the HookPoints it Provides.
type Hook interface {
	ID() string
	Provides(point HookPoint) bool
	OnConnectionStateChange(change StateChange)
	OnReaderGroupStateChange(change StateChange)
	OnDataSetReaderStateChange(change StateChange)
	OnDecodeError(event Event)
	OnSecurityError(event Event)
}

var (
	ErrEmptyHookID       = statusError("telemetry: hook id must not be empty")
	ErrHookAlreadyExists = statusError("telemetry: hook already registered")
	ErrHookNotFound      = statusError("telemetry: hook not found")
)

type statusError string

func (e statusError) Error() string { return string(e) }

// HookManager dispatches lifecycle events to registered Hooks using the
// teacher's copy-on-write discipline (hook/manager.go): reads take the
// current slice off an atomic pointer with no lock, writes rebuild the
// slice under a mutex so Add/Remove never race a concurrent dispatch.
type HookManager struct {
	mu    sync.Mutex
	ptr   atomic.Pointer[[]Hook]
	index map[string]int
}

// NewHookManager creates an empty HookManager.
func NewHookManager() *HookManager {
	m := &HookManager{index: make(map[string]int)}
	hooks := make([]Hook, 0)
	m.ptr.Store(&hooks)
	return m
}

func (m *HookManager) Add(hook Hook) error {
	if hook == nil {
		return ErrEmptyHookID
	}
	id := hook.ID()
	if id == "" {
		return ErrEmptyHookID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.index[id]; exists {
		return ErrHookAlreadyExists
	}

	old := *m.ptr.Load()
	updated := make([]Hook, len(old)+1)
	copy(updated, old)
	updated[len(old)] = hook

	m.index[id] = len(old)
	m.ptr.Store(&updated)
	return nil
}

func (m *HookManager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, exists := m.index[id]
	if !exists {
		return ErrHookNotFound
	}

	old := *m.ptr.Load()
	updated := make([]Hook, len(old)-1)
	copy(updated[:idx], old[:idx])
	copy(updated[idx:], old[idx+1:])
	delete(m.index, id)
	for i := idx; i < len(updated); i++ {
		m.index[updated[i].ID()] = i
	}
	m.ptr.Store(&updated)
	return nil
}

func (m *HookManager) Count() int {
	return len(*m.ptr.Load())
}

func (m *HookManager) List() []Hook {
	hooks := *m.ptr.Load()
	result := make([]Hook, len(hooks))
	copy(result, hooks)
	return result
}

func (m *HookManager) DispatchConnectionStateChange(change StateChange) {
	for _, h := range *m.ptr.Load() {
		if h.Provides(OnConnectionStateChange) {
			h.OnConnectionStateChange(change)
		}
	}
}

func (m *HookManager) DispatchReaderGroupStateChange(change StateChange) {
	for _, h := range *m.ptr.Load() {
		if h.Provides(OnReaderGroupStateChange) {
			h.OnReaderGroupStateChange(change)
		}
	}
}

func (m *HookManager) DispatchDataSetReaderStateChange(change StateChange) {
	for _, h := range *m.ptr.Load() {
		if h.Provides(OnDataSetReaderStateChange) {
			h.OnDataSetReaderStateChange(change)
		}
	}
}

func (m *HookManager) DispatchDecodeError(event Event) {
	for _, h := range *m.ptr.Load() {
		if h.Provides(OnDecodeError) {
			h.OnDecodeError(event)
		}
	}
}

func (m *HookManager) DispatchSecurityError(event Event) {
	for _, h := range *m.ptr.Load() {
		if h.Provides(OnSecurityError) {
			h.OnSecurityError(event)
		}
	}
}
