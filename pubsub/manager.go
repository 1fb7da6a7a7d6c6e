package pubsub

import (
	"sync"

	"github.com/axmq/uapubsub/ids"
	"github.com/axmq/uapubsub/security"
	"github.com/axmq/uapubsub/status"
	"github.com/axmq/uapubsub/telemetry"
	"github.com/axmq/uapubsub/transport"
)

// ManagerOptions configures a PubSubManager at construction time.
type ManagerOptions struct {
	// EventLoop is the server-default event loop used by Connections that
	// don't supply their own override (spec.md §4.2 "Connect").
	EventLoop transport.EventLoop
	// Transports resolves transport profile URIs; a default four-profile
	// Registry is used if nil.
	Transports *transport.Registry
	// OnStateChange is invoked for every observable state transition
	// across every entity (spec.md §6's user state-change callback).
	OnStateChange StateChangeFunc
	Metrics       *telemetry.Metrics
	Logger        telemetry.Logger
	Hooks         *telemetry.HookManager
	// Store, if set, persists decode/security-failure Events for
	// post-hoc diagnosis (spec.md §7 "surfaced via telemetry").
	Store telemetry.Store
}

// PubSubManager is the process-wide registry: an ordered sequence of
// Connections, unique-identifier minting shared across every entity
// class, and lookup by identifier (spec.md §4.1). Every mutable traversal
// of the Manager/Connection/ReaderGroup/Reader graph happens under its
// single mu — the "one process-wide service mutex" of spec.md §5.
type PubSubManager struct {
	mu sync.Mutex

	registry    *ids.Registry
	connections []*Connection
	connByID    map[ids.ID]*Connection
	groupByID   map[ids.ID]*ReaderGroup
	readerByID  map[ids.ID]*DataSetReader

	eventLoop  transport.EventLoop
	transports *transport.Registry
	topics     *transport.TopicRegistry
	keys       *security.Manager

	onStateChange StateChangeFunc
	metrics       *telemetry.Metrics
	logger        telemetry.Logger
	hooks         *telemetry.HookManager
	store         telemetry.Store
}

// NewManager creates an empty PubSubManager.
func NewManager(opts ManagerOptions) *PubSubManager {
	transports := opts.Transports
	if transports == nil {
		transports = transport.NewRegistry()
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.Nop{}
	}

	return &PubSubManager{
		registry:      ids.NewRegistry(),
		connByID:      make(map[ids.ID]*Connection),
		groupByID:     make(map[ids.ID]*ReaderGroup),
		readerByID:    make(map[ids.ID]*DataSetReader),
		eventLoop:     opts.EventLoop,
		transports:    transports,
		topics:        transport.NewTopicRegistry(),
		keys:          security.NewManager(),
		onStateChange: opts.OnStateChange,
		metrics:       opts.Metrics,
		logger:        logger,
		hooks:         opts.Hooks,
		store:         opts.Store,
	}
}

// mintID allocates a new identifier and is the implementation of
// mint_unique_id (spec.md §4.1): the result is guaranteed not to be a
// member of any entity class's current id set, since every class shares
// this one Registry (spec.md invariant 5).
func (m *PubSubManager) mintID() (ids.ID, *status.Error) {
	return m.registry.Mint()
}

// MintUniqueID publicly exposes mint_unique_id for callers that need a
// stable identifier ahead of creating the entity it will belong to.
func (m *PubSubManager) MintUniqueID() (ids.ID, *status.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mintID()
}

func (m *PubSubManager) releaseID(id ids.ID) {
	m.registry.Release(id)
}

func (m *PubSubManager) notify(change StateChange) {
	if m.onStateChange != nil {
		m.onStateChange(change)
	}
	if m.metrics != nil {
		m.metrics.StateTransitions.WithLabelValues("entity", change.State.String()).Inc()
	}
}

// --- Connection operations (spec.md §4.2) ---

// AddConnection implements add_connection(cfg) -> id | error.
func (m *PubSubManager) AddConnection(cfg ConnectionConfig) (ids.ID, *status.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cfg.TransportProfileURI == "" {
		return 0, status.New(status.InvalidArgument, "pubsub: connection requires a transport profile URI")
	}
	if cfg.Backoff == (ReconnectBackoff{}) {
		cfg.Backoff = DefaultReconnectBackoff()
	}

	id, err := m.mintID()
	if err != nil {
		return 0, err
	}

	loop := cfg.EventLoopOverride
	if loop == nil {
		loop = m.eventLoop
	}

	conn := &Connection{
		id:      id,
		manager: m,
		config:  cfg,
		state:   StateDisabled,
		loop:    loop,
	}
	m.connections = append([]*Connection{conn}, m.connections...)
	m.connByID[id] = conn
	return id, nil
}

// RemoveConnection implements remove(id), idempotent on a missing id
// failing with NotFound (spec.md §4.1).
func (m *PubSubManager) RemoveConnection(id ids.ID) *status.Error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.connByID[id]
	if !ok {
		return status.New(status.NotFound, "pubsub: unknown connection")
	}
	return conn.remove()
}

// GetConnectionConfig implements get_connection_config(id) -> cfg.
func (m *PubSubManager) GetConnectionConfig(id ids.ID) (ConnectionConfig, *status.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.connByID[id]
	if !ok {
		return ConnectionConfig{}, status.New(status.NotFound, "pubsub: unknown connection")
	}
	return conn.config, nil
}

// FindConnection implements find_connection(id).
func (m *PubSubManager) FindConnection(id ids.ID) (*Connection, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.connByID[id]
	return conn, ok
}

// ListConnections returns every live connection id, newest-first
// (insertion order), matching the Manager's internal sequence.
func (m *PubSubManager) ListConnections() []ids.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ids.ID, len(m.connections))
	for i, c := range m.connections {
		out[i] = c.id
	}
	return out
}

// SetConnectionState implements Connection.set_state(target_state, cause).
func (m *PubSubManager) SetConnectionState(id ids.ID, target State) *status.Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.connByID[id]
	if !ok {
		return status.New(status.NotFound, "pubsub: unknown connection")
	}
	return conn.setState(target)
}

func (m *PubSubManager) unlinkConnection(id ids.ID) {
	delete(m.connByID, id)
	for i, c := range m.connections {
		if c.id == id {
			m.connections = append(m.connections[:i], m.connections[i+1:]...)
			break
		}
	}
}

// --- ReaderGroup operations (spec.md §4.3) ---

// AddReaderGroup implements ReaderGroup.create(parent_connection_id, cfg).
func (m *PubSubManager) AddReaderGroup(connID ids.ID, cfg ReaderGroupConfig) (ids.ID, *status.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.connByID[connID]
	if !ok {
		return 0, status.New(status.NotFound, "pubsub: unknown parent connection")
	}
	return conn.addReaderGroup(cfg)
}

// RemoveReaderGroup implements ReaderGroup.remove(id).
func (m *PubSubManager) RemoveReaderGroup(id ids.ID) *status.Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groupByID[id]
	if !ok {
		return status.New(status.NotFound, "pubsub: unknown reader group")
	}
	return g.conn.removeReaderGroup(g)
}

// EnableReaderGroup implements ReaderGroup.enable(id).
func (m *PubSubManager) EnableReaderGroup(id ids.ID) *status.Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groupByID[id]
	if !ok {
		return status.New(status.NotFound, "pubsub: unknown reader group")
	}
	return g.setState(StatePreOperational)
}

// DisableReaderGroup implements ReaderGroup.disable(id).
func (m *PubSubManager) DisableReaderGroup(id ids.ID) *status.Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groupByID[id]
	if !ok {
		return status.New(status.NotFound, "pubsub: unknown reader group")
	}
	return g.setState(StateDisabled)
}

// FreezeReaderGroup implements ReaderGroup.freeze(id).
func (m *PubSubManager) FreezeReaderGroup(id ids.ID) *status.Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groupByID[id]
	if !ok {
		return status.New(status.NotFound, "pubsub: unknown reader group")
	}
	return g.freeze()
}

// UnfreezeReaderGroup implements ReaderGroup.unfreeze(id).
func (m *PubSubManager) UnfreezeReaderGroup(id ids.ID) *status.Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groupByID[id]
	if !ok {
		return status.New(status.NotFound, "pubsub: unknown reader group")
	}
	g.unfreeze()
	return nil
}

// SetReaderGroupEncryptionKeys implements set_encryption_keys.
func (m *PubSubManager) SetReaderGroupEncryptionKeys(id ids.ID, tokenID uint32, signingKey, encryptingKey, nonce []byte) *status.Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groupByID[id]
	if !ok {
		return status.New(status.NotFound, "pubsub: unknown reader group")
	}
	return g.setEncryptionKeys(tokenID, signingKey, encryptingKey, nonce)
}

// GetReaderGroupConfig implements the config query.
func (m *PubSubManager) GetReaderGroupConfig(id ids.ID) (ReaderGroupConfig, *status.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groupByID[id]
	if !ok {
		return ReaderGroupConfig{}, status.New(status.NotFound, "pubsub: unknown reader group")
	}
	return g.config, nil
}

// --- DataSetReader operations (spec.md §4.4) ---

// AddDataSetReader creates a DataSetReader under the named ReaderGroup.
func (m *PubSubManager) AddDataSetReader(groupID ids.ID, cfg DataSetReaderConfig) (ids.ID, *status.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groupByID[groupID]
	if !ok {
		return 0, status.New(status.NotFound, "pubsub: unknown parent reader group")
	}
	return g.addReader(cfg)
}

// RemoveDataSetReader removes a DataSetReader by id.
func (m *PubSubManager) RemoveDataSetReader(id ids.ID) *status.Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.readerByID[id]
	if !ok {
		return status.New(status.NotFound, "pubsub: unknown data set reader")
	}
	return r.group.removeReader(r)
}

// GetDataSetReaderConfig returns a reader's configuration.
func (m *PubSubManager) GetDataSetReaderConfig(id ids.ID) (DataSetReaderConfig, *status.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.readerByID[id]
	if !ok {
		return DataSetReaderConfig{}, status.New(status.NotFound, "pubsub: unknown data set reader")
	}
	return r.config, nil
}

// handleInbound is the receive-pipeline entry point registered as every
// recv Channel's handler (spec.md §4.5). It is invoked by the event loop,
// so it acquires the service mutex itself before touching PubSub state.
func (m *PubSubManager) handleInbound(conn *Connection, buf []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	process(m, conn, buf)
}
