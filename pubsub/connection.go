package pubsub

import (
	"time"

	"github.com/axmq/uapubsub/ids"
	"github.com/axmq/uapubsub/status"
	"github.com/axmq/uapubsub/transport"
)

// Connection owns one logical send channel, any number of receive
// channels, and parents ReaderGroups (spec.md §3). It runs the Connection
// state machine described in spec.md §4.2.
type Connection struct {
	id      ids.ID
	manager *PubSubManager
	config  ConnectionConfig
	state   State

	loop    transport.EventLoop
	profile transport.Profile

	sendChannel  *transport.Channel
	recvChannels []*transport.Channel

	readerGroups []*ReaderGroup // newest-first insertion order (spec.md Open Question: "first match wins... insertion order, newest first")

	freezeCounter int // invariant 2: equals the number of frozen child ReaderGroups

	deleteFlag     bool
	backoffCurrent time.Duration
}

// ID returns the connection's unique identifier.
func (c *Connection) ID() ids.ID { return c.id }

// State returns the connection's current lifecycle state.
func (c *Connection) State() State { return c.state }

// ReaderGroupIDs returns the ids of every child ReaderGroup, newest
// first.
func (c *Connection) ReaderGroupIDs() []ids.ID {
	out := make([]ids.ID, len(c.readerGroups))
	for i, g := range c.readerGroups {
		out[i] = g.id
	}
	return out
}

// setState implements the set_state(target, cause) transition matrix of
// spec.md §4.2.
func (c *Connection) setState(target State) *status.Error {
	if isCascadeTarget(target) {
		if c.state == target {
			return nil // noop: spec.md §4.2 "(noop if equal; else close channels)"
		}
		c.closeChannels()
		c.state = target
		c.cascadeChildren(target)
		c.manager.notify(StateChange{EntityID: c.id, State: target, Cause: status.OK})
		return nil
	}

	// target is PRE or OP: (re)connect, idempotent.
	if err := c.connect(); err != nil {
		c.state = StateError
		c.cascadeChildren(StateError)
		c.manager.notify(StateChange{EntityID: c.id, State: StateError, Cause: status.CodeOf(err)})
		return err
	}
	c.state = target
	c.manager.notify(StateChange{EntityID: c.id, State: target, Cause: status.OK})
	return nil
}

// cascadeChildren drives every child ReaderGroup (and, symmetrically, any
// WriterGroup — out of scope here per spec.md §1) to target with cause
// ResourceUnavailable, per spec.md §4.2's cascading rule. The caller
// invokes this before its own notify call, so children are observed
// before the parent (spec.md §8 scenario 4: "Order: children before
// parent").
func (c *Connection) cascadeChildren(target State) {
	for _, g := range c.readerGroups {
		g.cascadeFromParent(target)
	}
}

// connect selects an event loop, binds the configured transport, and
// registers the receive-pipeline callback on every opened receive
// channel. Connect is idempotent: once a send channel is bound, calling it
// again does nothing. Receive channels that newly-added ReaderGroups need
// are opened by bindGroupChannel, which addReaderGroup calls.
func (c *Connection) connect() *status.Error {
	if c.profile == nil {
		profile, err := c.manager.transports.Resolve(c.config.TransportProfileURI)
		if err != nil {
			c.backoffCurrent = c.config.Backoff.Next(c.backoffCurrent)
			return err
		}
		c.profile = profile
	}

	if c.sendChannel != nil {
		// Already bound; nothing more to do for the connection-level
		// channel. Group-level channels are opened by addReaderGroup.
		return nil
	}

	result, err := c.profile.Bind(c.loop, transport.BindRequest{
		Address:  c.config.Address,
		Settings: c.config.Settings,
	})
	if err != nil {
		c.backoffCurrent = c.config.Backoff.Next(c.backoffCurrent)
		return err
	}
	c.backoffCurrent = 0

	if result.Send != nil {
		c.sendChannel = result.Send
	}
	for _, ch := range result.Recv {
		ch.SetReceiveHandler(func(buf []byte) { c.manager.handleInbound(c, buf) })
		c.recvChannels = append(c.recvChannels, ch)
	}
	return nil
}

// bindGroupChannel opens a per-ReaderGroup receive channel, required by
// transports that bind at group granularity (e.g. MQTT topic
// subscriptions), per spec.md §6.
func (c *Connection) bindGroupChannel(g *ReaderGroup) *status.Error {
	if c.profile == nil {
		profile, err := c.manager.transports.Resolve(c.config.TransportProfileURI)
		if err != nil {
			return err
		}
		c.profile = profile
	}
	if !c.profile.IsMQTT() {
		return nil
	}

	result, err := c.profile.Bind(c.loop, transport.BindRequest{
		Address:    c.config.Address,
		Settings:   c.config.Settings,
		QueueName:  g.config.QueueName,
		GroupLevel: true,
	})
	if err != nil {
		return err
	}
	if err := c.manager.topics.Bind(g.config.QueueName, uint32(g.id)); err != nil {
		return err
	}
	for _, ch := range result.Recv {
		ch.SetReceiveHandler(func(buf []byte) { c.manager.handleInbound(c, buf) })
		g.recvChannels = append(g.recvChannels, ch)
	}
	return nil
}

func (c *Connection) closeChannels() {
	if c.sendChannel != nil {
		c.sendChannel.Close()
		c.sendChannel = nil
	}
	for _, ch := range c.recvChannels {
		ch := ch
		go c.watchRecvChannelClose(ch)
	}
}

func (c *Connection) watchRecvChannelClose(ch *transport.Channel) {
	<-ch.CloseChan()
	c.manager.mu.Lock()
	defer c.manager.mu.Unlock()
	c.removeRecvChannel(ch)
	c.maybeFinalize()
}

func (c *Connection) removeRecvChannel(ch *transport.Channel) {
	for i, rc := range c.recvChannels {
		if rc == ch {
			c.recvChannels = append(c.recvChannels[:i], c.recvChannels[i+1:]...)
			return
		}
	}
}

// maybeFinalize implements spec.md §4.2 delete step (iii): once no send
// or receive channel remains, enqueue the delayed free that runs on the
// event loop thread, per spec.md §5's delayed-deletion protocol.
func (c *Connection) maybeFinalize() {
	if !c.deleteFlag || c.sendChannel != nil || len(c.recvChannels) > 0 {
		return
	}
	id := c.id
	mgr := c.manager
	if c.loop != nil {
		c.loop.AddDelayedCallback(func() { mgr.releaseID(id) })
	} else {
		mgr.releaseID(id)
	}
}

// remove implements the delete protocol of spec.md §4.2.
func (c *Connection) remove() *status.Error {
	groups := append([]*ReaderGroup(nil), c.readerGroups...)
	for _, g := range groups {
		g.forceRemove()
	}

	if !c.deleteFlag {
		c.deleteFlag = true
		c.manager.unlinkConnection(c.id)
		c.manager.notify(StateChange{EntityID: c.id, State: StateDisabled, Cause: status.Shutdown})
		c.closeChannels()
	}
	c.maybeFinalize()
	return nil
}

// addReaderGroup implements ReaderGroup.create (spec.md §4.3).
func (c *Connection) addReaderGroup(cfg ReaderGroupConfig) (ids.ID, *status.Error) {
	if c.freezeCounter > 0 {
		return 0, status.New(status.ConfigurationError, "pubsub: parent connection has a frozen reader group")
	}
	if cfg.EnableBlockingSocket && !cfg.HasCustomScheduler {
		return 0, status.New(status.NotSupported, "pubsub: blocking sockets require a custom scheduler")
	}

	cfg.applyDefaults()

	id, err := c.manager.mintID()
	if err != nil {
		return 0, err
	}

	g := &ReaderGroup{
		id:     id,
		conn:   c,
		config: cfg,
		state:  StateDisabled,
	}

	if cfg.SecurityGroupID != "" {
		g.keyStorage = c.manager.keys.Attach(cfg.SecurityGroupID)
	}

	c.readerGroups = append([]*ReaderGroup{g}, c.readerGroups...)
	c.manager.groupByID[id] = g

	if err := c.connect(); err != nil {
		// Creation itself still succeeds (spec.md §4.3: "Creation never
		// puts the group above DISABLED"); the connection's own
		// set_state path is what surfaces connect failures as ERROR.
		_ = err
	}
	if cfg.QueueName != "" {
		if err := c.bindGroupChannel(g); err != nil {
			delete(c.manager.groupByID, id)
			c.removeReaderGroupFromSlice(g)
			if cfg.SecurityGroupID != "" {
				c.manager.keys.Detach(cfg.SecurityGroupID)
			}
			c.manager.releaseID(id)
			return 0, err
		}
	}

	return id, nil
}

func (c *Connection) removeReaderGroupFromSlice(g *ReaderGroup) {
	for i, rg := range c.readerGroups {
		if rg == g {
			c.readerGroups = append(c.readerGroups[:i], c.readerGroups[i+1:]...)
			return
		}
	}
}

// removeReaderGroup implements ReaderGroup.remove (spec.md §4.3).
func (c *Connection) removeReaderGroup(g *ReaderGroup) *status.Error {
	if g.frozen {
		return status.New(status.ConfigurationError, "pubsub: cannot remove a frozen reader group")
	}
	return g.doRemove()
}

func (c *Connection) unlinkReaderGroup(g *ReaderGroup) {
	delete(c.manager.groupByID, g.id)
	c.removeReaderGroupFromSlice(g)
}
