package transport

import (
	"sync"
	"sync/atomic"
)

// ChannelRole distinguishes a Connection's one logical send channel from
// its zero-or-more receive channels (spec.md §3: "Owns... transport
// channels (one logical send, any number of receive)").
type ChannelRole int

const (
	RoleSend ChannelRole = iota
	RoleReceive
)

// ChannelState mirrors the teacher's network.ConnectionState lifecycle,
// generalized from a single TCP socket to any bound transport channel
// (UDP socket, Ethernet raw socket, or MQTT topic subscription).
type ChannelState int32

const (
	ChannelOpening ChannelState = iota
	ChannelOpen
	ChannelClosing
	ChannelClosed
)

// Channel is one bound transport resource. The real byte-level I/O is an
// external collaborator (spec.md §1); Channel exists so the control plane
// has something concrete to open, count and close, and so tests can
// inject inbound bytes via Deliver to drive the receive pipeline.
type Channel struct {
	id    string
	role  ChannelRole
	state atomic.Int32

	mu      sync.Mutex
	onData  func([]byte)
	closeCh chan struct{}

	closeOnce sync.Once
}

// NewChannel creates a channel in the Opening state.
func NewChannel(id string, role ChannelRole) *Channel {
	c := &Channel{id: id, role: role, closeCh: make(chan struct{})}
	c.state.Store(int32(ChannelOpening))
	return c
}

func (c *Channel) ID() string         { return c.id }
func (c *Channel) Role() ChannelRole  { return c.role }
func (c *Channel) State() ChannelState { return ChannelState(c.state.Load()) }

// MarkOpen transitions the channel to Open once the (external) bind
// completes successfully.
func (c *Channel) MarkOpen() { c.state.Store(int32(ChannelOpen)) }

// SetReceiveHandler installs the function invoked by Deliver. Only
// meaningful for RoleReceive channels.
func (c *Channel) SetReceiveHandler(fn func([]byte)) {
	c.mu.Lock()
	c.onData = fn
	c.mu.Unlock()
}

// Deliver simulates the socket-readable callback an event loop would
// invoke: it hands buf to the registered handler. Deliver takes no
// service mutex; the handler acquires it itself (the pubsub handler,
// PubSubManager.handleInbound, does), so the caller must not hold it.
func (c *Channel) Deliver(buf []byte) {
	c.mu.Lock()
	handler := c.onData
	c.mu.Unlock()
	if handler != nil {
		handler(buf)
	}
}

// Close transitions the channel to Closed and signals CloseChan, the
// event a Connection's delayed-delete protocol waits on before
// decrementing its open receive-channel count.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.state.Store(int32(ChannelClosing))
		close(c.closeCh)
		c.state.Store(int32(ChannelClosed))
	})
	return nil
}

// CloseChan is closed once Close has run.
func (c *Channel) CloseChan() <-chan struct{} { return c.closeCh }
