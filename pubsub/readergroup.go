package pubsub

import (
	"time"

	"github.com/axmq/uapubsub/ids"
	"github.com/axmq/uapubsub/security"
	"github.com/axmq/uapubsub/status"
	"github.com/axmq/uapubsub/transport"
)

// ReaderGroup groups DataSetReaders sharing a subscription cadence and,
// optionally, a security context (spec.md §4.3).
type ReaderGroup struct {
	id     ids.ID
	conn   *Connection
	config ReaderGroupConfig
	state  State

	readers []*DataSetReader // newest-first

	keyStorage *security.KeyStorage

	tickID         transport.CallbackID
	tickRegistered bool

	recvChannels []*transport.Channel

	frozen     bool
	deleteFlag bool
}

// ID returns the group's unique identifier.
func (g *ReaderGroup) ID() ids.ID { return g.id }

// State returns the group's current lifecycle state.
func (g *ReaderGroup) State() State { return g.state }

// ConnectionID returns the parent connection's id.
func (g *ReaderGroup) ConnectionID() ids.ID { return g.conn.id }

// ReaderIDs returns the ids of every child DataSetReader, newest first.
func (g *ReaderGroup) ReaderIDs() []ids.ID {
	out := make([]ids.ID, len(g.readers))
	for i, r := range g.readers {
		out[i] = r.id
	}
	return out
}

// cascadeFromParent is invoked by the parent Connection when it enters
// DISABLED/PAUSED/ERROR: it drives this group (and transitively its
// readers) to the same state with cause ResourceUnavailable, without
// re-running the parent-readiness checks setState applies to
// user-initiated transitions (spec.md §4.2 cascading rule). Readers are
// notified before the group itself, so the children-before-parent
// ordering of spec.md §8 scenario 4 holds recursively at every level,
// not just at the connection's own notify call.
func (g *ReaderGroup) cascadeFromParent(target State) {
	if g.state == target {
		return
	}
	g.applyState(target)
	for _, r := range g.readers {
		r.setState(target, status.ResourceUnavailable)
	}
	g.conn.manager.notify(StateChange{EntityID: g.id, State: target, Cause: status.ResourceUnavailable})
}

// applyState performs the bookkeeping side effects of entering a state
// (unregistering the subscribe tick on DISABLED, PAUSED or ERROR) and
// records the new state, without emitting the
// notify/cascade a user-initiated setState call performs; shared by
// setState and cascadeFromParent.
func (g *ReaderGroup) applyState(target State) {
	switch target {
	case StateDisabled, StatePaused, StateError:
		g.unregisterTick()
	}
	g.state = target
}

// setState implements ReaderGroup.set_state for user-initiated
// transitions (enable/disable map onto this), per spec.md §4.3's
// per-state rules.
func (g *ReaderGroup) setState(target State) *status.Error {
	switch target {
	case StateDisabled:
		g.unregisterTick()
		g.applyState(StateDisabled)
		for _, r := range g.readers {
			r.setState(StateDisabled, status.OK)
		}
		g.conn.manager.notify(StateChange{EntityID: g.id, State: StateDisabled, Cause: status.OK})
		return nil

	case StatePaused:
		if g.state != StateDisabled {
			return status.New(status.NotSupported, "pubsub: PAUSED is only reachable from DISABLED")
		}
		g.applyState(StatePaused)
		g.conn.manager.notify(StateChange{EntityID: g.id, State: StatePaused, Cause: status.OK})
		return nil

	case StatePreOperational:
		if g.conn.state != StatePreOperational && g.conn.state != StateOperational {
			return status.New(status.ResourceUnavailable, "pubsub: parent connection is not PRE or OPERATIONAL")
		}
		g.registerTick()
		g.applyState(StatePreOperational)
		g.conn.manager.notify(StateChange{EntityID: g.id, State: StatePreOperational, Cause: status.OK})
		return nil

	case StateOperational:
		if g.state != StatePreOperational {
			return status.New(status.NotSupported, "pubsub: OPERATIONAL is only reachable from PREOPERATIONAL")
		}
		g.applyState(StateOperational)
		for _, r := range g.readers {
			r.setState(StateOperational, status.OK)
		}
		g.conn.manager.notify(StateChange{EntityID: g.id, State: StateOperational, Cause: status.OK})
		return nil

	case StateError:
		g.unregisterTick()
		g.applyState(StateError)
		for _, r := range g.readers {
			r.setState(StateError, status.ConnectionClosed)
		}
		g.conn.manager.notify(StateChange{EntityID: g.id, State: StateError, Cause: status.ConnectionClosed})
		return nil
	}
	return status.New(status.InternalError, "pubsub: unreachable reader group state")
}

func (g *ReaderGroup) registerTick() {
	if g.tickRegistered || g.conn.loop == nil {
		return
	}
	interval := time.Duration(g.config.SubscribingIntervalMS) * time.Millisecond
	g.tickID = g.conn.loop.AddCyclicCallback(interval, g.subscribeTick)
	g.tickRegistered = true
}

func (g *ReaderGroup) unregisterTick() {
	if !g.tickRegistered || g.conn.loop == nil {
		return
	}
	g.conn.loop.RemoveCyclicCallback(g.tickID)
	g.tickRegistered = false
}

// subscribeTick is the pull-mode callback registered on the event loop
// (spec.md §4.3 "Subscribe callback"). It acquires the service mutex
// itself since it runs off the event loop, not an RPC caller.
func (g *ReaderGroup) subscribeTick() {
	mgr := g.conn.manager
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	conn, ok := mgr.connByID[g.conn.id]
	if !ok || conn != g.conn {
		g.setState(StateError)
		return
	}
	// Pull-mode transports are represented here only through the
	// send/recv Channel abstraction; a concrete pull transport would
	// drain buffered datagrams from its channel and call process() per
	// datagram. Channel delivery (push transports) reaches the same
	// pipeline via Connection.connect's registered receive handler.
}

// freeze implements spec.md §4.3's freezing / real-time preparation.
func (g *ReaderGroup) freeze() *status.Error {
	if g.config.RTLevel == RTLevelFixedSize {
		if err := g.validateFixedSizeGroup(); err != nil {
			return err
		}
	}

	g.frozen = true
	g.conn.freezeCounter++
	for _, r := range g.readers {
		r.freeze()
	}
	return nil
}

// validateFixedSizeGroup implements spec.md §4.3 freeze steps 1-4 for
// RTLevelFixedSize groups.
func (g *ReaderGroup) validateFixedSizeGroup() *status.Error {
	if len(g.readers) != 1 {
		return status.New(status.NotSupported, "pubsub: FIXED_SIZE requires exactly one DataSetReader")
	}
	if g.config.Encoding != EncodingUADP {
		return status.New(status.NotSupported, "pubsub: FIXED_SIZE requires UADP encoding")
	}
	reader := g.readers[0]
	if !reader.config.PublisherID.Type.IsFixedSize() {
		return status.New(status.NotSupported, "pubsub: FIXED_SIZE requires a fixed-size PublisherId type")
	}
	return reader.validateFixedSize()
}

// unfreeze implements spec.md §4.3's unfreeze operation.
func (g *ReaderGroup) unfreeze() {
	if !g.frozen {
		return
	}
	g.frozen = false
	g.conn.freezeCounter--
	for _, r := range g.readers {
		r.unfreeze()
	}
}

// setEncryptionKeys implements spec.md §4.3's encryption key
// installation.
func (g *ReaderGroup) setEncryptionKeys(tokenID uint32, signingKey, encryptingKey, nonce []byte) *status.Error {
	if g.config.Encoding == EncodingJSON {
		return status.New(status.InternalError, "pubsub: message security is only defined for UADP")
	}
	if g.config.SecurityGroupID == "" || g.keyStorage == nil {
		return status.New(status.InternalError, "pubsub: no security policy configured for this reader group")
	}

	// security.PolicyContext.UpdateKeys detects the token change and resets
	// its own nonce sequence counter to 1; this call just passes the new
	// nonce bytes through.
	return g.conn.manager.keys.InstallKeys(g.config.SecurityGroupID, tokenID, signingKey, encryptingKey, nonce)
}

// addReader implements DataSetReader creation under this group.
func (g *ReaderGroup) addReader(cfg DataSetReaderConfig) (ids.ID, *status.Error) {
	if g.frozen {
		return 0, status.New(status.ConfigurationError, "pubsub: cannot add a reader to a frozen reader group")
	}

	id, err := g.conn.manager.mintID()
	if err != nil {
		return 0, err
	}

	r := &DataSetReader{id: id, group: g, config: cfg, state: StateDisabled}
	g.readers = append([]*DataSetReader{r}, g.readers...)
	g.conn.manager.readerByID[id] = r
	return id, nil
}

// removeReader implements DataSetReader removal.
func (g *ReaderGroup) removeReader(r *DataSetReader) *status.Error {
	delete(g.conn.manager.readerByID, r.id)
	for i, rr := range g.readers {
		if rr == r {
			g.readers = append(g.readers[:i], g.readers[i+1:]...)
			break
		}
	}
	g.conn.manager.releaseID(r.id)
	return nil
}

// doRemove implements the non-forced removal path of spec.md §4.3's
// "Remove": stop the subscribe callback, remove all readers, tear down
// the security context, detach KeyStorage, unlink from parent, and defer
// final removal until any owned receive channels close.
func (g *ReaderGroup) doRemove() *status.Error {
	g.unregisterTick()
	for _, r := range append([]*DataSetReader(nil), g.readers...) {
		g.removeReader(r)
	}
	if g.config.SecurityGroupID != "" {
		g.conn.manager.keys.Detach(g.config.SecurityGroupID)
		g.keyStorage = nil
	}

	g.conn.unlinkReaderGroup(g)
	g.deleteFlag = true

	if len(g.recvChannels) == 0 {
		g.conn.manager.releaseID(g.id)
		return nil
	}
	for _, ch := range g.recvChannels {
		ch := ch
		go g.watchRecvChannelClose(ch)
	}
	return nil
}

// forceRemove is used by Connection.remove's cascade: it bypasses the
// frozen-rejection doRemove would otherwise apply, since the parent is
// being torn down entirely.
func (g *ReaderGroup) forceRemove() {
	g.frozen = false
	g.doRemove()
}

func (g *ReaderGroup) watchRecvChannelClose(ch *transport.Channel) {
	<-ch.CloseChan()
	g.conn.manager.mu.Lock()
	defer g.conn.manager.mu.Unlock()
	for i, rc := range g.recvChannels {
		if rc == ch {
			g.recvChannels = append(g.recvChannels[:i], g.recvChannels[i+1:]...)
			break
		}
	}
	if g.deleteFlag && len(g.recvChannels) == 0 {
		g.conn.manager.releaseID(g.id)
	}
}
