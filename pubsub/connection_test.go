package pubsub

import (
	"testing"
	"time"

	"github.com/axmq/uapubsub/status"
	"github.com/axmq/uapubsub/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnection_SetState_PreOperationalBindsChannels(t *testing.T) {
	mgr := newTestManager(t)
	id, err := mgr.AddConnection(udpConfig("c1", "udp://h1"))
	require.Nil(t, err)

	require.Nil(t, mgr.SetConnectionState(id, StatePreOperational))
	conn, ok := mgr.FindConnection(id)
	require.True(t, ok)
	assert.Equal(t, StatePreOperational, conn.State())
	assert.NotNil(t, conn.sendChannel)
	assert.Len(t, conn.recvChannels, 1)
}

func TestConnection_SetState_ConnectFailureDrivesError(t *testing.T) {
	mgr := newTestManager(t)
	// Missing Address: udpProfile.Bind rejects with InvalidArgument.
	id, err := mgr.AddConnection(ConnectionConfig{
		Name:                "c1",
		TransportProfileURI: transport.ProfileUDPUADP,
	})
	require.Nil(t, err)

	setErr := mgr.SetConnectionState(id, StateOperational)
	require.NotNil(t, setErr)

	conn, ok := mgr.FindConnection(id)
	require.True(t, ok)
	assert.Equal(t, StateError, conn.State())
}

// Scenario 4: disabling a Connection cascades to children, in order
// children-before-parent, with cause RESOURCE_UNAVAILABLE on the children
// and GOOD on the connection itself.
func TestConnection_Disable_CascadesChildrenBeforeParent(t *testing.T) {
	loop := transport.NewLoopEventLoop()
	t.Cleanup(func() { loop.Close() })

	var changes []StateChange
	mgr2 := NewManager(ManagerOptions{
		EventLoop:     loop,
		OnStateChange: func(c StateChange) { changes = append(changes, c) },
	})

	connID, err := mgr2.AddConnection(udpConfig("c1", "udp://h1"))
	require.Nil(t, err)
	require.Nil(t, mgr2.SetConnectionState(connID, StateOperational))

	groupID, err := mgr2.AddReaderGroup(connID, ReaderGroupConfig{Name: "g1"})
	require.Nil(t, err)
	require.Nil(t, mgr2.EnableReaderGroup(groupID))

	readerID, err := mgr2.AddDataSetReader(groupID, DataSetReaderConfig{Name: "r1"})
	require.Nil(t, err)

	changes = nil
	require.Nil(t, mgr2.SetConnectionState(connID, StateDisabled))

	// One notification per descendant (reader, then its group) plus one
	// for the connection itself, in strict children-before-parent order.
	require.Len(t, changes, 3)
	assert.Equal(t, readerID, changes[0].EntityID)
	assert.Equal(t, status.ResourceUnavailable, changes[0].Cause)
	assert.Equal(t, groupID, changes[1].EntityID)
	assert.Equal(t, status.ResourceUnavailable, changes[1].Cause)
	assert.Equal(t, connID, changes[2].EntityID)
	assert.Equal(t, status.OK, changes[2].Cause)

	group, ok := mgr2.groupByID[groupID]
	require.True(t, ok)
	assert.Equal(t, StateDisabled, group.state)

	reader, ok := mgr2.readerByID[readerID]
	require.True(t, ok)
	assert.Equal(t, StateDisabled, reader.state, "P1: reader state cascades to DISABLED with its group")
}

// spec.md boundary: any non-zero freeze counter on the connection blocks
// new ReaderGroup creation.
func TestConnection_AddReaderGroup_RejectedWhenFrozenSiblingExists(t *testing.T) {
	mgr := newTestManager(t)
	connID, err := mgr.AddConnection(udpConfig("c1", "udp://h1"))
	require.Nil(t, err)

	g1, err := mgr.AddReaderGroup(connID, ReaderGroupConfig{Name: "g1"})
	require.Nil(t, err)
	require.Nil(t, mgr.FreezeReaderGroup(g1))

	_, err = mgr.AddReaderGroup(connID, ReaderGroupConfig{Name: "g2"})
	require.NotNil(t, err)
	assert.True(t, status.Is(err, status.ConfigurationError))
}

func TestConnection_AddReaderGroup_BlockingSocketRequiresScheduler(t *testing.T) {
	mgr := newTestManager(t)
	connID, err := mgr.AddConnection(udpConfig("c1", "udp://h1"))
	require.Nil(t, err)

	_, err = mgr.AddReaderGroup(connID, ReaderGroupConfig{Name: "g1", EnableBlockingSocket: true})
	require.NotNil(t, err)
	assert.True(t, status.Is(err, status.NotSupported))
}

// P2: freeze counter equals the number of frozen groups on the
// connection.
func TestConnection_FreezeCounter_TracksFrozenGroups(t *testing.T) {
	mgr := newTestManager(t)
	connID, err := mgr.AddConnection(udpConfig("c1", "udp://h1"))
	require.Nil(t, err)
	g1, err := mgr.AddReaderGroup(connID, ReaderGroupConfig{Name: "g1"})
	require.Nil(t, err)

	conn, _ := mgr.FindConnection(connID)
	assert.Equal(t, 0, conn.freezeCounter)

	require.Nil(t, mgr.FreezeReaderGroup(g1))
	assert.Equal(t, 1, conn.freezeCounter)

	require.Nil(t, mgr.UnfreezeReaderGroup(g1))
	assert.Equal(t, 0, conn.freezeCounter)
}

// Scenario 5: removing a connection while a recv channel remains open
// unlinks it from the manager immediately, but final deallocation waits
// for the event loop to signal channel closure.
func TestConnection_Remove_DeferredUntilChannelsClose(t *testing.T) {
	mgr := newTestManager(t)
	connID, err := mgr.AddConnection(udpConfig("c1", "udp://h1"))
	require.Nil(t, err)
	require.Nil(t, mgr.SetConnectionState(connID, StateOperational))

	conn, ok := mgr.FindConnection(connID)
	require.True(t, ok)
	recvCh := conn.recvChannels[0]

	require.Nil(t, mgr.RemoveConnection(connID))

	_, stillFound := mgr.FindConnection(connID)
	assert.False(t, stillFound, "connection must be unreachable via the manager immediately")

	mgr.mu.Lock()
	_, stillRegistered := mgr.connByID[connID]
	mgr.mu.Unlock()
	assert.False(t, stillRegistered)

	// Simulate the event loop's close callback on the lingering recv
	// channel; the delayed-deletion watcher should then release the id.
	require.NoError(t, recvCh.Close())

	require.Eventually(t, func() bool {
		mgr.mu.Lock()
		defer mgr.mu.Unlock()
		return !mgr.registry.Contains(connID)
	}, time.Second, time.Millisecond, "id must be released once channels are fully closed")
}
