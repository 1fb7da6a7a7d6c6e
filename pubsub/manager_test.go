package pubsub

import (
	"testing"

	"github.com/axmq/uapubsub/ids"
	"github.com/axmq/uapubsub/transport"
	"github.com/axmq/uapubsub/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *PubSubManager {
	t.Helper()
	loop := transport.NewLoopEventLoop()
	t.Cleanup(func() { loop.Close() })
	return NewManager(ManagerOptions{EventLoop: loop})
}

func udpConfig(name, address string) ConnectionConfig {
	return ConnectionConfig{
		Name:                name,
		PublisherID:         wire.PublisherID{Type: wire.PublisherIDUInt16, UInt16: 7},
		TransportProfileURI: transport.ProfileUDPUADP,
		Address:             address,
	}
}

func TestManager_AddConnection_RequiresTransportURI(t *testing.T) {
	mgr := newTestManager(t)
	_, err := mgr.AddConnection(ConnectionConfig{Name: "c1"})
	require.NotNil(t, err)
}

func TestManager_AddConnection_AppliesDefaultBackoff(t *testing.T) {
	mgr := newTestManager(t)
	id, err := mgr.AddConnection(udpConfig("c1", "udp://host"))
	require.Nil(t, err)

	cfg, err := mgr.GetConnectionConfig(id)
	require.Nil(t, err)
	assert.Equal(t, DefaultReconnectBackoff(), cfg.Backoff)
}

func TestManager_ListConnections_NewestFirst(t *testing.T) {
	mgr := newTestManager(t)
	id1, err := mgr.AddConnection(udpConfig("c1", "udp://h1"))
	require.Nil(t, err)
	id2, err := mgr.AddConnection(udpConfig("c2", "udp://h2"))
	require.Nil(t, err)

	assert.Equal(t, []ids.ID{id2, id1}, mgr.ListConnections())
}

func TestManager_RemoveConnection_UnknownIsNotFound(t *testing.T) {
	mgr := newTestManager(t)
	err := mgr.RemoveConnection(9999)
	require.NotNil(t, err)
}

func TestManager_FindConnection(t *testing.T) {
	mgr := newTestManager(t)
	id, err := mgr.AddConnection(udpConfig("c1", "udp://h1"))
	require.Nil(t, err)

	conn, ok := mgr.FindConnection(id)
	require.True(t, ok)
	assert.Equal(t, id, conn.ID())

	_, ok = mgr.FindConnection(id + 1000)
	assert.False(t, ok)
}

// P4: every minted id is unique against the shared identifier space,
// regardless of which entity class mints it.
func TestManager_MintUniqueID_NeverCollides(t *testing.T) {
	mgr := newTestManager(t)
	seen := make(map[uint32]bool)
	for i := 0; i < 50; i++ {
		id, err := mgr.MintUniqueID()
		require.Nil(t, err)
		require.False(t, seen[uint32(id)], "minted id must not repeat")
		seen[uint32(id)] = true
	}
}

// P5: add_reader_group(cfg) -> id; get_config(id) == cfg up to applied
// defaults.
func TestManager_AddReaderGroup_RoundTrip(t *testing.T) {
	mgr := newTestManager(t)
	connID, err := mgr.AddConnection(udpConfig("c1", "udp://h1"))
	require.Nil(t, err)

	cfg := ReaderGroupConfig{Name: "g1"}
	groupID, err := mgr.AddReaderGroup(connID, cfg)
	require.Nil(t, err)

	got, err := mgr.GetReaderGroupConfig(groupID)
	require.Nil(t, err)
	assert.Equal(t, "g1", got.Name)
	assert.Equal(t, DefaultSubscribingIntervalMS, got.SubscribingIntervalMS)
	assert.Equal(t, DefaultSocketTimeoutMS, got.SocketTimeoutMS)
}

func TestManager_AddReaderGroup_UnknownParent(t *testing.T) {
	mgr := newTestManager(t)
	_, err := mgr.AddReaderGroup(1234, ReaderGroupConfig{Name: "g1"})
	require.NotNil(t, err)
}

func TestManager_AddDataSetReader_RoundTrip(t *testing.T) {
	mgr := newTestManager(t)
	connID, err := mgr.AddConnection(udpConfig("c1", "udp://h1"))
	require.Nil(t, err)
	groupID, err := mgr.AddReaderGroup(connID, ReaderGroupConfig{Name: "g1"})
	require.Nil(t, err)

	cfg := DataSetReaderConfig{Name: "r1", WriterGroupID: 1, DataSetWriterID: 42}
	readerID, err := mgr.AddDataSetReader(groupID, cfg)
	require.Nil(t, err)

	got, err := mgr.GetDataSetReaderConfig(readerID)
	require.Nil(t, err)
	assert.Equal(t, cfg.Name, got.Name)
	assert.Equal(t, cfg.DataSetWriterID, got.DataSetWriterID)
}
