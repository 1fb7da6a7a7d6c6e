package pubsub

import (
	"testing"

	"github.com/axmq/uapubsub/message"
	"github.com/axmq/uapubsub/telemetry"
	"github.com/axmq/uapubsub/transport"
	"github.com/axmq/uapubsub/wire"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildUnsecuredFrame(t *testing.T, h *message.Header, field func(w *wire.Writer)) []byte {
	t.Helper()
	w := wire.NewWriter(64)
	require.NoError(t, message.EncodeHeader(w, h))
	field(w)
	return w.Bytes()
}

// Scenario 1: a well-formed frame matching (7,1,42) carrying Int32 99
// updates the reader's target variable and promotes reader+group to
// OPERATIONAL.
func TestPipeline_Dispatch_UpdatesTargetVariableAndPromotes(t *testing.T) {
	mgr, connID := setupOperationalConnection(t)
	groupID, err := mgr.AddReaderGroup(connID, ReaderGroupConfig{Name: "g1", SubscribingIntervalMS: 10})
	require.Nil(t, err)
	require.Nil(t, mgr.EnableReaderGroup(groupID))

	var got message.FieldValue
	readerID, err := mgr.AddDataSetReader(groupID, DataSetReaderConfig{
		Name:            "r1",
		PublisherID:     wire.PublisherID{Type: wire.PublisherIDUInt16, UInt16: 7},
		WriterGroupID:   1,
		DataSetWriterID: 42,
		Fields:          []message.FieldSchema{{Name: "value", Type: message.FieldInt32}},
		TargetVariables: []TargetVariable{
			{FieldName: "value", Write: func(v message.FieldValue) error { got = v; return nil }},
		},
	})
	require.Nil(t, err)

	h := &message.Header{
		Version:          1,
		PublisherID:      wire.PublisherID{Type: wire.PublisherIDUInt16, UInt16: 7},
		HasGroup:         true,
		Group:            message.GroupHeader{WriterGroupID: 1},
		DataSetWriterIDs: []uint16{42},
	}
	buf := buildUnsecuredFrame(t, h, func(w *wire.Writer) { w.Int32(99) })

	conn, ok := mgr.FindConnection(connID)
	require.True(t, ok)
	require.Len(t, conn.recvChannels, 1)
	conn.recvChannels[0].Deliver(buf)

	assert.Equal(t, int32(99), got.I32)

	reader := mgr.readerByID[readerID]
	assert.Equal(t, StateOperational, reader.state)
	group := mgr.groupByID[groupID]
	assert.Equal(t, StateOperational, group.state)
}

// Scenario 2: a frame whose WriterGroupId doesn't match any reader is
// silently dropped; no variable update, connection stays OPERATIONAL, no
// error surfaces.
func TestPipeline_Dispatch_WriterGroupMismatchIsSilentNoop(t *testing.T) {
	mgr, connID := setupOperationalConnection(t)
	groupID, err := mgr.AddReaderGroup(connID, ReaderGroupConfig{Name: "g1"})
	require.Nil(t, err)
	require.Nil(t, mgr.EnableReaderGroup(groupID))

	var called bool
	_, err = mgr.AddDataSetReader(groupID, DataSetReaderConfig{
		Name:            "r1",
		PublisherID:     wire.PublisherID{Type: wire.PublisherIDUInt16, UInt16: 7},
		WriterGroupID:   1,
		DataSetWriterID: 42,
		Fields:          []message.FieldSchema{{Name: "value", Type: message.FieldInt32}},
		TargetVariables: []TargetVariable{
			{FieldName: "value", Write: func(message.FieldValue) error { called = true; return nil }},
		},
	})
	require.Nil(t, err)

	h := &message.Header{
		Version:          1,
		PublisherID:      wire.PublisherID{Type: wire.PublisherIDUInt16, UInt16: 7},
		HasGroup:         true,
		Group:            message.GroupHeader{WriterGroupID: 2}, // mismatched
		DataSetWriterIDs: []uint16{42},
	}
	buf := buildUnsecuredFrame(t, h, func(w *wire.Writer) { w.Int32(99) })

	conn, _ := mgr.FindConnection(connID)
	conn.recvChannels[0].Deliver(buf)

	assert.False(t, called)
	assert.Equal(t, StateOperational, conn.State())
}

// Edge case (a): zero readers on a connection still decodes and discards
// without error.
func TestPipeline_Dispatch_ZeroReadersDecodesAndDiscards(t *testing.T) {
	mgr, connID := setupOperationalConnection(t)

	h := &message.Header{
		Version:          1,
		PublisherID:      wire.PublisherID{Type: wire.PublisherIDUInt16, UInt16: 7},
		DataSetWriterIDs: []uint16{42},
	}
	buf := buildUnsecuredFrame(t, h, func(w *wire.Writer) {
		w.Uint32(0) // empty length-prefixed body for the unknown writer
	})

	conn, _ := mgr.FindConnection(connID)
	assert.NotPanics(t, func() { conn.recvChannels[0].Deliver(buf) })
}

// Boundary: decoding a datagram with no matching reader consumes the
// buffer fully without error, as message.DecodeDataSetMessages's
// unknown-writer skip path guarantees.
func TestPipeline_Dispatch_NoMatchingReaderConsumesBuffer(t *testing.T) {
	mgr, connID := setupOperationalConnection(t)
	groupID, err := mgr.AddReaderGroup(connID, ReaderGroupConfig{Name: "g1"})
	require.Nil(t, err)
	require.Nil(t, mgr.EnableReaderGroup(groupID))
	_, err = mgr.AddDataSetReader(groupID, DataSetReaderConfig{
		Name:            "r1",
		PublisherID:     wire.PublisherID{Type: wire.PublisherIDUInt16, UInt16: 99}, // never matches
		DataSetWriterID: 1,
	})
	require.Nil(t, err)

	h := &message.Header{
		Version:          1,
		PublisherID:      wire.PublisherID{Type: wire.PublisherIDUInt16, UInt16: 7},
		DataSetWriterIDs: []uint16{55},
	}
	buf := buildUnsecuredFrame(t, h, func(w *wire.Writer) {
		w.Uint32(4)
		w.Raw([]byte{1, 2, 3, 4})
	})

	conn, _ := mgr.FindConnection(connID)
	assert.NotPanics(t, func() { conn.recvChannels[0].Deliver(buf) })
}

func TestPipeline_DecodeError_RecordsMetricsAndTelemetry(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	loop := transport.NewLoopEventLoop()
	t.Cleanup(func() { loop.Close() })

	mgr := NewManager(ManagerOptions{EventLoop: loop, Metrics: metrics})
	connID, err := mgr.AddConnection(udpConfig("c1", "udp://h1"))
	require.Nil(t, err)
	require.Nil(t, mgr.SetConnectionState(connID, StateOperational))

	conn, _ := mgr.FindConnection(connID)
	// Truncated buffer: version byte only, no flags byte.
	conn.recvChannels[0].Deliver([]byte{1})

	assert.Equal(t, float64(1), sumCounterVec(t, metrics.DecodeErrors))
}

func sumCounterVec(t *testing.T, cv *prometheus.CounterVec) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 16)
	cv.Collect(ch)
	close(ch)
	var total float64
	for m := range ch {
		var pb dto.Metric
		require.NoError(t, m.Write(&pb))
		total += pb.GetCounter().GetValue()
	}
	return total
}
