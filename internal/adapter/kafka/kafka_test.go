package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/air-quality-dashboard/internal/dashboard"
	"github.com/couchcryptid/air-quality-dashboard/internal/domain"
)

type recordingWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (r *recordingWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, msgs...)
	return nil
}

func (r *recordingWriter) Close() error {
	r.closed = true
	return nil
}

func testSnapshot() dashboard.Snapshot {
	return dashboard.Snapshot{
		ID:          "8f14e45f-ceea-4672-9d3c-0f2f5a1b9b11",
		GeneratedAt: time.Date(2024, 4, 26, 7, 10, 0, 0, time.UTC),
		Selector:    "county:臺中市",
		Observation: domain.Observation{
			County: "臺中市", SiteName: "西屯", AQI: 87,
			PM25: domain.Known(28), PM10: domain.Unknown(),
			Provenance: domain.ProvenancePartial,
		},
		Assessment: domain.Assessment{Tier: domain.TierCaution, Score: 60},
	}
}

func TestSerializeToMessage(t *testing.T) {
	snap := testSnapshot()

	msg, err := serializeToMessage(snap)
	require.NoError(t, err)

	assert.Equal(t, []byte(snap.ID), msg.Key)
	assert.Contains(t, string(msg.Value), `"selector":"county:臺中市"`)
	assert.Contains(t, string(msg.Value), `"pm10":null`)
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "provenance", msg.Headers[0].Key)
	assert.Equal(t, []byte("partial"), msg.Headers[0].Value)
	assert.Equal(t, "risk_tier", msg.Headers[1].Key)
	assert.Equal(t, []byte("caution"), msg.Headers[1].Value)
	assert.Equal(t, "generated_at", msg.Headers[2].Key)
	assert.Equal(t, []byte("2024-04-26T07:10:00Z"), msg.Headers[2].Value)

	var decoded dashboard.Snapshot
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, snap.ID, decoded.ID)
	assert.Equal(t, 87, decoded.Observation.AQI)
	assert.False(t, decoded.Observation.PM10.Known)
}

func TestWriter_Publish(t *testing.T) {
	rec := &recordingWriter{}
	w := &Writer{writer: rec, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	require.NoError(t, w.Publish(context.Background(), testSnapshot()))
	require.Len(t, rec.msgs, 1)
	assert.Equal(t, []byte(testSnapshot().ID), rec.msgs[0].Key)

	require.NoError(t, w.Close())
	assert.True(t, rec.closed)
}

func TestWriter_PublishError(t *testing.T) {
	errBroker := errors.New("leader not available")
	w := &Writer{writer: &recordingWriter{err: errBroker}, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	err := w.Publish(context.Background(), testSnapshot())
	require.ErrorIs(t, err, errBroker)
	assert.Contains(t, err.Error(), testSnapshot().ID)
}
