package publisher

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"sjsage522/inventorywatch/internal/inventory"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDelta() inventory.Delta {
	return inventory.Delta{
		Added:   []inventory.Record{{VIN: "KNDJ23AU1L7000001", Year: "2020", Make: "KIA", Model: "SOUL"}},
		Removed: []inventory.Record{{VIN: "1FTFW1ET1EFA00001", Year: "2018", Make: "FORD", Model: "F-150"}},
		PriceChanges: []inventory.PriceChange{
			{VIN: "2HGFC2F59KH000002", OldPrice: 15000, NewPrice: 14500, Delta: -500},
		},
	}
}

func TestRedisPublisher(t *testing.T) {
	ctx := context.Background()

	// Test if Redis is available
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 0})
	defer client.Close()
	if _, err := client.Ping(ctx).Result(); err != nil {
		t.Skip("Redis is not available, skipping test")
	}

	prefix := "test_inventory_events"
	publisher := NewRedisPublisher("localhost:6379", 0, prefix, 1, 100)
	defer publisher.Close()
	client.Del(ctx, prefix+":0")

	n, err := PublishDelta(ctx, publisher, "2024-05-02", sampleDelta())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	msgs, err := client.XRange(ctx, prefix+":0", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	raw, err := base64.StdEncoding.DecodeString(msgs[2].Values[MessageKey].(string))
	require.NoError(t, err)
	var ev Event
	require.NoError(t, json.Unmarshal(raw, &ev))
	assert.Equal(t, EventPriceChange, ev.Type)
	assert.Equal(t, int64(-500), ev.PriceChange.Delta)

	require.NoError(t, publisher.TrimStreams(ctx))
	client.Del(ctx, prefix+":0")
}

func TestRedisPublisherUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// nothing listens on port 1
	publisher := NewRedisPublisher("127.0.0.1:1", 0, "test_inventory_events", 2, 100)
	defer publisher.Close()

	n, err := PublishDelta(ctx, publisher, "2024-05-02", sampleDelta())
	assert.Error(t, err)
	assert.Equal(t, 0, n)
	assert.Error(t, publisher.TrimStreams(ctx))
}

func TestEventsOrderAndVIN(t *testing.T) {
	events := Events("2024-05-02", sampleDelta())
	require.Len(t, events, 3)
	assert.Equal(t, EventAdded, events[0].Type)
	assert.Equal(t, "KNDJ23AU1L7000001", events[0].VIN())
	assert.Equal(t, EventRemoved, events[1].Type)
	assert.Equal(t, EventPriceChange, events[2].Type)
	assert.Equal(t, "2HGFC2F59KH000002", events[2].VIN())
	assert.Equal(t, "", Event{}.VIN())
}

func TestStreamIsStablePerVIN(t *testing.T) {
	p := NewRedisPublisher("localhost:6379", 0, "inventory", 10, 0)
	defer p.Close()

	s := p.Stream("2HGFC2F59KH000002")
	assert.Equal(t, s, p.Stream("2HGFC2F59KH000002"))
	assert.Regexp(t, `^inventory:[0-9]$`, s)
}

type recordingPublisher struct {
	messages [][]byte
	failAt   int
}

func (r *recordingPublisher) Publish(ctx context.Context, partition string, message []byte) error {
	if r.failAt > 0 && len(r.messages)+1 == r.failAt {
		return assert.AnError
	}
	r.messages = append(r.messages, message)
	return nil
}

func (r *recordingPublisher) TrimStreams(ctx context.Context) error { return nil }
func (r *recordingPublisher) Close() error                          { return nil }

func TestPublishDeltaStopsAtFirstFailure(t *testing.T) {
	p := &recordingPublisher{failAt: 2}
	n, err := PublishDelta(context.Background(), p, "2024-05-02", sampleDelta())
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, n)
}
