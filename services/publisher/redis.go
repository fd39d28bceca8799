package publisher

import (
	"context"
	"encoding/base64"
	"hash/fnv"
	"strconv"

	"sjsage522/inventorywatch/logger"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher implements Publisher using Redis streams
type RedisPublisher struct {
	client          *redis.Client
	streamPrefix    string
	streamCount     int
	streamMaxLength int
	log             *logger.Logger
}

// NewRedisPublisher creates a new Redis publisher
func NewRedisPublisher(addr string, db int, streamPrefix string, streamCount int, streamMaxLength int) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if streamCount <= 0 {
		streamCount = 1
	}

	return &RedisPublisher{
		client:          client,
		streamPrefix:    streamPrefix,
		streamCount:     streamCount,
		streamMaxLength: streamMaxLength,
		log:             logger.ForPublisher(),
	}
}

// Ping checks the connection
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Stream returns the stream a partition key maps to. Events of one vehicle
// always land on the same stream, so consumers see them in order.
// With streamCount 10 the streams are <prefix>:0 ~ <prefix>:9
func (p *RedisPublisher) Stream(partition string) string {
	h := fnv.New32a()
	h.Write([]byte(partition))
	return p.streamPrefix + ":" + strconv.Itoa(int(h.Sum32()%uint32(p.streamCount)))
}

// Publish publishes a message to a Redis stream
// The message is base64 encoded before publishing
func (p *RedisPublisher) Publish(ctx context.Context, partition string, message []byte) error {
	encodedMessage := base64.StdEncoding.EncodeToString(message)
	stream := p.Stream(partition)

	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			MessageKey: encodedMessage,
		},
	}).Err()
	if err != nil {
		p.log.Warn().Err(err).Str("stream", stream).Str("partition", partition).Msg("XADD failed")
	}
	return err
}

// TrimStreams trims all streams to the configured maximum length
func (p *RedisPublisher) TrimStreams(ctx context.Context) error {
	if p.streamMaxLength <= 0 {
		return nil
	}
	for i := 0; i < p.streamCount; i++ {
		stream := p.streamPrefix + ":" + strconv.Itoa(i)
		if err := p.client.XTrimMaxLen(ctx, stream, int64(p.streamMaxLength)).Err(); err != nil {
			p.log.Warn().Err(err).Str("stream", stream).Msg("XTRIM failed")
			return err
		}
	}
	return nil
}

// Close closes the Redis connection
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
