package processor

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

// TickReader is the tick stream from the generator, keyed by instrument code
// so one code always lands on one partition.
type TickReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// QuoteCache takes every accepted tick twice in one pipeline: as the snapshot
// under redisfeed.SnapshotKey and as a publish on redisfeed.Channel.
type QuoteCache interface {
	Pipeline() redis.Pipeliner
}
