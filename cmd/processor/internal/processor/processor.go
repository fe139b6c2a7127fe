package processor

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/SunYerim/StockOfGalaxy/pkg/config"
	"github.com/SunYerim/StockOfGalaxy/pkg/feed/redisfeed"
	"github.com/SunYerim/StockOfGalaxy/pkg/models"
)

// SnapshotTTL bounds how long a quote outlives its last tick.
const SnapshotTTL = 1 * time.Hour

type Processor struct {
	cfg        *config.Config
	logger     *zap.Logger
	cache      QuoteCache
	reader     TickReader
	numWorkers int
}

func NewProcessor(cfg *config.Config, logger *zap.Logger, cache QuoteCache, reader TickReader) *Processor {
	return &Processor{
		cfg:        cfg,
		logger:     logger,
		cache:      cache,
		reader:     reader,
		numWorkers: cfg.Processor.NumWorkers,
	}
}

func (p *Processor) Run(ctx context.Context) error {
	workerChans := make([]chan []byte, p.numWorkers)
	var wg sync.WaitGroup

	for i := 0; i < p.numWorkers; i++ {
		workerChans[i] = make(chan []byte, 100)
		wg.Add(1)
		go p.worker(i, workerChans[i], &wg)
	}

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		p.logger.Info("Processor Started", zap.Int("workers", p.numWorkers))
		for {
			m, err := p.reader.ReadMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				p.logger.Error("Kafka Read Error", zap.Error(err))
				if ctx.Err() != nil {
					return
				}
				continue
			}

			// Deterministic Sharding: Same code always goes to same worker
			workerID := getWorkerID(m.Key, p.numWorkers)

			select {
			case workerChans[workerID] <- m.Value:
			case <-ctx.Done():
				return
			default:
				p.logger.Warn("Dropping slow packet", zap.String("key", string(m.Key)), zap.Int("worker_id", workerID))
			}
		}
	}()

	<-ctx.Done()
	p.logger.Info("Shutdown signal received, stopping processor...")

	// no sends may race the close below
	<-readerDone
	for _, ch := range workerChans {
		close(ch)
	}
	p.logger.Info("Waiting for workers to drain...")
	wg.Wait()

	return nil
}

func (p *Processor) worker(id int, msgs <-chan []byte, wg *sync.WaitGroup) {
	defer wg.Done()
	ctx := context.Background()

	// Local state for deduplication (only works because of deterministic sharding)
	lastSeq := make(map[string]int64)

	for payload := range msgs {
		var update models.PriceMessage
		if err := json.Unmarshal(payload, &update); err != nil {
			p.logger.Error("JSON Unmarshal Error", zap.Error(err))
			continue
		}
		if update.Code == "" {
			p.logger.Warn("Dropping update without code")
			continue
		}

		if update.SeqID <= lastSeq[update.Code] {
			p.logger.Debug("Skipping duplicate update", zap.String("code", update.Code), zap.Int64("seq_id", update.SeqID))
			continue
		}

		// Atomic Update via Pipeline
		pipe := p.cache.Pipeline()
		pipe.Set(ctx, redisfeed.SnapshotKey(update.Code), payload, SnapshotTTL)
		pipe.Publish(ctx, redisfeed.Channel(update.Code), payload)

		_, err := pipe.Exec(ctx)
		if err != nil {
			p.logger.Error("Redis Pipeline Error", zap.Error(err), zap.String("code", update.Code))
		} else {
			p.logger.Debug("Processed", zap.String("code", update.Code), zap.Int("worker_id", id))
			lastSeq[update.Code] = update.SeqID
		}
	}
}

func getWorkerID(key []byte, numWorkers int) int {
	h := fnv.New32a()
	h.Write(key)
	return int(h.Sum32() % uint32(numWorkers))
}
