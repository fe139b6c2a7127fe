// Package board ties one row store to one feed subscription for the lifetime
// of a mounted view.
package board

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/SunYerim/StockOfGalaxy/pkg/catalog"
	"github.com/SunYerim/StockOfGalaxy/pkg/feed"
	"github.com/SunYerim/StockOfGalaxy/pkg/models"
	"github.com/SunYerim/StockOfGalaxy/pkg/rowstore"
)

var (
	ErrNoInstruments  = errors.New("board: no catalog instrument matches the requested codes")
	ErrAlreadyMounted = errors.New("board: already mounted")
	ErrUnmounted      = errors.New("board: unmounted")
)

type Board struct {
	source feed.Source
	store  *rowstore.Store
	logger *zap.Logger

	mu        sync.Mutex
	handle    feed.Handle
	mounted   bool
	unmounted bool
}

// New builds a board over the catalog instruments named by codes; nil codes
// means the whole catalog. Rows start empty unless Carry seeds them.
func New(cat *catalog.Catalog, codes []string, source feed.Source, logger *zap.Logger) (*Board, error) {
	instruments := cat.Instruments()
	if codes != nil {
		instruments = cat.Subset(codes)
	}
	if len(instruments) == 0 {
		return nil, ErrNoInstruments
	}

	return &Board{
		source: source,
		store:  rowstore.NewStore(instruments),
		logger: logger,
	}, nil
}

// Carry keeps known prices from the view this board replaces. Call it before
// Mount; rows for codes outside this board are ignored.
func (b *Board) Carry(prev []models.DisplayRow) int {
	return b.store.Restore(prev)
}

// Mount opens the feed for the board's codes.
func (b *Board) Mount(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.unmounted {
		return ErrUnmounted
	}
	if b.mounted {
		return ErrAlreadyMounted
	}

	h, err := b.source.Start(ctx, b.store.Codes(), b.apply)
	if err != nil {
		return err
	}
	b.handle = h
	b.mounted = true
	b.logger.Debug("Board mounted", zap.Strings("codes", b.store.Codes()))
	return nil
}

func (b *Board) apply(msg models.PriceMessage) {
	if !b.store.Apply(msg) {
		b.logger.Debug("Ignoring update for unknown code", zap.String("code", msg.Code))
	}
}

// Unmount closes the feed and then the store. Safe to call more than once and
// on a board that was never mounted.
func (b *Board) Unmount() error {
	b.mu.Lock()
	if b.unmounted {
		b.mu.Unlock()
		return nil
	}
	b.unmounted = true
	h := b.handle
	b.handle = nil
	b.mu.Unlock()

	var err error
	if h != nil {
		err = h.Close()
	}
	b.store.Close()
	b.logger.Debug("Board unmounted")
	return err
}

func (b *Board) Snapshot() []models.DisplayRow { return b.store.Snapshot() }

func (b *Board) Codes() []string { return b.store.Codes() }

// Changed signals after rows changed and is closed on Unmount.
func (b *Board) Changed() <-chan struct{} { return b.store.Changed() }
