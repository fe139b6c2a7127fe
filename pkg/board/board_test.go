package board_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SunYerim/StockOfGalaxy/pkg/board"
	"github.com/SunYerim/StockOfGalaxy/pkg/catalog"
	"github.com/SunYerim/StockOfGalaxy/pkg/feed"
	"github.com/SunYerim/StockOfGalaxy/pkg/models"
)

// manualSource lets the test push frames synchronously through the real
// Subscription guard.
type manualSource struct {
	mu    sync.Mutex
	subs  []*feed.Subscription
	codes [][]string
	err   error
}

func (m *manualSource) Start(ctx context.Context, codes []string, onMessage func(models.PriceMessage)) (feed.Handle, error) {
	if m.err != nil {
		return nil, m.err
	}
	sub, subCtx := feed.NewSubscription(ctx, onMessage)
	sub.Go(subCtx, func(ctx context.Context) { <-ctx.Done() })

	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, sub)
	m.codes = append(m.codes, codes)
	return sub, nil
}

func (m *manualSource) push(msg models.PriceMessage) bool {
	m.mu.Lock()
	sub := m.subs[len(m.subs)-1]
	m.mu.Unlock()
	return sub.Deliver(msg)
}

func testCatalog(t *testing.T) *catalog.Catalog {
	c, err := catalog.ParseEntries([]string{"Acme:A1", "Beta:B2"})
	require.NoError(t, err)
	return c
}

func quote(code string, price, change, rate string) models.PriceMessage {
	return models.PriceMessage{
		Code:         code,
		CurrentPrice: decimal.RequireFromString(price),
		ChangeAmount: decimal.RequireFromString(change),
		ChangeRate:   decimal.RequireFromString(rate),
	}
}

func TestBoard_MountApplyUnmount(t *testing.T) {
	src := &manualSource{}
	b, err := board.New(testCatalog(t), nil, src, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, b.Mount(context.Background()))
	assert.Equal(t, [][]string{{"A1", "B2"}}, src.codes)

	assert.True(t, src.push(quote("B2", "100", "5", "5.2")))
	<-b.Changed()

	rows := b.Snapshot()
	require.Len(t, rows, 2)
	assert.False(t, rows[0].Updated())
	assert.True(t, rows[1].CurrentPrice.Decimal.Equal(decimal.NewFromInt(100)))
	assert.True(t, rows[1].ChangeRate.Decimal.Equal(decimal.RequireFromString("5.2")))

	require.NoError(t, b.Unmount())
	require.NoError(t, b.Unmount())

	// the transport tries one more synchronous delivery after teardown
	assert.False(t, src.push(quote("A1", "1", "1", "1")))
	assert.False(t, b.Snapshot()[0].Updated())

	_, open := <-b.Changed()
	assert.False(t, open)
}

func TestBoard_SubsetFollowsCatalogOrder(t *testing.T) {
	src := &manualSource{}
	b, err := board.New(testCatalog(t), []string{"B2", "A1", "ZZ"}, src, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "B2"}, b.Codes())

	_, err = board.New(testCatalog(t), []string{"ZZ"}, src, zap.NewNop())
	assert.ErrorIs(t, err, board.ErrNoInstruments)
}

func TestBoard_FreshRowsPerMount(t *testing.T) {
	src := &manualSource{}
	cat := testCatalog(t)

	first, _ := board.New(cat, nil, src, zap.NewNop())
	require.NoError(t, first.Mount(context.Background()))
	src.push(quote("A1", "10", "1", "11.1"))
	require.NoError(t, first.Unmount())

	second, _ := board.New(cat, nil, src, zap.NewNop())
	require.NoError(t, second.Mount(context.Background()))
	defer second.Unmount()

	for _, r := range second.Snapshot() {
		assert.False(t, r.Updated(), "a new view must not inherit rows from an old one")
	}
}

func TestBoard_MountErrors(t *testing.T) {
	src := &manualSource{err: errors.New("boom")}
	b, _ := board.New(testCatalog(t), nil, src, zap.NewNop())
	assert.Error(t, b.Mount(context.Background()))
	assert.NoError(t, b.Unmount(), "unmount of a never-mounted board is a no-op")
	assert.ErrorIs(t, b.Mount(context.Background()), board.ErrUnmounted)

	ok := &manualSource{}
	b2, _ := board.New(testCatalog(t), nil, ok, zap.NewNop())
	require.NoError(t, b2.Mount(context.Background()))
	defer b2.Unmount()
	assert.ErrorIs(t, b2.Mount(context.Background()), board.ErrAlreadyMounted)
}

func TestBoard_UnknownCodeIgnored(t *testing.T) {
	src := &manualSource{}
	b, _ := board.New(testCatalog(t), nil, src, zap.NewNop())
	require.NoError(t, b.Mount(context.Background()))
	defer b.Unmount()

	before := b.Snapshot()
	src.push(quote("ZZ", "1", "1", "1"))
	after := b.Snapshot()
	for i := range before {
		assert.True(t, before[i].Equal(after[i]))
	}
}

func TestBoard_CarryKeepsKnownPrices(t *testing.T) {
	src := &manualSource{}
	old, err := board.New(testCatalog(t), []string{"A1"}, src, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, old.Mount(context.Background()))
	require.True(t, src.push(quote("A1", "70100", "300", "0.43")))
	<-old.Changed()

	next, err := board.New(testCatalog(t), []string{"A1", "B2"}, src, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1, next.Carry(old.Snapshot()))
	require.NoError(t, next.Mount(context.Background()))
	require.NoError(t, old.Unmount())
	defer next.Unmount()

	rows := next.Snapshot()
	require.Len(t, rows, 2)
	assert.True(t, rows[0].CurrentPrice.Decimal.Equal(decimal.NewFromInt(70100)))
	assert.Equal(t, "Acme", rows[0].Name)
	assert.False(t, rows[1].Updated())
}
