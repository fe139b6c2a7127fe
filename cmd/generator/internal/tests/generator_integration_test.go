package tests

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/SunYerim/StockOfGalaxy/cmd/generator/internal/generator"
	"github.com/SunYerim/StockOfGalaxy/cmd/generator/internal/testutils"
	"github.com/SunYerim/StockOfGalaxy/pkg/catalog"
	"github.com/SunYerim/StockOfGalaxy/pkg/rowstore"
)

func TestGenerator_ComponentWiring(t *testing.T) {
	// This test simulates the "Main" loop but with a fake output

	cat, err := catalog.ParseEntries([]string{"Samsung Electronics:005930", "SK hynix:000660"})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	logger := zap.NewNop()
	recorder := &testutils.TickRecorder{}

	// ManualClock.Sleep just advances time, so the loop runs as fast as CPU allows
	clock := &testutils.ManualClock{CurrentTime: time.Now()}
	walk := &testutils.FixedWalk{Index: 0, Value: 0.9}

	gen := generator.NewStockGenerator(logger, recorder, cat.Codes(), generator.KnownPrevClose(), walk, clock)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond) // Let it generate a few
		cancel()
	}()

	gen.Run(ctx)

	ticks, err := recorder.Ticks()
	if err != nil {
		t.Fatalf("Generated invalid JSON: %v", err)
	}
	if len(ticks) == 0 {
		t.Fatal("Generator failed to produce any messages in component test")
	}

	// the walk always picks index 0, so 005930 only
	for _, key := range recorder.Keys() {
		if key != "005930" {
			t.Errorf("Expected 005930 from the fixed walk, got %s", key)
		}
	}

	// every generated tick must reconcile onto a catalog row
	rows := rowstore.Seed(cat.Instruments())
	for _, update := range ticks {
		var ok bool
		if rows, ok = rowstore.Reconcile(rows, update); !ok {
			t.Fatalf("Tick for %s matched no row", update.Code)
		}
	}

	if !rows[0].Updated() || rows[1].Updated() {
		t.Errorf("Only 005930 should carry a price: %+v", rows)
	}
}
