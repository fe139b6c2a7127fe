package generator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/SunYerim/StockOfGalaxy/pkg/models"
)

// MaxStep is the largest single-tick move as a fraction of the last price.
var MaxStep = decimal.RequireFromString("0.01")

var hundred = decimal.NewFromInt(100)

// KIS sign codes for change direction.
const (
	SignUp        = "2"
	SignUnchanged = "3"
	SignDown      = "5"
)

type StockGenerator struct {
	logger      *zap.Logger
	writer      TickWriter
	codes       []string
	prevClose   map[string]decimal.Decimal
	last        map[string]decimal.Decimal
	walk        Walk
	clock       Clock
	seqCounters map[string]int64
}

// NewStockGenerator walks every code from its previous close. Codes missing
// from prevClose start at DefaultPrevClose.
func NewStockGenerator(
	logger *zap.Logger,
	writer TickWriter,
	codes []string,
	prevClose map[string]decimal.Decimal,
	walk Walk,
	clock Clock,
) *StockGenerator {
	closes := make(map[string]decimal.Decimal, len(codes))
	last := make(map[string]decimal.Decimal, len(codes))
	for _, code := range codes {
		pc, ok := prevClose[code]
		if !ok {
			pc = DefaultPrevClose
		}
		closes[code] = pc
		last[code] = pc
	}

	return &StockGenerator{
		logger:      logger,
		writer:      writer,
		codes:       codes,
		prevClose:   closes,
		last:        last,
		walk:        walk,
		clock:       clock,
		seqCounters: make(map[string]int64),
	}
}

func (sg *StockGenerator) Run(ctx context.Context) {
	sg.logger.Info("Generator Started", zap.Strings("codes", sg.codes))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if len(sg.codes) == 0 {
				sg.clock.Sleep(1 * time.Second)
				continue
			}

			update := sg.Next()

			payload, err := json.Marshal(update)
			if err != nil {
				sg.logger.Error("JSON Marshal Error", zap.Error(err))
				continue
			}

			err = sg.writer.WriteMessages(ctx, kafka.Message{
				Key:   []byte(update.Code), // Key ensures partition ordering
				Value: payload,
			})

			if err != nil {
				sg.logger.Error("Kafka Write Error", zap.Error(err))
			} else {
				sg.logger.Debug("Sent update", zap.String("code", update.Code), zap.Stringer("price", update.CurrentPrice))
			}

			sg.clock.Sleep(100 * time.Millisecond)
		}
	}
}

// Next moves one random code by up to MaxStep and returns its quote against
// the previous close.
func (sg *StockGenerator) Next() models.PriceMessage {
	code := sg.codes[sg.walk.Pick(len(sg.codes))]

	step := decimal.NewFromFloat(sg.walk.Draw()*2 - 1).Mul(MaxStep)
	price := sg.last[code].Mul(decimal.NewFromInt(1).Add(step)).Round(0)
	if price.Sign() <= 0 {
		price = decimal.NewFromInt(1)
	}
	sg.last[code] = price
	sg.seqCounters[code]++

	pc := sg.prevClose[code]
	change := price.Sub(pc)
	rate := change.Div(pc).Mul(hundred).Round(2)

	return models.PriceMessage{
		Code:         code,
		CurrentPrice: price,
		ChangeAmount: change,
		ChangeRate:   rate,
		Sign:         sign(change),
		Timestamp:    sg.clock.Now().UnixMicro(),
		SeqID:        sg.seqCounters[code],
	}
}

func sign(change decimal.Decimal) string {
	switch change.Sign() {
	case 1:
		return SignUp
	case -1:
		return SignDown
	default:
		return SignUnchanged
	}
}
