// Package kis is a Source for the KIS real-time quote WebSocket (H0STCNT0).
package kis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/SunYerim/StockOfGalaxy/pkg/models"
)

const (
	TrIDStockQuote = "H0STCNT0"
	TrIDPingPong   = "PINGPONG"

	MsgCodeSubscribed        = "OPSP0000"
	MsgCodeAlreadySubscribed = "OPSP0002"
)

// caret-separated field positions inside one H0STCNT0 record
const (
	fieldCode   = 0
	fieldPrice  = 2
	fieldSign   = 3
	fieldChange = 4
	fieldRate   = 5
	minFields   = 6
)

var (
	ErrMalformedFrame = errors.New("kis: malformed frame")
	ErrEncryptedFrame = errors.New("kis: encrypted frame not supported")
)

type FrameKind int

const (
	FrameQuote FrameKind = iota
	FramePingPong
	FrameControl
)

// Frame is one decoded inbound message.
type Frame struct {
	Kind    FrameKind
	Quote   models.PriceMessage
	Control ControlMessage
	Raw     []byte
}

type ControlMessage struct {
	Header struct {
		TrID    string `json:"tr_id"`
		TrKey   string `json:"tr_key"`
		Encrypt string `json:"encrypt"`
	} `json:"header"`
	Body struct {
		RtCd  string `json:"rt_cd"`
		MsgCd string `json:"msg_cd"`
		Msg1  string `json:"msg1"`
	} `json:"body"`
}

// Rejected reports a control reply that is neither a success nor a duplicate
// subscription; KIS sends those when the approval key is no longer valid.
func (c ControlMessage) Rejected() bool {
	if c.Header.TrID == TrIDPingPong || c.Body.MsgCd == "" {
		return false
	}
	return c.Body.MsgCd != MsgCodeSubscribed && c.Body.MsgCd != MsgCodeAlreadySubscribed
}

// Decode parses a text frame. JSON objects are control frames, everything else
// is a pipe-delimited quote: encrypt|tr_id|count|f0^f1^...
func Decode(raw []byte) (Frame, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Frame{}, ErrMalformedFrame
	}

	if trimmed[0] == '{' {
		var c ControlMessage
		if err := json.Unmarshal(trimmed, &c); err != nil {
			return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		kind := FrameControl
		if c.Header.TrID == TrIDPingPong {
			kind = FramePingPong
		}
		return Frame{Kind: kind, Control: c, Raw: raw}, nil
	}

	msg, err := decodeQuote(string(trimmed))
	if err != nil {
		return Frame{}, err
	}
	return Frame{Kind: FrameQuote, Quote: msg, Raw: raw}, nil
}

func decodeQuote(s string) (models.PriceMessage, error) {
	parts := strings.Split(s, "|")
	if len(parts) < 4 {
		return models.PriceMessage{}, fmt.Errorf("%w: want 4 pipe sections, got %d", ErrMalformedFrame, len(parts))
	}
	if parts[0] == "1" {
		return models.PriceMessage{}, ErrEncryptedFrame
	}
	if parts[1] != TrIDStockQuote {
		return models.PriceMessage{}, fmt.Errorf("%w: unexpected tr_id %q", ErrMalformedFrame, parts[1])
	}

	// multi-record frames concatenate records; the first one is the oldest, take the last
	fields := strings.Split(parts[len(parts)-1], "^")
	if len(fields) < minFields {
		return models.PriceMessage{}, fmt.Errorf("%w: want %d fields, got %d", ErrMalformedFrame, minFields, len(fields))
	}
	if n := recordWidth(parts[2], len(fields)); n > 0 {
		fields = fields[len(fields)-n:]
	}

	code := strings.TrimSpace(fields[fieldCode])
	if code == "" {
		return models.PriceMessage{}, fmt.Errorf("%w: empty code", ErrMalformedFrame)
	}

	price, err := decimal.NewFromString(fields[fieldPrice])
	if err != nil {
		return models.PriceMessage{}, fmt.Errorf("%w: price: %v", ErrMalformedFrame, err)
	}
	change, err := decimal.NewFromString(fields[fieldChange])
	if err != nil {
		return models.PriceMessage{}, fmt.Errorf("%w: change: %v", ErrMalformedFrame, err)
	}
	rate, err := decimal.NewFromString(fields[fieldRate])
	if err != nil {
		return models.PriceMessage{}, fmt.Errorf("%w: rate: %v", ErrMalformedFrame, err)
	}

	return models.PriceMessage{
		Code:         code,
		CurrentPrice: price,
		ChangeAmount: change,
		ChangeRate:   rate,
		Sign:         fields[fieldSign],
	}, nil
}

// recordWidth returns the per-record field count when the frame carries more
// than one record, or 0.
func recordWidth(count string, total int) int {
	var n int
	if _, err := fmt.Sscanf(count, "%d", &n); err != nil || n <= 1 {
		return 0
	}
	if total%n != 0 || total/n < minFields {
		return 0
	}
	return total / n
}

type subscribeRequest struct {
	Header subscribeHeader `json:"header"`
	Body   subscribeBody   `json:"body"`
}

type subscribeHeader struct {
	ApprovalKey string `json:"approval_key"`
	CustType    string `json:"custtype"`
	TrType      string `json:"tr_type"`
	ContentType string `json:"content-type"`
}

type subscribeBody struct {
	Input struct {
		TrID  string `json:"tr_id"`
		TrKey string `json:"tr_key"`
	} `json:"input"`
}

// EncodeSubscribe builds the registration message for one code.
func EncodeSubscribe(approvalKey, code string) ([]byte, error) {
	req := subscribeRequest{
		Header: subscribeHeader{
			ApprovalKey: approvalKey,
			CustType:    "P",
			TrType:      "1",
			ContentType: "utf-8",
		},
	}
	req.Body.Input.TrID = TrIDStockQuote
	req.Body.Input.TrKey = code
	return json.Marshal(req)
}
