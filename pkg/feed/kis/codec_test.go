package kis

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quoteFrame(fields ...string) string {
	return "0|H0STCNT0|001|" + strings.Join(fields, "^")
}

func TestDecode_Quote(t *testing.T) {
	raw := quoteFrame("005930", "093354", "71900", "5", "-100", "-0.14", "71850", "72000", "72100", "71800")

	f, err := Decode([]byte(raw))
	require.NoError(t, err)
	require.Equal(t, FrameQuote, f.Kind)

	assert.Equal(t, "005930", f.Quote.Code)
	assert.True(t, f.Quote.CurrentPrice.Equal(decimal.NewFromInt(71900)))
	assert.True(t, f.Quote.ChangeAmount.Equal(decimal.NewFromInt(-100)))
	assert.True(t, f.Quote.ChangeRate.Equal(decimal.RequireFromString("-0.14")))
	assert.Equal(t, "5", f.Quote.Sign)
}

func TestDecode_MultiRecordTakesLatest(t *testing.T) {
	first := []string{"005930", "093354", "71900", "5", "-100", "-0.14"}
	second := []string{"005930", "093355", "72000", "3", "0", "0.00"}
	raw := "0|H0STCNT0|002|" + strings.Join(append(first, second...), "^")

	f, err := Decode([]byte(raw))
	require.NoError(t, err)
	assert.True(t, f.Quote.CurrentPrice.Equal(decimal.NewFromInt(72000)))
	assert.Equal(t, "3", f.Quote.Sign)
}

func TestDecode_Rejects(t *testing.T) {
	cases := map[string]string{
		"empty":        "",
		"too few pipe": "0|H0STCNT0|001",
		"few fields":   "0|H0STCNT0|001|005930^1^2",
		"wrong tr":     "0|H0STASP0|001|005930^t^1^2^3^4",
		"bad price":    quoteFrame("005930", "t", "abc", "2", "3", "4"),
		"empty code":   quoteFrame(" ", "t", "1", "2", "3", "4"),
		"broken json":  `{"header":`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(raw))
			assert.ErrorIs(t, err, ErrMalformedFrame)
		})
	}

	_, err := Decode([]byte("1|H0STCNT0|001|abc^def"))
	assert.ErrorIs(t, err, ErrEncryptedFrame)
}

func TestDecode_Control(t *testing.T) {
	f, err := Decode([]byte(`{"header":{"tr_id":"PINGPONG","datetime":"20241017093000"}}`))
	require.NoError(t, err)
	assert.Equal(t, FramePingPong, f.Kind)
	assert.False(t, f.Control.Rejected())

	f, err = Decode([]byte(`{"header":{"tr_id":"H0STCNT0","tr_key":"005930"},"body":{"rt_cd":"0","msg_cd":"OPSP0000","msg1":"SUBSCRIBE SUCCESS"}}`))
	require.NoError(t, err)
	assert.Equal(t, FrameControl, f.Kind)
	assert.False(t, f.Control.Rejected())

	f, err = Decode([]byte(`{"header":{"tr_id":"H0STCNT0","tr_key":"005930"},"body":{"rt_cd":"0","msg_cd":"OPSP0002","msg1":"ALREADY IN SUBSCRIBE"}}`))
	require.NoError(t, err)
	assert.False(t, f.Control.Rejected())

	f, err = Decode([]byte(`{"header":{"tr_id":"H0STCNT0","tr_key":"005930"},"body":{"rt_cd":"9","msg_cd":"OPSP8996","msg1":"invalid approval"}}`))
	require.NoError(t, err)
	assert.True(t, f.Control.Rejected())
}

func TestEncodeSubscribe(t *testing.T) {
	b, err := EncodeSubscribe("key-1", "005930")
	require.NoError(t, err)

	var got map[string]map[string]any
	require.NoError(t, json.Unmarshal(b, &got))

	assert.Equal(t, "key-1", got["header"]["approval_key"])
	assert.Equal(t, "P", got["header"]["custtype"])
	assert.Equal(t, "1", got["header"]["tr_type"])
	assert.Equal(t, "utf-8", got["header"]["content-type"])

	input := got["body"]["input"].(map[string]any)
	assert.Equal(t, "H0STCNT0", input["tr_id"])
	assert.Equal(t, "005930", input["tr_key"])
}
