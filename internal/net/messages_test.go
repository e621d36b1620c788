package net

import (
	"testing"
	"time"

	"garm/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessageDispatch(t *testing.T) {
	order := NewOrderMessage{
		BaseMessage: BaseMessage{TypeOf: NewOrder},
		OrderType:   common.MarketOrder,
		Side:        common.Sell,
		Ticker:      "LINK",
		Price:       300,
		Amount:      7,
		Owner:       "alice",
	}

	parsed, err := parseMessage(order.Serialize())
	require.NoError(t, err)

	got, ok := parsed.(NewOrderMessage)
	require.True(t, ok)
	assert.Equal(t, common.MarketOrder, got.OrderType)
	assert.Equal(t, common.Sell, got.Side)
	assert.Equal(t, "LINK", got.Ticker)
	assert.Equal(t, uint64(300), got.Price)
	assert.Equal(t, uint64(7), got.Amount)
	assert.Equal(t, "alice", got.Owner)
}

func TestParseMessageShortTicker(t *testing.T) {
	// Symbols shorter than the wire width round-trip without padding.
	msg := TransferMessage{
		BaseMessage: BaseMessage{TypeOf: Deposit},
		Ticker:      "ETH",
		Qty:         100,
		Owner:       "bob",
	}

	parsed, err := parseMessage(msg.Serialize())
	require.NoError(t, err)

	got, ok := parsed.(TransferMessage)
	require.True(t, ok)
	assert.Equal(t, Deposit, got.TypeOf)
	assert.Equal(t, "ETH", got.Ticker)
	assert.Equal(t, uint64(100), got.Qty)
	assert.Equal(t, "bob", got.Owner)
}

func TestParseMessageErrors(t *testing.T) {
	_, err := parseMessage([]byte{0x00})
	assert.ErrorIs(t, err, ErrMessageTooShort)

	_, err = parseMessage([]byte{0xff, 0xff})
	assert.ErrorIs(t, err, ErrInvalidMessageType)

	// A declared owner longer than the payload must not slice past the
	// buffer.
	truncated := NewOrderMessage{
		BaseMessage: BaseMessage{TypeOf: NewOrder},
		Ticker:      "LINK",
		Owner:       "someone",
	}.Serialize()
	truncated = truncated[:len(truncated)-3]
	_, err = parseMessage(truncated)
	assert.ErrorIs(t, err, ErrMessageTooShort)
}

func TestExecutionReportRoundTrip(t *testing.T) {
	trade := common.Trade{
		ID:           "0f8fad5b-d9cb-469f-a165-70867728950e",
		Ticker:       "LINK",
		Taker:        "buyer",
		Maker:        "seller",
		MakerOrderID: 42,
		TakerSide:    common.Buy,
		Price:        300,
		Qty:          10,
		Timestamp:    time.Unix(1700000000, 0),
	}

	report, err := ParseReport(serializeExecutionReport(trade, common.Buy, "seller"))
	require.NoError(t, err)
	require.Equal(t, ExecutionReport, report.Type)

	e := report.Execution
	assert.Equal(t, common.Buy, e.Side)
	assert.Equal(t, "LINK", e.Ticker)
	assert.Equal(t, uint64(42), e.MakerOrderID)
	assert.Equal(t, uint64(300), e.Price)
	assert.Equal(t, uint64(10), e.Qty)
	assert.Equal(t, trade.ID, e.TradeID)
	assert.Equal(t, "seller", e.Counterparty)
	assert.Equal(t, trade.Timestamp.Unix(), e.Timestamp.Unix())
}

func TestBookSnapshotRoundTrip(t *testing.T) {
	orders := []common.Order{
		{ID: 1, Owner: "a", Side: common.Sell, Ticker: "LINK", Price: 100, Amount: 10, Filled: 3},
		{ID: 2, Owner: "bee", Side: common.Sell, Ticker: "LINK", Price: 200, Amount: 5},
	}

	report, err := ParseReport(serializeBookSnapshot("LINK", common.Sell, orders))
	require.NoError(t, err)
	require.Equal(t, BookSnapshot, report.Type)
	assert.Equal(t, "LINK", report.Ticker)
	assert.Equal(t, common.Sell, report.Side)
	assert.Equal(t, orders, report.Orders)
}

func TestOrderAckAndErrorReports(t *testing.T) {
	report, err := ParseReport(serializeOrderAck(7, 0))
	require.NoError(t, err)
	assert.Equal(t, OrderAck, report.Type)
	assert.Equal(t, uint64(7), report.OrderID)

	report, err = ParseReport(serializeErrorReport(ErrInvalidMessageType))
	require.NoError(t, err)
	assert.Equal(t, ErrorReport, report.Type)
	assert.Equal(t, ErrInvalidMessageType.Error(), report.Err)
}
