package net

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"garm/internal/common"
)

var (
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrMessageTooShort    = errors.New("message too short")
)

type MessageType int

const (
	Heartbeat MessageType = iota
	NewOrder
	Deposit
	Withdraw
	QueryBook
	QueryBalance
)

type ReportType int

const (
	OrderAck ReportType = iota
	ExecutionReport
	BookSnapshot
	BalanceReport
	ErrorReport
)

type Message interface {
	GetType() MessageType
}

// Message format constants.
const (
	BaseMessageHeaderLen     = 2
	NewOrderMessageLen       = 2 + 2 + 1 + common.TickerLen + 8 + 8 + 1
	TransferMessageLen       = 2 + common.TickerLen + 8 + 1
	QueryBookMessageLen      = 2 + common.TickerLen + 1
	QueryBalanceMessageLen   = 2 + common.TickerLen + 1
	orderAckLen              = 1 + 8 + 8
	balanceReportLen         = 1 + common.TickerLen + 8
	executionReportHeaderLen = 1 + 1 + common.TickerLen + 8 + 8 + 8 + 8 + 36 + 2
	bookSnapshotHeaderLen    = 1 + common.TickerLen + 1 + 2
	bookSnapshotOrderLen     = 8 + 8 + 8 + 8 + 1
	errorReportHeaderLen     = 1 + 4
)

// Generic message type.
type BaseMessage struct {
	TypeOf MessageType // 2 bytes
}

func (m BaseMessage) GetType() MessageType {
	return m.TypeOf
}

func parseMessage(msg []byte) (Message, error) {
	if len(msg) < BaseMessageHeaderLen {
		return BaseMessage{}, ErrMessageTooShort
	}

	typeOf := MessageType(binary.BigEndian.Uint16(msg[0:2]))
	switch typeOf {
	case Heartbeat:
		return BaseMessage{TypeOf: Heartbeat}, nil
	case NewOrder:
		return parseNewOrder(msg)
	case Deposit, Withdraw:
		return parseTransfer(msg, typeOf)
	case QueryBook:
		return parseQueryBook(msg)
	case QueryBalance:
		return parseQueryBalance(msg)
	default:
		return BaseMessage{}, ErrInvalidMessageType
	}
}

// packTicker fixes a symbol into the wire's ticker width.
func packTicker(buf []byte, ticker string) {
	copy(buf[:common.TickerLen], ticker)
}

// unpackTicker strips the zero padding short symbols carry on the wire.
func unpackTicker(buf []byte) string {
	end := 0
	for end < common.TickerLen && buf[end] != 0 {
		end++
	}
	return string(buf[:end])
}

type NewOrderMessage struct {
	BaseMessage
	OrderType common.OrderType // 2 bytes
	Side      common.Side      // 1 byte
	Ticker    string           // 4 bytes
	Price     uint64           // 8 bytes
	Amount    uint64           // 8 bytes
	OwnerLen  uint8            // 1 byte
	Owner     string           // n bytes
}

func (m NewOrderMessage) Serialize() []byte {
	buf := make([]byte, NewOrderMessageLen+len(m.Owner))
	binary.BigEndian.PutUint16(buf[0:2], uint16(NewOrder))
	binary.BigEndian.PutUint16(buf[2:4], uint16(m.OrderType))
	buf[4] = byte(m.Side)
	packTicker(buf[5:9], m.Ticker)
	binary.BigEndian.PutUint64(buf[9:17], m.Price)
	binary.BigEndian.PutUint64(buf[17:25], m.Amount)
	buf[25] = uint8(len(m.Owner))
	copy(buf[26:], m.Owner)
	return buf
}

func parseNewOrder(msg []byte) (NewOrderMessage, error) {
	if len(msg) < NewOrderMessageLen {
		return NewOrderMessage{}, ErrMessageTooShort
	}

	m := NewOrderMessage{BaseMessage: BaseMessage{TypeOf: NewOrder}}
	m.OrderType = common.OrderType(binary.BigEndian.Uint16(msg[2:4]))
	m.Side = common.Side(msg[4])
	m.Ticker = unpackTicker(msg[5:9])
	m.Price = binary.BigEndian.Uint64(msg[9:17])
	m.Amount = binary.BigEndian.Uint64(msg[17:25])
	m.OwnerLen = msg[25]

	if len(msg) < NewOrderMessageLen+int(m.OwnerLen) {
		return NewOrderMessage{}, ErrMessageTooShort
	}
	m.Owner = string(msg[26 : 26+int(m.OwnerLen)])
	return m, nil
}

// TransferMessage carries both deposits and withdrawals; the message type
// distinguishes direction.
type TransferMessage struct {
	BaseMessage
	Ticker   string // 4 bytes
	Qty      uint64 // 8 bytes
	OwnerLen uint8  // 1 byte
	Owner    string // n bytes
}

func (m TransferMessage) Serialize() []byte {
	buf := make([]byte, TransferMessageLen+len(m.Owner))
	binary.BigEndian.PutUint16(buf[0:2], uint16(m.TypeOf))
	packTicker(buf[2:6], m.Ticker)
	binary.BigEndian.PutUint64(buf[6:14], m.Qty)
	buf[14] = uint8(len(m.Owner))
	copy(buf[15:], m.Owner)
	return buf
}

func parseTransfer(msg []byte, typeOf MessageType) (TransferMessage, error) {
	if len(msg) < TransferMessageLen {
		return TransferMessage{}, ErrMessageTooShort
	}

	m := TransferMessage{BaseMessage: BaseMessage{TypeOf: typeOf}}
	m.Ticker = unpackTicker(msg[2:6])
	m.Qty = binary.BigEndian.Uint64(msg[6:14])
	m.OwnerLen = msg[14]

	if len(msg) < TransferMessageLen+int(m.OwnerLen) {
		return TransferMessage{}, ErrMessageTooShort
	}
	m.Owner = string(msg[15 : 15+int(m.OwnerLen)])
	return m, nil
}

type QueryBookMessage struct {
	BaseMessage
	Ticker string      // 4 bytes
	Side   common.Side // 1 byte
}

func (m QueryBookMessage) Serialize() []byte {
	buf := make([]byte, QueryBookMessageLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(QueryBook))
	packTicker(buf[2:6], m.Ticker)
	buf[6] = byte(m.Side)
	return buf
}

func parseQueryBook(msg []byte) (QueryBookMessage, error) {
	if len(msg) < QueryBookMessageLen {
		return QueryBookMessage{}, ErrMessageTooShort
	}

	m := QueryBookMessage{BaseMessage: BaseMessage{TypeOf: QueryBook}}
	m.Ticker = unpackTicker(msg[2:6])
	m.Side = common.Side(msg[6])
	return m, nil
}

type QueryBalanceMessage struct {
	BaseMessage
	Ticker   string // 4 bytes
	OwnerLen uint8  // 1 byte
	Owner    string // n bytes
}

func (m QueryBalanceMessage) Serialize() []byte {
	buf := make([]byte, QueryBalanceMessageLen+len(m.Owner))
	binary.BigEndian.PutUint16(buf[0:2], uint16(QueryBalance))
	packTicker(buf[2:6], m.Ticker)
	buf[6] = uint8(len(m.Owner))
	copy(buf[7:], m.Owner)
	return buf
}

func parseQueryBalance(msg []byte) (QueryBalanceMessage, error) {
	if len(msg) < QueryBalanceMessageLen {
		return QueryBalanceMessage{}, ErrMessageTooShort
	}

	m := QueryBalanceMessage{BaseMessage: BaseMessage{TypeOf: QueryBalance}}
	m.Ticker = unpackTicker(msg[2:6])
	m.OwnerLen = msg[6]

	if len(msg) < QueryBalanceMessageLen+int(m.OwnerLen) {
		return QueryBalanceMessage{}, ErrMessageTooShort
	}
	m.Owner = string(msg[7 : 7+int(m.OwnerLen)])
	return m, nil
}

// --- Reports -----------------------------------------------------------

// serializeOrderAck acknowledges a NewOrder. Limit orders carry the
// assigned order id; market orders carry the filled quantity.
func serializeOrderAck(orderID, filled uint64) []byte {
	buf := make([]byte, orderAckLen)
	buf[0] = byte(OrderAck)
	binary.BigEndian.PutUint64(buf[1:9], orderID)
	binary.BigEndian.PutUint64(buf[9:17], filled)
	return buf
}

func parseOrderAck(msg []byte) (orderID, filled uint64, err error) {
	if len(msg) < orderAckLen {
		return 0, 0, ErrMessageTooShort
	}
	return binary.BigEndian.Uint64(msg[1:9]), binary.BigEndian.Uint64(msg[9:17]), nil
}

func serializeBalanceReport(ticker string, qty uint64) []byte {
	buf := make([]byte, balanceReportLen)
	buf[0] = byte(BalanceReport)
	packTicker(buf[1:5], ticker)
	binary.BigEndian.PutUint64(buf[5:13], qty)
	return buf
}

func parseBalanceReport(msg []byte) (ticker string, qty uint64, err error) {
	if len(msg) < balanceReportLen {
		return "", 0, ErrMessageTooShort
	}
	return unpackTicker(msg[1:5]), binary.BigEndian.Uint64(msg[5:13]), nil
}

// serializeExecutionReport is the fill notification pushed to each party
// of a trade. Side is the receiving party's side of the trade.
func serializeExecutionReport(trade common.Trade, side common.Side, counterparty string) []byte {
	buf := make([]byte, executionReportHeaderLen+len(counterparty))
	buf[0] = byte(ExecutionReport)
	buf[1] = byte(side)
	packTicker(buf[2:6], trade.Ticker)
	binary.BigEndian.PutUint64(buf[6:14], trade.MakerOrderID)
	binary.BigEndian.PutUint64(buf[14:22], trade.Price)
	binary.BigEndian.PutUint64(buf[22:30], trade.Qty)
	binary.BigEndian.PutUint64(buf[30:38], uint64(trade.Timestamp.Unix()))
	copy(buf[38:74], trade.ID)
	binary.BigEndian.PutUint16(buf[74:76], uint16(len(counterparty)))
	copy(buf[76:], counterparty)
	return buf
}

// WireExecution is the client-side decoding of an execution report.
type WireExecution struct {
	Side         common.Side
	Ticker       string
	MakerOrderID uint64
	Price        uint64
	Qty          uint64
	Timestamp    time.Time
	TradeID      string
	Counterparty string
}

func parseExecutionReport(msg []byte) (WireExecution, error) {
	if len(msg) < executionReportHeaderLen {
		return WireExecution{}, ErrMessageTooShort
	}

	e := WireExecution{
		Side:         common.Side(msg[1]),
		Ticker:       unpackTicker(msg[2:6]),
		MakerOrderID: binary.BigEndian.Uint64(msg[6:14]),
		Price:        binary.BigEndian.Uint64(msg[14:22]),
		Qty:          binary.BigEndian.Uint64(msg[22:30]),
		Timestamp:    time.Unix(int64(binary.BigEndian.Uint64(msg[30:38])), 0),
		TradeID:      string(msg[38:74]),
	}

	cpLen := int(binary.BigEndian.Uint16(msg[74:76]))
	if len(msg) < executionReportHeaderLen+cpLen {
		return WireExecution{}, ErrMessageTooShort
	}
	e.Counterparty = string(msg[76 : 76+cpLen])
	return e, nil
}

func serializeBookSnapshot(ticker string, side common.Side, orders []common.Order) []byte {
	size := bookSnapshotHeaderLen
	for _, o := range orders {
		size += bookSnapshotOrderLen + len(o.Owner)
	}

	buf := make([]byte, size)
	buf[0] = byte(BookSnapshot)
	packTicker(buf[1:5], ticker)
	buf[5] = byte(side)
	binary.BigEndian.PutUint16(buf[6:8], uint16(len(orders)))

	offset := bookSnapshotHeaderLen
	for _, o := range orders {
		binary.BigEndian.PutUint64(buf[offset:], o.ID)
		binary.BigEndian.PutUint64(buf[offset+8:], o.Price)
		binary.BigEndian.PutUint64(buf[offset+16:], o.Amount)
		binary.BigEndian.PutUint64(buf[offset+24:], o.Filled)
		buf[offset+32] = uint8(len(o.Owner))
		copy(buf[offset+33:], o.Owner)
		offset += bookSnapshotOrderLen + len(o.Owner)
	}
	return buf
}

func parseBookSnapshot(msg []byte) (ticker string, side common.Side, orders []common.Order, err error) {
	if len(msg) < bookSnapshotHeaderLen {
		return "", 0, nil, ErrMessageTooShort
	}

	ticker = unpackTicker(msg[1:5])
	side = common.Side(msg[5])
	count := int(binary.BigEndian.Uint16(msg[6:8]))

	offset := bookSnapshotHeaderLen
	for i := 0; i < count; i++ {
		if len(msg) < offset+bookSnapshotOrderLen {
			return "", 0, nil, ErrMessageTooShort
		}
		o := common.Order{
			ID:     binary.BigEndian.Uint64(msg[offset:]),
			Ticker: ticker,
			Side:   side,
			Price:  binary.BigEndian.Uint64(msg[offset+8:]),
			Amount: binary.BigEndian.Uint64(msg[offset+16:]),
			Filled: binary.BigEndian.Uint64(msg[offset+24:]),
		}
		ownerLen := int(msg[offset+32])
		if len(msg) < offset+bookSnapshotOrderLen+ownerLen {
			return "", 0, nil, ErrMessageTooShort
		}
		o.Owner = string(msg[offset+33 : offset+33+ownerLen])
		orders = append(orders, o)
		offset += bookSnapshotOrderLen + ownerLen
	}
	return ticker, side, orders, nil
}

func serializeErrorReport(err error) []byte {
	errStr := fmt.Sprintf("%v", err)
	buf := make([]byte, errorReportHeaderLen+len(errStr))
	buf[0] = byte(ErrorReport)
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(errStr)))
	copy(buf[5:], errStr)
	return buf
}

func parseErrorReport(msg []byte) (string, error) {
	if len(msg) < errorReportHeaderLen {
		return "", ErrMessageTooShort
	}
	errLen := int(binary.BigEndian.Uint32(msg[1:5]))
	if len(msg) < errorReportHeaderLen+errLen {
		return "", ErrMessageTooShort
	}
	return string(msg[5 : 5+errLen]), nil
}

// Report is the decoded form of any server reply, for clients that do
// not care to switch on the raw wire format themselves.
type Report struct {
	Type      ReportType
	OrderID   uint64
	Filled    uint64
	Ticker    string
	Side      common.Side
	Qty       uint64
	Orders    []common.Order
	Execution WireExecution
	Err       string
}

func ParseReport(msg []byte) (Report, error) {
	if len(msg) < 1 {
		return Report{}, ErrMessageTooShort
	}

	var (
		r   = Report{Type: ReportType(msg[0])}
		err error
	)
	switch r.Type {
	case OrderAck:
		r.OrderID, r.Filled, err = parseOrderAck(msg)
	case ExecutionReport:
		r.Execution, err = parseExecutionReport(msg)
	case BookSnapshot:
		r.Ticker, r.Side, r.Orders, err = parseBookSnapshot(msg)
	case BalanceReport:
		r.Ticker, r.Qty, err = parseBalanceReport(msg)
	case ErrorReport:
		r.Err, err = parseErrorReport(msg)
	default:
		err = ErrInvalidMessageType
	}
	return r, err
}
