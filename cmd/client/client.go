package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"garm/internal/common"
	garmNet "garm/internal/net"
)

const maxReplySize = 4 * 1024

func main() {
	// CLI parameter parsing.
	serverAddr := flag.String("server", "127.0.0.1:9001", "Address of the exchange server")
	owner := flag.String("owner", "", "Owner account name (compulsory)")
	action := flag.String("action", "", "Action to perform: ['deposit', 'withdraw', 'limit', 'market', 'book', 'balance', 'listen']")

	// Order parameters.
	ticker := flag.String("ticker", "LINK", "Ticker symbol (max 4 chars)")
	sideStr := flag.String("side", "buy", "Order side: 'buy' or 'sell'")
	price := flag.Uint64("price", 0, "Limit price in base currency units")
	qtyStr := flag.String("qty", "10", "Quantity or comma-separated list (e.g. 10,20,50)")

	flag.Parse()

	if *owner == "" {
		fmt.Println("Error: -owner is compulsory.")
		flag.Usage()
		os.Exit(1)
	}

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("Failed to connect to server at %s: %v", *serverAddr, err)
	}
	defer conn.Close()
	fmt.Printf("Connected to %s as '%s'\n", *serverAddr, *owner)

	side := common.Buy
	if strings.ToLower(*sideStr) == "sell" {
		side = common.Sell
	}

	switch strings.ToLower(*action) {
	case "deposit", "withdraw":
		typeOf := garmNet.Deposit
		if strings.ToLower(*action) == "withdraw" {
			typeOf = garmNet.Withdraw
		}
		for _, q := range parseQuantities(*qtyStr) {
			msg := garmNet.TransferMessage{
				BaseMessage: garmNet.BaseMessage{TypeOf: typeOf},
				Ticker:      *ticker,
				Qty:         q,
				Owner:       *owner,
			}
			sendAndReport(conn, msg.Serialize())
		}

	case "limit", "market":
		orderType := common.LimitOrder
		if strings.ToLower(*action) == "market" {
			orderType = common.MarketOrder
		}
		if orderType == common.LimitOrder && *price == 0 {
			log.Fatal("Error: -price is required for limit orders")
		}
		for _, q := range parseQuantities(*qtyStr) {
			msg := garmNet.NewOrderMessage{
				BaseMessage: garmNet.BaseMessage{TypeOf: garmNet.NewOrder},
				OrderType:   orderType,
				Side:        side,
				Ticker:      *ticker,
				Price:       *price,
				Amount:      q,
				Owner:       *owner,
			}
			sendAndReport(conn, msg.Serialize())
			// Small sleep so the server processes the sequence distinctly.
			time.Sleep(5 * time.Millisecond)
		}

	case "book":
		msg := garmNet.QueryBookMessage{
			BaseMessage: garmNet.BaseMessage{TypeOf: garmNet.QueryBook},
			Ticker:      *ticker,
			Side:        side,
		}
		sendAndReport(conn, msg.Serialize())

	case "balance":
		msg := garmNet.QueryBalanceMessage{
			BaseMessage: garmNet.BaseMessage{TypeOf: garmNet.QueryBalance},
			Ticker:      *ticker,
			Owner:       *owner,
		}
		sendAndReport(conn, msg.Serialize())

	case "listen":
		// Announce ourselves so execution reports find this session,
		// then block printing whatever the server pushes.
		msg := garmNet.QueryBalanceMessage{
			BaseMessage: garmNet.BaseMessage{TypeOf: garmNet.QueryBalance},
			Ticker:      common.BaseAsset,
			Owner:       *owner,
		}
		sendAndReport(conn, msg.Serialize())
		for {
			readReport(conn)
		}

	default:
		fmt.Printf("Unknown action %q\n", *action)
		flag.Usage()
		os.Exit(1)
	}
}

func sendAndReport(conn net.Conn, msg []byte) {
	if _, err := conn.Write(msg); err != nil {
		log.Fatalf("Failed to send message: %v", err)
	}
	readReport(conn)
}

// readReport reads and prints the next report from the server.
func readReport(conn net.Conn) {
	buf := make([]byte, maxReplySize)
	n, err := conn.Read(buf)
	if err != nil {
		log.Fatalf("Connection lost: %v", err)
	}

	report, err := garmNet.ParseReport(buf[:n])
	if err != nil {
		log.Printf("Bad report from server: %v", err)
		return
	}

	switch report.Type {
	case garmNet.OrderAck:
		if report.OrderID != 0 {
			fmt.Printf("[ACK] limit order resting, id=%d\n", report.OrderID)
		} else {
			fmt.Printf("[ACK] market order filled qty=%d\n", report.Filled)
		}
	case garmNet.ExecutionReport:
		e := report.Execution
		fmt.Printf("[EXECUTION] %s %s | Qty: %d | Price: %d | vs: %s | Trade: %s\n",
			e.Side, e.Ticker, e.Qty, e.Price, e.Counterparty, e.TradeID)
	case garmNet.BookSnapshot:
		fmt.Printf("[BOOK] %s %s (%d orders)\n", report.Ticker, report.Side, len(report.Orders))
		for _, o := range report.Orders {
			fmt.Printf("  id=%d price=%d amount=%d filled=%d owner=%s\n",
				o.ID, o.Price, o.Amount, o.Filled, o.Owner)
		}
	case garmNet.BalanceReport:
		fmt.Printf("[BALANCE] %s: %d\n", report.Ticker, report.Qty)
	case garmNet.ErrorReport:
		fmt.Printf("[SERVER ERROR] %s\n", report.Err)
	}
}

// parseQuantities splits "10,20,50" into quantities.
func parseQuantities(s string) []uint64 {
	var out []uint64
	for _, part := range strings.Split(s, ",") {
		q, err := strconv.ParseUint(strings.TrimSpace(part), 10, 64)
		if err != nil {
			log.Fatalf("Invalid quantity %q: %v", part, err)
		}
		out = append(out, q)
	}
	return out
}
