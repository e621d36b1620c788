package main

import (
	"context"
	"flag"
	"os/signal"
	"strings"
	"syscall"

	"garm/internal/common"
	"garm/internal/engine"
	"garm/internal/journal"
	"garm/internal/net"
	"garm/internal/registry"

	"github.com/rs/zerolog/log"
)

// multiReporter fans a fill out to every attached reporter.
type multiReporter []engine.TradeReporter

func (m multiReporter) ReportTrade(trade common.Trade) error {
	for _, r := range m {
		if err := r.ReportTrade(trade); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	address := flag.String("address", "0.0.0.0", "Listen address")
	port := flag.Int("port", 9001, "Listen port")
	admin := flag.String("admin", "admin", "Account allowed to list assets")
	assets := flag.String("assets", "LINK", "Comma-separated asset symbols to list at startup")
	journalPath := flag.String("journal", "garm-journal", "Trade journal directory")
	flag.Parse()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	// List the startup assets. The registry stays admin-gated afterwards.
	reg := registry.NewTokenRegistry(*admin)
	for _, symbol := range strings.Split(*assets, ",") {
		symbol = strings.TrimSpace(symbol)
		if symbol == "" {
			continue
		}
		if err := reg.Register(*admin, symbol, symbol+"-handle"); err != nil {
			log.Fatal().Err(err).Str("asset", symbol).Msg("unable to list asset")
		}
	}

	jnl, err := journal.Open(*journalPath)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to open trade journal")
	}
	defer jnl.Close()

	// Setup the TCP server and the matching engine.
	dex := engine.New(reg, engine.NopTransfer{})
	srv := net.New(*address, *port, dex)
	dex.SetReporter(multiReporter{jnl, srv})

	go srv.Run(ctx)
	// Block on running the server.
	<-ctx.Done()
}
