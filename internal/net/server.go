package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"garm/internal/common"
	"garm/internal/engine"
	"garm/internal/utils"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const (
	maxRecvSize        = 4 * 1024
	defaultNWorkers    = 10
	defaultConnTimeout = 30 * time.Second
)

var (
	ErrImproperConversion = errors.New("improper type conversion")
	ErrClientDoesNotExist = errors.New("client does not exist")
)

// ClientSession contains relevant information pertaining to an individual
// connected TCP session.
type ClientSession struct {
	conn  net.Conn
	owner string
}

// ClientMessage links a message to the client sending it.
type ClientMessage struct {
	conn    net.Conn
	message Message
}

type Server struct {
	address string
	port    int
	dex     *engine.Exchange
	pool    utils.WorkerPool
	cancel  context.CancelFunc

	clientSessionsLock sync.Mutex
	clientSessions     map[string]ClientSession
	ownerSessions      map[string]string // owner -> client address

	clientMessages chan ClientMessage
}

func New(address string, port int, dex *engine.Exchange) *Server {
	return &Server{
		address:        address,
		port:           port,
		dex:            dex,
		pool:           utils.NewWorkerPool(defaultNWorkers),
		clientSessions: make(map[string]ClientSession),
		ownerSessions:  make(map[string]string),
		clientMessages: make(chan ClientMessage, 1),
	}
}

func (s *Server) Shutdown() {
	log.Info().Msg("server shutting down")
	s.cancel()
}

func (s *Server) Run(ctx context.Context) {
	defer s.Shutdown()

	// Setup a cancel on the context for future shutdown.
	ctx, s.cancel = context.WithCancel(ctx)
	t, ctx := tomb.WithContext(ctx)

	// Start a tcp listener.
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		log.Error().Err(err).Msg("unable to start listener")
		return
	}
	defer func() {
		if err := listener.Close(); err != nil {
			log.Error().Err(err).Msg("unable to close listener")
		}
	}()

	// Start the worker pool reading off connections.
	s.pool.Setup(t, s.handleConnection)

	// Start the session handler, which serializes all engine calls
	// arriving over the wire.
	t.Go(func() error {
		return s.sessionHandler(t)
	})

	log.Info().Str("address", s.address).Int("port", s.port).Msg("server running")

	// Start accepting connections.
	for {
		select {
		case <-ctx.Done():
			return
		default:
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return
				default:
				}
				log.Error().Err(err).Msg("error accepting client")
				continue
			}

			log.Info().
				Str("address", conn.RemoteAddr().String()).
				Msg("new client added")
			// Add the client to client sessions we are tracking.
			// We expect to potentially maintain a long TCP session.
			s.addClientSession(conn)

			// Pass over the connection to be read from.
			s.pool.AddTask(conn)
		}
	}
}

// ReportTrade pushes an execution report to each party of a fill that has
// a live session. Offline parties simply miss the push; their balances
// are already settled. Satisfies the engine's TradeReporter.
func (s *Server) ReportTrade(trade common.Trade) error {
	makerSide := trade.TakerSide.Opposite()
	if err := s.pushReport(trade.Taker, serializeExecutionReport(trade, trade.TakerSide, trade.Maker)); err != nil && !errors.Is(err, ErrClientDoesNotExist) {
		return err
	}
	if err := s.pushReport(trade.Maker, serializeExecutionReport(trade, makerSide, trade.Taker)); err != nil && !errors.Is(err, ErrClientDoesNotExist) {
		return err
	}
	return nil
}

func (s *Server) pushReport(owner string, report []byte) error {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	address, ok := s.ownerSessions[owner]
	if !ok {
		return ErrClientDoesNotExist
	}
	client, ok := s.clientSessions[address]
	if !ok {
		return ErrClientDoesNotExist
	}

	if _, err := client.conn.Write(report); err != nil {
		delete(s.clientSessions, address)
		delete(s.ownerSessions, owner)
		return fmt.Errorf("unable to send report: %w", err)
	}
	return nil
}

// sessionHandler drains incoming client messages and applies them to the
// exchange one at a time. Matching itself is additionally serialized per
// market inside the engine.
func (s *Server) sessionHandler(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case message := <-s.clientMessages:
			reply := s.dispatch(message)
			if reply == nil {
				continue
			}
			if _, err := message.conn.Write(reply); err != nil {
				log.Error().
					Err(err).
					Str("address", message.conn.RemoteAddr().String()).
					Msg("error writing reply")
				s.deleteClientSession(message.conn.RemoteAddr().String())
			}
		}
	}
}

// dispatch maps one wire message to one engine call and serializes the
// reply. Engine failures come back as error reports, never as dropped
// connections.
func (s *Server) dispatch(message ClientMessage) []byte {
	switch m := message.message.(type) {
	case BaseMessage:
		// Heartbeat. Nothing to do.
		return nil

	case NewOrderMessage:
		s.bindOwner(m.Owner, message.conn)
		switch m.OrderType {
		case common.LimitOrder:
			id, err := s.dex.CreateLimitOrder(m.Owner, m.Side, m.Ticker, m.Amount, m.Price)
			if err != nil {
				return serializeErrorReport(err)
			}
			return serializeOrderAck(id, 0)
		case common.MarketOrder:
			filled, err := s.dex.CreateMarketOrder(m.Owner, m.Side, m.Ticker, m.Amount)
			if err != nil {
				return serializeErrorReport(err)
			}
			return serializeOrderAck(0, filled)
		}
		return serializeErrorReport(ErrInvalidMessageType)

	case TransferMessage:
		s.bindOwner(m.Owner, message.conn)
		var err error
		if m.TypeOf == Deposit {
			err = s.dex.Deposit(m.Owner, m.Ticker, m.Qty)
		} else {
			err = s.dex.Withdraw(m.Owner, m.Ticker, m.Qty)
		}
		if err != nil {
			return serializeErrorReport(err)
		}
		return serializeBalanceReport(m.Ticker, s.dex.BalanceOf(m.Owner, m.Ticker))

	case QueryBookMessage:
		orders, err := s.dex.OrderBook(m.Ticker, m.Side)
		if err != nil {
			return serializeErrorReport(err)
		}
		return serializeBookSnapshot(m.Ticker, m.Side, orders)

	case QueryBalanceMessage:
		s.bindOwner(m.Owner, message.conn)
		return serializeBalanceReport(m.Ticker, s.dex.BalanceOf(m.Owner, m.Ticker))
	}

	return serializeErrorReport(ErrInvalidMessageType)
}

// handleConnection is a short-lived worker method which reads the next
// message off the connection, parses and passes it forward to
// sessionHandler. If the connection dies, the client session is cleaned
// up. Any error returned from here is fatal to the pool.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return ErrImproperConversion
	}

	if err := conn.SetDeadline(time.Now().Add(defaultConnTimeout)); err != nil {
		log.Error().
			Str("address", conn.RemoteAddr().String()).
			Err(err).
			Msg("failed setting deadline for connection")
		return nil
	}

	buffer := make([]byte, maxRecvSize)
	select {
	case <-t.Dying():
		return nil
	default:
		n, err := conn.Read(buffer)
		if err != nil {
			// If a read from a client fails, it is likely that the
			// client has exited. Clean up the client session.
			s.deleteClientSession(conn.RemoteAddr().String())
			_ = conn.Close()
			return nil
		}

		message, err := parseMessage(buffer[:n])
		if err != nil {
			log.Error().
				Err(err).
				Str("address", conn.RemoteAddr().String()).
				Msg("error parsing message")
			if _, werr := conn.Write(serializeErrorReport(err)); werr != nil {
				s.deleteClientSession(conn.RemoteAddr().String())
				_ = conn.Close()
				return nil
			}
		} else {
			// Pass over to the message handling buffer.
			s.clientMessages <- ClientMessage{
				message: message,
				conn:    conn,
			}
		}

		// Push the client connection back to handle the next message.
		s.pool.AddTask(conn)
	}
	return nil
}

// addClientSession is an atomic map add.
func (s *Server) addClientSession(conn net.Conn) {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	s.clientSessions[conn.RemoteAddr().String()] = ClientSession{
		conn: conn,
	}
}

// bindOwner links an account name to the session it last spoke from, so
// execution reports can find it.
func (s *Server) bindOwner(owner string, conn net.Conn) {
	if owner == "" {
		return
	}

	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	address := conn.RemoteAddr().String()
	if session, ok := s.clientSessions[address]; ok {
		session.owner = owner
		s.clientSessions[address] = session
	}
	s.ownerSessions[owner] = address
}

// deleteClientSession is an atomic map remove.
func (s *Server) deleteClientSession(address string) {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	if session, ok := s.clientSessions[address]; ok && session.owner != "" {
		delete(s.ownerSessions, session.owner)
	}
	delete(s.clientSessions, address)
}
