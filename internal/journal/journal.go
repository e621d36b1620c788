// Package journal persists every executed trade to an append-only pebble
// log, the audit trail counterpart of the on-chain event stream. The
// engine feeds it through its TradeReporter hook.
package journal

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"sync"

	"garm/internal/common"

	"github.com/cockroachdb/pebble"
	"github.com/rs/zerolog/log"
)

// keys: t:<8-byte-seq>, big-endian so iteration order is append order.
var (
	keyPrefix     = []byte("t:")
	keyUpperBound = []byte("t;") // ';' immediately follows ':'
)

func tradeKey(seq uint64) []byte {
	k := make([]byte, len(keyPrefix)+8)
	copy(k, keyPrefix)
	binary.BigEndian.PutUint64(k[len(keyPrefix):], seq)
	return k
}

type Journal struct {
	mu   sync.Mutex
	db   *pebble.DB
	next uint64
}

// Open opens (or creates) the journal at path and resumes the sequence
// counter from the last persisted trade.
func Open(path string) (*Journal, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	j := &Journal{db: db}
	if err := j.recoverSeq(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) recoverSeq() error {
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: keyPrefix,
		UpperBound: keyUpperBound,
	})
	if err != nil {
		return fmt.Errorf("journal iter: %w", err)
	}
	defer iter.Close()

	if iter.Last() {
		last := binary.BigEndian.Uint64(iter.Key()[len(keyPrefix):])
		j.next = last + 1
	}
	return nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// ReportTrade appends a trade synchronously. Satisfies the engine's
// TradeReporter.
func (j *Journal) ReportTrade(trade common.Trade) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(trade); err != nil {
		return fmt.Errorf("encode trade: %w", err)
	}

	j.mu.Lock()
	seq := j.next
	j.next++
	j.mu.Unlock()

	if err := j.db.Set(tradeKey(seq), buf.Bytes(), pebble.Sync); err != nil {
		return fmt.Errorf("append trade: %w", err)
	}

	log.Debug().
		Uint64("seq", seq).
		Str("trade", trade.ID).
		Msg("trade journaled")
	return nil
}

// Trades replays the journal in append order.
func (j *Journal) Trades() ([]common.Trade, error) {
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: keyPrefix,
		UpperBound: keyUpperBound,
	})
	if err != nil {
		return nil, fmt.Errorf("journal iter: %w", err)
	}
	defer iter.Close()

	var out []common.Trade
	for iter.First(); iter.Valid(); iter.Next() {
		var trade common.Trade
		if err := gob.NewDecoder(bytes.NewReader(iter.Value())).Decode(&trade); err != nil {
			return nil, fmt.Errorf("decode trade: %w", err)
		}
		out = append(out, trade)
	}
	return out, iter.Error()
}
