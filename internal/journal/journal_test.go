package journal

import (
	"fmt"
	"testing"
	"time"

	"garm/internal/common"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTrade(i int) common.Trade {
	return common.Trade{
		ID:           uuid.New().String(),
		Ticker:       "LINK",
		Taker:        "buyer",
		Maker:        fmt.Sprintf("seller%d", i),
		MakerOrderID: uint64(i + 1),
		TakerSide:    common.Buy,
		Price:        uint64(100 * (i + 1)),
		Qty:          10,
		Timestamp:    time.Unix(1700000000+int64(i), 0),
	}
}

func TestAppendAndReplay(t *testing.T) {
	j, err := Open(t.TempDir())
	require.NoError(t, err)
	defer j.Close()

	var want []common.Trade
	for i := 0; i < 5; i++ {
		trade := testTrade(i)
		want = append(want, trade)
		require.NoError(t, j.ReportTrade(trade))
	}

	got, err := j.Trades()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSequenceSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	j, err := Open(dir)
	require.NoError(t, err)
	first := testTrade(0)
	require.NoError(t, j.ReportTrade(first))
	require.NoError(t, j.Close())

	// Reopening resumes the sequence; the old trade is still first.
	j, err = Open(dir)
	require.NoError(t, err)
	defer j.Close()

	second := testTrade(1)
	require.NoError(t, j.ReportTrade(second))

	got, err := j.Trades()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first, got[0])
	assert.Equal(t, second, got[1])
}

func TestEmptyJournal(t *testing.T) {
	j, err := Open(t.TempDir())
	require.NoError(t, err)
	defer j.Close()

	got, err := j.Trades()
	require.NoError(t, err)
	assert.Empty(t, got)
}
