package netstatus

import (
	"context"
	"testing"
	"time"

	"example.com/flightguild/bot/internal/metrics"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	feed Feed
	err  error
}

func (f stubFetcher) Fetch(ctx context.Context) (Feed, error) {
	return f.feed, f.err
}

func TestWorkerDeliversFilteredSnapshot(t *testing.T) {
	m := metrics.NewMetrics()
	feed := Feed{Controllers: []Controller{{Callsign: "VVTS_APP"}, {Callsign: "EGLL_TWR"}}}
	w := NewWorker(stubFetcher{feed: feed}, []string{"VV"}, clockwork.NewFakeClockAt(boardNow), nil, m)

	w.Poll(context.Background())

	update := <-w.Updates()
	require.NoError(t, update.Err)
	require.Len(t, update.Snapshot.Controllers, 1)
	require.Equal(t, int64(1), m.GetCounters()[metrics.NetStatusPolls])
}

func TestWorkerDeliversErrors(t *testing.T) {
	m := metrics.NewMetrics()
	w := NewWorker(stubFetcher{err: errors.New("timeout")}, []string{"VV"}, clockwork.NewFakeClock(), nil, m)

	w.Poll(context.Background())

	update := <-w.Updates()
	require.Error(t, update.Err)
	require.Nil(t, update.Snapshot)
	require.Equal(t, int64(1), m.GetCounters()[metrics.NetStatusFailures])
}

func TestWorkerPollStopsWithContext(t *testing.T) {
	w := NewWorker(stubFetcher{}, nil, clockwork.NewFakeClock(), nil, nil)
	w.Poll(context.Background()) // fills the buffer

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	w.Poll(ctx)
	require.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
}

func TestBoardRunConsumesUpdates(t *testing.T) {
	board, d, _, _ := newTestBoard(t)
	updates := make(chan Update, 1)
	updates <- Update{Err: errors.New("timeout")}
	close(updates)

	require.NoError(t, board.Run(context.Background(), updates))
	d.AssertExpectations(t)
}
