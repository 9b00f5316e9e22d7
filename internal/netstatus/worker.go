package netstatus

import (
	"context"

	"example.com/flightguild/bot/internal/metrics"
	"example.com/flightguild/bot/internal/tracing"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Worker fetches and filters the feed and posts the result on its updates channel.
// It holds no state shared with anything else.
type Worker struct {
	fetcher  Fetcher
	prefixes []string
	clock    clockwork.Clock
	updates  chan Update
	tracer   tracing.Tracer
	metrics  *metrics.Metrics
}

// NewWorker creates a worker; the updates channel is buffered by one poll
func NewWorker(fetcher Fetcher, prefixes []string, clock clockwork.Clock, tracer tracing.Tracer, m *metrics.Metrics) *Worker {
	if tracer == nil {
		tracer = tracing.Disabled()
	}
	return &Worker{
		fetcher:  fetcher,
		prefixes: prefixes,
		clock:    clock,
		updates:  make(chan Update, 1),
		tracer:   tracer,
		metrics:  m,
	}
}

// Updates returns the channel poll results are delivered on
func (w *Worker) Updates() <-chan Update {
	return w.updates
}

// Poll runs one fetch and delivers its result. It blocks until the result is taken or ctx ends.
func (w *Worker) Poll(ctx context.Context) {
	txn := w.tracer.StartTransaction("netstatus-poll")
	defer w.tracer.EndTransaction(txn)

	start := w.clock.Now()
	w.metrics.IncrementCounter(metrics.NetStatusPolls)

	var update Update
	feed, err := w.fetcher.Fetch(ctx)
	if err != nil {
		w.metrics.IncrementCounter(metrics.NetStatusFailures)
		w.tracer.RecordError(txn, err)
		log.Error().Err(err).Msg("Network status poll failed")
		update.Err = err
	} else {
		snapshot := Filter(feed, w.prefixes, w.clock.Now())
		w.tracer.AddAttribute(txn, "controllers", len(snapshot.Controllers))
		w.tracer.AddAttribute(txn, "pilots", len(snapshot.Pilots))
		update.Snapshot = &snapshot
	}
	w.metrics.RecordTimer("netstatus_poll", w.clock.Since(start))

	select {
	case w.updates <- update:
	case <-ctx.Done():
	}
}
