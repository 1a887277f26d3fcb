// Package importer loads transactions from external sources into the local
// store.
package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lachiem1/cashflow/internal/ledger"
)

var ErrUnsupportedSource = errors.New("unsupported transaction source")

// Source produces the full set of transactions it currently knows about.
type Source interface {
	Name() string
	Load(ctx context.Context) ([]ledger.Transaction, error)
}

// TransactionWriter replaces everything previously imported from a source.
type TransactionWriter interface {
	ReplaceSource(ctx context.Context, source string, txs []ledger.Transaction, importedAt time.Time) error
}

// StateRecorder keeps per-source import bookkeeping.
type StateRecorder interface {
	RecordAttempt(ctx context.Context, source string, at time.Time) error
	RecordSuccess(ctx context.Context, source string, at time.Time, count int) error
	RecordError(ctx context.Context, source string, at time.Time, err error) error
}

type EventType string

const (
	EventImportStarted EventType = "import_started"
	EventImportOK      EventType = "import_ok"
	EventImportFailed  EventType = "import_failed"
)

type Event struct {
	Type    EventType
	Source  string
	At      time.Time
	Count   int
	Err     error
	RetryIn time.Duration
}

type Importer struct {
	writer  TransactionWriter
	state   StateRecorder
	workers int
	log     zerolog.Logger
	onEvent func(Event)
	now     func() time.Time
}

type Option func(*Importer)

func WithWorkers(n int) Option {
	return func(im *Importer) {
		im.workers = n
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(im *Importer) {
		im.log = log
	}
}

func WithEvents(fn func(Event)) Option {
	return func(im *Importer) {
		im.onEvent = fn
	}
}

// New builds an importer. state may be nil when no bookkeeping is wanted.
func New(writer TransactionWriter, state StateRecorder, opts ...Option) (*Importer, error) {
	if writer == nil {
		return nil, errors.New("importer requires a transaction writer")
	}
	im := &Importer{
		writer:  writer,
		state:   state,
		workers: 4,
		log:     zerolog.Nop(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(im)
	}
	if im.workers <= 0 {
		im.workers = 1
	}
	return im, nil
}

// SourceResult reports the outcome for one source.
type SourceResult struct {
	Source string
	Count  int
	Err    error
}

type Result struct {
	Sources []SourceResult
}

// Imported is the number of transactions stored across all sources.
func (r Result) Imported() int {
	total := 0
	for _, s := range r.Sources {
		if s.Err == nil {
			total += s.Count
		}
	}
	return total
}

func (r Result) Failed() int {
	n := 0
	for _, s := range r.Sources {
		if s.Err != nil {
			n++
		}
	}
	return n
}

// Run imports every source concurrently. A failing source does not stop
// the others; all failures are joined into the returned error.
func (im *Importer) Run(ctx context.Context, sources []Source) (Result, error) {
	results, err := runBounded(ctx, sources, im.workers, func(ctx context.Context, src Source) (SourceResult, error) {
		count, err := im.importOne(ctx, src)
		return SourceResult{Source: src.Name(), Count: count, Err: err}, nil
	})
	if err != nil {
		return Result{}, err
	}

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("import %s: %w", r.Source, r.Err))
		}
	}
	return Result{Sources: results}, errors.Join(errs...)
}

// Import runs a single source.
func (im *Importer) Import(ctx context.Context, src Source) (int, error) {
	return im.importOne(ctx, src)
}

func (im *Importer) importOne(ctx context.Context, src Source) (int, error) {
	name := src.Name()
	log := im.log.With().Str("source", name).Logger()

	im.emit(Event{Type: EventImportStarted, Source: name, At: im.now()})
	count := 0
	err := runImportAttempt(ctx, im.state, name, im.now, func(ctx context.Context) (int, error) {
		txs, err := src.Load(ctx)
		if err != nil {
			return 0, err
		}
		if err := im.writer.ReplaceSource(ctx, name, txs, im.now()); err != nil {
			return 0, err
		}
		count = len(txs)
		return count, nil
	})
	if err != nil {
		log.Error().Err(err).Msg("import failed")
		im.emit(Event{Type: EventImportFailed, Source: name, At: im.now(), Err: err})
		return 0, err
	}

	log.Info().Int("count", count).Msg("import finished")
	im.emit(Event{Type: EventImportOK, Source: name, At: im.now(), Count: count})
	return count, nil
}

func (im *Importer) emit(evt Event) {
	if im.onEvent == nil {
		return
	}
	im.onEvent(evt)
}

// runImportAttempt wraps import work with import_state bookkeeping. The work
// function returns the number of stored transactions.
func runImportAttempt(
	ctx context.Context,
	state StateRecorder,
	source string,
	now func() time.Time,
	work func(context.Context) (int, error),
) error {
	if state == nil {
		_, err := work(ctx)
		return err
	}
	if err := state.RecordAttempt(ctx, source, now()); err != nil {
		return err
	}

	count, err := work(ctx)
	if err != nil {
		_ = state.RecordError(context.Background(), source, now(), err)
		return err
	}
	return state.RecordSuccess(ctx, source, now(), count)
}
