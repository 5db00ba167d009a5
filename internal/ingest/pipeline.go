package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hkzhang08/gradcafe-ingest/internal/clean"
	"github.com/hkzhang08/gradcafe-ingest/internal/domain"
	"github.com/hkzhang08/gradcafe-ingest/internal/monitoring"
	"github.com/hkzhang08/gradcafe-ingest/internal/scrape"
	"github.com/hkzhang08/gradcafe-ingest/internal/storage"
)

// Source identifies this ingestion pipeline in the watermark table.
const Source = "scrape_new_data"

// runLockTTL bounds how long a crashed replica can hold the distributed run
// lock before another replica may ingest again.
const runLockTTL = time.Hour

var (
	// ErrRunInProgress signals that an ingestion run is already active.
	ErrRunInProgress = errors.New("an ingestion run is already in progress")

	// ErrRunFailed is the generic, non-leaking failure returned to callers.
	// Internal detail goes to the log only.
	ErrRunFailed = errors.New("ingestion run failed; see service logs")
)

// Store is the relational-store surface the pipeline needs.
type Store interface {
	LastSeen(ctx context.Context, source string) (*string, error)
	ExistingURLs(ctx context.Context) (map[string]struct{}, error)
	LoadPlan(ctx context.Context, source string, plan domain.InsertPlan) (int, error)
}

// PageFetcher retrieves one listing page of HTML.
type PageFetcher interface {
	FetchPage(ctx context.Context, page int) ([]byte, error)
}

// Standardizer is the external LLM name-normalization service. It is a
// best-effort annotator; its output never gates insert eligibility.
type Standardizer interface {
	Normalize(ctx context.Context, text string) (domain.Standardized, error)
}

// RunLocker is an optional cross-replica lock around the whole run.
type RunLocker interface {
	TryLock(ctx context.Context, source string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, source string) error
}

// Pipeline sequences fetch -> parse -> normalize -> plan -> load and owns the
// single-run state machine (idle -> running -> done|error).
type Pipeline struct {
	fetcher PageFetcher
	parser  *scrape.Parser
	store   Store
	std     Standardizer // optional
	lock    RunLocker    // optional
	metrics *monitoring.Metrics
	logger  *zap.Logger

	targetRecords int
	pageDelay     time.Duration

	mu     sync.Mutex
	status domain.RunStatus
}

func NewPipeline(
	fetcher PageFetcher,
	parser *scrape.Parser,
	store Store,
	std Standardizer,
	lock RunLocker,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
	targetRecords int,
	pageDelay time.Duration,
) *Pipeline {
	return &Pipeline{
		fetcher:       fetcher,
		parser:        parser,
		store:         store,
		std:           std,
		lock:          lock,
		metrics:       metrics,
		logger:        logger,
		targetRecords: targetRecords,
		pageDelay:     pageDelay,
		status:        domain.RunStatus{State: domain.RunIdle},
	}
}

// Status returns a snapshot of the current run state.
func (p *Pipeline) Status() domain.RunStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Run executes one full scrape-to-store run synchronously. Returns
// ErrRunInProgress when another run is active.
func (p *Pipeline) Run(ctx context.Context) (int, error) {
	if err := p.begin(ctx); err != nil {
		return 0, err
	}

	inserted, err := p.run(ctx)
	return p.finish(ctx, inserted, err)
}

// Start begins a run in the background. The check-and-set on the run state
// happens synchronously so a second caller gets ErrRunInProgress immediately.
func (p *Pipeline) Start() error {
	if err := p.begin(context.Background()); err != nil {
		return err
	}
	go func() {
		ctx := context.Background()
		inserted, err := p.run(ctx)
		p.finish(ctx, inserted, err)
	}()
	return nil
}

// IngestRecords runs the normalize -> plan -> load stages over pre-scraped
// raw records (the queue task path), without the fetch stage. A non-nil since
// overrides the stored watermark.
func (p *Pipeline) IngestRecords(ctx context.Context, raws []domain.RawRecord, since *string) (int, error) {
	if err := p.begin(ctx); err != nil {
		return 0, err
	}

	inserted, err := p.ingest(ctx, clean.NormalizeAll(raws), since)
	return p.finish(ctx, inserted, err)
}

// begin atomically moves idle -> running and takes the distributed lock when
// one is configured. At most one run may be active at a time.
func (p *Pipeline) begin(ctx context.Context) error {
	p.mu.Lock()
	if p.status.State == domain.RunRunning {
		p.mu.Unlock()
		return ErrRunInProgress
	}
	prev := p.status
	p.status = domain.RunStatus{State: domain.RunRunning}
	p.mu.Unlock()

	if p.lock != nil {
		acquired, err := p.lock.TryLock(ctx, Source, runLockTTL)
		if err != nil {
			p.setState(domain.RunError, 0, "could not acquire the ingestion run lock")
			p.logger.Error("run lock acquisition failed", zap.Error(err))
			return ErrRunFailed
		}
		if !acquired {
			// Another replica holds the lock; keep reporting the last
			// completed run of this one instead of resetting to idle.
			p.mu.Lock()
			p.status = prev
			p.mu.Unlock()
			return ErrRunInProgress
		}
	}
	return nil
}

// finish records the terminal state and releases the run lock. The returned
// error is sanitized: callers see a generic failure or a distinct operator
// message for missing schema, never raw internal errors.
func (p *Pipeline) finish(ctx context.Context, inserted int, err error) (int, error) {
	if p.lock != nil {
		if unlockErr := p.lock.Unlock(ctx, Source); unlockErr != nil {
			p.logger.Warn("run lock release failed", zap.Error(unlockErr))
		}
	}

	if err == nil {
		p.setState(domain.RunDone, inserted, "")
		p.metrics.IncRuns("done")
		p.logger.Info("ingestion run complete", zap.Int("inserted", inserted))
		return inserted, nil
	}

	p.metrics.IncRuns("error")
	p.logger.Error("ingestion run failed", zap.Error(err))

	if errors.Is(err, storage.ErrSchemaMissing) {
		p.setState(domain.RunError, 0, storage.ErrSchemaMissing.Error())
		return 0, storage.ErrSchemaMissing
	}
	p.setState(domain.RunError, 0, ErrRunFailed.Error())
	return 0, ErrRunFailed
}

func (p *Pipeline) setState(state domain.RunState, inserted int, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = domain.RunStatus{State: state, Inserted: inserted, Message: message}
}

// run is the full pipeline body: collect pages, then plan and load.
func (p *Pipeline) run(ctx context.Context) (int, error) {
	records, err := p.collect(ctx)
	if err != nil {
		return 0, err
	}
	return p.ingest(ctx, records, nil)
}

// collect fetches listing pages until the record target is met, a page
// yields no parseable records, or the robots policy stops the crawl. Fetch
// transport failures abort the run.
func (p *Pipeline) collect(ctx context.Context) ([]domain.ApplicantRecord, error) {
	var records []domain.ApplicantRecord
	page := 1

	for len(records) < p.targetRecords {
		body, err := p.fetcher.FetchPage(ctx, page)
		if errors.Is(err, scrape.ErrFetchDenied) {
			p.logger.Info("stopping crawl at robots boundary", zap.Int("page", page))
			break
		}
		if err != nil {
			p.metrics.IncErrors("fetch_failed")
			return nil, fmt.Errorf("fetch page %d: %w", page, err)
		}
		p.metrics.IncPagesFetched()

		raws, err := p.parser.Parse(bytes.NewReader(body))
		if err != nil {
			p.metrics.IncErrors("parse_failed")
			return nil, fmt.Errorf("parse page %d: %w", page, err)
		}
		if len(raws) == 0 {
			p.logger.Info("page yielded no records, stopping", zap.Int("page", page))
			break
		}
		p.metrics.AddRecordsParsed(len(raws))

		for _, raw := range raws {
			if len(records) >= p.targetRecords {
				break
			}
			if rec, ok := clean.Normalize(raw); ok {
				records = append(records, rec)
			}
		}

		p.logger.Info("page scraped",
			zap.Int("page", page),
			zap.Int("page_records", len(raws)),
			zap.Int("collected", len(records)))

		page++
		// Fixed delay between pages as backpressure against the source.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.pageDelay):
		}
	}

	return records, nil
}

// ingest plans the batch against the stored watermark and URL set, annotates
// the new rows, and commits inserts plus watermark atomically.
//
// The watermark and existing-URL reads run before the load transaction. That
// is safe only because begin admits a single active run per source (the state
// CAS plus the distributed lock), so no other writer can move the watermark
// or add URLs between these reads and the commit in LoadPlan.
func (p *Pipeline) ingest(ctx context.Context, records []domain.ApplicantRecord, since *string) (int, error) {
	if since == nil {
		stored, err := p.store.LastSeen(ctx, Source)
		if err != nil {
			return 0, fmt.Errorf("read watermark: %w", err)
		}
		since = stored
	}

	existing, err := p.store.ExistingURLs(ctx)
	if err != nil {
		return 0, fmt.Errorf("read existing urls: %w", err)
	}

	plan := Plan(domain.IngestionBatch{Records: records, Since: since}, existing)
	p.annotate(ctx, plan.Inserts)

	inserted, err := p.store.LoadPlan(ctx, Source, plan)
	if err != nil {
		p.metrics.IncErrors("load_failed")
		return 0, err
	}
	p.metrics.AddRowsInserted(inserted)

	p.logger.Info("batch loaded",
		zap.Int("candidates", len(records)),
		zap.Int("inserted", inserted),
		zap.Stringp("since", since),
		zap.Stringp("new_watermark", plan.NextWatermark))
	return inserted, nil
}

// annotate asks the standardizer for canonical program/university names.
// Any failure nulls out the enrichment and never fails the run.
func (p *Pipeline) annotate(ctx context.Context, inserts []domain.ApplicantRecord) {
	if p.std == nil {
		return
	}
	for i := range inserts {
		if inserts[i].LLMProgram != nil || inserts[i].LLMUniversity != nil {
			continue
		}
		std, err := p.std.Normalize(ctx, inserts[i].Program)
		if err != nil {
			p.metrics.IncErrors("llm_unavailable")
			p.logger.Warn("standardizer unavailable, skipping enrichment", zap.Error(err))
			return
		}
		inserts[i].LLMProgram = clean.Text(std.Program)
		inserts[i].LLMUniversity = clean.Text(std.University)
	}
}
