// Package engine runs one incremental sync: discover media, keep what the
// cursor has not seen, tag and upload it oldest first, then move the cursor.
//
// Delivery is at-least-once. A failed item is not retried within the run and
// does not hold the watermark back: if a later item succeeds, the watermark
// moves past the failed one and it will not be picked up again.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"gamesync/internal/collector"
	"gamesync/internal/cursor"
	"gamesync/internal/embed"
	"gamesync/internal/immich"
	"gamesync/internal/media"
)

// ErrDiscovery marks a run that ended before processing anything because
// the collector failed. Any other error from Run means the cursor could not
// be saved after a completed run.
var ErrDiscovery = errors.New("discovery failed")

// Uploader delivers a tagged file to the photo server.
type Uploader interface {
	Upload(ctx context.Context, asset immich.Asset) (*immich.UploadResult, error)
}

// Resolver names games from platform IDs.
type Resolver interface {
	Resolve(ctx context.Context, appID string) (string, error)
}

// Outcome is the fate of one item.
type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
)

// ItemResult reports one processed item.
type ItemResult struct {
	Record  media.Record
	Outcome Outcome
	// Path is the tagged file, empty on failure.
	Path string
	Err  error
}

// Summary counts the outcomes of a run.
type Summary struct {
	RunID     string `json:"run_id"`
	OK        int    `json:"ok"`
	Duplicate int    `json:"duplicate"`
	Failed    int    `json:"failed"`
	Total     int    `json:"total"`
}

// Engine orchestrates a sync run. It holds no per-run state and may be
// reused for several runs.
type Engine struct {
	embedder embed.Embedder
	uploader Uploader
	resolver Resolver
	logger   logrus.FieldLogger
	report   func(ItemResult)
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithResolver fills in missing game names from record game IDs.
func WithResolver(r Resolver) Option {
	return func(e *Engine) { e.resolver = r }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithReporter registers a callback invoked after every item.
func WithReporter(fn func(ItemResult)) Option {
	return func(e *Engine) { e.report = fn }
}

// WithClock overrides the time source used for processed log entries.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine. A nil uploader runs in tag-only mode: files are
// tagged (into the embedder's output folder) but nothing is uploaded.
func New(embedder embed.Embedder, uploader Uploader, opts ...Option) *Engine {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	e := &Engine{
		embedder: embedder,
		uploader: uploader,
		logger:   discard,
		report:   func(ItemResult) {},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run performs one sync of the media c discovers against cur. Item failures
// are counted, never returned. The error is non-nil only when discovery
// fails as a whole or the cursor cannot be saved; in the latter case the
// Summary is still complete.
func (e *Engine) Run(ctx context.Context, c collector.Collector, cur *cursor.Cursor) (Summary, error) {
	summary := Summary{RunID: uuid.NewString()}
	log := e.logger.WithField("run_id", summary.RunID)

	items, err := c.Discover(ctx)
	if err != nil {
		return summary, fmt.Errorf("%w: %w", ErrDiscovery, err)
	}

	candidates := selectNew(items, cur)
	summary.Total = len(candidates)
	log.WithFields(logrus.Fields{
		"discovered": len(items),
		"new":        len(candidates),
		"watermark":  cur.Watermark(),
	}).Info("discovery complete")

	if len(candidates) == 0 {
		return summary, nil
	}

	var newest int64
	for _, rec := range candidates {
		res := e.process(ctx, rec, log)
		e.report(res)

		switch res.Outcome {
		case OutcomeFailed:
			summary.Failed++
			continue
		case OutcomeDuplicate:
			summary.Duplicate++
		default:
			summary.OK++
		}
		cur.Record(cursor.Entry{
			Identity:    rec.Identity,
			CaptureTime: rec.CaptureTime,
			ProcessedAt: e.now(),
		})
		if rec.CaptureTime > newest {
			newest = rec.CaptureTime
		}
	}

	log = log.WithFields(logrus.Fields{
		"ok":        summary.OK,
		"duplicate": summary.Duplicate,
		"failed":    summary.Failed,
		"total":     summary.Total,
	})
	if summary.OK+summary.Duplicate == 0 {
		log.Warn("no item succeeded, tracking state left unchanged")
		return summary, nil
	}

	cur.Advance(newest)
	if err := cur.Save(ctx); err != nil {
		log.WithError(err).Error("failed to persist tracking state")
		return summary, fmt.Errorf("save cursor: %w", err)
	}
	log.WithField("watermark", cur.Watermark()).Info("sync complete")
	return summary, nil
}

// selectNew keeps records newer than the watermark, oldest first. Records
// with equal capture times keep their discovery order.
func selectNew(items []media.Record, cur *cursor.Cursor) []media.Record {
	var out []media.Record
	for _, rec := range items {
		if cur.IsNew(rec.CaptureTime) {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CaptureTime < out[j].CaptureTime
	})
	return out
}

func (e *Engine) process(ctx context.Context, rec media.Record, runLog logrus.FieldLogger) ItemResult {
	log := runLog.WithFields(logrus.Fields{
		"identity":     rec.Identity,
		"capture_time": rec.CaptureTime,
	})

	if e.resolver != nil && rec.GameID != "" && rec.GameName == "" {
		name, err := e.resolver.Resolve(ctx, rec.GameID)
		if err != nil {
			log.WithError(err).WithField("game_id", rec.GameID).Debug("game name unresolved")
		} else {
			rec.GameName = name
		}
	}

	tagged, err := e.embedder.Embed(ctx, rec)
	if err != nil {
		log.WithError(err).Warn("embedding failed")
		return ItemResult{Record: rec, Outcome: OutcomeFailed, Err: fmt.Errorf("embed: %w", err)}
	}
	if tagged.Temporary {
		defer os.Remove(tagged.Path)
	}

	if e.uploader == nil {
		log.WithField("path", tagged.Path).Debug("tagged")
		return ItemResult{Record: rec, Outcome: OutcomeOK, Path: tagged.Path}
	}

	result, err := e.uploader.Upload(ctx, immich.AssetFor(tagged.Path, rec))
	if err != nil {
		log.WithError(err).Warn("upload failed")
		return ItemResult{Record: rec, Outcome: OutcomeFailed, Err: fmt.Errorf("upload: %w", err)}
	}
	if result.Duplicate() {
		log.WithField("asset_id", result.ID).Info("already on server")
		return ItemResult{Record: rec, Outcome: OutcomeDuplicate, Path: tagged.Path}
	}
	log.WithField("asset_id", result.ID).Info("uploaded")
	return ItemResult{Record: rec, Outcome: OutcomeOK, Path: tagged.Path}
}

