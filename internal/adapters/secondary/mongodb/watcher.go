package mongodb

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/meridianapp/realtime-gateway/internal/core/domain"
	apperrors "github.com/meridianapp/realtime-gateway/internal/core/errors"
	"github.com/meridianapp/realtime-gateway/internal/core/ports"
)

const (
	initialRestartBackoff = 500 * time.Millisecond
	maxRestartBackoff     = 30 * time.Second
)

// Config holds change stream options for the watcher.
type Config struct {
	IgnoredCollections []string
	IgnoredOperations  []string
	BatchSize          int
	MaxAwait           time.Duration
	FullDocumentMode   string
	MaxRestarts        int
}

// Watcher consumes the database-wide change stream and hands each
// normalized mutation to the dispatcher. One watcher per database per
// instance; the fan-out to many connections happens downstream, so the
// cost of the feed does not grow with the number of sockets.
//
// A broken stream is reopened from the last seen resume token with
// exponential backoff. Restarts are bounded; once exhausted the watcher
// reports failed and stays down until the process restarts.
type Watcher struct {
	db         *mongo.Database
	dispatcher ports.ChangeDispatcher
	cfg        Config
	logger     *slog.Logger

	mu          sync.Mutex
	status      domain.WatcherStatus
	resumeToken bson.Raw
	cancel      context.CancelFunc
	done        chan struct{}
}

var _ ports.ChangeFeed = (*Watcher)(nil)

// NewWatcher creates a watcher over the given database.
func NewWatcher(db *mongo.Database, dispatcher ports.ChangeDispatcher, cfg Config, logger *slog.Logger) *Watcher {
	return &Watcher{
		db:         db,
		dispatcher: dispatcher,
		cfg:        cfg,
		status:     domain.WatcherNotStarted,
		logger:     logger.With("component", "change_watcher", "database", db.Name()),
	}
}

// changeDocument is the subset of a change stream document the pipeline
// projects. Everything else the server emits is dropped before it crosses
// the wire.
type changeDocument struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID any `bson:"_id"`
	} `bson:"documentKey"`
	NS struct {
		DB   string `bson:"db"`
		Coll string `bson:"coll"`
	} `bson:"ns"`
	FullDocument      bson.M `bson:"fullDocument"`
	UpdateDescription struct {
		UpdatedFields bson.M   `bson:"updatedFields"`
		RemovedFields []string `bson:"removedFields"`
	} `bson:"updateDescription"`
	ClusterTime primitive.Timestamp `bson:"clusterTime"`
}

// Start opens the change stream and begins consuming in the background.
// The initial open is synchronous so misconfiguration fails fast.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.status == domain.WatcherRunning {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	stream, err := w.openStream(ctx)
	if err != nil {
		cancel()
		w.setStatus(domain.WatcherFailed)
		return fmt.Errorf("opening change stream: %w", err)
	}

	w.mu.Lock()
	w.cancel = cancel
	w.done = make(chan struct{})
	w.status = domain.WatcherRunning
	w.mu.Unlock()

	w.logger.Info("change stream opened",
		"full_document_mode", w.cfg.FullDocumentMode,
		"ignored_collections", w.cfg.IgnoredCollections,
		"ignored_operations", w.cfg.IgnoredOperations,
	)

	go w.run(runCtx, stream)
	return nil
}

// Stop shuts the stream down and waits for the consume loop to finish
// delivering whatever it already read. A watcher that already stopped or
// exhausted its restart budget has nothing left to drain, so stopping it
// again succeeds; graceful shutdown of a degraded process must not fail
// on its account.
func (w *Watcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	status := w.status
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	switch status {
	case domain.WatcherStopped, domain.WatcherFailed:
		return nil
	case domain.WatcherRunning:
	default:
		return apperrors.ErrWatcherNotRunning
	}
	if cancel == nil {
		return apperrors.ErrWatcherNotRunning
	}

	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for change stream shutdown: %w", ctx.Err())
	}
}

// Status reports the watcher's externally visible state.
func (w *Watcher) Status() domain.WatcherStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

func (w *Watcher) setStatus(status domain.WatcherStatus) {
	w.mu.Lock()
	w.status = status
	w.mu.Unlock()
}

// pipeline builds the server-side filter: only enabled operation types, and
// never the ignored collections.
func (w *Watcher) pipeline() mongo.Pipeline {
	enabled := make(bson.A, 0, len(domain.AllOperations))
	ignored := make(map[string]bool, len(w.cfg.IgnoredOperations))
	for _, op := range w.cfg.IgnoredOperations {
		ignored[op] = true
	}
	for _, op := range domain.AllOperations {
		if !ignored[string(op)] {
			enabled = append(enabled, string(op))
		}
	}

	match := bson.D{
		{Key: "operationType", Value: bson.D{{Key: "$in", Value: enabled}}},
	}
	if len(w.cfg.IgnoredCollections) > 0 {
		colls := make(bson.A, 0, len(w.cfg.IgnoredCollections))
		for _, coll := range w.cfg.IgnoredCollections {
			colls = append(colls, coll)
		}
		match = append(match, bson.E{Key: "ns.coll", Value: bson.D{{Key: "$nin", Value: colls}}})
	}

	return mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$project", Value: bson.D{
			{Key: "operationType", Value: 1},
			{Key: "documentKey", Value: 1},
			{Key: "ns", Value: 1},
			{Key: "fullDocument", Value: 1},
			{Key: "updateDescription", Value: 1},
			{Key: "clusterTime", Value: 1},
		}}},
	}
}

func (w *Watcher) openStream(ctx context.Context) (*mongo.ChangeStream, error) {
	opts := options.ChangeStream().
		SetBatchSize(int32(w.cfg.BatchSize)).
		SetMaxAwaitTime(w.cfg.MaxAwait)

	switch w.cfg.FullDocumentMode {
	case string(options.WhenAvailable):
		opts.SetFullDocument(options.WhenAvailable)
	default:
		opts.SetFullDocument(options.UpdateLookup)
	}

	w.mu.Lock()
	if w.resumeToken != nil {
		opts.SetResumeAfter(w.resumeToken)
	}
	w.mu.Unlock()

	return w.db.Watch(ctx, w.pipeline(), opts)
}

// run owns the stream from here on: consume until it breaks, then reopen
// from the resume token with backoff until the restart budget is spent.
func (w *Watcher) run(ctx context.Context, stream *mongo.ChangeStream) {
	defer func() {
		w.mu.Lock()
		done := w.done
		w.mu.Unlock()
		close(done)
	}()

	restarts := 0
	backoff := initialRestartBackoff

	for {
		delivered, err := w.consume(ctx, stream)
		_ = stream.Close(context.Background())

		if ctx.Err() != nil {
			w.setStatus(domain.WatcherStopped)
			w.logger.Info("change stream stopped")
			return
		}

		// A stream that made progress before breaking earns a fresh
		// restart budget.
		if delivered > 0 {
			restarts = 0
			backoff = initialRestartBackoff
		}

		for {
			if restarts >= w.cfg.MaxRestarts {
				w.setStatus(domain.WatcherFailed)
				w.logger.Error("change stream restart budget exhausted",
					"error", fmt.Errorf("%w: %v", apperrors.ErrWatcherExhausted, err),
					"restarts", restarts,
				)
				return
			}
			restarts++

			w.logger.Warn("change stream interrupted, restarting",
				"error", err,
				"attempt", restarts,
				"backoff", backoff.String(),
			)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				w.setStatus(domain.WatcherStopped)
				return
			}
			if backoff < maxRestartBackoff {
				backoff *= 2
			}

			stream, err = w.openStream(ctx)
			if err == nil {
				break
			}
		}
	}
}

// consume drains the stream until it errors or the context is canceled,
// returning how many events it handed to the dispatcher.
func (w *Watcher) consume(ctx context.Context, stream *mongo.ChangeStream) (int, error) {
	delivered := 0

	for stream.Next(ctx) {
		w.mu.Lock()
		w.resumeToken = stream.ResumeToken()
		w.mu.Unlock()

		var change changeDocument
		if err := stream.Decode(&change); err != nil {
			w.logger.Error("failed to decode change document", "error", err)
			continue
		}

		event, ok := w.normalize(change)
		if !ok {
			continue
		}

		w.dispatcher.Dispatch(ctx, event)
		delivered++
	}

	return delivered, stream.Err()
}

// normalize converts one raw change document into the pipeline's event
// shape. Events the realtime layer cannot represent are dropped here.
func (w *Watcher) normalize(change changeDocument) (domain.ChangeEvent, bool) {
	op := domain.OperationKind(change.OperationType)
	if !op.Valid() {
		w.logger.Debug("skipping unsupported operation type", "operation_type", change.OperationType)
		return domain.ChangeEvent{}, false
	}

	id := formatDocumentID(change.DocumentKey.ID)
	if id == "" {
		w.logger.Warn("skipping change without document key",
			"collection", change.NS.Coll,
			"operation", change.OperationType,
		)
		return domain.ChangeEvent{}, false
	}

	event := domain.ChangeEvent{
		Collection: change.NS.Coll,
		Operation:  op,
		DocumentID: id,
		Timestamp:  time.Unix(int64(change.ClusterTime.T), 0).UTC(),
	}

	if change.FullDocument != nil {
		event.Document = domain.Document(change.FullDocument)
	}
	if op == domain.OpUpdate {
		fields := make([]string, 0, len(change.UpdateDescription.UpdatedFields)+len(change.UpdateDescription.RemovedFields))
		for name := range change.UpdateDescription.UpdatedFields {
			fields = append(fields, name)
		}
		fields = append(fields, change.UpdateDescription.RemovedFields...)
		sort.Strings(fields)
		event.UpdatedFields = fields
	}

	return event, true
}

// formatDocumentID renders a document key as the wire-format string ID.
func formatDocumentID(id any) string {
	switch v := id.(type) {
	case nil:
		return ""
	case primitive.ObjectID:
		return v.Hex()
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
