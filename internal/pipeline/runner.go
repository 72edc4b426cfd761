package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/glassbox-ai/glassbox/internal/model"
	"github.com/glassbox-ai/glassbox/internal/stream"
	"github.com/glassbox-ai/glassbox/internal/trace"
)

// Step keys, in stage order.
const (
	StepReceived     = "received"
	StepEmbedding    = "embedding"
	StepRetrieving   = "retrieving"
	StepToolInvoking = "tool_invoking"
	StepGenerating   = "generating"
)

var stepTitles = map[string]string{
	StepReceived:     "Received question",
	StepEmbedding:    "Embedding question",
	StepRetrieving:   "Retrieving context",
	StepToolInvoking: "Invoking tools",
	StepGenerating:   "Generating answer",
}

// NoMatchAnswer is the canned answer streamed when retrieval finds nothing.
const NoMatchAnswer = "I couldn't find any relevant information in the knowledge base to answer your question."

// Stage timeouts. Generation is unbounded here; its collaborator owns
// the long-call budget since answers legitimately take minutes.
const (
	embedTimeout    = 30 * time.Second
	retrieveTimeout = 15 * time.Second
)

// maxAnswerBytes bounds the accumulated answer. Generation past this
// point is stopped and the answer recorded as truncated.
const maxAnswerBytes = 1 << 20

var (
	errAnswerLimit  = errors.New("pipeline: answer size limit reached")
	errClientClosed = errors.New("pipeline: client stream closed")
)

// Pipeline runs the question-answering stages against its collaborators.
type Pipeline struct {
	embedder    Embedder
	retriever   Retriever
	generator   Generator
	tool        Tool
	recorder    Recorder
	logger      *slog.Logger
	answerLimit int
}

// Config carries the collaborators for New.
type Config struct {
	Embedder  Embedder
	Retriever Retriever
	Generator Generator
	Tool      Tool
	Recorder  Recorder
	Logger    *slog.Logger
}

// New creates a Pipeline. All collaborators are required except Tool,
// which defaults to the fixed-latency placeholder.
func New(cfg Config) *Pipeline {
	tool := cfg.Tool
	if tool == nil {
		tool = &RerankTool{}
	}
	return &Pipeline{
		embedder:    cfg.Embedder,
		retriever:   cfg.Retriever,
		generator:   cfg.Generator,
		tool:        tool,
		recorder:    cfg.Recorder,
		logger:      cfg.Logger,
		answerLimit: maxAnswerBytes,
	}
}

// Run executes one pipeline instance for req, emitting trace events on
// emit as stages progress. It always returns the run record it
// persisted; transport and collaborator failures are reported through
// the event stream and the record, never as a Go error, because by the
// time anything can fail the caller-facing contract is the stream.
//
// Exactly one record is handed to the recorder per call, on every path.
func (p *Pipeline) Run(ctx context.Context, req model.AskRequest, emit stream.Emitter) model.RunRecord {
	start := time.Now()
	topk := ClampTopK(req.TopK)
	threshold := ClampThreshold(req.Threshold)

	ledger := trace.NewLedger()
	out := &guardedEmitter{emitter: emit, logger: p.logger}

	var (
		answer  strings.Builder
		sources []model.SourceMatch
	)

	rec := model.RunRecord{
		ID:        uuid.New(),
		Question:  req.Question,
		TopK:      &topk,
		Threshold: &threshold,
		CreatedAt: start.UTC(),
	}

	logger := p.logger.With("run_id", rec.ID)

	defer func() {
		rec.DurationMs = time.Since(start).Milliseconds()
		if answer.Len() > 0 {
			a := answer.String()
			rec.Answer = &a
		}
		rec.Steps = ledger.Snapshot()
		rec.Sources = sources
		rec.MatchedCount = len(sources)
		p.recorder.Persist(rec)
	}()

	step := func(key string, status model.StepStatus, detail string) {
		merged := ledger.Upsert(model.Step{Key: key, Title: stepTitles[key], Status: status, Detail: detail})
		out.emit(model.StepEvent(merged))
	}
	fail := func(key string, err error) {
		step(key, model.StepError, err.Error())
		out.emit(model.ErrorEvent(err.Error()))
	}

	// received: purely observational, completes immediately.
	step(StepReceived, model.StepPending, "")
	step(StepReceived, model.StepRunning, "")
	step(StepReceived, model.StepDone, "")

	// embedding
	step(StepEmbedding, model.StepPending, "")
	step(StepEmbedding, model.StepRunning, "")
	embedCtx, cancelEmbed := context.WithTimeout(ctx, embedTimeout)
	vector, err := p.embedder.Embed(embedCtx, req.Question)
	cancelEmbed()
	if err != nil {
		logger.Error("pipeline: embedding failed", "error", err)
		fail(StepEmbedding, fmt.Errorf("embedding failed: %w", err))
		return rec
	}
	step(StepEmbedding, model.StepDone, "")

	// retrieving
	step(StepRetrieving, model.StepPending, "")
	step(StepRetrieving, model.StepRunning, "")
	searchCtx, cancelSearch := context.WithTimeout(ctx, retrieveTimeout)
	matches, err := p.retriever.Search(searchCtx, vector, threshold, topk)
	cancelSearch()
	if err != nil {
		logger.Error("pipeline: retrieval failed", "error", err)
		fail(StepRetrieving, fmt.Errorf("retrieval failed: %w", err))
		return rec
	}

	if len(matches) == 0 {
		step(StepRetrieving, model.StepDone, "no matching documents")
		answer.WriteString(NoMatchAnswer)
		out.emit(model.DeltaEvent(NoMatchAnswer))
		logger.Info("pipeline: no matches", "threshold", threshold, "topk", topk)
		return rec
	}

	sources = matches
	step(StepRetrieving, model.StepDone, fmt.Sprintf("%d matching chunks", len(matches)))
	out.emit(model.SourcesEvent(matches))

	// tool_invoking: non-critical, a failure here never aborts the run.
	step(StepToolInvoking, model.StepPending, "")
	step(StepToolInvoking, model.StepRunning, "")
	if err := p.tool.Invoke(ctx, req.Question, matches); err != nil {
		logger.Warn("pipeline: tool stage failed, continuing", "error", err)
		step(StepToolInvoking, model.StepError, err.Error())
	} else {
		step(StepToolInvoking, model.StepDone, "")
	}

	// generating
	step(StepGenerating, model.StepPending, "")
	step(StepGenerating, model.StepRunning, "")
	msgs := buildMessages(req.Question, req.History, matches)
	err = p.generator.Stream(ctx, msgs, func(delta string) error {
		if answer.Len()+len(delta) > p.answerLimit {
			return errAnswerLimit
		}
		answer.WriteString(delta)
		out.emit(model.DeltaEvent(delta))
		if out.failed {
			return errClientClosed
		}
		return nil
	})
	switch {
	case err == nil:
		step(StepGenerating, model.StepDone, "")
	case errors.Is(err, errAnswerLimit):
		logger.Warn("pipeline: answer truncated at size limit")
		step(StepGenerating, model.StepDone, "answer truncated at size limit")
	case errors.Is(err, errClientClosed):
		logger.Info("pipeline: client disconnected mid-generation")
		step(StepGenerating, model.StepError, "client disconnected")
	default:
		logger.Error("pipeline: generation failed", "error", err)
		fail(StepGenerating, fmt.Errorf("generation failed: %w", err))
	}
	return rec
}

// guardedEmitter latches the first transport failure. Once the client
// is gone there is no one to deliver to; the run still proceeds to
// persistence with whatever state it accumulated.
type guardedEmitter struct {
	emitter stream.Emitter
	logger  *slog.Logger
	failed  bool
}

func (g *guardedEmitter) emit(ev model.Event) {
	if g.failed {
		return
	}
	if err := g.emitter.Emit(ev); err != nil {
		g.failed = true
		g.logger.Warn("pipeline: emit failed, suppressing further events", "error", err)
	}
}
