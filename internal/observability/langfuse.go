// Package observability wraps the Langfuse tracing client used to record
// agent executor turns: one trace per invocation, one generation span per
// LLM call, carrying prompt/completion token counts (spec §4.7
// "Observability" row).
package observability

import (
	"context"

	"github.com/henomis/langfuse-go"
	"github.com/henomis/langfuse-go/model"
	"github.com/rs/zerolog/log"
)

// Tracer is a thin wrapper around the langfuse-go client. A nil *Tracer is
// valid and turns every method into a no-op, so the agent executor can run
// without Langfuse credentials configured.
type Tracer struct {
	client *langfuse.Langfuse
}

// New builds a Tracer. If secretKey is empty, tracing is disabled and every
// method on the returned Tracer is a no-op.
func New(ctx context.Context, host, publicKey, secretKey string) *Tracer {
	if secretKey == "" {
		return nil
	}
	return &Tracer{client: langfuse.New(ctx)}
}

// Run represents one agent invocation's trace.
type Run struct {
	tracer  *Tracer
	traceID string
}

// StartRun opens a trace for one board-agent invocation.
func (t *Tracer) StartRun(boardID, userID, command string) *Run {
	if t == nil {
		return nil
	}
	trace, err := t.client.Trace(&model.Trace{
		Name:   "boardAgent",
		UserID: userID,
		Input:  command,
		Metadata: model.M{
			"boardId": boardID,
		},
	})
	if err != nil {
		log.Warn().Err(err).Msg("langfuse: failed to start trace")
		return nil
	}
	return &Run{tracer: t, traceID: trace.ID}
}

// Generation records one LLM call within the run.
type Generation struct {
	run  *Run
	name string
	id   string
}

// StartGeneration begins a generation span for one turn of the loop.
func (r *Run) StartGeneration(turn int, modelName string, promptTokens int) *Generation {
	if r == nil {
		return nil
	}
	gen, err := r.tracer.client.Generation(&model.Generation{
		TraceID: r.traceID,
		Name:    "turn",
		Model:   modelName,
		Usage: &model.Usage{
			PromptTokens: promptTokens,
		},
	}, nil)
	if err != nil {
		log.Warn().Err(err).Int("turn", turn).Msg("langfuse: failed to start generation")
		return nil
	}
	return &Generation{run: r, id: gen.ID}
}

// End closes a generation span with its completion token count and output.
func (g *Generation) End(completionTokens int, output string, callErr error) {
	if g == nil {
		return
	}
	gen := &model.Generation{
		ID:     g.id,
		Output: output,
		Usage: &model.Usage{
			CompletionTokens: completionTokens,
		},
	}
	if callErr != nil {
		gen.Level = model.ObservationLevelError
		gen.StatusMessage = callErr.Error()
	}
	if _, err := g.run.tracer.client.GenerationEnd(gen); err != nil {
		log.Warn().Err(err).Msg("langfuse: failed to end generation")
	}
}

// Check reports whether the tracer is configured and able to flush,
// backing the /observabilityCheck endpoint (spec §6).
func (t *Tracer) Check(ctx context.Context) error {
	if t == nil {
		return nil
	}
	return t.client.Flush(ctx)
}

// Finish logs runErr, if any, and flushes buffered events. The summary is
// not recorded on the trace.
func (r *Run) Finish(summary string, runErr error) {
	if r == nil {
		return
	}
	if runErr != nil {
		log.Warn().Err(runErr).Str("trace_id", r.traceID).Msg("agent run finished with error")
	}
	if err := r.tracer.client.Flush(context.Background()); err != nil {
		log.Warn().Err(err).Msg("langfuse: failed to flush")
	}
}
