// Package agent implements the LLM tool-calling executor (spec component
// C7, "the hardest subsystem"): a turn loop that calls anthropic-sdk-go
// with a fixed tool surface, accumulates a pending plan guarded by a
// known-id set, runs auto-fit, and commits one atomic batch.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/rs/zerolog/log"

	"github.com/silapakurthi/collabboard/internal/observability"
	"github.com/silapakurthi/collabboard/pkg/board"
	"github.com/silapakurthi/collabboard/pkg/store"
)

const (
	systemPrompt = `You are a diagramming assistant for a collaborative whiteboard. You act on
the board using the tools provided; you never describe what you would do in
plain text instead of calling a tool. Use getBoardState if you need to see
ids you don't already have. Reference only ids that exist on the board or
that you created earlier in this conversation. Batch every action you can
determine up front into as few turns as possible.`
)

// ErrTransient signals a turn-0 failure with no actions taken, which the
// caller should surface as a retryable error (spec §4.7 failure semantics).
var ErrTransient = errors.New("agent: transient failure, no actions taken")

// Executor runs one board-agent invocation per Run call.
type Executor struct {
	client   anthropic.Client
	model    string
	registry *board.Registry
	tracer   *observability.Tracer

	perTurnTimeout time.Duration
	maxTurns       int
	padSide        float64
	padTop         float64
	padBottom      float64
}

func NewExecutor(client anthropic.Client, model string, registry *board.Registry, tracer *observability.Tracer, perTurnTimeout time.Duration, maxTurns int, padSide, padTop, padBottom float64) *Executor {
	return &Executor{
		client:         client,
		model:          model,
		registry:       registry,
		tracer:         tracer,
		perTurnTimeout: perTurnTimeout,
		maxTurns:       maxTurns,
		padSide:        padSide,
		padTop:         padTop,
		padBottom:      padBottom,
	}
}

// ActionRecord is one committed (or attempted) tool call, shaped to match
// the /boardAgent response contract (spec §6: `actions: [{tool, input,
// objectId?}]`).
type ActionRecord struct {
	Tool     string          `json:"tool"`
	Input    json.RawMessage `json:"input"`
	ObjectID string          `json:"objectId,omitempty"`
}

// Result is returned to the HTTP handler once an invocation completes,
// whether fully or partially.
type Result struct {
	Actions []ActionRecord
	Summary string
}

// Run executes one natural-language command against a board (spec §4.7).
func (e *Executor) Run(ctx context.Context, boardID, userID, command string) (*Result, error) {
	hub, err := e.registry.Get(boardID)
	if err != nil {
		return nil, fmt.Errorf("get board hub: %w", err)
	}

	snapshot := hub.Snapshot()
	p := newPlan(boardID, snapshot)

	run := e.tracer.StartRun(boardID, userID, command)

	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(buildInitialPrompt(snapshot, command))),
	}

	tools := make([]anthropic.ToolUnionParam, 0, len(buildToolSpecs()))
	for _, spec := range buildToolSpecs() {
		tools = append(tools, anthropic.ToolUnionParam{OfTool: &spec.param})
	}

	var actions []ActionRecord
	var resultTexts []string
	sentNudge := false
	var runErr error

turnLoop:
	for turn := 0; turn < e.maxTurns; turn++ {
		turnCtx, cancel := context.WithTimeout(ctx, e.perTurnTimeout)
		gen := run.StartGeneration(turn, e.model, 0)

		message, err := e.client.Messages.New(turnCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(e.model),
			MaxTokens: 4096,
			System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
			Messages:  messages,
			Tools:     tools,
		})
		cancel()

		if err != nil {
			gen.End(0, "", err)
			if len(actions) == 0 {
				runErr = fmt.Errorf("%w: %v", ErrTransient, err)
				run.Finish("", runErr)
				return nil, runErr
			}
			log.Warn().Err(err).Str("board_id", boardID).Int("turn", turn).
				Msg("agent turn failed mid-run, committing partial plan")
			break turnLoop
		}

		gen.End(int(message.Usage.OutputTokens), summarizeBlocks(message.Content), nil)

		toolCalls := 0
		var toolResults []anthropic.ContentBlockParamUnion
		for _, block := range message.Content {
			switch variant := block.AsAny().(type) {
			case anthropic.ToolUseBlock:
				toolCalls++
				resultText, objectID := dispatch(variant.Name, p, json.RawMessage(variant.Input))
				actions = append(actions, ActionRecord{
					Tool:     variant.Name,
					Input:    json.RawMessage(variant.Input),
					ObjectID: objectID,
				})
				resultTexts = append(resultTexts, resultText)
				toolResults = append(toolResults, anthropic.NewToolResultBlock(variant.ID, resultText, false))
			}
		}

		messages = append(messages, message.ToParam())
		if toolCalls > 0 {
			messages = append(messages, anthropic.NewUserMessage(toolResults...))
		}

		if message.StopReason != anthropic.StopReasonToolUse {
			if toolCalls == 0 && turn == 0 && !sentNudge {
				sentNudge = true
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(
					"You must call at least one tool to act on the board. If there is nothing to do, call getBoardState.")))
				continue
			}
			break turnLoop
		}

		if toolCalls == 1 {
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(
				"If there are more actions left to take, issue all of them now in this next turn instead of one at a time.")))
		}
	}

	changedFrames := AutoFit(p.objects, e.padSide, e.padTop, e.padBottom)

	writes := p.writes
	for _, frameID := range changedFrames {
		o := p.objects[frameID]
		writes = append(writes, store.Write{
			BoardID: boardID,
			DocID:   frameID,
			Mode:    store.ModeMerge,
			Fields: map[string]any{
				"x": o.rect.x, "y": o.rect.y, "width": o.rect.w, "height": o.rect.h,
			},
		})
	}

	if len(writes) > 0 {
		if err := hub.Batch(ctx, writes); err != nil {
			runErr = fmt.Errorf("commit agent plan: %w", err)
			run.Finish("", runErr)
			return nil, runErr
		}
	}

	summary := summarizeActions(resultTexts)
	run.Finish(summary, nil)
	return &Result{Actions: actions, Summary: summary}, nil
}

func buildInitialPrompt(snapshot []map[string]any, command string) string {
	var b strings.Builder
	b.WriteString("Current board state:\n")
	if len(snapshot) == 0 {
		b.WriteString("(empty)\n")
	}
	for _, fields := range snapshot {
		id, _ := fields["id"].(string)
		typ, _ := fields["type"].(string)
		fmt.Fprintf(&b, "- %s: %s\n", id, typ)
	}
	b.WriteString("\nCommand: ")
	b.WriteString(command)
	return b.String()
}

func summarizeBlocks(blocks []anthropic.ContentBlockUnion) string {
	var b strings.Builder
	for _, block := range blocks {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(variant.Text)
		}
	}
	return b.String()
}

func summarizeActions(actions []string) string {
	if len(actions) == 0 {
		return "no changes were made"
	}
	return fmt.Sprintf("%d action(s): %s", len(actions), strings.Join(actions, "; "))
}
