package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/thursdaylabs/thursday/internal/memory"
	"github.com/thursdaylabs/thursday/internal/schema"
	"github.com/thursdaylabs/thursday/internal/tools"
)

// Loop is the session orchestrator. It sequences one full user turn:
// context assembly, first-pass plan, tool dispatch, follow-up final
// answer, and persistence of every step in strict causal order.
//
// Turns are serialized: the loop processes one turn to completion before
// accepting the next, which makes it the memory store's only writer.
type Loop struct {
	logger       *slog.Logger
	store        *memory.Store
	validator    *Validator
	registry     *tools.Registry
	extractor    *memory.Extractor
	historyLimit int

	mu sync.Mutex
}

// NewLoop creates the orchestrator.
func NewLoop(logger *slog.Logger, store *memory.Store, validator *Validator, registry *tools.Registry, historyLimit int) *Loop {
	if historyLimit <= 0 {
		historyLimit = 30
	}
	return &Loop{
		logger:       logger,
		store:        store,
		validator:    validator,
		registry:     registry,
		historyLimit: historyLimit,
	}
}

// SetExtractor enables the best-effort fact-extraction pass.
func (l *Loop) SetExtractor(e *memory.Extractor) {
	l.extractor = e
}

// RunTurn processes one user turn end-to-end and returns the final
// validated AgentPlan.
//
// Errors returned here are fatal to the turn (transport, contract
// exhaustion, persistence); tool failures are not errors, they are
// folded into the follow-up prompt so the final answer can acknowledge
// them. Messages logged before a fatal error remain persisted; there is
// no cross-turn rollback.
func (l *Loop) RunTurn(ctx context.Context, userText string) (*schema.AgentPlan, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	requestID, _ := uuid.NewV7()
	logger := l.logger.With("request_id", requestID.String())
	logger.Info("turn started", "chars", len(userText))

	// Step 1: the incoming user message is the first log entry.
	if err := l.store.LogMessage(memory.Message{Role: "user", Content: userText}); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	// Step 2: point-in-time memory snapshot for the prompt.
	mctx, err := l.store.MemoryContext(l.historyLimit, true)
	if err != nil {
		return nil, fmt.Errorf("build memory context: %w", err)
	}

	// Step 3: first-pass plan (tool calls permitted).
	plan, err := l.validator.Complete(ctx, ModeFirstPass, systemPrompt, firstPassTask(mctx, userText))
	if err != nil {
		return nil, err
	}

	// Step 4: the plan's reply, even when tools will supersede it.
	if err := l.store.LogMessage(memory.Message{Role: "assistant", Content: plan.Reply}); err != nil {
		return nil, fmt.Errorf("persist plan reply: %w", err)
	}

	// Step 5: dispatch tools sequentially, preserving call order.
	var results []schema.ToolResult
	for _, call := range plan.ToolCalls {
		res := l.registry.Dispatch(ctx, call)
		results = append(results, res)

		msg := memory.Message{
			Role:       "assistant",
			Content:    "TOOL_RESULT:" + string(call.Name),
			ToolName:   string(call.Name),
			ToolArgs:   call.Args,
			ToolResult: &res,
		}
		if err := l.store.LogMessage(msg); err != nil {
			return nil, fmt.Errorf("persist tool result: %w", err)
		}
	}

	// Steps 6-7: follow-up final answer when tools ran. Its reply and
	// speech_text supersede the first pass and get their own log entry.
	if len(results) > 0 {
		final, err := l.validator.Complete(ctx, ModeFinalAnswer, systemPrompt, followUpTask(userText, results))
		if err != nil {
			return nil, err
		}

		// The final-answer contract is carried in prompt text, not the
		// schema; enforce it here by dropping any stray calls.
		if len(final.ToolCalls) > 0 {
			logger.Warn("final answer contained tool calls, dropping", "count", len(final.ToolCalls))
			final.ToolCalls = []schema.ToolCall{}
		}
		plan = final

		if err := l.store.LogMessage(memory.Message{Role: "assistant", Content: plan.Reply}); err != nil {
			return nil, fmt.Errorf("persist final reply: %w", err)
		}
	}

	// Step 8: best-effort fact extraction; never fails the turn.
	if l.extractor != nil {
		if n := l.extractor.MaybeExtract(ctx, userText, plan.Reply, results); n > 0 {
			logger.Debug("facts extracted", "count", n)
		}
	}

	logger.Info("turn completed", "tool_calls", len(results))
	return plan, nil
}
