// Package agent implements the structured-output agent loop: the
// contract validator with its bounded repair protocol, and the session
// orchestrator that sequences one user turn end-to-end.
package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/thursdaylabs/thursday/internal/llm"
	"github.com/thursdaylabs/thursday/internal/schema"
)

// Mode selects which contract variant a completion runs under.
type Mode int

const (
	// ModeFirstPass permits tool calls in the plan.
	ModeFirstPass Mode = iota
	// ModeFinalAnswer is the follow-up pass; repair instructions assert
	// that tool_calls must be empty. The schema cannot express this, so
	// the constraint rides in the repair text and the orchestrator drops
	// any stray calls from the validated plan.
	ModeFinalAnswer
)

// maxAttempts bounds the repair protocol. The third failed attempt is
// terminal.
const maxAttempts = 3

// ContractError is the hard failure raised when the backend cannot
// produce schema-conformant output within maxAttempts. It carries the
// last raw output for diagnosis; callers must not treat it as a plan.
type ContractError struct {
	LastOutput string
	Attempts   int
	Reason     string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("backend output failed validation after %d attempts: %s", e.Attempts, e.Reason)
}

// Validator drives the request/parse/validate/repair state machine
// against the generative backend. The backend's raw output is untrusted;
// the only values that leave this type are validated AgentPlans or
// explicit failures.
type Validator struct {
	gen    llm.Generator
	model  string
	logger *slog.Logger
}

// NewValidator creates a contract validator bound to a backend and model.
func NewValidator(gen llm.Generator, model string, logger *slog.Logger) *Validator {
	return &Validator{gen: gen, model: model, logger: logger}
}

// Complete submits the task to the backend and returns a validated
// AgentPlan, repairing malformed output up to maxAttempts times.
//
// Transport faults are returned immediately and never retried here;
// retrying is the caller's (or its supervisor's) responsibility.
// Contract violations exhaust into a *ContractError.
func (v *Validator) Complete(ctx context.Context, mode Mode, system, task string) (*schema.AgentPlan, error) {
	prompt := task
	var lastRaw, lastReason string

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		raw, err := v.gen.Generate(ctx, llm.GenerateRequest{
			Model:  v.model,
			System: system,
			Prompt: prompt,
		})
		if err != nil {
			return nil, fmt.Errorf("backend transport fault: %w", err)
		}

		plan, perr := schema.ParsePlan(raw)
		if perr == nil {
			if attempt > 1 {
				v.logger.Info("plan validated after repair", "attempt", attempt)
			}
			return plan, nil
		}

		lastRaw, lastReason = raw, perr.Error()
		v.logger.Debug("plan failed validation",
			"attempt", attempt, "reason", lastReason)

		// Each repair resubmits with an immutable, freshly built payload:
		// the malformed output, the failure description and the contract.
		prompt = repairInstruction(raw, lastReason, mode == ModeFinalAnswer)
	}

	v.logger.Warn("repair loop exhausted", "attempts", maxAttempts, "reason", lastReason)
	return nil, &ContractError{LastOutput: lastRaw, Attempts: maxAttempts, Reason: lastReason}
}
