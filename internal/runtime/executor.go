package runtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/cadence/pkg/domain"
	"github.com/aretw0/cadence/pkg/ports"
	"github.com/tidwall/gjson"
)

// MockResponsePrefix starts the deterministic text used when no language model answers.
const MockResponsePrefix = "mock response for: "

// Step-scoped session keys written by the executor.
const (
	ResponseKeySuffix = "_response"
	ResultKeySuffix   = "_result"
	PassedKeySuffix   = "_passed"
)

// ToolSource resolves tool references.
type ToolSource interface {
	Tool(id string) (domain.ToolDefinition, error)
}

// Executor dispatches a single step by its action kind, mutating the session it is given.
type Executor struct {
	tools      ToolSource
	llm        ports.LanguageModelClient
	invoker    ports.ToolInvoker
	evaluator  *Evaluator
	hooks      domain.LifecycleHooks
	logger     *slog.Logger
	llmOptions ports.GenerateOptions
}

// Execute runs one step against s. The returned outcome is always populated,
// including on error, so callers can record the failing step.
func (e *Executor) Execute(ctx context.Context, protocolName string, step domain.Step, s *domain.Session) (domain.StepOutcome, error) {
	outcome := domain.StepOutcome{
		StepID:    step.ID,
		Action:    step.Action,
		StartedAt: time.Now(),
	}

	var err error
	switch step.Action {
	case domain.ActionPrompt:
		e.executePrompt(ctx, step, s, &outcome)
	case domain.ActionToolAPI:
		err = e.executeTool(ctx, protocolName, step, s, &outcome)
	case domain.ActionCondition:
		e.executeCondition(step, s, &outcome)
	case domain.ActionEnd:
		s.Active = false
		outcome.Terminal = true
	default:
		err = &domain.UnknownActionError{StepID: step.ID, Action: step.Action}
	}

	outcome.Duration = time.Since(outcome.StartedAt)
	outcome.Success = err == nil
	if err != nil {
		outcome.Error = err.Error()
	}
	return outcome, err
}

func (e *Executor) executePrompt(ctx context.Context, step domain.Step, s *domain.Session, outcome *domain.StepOutcome) {
	prompt := Resolve(step.Prompt, s.Data)

	response, fallback := e.generate(ctx, step.ID, prompt)
	outcome.Response = response
	outcome.Fallback = fallback
	s.Data[step.ID+ResponseKeySuffix] = response
}

// generate asks the language model for a completion, falling back to a
// deterministic mock text when no client is configured or the call fails.
func (e *Executor) generate(ctx context.Context, stepID, prompt string) (string, bool) {
	if e.llm == nil {
		return MockResponsePrefix + prompt, true
	}

	// Runs are only interrupted between steps.
	text, err := e.llm.Generate(context.WithoutCancel(ctx), prompt, e.llmOptions)
	if err != nil {
		e.logger.Warn("Language model failed, using fallback response", "step_id", stepID, "err", err)
		return MockResponsePrefix + prompt, true
	}
	return text, false
}

func (e *Executor) executeTool(ctx context.Context, protocolName string, step domain.Step, s *domain.Session, outcome *domain.StepOutcome) error {
	def, err := e.tools.Tool(step.ToolRef)
	if err != nil {
		return err
	}

	req := ports.ToolRequest{
		Method: strings.ToUpper(def.Method),
		URL:    Resolve(def.Endpoint, s.Data),
	}
	if req.Method == "" {
		req.Method = domain.DefaultToolMethod
	}
	if def.Parameters != nil {
		req.Params = ResolveValue(def.Parameters, s.Data).(map[string]any)
	}
	if def.Headers != nil {
		req.Headers = ResolveValue(def.Headers, s.Data).(map[string]string)
	}

	e.emitToolCall(ctx, protocolName, s.ID, step.ID, def.ID, req)

	var resp *ports.ToolResponse
	if e.invoker == nil {
		resp = mockToolResponse(req)
	} else {
		resp, err = e.invoker.Invoke(context.WithoutCancel(ctx), req)
		if err != nil {
			e.emitToolReturn(ctx, protocolName, s.ID, step.ID, def.ID, err.Error(), true)
			return &domain.ToolInvocationError{StepID: step.ID, ToolID: def.ID, Cause: err}
		}
	}

	result := resp.Body
	if def.ResultPath != "" {
		result = extract(resp, def.ResultPath)
	}

	e.emitToolReturn(ctx, protocolName, s.ID, step.ID, def.ID, result, false)
	outcome.Result = result
	s.Data[step.ID+ResultKeySuffix] = result
	return nil
}

// mockToolResponse echoes the request when no invoker is configured.
func mockToolResponse(req ports.ToolRequest) *ports.ToolResponse {
	body := map[string]any{
		"mock":    true,
		"method":  req.Method,
		"url":     req.URL,
		"params":  req.Params,
		"headers": req.Headers,
	}
	raw, _ := json.Marshal(body)
	return &ports.ToolResponse{StatusCode: 200, Body: body, Raw: raw}
}

// extract selects path from a JSON response. A missing path yields nil.
func extract(resp *ports.ToolResponse, path string) any {
	raw := resp.Raw
	if len(raw) == 0 {
		var err error
		if raw, err = json.Marshal(resp.Body); err != nil {
			return nil
		}
	}
	r := gjson.GetBytes(raw, path)
	if !r.Exists() {
		return nil
	}
	return r.Value()
}

func (e *Executor) executeCondition(step domain.Step, s *domain.Session, outcome *domain.StepOutcome) {
	passed := true
	summary := map[string]any{}

	if len(step.Conditions) == 0 {
		summary["no_conditions"] = true
	} else {
		checks := make([]map[string]any, 0, len(step.Conditions))
		for _, c := range step.Conditions {
			c.Variable = strings.TrimPrefix(c.Variable, sessionDataPrefix)
			c.Value = ResolveValue(c.Value, s.Data)
			actual, _ := Lookup(s.Data, c.Variable)

			ok := e.evaluator.Evaluate(c, actual)
			passed = passed && ok
			checks = append(checks, map[string]any{
				"variable": c.Variable,
				"operator": string(c.Operator),
				"actual":   actual,
				"expected": c.Value,
				"passed":   ok,
			})
		}
		summary["conditions"] = checks
	}
	summary["passed"] = passed

	outcome.Passed = &passed
	outcome.Result = summary
	s.Data[step.ID+PassedKeySuffix] = passed
}
