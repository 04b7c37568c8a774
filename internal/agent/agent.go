// Package agent implements the plan/execute/observe control loop that
// turns a user message into a bounded sequence of tool invocations and a
// final natural-language answer.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aidesk/aidesk/internal/provider"
	"github.com/aidesk/aidesk/internal/tools"
)

// terminalToolName is detected by the loop and never executed.
const terminalToolName = "task_complete"

// Message is one conversation history entry.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// StepRecord is one executed tool step in the session trace.
type StepRecord struct {
	Call      ToolCall     `json:"call"`
	Result    tools.Result `json:"result"`
	Formatted string       `json:"formatted"`
	Failed    bool         `json:"failed"`
	Reason    string       `json:"reason,omitempty"`
}

// ProcessOptions carries the caller's sampling parameters for one turn.
// The planning calls ignore Temperature (they always run cold); it applies
// to the summarization call.
type ProcessOptions struct {
	Model            string
	Temperature      float64
	MaxTokens        int
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
}

// Tracer records execution spans. Implementations must be safe for
// concurrent use; a nil Tracer disables tracing.
type Tracer interface {
	RecordSpan(sessionID, kind, name, status, detail string, startedAt time.Time, duration time.Duration)
}

// Options configures a new Agent.
type Options struct {
	Provider      provider.Client
	Registry      *tools.Registry
	MaxIterations int
	MaxRetries    int
	Model         string
	Logger        *slog.Logger
	Tracer        Tracer
}

// Agent owns one session's conversation state and runs the control loop.
type Agent struct {
	sessionID     string
	provider      provider.Client
	registry      *tools.Registry
	maxIterations int
	maxRetries    int
	defaultModel  string
	systemPrompt  string
	logger        *slog.Logger
	tracer        Tracer

	// mu serializes turns: concurrent calls for the same session queue
	// rather than interleave.
	mu          sync.Mutex
	history     []Message
	toolResults []StepRecord
	memory      map[string]any
}

// New creates an Agent for the given session.
func New(sessionID string, opts Options) *Agent {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 10
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Agent{
		sessionID:     sessionID,
		provider:      opts.Provider,
		registry:      opts.Registry,
		maxIterations: opts.MaxIterations,
		maxRetries:    opts.MaxRetries,
		defaultModel:  opts.Model,
		systemPrompt:  BuildSystemPrompt(opts.Registry.Catalog()),
		logger:        opts.Logger.With("session", sessionID),
		tracer:        opts.Tracer,
	}
}

// SessionID returns the owning session id.
func (a *Agent) SessionID() string { return a.sessionID }

// History returns a copy of the conversation history.
func (a *Agent) History() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Message, len(a.history))
	copy(out, a.history)
	return out
}

// SetHistory replaces the conversation history (used on session restore).
func (a *Agent) SetHistory(history []Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append([]Message(nil), history...)
}

// ClearHistory drops the conversation history and execution trace.
func (a *Agent) ClearHistory() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = nil
	a.toolResults = nil
}

// ToolResults returns a copy of the session's execution trace.
func (a *Agent) ToolResults() []StepRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]StepRecord, len(a.toolResults))
	copy(out, a.toolResults)
	return out
}

// SetMemory stores a free-form key/value for the host application.
func (a *Agent) SetMemory(key string, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.memory == nil {
		a.memory = map[string]any{}
	}
	a.memory[key] = value
}

// GetMemory returns a stored value.
func (a *Agent) GetMemory(key string) (any, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.memory[key]
	return v, ok
}

// Process runs one full turn and returns the final answer. Errors from
// the provider or tools never escape: the caller always gets text.
// Exactly one user and one assistant history entry are appended per turn.
func (a *Agent) Process(ctx context.Context, message string, opts ProcessOptions) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	answer := a.run(ctx, message, opts, nil)
	a.appendTurn(message, answer)
	return answer
}

// ProcessStream runs one turn, emitting tagged events on the returned
// channel. The channel is closed when the turn ends; the final event is
// always of type response.
func (a *Agent) ProcessStream(ctx context.Context, message string, opts ProcessOptions) <-chan Event {
	events := make(chan Event, 16)
	go func() {
		defer close(events)
		a.mu.Lock()
		defer a.mu.Unlock()

		emit := func(ev Event) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		}
		answer := a.run(ctx, message, opts, emit)
		a.appendTurn(message, answer)
		emit(Event{Type: EventResponse, Content: answer})
	}()
	return events
}

// appendTurn records the turn's user and assistant entries. Callers hold mu.
func (a *Agent) appendTurn(message, answer string) {
	now := time.Now()
	a.history = append(a.history,
		Message{Role: "user", Content: message, Timestamp: now},
		Message{Role: "assistant", Content: answer, Timestamp: time.Now()},
	)
}

// run drives the loop. Callers hold mu. emit may be nil.
func (a *Agent) run(ctx context.Context, message string, opts ProcessOptions, emit func(Event)) string {
	if emit == nil {
		emit = func(Event) {}
	}

	prompt := message
	var steps []StepRecord
	retries := 0
	lastContent := ""

	for i := 0; i < a.maxIterations; i++ {
		resp, err := a.complete(ctx, a.systemPrompt, prompt, opts, planningTemperature)
		if err != nil {
			reason := fmt.Sprintf("调用AI服务时出错: %v", err)
			a.logger.Warn("planning call failed", "iteration", i, "error", err)
			emit(Event{Type: EventError, Content: reason})
			lastContent = reason
			retries++
			if retries >= a.maxRetries {
				break
			}
			continue
		}
		lastContent = resp.Content

		call, ok := ExtractToolCall(resp.Content)
		if !ok {
			break
		}
		if call.Name == terminalToolName {
			break
		}

		// Deleting mail needs a concrete message id. Without one from the
		// caller or from an earlier list_emails step there is nothing to
		// plan against, so the turn ends without executing anything.
		if call.Name == "email" && stringFromParams(call.Parameters, "action") == "delete_email" {
			if !hasMessageID(call.Parameters) {
				id := lastListedEmailID(steps)
				if id == 0 {
					a.logger.Info("delete_email without candidate message id, terminating turn")
					break
				}
				call.Parameters["message_id"] = id
			}
		}

		emit(Event{Type: EventThinking, Content: resp.Content})
		callJSON, _ := json.Marshal(call)
		emit(Event{Type: EventStepStart, Content: string(callJSON)})

		toolStart := time.Now()
		res := a.registry.Execute(ctx, call.Name, call.Parameters)
		failed, reason := classifyResult(call.Name, res)
		a.recordSpan("tool", call.Name, failed, reason, toolStart)

		formatted := FormatStepResult(*call, res)
		rec := StepRecord{Call: *call, Result: res, Formatted: formatted, Failed: failed, Reason: reason}
		a.toolResults = append(a.toolResults, rec)
		steps = append(steps, rec)

		emit(Event{Type: EventStepResult, Content: formatted})
		if failed {
			a.logger.Warn("tool step failed", "tool", call.Name, "reason", reason)
			emit(Event{Type: EventError, Content: reason})
			retries++
			if retries >= a.maxRetries {
				break
			}
		} else {
			a.logger.Info("tool step ok", "tool", call.Name)
		}
		prompt += buildStepTrace(*call, formatted, failed, reason)
	}

	if len(steps) == 0 {
		if lastContent == "" {
			return "抱歉，我暂时无法处理这个请求。"
		}
		return lastContent
	}
	return a.summarize(ctx, message, steps, opts, emit)
}

// summarize makes the final completion over the collected step results.
func (a *Agent) summarize(ctx context.Context, message string, steps []StepRecord, opts ProcessOptions, emit func(Event)) string {
	traces := make([]string, len(steps))
	for i, s := range steps {
		traces[i] = fmt.Sprintf("已执行工具：%s\n执行结果：%s", s.Call.Name, s.Formatted)
	}

	temperature := opts.Temperature
	if temperature <= 0 {
		temperature = planningTemperature
	}
	resp, err := a.complete(ctx, summarySystemPrompt, buildSummaryPrompt(message, traces), opts, temperature)
	if err != nil {
		a.logger.Warn("summarization call failed", "error", err)
		reason := fmt.Sprintf("调用AI服务时出错: %v", err)
		emit(Event{Type: EventError, Content: reason})
		// Degrade to the raw step trace so the user still sees results.
		out := reason + "\n\n已收集的执行结果：\n"
		for _, tr := range traces {
			out += "\n" + tr + "\n"
		}
		return out
	}
	return resp.Content
}

func (a *Agent) complete(ctx context.Context, system, user string, opts ProcessOptions, temperature float64) (*provider.Response, error) {
	model := opts.Model
	if model == "" {
		model = a.defaultModel
	}
	start := time.Now()
	resp, err := a.provider.Complete(ctx, &provider.Request{
		Model: model,
		Messages: []provider.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:      temperature,
		MaxTokens:        opts.MaxTokens,
		TopP:             opts.TopP,
		FrequencyPenalty: opts.FrequencyPenalty,
		PresencePenalty:  opts.PresencePenalty,
	})
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	a.recordSpan("llm", model, err != nil, detail, start)
	return resp, err
}

func (a *Agent) recordSpan(kind, name string, failed bool, detail string, start time.Time) {
	if a.tracer == nil {
		return
	}
	status := "ok"
	if failed {
		status = "error"
	}
	a.tracer.RecordSpan(a.sessionID, kind, name, status, detail, start, time.Since(start))
}

// classifyResult applies the multi-source failure check: an explicit
// error status, a non-zero return code, or (for the email tool) a false
// success flag each mark the step as failed. No single field is
// authoritative.
func classifyResult(toolName string, res tools.Result) (bool, string) {
	if !res.Success {
		return true, res.Message
	}
	payload := toMap(res.Result)
	if payload == nil {
		return false, ""
	}
	if s, ok := payload["status"].(string); ok && s == "error" {
		return true, firstMessage(payload)
	}
	if rc, ok := numericField(payload, "return_code"); ok && rc != 0 {
		reason := stringField(payload, "stderr")
		if reason == "" {
			reason = fmt.Sprintf("返回码 %d", rc)
		}
		return true, reason
	}
	if toolName == "email" {
		if b, ok := payload["success"].(bool); ok && !b {
			return true, firstMessage(payload)
		}
	}
	return false, ""
}

func numericField(m map[string]any, key string) (int, bool) {
	switch v := m[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

func hasMessageID(params map[string]any) bool {
	if params == nil {
		return false
	}
	if v, ok := numericField(params, "message_id"); ok && v > 0 {
		return true
	}
	return false
}

// lastListedEmailID returns the id of the newest message from the most
// recent successful list_emails step this turn, or 0.
func lastListedEmailID(steps []StepRecord) int {
	for i := len(steps) - 1; i >= 0; i-- {
		s := steps[i]
		if s.Call.Name != "email" || s.Failed {
			continue
		}
		if stringFromParams(s.Call.Parameters, "action") != "list_emails" {
			continue
		}
		payload := toMap(s.Result.Result)
		if payload == nil {
			continue
		}
		emails := sliceField(payload, "emails")
		if len(emails) == 0 {
			continue
		}
		first := toMap(emails[0])
		if first == nil {
			continue
		}
		if id, ok := numericField(first, "id"); ok && id > 0 {
			return id
		}
	}
	return 0
}
