package agent

// Event types emitted by the streaming variant of the loop.
const (
	EventThinking   = "thinking"
	EventStepStart  = "step_start"
	EventStepResult = "step_result"
	EventError      = "error"
	EventResponse   = "response"
)

// Event is a single tagged chunk of loop progress.
type Event struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}
