package tandem

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// --- agent errors ---

// ErrProcessing reports that an agent could not form a result, e.g. the
// generator returned an empty response.
type ErrProcessing struct {
	Message string
}

func (e *ErrProcessing) Error() string {
	return "processing failed: " + e.Message
}

// ErrValidation reports a boundary or pre-condition failure.
type ErrValidation struct {
	Message string
}

func (e *ErrValidation) Error() string {
	return "validation failed: " + e.Message
}

// ErrInvalidInput reports that an agent cannot handle the input it was given
// (CanHandle returned false, or the input shape is wrong for the agent).
type ErrInvalidInput struct {
	Message string
}

func (e *ErrInvalidInput) Error() string {
	return "invalid input: " + e.Message
}

// ErrInvalidOutput reports that a downstream consumer could not make sense of
// an agent's output, e.g. a structured tool result that fails to parse.
type ErrInvalidOutput struct {
	Message string
}

func (e *ErrInvalidOutput) Error() string {
	return "invalid output: " + e.Message
}

// ErrTimeout reports that an operation exceeded its time budget.
type ErrTimeout struct {
	Seconds float64
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("timed out after %.1fs", e.Seconds)
}

// ErrCancelled reports that the workflow was cancelled mid-flight.
var ErrCancelled = errors.New("workflow cancelled")

// ErrMaxRetries reports that all retry attempts were exhausted.
// Last carries the final underlying cause.
type ErrMaxRetries struct {
	Attempts int
	Last     error
}

func (e *ErrMaxRetries) Error() string {
	return fmt.Sprintf("max retries exceeded after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ErrMaxRetries) Unwrap() error { return e.Last }

// ErrChildAgent reports that a composer's child raised an error under
// stop-on-error / fail-fast policy.
type ErrChildAgent struct {
	AgentID string
	Err     error
}

func (e *ErrChildAgent) Error() string {
	return fmt.Sprintf("child agent %q failed: %v", e.AgentID, e.Err)
}

func (e *ErrChildAgent) Unwrap() error { return e.Err }

// ErrConfiguration reports an invalid construction, e.g. a composer with an
// empty children list.
type ErrConfiguration struct {
	Message string
}

func (e *ErrConfiguration) Error() string {
	return "configuration error: " + e.Message
}

// --- tool errors ---

// ErrMissingParameter reports that a required tool parameter was not supplied.
type ErrMissingParameter struct {
	Name string
}

func (e *ErrMissingParameter) Error() string {
	return fmt.Sprintf("missing parameter %q", e.Name)
}

// ErrInvalidParameter reports that a tool parameter has the wrong type or value.
type ErrInvalidParameter struct {
	Name   string
	Reason string
}

func (e *ErrInvalidParameter) Error() string {
	return fmt.Sprintf("invalid parameter %q: %s", e.Name, e.Reason)
}

// ErrToolExecution reports that a tool ran but failed to produce a result.
type ErrToolExecution struct {
	Reason string
}

func (e *ErrToolExecution) Error() string {
	return "tool execution failed: " + e.Reason
}

// ErrToolTimeout reports that a tool exceeded its execution budget.
var ErrToolTimeout = errors.New("tool timed out")

// --- workflow errors ---

// ErrStepFailed reports that a required workflow step failed, aborting the
// workflow. Err carries the step's final error (after retries).
type ErrStepFailed struct {
	StepID string
	Err    error
}

func (e *ErrStepFailed) Error() string {
	return fmt.Sprintf("step %q failed: %v", e.StepID, e.Err)
}

func (e *ErrStepFailed) Unwrap() error { return e.Err }

// ErrInvalidWorkflow reports a workflow definition that cannot be executed.
type ErrInvalidWorkflow struct {
	Message string
}

func (e *ErrInvalidWorkflow) Error() string {
	return "invalid workflow: " + e.Message
}

// ErrAgentNotFound reports a workflow step referencing an unregistered agent id.
type ErrAgentNotFound struct {
	ID string
}

func (e *ErrAgentNotFound) Error() string {
	return fmt.Sprintf("agent %q not found", e.ID)
}

// --- transport errors (provider layer) ---

// ErrLLM reports a provider-level fault (malformed body, bad response shape).
type ErrLLM struct {
	Provider string
	Message  string
}

func (e *ErrLLM) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// ErrHTTP reports a non-2xx HTTP response from the generation backend.
// RetryAfter carries the server-suggested retry delay when present.
type ErrHTTP struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ParseRetryAfter parses an HTTP Retry-After header value. Supports the
// delta-seconds form ("30") and the HTTP-date form. Returns 0 when the value
// is empty or unparseable.
func ParseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := parseHTTPDate(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// parseHTTPDate parses an HTTP-date in any of the three standard formats.
func parseHTTPDate(v string) (time.Time, error) {
	for _, layout := range []string{time.RFC1123, time.RFC850, time.ANSIC} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format %q", v)
}
