package tools

// Outcome tags the result of one tool invocation.
type Outcome string

const (
	OutcomeOK          Outcome = "ok"
	OutcomeSchemaError Outcome = "schema_error"
	OutcomeNotFound    Outcome = "not_found"
	OutcomeTimeout     Outcome = "timeout"
	OutcomeEmpty       Outcome = "empty"
	OutcomeUpstream    Outcome = "upstream"
)

// Result is what Invoke returns: a structured payload on success, or an
// error tag the conversation engine turns into a clarifying question.
type Result struct {
	Outcome Outcome
	Payload any
	Detail  string
}
