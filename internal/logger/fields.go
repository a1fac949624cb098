package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields. They are attached to the context logger and follow the call chain.
const (
	FieldRequestID    = "request_id"
	FieldInvocationID = "invocation_id"
	FieldJobID        = "job_id"
	FieldDomain       = "domain"
	FieldSourceID     = "source_id"
	FieldComponent    = "component"
)

// Metric fields. They are attached to a single entry and used for aggregation.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldSize       = "size"
	FieldStatus     = "status"
)
