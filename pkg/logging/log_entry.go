package logging

// LogEntry represents a structured log record with fields relevant to
// retrieval evaluation runs.
type LogEntry struct {
	// Standard fields
	Time     int64
	Severity Severity
	Message  string
	File     string
	Line     int
	Function string

	// Evaluation-specific fields
	ModelID string  // The embedding model in use, when known
	Latency int64   // Operation duration in milliseconds
	Cost    float64 // Operation cost in dollars

	// General structured data
	Fields map[string]interface{}
}
