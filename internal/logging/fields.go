package logging

// Standardized attribute keys shared across components.
const (
	FieldComponent = "component"
	FieldEventType = "event_type"
	FieldErrorHint = "error_hint"
	FieldAttemptID = "attempt_id"
	FieldPackage   = "package"
	FieldStage     = "stage"
	FieldWorker    = "worker"
)
