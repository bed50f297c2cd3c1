package logging

// Standardized attribute keys shared across components.
const (
	FieldComponent = "component"

	FieldTaskID = "task_id"

	FieldEnginePhase = "engine_phase"

	FieldEventType = "event_type"

	FieldErrorCode = "error_code"
)
