package outbox

// JSON Schema definitions registered with Schema Registry. Both session
// lifecycle subjects share the session-ended shape; the event type header
// tells consumers which outcome they are looking at.

const sessionEndedSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "SessionEnded",
  "type": "object",
  "required": ["session_id", "tenant_id", "user_id", "exercise_type", "started_at", "ended_at", "version"],
  "properties": {
    "session_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "exercise_type": {"type": "string", "enum": ["physical", "speech", "cognitive"]},
    "category": {"type": "string"},
    "started_at": {"type": "string", "format": "date-time"},
    "ended_at": {"type": "string", "format": "date-time"},
    "queue_length": {"type": "integer", "minimum": 0},
    "completed_ids": {"type": "array", "items": {"type": "string"}},
    "skipped_ids": {"type": "array", "items": {"type": "string"}},
    "pain_reports": {"type": "integer", "minimum": 0},
    "high_fatigue": {"type": "boolean"},
    "calibration": {"type": "string", "enum": ["comfortable", "challenging", "too_hard", ""]},
    "calibration_shift": {"type": "string"},
    "version": {"type": "string"}
  }
}`
