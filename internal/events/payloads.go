package events

// Dispatch message kinds. Each kind maps to a registered executor in the
// script worker.
const (
	KindBuild = "build"
	KindRun   = "run"
)

// DispatchPayload is sent by the script manager to Kafka for the script
// worker. Build messages carry ImageID; run messages carry the job, script
// and resolved engine image, plus the owning schedule when the run was fired
// by the scheduler.
type DispatchPayload struct {
	Kind          string `json:"kind"`
	ImageID       string `json:"image_id,omitempty"`
	JobID         uint   `json:"job_id,omitempty"`
	ScriptID      string `json:"script_id,omitempty"`
	EngineImageID string `json:"engine_image_id,omitempty"`
	ScheduleID    *uint  `json:"schedule_id,omitempty"`
}

// DispatchSchema is used by the worker to validate inbound dispatch messages
// before routing them to an executor.
const DispatchSchema = `{
	"type": "object",
	"required": ["kind"],
	"properties": {
		"kind": {"type": "string", "enum": ["build", "run"]},
		"image_id": {"type": "string"},
		"job_id": {"type": "integer", "minimum": 1},
		"script_id": {"type": "string"},
		"engine_image_id": {"type": "string"},
		"schedule_id": {"type": "integer", "minimum": 1}
	}
}`
