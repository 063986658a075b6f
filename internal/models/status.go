package models

// ImageStatus is the build state of an image. Values are stored as small
// integers in the database.
type ImageStatus int

const (
	ImageDormant ImageStatus = iota
	ImageBuilding
	ImageBuildSuccess
	ImageBuildFailed
)

var imageStatusNames = map[ImageStatus]string{
	ImageDormant:      "DORMANT",
	ImageBuilding:     "BUILDING",
	ImageBuildSuccess: "BUILD_SUCCESS",
	ImageBuildFailed:  "BUILD_FAILED",
}

func (s ImageStatus) String() string {
	if name, ok := imageStatusNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// CanTransition reports whether moving an image from s to to is legal.
// Builds may only start from DORMANT; a build ends in exactly one of
// BUILD_SUCCESS or BUILD_FAILED; destroy returns a built or failed image
// to DORMANT.
func (s ImageStatus) CanTransition(to ImageStatus) bool {
	switch s {
	case ImageDormant:
		return to == ImageBuilding
	case ImageBuilding:
		return to == ImageBuildSuccess || to == ImageBuildFailed
	case ImageBuildSuccess, ImageBuildFailed:
		return to == ImageDormant
	}
	return false
}

// JobStatus is the run state of a job.
type JobStatus int

const (
	JobPending JobStatus = iota
	JobRunning
	JobSuccess
	JobFailed
	JobKilled
)

var jobStatusNames = map[JobStatus]string{
	JobPending: "PENDING",
	JobRunning: "RUNNING",
	JobSuccess: "SUCCESS",
	JobFailed:  "FAILED",
	JobKilled:  "KILLED",
}

func (s JobStatus) String() string {
	if name, ok := jobStatusNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Terminal reports whether s is a final state. Terminal jobs may be deleted
// and never transition again.
func (s JobStatus) Terminal() bool {
	return s == JobSuccess || s == JobFailed || s == JobKilled
}

// CanTransition reports whether moving a job from s to to is legal. Jobs only
// move forward: PENDING to RUNNING, RUNNING to exactly one terminal state.
func (s JobStatus) CanTransition(to JobStatus) bool {
	switch s {
	case JobPending:
		return to == JobRunning
	case JobRunning:
		return to.Terminal()
	}
	return false
}
