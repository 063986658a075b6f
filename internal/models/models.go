package models

// Image is a buildable container blueprint. Its ID doubles as the name of the
// directory holding the build specification and supporting files; EngineImageID
// is the identifier the container engine assigns once a build succeeds.
type Image struct {
	ID            string      `json:"id" gorm:"primaryKey"`
	EngineImageID *string     `json:"engine_image_id" gorm:"index"`
	Name          string      `json:"name" gorm:"index;not null"`
	Description   string      `json:"description"`
	Tag           string      `json:"tag"`
	Status        ImageStatus `json:"status" gorm:"index;not null;default:0"`
	CreatedAt     int64       `json:"created_at" gorm:"autoCreateTime;not null"`
}

// ImageFile mirrors one file inside an image's src directory.
type ImageFile struct {
	ID       uint   `json:"id" gorm:"primaryKey"`
	ImageID  string `json:"image_id" gorm:"index;not null"`
	Filepath string `json:"filepath" gorm:"not null"`
}

// Script is user-supplied source code plus the language and image needed to
// run it. Scripts are only ever soft-deleted so job history stays attributable.
type Script struct {
	ID          string  `json:"id" gorm:"primaryKey"`
	Name        string  `json:"name" gorm:"index;not null"`
	Description string  `json:"description"`
	ImageID     *string `json:"image_id" gorm:"index"`
	Language    string  `json:"language" gorm:"not null"`
	Deleted     bool    `json:"-" gorm:"index;not null;default:false"`
	CreatedAt   int64   `json:"created_at" gorm:"autoCreateTime;not null"`
}

// Job is one execution attempt of a script. ContainerID is set once the
// container starts and cleared again on clean completion; Logs holds the
// filename of the job's log artifact under the script's logs directory.
type Job struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	ScriptID    string    `json:"script_id" gorm:"index;not null"`
	Status      JobStatus `json:"status" gorm:"index;not null;default:0"`
	ContainerID *string   `json:"container_id" gorm:"index"`
	Logs        *string   `json:"logs"`
	CreatedAt   int64     `json:"created_at" gorm:"autoCreateTime;not null"`
	FinishedAt  *int64    `json:"finished_at"`
}

// Schedule is a cron-driven recurring trigger for a script. Running is the
// mutual-exclusion flag: while true a dispatched job for this schedule has not
// been finalized, and the scheduler will not fire it again.
type Schedule struct {
	ID        uint    `json:"id" gorm:"primaryKey"`
	ScriptID  string  `json:"script_id" gorm:"index;not null"`
	Cron      *string `json:"cron"`
	Enabled   bool    `json:"enabled" gorm:"not null;default:false"`
	Running   bool    `json:"running" gorm:"not null;default:false"`
	LastRun   *int64  `json:"last_run"`
	CreatedAt int64   `json:"created_at" gorm:"autoCreateTime;not null"`
}

// Runnable reports whether the scheduler may consider this schedule at all.
func (s *Schedule) Runnable() bool {
	return s.Enabled && s.Cron != nil && !s.Running
}
