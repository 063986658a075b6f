package models

import "errors"

// Domain errors shared by the services and the API layer. Preconditions
// surface these synchronously to callers; worker-side failures never do, they
// become terminal status transitions instead.
var (
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidState      = errors.New("operation not allowed in current state")
	ErrConflict          = errors.New("conflicting resource already exists")
	ErrNotBuildable      = errors.New("script has no successfully built image")
	ErrBuildInputMissing = errors.New("build specification file missing")
	ErrTaskStart         = errors.New("scheduled task could not be started")
	ErrInvalidCron       = errors.New("invalid cron expression")
)
