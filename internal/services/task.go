package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/Jarrydtb/scripter/internal/events"
	"github.com/Jarrydtb/scripter/internal/models"
)

// Task is one scheduled run of a script, resolved from its schedule down to
// the built image it needs.
type Task struct {
	DB       *gorm.DB
	Producer Dispatcher

	ScheduleID uint
	script     *models.Script
	image      *models.Image
	now        func() time.Time
}

// NewTask loads the schedule and resolves its script and image. A missing
// script or image leaves the corresponding field nil for Validate to report.
func NewTask(ctx context.Context, gormDB *gorm.DB, producer Dispatcher, scheduleID uint) (*Task, error) {
	var schedule models.Schedule
	if err := gormDB.WithContext(ctx).First(&schedule, scheduleID).Error; err != nil {
		return nil, fmt.Errorf("%w: schedule %d", models.ErrNotFound, scheduleID)
	}
	task := &Task{DB: gormDB, Producer: producer, ScheduleID: scheduleID, now: time.Now}
	if script, err := getScript(gormDB.WithContext(ctx), schedule.ScriptID); err == nil {
		task.script = script
		if script.ImageID != nil {
			if image, err := getImage(gormDB.WithContext(ctx), *script.ImageID); err == nil {
				task.image = image
			}
		}
	}
	return task, nil
}

// Validate checks the task can actually be executed.
func (t *Task) Validate() error {
	if t.script == nil || t.script.Deleted {
		return fmt.Errorf("%w: schedule %d references a missing script", models.ErrTaskStart, t.ScheduleID)
	}
	if t.image == nil {
		return fmt.Errorf("%w: script %s has no image", models.ErrTaskStart, t.script.ID)
	}
	if t.image.Status != models.ImageBuildSuccess || t.image.EngineImageID == nil {
		return fmt.Errorf("%w: image %s is not built", models.ErrTaskStart, t.image.ID)
	}
	return nil
}

// Run creates the job, dispatches it and marks the schedule as running.
func (t *Task) Run(ctx context.Context) error {
	if err := t.Validate(); err != nil {
		return err
	}
	job := &models.Job{ScriptID: t.script.ID, Status: models.JobRunning}
	if err := t.DB.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("failed to create job for schedule %d: %w", t.ScheduleID, err)
	}
	payload := events.DispatchPayload{
		Kind:          events.KindRun,
		JobID:         job.ID,
		ScriptID:      t.script.ID,
		EngineImageID: *t.image.EngineImageID,
		ScheduleID:    &t.ScheduleID,
	}
	if err := dispatch(ctx, t.Producer, fmt.Sprint(job.ID), payload); err != nil {
		return fmt.Errorf("failed to dispatch scheduled job %d: %w", job.ID, err)
	}
	lastRun := t.now().UTC().Unix()
	err := t.DB.WithContext(ctx).Model(&models.Schedule{}).
		Where("id = ?", t.ScheduleID).
		Updates(map[string]interface{}{"running": true, "last_run": lastRun}).Error
	if err != nil {
		return fmt.Errorf("failed to mark schedule %d running: %w", t.ScheduleID, err)
	}
	log.Printf("Dispatched scheduled job %d for schedule %d", job.ID, t.ScheduleID)
	return nil
}

// Disable turns the schedule off after a failed start so it stops firing
// until an operator re-enables it.
func (t *Task) Disable(ctx context.Context) error {
	return t.DB.WithContext(ctx).Model(&models.Schedule{}).
		Where("id = ?", t.ScheduleID).
		Updates(map[string]interface{}{"running": false, "enabled": false}).Error
}
