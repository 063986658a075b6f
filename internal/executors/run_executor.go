package executors

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"gorm.io/gorm"

	"github.com/Jarrydtb/scripter/internal/config"
	"github.com/Jarrydtb/scripter/internal/engine"
	"github.com/Jarrydtb/scripter/internal/events"
	"github.com/Jarrydtb/scripter/internal/models"
	"github.com/Jarrydtb/scripter/pkg/logtail"
)

// logTimestampLayout names job log artifacts sortably without characters that
// upset filesystems.
const logTimestampLayout = "2006-01-02T15-04-05"

// RunExecutor consumes run dispatches: it claims the job's log artifact slot,
// starts the container with the script bind-mounted, follows its output into
// the artifact and settles the job's terminal status.
type RunExecutor struct {
	DB     *gorm.DB
	Engine engine.Engine
	Cfg    *config.Config

	now func() time.Time
}

func NewRunExecutor(gormDB *gorm.DB, eng engine.Engine, cfg *config.Config) *RunExecutor {
	return &RunExecutor{DB: gormDB, Engine: eng, Cfg: cfg, now: time.Now}
}

// Execute runs one job. Delivery is at least once: the job's logs column is
// claimed while still NULL, so a redelivered message finds it set and is
// dropped.
func (e *RunExecutor) Execute(ctx context.Context, payload events.DispatchPayload) error {
	if payload.JobID == 0 {
		return fmt.Errorf("run dispatch without job_id")
	}
	var job models.Job
	if err := e.DB.WithContext(ctx).First(&job, payload.JobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("Job %d no longer exists, dropping run dispatch", payload.JobID)
			e.clearSchedule(ctx, payload.ScheduleID)
			return nil
		}
		return fmt.Errorf("failed to load job %d: %w", payload.JobID, err)
	}
	if job.Status != models.JobRunning {
		log.Printf("Job %d is %s, dropping run dispatch", job.ID, job.Status)
		e.clearSchedule(ctx, payload.ScheduleID)
		return nil
	}

	logName := fmt.Sprintf("%s__%d.log", e.now().UTC().Format(logTimestampLayout), job.ID)
	claim := e.DB.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND logs IS NULL", job.ID).
		Update("logs", logName)
	if claim.Error != nil {
		return fmt.Errorf("failed to claim job %d: %w", job.ID, claim.Error)
	}
	if claim.RowsAffected == 0 {
		// The first delivery still owns this job and will release its
		// schedule when it finishes.
		log.Printf("Job %d already claimed, dropping run dispatch", job.ID)
		return nil
	}
	defer e.clearSchedule(ctx, payload.ScheduleID)

	artifact := filepath.Join(e.Cfg.ScriptLogDir(job.ScriptID), logName)
	if err := e.run(ctx, &job, payload, artifact); err != nil {
		e.fail(ctx, job.ID, artifact, err)
		return err
	}
	return nil
}

func (e *RunExecutor) run(ctx context.Context, job *models.Job, payload events.DispatchPayload, artifact string) error {
	var script models.Script
	if err := e.DB.WithContext(ctx).First(&script, "id = ?", job.ScriptID).Error; err != nil {
		return fmt.Errorf("failed to load script %s: %w", job.ScriptID, err)
	}
	lang, ok := models.LanguageByName(script.Language)
	if !ok {
		return fmt.Errorf("script %s has unknown language %q", script.ID, script.Language)
	}
	exists, err := e.Engine.ImageExists(ctx, payload.EngineImageID)
	if err != nil {
		return fmt.Errorf("failed to check image %s: %w", payload.EngineImageID, err)
	}
	if !exists {
		return fmt.Errorf("engine image %s for job %d is gone", payload.EngineImageID, job.ID)
	}

	target := "/script." + lang.Extension
	containerID, err := e.Engine.RunContainer(ctx, engine.RunOptions{
		Image:      payload.EngineImageID,
		Command:    append(lang.CommandArgs(), target),
		BindSource: e.Cfg.HostScriptSrcPath(script.ID),
		BindTarget: target,
	})
	if err != nil {
		return fmt.Errorf("failed to start container for job %d: %w", job.ID, err)
	}
	defer func() {
		if err := e.Engine.RemoveContainer(context.Background(), containerID); err != nil {
			log.Printf("Failed to remove container %s: %v", containerID, err)
		}
	}()

	err = e.DB.WithContext(ctx).Model(&models.Job{}).
		Where("id = ?", job.ID).Update("container_id", containerID).Error
	if err != nil {
		return fmt.Errorf("failed to record container for job %d: %w", job.ID, err)
	}
	log.Printf("Job %d running in container %s", job.ID, containerID)

	if err := e.follow(ctx, containerID, artifact); err != nil {
		return err
	}

	result := e.DB.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status = ?", job.ID, models.JobRunning).
		Updates(map[string]interface{}{
			"status":       models.JobSuccess,
			"finished_at":  e.now().UTC().Unix(),
			"container_id": nil,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to finalize job %d: %w", job.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		log.Printf("Job %d left RUNNING before finalization, keeping its terminal status", job.ID)
		return nil
	}
	log.Printf("Job %d finished successfully", job.ID)
	return nil
}

// follow copies the container's output into the log artifact line by line.
func (e *RunExecutor) follow(ctx context.Context, containerID, artifact string) error {
	stream, err := e.Engine.StreamOutput(ctx, containerID)
	if err != nil {
		return fmt.Errorf("failed to follow container %s: %w", containerID, err)
	}
	defer stream.Close()

	w, err := logtail.Create(artifact)
	if err != nil {
		return err
	}
	defer w.Close()

	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := w.WriteLine(scanner.Text()); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("container %s output stream broke: %w", containerID, err)
	}
	return nil
}

// fail records the error in the artifact and settles the job to FAILED unless
// a cancel already settled it.
func (e *RunExecutor) fail(ctx context.Context, jobID uint, artifact string, cause error) {
	if err := logtail.WriteLine(artifact, fmt.Sprintf("Job failed: %v", cause)); err != nil {
		log.Printf("Failed to write failure line for job %d: %v", jobID, err)
	}
	result := e.DB.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status = ?", jobID, models.JobRunning).
		Updates(map[string]interface{}{
			"status":       models.JobFailed,
			"finished_at":  e.now().UTC().Unix(),
			"container_id": nil,
		})
	if result.Error != nil {
		log.Printf("Failed to settle job %d as failed: %v", jobID, result.Error)
	}
}

// clearSchedule releases the schedule's running flag once its job has been
// handled, whatever the outcome.
func (e *RunExecutor) clearSchedule(ctx context.Context, scheduleID *uint) {
	if scheduleID == nil {
		return
	}
	err := e.DB.WithContext(ctx).Model(&models.Schedule{}).
		Where("id = ?", *scheduleID).Update("running", false).Error
	if err != nil {
		log.Printf("Failed to clear running flag on schedule %d: %v", *scheduleID, err)
	}
}
