package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"gorm.io/gorm"

	"github.com/Jarrydtb/scripter/internal/config"
	"github.com/Jarrydtb/scripter/internal/engine"
	"github.com/Jarrydtb/scripter/internal/events"
	"github.com/Jarrydtb/scripter/internal/models"
)

// JobService owns the synchronous side of the job lifecycle: the run
// precondition check and dispatch, cancellation, log polling and deletion.
// The container run itself happens in the worker.
type JobService struct {
	DB       *gorm.DB
	Producer Dispatcher
	Engine   engine.Engine
	Cfg      *config.Config
}

func NewJobService(gormDB *gorm.DB, producer Dispatcher, eng engine.Engine, cfg *config.Config) *JobService {
	return &JobService{DB: gormDB, Producer: producer, Engine: eng, Cfg: cfg}
}

// StartRun checks that the script exists and its image is built, creates the
// job optimistically in RUNNING state, and dispatches the run to the worker.
// The returned job id is valid immediately even though the container has not
// started yet.
func (s *JobService) StartRun(ctx context.Context, scriptID string) (*models.Job, error) {
	script, err := getScript(s.DB.WithContext(ctx), scriptID)
	if err != nil {
		return nil, err
	}
	if script.ImageID == nil {
		return nil, fmt.Errorf("%w: script %s has no image", models.ErrNotBuildable, scriptID)
	}
	image, err := getImage(s.DB.WithContext(ctx), *script.ImageID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: image %s", models.ErrNotBuildable, *script.ImageID)
		}
		return nil, err
	}
	if image.Status != models.ImageBuildSuccess || image.EngineImageID == nil {
		return nil, fmt.Errorf("%w: image %s status is %s", models.ErrNotBuildable, image.ID, image.Status)
	}

	job := &models.Job{ScriptID: scriptID, Status: models.JobRunning}
	if err := s.DB.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	if err := dispatch(ctx, s.Producer, fmt.Sprint(job.ID), events.DispatchPayload{
		Kind:          events.KindRun,
		JobID:         job.ID,
		ScriptID:      scriptID,
		EngineImageID: *image.EngineImageID,
	}); err != nil {
		return nil, err
	}
	log.Printf("Dispatched run for script %s as job %d", scriptID, job.ID)
	return job, nil
}

// Cancel requests termination of a running job. With no container attached
// yet the job goes straight to KILLED; otherwise the engine kill signal is
// sent and the terminal status is settled by a conditional update, so the
// cancel path and the worker's finalize path cannot both win.
func (s *JobService) Cancel(ctx context.Context, jobID uint) error {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if !job.Status.CanTransition(models.JobKilled) {
		return fmt.Errorf("%w: job %d is %s, not RUNNING", models.ErrInvalidState, jobID, job.Status)
	}
	if job.ContainerID == nil {
		log.Printf("Job %d has no container attached, killing directly", jobID)
		return s.markKilled(ctx, jobID)
	}
	if err := s.Engine.KillContainer(ctx, *job.ContainerID); err != nil {
		return fmt.Errorf("failed to kill container %s: %w", *job.ContainerID, err)
	}
	return s.markKilled(ctx, jobID)
}

// markKilled transitions to KILLED only while the job is still RUNNING; it is
// a no-op when the run loop finalized first.
func (s *JobService) markKilled(ctx context.Context, jobID uint) error {
	res := s.DB.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status = ?", jobID, models.JobRunning).
		Updates(map[string]interface{}{
			"status":      models.JobKilled,
			"finished_at": time.Now().UTC().Unix(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		log.Printf("Job %d was finalized before the cancel could take effect", jobID)
	}
	return nil
}

func (s *JobService) Get(ctx context.Context, jobID uint) (*models.Job, error) {
	var job models.Job
	if err := s.DB.WithContext(ctx).First(&job, jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: job %d", models.ErrNotFound, jobID)
		}
		return nil, err
	}
	return &job, nil
}

type JobQuery struct {
	ScriptID string
	Page     int
	Limit    int
	Status   *models.JobStatus
}

type JobList struct {
	Jobs  []models.Job `json:"history"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
	Total int64        `json:"total"`
}

// List returns one page of a script's jobs, newest first.
func (s *JobService) List(ctx context.Context, q JobQuery) (*JobList, error) {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	base := s.DB.WithContext(ctx).Model(&models.Job{}).Where("script_id = ?", q.ScriptID)
	if q.Status != nil {
		base = base.Where("status = ?", *q.Status)
	}
	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, err
	}
	var jobs []models.Job
	if err := base.Order("id DESC").Offset(q.Page * q.Limit).Limit(q.Limit).Find(&jobs).Error; err != nil {
		return nil, err
	}
	return &JobList{Jobs: jobs, Page: q.Page, Limit: q.Limit, Total: total}, nil
}

// GetLogs returns job-log lines past the given byte offset with the job's
// current status, so pollers can stop once the job is terminal.
func (s *JobService) GetLogs(ctx context.Context, jobID uint, offset int64) (*LogChunk, error) {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Logs == nil {
		return nil, fmt.Errorf("%w: job %d has no log artifact yet", models.ErrNotFound, jobID)
	}
	path := filepath.Join(s.Cfg.ScriptLogDir(job.ScriptID), *job.Logs)
	lines, newOffset, err := readLogArtifact(path, offset)
	if err != nil {
		return nil, err
	}
	return &LogChunk{Lines: lines, Offset: newOffset, Status: job.Status.String()}, nil
}

// Delete removes a terminal job and its log artifact. Non-terminal jobs
// cannot be deleted.
func (s *JobService) Delete(ctx context.Context, jobID uint) error {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if !job.Status.Terminal() {
		return fmt.Errorf("%w: cannot delete job %d in status %s", models.ErrInvalidState, jobID, job.Status)
	}
	if job.Logs != nil {
		path := filepath.Join(s.Cfg.ScriptLogDir(job.ScriptID), *job.Logs)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("Failed to remove log artifact %s for job %d: %v", path, jobID, err)
		}
	}
	if err := s.DB.WithContext(ctx).Delete(&models.Job{}, jobID).Error; err != nil {
		return fmt.Errorf("failed to delete job %d: %w", jobID, err)
	}
	log.Printf("Deleted job %d", jobID)
	return nil
}
