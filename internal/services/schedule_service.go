package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/Jarrydtb/scripter/internal/models"
)

// ScheduleService manages the cron-driven schedule records the scheduler
// scans.
type ScheduleService struct {
	DB *gorm.DB
}

func NewScheduleService(gormDB *gorm.DB) *ScheduleService {
	return &ScheduleService{DB: gormDB}
}

type CreateScheduleInput struct {
	ScriptID string
	Cron     string
	Enabled  bool
}

// Create validates the cron expression and the script reference. A schedule
// for a script whose image is missing or unbuilt is created disabled.
// (script, cron) pairs are unique.
func (s *ScheduleService) Create(ctx context.Context, in CreateScheduleInput) (*models.Schedule, error) {
	if _, err := ParseCron(in.Cron); err != nil {
		return nil, err
	}
	script, err := getScript(s.DB.WithContext(ctx), in.ScriptID)
	if err != nil {
		return nil, err
	}
	enabled := in.Enabled
	if enabled && !imageBuilt(s.DB.WithContext(ctx), script.ImageID) {
		log.Printf("Script %s has no built image, creating schedule disabled", in.ScriptID)
		enabled = false
	}

	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.Schedule{}).
		Where("script_id = ? AND cron = ?", in.ScriptID, in.Cron).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, fmt.Errorf("%w: script %s already has schedule %q", models.ErrConflict, in.ScriptID, in.Cron)
	}

	schedule := &models.Schedule{ScriptID: in.ScriptID, Cron: &in.Cron, Enabled: enabled}
	if err := s.DB.WithContext(ctx).Create(schedule).Error; err != nil {
		return nil, fmt.Errorf("failed to create schedule: %w", err)
	}
	log.Printf("Created schedule %d for script %s (%q, enabled=%t)", schedule.ID, in.ScriptID, in.Cron, enabled)
	return schedule, nil
}

func (s *ScheduleService) Get(ctx context.Context, scheduleID uint) (*models.Schedule, error) {
	var schedule models.Schedule
	if err := s.DB.WithContext(ctx).First(&schedule, scheduleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: schedule %d", models.ErrNotFound, scheduleID)
		}
		return nil, err
	}
	return &schedule, nil
}

type ScheduleQuery struct {
	Page     int
	Limit    int
	ScriptID *string
}

type ScheduleList struct {
	Schedules []models.Schedule `json:"schedules"`
	Page      int               `json:"page"`
	Limit     int               `json:"limit"`
	Total     int64             `json:"total"`
}

func (s *ScheduleService) List(ctx context.Context, q ScheduleQuery) (*ScheduleList, error) {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	base := s.DB.WithContext(ctx).Model(&models.Schedule{})
	if q.ScriptID != nil {
		base = base.Where("script_id = ?", *q.ScriptID)
	}
	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, err
	}
	var schedules []models.Schedule
	if err := base.Offset(q.Page * q.Limit).Limit(q.Limit).Find(&schedules).Error; err != nil {
		return nil, err
	}
	return &ScheduleList{Schedules: schedules, Page: q.Page, Limit: q.Limit, Total: total}, nil
}

type ScheduleUpdate struct {
	Cron    *string
	Enabled *bool
}

// Update changes the cron expression or flips the enabled flag. Enabling is
// refused while the script's image is missing or unbuilt.
func (s *ScheduleService) Update(ctx context.Context, scheduleID uint, in ScheduleUpdate) (*models.Schedule, error) {
	schedule, err := s.Get(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if in.Cron != nil {
		if _, err := ParseCron(*in.Cron); err != nil {
			return nil, err
		}
		schedule.Cron = in.Cron
	}
	if in.Enabled != nil {
		if *in.Enabled {
			script, err := getScript(s.DB.WithContext(ctx), schedule.ScriptID)
			if err != nil {
				return nil, err
			}
			if !imageBuilt(s.DB.WithContext(ctx), script.ImageID) {
				return nil, fmt.Errorf("%w: cannot enable schedule %d with missing or unbuilt image",
					models.ErrInvalidState, scheduleID)
			}
		}
		schedule.Enabled = *in.Enabled
	}
	if err := s.DB.WithContext(ctx).Save(schedule).Error; err != nil {
		return nil, err
	}
	return schedule, nil
}

func (s *ScheduleService) Delete(ctx context.Context, scheduleID uint) error {
	if _, err := s.Get(ctx, scheduleID); err != nil {
		return err
	}
	if err := s.DB.WithContext(ctx).Delete(&models.Schedule{}, scheduleID).Error; err != nil {
		return fmt.Errorf("failed to delete schedule %d: %w", scheduleID, err)
	}
	log.Printf("Deleted schedule %d", scheduleID)
	return nil
}

// imageBuilt reports whether imageID refers to an image in BUILD_SUCCESS.
func imageBuilt(tx *gorm.DB, imageID *string) bool {
	if imageID == nil {
		return false
	}
	image, err := getImage(tx, *imageID)
	if err != nil {
		return false
	}
	return image.Status == models.ImageBuildSuccess && image.EngineImageID != nil
}
