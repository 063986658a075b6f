package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/Jarrydtb/scripter/internal/models"
)

// cronParser accepts standard five field expressions.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron validates a five field cron expression.
func ParseCron(expr string) (cron.Schedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", models.ErrInvalidCron, expr, err)
	}
	return sched, nil
}

// SchedulerService scans enabled schedules once a minute and dispatches a run
// for every schedule whose next fire time has passed.
type SchedulerService struct {
	DB        *gorm.DB
	Scheduler gocron.Scheduler
	Producer  Dispatcher

	appContext context.Context
	cancelFunc context.CancelFunc
	now        func() time.Time
}

func NewSchedulerService(gormDB *gorm.DB, producer Dispatcher) (*SchedulerService, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SchedulerService{
		DB:         gormDB,
		Scheduler:  scheduler,
		Producer:   producer,
		appContext: ctx,
		cancelFunc: cancel,
		now:        time.Now,
	}, nil
}

// Start registers the minutely tick and begins scheduling.
func (s *SchedulerService) Start() error {
	_, err := s.Scheduler.NewJob(
		gocron.CronJob("* * * * *", false),
		gocron.NewTask(func() {
			if err := s.Tick(s.appContext); err != nil {
				log.Printf("Scheduler tick failed: %v", err)
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to register scheduler job: %w", err)
	}
	s.Scheduler.Start()
	log.Println("Scheduler started")
	return nil
}

func (s *SchedulerService) Stop() error {
	s.cancelFunc()
	return s.Scheduler.Shutdown()
}

// Tick dispatches every runnable schedule that is due. A failure on one
// schedule never blocks the others.
func (s *SchedulerService) Tick(ctx context.Context) error {
	var schedules []models.Schedule
	err := s.DB.WithContext(ctx).
		Where("enabled = ? AND cron IS NOT NULL AND running = ?", true, false).
		Find(&schedules).Error
	if err != nil {
		return fmt.Errorf("failed to list schedules: %w", err)
	}

	now := s.now().UTC()
	for i := range schedules {
		schedule := &schedules[i]
		if !schedule.Runnable() {
			continue
		}
		next, err := s.nextRun(schedule)
		if err != nil {
			log.Printf("Schedule %d has invalid cron, skipping: %v", schedule.ID, err)
			continue
		}
		if next.After(now) {
			continue
		}
		task, err := NewTask(ctx, s.DB, s.Producer, schedule.ID)
		if err != nil {
			log.Printf("Schedule %d task setup failed: %v", schedule.ID, err)
			continue
		}
		task.now = s.now
		if err := task.Run(ctx); err != nil {
			log.Printf("Schedule %d run failed, disabling: %v", schedule.ID, err)
			if derr := task.Disable(ctx); derr != nil {
				log.Printf("Failed to disable schedule %d: %v", schedule.ID, derr)
			}
		}
	}
	return nil
}

// nextRun computes the next fire time from the last run, falling back to the
// creation time for schedules that have never fired.
func (s *SchedulerService) nextRun(schedule *models.Schedule) (time.Time, error) {
	if schedule.Cron == nil {
		return time.Time{}, fmt.Errorf("%w: schedule %d has no cron", models.ErrInvalidCron, schedule.ID)
	}
	sched, err := ParseCron(*schedule.Cron)
	if err != nil {
		return time.Time{}, err
	}
	var base int64
	switch {
	case schedule.LastRun != nil:
		base = *schedule.LastRun
	case schedule.CreatedAt != 0:
		base = schedule.CreatedAt
	}
	return sched.Next(time.Unix(base, 0).UTC()), nil
}
