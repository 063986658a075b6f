package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jarrydtb/scripter/internal/events"
	"github.com/Jarrydtb/scripter/internal/models"
)

func newTestSchedulerService(t *testing.T) (*SchedulerService, *mockDispatcher) {
	t.Helper()
	producer := &mockDispatcher{}
	svc, err := NewSchedulerService(setupTestDB(t), producer)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Scheduler.Shutdown() })
	return svc, producer
}

func seedScheduledScript(t *testing.T, svc *SchedulerService, built bool) *models.Script {
	t.Helper()
	image := &models.Image{ID: "img-1", Name: "img", Status: models.ImageDormant}
	if built {
		engineID := "abc123"
		image.Status = models.ImageBuildSuccess
		image.EngineImageID = &engineID
	}
	require.NoError(t, svc.DB.Create(image).Error)
	script := &models.Script{ID: "s1", Name: "job", ImageID: &image.ID, Language: "python"}
	require.NoError(t, svc.DB.Create(script).Error)
	return script
}

func TestSchedulerService_TickDispatchesDueSchedule(t *testing.T) {
	svc, producer := newTestSchedulerService(t)
	now := time.Date(2026, 1, 1, 12, 0, 30, 0, time.UTC)
	svc.now = func() time.Time { return now }
	ctx := context.Background()
	script := seedScheduledScript(t, svc, true)

	cron := "* * * * *"
	schedule := &models.Schedule{ScriptID: script.ID, Cron: &cron, Enabled: true}
	require.NoError(t, svc.DB.Create(schedule).Error)
	// Created two minutes ago, so the every-minute schedule is overdue.
	require.NoError(t, svc.DB.Model(schedule).
		Update("created_at", now.Add(-2*time.Minute).Unix()).Error)

	require.NoError(t, svc.Tick(ctx))

	payloads := producer.payloads(t)
	require.Len(t, payloads, 1)
	assert.Equal(t, events.KindRun, payloads[0].Kind)
	assert.Equal(t, script.ID, payloads[0].ScriptID)
	assert.Equal(t, "abc123", payloads[0].EngineImageID)
	require.NotNil(t, payloads[0].ScheduleID)
	assert.Equal(t, schedule.ID, *payloads[0].ScheduleID)

	var reloaded models.Schedule
	require.NoError(t, svc.DB.First(&reloaded, schedule.ID).Error)
	assert.True(t, reloaded.Running)
	require.NotNil(t, reloaded.LastRun)
	assert.Equal(t, now.Unix(), *reloaded.LastRun)

	var job models.Job
	require.NoError(t, svc.DB.First(&job, payloads[0].JobID).Error)
	assert.Equal(t, models.JobRunning, job.Status)

	// While the dispatched job is outstanding the schedule is not fired again.
	require.NoError(t, svc.Tick(ctx))
	assert.Len(t, producer.payloads(t), 1)
}

func TestSchedulerService_TickSkipsNotDue(t *testing.T) {
	svc, producer := newTestSchedulerService(t)
	now := time.Date(2026, 1, 1, 12, 0, 30, 0, time.UTC)
	svc.now = func() time.Time { return now }
	ctx := context.Background()
	script := seedScheduledScript(t, svc, true)

	cron := "* * * * *"
	lastRun := now.Unix()
	schedule := &models.Schedule{ScriptID: script.ID, Cron: &cron, Enabled: true, LastRun: &lastRun}
	require.NoError(t, svc.DB.Create(schedule).Error)

	// The minute after the last run has not arrived yet.
	require.NoError(t, svc.Tick(ctx))
	assert.Empty(t, producer.payloads(t))

	// Sixty-one seconds later it has.
	now = now.Add(61 * time.Second)
	require.NoError(t, svc.Tick(ctx))
	assert.Len(t, producer.payloads(t), 1)
}

func TestSchedulerService_TickSkipsInvalidCron(t *testing.T) {
	svc, producer := newTestSchedulerService(t)
	now := time.Date(2026, 1, 1, 12, 0, 30, 0, time.UTC)
	svc.now = func() time.Time { return now }
	ctx := context.Background()
	script := seedScheduledScript(t, svc, true)

	bad := "not a cron"
	good := "* * * * *"
	badSchedule := &models.Schedule{ScriptID: script.ID, Cron: &bad, Enabled: true}
	goodSchedule := &models.Schedule{ScriptID: script.ID, Cron: &good, Enabled: true}
	require.NoError(t, svc.DB.Create(badSchedule).Error)
	require.NoError(t, svc.DB.Create(goodSchedule).Error)
	require.NoError(t, svc.DB.Model(&models.Schedule{}).Where("1 = 1").
		Update("created_at", now.Add(-2*time.Minute).Unix()).Error)

	// The broken schedule is skipped without blocking the healthy one.
	require.NoError(t, svc.Tick(ctx))
	payloads := producer.payloads(t)
	require.Len(t, payloads, 1)
	assert.Equal(t, goodSchedule.ID, *payloads[0].ScheduleID)
}

func TestSchedulerService_FailedStartDisablesSchedule(t *testing.T) {
	svc, producer := newTestSchedulerService(t)
	now := time.Date(2026, 1, 1, 12, 0, 30, 0, time.UTC)
	svc.now = func() time.Time { return now }
	ctx := context.Background()
	script := seedScheduledScript(t, svc, false)

	cron := "* * * * *"
	schedule := &models.Schedule{ScriptID: script.ID, Cron: &cron, Enabled: true}
	require.NoError(t, svc.DB.Create(schedule).Error)
	require.NoError(t, svc.DB.Model(schedule).
		Update("created_at", now.Add(-2*time.Minute).Unix()).Error)

	// The image was never built, so the start fails and the schedule is
	// disabled rather than retried every minute.
	require.NoError(t, svc.Tick(ctx))
	assert.Empty(t, producer.payloads(t))

	var reloaded models.Schedule
	require.NoError(t, svc.DB.First(&reloaded, schedule.ID).Error)
	assert.False(t, reloaded.Enabled)
	assert.False(t, reloaded.Running)
}

func TestTask_ValidateReportsStartErrors(t *testing.T) {
	svc, producer := newTestSchedulerService(t)
	ctx := context.Background()
	script := seedScheduledScript(t, svc, false)

	cron := "* * * * *"
	schedule := &models.Schedule{ScriptID: script.ID, Cron: &cron, Enabled: true}
	require.NoError(t, svc.DB.Create(schedule).Error)

	task, err := NewTask(ctx, svc.DB, producer, schedule.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, task.Validate(), models.ErrTaskStart)

	_, err = NewTask(ctx, svc.DB, producer, 9999)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
