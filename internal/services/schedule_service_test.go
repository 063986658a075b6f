package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jarrydtb/scripter/internal/models"
)

func newTestScheduleService(t *testing.T) *ScheduleService {
	t.Helper()
	return NewScheduleService(setupTestDB(t))
}

func seedScheduleScript(t *testing.T, svc *ScheduleService, built bool) *models.Script {
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

func TestScheduleService_Create(t *testing.T) {
	svc := newTestScheduleService(t)
	ctx := context.Background()
	script := seedScheduleScript(t, svc, true)

	schedule, err := svc.Create(ctx, CreateScheduleInput{ScriptID: script.ID, Cron: "*/5 * * * *", Enabled: true})
	require.NoError(t, err)
	assert.True(t, schedule.Enabled)
	assert.False(t, schedule.Running)
	assert.Nil(t, schedule.LastRun)

	// Same script, same expression: conflict.
	_, err = svc.Create(ctx, CreateScheduleInput{ScriptID: script.ID, Cron: "*/5 * * * *"})
	assert.ErrorIs(t, err, models.ErrConflict)

	// A different expression is fine.
	_, err = svc.Create(ctx, CreateScheduleInput{ScriptID: script.ID, Cron: "0 0 * * *"})
	assert.NoError(t, err)

	_, err = svc.Create(ctx, CreateScheduleInput{ScriptID: script.ID, Cron: "not a cron"})
	assert.ErrorIs(t, err, models.ErrInvalidCron)

	// Six-field expressions are not accepted.
	_, err = svc.Create(ctx, CreateScheduleInput{ScriptID: script.ID, Cron: "0 0 0 * * *"})
	assert.ErrorIs(t, err, models.ErrInvalidCron)

	_, err = svc.Create(ctx, CreateScheduleInput{ScriptID: "missing", Cron: "* * * * *"})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestScheduleService_CreateForUnbuiltImage(t *testing.T) {
	svc := newTestScheduleService(t)
	ctx := context.Background()
	script := seedScheduleScript(t, svc, false)

	// Enabling is requested but the image is not built: stored disabled.
	schedule, err := svc.Create(ctx, CreateScheduleInput{ScriptID: script.ID, Cron: "* * * * *", Enabled: true})
	require.NoError(t, err)
	assert.False(t, schedule.Enabled)
}

func TestScheduleService_UpdateEnableRequiresBuiltImage(t *testing.T) {
	svc := newTestScheduleService(t)
	ctx := context.Background()
	script := seedScheduleScript(t, svc, false)

	schedule, err := svc.Create(ctx, CreateScheduleInput{ScriptID: script.ID, Cron: "* * * * *"})
	require.NoError(t, err)

	enabled := true
	_, err = svc.Update(ctx, schedule.ID, ScheduleUpdate{Enabled: &enabled})
	assert.ErrorIs(t, err, models.ErrInvalidState)

	// Once the image is built, enabling succeeds.
	engineID := "abc123"
	require.NoError(t, svc.DB.Model(&models.Image{}).Where("id = ?", *script.ImageID).
		Updates(map[string]interface{}{"status": models.ImageBuildSuccess, "engine_image_id": engineID}).Error)
	updated, err := svc.Update(ctx, schedule.ID, ScheduleUpdate{Enabled: &enabled})
	require.NoError(t, err)
	assert.True(t, updated.Enabled)

	badCron := "banana"
	_, err = svc.Update(ctx, schedule.ID, ScheduleUpdate{Cron: &badCron})
	assert.ErrorIs(t, err, models.ErrInvalidCron)
}

func TestScheduleService_Delete(t *testing.T) {
	svc := newTestScheduleService(t)
	ctx := context.Background()
	script := seedScheduleScript(t, svc, true)

	schedule, err := svc.Create(ctx, CreateScheduleInput{ScriptID: script.ID, Cron: "* * * * *"})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, schedule.ID))
	_, err = svc.Get(ctx, schedule.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.ErrorIs(t, svc.Delete(ctx, schedule.ID), models.ErrNotFound)
}
