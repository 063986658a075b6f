package services

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jarrydtb/scripter/internal/models"
)

func newTestScriptService(t *testing.T) *ScriptService {
	t.Helper()
	return NewScriptService(setupTestDB(t), setupTestConfig(t))
}

func TestScriptService_Create(t *testing.T) {
	svc := newTestScriptService(t)
	ctx := context.Background()

	script, err := svc.Create(ctx, CreateScriptInput{
		Name:     "nightly report",
		Language: "Python",
		Code:     []byte("print('hi')\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, "python", script.Language, "language is stored lowercased")

	// Source lands at the fixed path, log directory exists for future jobs.
	code, err := os.ReadFile(svc.Cfg.ScriptSrcPath(script.ID))
	require.NoError(t, err)
	assert.Equal(t, "print('hi')\n", string(code))
	info, err := os.Stat(svc.Cfg.ScriptLogDir(script.ID))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = svc.Create(ctx, CreateScriptInput{Name: "Nightly Report", Language: "python", Code: []byte("x")})
	assert.ErrorIs(t, err, models.ErrConflict)

	_, err = svc.Create(ctx, CreateScriptInput{Name: "bad", Language: "cobol", Code: []byte("x")})
	assert.ErrorIs(t, err, models.ErrInvalidState)

	_, err = svc.Create(ctx, CreateScriptInput{Name: "empty", Language: "python"})
	assert.ErrorIs(t, err, models.ErrInvalidState)

	missing := "missing-image"
	_, err = svc.Create(ctx, CreateScriptInput{Name: "orphan", Language: "python", Code: []byte("x"), ImageID: &missing})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestScriptService_SoftDelete(t *testing.T) {
	svc := newTestScriptService(t)
	ctx := context.Background()

	script, err := svc.Create(ctx, CreateScriptInput{Name: "job", Language: "python", Code: []byte("x")})
	require.NoError(t, err)
	job := &models.Job{ScriptID: script.ID, Status: models.JobSuccess}
	require.NoError(t, svc.DB.Create(job).Error)

	require.NoError(t, svc.Delete(ctx, script.ID))

	// Gone from reads, but the row and its job history survive.
	_, err = svc.Get(ctx, script.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	var raw models.Script
	require.NoError(t, svc.DB.First(&raw, "id = ?", script.ID).Error)
	assert.True(t, raw.Deleted)
	var jobCount int64
	require.NoError(t, svc.DB.Model(&models.Job{}).Where("script_id = ?", script.ID).Count(&jobCount).Error)
	assert.EqualValues(t, 1, jobCount)

	// The name is free for reuse once its holder is soft-deleted.
	_, err = svc.Create(ctx, CreateScriptInput{Name: "job", Language: "python", Code: []byte("y")})
	assert.NoError(t, err)

	list, err := svc.List(ctx, ScriptQuery{})
	require.NoError(t, err)
	assert.Len(t, list.Scripts, 1)
}

func TestScriptService_UpdateInfoBlockedBySchedules(t *testing.T) {
	svc := newTestScriptService(t)
	ctx := context.Background()

	script, err := svc.Create(ctx, CreateScriptInput{Name: "job", Language: "python", Code: []byte("x")})
	require.NoError(t, err)

	cron := "0 * * * *"
	require.NoError(t, svc.DB.Create(&models.Schedule{ScriptID: script.ID, Cron: &cron}).Error)

	newName := "renamed"
	_, err = svc.UpdateInfo(ctx, script.ID, ScriptUpdate{Name: &newName})
	assert.ErrorIs(t, err, models.ErrInvalidState)

	require.NoError(t, svc.DB.Where("script_id = ?", script.ID).Delete(&models.Schedule{}).Error)
	updated, err := svc.UpdateInfo(ctx, script.ID, ScriptUpdate{Name: &newName})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
}

func TestScriptService_Code(t *testing.T) {
	svc := newTestScriptService(t)
	ctx := context.Background()

	script, err := svc.Create(ctx, CreateScriptInput{Name: "job", Language: "javascript", Code: []byte("v1\n")})
	require.NoError(t, err)

	require.NoError(t, svc.UpdateCode(ctx, script.ID, []byte("v2\n")))
	code, err := svc.GetCode(ctx, script.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2\n", string(code))

	assert.ErrorIs(t, svc.UpdateCode(ctx, script.ID, nil), models.ErrInvalidState)
}
