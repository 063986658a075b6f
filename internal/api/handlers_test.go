package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/cloudwego/hertz/pkg/route"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Jarrydtb/scripter/internal/config"
	"github.com/Jarrydtb/scripter/internal/models"
	"github.com/Jarrydtb/scripter/internal/services"
)

func setupTestAppWithRoutes(t *testing.T) (*route.Engine, *gorm.DB) {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	err = gormDB.AutoMigrate(
		&models.Image{}, &models.ImageFile{}, &models.Script{}, &models.Job{}, &models.Schedule{})
	require.NoError(t, err)

	cfg, err := config.New(t.TempDir())
	require.NoError(t, err)

	hlog.SetLevel(hlog.LevelFatal)
	h := server.Default(
		server.WithHostPorts("127.0.0.1:0"),
		server.WithExitWaitTime(time.Duration(0)),
	)

	scriptHandler := NewScriptHandler(services.NewScriptService(gormDB, cfg))
	scheduleHandler := NewScheduleHandler(services.NewScheduleService(gormDB))

	scriptGroup := h.Group("/scripts")
	{
		scriptGroup.POST("", scriptHandler.CreateScript)
		scriptGroup.GET("", scriptHandler.GetScripts)
		scriptGroup.GET("/languages", scriptHandler.GetLanguages)
		scriptGroup.GET("/:id", scriptHandler.GetScriptByID)
		scriptGroup.GET("/:id/code", scriptHandler.GetScriptCode)
	}
	scheduleGroup := h.Group("/schedules")
	{
		scheduleGroup.POST("", scheduleHandler.CreateSchedule)
	}
	return h.Engine, gormDB
}

func postJSON(t *testing.T, router *route.Engine, url string, payload interface{}) *ut.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return ut.PerformRequest(router, "POST", url,
		&ut.Body{Body: bytes.NewReader(raw), Len: len(raw)},
		ut.Header{Key: "Content-Type", Value: "application/json"})
}

func TestCreateScriptAPI(t *testing.T) {
	router, _ := setupTestAppWithRoutes(t)

	w := postJSON(t, router, "/scripts", CreateScriptRequest{
		Name:     "hello",
		Language: "python",
		Code:     "print('hi')\n",
	})
	resp := w.Result()
	require.Equal(t, http.StatusCreated, resp.StatusCode())

	var created models.Script
	require.NoError(t, json.Unmarshal(resp.Body(), &created))
	assert.Equal(t, "hello", created.Name)
	assert.Equal(t, "python", created.Language)
	assert.NotEmpty(t, created.ID)

	// Fetch it back, then its code.
	w = ut.PerformRequest(router, "GET", "/scripts/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, w.Result().StatusCode())

	w = ut.PerformRequest(router, "GET", "/scripts/"+created.ID+"/code", nil)
	resp = w.Result()
	require.Equal(t, http.StatusOK, resp.StatusCode())
	var codeBody map[string]string
	require.NoError(t, json.Unmarshal(resp.Body(), &codeBody))
	assert.Equal(t, "print('hi')\n", codeBody["code"])
}

func TestCreateScriptAPI_ConflictAndBadLanguage(t *testing.T) {
	router, _ := setupTestAppWithRoutes(t)

	w := postJSON(t, router, "/scripts", CreateScriptRequest{Name: "dup", Language: "python", Code: "x"})
	require.Equal(t, http.StatusCreated, w.Result().StatusCode())

	w = postJSON(t, router, "/scripts", CreateScriptRequest{Name: "dup", Language: "python", Code: "x"})
	assert.Equal(t, http.StatusConflict, w.Result().StatusCode())

	w = postJSON(t, router, "/scripts", CreateScriptRequest{Name: "bad", Language: "cobol", Code: "x"})
	assert.Equal(t, http.StatusConflict, w.Result().StatusCode())
}

func TestGetScriptAPI_NotFound(t *testing.T) {
	router, _ := setupTestAppWithRoutes(t)
	w := ut.PerformRequest(router, "GET", "/scripts/absent", nil)
	assert.Equal(t, http.StatusNotFound, w.Result().StatusCode())
}

func TestGetLanguagesAPI(t *testing.T) {
	router, _ := setupTestAppWithRoutes(t)
	w := ut.PerformRequest(router, "GET", "/scripts/languages", nil)
	resp := w.Result()
	require.Equal(t, http.StatusOK, resp.StatusCode())

	var body struct {
		Languages []models.Language `json:"languages"`
	}
	require.NoError(t, json.Unmarshal(resp.Body(), &body))
	assert.Len(t, body.Languages, 2)
}

func TestCreateScheduleAPI_InvalidCron(t *testing.T) {
	router, gormDB := setupTestAppWithRoutes(t)
	require.NoError(t, gormDB.Create(&models.Script{ID: "s1", Name: "job", Language: "python"}).Error)

	w := postJSON(t, router, "/schedules", CreateScheduleRequest{ScriptID: "s1", Cron: "not a cron"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Result().StatusCode())

	w = postJSON(t, router, "/schedules", CreateScheduleRequest{ScriptID: "s1", Cron: "*/10 * * * *"})
	assert.Equal(t, http.StatusCreated, w.Result().StatusCode())
}
