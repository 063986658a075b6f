package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Jarrydtb/scripter/internal/config"
	"github.com/Jarrydtb/scripter/internal/models"
)

// ScriptService manages script records and their on-disk source files.
type ScriptService struct {
	DB  *gorm.DB
	Cfg *config.Config
}

func NewScriptService(gormDB *gorm.DB, cfg *config.Config) *ScriptService {
	return &ScriptService{DB: gormDB, Cfg: cfg}
}

type CreateScriptInput struct {
	Name        string
	Description string
	ImageID     *string
	Language    string
	Code        []byte
}

func (s *ScriptService) Create(ctx context.Context, in CreateScriptInput) (*models.Script, error) {
	language := strings.ToLower(in.Language)
	if !models.ValidLanguage(language) {
		return nil, fmt.Errorf("%w: unsupported language %q", models.ErrInvalidState, in.Language)
	}
	if len(in.Code) == 0 {
		return nil, fmt.Errorf("%w: empty script file", models.ErrInvalidState)
	}
	unique, err := scriptNameUnique(s.DB.WithContext(ctx), in.Name, "")
	if err != nil {
		return nil, err
	}
	if !unique {
		return nil, fmt.Errorf("%w: script name %q", models.ErrConflict, in.Name)
	}
	if in.ImageID != nil {
		if _, err := getImage(s.DB.WithContext(ctx), *in.ImageID); err != nil {
			return nil, err
		}
	}

	scriptID := uuid.NewString()
	srcPath := s.Cfg.ScriptSrcPath(scriptID)
	if err := os.MkdirAll(s.Cfg.ScriptLogDir(scriptID), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create script directories: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(srcPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create script directories: %w", err)
	}
	if err := os.WriteFile(srcPath, in.Code, 0o644); err != nil {
		os.RemoveAll(s.Cfg.ScriptDir(scriptID))
		return nil, fmt.Errorf("failed to write script source: %w", err)
	}

	script := &models.Script{
		ID:          scriptID,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		ImageID:     in.ImageID,
		Language:    language,
	}
	if err := s.DB.WithContext(ctx).Create(script).Error; err != nil {
		os.RemoveAll(s.Cfg.ScriptDir(scriptID))
		return nil, fmt.Errorf("failed to create script record: %w", err)
	}
	log.Printf("Created script %s (%s, %s)", script.ID, script.Name, script.Language)
	return script, nil
}

type ScriptQuery struct {
	Page    int
	Limit   int
	Name    *string
	ImageID *string
	Deleted bool
}

type ScriptList struct {
	Scripts []models.Script `json:"scripts"`
	Page    int             `json:"page"`
	Limit   int             `json:"limit"`
	Total   int64           `json:"total"`
}

func (s *ScriptService) List(ctx context.Context, q ScriptQuery) (*ScriptList, error) {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	base := s.DB.WithContext(ctx).Model(&models.Script{}).Where("deleted = ?", q.Deleted)
	if q.Name != nil {
		base = base.Where("lower(name) LIKE ?", "%"+strings.ToLower(*q.Name)+"%")
	}
	if q.ImageID != nil {
		base = base.Where("image_id = ?", *q.ImageID)
	}
	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, err
	}
	var scripts []models.Script
	if err := base.Offset(q.Page * q.Limit).Limit(q.Limit).Find(&scripts).Error; err != nil {
		return nil, err
	}
	return &ScriptList{Scripts: scripts, Page: q.Page, Limit: q.Limit, Total: total}, nil
}

// Get returns a script by id, excluding soft-deleted scripts.
func (s *ScriptService) Get(ctx context.Context, scriptID string) (*models.Script, error) {
	return getScript(s.DB.WithContext(ctx), scriptID)
}

type ScriptUpdate struct {
	Name        *string
	Description *string
	Language    *string
	ImageID     *string
}

// UpdateInfo updates script metadata. It is rejected while any schedule
// references the script, so the image or language cannot change underneath a
// scheduled run.
func (s *ScriptService) UpdateInfo(ctx context.Context, scriptID string, in ScriptUpdate) (*models.Script, error) {
	script, err := getScript(s.DB.WithContext(ctx), scriptID)
	if err != nil {
		return nil, err
	}

	var scheduleCount int64
	if err := s.DB.WithContext(ctx).Model(&models.Schedule{}).
		Where("script_id = ?", scriptID).Count(&scheduleCount).Error; err != nil {
		return nil, err
	}
	if scheduleCount > 0 {
		return nil, fmt.Errorf("%w: script %s has schedules, remove them first", models.ErrInvalidState, scriptID)
	}

	if in.Name != nil {
		unique, err := scriptNameUnique(s.DB.WithContext(ctx), *in.Name, scriptID)
		if err != nil {
			return nil, err
		}
		if !unique {
			return nil, fmt.Errorf("%w: script name %q", models.ErrConflict, *in.Name)
		}
		script.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		script.Description = *in.Description
	}
	if in.Language != nil {
		language := strings.ToLower(*in.Language)
		if !models.ValidLanguage(language) {
			return nil, fmt.Errorf("%w: unsupported language %q", models.ErrInvalidState, *in.Language)
		}
		script.Language = language
	}
	if in.ImageID != nil {
		if _, err := getImage(s.DB.WithContext(ctx), *in.ImageID); err != nil {
			return nil, err
		}
		script.ImageID = in.ImageID
	}
	if err := s.DB.WithContext(ctx).Save(script).Error; err != nil {
		return nil, err
	}
	return script, nil
}

// GetCode returns the script's source file contents.
func (s *ScriptService) GetCode(ctx context.Context, scriptID string) ([]byte, error) {
	script, err := getScript(s.DB.WithContext(ctx), scriptID)
	if err != nil {
		return nil, err
	}
	code, err := os.ReadFile(s.Cfg.ScriptSrcPath(script.ID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: script source for %s", models.ErrNotFound, scriptID)
		}
		return nil, err
	}
	return code, nil
}

// UpdateCode overwrites the script's source file.
func (s *ScriptService) UpdateCode(ctx context.Context, scriptID string, code []byte) error {
	if len(code) == 0 {
		return fmt.Errorf("%w: empty script file", models.ErrInvalidState)
	}
	script, err := getScript(s.DB.WithContext(ctx), scriptID)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.Cfg.ScriptSrcPath(script.ID), code, 0o644); err != nil {
		return fmt.Errorf("failed to update script source: %w", err)
	}
	return nil
}

// Delete soft-deletes the script. Job history is kept.
func (s *ScriptService) Delete(ctx context.Context, scriptID string) error {
	script, err := getScript(s.DB.WithContext(ctx), scriptID)
	if err != nil {
		return err
	}
	if err := s.DB.WithContext(ctx).Model(script).Update("deleted", true).Error; err != nil {
		return fmt.Errorf("failed to delete script %s: %w", scriptID, err)
	}
	log.Printf("Soft-deleted script %s", scriptID)
	return nil
}

func getScript(tx *gorm.DB, scriptID string) (*models.Script, error) {
	var script models.Script
	if err := tx.First(&script, "id = ? AND deleted = ?", scriptID, false).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: script %s", models.ErrNotFound, scriptID)
		}
		return nil, err
	}
	return &script, nil
}

func getImage(tx *gorm.DB, imageID string) (*models.Image, error) {
	var image models.Image
	if err := tx.First(&image, "id = ?", imageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: image %s", models.ErrNotFound, imageID)
		}
		return nil, err
	}
	return &image, nil
}

func scriptNameUnique(tx *gorm.DB, name, excludeID string) (bool, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	var count int64
	q := tx.Model(&models.Script{}).
		Where("lower(trim(name)) = ? AND deleted = ?", normalized, false)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count == 0, nil
}
