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
	"github.com/Jarrydtb/scripter/internal/engine"
	"github.com/Jarrydtb/scripter/internal/events"
	"github.com/Jarrydtb/scripter/internal/models"
)

// SpecFileName is the required name of an image's build specification file.
const SpecFileName = "Dockerfile"

// ImageService owns the synchronous side of the image lifecycle: CRUD, the
// build precondition check and dispatch, build-log polling, and the
// destroy/delete cascades. The build itself runs in the worker.
type ImageService struct {
	DB       *gorm.DB
	Producer Dispatcher
	Engine   engine.Engine
	Cfg      *config.Config
}

func NewImageService(gormDB *gorm.DB, producer Dispatcher, eng engine.Engine, cfg *config.Config) *ImageService {
	return &ImageService{DB: gormDB, Producer: producer, Engine: eng, Cfg: cfg}
}

// CreateImageInput carries the already-received file contents; upload
// plumbing lives in the API layer.
type CreateImageInput struct {
	Name        string
	Description string
	Tag         string
	Specfile    []byte
	// Supporting maps filename to content.
	Supporting map[string][]byte
}

func (s *ImageService) Create(ctx context.Context, in CreateImageInput) (*models.Image, error) {
	if len(in.Specfile) == 0 {
		return nil, fmt.Errorf("%w: empty build specification", models.ErrInvalidState)
	}
	unique, err := imageNameUnique(s.DB.WithContext(ctx), in.Name, "")
	if err != nil {
		return nil, err
	}
	if !unique {
		return nil, fmt.Errorf("%w: image name %q", models.ErrConflict, in.Name)
	}

	imageID := uuid.NewString()
	srcDir := s.Cfg.ImageSrcDir(imageID)
	if err := os.MkdirAll(srcDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}

	files := map[string][]byte{SpecFileName: in.Specfile}
	for name, content := range in.Supporting {
		files[filepath.Base(name)] = content
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(srcDir, name), content, 0o644); err != nil {
			os.RemoveAll(s.Cfg.ImageDir(imageID))
			return nil, fmt.Errorf("failed to write image file %s: %w", name, err)
		}
	}

	image := &models.Image{
		ID:          imageID,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Tag:         in.Tag,
		Status:      models.ImageDormant,
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(image).Error; err != nil {
			return err
		}
		for name := range files {
			if err := tx.Create(&models.ImageFile{ImageID: imageID, Filepath: name}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		os.RemoveAll(s.Cfg.ImageDir(imageID))
		return nil, fmt.Errorf("failed to create image record: %w", err)
	}
	log.Printf("Created image %s (%s)", image.ID, image.Name)
	return image, nil
}

// ImageQuery are the supported list filters.
type ImageQuery struct {
	Page   int
	Limit  int
	Name   *string
	Status *models.ImageStatus
}

// ImageList is one page of images.
type ImageList struct {
	Images []models.Image `json:"images"`
	Page   int            `json:"page"`
	Limit  int            `json:"limit"`
	Total  int64          `json:"total"`
}

func (s *ImageService) List(ctx context.Context, q ImageQuery) (*ImageList, error) {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	base := s.DB.WithContext(ctx).Model(&models.Image{})
	if q.Name != nil {
		base = base.Where("name = ?", *q.Name)
	}
	if q.Status != nil {
		base = base.Where("status = ?", *q.Status)
	}
	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, err
	}
	var images []models.Image
	if err := base.Offset(q.Page * q.Limit).Limit(q.Limit).Find(&images).Error; err != nil {
		return nil, err
	}
	return &ImageList{Images: images, Page: q.Page, Limit: q.Limit, Total: total}, nil
}

func (s *ImageService) Get(ctx context.Context, imageID string) (*models.Image, error) {
	var image models.Image
	if err := s.DB.WithContext(ctx).First(&image, "id = ?", imageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: image %s", models.ErrNotFound, imageID)
		}
		return nil, err
	}
	return &image, nil
}

// ListFiles returns the file records mirroring the image's src directory.
func (s *ImageService) ListFiles(ctx context.Context, imageID string) ([]models.ImageFile, error) {
	if _, err := s.Get(ctx, imageID); err != nil {
		return nil, err
	}
	var files []models.ImageFile
	if err := s.DB.WithContext(ctx).Where("image_id = ?", imageID).Find(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}

// UpdateImageInput carries a partial image update. File changes are only
// applied while the image's build inputs are mutable.
type UpdateImageInput struct {
	Name        *string
	Description *string
	Specfile    []byte
	// Added maps filename to content for new supporting files.
	Added map[string][]byte
	// RemoveFileIDs are ImageFile record ids to delete.
	RemoveFileIDs []uint
}

// Update applies metadata changes, and file changes while status permits.
// While BUILD_SUCCESS only name and description may change; build inputs are
// mutable only in DORMANT or BUILD_FAILED.
func (s *ImageService) Update(ctx context.Context, imageID string, in UpdateImageInput) error {
	image, err := s.Get(ctx, imageID)
	if err != nil {
		return err
	}

	wantsFileChanges := len(in.Specfile) > 0 || len(in.Added) > 0 || len(in.RemoveFileIDs) > 0
	inputsMutable := image.Status == models.ImageDormant || image.Status == models.ImageBuildFailed
	if wantsFileChanges && !inputsMutable {
		return fmt.Errorf("%w: build inputs are immutable while status is %s", models.ErrInvalidState, image.Status)
	}
	if image.Status == models.ImageBuilding {
		return fmt.Errorf("%w: image %s is building", models.ErrInvalidState, imageID)
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.Name != nil {
			unique, err := imageNameUnique(tx, *in.Name, imageID)
			if err != nil {
				return err
			}
			if !unique {
				return fmt.Errorf("%w: image name %q", models.ErrConflict, *in.Name)
			}
			image.Name = strings.TrimSpace(*in.Name)
		}
		if in.Description != nil {
			image.Description = *in.Description
		}
		if err := tx.Save(image).Error; err != nil {
			return err
		}
		if !wantsFileChanges {
			return nil
		}

		srcDir := s.Cfg.ImageSrcDir(imageID)
		if len(in.Specfile) > 0 {
			if err := os.WriteFile(filepath.Join(srcDir, SpecFileName), in.Specfile, 0o644); err != nil {
				return fmt.Errorf("failed to update build specification: %w", err)
			}
		}
		if len(in.RemoveFileIDs) > 0 {
			var removed []models.ImageFile
			if err := tx.Where("image_id = ? AND id IN ?", imageID, in.RemoveFileIDs).Find(&removed).Error; err != nil {
				return err
			}
			for _, f := range removed {
				path := filepath.Join(srcDir, filepath.Base(f.Filepath))
				if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
					log.Printf("Failed to remove image file %s: %v", path, err)
					continue
				}
				if err := tx.Delete(&models.ImageFile{}, f.ID).Error; err != nil {
					return err
				}
			}
		}
		for name, content := range in.Added {
			name = filepath.Base(name)
			if err := os.WriteFile(filepath.Join(srcDir, name), content, 0o644); err != nil {
				return fmt.Errorf("failed to write image file %s: %w", name, err)
			}
			if err := tx.Create(&models.ImageFile{ImageID: imageID, Filepath: name}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// StartBuild checks the build preconditions synchronously and dispatches the
// build to the worker. The worker claims the DORMANT to BUILDING transition,
// so a duplicate dispatch can never start a second engine build.
func (s *ImageService) StartBuild(ctx context.Context, imageID string) error {
	image, err := s.Get(ctx, imageID)
	if err != nil {
		return err
	}
	if !image.Status.CanTransition(models.ImageBuilding) {
		return fmt.Errorf("%w: cannot build image in status %s", models.ErrInvalidState, image.Status)
	}
	if err := dispatch(ctx, s.Producer, imageID, events.DispatchPayload{
		Kind:    events.KindBuild,
		ImageID: imageID,
	}); err != nil {
		return err
	}
	log.Printf("Dispatched build for image %s", imageID)
	return nil
}

// LogChunk is one increment of a polled log artifact.
type LogChunk struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"new_position"`
	Status string   `json:"status"`
}

// GetBuildLogs returns build-log lines past the given byte offset together
// with the image's current status, so pollers can stop once the build ends.
func (s *ImageService) GetBuildLogs(ctx context.Context, imageID string, offset int64) (*LogChunk, error) {
	image, err := s.Get(ctx, imageID)
	if err != nil {
		return nil, err
	}
	lines, newOffset, err := readLogArtifact(s.Cfg.BuildLogPath(imageID), offset)
	if err != nil {
		return nil, err
	}
	return &LogChunk{Lines: lines, Offset: newOffset, Status: image.Status.String()}, nil
}

// Destroy removes the engine-side image, disables every schedule whose script
// depends on it, and returns the image to DORMANT so its build inputs become
// editable again.
func (s *ImageService) Destroy(ctx context.Context, imageID string) error {
	image, err := s.Get(ctx, imageID)
	if err != nil {
		return err
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := disableSchedulesForImage(tx, imageID); err != nil {
			return err
		}
		return tx.Model(&models.Image{}).Where("id = ?", imageID).
			Updates(map[string]interface{}{"status": models.ImageDormant, "engine_image_id": nil}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to destroy image %s: %w", imageID, err)
	}
	if image.EngineImageID != nil {
		if err := s.Engine.RemoveImage(ctx, *image.EngineImageID); err != nil {
			log.Printf("Failed to remove engine image %s for %s: %v", *image.EngineImageID, imageID, err)
		}
	}
	log.Printf("Destroyed image %s, status back to %s", imageID, models.ImageDormant)
	return nil
}

// Delete removes the image entirely: running containers for its jobs are
// killed, dependent schedules disabled, scripts detached, file records and
// the row deleted, the engine image and the directory removed.
func (s *ImageService) Delete(ctx context.Context, imageID string) error {
	image, err := s.Get(ctx, imageID)
	if err != nil {
		return err
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := disableSchedulesForImage(tx, imageID); err != nil {
			return err
		}
		var jobs []models.Job
		if err := tx.Joins("JOIN scripts ON scripts.id = jobs.script_id").
			Where("scripts.image_id = ? AND jobs.status = ? AND jobs.container_id IS NOT NULL",
				imageID, models.JobRunning).
			Find(&jobs).Error; err != nil {
			return err
		}
		for _, job := range jobs {
			if err := s.Engine.KillContainer(ctx, *job.ContainerID); err != nil {
				log.Printf("Failed to kill container %s for job %d: %v", *job.ContainerID, job.ID, err)
				continue
			}
			if err := tx.Model(&models.Job{}).
				Where("id = ? AND status = ?", job.ID, models.JobRunning).
				Update("status", models.JobKilled).Error; err != nil {
				return err
			}
		}
		if err := tx.Model(&models.Script{}).Where("image_id = ?", imageID).
			Update("image_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Where("image_id = ?", imageID).Delete(&models.ImageFile{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Image{}, "id = ?", imageID).Error
	})
	if err != nil {
		return fmt.Errorf("failed to delete image %s: %w", imageID, err)
	}
	if image.EngineImageID != nil {
		if err := s.Engine.RemoveImage(ctx, *image.EngineImageID); err != nil {
			log.Printf("Failed to remove engine image %s for %s: %v", *image.EngineImageID, imageID, err)
		}
	}
	if err := os.RemoveAll(s.Cfg.ImageDir(imageID)); err != nil {
		log.Printf("Failed to remove image directory for %s: %v", imageID, err)
	}
	log.Printf("Deleted image %s", imageID)
	return nil
}

// imageNameUnique checks name uniqueness case- and whitespace-insensitively,
// ignoring the row identified by excludeID.
func imageNameUnique(tx *gorm.DB, name, excludeID string) (bool, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	var count int64
	q := tx.Model(&models.Image{}).Where("lower(trim(name)) = ?", normalized)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count == 0, nil
}

// disableSchedulesForImage flips enabled off for every schedule whose script
// references the image.
func disableSchedulesForImage(tx *gorm.DB, imageID string) error {
	return tx.Model(&models.Schedule{}).
		Where("enabled = ? AND script_id IN (?)", true,
			tx.Model(&models.Script{}).Select("id").Where("image_id = ?", imageID)).
		Update("enabled", false).Error
}
