package executors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"

	"gorm.io/gorm"

	"github.com/Jarrydtb/scripter/internal/config"
	"github.com/Jarrydtb/scripter/internal/engine"
	"github.com/Jarrydtb/scripter/internal/events"
	"github.com/Jarrydtb/scripter/internal/models"
	"github.com/Jarrydtb/scripter/pkg/logtail"
)

// SpecFileName is the build specification file every image context must
// contain.
const SpecFileName = "Dockerfile"

// engineIDPattern matches the engine image identifier on a build output line,
// either the classic builder's success line or a sha256 digest.
var engineIDPattern = regexp.MustCompile(`(^Successfully built |sha256:)([0-9a-f]+)$`)

// BuildExecutor consumes build dispatches: it claims the image row, streams
// the engine build into the image's build log and settles the terminal
// status from what the engine reports.
type BuildExecutor struct {
	DB     *gorm.DB
	Engine engine.Engine
	Cfg    *config.Config
}

func NewBuildExecutor(gormDB *gorm.DB, eng engine.Engine, cfg *config.Config) *BuildExecutor {
	return &BuildExecutor{DB: gormDB, Engine: eng, Cfg: cfg}
}

// Execute runs one image build. Delivery is at least once, so the image row
// is claimed with a conditional update first; a redelivered message finds the
// image no longer DORMANT and is dropped.
func (e *BuildExecutor) Execute(ctx context.Context, payload events.DispatchPayload) error {
	imageID := payload.ImageID
	if imageID == "" {
		return fmt.Errorf("build dispatch without image_id")
	}

	claim := e.DB.WithContext(ctx).Model(&models.Image{}).
		Where("id = ? AND status = ?", imageID, models.ImageDormant).
		Update("status", models.ImageBuilding)
	if claim.Error != nil {
		return fmt.Errorf("failed to claim image %s: %w", imageID, claim.Error)
	}
	if claim.RowsAffected == 0 {
		log.Printf("Image %s is not dormant, dropping build dispatch", imageID)
		return nil
	}

	var image models.Image
	if err := e.DB.WithContext(ctx).First(&image, "id = ?", imageID).Error; err != nil {
		return fmt.Errorf("failed to load image %s: %w", imageID, err)
	}

	engineID, err := e.build(ctx, &image)
	if err != nil {
		log.Printf("Build of image %s failed: %v", imageID, err)
		e.settle(ctx, imageID, models.ImageBuildFailed, nil)
		return err
	}
	e.settle(ctx, imageID, models.ImageBuildSuccess, &engineID)
	log.Printf("Image %s built as %s", imageID, engineID)
	return nil
}

// build streams the engine build into the build log and returns the engine
// image identifier, confirmed to exist.
func (e *BuildExecutor) build(ctx context.Context, image *models.Image) (string, error) {
	srcDir := e.Cfg.ImageSrcDir(image.ID)
	if err := e.checkInputs(ctx, image, srcDir); err != nil {
		return "", err
	}

	buildLog, err := logtail.Create(e.Cfg.BuildLogPath(image.ID))
	if err != nil {
		return "", err
	}
	defer buildLog.Close()

	stream, err := e.Engine.BuildImage(ctx, engine.BuildOptions{
		ContextDir: srcDir,
		SpecFile:   SpecFileName,
		Tag:        image.Tag,
	})
	if err != nil {
		_ = buildLog.WriteLine(fmt.Sprintf("Build failed to start: %v", err))
		return "", fmt.Errorf("failed to start build for image %s: %w", image.ID, err)
	}
	defer stream.Close()

	engineID, err := e.followBuild(stream, buildLog)
	if err != nil {
		return "", err
	}
	if engineID == "" {
		return "", fmt.Errorf("build of image %s produced no image id", image.ID)
	}
	exists, err := e.Engine.ImageExists(ctx, engineID)
	if err != nil {
		return "", fmt.Errorf("failed to confirm image %s: %w", engineID, err)
	}
	if !exists {
		return "", fmt.Errorf("engine does not know built image %s", engineID)
	}
	return engineID, nil
}

// followBuild decodes the engine's JSON build stream, appending every
// printable line to the build log, and returns the last engine image id seen.
func (e *BuildExecutor) followBuild(stream io.Reader, buildLog *logtail.Writer) (string, error) {
	var engineID string
	decoder := json.NewDecoder(stream)
	for {
		var msg engine.BuildMessage
		if err := decoder.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", fmt.Errorf("failed to decode build output: %w", err)
		}
		line := msg.Line()
		if line == "" {
			continue
		}
		for _, l := range splitLines(line) {
			if err := buildLog.WriteLine(l); err != nil {
				return "", err
			}
			if m := engineIDPattern.FindStringSubmatch(l); m != nil {
				engineID = m[2]
			}
		}
		if msg.ErrorDetail.Message != "" {
			return "", fmt.Errorf("engine build error: %s", msg.ErrorDetail.Message)
		}
	}
	return engineID, nil
}

// checkInputs verifies the recorded image files are present on disk and that
// the build specification is among them.
func (e *BuildExecutor) checkInputs(ctx context.Context, image *models.Image, srcDir string) error {
	var files []models.ImageFile
	if err := e.DB.WithContext(ctx).Where("image_id = ?", image.ID).Find(&files).Error; err != nil {
		return err
	}
	hasSpec := false
	for _, f := range files {
		if _, err := os.Stat(filepath.Join(srcDir, f.Filepath)); err != nil {
			return fmt.Errorf("%w: image %s file %s", models.ErrBuildInputMissing, image.ID, f.Filepath)
		}
		if f.Filepath == SpecFileName {
			hasSpec = true
		}
	}
	if !hasSpec {
		return fmt.Errorf("%w: image %s has no %s", models.ErrBuildInputMissing, image.ID, SpecFileName)
	}
	return nil
}

// settle writes the terminal build status, guarded on the row still being in
// BUILDING so a concurrent destroy wins cleanly.
func (e *BuildExecutor) settle(ctx context.Context, imageID string, status models.ImageStatus, engineID *string) {
	result := e.DB.WithContext(ctx).Model(&models.Image{}).
		Where("id = ? AND status = ?", imageID, models.ImageBuilding).
		Updates(map[string]interface{}{"status": status, "engine_image_id": engineID})
	if result.Error != nil {
		log.Printf("Failed to settle image %s to %s: %v", imageID, status, result.Error)
		return
	}
	if result.RowsAffected == 0 {
		log.Printf("Image %s left BUILDING before settlement, skipping", imageID)
	}
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			if i > start {
				lines = append(lines, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
