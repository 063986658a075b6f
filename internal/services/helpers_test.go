package services

import (
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Jarrydtb/scripter/internal/config"
	"github.com/Jarrydtb/scripter/internal/engine"
	"github.com/Jarrydtb/scripter/internal/events"
	"github.com/Jarrydtb/scripter/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	err = gormDB.AutoMigrate(
		&models.Image{}, &models.ImageFile{}, &models.Script{}, &models.Job{}, &models.Schedule{})
	require.NoError(t, err)
	return gormDB
}

func setupTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.New(t.TempDir())
	require.NoError(t, err)
	return cfg
}

// mockDispatcher records dispatched messages in place of a Kafka writer.
type mockDispatcher struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
}

func (m *mockDispatcher) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msgs...)
	return nil
}

func (m *mockDispatcher) payloads(t *testing.T) []events.DispatchPayload {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]events.DispatchPayload, 0, len(m.messages))
	for _, msg := range m.messages {
		var p events.DispatchPayload
		require.NoError(t, json.Unmarshal(msg.Value, &p))
		out = append(out, p)
	}
	return out
}

// fakeEngine is an in-memory engine.Engine for service and executor tests.
type fakeEngine struct {
	mu sync.Mutex

	images      map[string]bool
	buildOutput string
	buildErr    error
	runErr      error
	output      string

	nextContainerID string
	killed          []string
	removedImages   []string
	removedCtrs     []string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{images: make(map[string]bool), nextContainerID: "ctr-1"}
}

func (f *fakeEngine) BuildImage(ctx context.Context, opts engine.BuildOptions) (io.ReadCloser, error) {
	if f.buildErr != nil {
		return nil, f.buildErr
	}
	return io.NopCloser(strings.NewReader(f.buildOutput)), nil
}

func (f *fakeEngine) ImageExists(ctx context.Context, imageID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.images[imageID], nil
}

func (f *fakeEngine) RemoveImage(ctx context.Context, imageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.images, imageID)
	f.removedImages = append(f.removedImages, imageID)
	return nil
}

func (f *fakeEngine) RunContainer(ctx context.Context, opts engine.RunOptions) (string, error) {
	if f.runErr != nil {
		return "", f.runErr
	}
	return f.nextContainerID, nil
}

func (f *fakeEngine) StreamOutput(ctx context.Context, containerID string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(f.output)), nil
}

func (f *fakeEngine) KillContainer(ctx context.Context, containerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = append(f.killed, containerID)
	return nil
}

func (f *fakeEngine) RemoveContainer(ctx context.Context, containerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removedCtrs = append(f.removedCtrs, containerID)
	return nil
}
