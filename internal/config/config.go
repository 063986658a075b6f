package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
)

const (
	DefaultDataDir = "./data"

	imageDirName  = "images"
	scriptDirName = "scripts"
)

// Config describes the on-disk layout for image and script data. Every image
// owns images/<id>/src plus a build.log; every script owns scripts/<id>/src
// with a single source file named "script" and a logs directory.
type Config struct {
	// DataDir is where this process reads and writes image/script data.
	DataDir string
	// HostDataDir is the same directory as seen by the container engine's
	// host, used as the source side of bind mounts. Falls back to DataDir
	// when the engine runs on the same filesystem.
	HostDataDir string
}

// Load builds a Config from SCRIPTER_DATA_DIR / SCRIPTER_HOST_DATA_DIR and
// creates the image and script directories if missing.
func Load() (*Config, error) {
	dataDir := os.Getenv("SCRIPTER_DATA_DIR")
	if dataDir == "" {
		dataDir = DefaultDataDir
	}
	hostDataDir := os.Getenv("SCRIPTER_HOST_DATA_DIR")
	if hostDataDir == "" {
		log.Printf("SCRIPTER_HOST_DATA_DIR not set, falling back to data dir %s", dataDir)
		hostDataDir = dataDir
	}
	cfg := &Config{DataDir: dataDir, HostDataDir: hostDataDir}
	for _, dir := range []string{cfg.imageRoot(), cfg.scriptRoot()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
		}
	}
	return cfg, nil
}

// New returns a Config rooted at dataDir with the image and script
// directories created. Used by tests and tools that bypass the environment.
func New(dataDir string) (*Config, error) {
	cfg := &Config{DataDir: dataDir, HostDataDir: dataDir}
	for _, dir := range []string{cfg.imageRoot(), cfg.scriptRoot()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
		}
	}
	return cfg, nil
}

func (c *Config) imageRoot() string  { return filepath.Join(c.DataDir, imageDirName) }
func (c *Config) scriptRoot() string { return filepath.Join(c.DataDir, scriptDirName) }

// ImageDir is the root directory of one image.
func (c *Config) ImageDir(imageID string) string {
	return filepath.Join(c.imageRoot(), imageID)
}

// ImageSrcDir holds the build specification and supporting files.
func (c *Config) ImageSrcDir(imageID string) string {
	return filepath.Join(c.ImageDir(imageID), "src")
}

// BuildLogPath is the image's build log artifact, overwritten at build start.
func (c *Config) BuildLogPath(imageID string) string {
	return filepath.Join(c.ImageDir(imageID), "build.log")
}

// ScriptDir is the root directory of one script.
func (c *Config) ScriptDir(scriptID string) string {
	return filepath.Join(c.scriptRoot(), scriptID)
}

// ScriptSrcPath is the script's single source file.
func (c *Config) ScriptSrcPath(scriptID string) string {
	return filepath.Join(c.ScriptDir(scriptID), "src", "script")
}

// ScriptLogDir holds one log artifact per job.
func (c *Config) ScriptLogDir(scriptID string) string {
	return filepath.Join(c.ScriptDir(scriptID), "logs")
}

// HostScriptSrcPath is ScriptSrcPath as seen from the container engine's
// host, for use as a bind-mount source.
func (c *Config) HostScriptSrcPath(scriptID string) string {
	return filepath.Join(c.HostDataDir, scriptDirName, scriptID, "src", "script")
}
