// Package logtail writes line-oriented log artifacts and reads them back
// incrementally by byte offset, so pollers only ever receive bytes they have
// not seen before.
package logtail

import (
	"fmt"
	"os"
	"strings"
)

// Writer appends lines to a log artifact, flushing to disk after every line
// so a killed process cannot lose output that was already produced.
type Writer struct {
	f *os.File
}

// Create opens path for writing, truncating any previous artifact.
func Create(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create log artifact %s: %w", path, err)
	}
	return &Writer{f: f}, nil
}

// Append opens path for appending, creating it if missing.
func Append(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log artifact %s: %w", path, err)
	}
	return &Writer{f: f}, nil
}

// WriteLine appends one line and syncs it to disk.
func (w *Writer) WriteLine(line string) error {
	if _, err := w.f.WriteString(line + "\n"); err != nil {
		return err
	}
	return w.f.Sync()
}

func (w *Writer) Close() error {
	return w.f.Close()
}

// WriteLine is a one-shot helper for writing a single line, used when a
// failure has to be recorded in an artifact that may not exist yet.
func WriteLine(path, line string) error {
	w, err := Append(path)
	if err != nil {
		return err
	}
	defer w.Close()
	return w.WriteLine(line)
}

// ReadFrom returns the lines available at path after the given byte offset
// and the new offset to poll from. Reading at the current end returns no
// lines and the same offset.
func ReadFrom(path string, offset int64) ([]string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, 0, err
	}
	if offset < 0 || offset > info.Size() {
		offset = info.Size()
	}
	buf := make([]byte, info.Size()-offset)
	if len(buf) == 0 {
		return nil, offset, nil
	}
	n, err := f.ReadAt(buf, offset)
	if err != nil && n != len(buf) {
		return nil, 0, err
	}
	newOffset := offset + int64(n)
	lines := strings.Split(string(buf[:n]), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines, newOffset, nil
}
