package services

import (
	"fmt"
	"os"

	"github.com/Jarrydtb/scripter/internal/models"
	"github.com/Jarrydtb/scripter/pkg/logtail"
)

// readLogArtifact maps a missing artifact onto the domain's not-found error.
func readLogArtifact(path string, offset int64) ([]string, int64, error) {
	lines, newOffset, err := logtail.ReadFrom(path, offset)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, fmt.Errorf("%w: log artifact %s", models.ErrNotFound, path)
		}
		return nil, 0, err
	}
	return lines, newOffset, nil
}
