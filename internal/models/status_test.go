package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestImageStatus_CanTransition(t *testing.T) {
	testCases := []struct {
		name    string
		from    ImageStatus
		to      ImageStatus
		allowed bool
	}{
		{"DormantToBuilding", ImageDormant, ImageBuilding, true},
		{"DormantToSuccess", ImageDormant, ImageBuildSuccess, false},
		{"DormantToFailed", ImageDormant, ImageBuildFailed, false},
		{"BuildingToSuccess", ImageBuilding, ImageBuildSuccess, true},
		{"BuildingToFailed", ImageBuilding, ImageBuildFailed, true},
		{"BuildingToDormant", ImageBuilding, ImageDormant, false},
		{"SuccessToDormant", ImageBuildSuccess, ImageDormant, true},
		{"SuccessToBuilding", ImageBuildSuccess, ImageBuilding, false},
		{"FailedToDormant", ImageBuildFailed, ImageDormant, true},
		{"FailedToBuilding", ImageBuildFailed, ImageBuilding, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.allowed, tc.from.CanTransition(tc.to))
		})
	}
}

func TestJobStatus_CanTransition(t *testing.T) {
	terminal := []JobStatus{JobSuccess, JobFailed, JobKilled}

	assert.True(t, JobPending.CanTransition(JobRunning))
	for _, to := range terminal {
		assert.False(t, JobPending.CanTransition(to), "pending may only go to running, not %s", to)
		assert.True(t, JobRunning.CanTransition(to))
	}

	// Terminal statuses have no exits at all.
	all := []JobStatus{JobPending, JobRunning, JobSuccess, JobFailed, JobKilled}
	for _, from := range terminal {
		assert.True(t, from.Terminal())
		for _, to := range all {
			assert.False(t, from.CanTransition(to), "%s must not transition to %s", from, to)
		}
	}
	assert.False(t, JobPending.Terminal())
	assert.False(t, JobRunning.Terminal())
}

func TestStatusStrings(t *testing.T) {
	assert.Equal(t, "DORMANT", ImageDormant.String())
	assert.Equal(t, "BUILDING", ImageBuilding.String())
	assert.Equal(t, "BUILD_SUCCESS", ImageBuildSuccess.String())
	assert.Equal(t, "BUILD_FAILED", ImageBuildFailed.String())
	assert.Equal(t, "PENDING", JobPending.String())
	assert.Equal(t, "RUNNING", JobRunning.String())
	assert.Equal(t, "SUCCESS", JobSuccess.String())
	assert.Equal(t, "FAILED", JobFailed.String())
	assert.Equal(t, "KILLED", JobKilled.String())
}
