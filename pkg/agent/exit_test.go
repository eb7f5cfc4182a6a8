package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loomwork/loom/pkg/orchestra"
)

func TestStopSentinel_DefaultPhrases(t *testing.T) {
	s := &StopSentinel{}

	tests := []struct {
		text string
		want bool
	}{
		{"the project is now FEATURE-COMPLETE, stopping", true},
		{"All issues completed; nothing left in the tracker", true},
		{"implemented login form, tests pass", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.Match(tt.text), "text: %q", tt.text)
	}
}

func TestStopSentinel_CustomPhrases(t *testing.T) {
	s := &StopSentinel{Phrases: []string{"ship it"}}

	assert.True(t, s.Match("reviewer says SHIP IT"))
	assert.False(t, s.Match("feature-complete"), "custom phrases replace the defaults")
}

func TestStopSentinel_ObserveScansSessionOutput(t *testing.T) {
	s := &StopSentinel{}
	res := &orchestra.DriveResult{
		Output: "read router.go\nwired the last handler; the project is feature-complete\n",
	}

	assert.True(t, s.Observe(res))
	assert.False(t, s.Observe(nil))
}

func TestStopSentinel_ObserveScansConclusionSummary(t *testing.T) {
	s := &StopSentinel{}
	res := &orchestra.DriveResult{
		Outcome: orchestra.OutcomeCompleted,
		Summary: "all issues completed as of this session",
	}

	assert.True(t, s.Observe(res))
}

func TestDriveChangeCount(t *testing.T) {
	res := &orchestra.DriveResult{
		Changes: []orchestra.Change{
			{Type: orchestra.ChangeCreate, Path: "a.go"},
			{Type: orchestra.ChangeModify, Path: "b.go"},
			{Type: orchestra.ChangeModify, Path: "c.go"},
		},
	}

	assert.Equal(t, 3, driveChangeCount(res))
	assert.Equal(t, 0, driveChangeCount(nil))
}
