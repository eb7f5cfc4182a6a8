package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannel_StepThenComplete(t *testing.T) {
	ch := New(8)
	ch.Step(1, 3, "ocr")
	ch.Step(2, 3, "chunk")
	ch.Complete("done")

	var events []Event
	for e := range ch.Events() {
		events = append(events, e)
	}

	require.Len(t, events, 3)
	require.Equal(t, KindStep, events[0].Kind)
	require.InDelta(t, 33.33, events[0].ProgressPc, 0.1)
	require.Equal(t, KindComplete, events[2].Kind)
}

func TestChannel_ExactlyOneTerminalEvent(t *testing.T) {
	ch := New(4)
	ch.Complete("first")
	ch.Complete("second") // must be a no-op after close
	ch.Error(nil)          // must also be a no-op

	var events []Event
	for e := range ch.Events() {
		events = append(events, e)
	}
	require.Len(t, events, 1, "exactly one terminal event must be emitted")
}

func TestChannel_Error(t *testing.T) {
	ch := New(1)
	ch.Error(assert.AnError)

	var events []Event
	for e := range ch.Events() {
		events = append(events, e)
	}
	require.Len(t, events, 1)
	require.Equal(t, KindError, events[0].Kind)
	require.NotEmpty(t, events[0].Err)
}
