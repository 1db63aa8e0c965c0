package eventlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frameEvent() Event {
	return Event{
		Timestamp:       time.Unix(1700000000, 123456000),
		SessionTime:     12.5,
		TrialTime:       1.25,
		Type:            EventFrame,
		SessionID:       "s-1",
		TrialIndex:      3,
		Coherence:       0.4,
		TargetIntensity: 0.8,
		Quadrant:        "top_left",
		FrameNumber:     42,
		Seed:            123456789,
		StimulusOn:      true,
	}
}

func TestHeader_ColumnOrder(t *testing.T) {
	want := []string{
		"timestamp", "sessionTime", "trialTime", "eventType", "sessionId",
		"trialIndex", "coherence", "targetIntensity", "quadrant", "frameNumber",
		"seed", "stimulusOn", "response", "reactionTime", "withinRTWindow",
	}
	assert.Equal(t, want, Header())

	h := Header()
	h[0] = "mutated"
	assert.Equal(t, "timestamp", Header()[0], "Header returns a copy")
}

func TestEvent_Row(t *testing.T) {
	t.Run("frame row", func(t *testing.T) {
		row := frameEvent().Row()
		require.Len(t, row, len(Header()))
		assert.Equal(t, "1700000000.123456", row[0])
		assert.Equal(t, "12.500000", row[1])
		assert.Equal(t, "frame", row[3])
		assert.Equal(t, "42", row[9])
		assert.Equal(t, "123456789", row[10])
		assert.Equal(t, "true", row[11])
		assert.Equal(t, "", row[13])
	})

	t.Run("non-frame rows blank the frame columns", func(t *testing.T) {
		ev := frameEvent()
		ev.Type = EventTrialEnd
		ev.Response = ResponseHit
		rt := 0.4521
		ev.ReactionTime = &rt
		ev.WithinRTWindow = true

		row := ev.Row()
		assert.Equal(t, "", row[9])
		assert.Equal(t, "", row[10])
		assert.Equal(t, "", row[11])
		assert.Equal(t, "hit", row[12])
		assert.Equal(t, "0.452100", row[13])
		assert.Equal(t, "true", row[14])
	})
}

func TestParseRow(t *testing.T) {
	t.Run("round trips a frame row", func(t *testing.T) {
		ev := frameEvent()
		parsed, err := ParseRow(ev.Row())
		require.NoError(t, err)
		assert.True(t, ev.Timestamp.Equal(parsed.Timestamp))
		assert.Equal(t, ev.Seed, parsed.Seed)
		assert.Equal(t, ev.FrameNumber, parsed.FrameNumber)
		assert.Equal(t, ev.Coherence, parsed.Coherence)
		assert.Nil(t, parsed.ReactionTime)
	})

	t.Run("rejects wrong width", func(t *testing.T) {
		_, err := ParseRow([]string{"1", "2"})
		assert.Error(t, err)
	})

	t.Run("rejects bad numbers", func(t *testing.T) {
		row := frameEvent().Row()
		row[10] = "not-a-seed"
		_, err := ParseRow(row)
		assert.ErrorContains(t, err, "seed")
	})
}

func TestHashToEvent_MissingColumnsAreBlank(t *testing.T) {
	ev, err := HashToEvent(map[string]string{
		"timestamp":  "1700000000.5",
		"eventType":  "trial_start",
		"sessionId":  "s-1",
		"trialIndex": "2",
	})
	require.NoError(t, err)
	assert.Equal(t, EventTrialStart, ev.Type)
	assert.Equal(t, 2, ev.TrialIndex)
	assert.Equal(t, int64(500000), ev.Timestamp.UnixMicro()%1000000)
}

func TestEvent_Validate(t *testing.T) {
	ev := frameEvent()
	assert.NoError(t, ev.Validate())

	ev.SessionID = ""
	assert.Error(t, ev.Validate())

	end := frameEvent()
	end.Type = EventTrialEnd
	assert.Error(t, end.Validate(), "trial_end needs a classification")
	end.Response = ResponseMiss
	assert.NoError(t, end.Validate())

	bad := frameEvent()
	bad.Type = "blink"
	assert.Error(t, bad.Validate())
}
