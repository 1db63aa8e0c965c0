package eventlog

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvents() []Event {
	start := frameEvent()
	start.Type = EventTrialStart

	frame := frameEvent()

	end := frameEvent()
	end.Type = EventTrialEnd
	end.Response = ResponseFalseAlarm

	return []Event{start, frame, end}
}

func TestCSVSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.csv")
	sink, err := NewCSVSink(path)
	require.NoError(t, err)

	for _, ev := range sampleEvents() {
		require.NoError(t, sink.Record(context.Background(), ev))
	}
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())

	assert.Error(t, sink.Record(context.Background(), frameEvent()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, strings.Join(Header(), ","), lines[0])

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	events, err := ReadCSV(f)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, EventTrialStart, events[0].Type)
	assert.Equal(t, uint64(42), events[1].FrameNumber)
	assert.Equal(t, ResponseFalseAlarm, events[2].Response)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleEvents()))

	events, err := ReadCSV(&buf)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, EventFrame, events[1].Type)
	assert.Equal(t, EventTrialEnd, events[2].Type)
}

func TestReadCSV_RejectsForeignHeader(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("a,b,c,d,e,f,g,h,i,j,k,l,m,n,o\n"))
	assert.ErrorContains(t, err, "unexpected header")

	_, err = ReadCSV(strings.NewReader(""))
	assert.Error(t, err)
}

func TestXLSXSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.xlsx")
	sink, err := NewXLSXSink(path)
	require.NoError(t, err)

	for _, ev := range sampleEvents() {
		require.NoError(t, sink.Record(context.Background(), ev))
	}
	require.NoError(t, sink.Close())

	events, err := ReadXLSX(path)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, uint64(123456789), events[1].Seed)
	assert.True(t, events[1].StimulusOn)
	assert.Equal(t, ResponseFalseAlarm, events[2].Response)
}
