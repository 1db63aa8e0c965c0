package resolver

import (
	"fmt"
	"strings"
	"testing"

	"github.com/dyluth/glimpse/pkg/eventlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sessions(ids ...string) []eventlog.SessionRecord {
	out := make([]eventlog.SessionRecord, len(ids))
	for i, id := range ids {
		out[i] = eventlog.SessionRecord{ID: id}
	}
	return out
}

func TestResolveSessionID(t *testing.T) {
	known := sessions(
		"3f2b9c1e-0000-4000-8000-000000000001",
		"3f2b9c77-0000-4000-8000-000000000002",
		"pilot",
	)

	tests := []struct {
		name      string
		id        string
		want      string
		notFound  bool
		ambiguous bool
		errSubstr string
	}{
		{name: "exact short name", id: "pilot", want: "pilot"},
		{name: "unique prefix", id: "3f2b9c1e", want: "3f2b9c1e-0000-4000-8000-000000000001"},
		{name: "ambiguous prefix", id: "3f2b9c", ambiguous: true},
		{name: "no match", id: "ffffffff", notFound: true},
		{name: "too short", id: "3f2b", errSubstr: "at least 6 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveSessionID(known, tt.id)
			switch {
			case tt.notFound:
				assert.True(t, IsNotFoundError(err))
			case tt.ambiguous:
				assert.True(t, IsAmbiguousError(err))
			case tt.errSubstr != "":
				assert.ErrorContains(t, err, tt.errSubstr)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestFormatAmbiguousError(t *testing.T) {
	matches := make([]string, 12)
	for i := range matches {
		matches[i] = fmt.Sprintf("abcdef-%02d", i)
	}

	msg := FormatAmbiguousError(&AmbiguousError{ShortID: "abcdef", Matches: matches})
	assert.Contains(t, msg, "matches 12 sessions")
	assert.Contains(t, msg, "abcdef-09")
	assert.NotContains(t, msg, "abcdef-10")
	assert.Contains(t, msg, "...and 2 more")
	assert.True(t, strings.HasSuffix(msg, "uniquely identify the session."))
}
