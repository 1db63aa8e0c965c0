package eventlog

import "fmt"

// Redis key pattern helpers
//
// All keys and channels are namespaced by session ID so several sessions can
// share one Redis server.

// EventsKey returns the Redis stream key holding every event of a session.
// Pattern: glimpse:{session}:events
func EventsKey(sessionID string) string {
	return fmt.Sprintf("glimpse:%s:events", sessionID)
}

// TrialKey returns the Redis hash key of a finished trial.
// Pattern: glimpse:{session}:trial:{index}
func TrialKey(sessionID string, index int) string {
	return fmt.Sprintf("glimpse:%s:trial:%d", sessionID, index)
}

// EventStreamChannel returns the Pub/Sub channel carrying live events.
// Pattern: glimpse:{session}:event_stream
func EventStreamChannel(sessionID string) string {
	return fmt.Sprintf("glimpse:%s:event_stream", sessionID)
}

// SessionsKey is the ZSET of known sessions scored by start time in ms.
const SessionsKey = "glimpse:sessions"
