// Package eventlog defines the glimpse event row schema and the sinks that
// persist it.
//
// # Overview
//
// Every session produces an ordered stream of events: one trial_start row when
// a trial begins (repeated with the same trial index when a trial is extended
// after an early false alarm), one frame row per generated stimulus frame, one
// response row per classified response, and one trial_end row carrying the
// final classification.
//
// The column order returned by Header is a compatibility contract with
// offline analysis tools and must not change:
//
//	timestamp, sessionTime, trialTime, eventType, sessionId, trialIndex,
//	coherence, targetIntensity, quadrant, frameNumber, seed, stimulusOn,
//	response, reactionTime, withinRTWindow
//
// Frame rows carry the exact seed handed to the frame compositor. Replaying
// that seed through the 32-bit stream reproduces the background pattern.
//
// # Sinks
//
// The trial engine depends only on the Recorder interface. Concrete sinks:
//
//   - RedisSink appends events to a Redis stream, publishes them on a Pub/Sub
//     channel for live watchers, and keeps one hash per finished trial.
//   - CSVSink writes the header and one row per event to a file.
//   - XLSXSink writes the same rows to an "events" worksheet.
//   - Dispatcher fans events out to several sinks from a background goroutine
//     so recording never blocks the frame callback.
//
// # Redis Key Patterns
//
//	glimpse:{session}:events           stream of all events (XADD)
//	glimpse:{session}:event_stream     Pub/Sub channel with JSON events
//	glimpse:{session}:trial:{index}    hash of the trial_end row
//	glimpse:sessions                   ZSET of session IDs scored by start ms
package eventlog
