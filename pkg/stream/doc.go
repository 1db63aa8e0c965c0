// Package stream provides the seed-keyed pseudorandom bit generators used to
// build glimpse noise frames.
//
// # Overview
//
// Every frame shown to a subject is derived from a single unsigned seed. The
// seed is written to the event log, and an offline tool (possibly written in
// another language, possibly months later) replays the same generator to
// rebuild the frame. The arithmetic in this package is therefore a wire
// contract: unsigned, wrapping, fixed width.
//
// # Algorithms
//
// XorShift32 is the reproducibility contract with offline tooling:
//
//	x ^= x << 13
//	x ^= x >> 17
//	x ^= x << 5
//
// A zero seed is replaced by FallbackSeed (2463534242). A boolean is the top
// bit of the next output.
//
// LCG64 is the 64-bit live generator:
//
//	state = state*6364136223846793005 + 1442695040888963407 (mod 2^64)
//
// The output is the new state. A boolean is the top bit of the next output.
//
// # Usage Example
//
//	s := stream.New(stream.AlgorithmXorShift32, 123456789)
//	for i := 0; i < 64; i++ {
//		light := s.Bool()
//		...
//	}
package stream
