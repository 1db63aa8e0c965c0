package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/montanaflynn/stats"
)

const (
	// DefaultDetectSamples is the number of pulse intervals measured.
	DefaultDetectSamples = 30

	// DefaultDetectTimeout bounds refresh-rate detection.
	DefaultDetectTimeout = 2 * time.Second
)

// SoftwareDisplay emulates a vsync signal with a ticker. It stands in for a
// hardware display on headless runs.
type SoftwareDisplay struct {
	hz      float64
	samples int
	timeout time.Duration
}

// NewSoftwareDisplay creates a pulse source at nominal hz.
func NewSoftwareDisplay(hz float64) *SoftwareDisplay {
	return &SoftwareDisplay{
		hz:      hz,
		samples: DefaultDetectSamples,
		timeout: DefaultDetectTimeout,
	}
}

// Pulses implements Display.
func (d *SoftwareDisplay) Pulses(ctx context.Context) <-chan time.Time {
	out := make(chan time.Time)
	if d.hz <= 0 {
		close(out)
		return out
	}

	period := time.Duration(float64(time.Second) / d.hz)
	go func() {
		defer close(out)
		ticker := time.NewTicker(period)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				select {
				case out <- t:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// RefreshRate implements Display by measuring the pulse train.
func (d *SoftwareDisplay) RefreshRate(ctx context.Context) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return MeasureRefreshRate(ctx, d.Pulses(ctx), d.samples)
}

// MeasureRefreshRate reads samples+1 pulses and returns 1 / median interval.
// The median ignores the odd late pulse caused by scheduling jitter.
func MeasureRefreshRate(ctx context.Context, pulses <-chan time.Time, samples int) (float64, error) {
	if samples < 1 {
		samples = 1
	}

	var last time.Time
	intervals := make([]float64, 0, samples)
	for len(intervals) < samples {
		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("refresh detection interrupted after %d intervals: %w", len(intervals), ctx.Err())
		case t, ok := <-pulses:
			if !ok {
				return 0, fmt.Errorf("pulse source closed after %d intervals", len(intervals))
			}
			if !last.IsZero() {
				intervals = append(intervals, t.Sub(last).Seconds())
			}
			last = t
		}
	}

	median, err := stats.Median(intervals)
	if err != nil {
		return 0, fmt.Errorf("failed to compute median pulse interval: %w", err)
	}
	if median <= 0 {
		return 0, fmt.Errorf("non-positive median pulse interval: %v", median)
	}

	return 1 / median, nil
}
