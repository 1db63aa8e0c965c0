package session

import (
	"sort"

	"github.com/dyluth/glimpse/internal/trial"
	"github.com/montanaflynn/stats"
)

// Summary is the end-of-run tally printed by the CLI.
type Summary struct {
	Trials      int     `json:"trials"`
	Hits        int     `json:"hits"`
	Misses      int     `json:"misses"`
	FalseAlarms int     `json:"falseAlarms"`
	Aborted     int     `json:"aborted"`
	AutoRewards int     `json:"autoRewards"`
	Extensions  int     `json:"extensions"`
	HitRate     float64 `json:"hitRate"`
	MeanRTMS    float64 `json:"meanRtMs"`
	MedianRTMS  float64 `json:"medianRtMs"`
	ByCoherence []Level `json:"byCoherence,omitempty"`
}

// Level is the hit rate at one coherence level.
type Level struct {
	Coherence float64 `json:"coherence"`
	Trials    int     `json:"trials"`
	Hits      int     `json:"hits"`
	HitRate   float64 `json:"hitRate"`
}

// Summarize tallies results. Aborted trials are counted but excluded from
// the rates; reaction-time statistics cover hits only.
func Summarize(results []trial.Result) Summary {
	var (
		sum   Summary
		rts   []float64
		order []float64
	)
	levels := make(map[float64]*Level)

	for _, res := range results {
		sum.Trials++
		sum.Extensions += res.Extensions
		if res.AutoRewarded {
			sum.AutoRewards++
		}
		if res.Aborted {
			sum.Aborted++
			continue
		}

		lvl, ok := levels[res.Config.Coherence]
		if !ok {
			lvl = &Level{Coherence: res.Config.Coherence}
			levels[res.Config.Coherence] = lvl
			order = append(order, res.Config.Coherence)
		}
		lvl.Trials++

		switch res.Outcome {
		case trial.OutcomeHit:
			sum.Hits++
			lvl.Hits++
			if res.HasReactionTime {
				rts = append(rts, float64(res.ReactionTime.Microseconds())/1000)
			}
		case trial.OutcomeMiss:
			sum.Misses++
		case trial.OutcomeFalseAlarm:
			sum.FalseAlarms++
		}
	}

	if scored := sum.Trials - sum.Aborted; scored > 0 {
		sum.HitRate = float64(sum.Hits) / float64(scored)
	}
	if len(rts) > 0 {
		// Errors only arise from empty input, excluded above.
		sum.MeanRTMS, _ = stats.Mean(rts)
		sum.MedianRTMS, _ = stats.Median(rts)
	}

	sort.Float64s(order)
	for _, c := range order {
		lvl := levels[c]
		lvl.HitRate = float64(lvl.Hits) / float64(lvl.Trials)
		sum.ByCoherence = append(sum.ByCoherence, *lvl)
	}
	return sum
}
