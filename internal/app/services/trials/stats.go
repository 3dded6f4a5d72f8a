package trials

import (
	"sort"

	"github.com/R3E-Network/voice_metrics/internal/app/domain/trial"
)

// mean returns the arithmetic mean of field over trials, or nil for an empty
// set.
func mean(trials []trial.Trial, field func(trial.Trial) float64) *float64 {
	if len(trials) == 0 {
		return nil
	}
	// dividing each term first keeps the sum finite for large inputs
	n := float64(len(trials))
	var avg float64
	for _, t := range trials {
		avg += field(t) / n
	}
	return &avg
}

func responseTime(t trial.Trial) float64 { return t.ResponseTime }
func accuracy(t trial.Trial) float64     { return t.Accuracy }
func errorRate(t trial.Trial) float64    { return t.ErrorRate }

// fastest returns up to n trials with the lowest response time. Equal
// response times keep their input order. The input is not modified.
func fastest(trials []trial.Trial, n int) []trial.Trial {
	sorted := make([]trial.Trial, len(trials))
	copy(sorted, trials)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ResponseTime < sorted[j].ResponseTime
	})
	if n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}

// tally counts trials per command. An empty command counts as unknown.
func tally(trials []trial.Trial) map[string]int {
	counts := make(map[string]int)
	for _, t := range trials {
		cmd := string(t.Command)
		if cmd == "" {
			cmd = string(trial.CommandUnknown)
		}
		counts[cmd]++
	}
	return counts
}
