package metering

import (
	"math"
	"sort"
	"strconv"

	"github.com/quotientlabs/quotient/internal/models"
)

// utilizationPct computes current/limit as a percentage rounded to two
// decimals. limit must be positive; callers resolve limits through
// licensing.ResolveLimit which never returns zero or negative values.
func utilizationPct(current, limit int64) float64 {
	if limit <= 0 {
		return 0
	}
	return round2(float64(current) / float64(limit) * 100)
}

// round2 rounds to two decimal places.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// aggregateBatch folds a batch of raw events into APICallStats, merging count
// maps and time distributions cumulatively on top of the prior snapshot's
// stats. Performance stats are recomputed over the new batch only: earlier
// batches' raw durations are no longer available after their flush.
func aggregateBatch(events []models.APICallRecord, prior *models.APICallStats) *models.APICallStats {
	stats := models.NewAPICallStats()
	if prior != nil {
		mergeCounts(stats.Endpoints, prior.Endpoints)
		mergeCounts(stats.Methods, prior.Methods)
		mergeCounts(stats.StatusCodes, prior.StatusCodes)
		mergeCounts(stats.UserAgents, prior.UserAgents)
		mergeCounts(stats.Countries, prior.Countries)
		stats.Hourly = prior.Hourly
		stats.Daily = prior.Daily
		stats.Monthly = prior.Monthly
	}

	if len(events) == 0 {
		return stats
	}

	durations := make([]int64, 0, len(events))
	var totalDuration int64
	var errorCount int64

	for _, ev := range events {
		stats.Endpoints[ev.Endpoint]++
		stats.Methods[ev.Method]++
		stats.StatusCodes[strconv.Itoa(ev.StatusCode)]++
		if ev.UserAgent != "" {
			stats.UserAgents[ev.UserAgent]++
		}
		if ev.Country != "" {
			stats.Countries[ev.Country]++
		}
		if ev.StatusCode >= 400 {
			errorCount++
		}

		durations = append(durations, ev.DurationMs)
		totalDuration += ev.DurationMs

		ts := ev.Timestamp
		stats.Hourly[ts.Hour()]++
		stats.Daily[int(ts.Weekday())]++
		stats.Monthly[int(ts.Month())-1]++
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	stats.Performance = models.PerformanceStats{
		AvgResponseMs: round2(float64(totalDuration) / float64(len(durations))),
		MinResponseMs: durations[0],
		MaxResponseMs: durations[len(durations)-1],
		P95ResponseMs: durations[p95Index(len(durations))],
		ErrorRate:     round2(float64(errorCount) / float64(len(events)) * 100),
	}

	return stats
}

// p95Index returns the index of the 95th-percentile element in a sorted slice
// of length n, clamped to the last element.
func p95Index(n int) int {
	idx := int(math.Floor(0.95 * float64(n)))
	if idx >= n {
		return n - 1
	}
	return idx
}

// mergeCounts adds src counts into dst by key-sum.
func mergeCounts(dst, src map[string]int64) {
	for k, v := range src {
		dst[k] += v
	}
}
