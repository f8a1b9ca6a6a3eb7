package metering

import (
	"testing"
	"time"

	"github.com/quotientlabs/quotient/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUtilizationPct(t *testing.T) {
	tests := []struct {
		name    string
		current int64
		limit   int64
		want    float64
	}{
		{"zero usage", 0, 100, 0},
		{"half", 50, 100, 50},
		{"at limit", 100, 100, 100},
		{"over limit", 150, 100, 150},
		{"rounds to two decimals", 1, 3, 33.33},
		{"rounds up", 2, 3, 66.67},
		{"zero limit guarded", 10, 0, 0},
		{"negative limit guarded", 10, -5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, utilizationPct(tt.current, tt.limit))
		})
	}
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 33.33, round2(33.333333))
	assert.Equal(t, 66.67, round2(66.666666))
	assert.Equal(t, 100.0, round2(100.0))
	assert.Equal(t, 0.0, round2(0.004))
	assert.Equal(t, 0.01, round2(0.005))
}

func TestP95Index(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{1, 0},
		{2, 1},
		{10, 9},
		{20, 19},
		{100, 95},
		{101, 95},
	}
	for _, tt := range tests {
		got := p95Index(tt.n)
		assert.Equal(t, tt.want, got, "n=%d", tt.n)
		assert.Less(t, got, tt.n, "index must stay in bounds for n=%d", tt.n)
	}
}

func callAt(endpoint, method string, status int, durationMs int64, ts time.Time) models.APICallRecord {
	return models.APICallRecord{
		Endpoint:   endpoint,
		Method:     method,
		StatusCode: status,
		DurationMs: durationMs,
		Timestamp:  ts,
	}
}

func TestAggregateBatchCounts(t *testing.T) {
	ts := time.Date(2026, time.March, 4, 15, 0, 0, 0, time.UTC) // a Wednesday
	events := []models.APICallRecord{
		callAt("/api/v1/repos", "GET", 200, 10, ts),
		callAt("/api/v1/repos", "GET", 200, 20, ts),
		callAt("/api/v1/repos", "POST", 201, 30, ts),
		callAt("/api/v1/users", "GET", 404, 40, ts),
	}
	events[0].UserAgent = "curl/8.0"
	events[0].Country = "DE"
	events[1].Country = "DE"

	stats := aggregateBatch(events, nil)

	assert.Equal(t, int64(3), stats.Endpoints["/api/v1/repos"])
	assert.Equal(t, int64(1), stats.Endpoints["/api/v1/users"])
	assert.Equal(t, int64(3), stats.Methods["GET"])
	assert.Equal(t, int64(1), stats.Methods["POST"])
	assert.Equal(t, int64(2), stats.StatusCodes["200"])
	assert.Equal(t, int64(1), stats.StatusCodes["201"])
	assert.Equal(t, int64(1), stats.StatusCodes["404"])
	assert.Equal(t, int64(1), stats.UserAgents["curl/8.0"])
	assert.Equal(t, int64(2), stats.Countries["DE"])

	// Empty user agents and countries must not create a "" key.
	_, ok := stats.UserAgents[""]
	assert.False(t, ok)
	_, ok = stats.Countries[""]
	assert.False(t, ok)

	assert.Equal(t, int64(4), stats.Hourly[15])
	assert.Equal(t, int64(4), stats.Daily[int(time.Wednesday)])
	assert.Equal(t, int64(4), stats.Monthly[2])
}

func TestAggregateBatchPerformance(t *testing.T) {
	ts := time.Now()
	events := make([]models.APICallRecord, 0, 20)
	for i := 1; i <= 20; i++ {
		events = append(events, callAt("/x", "GET", 200, int64(i*10), ts))
	}
	// Four errors out of twenty.
	for i := 0; i < 4; i++ {
		events[i].StatusCode = 500
	}

	stats := aggregateBatch(events, nil)

	assert.Equal(t, 105.0, stats.Performance.AvgResponseMs)
	assert.Equal(t, int64(10), stats.Performance.MinResponseMs)
	assert.Equal(t, int64(200), stats.Performance.MaxResponseMs)
	// Sorted durations are 10..200; floor(0.95*20)=19 selects the last element.
	assert.Equal(t, int64(200), stats.Performance.P95ResponseMs)
	assert.Equal(t, 20.0, stats.Performance.ErrorRate)
}

func TestAggregateBatchCumulativeMerge(t *testing.T) {
	ts := time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC) // a Monday
	first := aggregateBatch([]models.APICallRecord{
		callAt("/a", "GET", 200, 100, ts),
		callAt("/a", "GET", 200, 300, ts),
	}, nil)

	second := aggregateBatch([]models.APICallRecord{
		callAt("/a", "GET", 200, 50, ts),
		callAt("/b", "POST", 500, 60, ts),
	}, first)

	// Count maps accumulate across batches.
	assert.Equal(t, int64(3), second.Endpoints["/a"])
	assert.Equal(t, int64(1), second.Endpoints["/b"])
	assert.Equal(t, int64(3), second.StatusCodes["200"])
	assert.Equal(t, int64(1), second.StatusCodes["500"])
	assert.Equal(t, int64(4), second.Hourly[9])
	assert.Equal(t, int64(4), second.Daily[int(time.Monday)])
	assert.Equal(t, int64(4), second.Monthly[0])

	// Performance covers the latest batch only.
	assert.Equal(t, 55.0, second.Performance.AvgResponseMs)
	assert.Equal(t, int64(50), second.Performance.MinResponseMs)
	assert.Equal(t, int64(60), second.Performance.MaxResponseMs)
	assert.Equal(t, 50.0, second.Performance.ErrorRate)
}

func TestAggregateBatchEmptyWithPrior(t *testing.T) {
	prior := models.NewAPICallStats()
	prior.Endpoints["/a"] = 7
	prior.Hourly[3] = 7

	stats := aggregateBatch(nil, prior)
	require.NotNil(t, stats)
	assert.Equal(t, int64(7), stats.Endpoints["/a"])
	assert.Equal(t, int64(7), stats.Hourly[3])
	assert.Equal(t, models.PerformanceStats{}, stats.Performance)
}
