package metering

import (
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/quotientlabs/quotient/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferEnqueueAndDetach(t *testing.T) {
	b := newBuffer()
	id := uuid.New()

	size, needsContext := b.enqueue(id, models.MetricAPICalls, models.APICallRecord{Endpoint: "/a"})
	assert.Equal(t, 1, size)
	assert.True(t, needsContext, "fresh slot has no license context")

	lic := models.NewLicense("acme", "pro")
	b.setLicense(id, models.MetricAPICalls, lic)

	size, needsContext = b.enqueue(id, models.MetricAPICalls, models.APICallRecord{Endpoint: "/b"})
	assert.Equal(t, 2, size)
	assert.False(t, needsContext)

	events, gotLic := b.detach(id, models.MetricAPICalls)
	require.Len(t, events, 2)
	assert.Equal(t, "/a", events[0].Endpoint)
	assert.Equal(t, "/b", events[1].Endpoint)
	assert.Equal(t, lic, gotLic)

	// The slot is empty after detach, and a second detach yields nothing.
	assert.Equal(t, 0, b.size(id, models.MetricAPICalls))
	events, _ = b.detach(id, models.MetricAPICalls)
	assert.Empty(t, events)
}

func TestBufferSlotsAreIndependent(t *testing.T) {
	b := newBuffer()
	a, c := uuid.New(), uuid.New()

	b.enqueue(a, models.MetricAPICalls, models.APICallRecord{})
	b.enqueue(a, models.MetricAPICalls, models.APICallRecord{})
	b.enqueue(c, models.MetricAPICalls, models.APICallRecord{})

	assert.Equal(t, 2, b.size(a, models.MetricAPICalls))
	assert.Equal(t, 1, b.size(c, models.MetricAPICalls))

	events, _ := b.detach(a, models.MetricAPICalls)
	assert.Len(t, events, 2)
	assert.Equal(t, 1, b.size(c, models.MetricAPICalls), "detaching one slot leaves others intact")
}

func TestBufferLicenseContextSurvivesDetach(t *testing.T) {
	b := newBuffer()
	id := uuid.New()
	lic := models.NewLicense("acme", "pro")

	b.enqueue(id, models.MetricAPICalls, models.APICallRecord{})
	b.setLicense(id, models.MetricAPICalls, lic)
	b.detach(id, models.MetricAPICalls)

	// Context is kept on the slot across flushes; only events are swapped out.
	_, needsContext := b.enqueue(id, models.MetricAPICalls, models.APICallRecord{})
	assert.False(t, needsContext)

	_, gotLic := b.detach(id, models.MetricAPICalls)
	assert.Equal(t, lic, gotLic)
}

func TestBufferDetachAll(t *testing.T) {
	b := newBuffer()
	a, c := uuid.New(), uuid.New()

	b.enqueue(a, models.MetricAPICalls, models.APICallRecord{})
	b.enqueue(a, models.MetricAPICalls, models.APICallRecord{})
	b.enqueue(c, models.MetricAPICalls, models.APICallRecord{})
	b.detach(c, models.MetricAPICalls)

	batches := b.detachAll()
	require.Len(t, batches, 1, "empty slots are skipped")
	assert.Equal(t, a, batches[0].licenseID)
	assert.Len(t, batches[0].events, 2)
	assert.Equal(t, 0, b.size(a, models.MetricAPICalls))
}

func TestBufferConcurrentEnqueueAndDetach(t *testing.T) {
	b := newBuffer()
	id := uuid.New()

	const writers = 8
	const perWriter = 500

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				b.enqueue(id, models.MetricAPICalls, models.APICallRecord{Timestamp: time.Now()})
			}
		}()
	}

	done := make(chan struct{})
	var detachedTotal int
	go func() {
		defer close(done)
		for detachedTotal < writers*perWriter {
			events, _ := b.detach(id, models.MetricAPICalls)
			detachedTotal += len(events)
			runtime.Gosched()
		}
	}()

	wg.Wait()
	<-done

	assert.Equal(t, writers*perWriter, detachedTotal,
		"no event may be lost or duplicated across concurrent enqueue and detach")
}
