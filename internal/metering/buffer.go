package metering

import (
	"sync"

	"github.com/google/uuid"
	"github.com/quotientlabs/quotient/internal/models"
)

// slotKey identifies one buffer slot.
type slotKey struct {
	licenseID uuid.UUID
	metric    models.MetricType
}

// slot accumulates raw events for one (license, metric) pair between flushes,
// along with the license context captured at first insertion. lic may stay nil
// when context resolution failed; the flush then uses fallback limits.
type slot struct {
	events []models.APICallRecord
	lic    *models.License
}

// buffer is the in-memory accumulator for raw usage events. All mutation goes
// through enqueue and the detach operations, which atomically swap a slot's
// event list so a flush in progress never loses or duplicates concurrent
// enqueues. Slot keys persist across flushes; only the event list is replaced.
type buffer struct {
	mu    sync.Mutex
	slots map[slotKey]*slot
}

func newBuffer() *buffer {
	return &buffer{slots: make(map[slotKey]*slot)}
}

// enqueue appends rec to the slot, creating it on first use. It returns the
// slot size after the append and whether the slot still needs license context.
func (b *buffer) enqueue(licenseID uuid.UUID, metric models.MetricType, rec models.APICallRecord) (size int, needsContext bool) {
	key := slotKey{licenseID: licenseID, metric: metric}

	b.mu.Lock()
	defer b.mu.Unlock()

	sl, ok := b.slots[key]
	if !ok {
		sl = &slot{}
		b.slots[key] = sl
	}
	sl.events = append(sl.events, rec)
	return len(sl.events), sl.lic == nil
}

// setLicense records resolved license context on a slot. Late or duplicate
// writes are harmless; the value is only read at detach time.
func (b *buffer) setLicense(licenseID uuid.UUID, metric models.MetricType, lic *models.License) {
	key := slotKey{licenseID: licenseID, metric: metric}

	b.mu.Lock()
	defer b.mu.Unlock()

	if sl, ok := b.slots[key]; ok {
		sl.lic = lic
	}
}

// detach atomically removes and returns the slot's accumulated events, leaving
// an empty list in place. Events enqueued after the detach land in the fresh
// list and belong to the next flush.
func (b *buffer) detach(licenseID uuid.UUID, metric models.MetricType) ([]models.APICallRecord, *models.License) {
	key := slotKey{licenseID: licenseID, metric: metric}

	b.mu.Lock()
	defer b.mu.Unlock()

	sl, ok := b.slots[key]
	if !ok || len(sl.events) == 0 {
		return nil, nil
	}
	events := sl.events
	sl.events = nil
	return events, sl.lic
}

// detached is one batch produced by detachAll.
type detached struct {
	licenseID uuid.UUID
	metric    models.MetricType
	events    []models.APICallRecord
	lic       *models.License
}

// detachAll detaches every non-empty slot in one critical section.
func (b *buffer) detachAll() []detached {
	b.mu.Lock()
	defer b.mu.Unlock()

	var batches []detached
	for key, sl := range b.slots {
		if len(sl.events) == 0 {
			continue
		}
		batches = append(batches, detached{
			licenseID: key.licenseID,
			metric:    key.metric,
			events:    sl.events,
			lic:       sl.lic,
		})
		sl.events = nil
	}
	return batches
}

// size returns the current number of buffered events for a slot.
func (b *buffer) size(licenseID uuid.UUID, metric models.MetricType) int {
	key := slotKey{licenseID: licenseID, metric: metric}

	b.mu.Lock()
	defer b.mu.Unlock()

	if sl, ok := b.slots[key]; ok {
		return len(sl.events)
	}
	return 0
}
