package event

import "sync"

// DedupIndex remembers recently seen event ids so a retried submission
// is recognized as a duplicate instead of being evaluated twice.
// Eviction is FIFO once capacity is reached.
type DedupIndex struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
	cap   int
}

func NewDedupIndex(capacity int) *DedupIndex {
	if capacity <= 0 {
		capacity = 4096
	}
	return &DedupIndex{
		seen: make(map[string]struct{}, capacity),
		cap:  capacity,
	}
}

// Observe records the id and reports whether it was seen before.
// The check and insert are atomic, so two concurrent submissions of the
// same id cannot both pass.
func (d *DedupIndex) Observe(id string) (duplicate bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[id]; ok {
		return true
	}
	d.seen[id] = struct{}{}
	d.order = append(d.order, id)
	if len(d.order) > d.cap {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.seen, oldest)
	}
	return false
}

// Forget removes an id so a later submission is treated as new again.
// Used when an observed event could not be queued after all.
func (d *DedupIndex) Forget(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[id]; !ok {
		return
	}
	delete(d.seen, id)
	for i := len(d.order) - 1; i >= 0; i-- {
		if d.order[i] == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

func (d *DedupIndex) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
