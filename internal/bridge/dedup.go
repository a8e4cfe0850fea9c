package bridge

import "sync"

const defaultDedupCapacity = 512

// Deduplicator remembers recently seen message identifiers. Broadcast
// radio media routinely deliver the same packet to more than one connected
// endpoint; forwarding every copy would double traffic and can snowball
// across larger endpoint sets.
//
// Eviction is FIFO by insertion order once capacity is exceeded. A re-seen
// identifier does not refresh its slot.
type Deduplicator struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
	cap   int
}

func NewDeduplicator(capacity int) *Deduplicator {
	if capacity <= 0 {
		capacity = defaultDedupCapacity
	}

	return &Deduplicator{
		seen: make(map[string]struct{}, capacity),
		cap:  capacity,
	}
}

// Seen reports whether id was already observed inside the retention
// window. When it returns false the id is recorded, so the first caller
// is the one that processes the message.
func (d *Deduplicator) Seen(id string) bool {
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

func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.seen)
}
