package storage

import "sync"

// hub fans annotation changes out to per-score subscribers. Channels are
// buffered one deep and conflate: a subscriber that has not drained yet
// gets the stale set replaced by the latest, never a backlog.
type hub struct {
	mu     sync.Mutex
	nextID int
	closed bool
	subs   map[uint]map[int]chan []Annotation
}

func newHub() *hub {
	return &hub{subs: make(map[uint]map[int]chan []Annotation)}
}

func (h *hub) subscribe(scoreID uint) (chan []Annotation, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan []Annotation, 1)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.nextID
	h.nextID++
	if h.subs[scoreID] == nil {
		h.subs[scoreID] = make(map[int]chan []Annotation)
	}
	h.subs[scoreID][id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if subs, ok := h.subs[scoreID]; ok {
			if _, ok := subs[id]; ok {
				delete(subs, id)
				if len(subs) == 0 {
					delete(h.subs, scoreID)
				}
				close(ch)
			}
		}
	}
	return ch, cancel
}

func (h *hub) publish(scoreID uint, anns []Annotation) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for _, ch := range h.subs[scoreID] {
		h.send(ch, anns)
	}
}

// deliver pushes an initial value to a single subscriber channel.
func (h *hub) deliver(ch chan []Annotation, anns []Annotation) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.send(ch, anns)
}

// send conflates: only hub methods send on subscriber channels, and all of
// them hold the mutex, so the drain-then-send below cannot race.
func (h *hub) send(ch chan []Annotation, anns []Annotation) {
	select {
	case ch <- anns:
	default:
		select {
		case <-ch:
		default:
		}
		ch <- anns
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, subs := range h.subs {
		for _, ch := range subs {
			close(ch)
		}
	}
	h.subs = make(map[uint]map[int]chan []Annotation)
}
