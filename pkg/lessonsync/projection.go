package lessonsync

import (
	"fmt"
	"sync"

	"github.com/lessonsync/lessonsync/pkg/lessonsync/model"
)

// Projector combines one selected score, its live annotation set and the
// current view parameters into immutable snapshots for the overlay
// renderer. Exactly one storage subscription backs the displayed score;
// selecting another score tears it down and starts a new one, so
// annotation state never leaks across scores.
type Projector struct {
	storage Storage
	log     Logger

	mu        sync.Mutex
	score     Score
	anns      []Annotation
	zoom      float64
	show      bool
	highlight int
	cancelSub func()
	closed    bool

	out chan model.Snapshot
}

func newProjector(storage Storage, log Logger, scoreID uint) (*Projector, error) {
	p := &Projector{
		storage: storage,
		log:     log,
		zoom:    1,
		show:    true,
		out:     make(chan model.Snapshot, 1),
	}
	if err := p.SelectScore(scoreID); err != nil {
		return nil, err
	}
	return p, nil
}

// Snapshots delivers a fresh snapshot after every input change. Slow
// consumers see only the latest snapshot.
func (p *Projector) Snapshots() <-chan model.Snapshot {
	return p.out
}

// Snapshot returns the current projection without waiting for a change.
func (p *Projector) Snapshot() model.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// SelectScore switches the projector to another score, replacing the
// annotation subscription of the previous one.
func (p *Projector) SelectScore(scoreID uint) error {
	score, err := p.storage.ScoreByID(scoreID)
	if err != nil {
		return fmt.Errorf("selecting score %d: %w", scoreID, err)
	}
	sub, cancel, err := p.storage.ObserveAnnotations(scoreID)
	if err != nil {
		return fmt.Errorf("observing annotations of score %d: %w", scoreID, err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		cancel()
		return fmt.Errorf("projector is closed")
	}
	if p.cancelSub != nil {
		p.cancelSub()
	}
	p.cancelSub = cancel
	p.score = *score
	p.anns = nil
	p.highlight = 0
	p.mu.Unlock()

	go p.consume(scoreID, sub)
	return nil
}

// consume applies annotation updates for as long as the subscription lives
// and the projector still displays that score.
func (p *Projector) consume(scoreID uint, sub <-chan []Annotation) {
	for anns := range sub {
		p.mu.Lock()
		if p.closed || p.score.ID != scoreID {
			p.mu.Unlock()
			return
		}
		p.anns = anns
		p.emitLocked()
		p.mu.Unlock()
	}
}

// SetZoom updates the zoom factor. Non-positive values are ignored.
func (p *Projector) SetZoom(zoom float64) {
	if zoom <= 0 {
		p.log.Warnf("ignoring non-positive zoom %v", zoom)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.zoom = zoom
	p.emitLocked()
}

func (p *Projector) SetShowAnnotations(show bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.show = show
	p.emitLocked()
}

// SetHighlightedMeasure sets the emphasized measure; 0 clears it.
func (p *Projector) SetHighlightedMeasure(measure int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.highlight = measure
	p.emitLocked()
}

// Close tears down the annotation subscription. The snapshot channel stays
// open but quiet; a closed projector cannot be reused.
func (p *Projector) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	if p.cancelSub != nil {
		p.cancelSub()
		p.cancelSub = nil
	}
}

func (p *Projector) snapshotLocked() model.Snapshot {
	directives := make([]model.Directive, len(p.anns))
	for i, ann := range p.anns {
		directives[i] = model.Directive{
			Measure:   ann.MeasureNumber,
			Directive: ann.Directive,
		}
	}
	return model.Snapshot{
		ScoreID:            p.score.ID,
		Title:              p.score.Title,
		FilePath:           p.score.FilePath,
		Annotations:        directives,
		Zoom:               p.zoom,
		ShowAnnotations:    p.show,
		HighlightedMeasure: p.highlight,
	}
}

// emitLocked publishes the recomputed snapshot, conflating with any
// undelivered one. Callers hold p.mu, so the drain-then-send cannot race.
func (p *Projector) emitLocked() {
	snap := p.snapshotLocked()
	select {
	case p.out <- snap:
	default:
		select {
		case <-p.out:
		default:
		}
		p.out <- snap
	}
}
