package lessonsync

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/lessonsync/lessonsync/pkg/lessonsync/audio"
	"github.com/lessonsync/lessonsync/pkg/lessonsync/model"
	"github.com/lessonsync/lessonsync/pkg/lessonsync/remote"
)

// Phase is the lifecycle position of an analysis run.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseSuccess
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseSuccess:
		return "success"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// RunState is the observable state of the analyzer. Data is set on success,
// Message on error; both are nil/empty otherwise.
type RunState struct {
	Phase   Phase
	Data    *model.LessonData
	Message string
}

// Analyzer coordinates the two-stage remote analysis of a recorded lesson
// and commits the outcome to storage. One run is active per score at a
// time; starting a new run for a score supersedes an older in-flight run's
// commit and state delivery, though its remote calls run to completion.
type Analyzer struct {
	storage Storage
	remote  Analysis
	log     Logger

	mu      sync.Mutex
	state   RunState
	subs    map[int]chan RunState
	nextSub int
	gens    map[uint]uint64
}

func NewAnalyzer(storage Storage, analysis Analysis, log Logger) *Analyzer {
	return &Analyzer{
		storage: storage,
		remote:  analysis,
		log:     log,
		state:   RunState{Phase: PhaseIdle},
		subs:    make(map[int]chan RunState),
		gens:    make(map[uint]uint64),
	}
}

// State returns the current run state.
func (a *Analyzer) State() RunState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Subscribe starts a live observation of the run state. The current state
// is delivered immediately; slow consumers see only the latest state.
func (a *Analyzer) Subscribe() (<-chan RunState, func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ch := make(chan RunState, 1)
	ch <- a.state
	id := a.nextSub
	a.nextSub++
	a.subs[id] = ch

	cancel := func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if _, ok := a.subs[id]; ok {
			delete(a.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Reset moves the analyzer back to idle. It affects only the observable
// state; in-flight work is not cancelled.
func (a *Analyzer) Reset() {
	a.setState(RunState{Phase: PhaseIdle})
}

func (a *Analyzer) setState(state RunState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = state
	for _, ch := range a.subs {
		select {
		case ch <- state:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- state
		}
	}
}

// nextGeneration claims a new run generation for the score. A run whose
// generation is no longer current skips its commit and state delivery.
func (a *Analyzer) nextGeneration(scoreID uint) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.gens[scoreID]++
	return a.gens[scoreID]
}

func (a *Analyzer) isCurrent(scoreID uint, gen uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.gens[scoreID] == gen
}

// Run analyzes a recorded lesson for a score: the audio path is persisted,
// the recording is summarized and transcribed remotely, the transcript is
// translated into measure directives, and the outcome replaces the score's
// prior lesson result and annotation set. The returned error mirrors the
// published terminal state.
func (a *Analyzer) Run(ctx context.Context, scoreID uint, audioPath string) error {
	runID := uuid.NewString()
	gen := a.nextGeneration(scoreID)

	if meta, err := audio.Probe(audioPath); err != nil {
		a.log.Warnf("run %s: could not probe %s: %v", runID, audioPath, err)
	} else {
		a.log.Infof("run %s: score %d, %s (%s, %.1fs, %d Hz)",
			runID, scoreID, meta.Filename,
			humanize.Bytes(uint64(meta.SizeBytes)),
			meta.Duration.Seconds(), meta.SampleRate)
	}

	// The recording location is persisted first so it survives a failed run.
	if err := a.storage.SetRecordedFilePath(scoreID, audioPath); err != nil {
		return a.fail(scoreID, gen, fmt.Errorf("saving recorded file path: %w", err))
	}

	a.publish(scoreID, gen, RunState{Phase: PhaseLoading})

	data, err := a.remote.ProcessLesson(ctx, audioPath)
	if err != nil {
		return a.fail(scoreID, gen, fmt.Errorf("lesson analysis failed: %w", err))
	}
	a.log.Debugf("run %s: received %d speech segments", runID, len(data.SpeechSegments))

	transcript := data.FullTranscript()
	if strings.TrimSpace(transcript) == "" {
		// Nothing to translate: commit the summary with an empty
		// transcript and no annotations.
		if err := a.commit(scoreID, gen, data.Summary, "", nil); err != nil {
			return a.fail(scoreID, gen, err)
		}
		a.publish(scoreID, gen, RunState{Phase: PhaseSuccess, Data: data})
		return nil
	}

	directives, err := a.remote.ParseDirectives(ctx, transcript)
	if err != nil {
		// The summary and transcript were obtained; keep them even though
		// the annotation step failed, then report the failure.
		if commitErr := a.commit(scoreID, gen, data.Summary, transcript, nil); commitErr != nil {
			return a.fail(scoreID, gen, commitErr)
		}
		return a.fail(scoreID, gen, fmt.Errorf("directive translation failed: %w", err))
	}
	a.log.Infof("run %s: translated %d directives", runID, len(directives))

	if err := a.commit(scoreID, gen, data.Summary, transcript, directives); err != nil {
		return a.fail(scoreID, gen, err)
	}
	a.publish(scoreID, gen, RunState{Phase: PhaseSuccess, Data: data})
	return nil
}

// commit replaces the score's analysis output unless a newer run for the
// same score has started since.
func (a *Analyzer) commit(scoreID uint, gen uint64, summary, transcript string, directives []model.Directive) error {
	if !a.isCurrent(scoreID, gen) {
		a.log.Warnf("score %d: superseded run skipped its commit", scoreID)
		return nil
	}
	if err := a.storage.ReplaceAnalysis(scoreID, summary, transcript, directives); err != nil {
		return fmt.Errorf("committing analysis: %w", err)
	}
	return nil
}

// publish updates the observable state unless the run is superseded.
func (a *Analyzer) publish(scoreID uint, gen uint64, state RunState) {
	if !a.isCurrent(scoreID, gen) {
		return
	}
	a.setState(state)
}

func (a *Analyzer) fail(scoreID uint, gen uint64, err error) error {
	a.log.Errorf("score %d: %v", scoreID, err)
	a.publish(scoreID, gen, RunState{Phase: PhaseError, Message: err.Error()})
	return err
}

// ErrorIsTranslation reports whether a run error came from the directive
// translation stage, meaning summary and transcript were still committed.
func ErrorIsTranslation(err error) bool {
	return remote.IsTranslationError(err)
}
