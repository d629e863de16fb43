package lessonsync

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lessonsync/lessonsync/pkg/lessonsync/model"
	"github.com/lessonsync/lessonsync/pkg/lessonsync/remote"
	"github.com/lessonsync/lessonsync/pkg/logger"
)

// fakeAnalysis is a scriptable stand-in for the remote backend
type fakeAnalysis struct {
	processFn    func(ctx context.Context) (*model.LessonData, error)
	parseFn      func(ctx context.Context, transcript string) ([]model.Directive, error)
	processCalls atomic.Int32
	parseCalls   atomic.Int32
}

func (f *fakeAnalysis) ProcessLesson(ctx context.Context, audioPath string) (*model.LessonData, error) {
	f.processCalls.Add(1)
	return f.processFn(ctx)
}

func (f *fakeAnalysis) ParseDirectives(ctx context.Context, transcript string) ([]model.Directive, error) {
	f.parseCalls.Add(1)
	return f.parseFn(ctx, transcript)
}

func testLogger() Logger {
	return logger.New(logger.Config{Level: logger.FATAL, Output: io.Discard, Colorize: false})
}

// setupAnalyzer builds an analyzer over real sqlite storage and a fake
// backend, plus a registered score to analyze
func setupAnalyzer(t *testing.T, fake *fakeAnalysis) (Storage, *Analyzer, *Score) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "analyzer_test.sqlite3")
	stor, err := NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { stor.Close() })

	score, err := stor.CreateScore("Nocturne", "/scores/nocturne.musicxml")
	if err != nil {
		t.Fatalf("Failed to create score: %v", err)
	}

	return stor, NewAnalyzer(stor, fake, testLogger()), score
}

func lessonData(summary string, texts ...string) *model.LessonData {
	segments := make([]model.Segment, len(texts))
	for i, text := range texts {
		segments[i] = model.Segment{Start: float64(i), End: float64(i + 1), Text: text}
	}
	return &model.LessonData{Summary: summary, SpeechSegments: segments}
}

// TestAnalyzerSuccess tests the full run: prior annotations replaced, new
// result stored, recorded path persisted, terminal state published
func TestAnalyzerSuccess(t *testing.T) {
	fake := &fakeAnalysis{
		processFn: func(ctx context.Context) (*model.LessonData, error) {
			return lessonData("focus on tempo", "measure five louder", "measure twelve legato"), nil
		},
		parseFn: func(ctx context.Context, transcript string) ([]model.Directive, error) {
			if transcript != "measure five louder measure twelve legato" {
				t.Errorf("Unexpected transcript '%s'", transcript)
			}
			return []model.Directive{
				{Measure: 5, Directive: "louder"},
				{Measure: 12, Directive: "legato"},
			}, nil
		},
	}
	stor, analyzer, score := setupAnalyzer(t, fake)

	// Three stale annotations from an earlier analysis.
	for i := 1; i <= 3; i++ {
		stor.InsertAnnotation(score.ID, i, "stale")
	}

	if err := analyzer.Run(context.Background(), score.ID, "/recordings/lesson.wav"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	state := analyzer.State()
	if state.Phase != PhaseSuccess {
		t.Fatalf("Expected success phase, got %s (%s)", state.Phase, state.Message)
	}
	if state.Data == nil || state.Data.Summary != "focus on tempo" {
		t.Errorf("Expected lesson data in terminal state, got %+v", state.Data)
	}

	anns, _ := stor.AnnotationsForScore(score.ID)
	if len(anns) != 2 {
		t.Fatalf("Expected 2 annotations after run, got %d", len(anns))
	}
	if anns[0].MeasureNumber != 5 || anns[1].MeasureNumber != 12 {
		t.Errorf("Unexpected annotation set %+v", anns)
	}

	result, _ := stor.LessonResultForScore(score.ID)
	if result == nil || result.Summary != "focus on tempo" {
		t.Fatalf("Expected committed lesson result, got %+v", result)
	}
	if result.FullTranscript != "measure five louder measure twelve legato" {
		t.Errorf("Unexpected transcript '%s'", result.FullTranscript)
	}

	got, _ := stor.ScoreByID(score.ID)
	if got.RecordedFilePath != "/recordings/lesson.wav" {
		t.Errorf("Expected recorded path persisted, got '%s'", got.RecordedFilePath)
	}
}

// TestAnalyzerBlankTranscriptSkipsTranslation tests that empty speech
// commits an empty result without ever calling the translation boundary
func TestAnalyzerBlankTranscriptSkipsTranslation(t *testing.T) {
	fake := &fakeAnalysis{
		processFn: func(ctx context.Context) (*model.LessonData, error) {
			return lessonData("silent lesson"), nil
		},
		parseFn: func(ctx context.Context, transcript string) ([]model.Directive, error) {
			return nil, errors.New("must not be called")
		},
	}
	stor, analyzer, score := setupAnalyzer(t, fake)

	if err := analyzer.Run(context.Background(), score.ID, "/recordings/quiet.wav"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if n := fake.parseCalls.Load(); n != 0 {
		t.Errorf("Expected translation to be skipped, called %d times", n)
	}
	if analyzer.State().Phase != PhaseSuccess {
		t.Errorf("Expected success phase, got %s", analyzer.State().Phase)
	}

	result, _ := stor.LessonResultForScore(score.ID)
	if result == nil || result.Summary != "silent lesson" || result.FullTranscript != "" {
		t.Errorf("Expected empty-transcript result, got %+v", result)
	}
	anns, _ := stor.AnnotationsForScore(score.ID)
	if len(anns) != 0 {
		t.Errorf("Expected no annotations, got %d", len(anns))
	}
}

// TestAnalyzerWhitespaceSegmentsCountAsBlank tests that whitespace-only
// speech text routes around translation as well
func TestAnalyzerWhitespaceSegmentsCountAsBlank(t *testing.T) {
	fake := &fakeAnalysis{
		processFn: func(ctx context.Context) (*model.LessonData, error) {
			return lessonData("summary", "  ", "\t"), nil
		},
		parseFn: func(ctx context.Context, transcript string) ([]model.Directive, error) {
			return nil, errors.New("must not be called")
		},
	}
	_, analyzer, score := setupAnalyzer(t, fake)

	if err := analyzer.Run(context.Background(), score.ID, "/recordings/quiet.wav"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if n := fake.parseCalls.Load(); n != 0 {
		t.Errorf("Expected translation to be skipped, called %d times", n)
	}
}

// TestAnalyzerTranscribeFailureAborts tests that a failed first stage
// aborts the run without touching stored data
func TestAnalyzerTranscribeFailureAborts(t *testing.T) {
	fake := &fakeAnalysis{
		processFn: func(ctx context.Context) (*model.LessonData, error) {
			return nil, &remote.ServerError{StatusCode: 500, Message: "transcriber down"}
		},
	}
	stor, analyzer, score := setupAnalyzer(t, fake)
	stor.InsertAnnotation(score.ID, 4, "keep me")

	err := analyzer.Run(context.Background(), score.ID, "/recordings/lesson.wav")
	if err == nil {
		t.Fatal("Expected run to fail")
	}

	state := analyzer.State()
	if state.Phase != PhaseError {
		t.Fatalf("Expected error phase, got %s", state.Phase)
	}
	if state.Message == "" {
		t.Error("Expected a human-readable failure message")
	}

	// Nothing was obtained, so nothing may have been committed.
	result, _ := stor.LessonResultForScore(score.ID)
	if result != nil {
		t.Errorf("Expected no lesson result after aborted run, got %+v", result)
	}
	anns, _ := stor.AnnotationsForScore(score.ID)
	if len(anns) != 1 {
		t.Errorf("Expected prior annotations untouched, got %d", len(anns))
	}
}

// TestAnalyzerTranslationFailureKeepsData tests the partial-success policy:
// summary and transcript are committed, annotations emptied, error reported
func TestAnalyzerTranslationFailureKeepsData(t *testing.T) {
	fake := &fakeAnalysis{
		processFn: func(ctx context.Context) (*model.LessonData, error) {
			return lessonData("good summary", "some speech"), nil
		},
		parseFn: func(ctx context.Context, transcript string) ([]model.Directive, error) {
			return nil, &remote.TranslationError{Err: errors.New("garbled response")}
		},
	}
	stor, analyzer, score := setupAnalyzer(t, fake)
	stor.InsertAnnotation(score.ID, 2, "stale")

	err := analyzer.Run(context.Background(), score.ID, "/recordings/lesson.wav")
	if err == nil {
		t.Fatal("Expected run to report the translation failure")
	}
	if !ErrorIsTranslation(err) {
		t.Errorf("Expected translation error, got %v", err)
	}
	if analyzer.State().Phase != PhaseError {
		t.Errorf("Expected error phase, got %s", analyzer.State().Phase)
	}

	result, _ := stor.LessonResultForScore(score.ID)
	if result == nil || result.Summary != "good summary" || result.FullTranscript != "some speech" {
		t.Fatalf("Expected summary and transcript committed despite failure, got %+v", result)
	}
	anns, _ := stor.AnnotationsForScore(score.ID)
	if len(anns) != 0 {
		t.Errorf("Expected annotation set emptied, got %d", len(anns))
	}
}

// TestAnalyzerReset tests that reset returns to idle independent of runs
func TestAnalyzerReset(t *testing.T) {
	fake := &fakeAnalysis{
		processFn: func(ctx context.Context) (*model.LessonData, error) {
			return lessonData("summary"), nil
		},
	}
	_, analyzer, score := setupAnalyzer(t, fake)

	analyzer.Run(context.Background(), score.ID, "/recordings/lesson.wav")
	if analyzer.State().Phase != PhaseSuccess {
		t.Fatalf("Expected success before reset, got %s", analyzer.State().Phase)
	}

	analyzer.Reset()
	if analyzer.State().Phase != PhaseIdle {
		t.Errorf("Expected idle after reset, got %s", analyzer.State().Phase)
	}
}

// TestAnalyzerSubscribe tests the reactive state delivery across one run
func TestAnalyzerSubscribe(t *testing.T) {
	release := make(chan struct{})
	fake := &fakeAnalysis{
		processFn: func(ctx context.Context) (*model.LessonData, error) {
			<-release
			return lessonData("summary"), nil
		},
	}
	_, analyzer, score := setupAnalyzer(t, fake)

	states, cancel := analyzer.Subscribe()
	defer cancel()

	if initial := waitForState(t, states, PhaseIdle); initial.Phase != PhaseIdle {
		t.Fatalf("Expected initial idle state, got %s", initial.Phase)
	}

	done := make(chan error, 1)
	go func() {
		done <- analyzer.Run(context.Background(), score.ID, "/recordings/lesson.wav")
	}()

	waitForState(t, states, PhaseLoading)
	close(release)
	waitForState(t, states, PhaseSuccess)

	if err := <-done; err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}

// TestAnalyzerStaleRunSkipsCommit tests the generation fence: an older run
// finishing after a newer one must not overwrite the newer results
func TestAnalyzerStaleRunSkipsCommit(t *testing.T) {
	type call struct {
		release <-chan struct{}
		data    *model.LessonData
	}
	calls := make(chan call, 2)
	fake := &fakeAnalysis{
		processFn: func(ctx context.Context) (*model.LessonData, error) {
			c := <-calls
			if c.release != nil {
				<-c.release
			}
			return c.data, nil
		},
	}
	stor, analyzer, score := setupAnalyzer(t, fake)

	releaseOld := make(chan struct{})
	calls <- call{release: releaseOld, data: lessonData("old summary", "old speech")}
	calls <- call{data: lessonData("new summary", "new speech")}

	fake.parseFn = func(ctx context.Context, transcript string) ([]model.Directive, error) {
		return []model.Directive{{Measure: 1, Directive: transcript}}, nil
	}

	oldDone := make(chan error, 1)
	go func() {
		oldDone <- analyzer.Run(context.Background(), score.ID, "/recordings/old.wav")
	}()

	// The newer run claims the score's current generation and completes.
	waitUntil(t, func() bool { return fake.processCalls.Load() == 1 })
	if err := analyzer.Run(context.Background(), score.ID, "/recordings/new.wav"); err != nil {
		t.Fatalf("New run failed: %v", err)
	}

	// Now let the superseded run finish; its commit must be skipped.
	close(releaseOld)
	if err := <-oldDone; err != nil {
		t.Fatalf("Old run failed: %v", err)
	}

	result, _ := stor.LessonResultForScore(score.ID)
	if result == nil || result.Summary != "new summary" {
		t.Fatalf("Expected newer run's result to survive, got %+v", result)
	}
	anns, _ := stor.AnnotationsForScore(score.ID)
	if len(anns) != 1 || anns[0].Directive != "new speech" {
		t.Errorf("Expected newer run's annotations to survive, got %+v", anns)
	}
}

func waitForState(t *testing.T, states <-chan RunState, phase Phase) RunState {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case state, open := <-states:
			if !open {
				t.Fatal("State channel closed unexpectedly")
			}
			if state.Phase == phase {
				return state
			}
		case <-deadline:
			t.Fatalf("Timed out waiting for phase %s", phase)
		}
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Timed out waiting for condition")
}
