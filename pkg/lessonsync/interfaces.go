package lessonsync

import (
	"context"

	"github.com/lessonsync/lessonsync/pkg/lessonsync/model"
)

// Service is the embeddable entry point for the lesson sync core.
type Service interface {
	AddScore(title, filePath string) (*Score, error)
	ScoreByID(scoreID uint) (*Score, error)
	ListScores() ([]Score, error)
	SearchScores(query string) ([]Score, error)
	DeleteScores(scoreIDs []uint) error

	AddAnnotation(scoreID uint, measure int, directive string) error
	RemoveAnnotation(scoreID uint, measure int) error
	AnnotationsForScore(scoreID uint) ([]Annotation, error)

	// Analyzer returns the orchestrator for recorded-lesson analysis runs.
	Analyzer() *Analyzer
	// NewProjector starts a reactive projection of one score for rendering.
	NewProjector(scoreID uint) (*Projector, error)
	// LessonReview reconstructs the stored analysis outcome of a score.
	LessonReview(scoreID uint) (*model.LessonData, error)

	Close() error
}

// Storage is the durable store for scores and everything they own. All
// persisted mutation in the system goes through this contract.
type Storage interface {
	CreateScore(title, filePath string) (*Score, error)
	ScoreByID(scoreID uint) (*Score, error)
	ListScores() ([]Score, error)
	SearchScores(query string) ([]Score, error)
	DeleteScoresByIDs(scoreIDs []uint) error
	SetRecordedFilePath(scoreID uint, path string) error

	InsertAnnotation(scoreID uint, measure int, directive string) error
	InsertAnnotations(scoreID uint, directives []model.Directive) error
	DeleteAnnotationsForScore(scoreID uint) error
	DeleteAnnotation(scoreID uint, measure int) error
	AnnotationsForScore(scoreID uint) ([]Annotation, error)
	// ObserveAnnotations delivers the current annotation set of the score
	// immediately and after every mutation affecting it, until the cancel
	// func is called.
	ObserveAnnotations(scoreID uint) (<-chan []Annotation, func(), error)

	ReplaceLessonResult(scoreID uint, summary, transcript string) error
	// LessonResultForScore returns nil when no result exists.
	LessonResultForScore(scoreID uint) (*LessonResult, error)
	// ReplaceAnalysis atomically replaces the lesson result and the whole
	// annotation set of a score with one analysis run's output.
	ReplaceAnalysis(scoreID uint, summary, transcript string, directives []model.Directive) error

	Close() error
}

// Analysis is the remote boundary: audio to summary/segments, transcript to
// measure directives.
type Analysis interface {
	ProcessLesson(ctx context.Context, audioPath string) (*model.LessonData, error)
	ParseDirectives(ctx context.Context, fullTranscript string) ([]model.Directive, error)
}

// Renderer consumes projection snapshots and redraws overlays without
// reloading the underlying score document.
type Renderer interface {
	Render(snapshot model.Snapshot) ([]byte, error)
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}
