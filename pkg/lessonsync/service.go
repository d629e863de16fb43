// Package lessonsync is the client core for recorded music lessons: it
// persists scores, measure directives and analysis results, orchestrates
// remote lesson analysis, and projects annotations onto rendered scores.
package lessonsync

import (
	"fmt"
	"os"
	"strings"

	"github.com/lessonsync/lessonsync/pkg/lessonsync/model"
	"github.com/lessonsync/lessonsync/pkg/lessonsync/remote"
	"github.com/lessonsync/lessonsync/pkg/logger"
)

// ErrNoAnalysis is returned by LessonReview for a score that has never
// completed an analysis run.
var ErrNoAnalysis = fmt.Errorf("no analysis result for score")

// lessonService is the default implementation of the Service interface.
type lessonService struct {
	storage  Storage
	analysis Analysis
	analyzer *Analyzer
	log      Logger
}

func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}

	stor := cfg.Storage
	if stor == nil {
		var err error
		stor, err = NewSQLiteStorage(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage: %w", err)
		}
	}

	analysis := cfg.Analysis
	if analysis == nil {
		baseURL := cfg.BaseURL
		if env := os.Getenv("LESSONSYNC_BASE_URL"); env != "" && baseURL == DefaultBaseURL {
			baseURL = env
		}
		analysis = remote.NewClient(baseURL, cfg.HTTPClient)
	}

	return &lessonService{
		storage:  stor,
		analysis: analysis,
		analyzer: NewAnalyzer(stor, analysis, cfg.Logger),
		log:      cfg.Logger,
	}, nil
}

func (s *lessonService) AddScore(title, filePath string) (*Score, error) {
	score, err := s.storage.CreateScore(title, filePath)
	if err != nil {
		return nil, err
	}
	s.log.Infof("registered score %d: %s", score.ID, score.Title)
	return score, nil
}

func (s *lessonService) ScoreByID(scoreID uint) (*Score, error) {
	return s.storage.ScoreByID(scoreID)
}

func (s *lessonService) ListScores() ([]Score, error) {
	return s.storage.ListScores()
}

func (s *lessonService) SearchScores(query string) ([]Score, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	return s.storage.SearchScores(query)
}

func (s *lessonService) DeleteScores(scoreIDs []uint) error {
	return s.storage.DeleteScoresByIDs(scoreIDs)
}

// AddAnnotation records one manually entered directive. Blank directives
// are dropped, matching how translated batches are filtered.
func (s *lessonService) AddAnnotation(scoreID uint, measure int, directive string) error {
	if measure < 1 {
		return fmt.Errorf("measure number must be positive, got %d", measure)
	}
	if strings.TrimSpace(directive) == "" {
		return nil
	}
	return s.storage.InsertAnnotation(scoreID, measure, directive)
}

func (s *lessonService) RemoveAnnotation(scoreID uint, measure int) error {
	return s.storage.DeleteAnnotation(scoreID, measure)
}

func (s *lessonService) AnnotationsForScore(scoreID uint) ([]Annotation, error) {
	return s.storage.AnnotationsForScore(scoreID)
}

func (s *lessonService) Analyzer() *Analyzer {
	return s.analyzer
}

func (s *lessonService) NewProjector(scoreID uint) (*Projector, error) {
	return newProjector(s.storage, s.log, scoreID)
}

// LessonReview reconstructs the stored analysis outcome of a score. The
// stored transcript has no timing, so it comes back as one zero-timed
// segment.
func (s *lessonService) LessonReview(scoreID uint) (*model.LessonData, error) {
	result, err := s.storage.LessonResultForScore(scoreID)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, ErrNoAnalysis
	}

	data := &model.LessonData{Summary: result.Summary}
	if strings.TrimSpace(result.FullTranscript) != "" {
		data.SpeechSegments = []model.Segment{{Text: result.FullTranscript}}
	}
	return data, nil
}

func (s *lessonService) Close() error {
	return s.storage.Close()
}

// Verify that lessonService implements Service.
var _ Service = (*lessonService)(nil)
