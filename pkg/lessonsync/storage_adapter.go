package lessonsync

import (
	"github.com/lessonsync/lessonsync/pkg/lessonsync/model"
	"github.com/lessonsync/lessonsync/pkg/lessonsync/storage"
)

// storageAdapter adapts the storage.Client to the Storage interface.
type storageAdapter struct {
	db *storage.Client
}

// NewSQLiteStorage opens (creating if needed) the sqlite database at dbPath.
// An empty path falls back to LESSONSYNC_DB_PATH or the default file.
func NewSQLiteStorage(dbPath string) (Storage, error) {
	var db *storage.Client
	var err error
	if dbPath == "" {
		db, err = storage.NewClient()
	} else {
		db, err = storage.NewClientWithPath(dbPath)
	}
	if err != nil {
		return nil, err
	}
	return &storageAdapter{db: db}, nil
}

func (s *storageAdapter) CreateScore(title, filePath string) (*Score, error) {
	score, err := s.db.CreateScore(title, filePath)
	if err != nil {
		return nil, err
	}
	return toScore(score), nil
}

func (s *storageAdapter) ScoreByID(scoreID uint) (*Score, error) {
	score, err := s.db.ScoreByID(scoreID)
	if err != nil {
		return nil, err
	}
	return toScore(score), nil
}

func (s *storageAdapter) ListScores() ([]Score, error) {
	return toScores(s.db.ListScores())
}

func (s *storageAdapter) SearchScores(query string) ([]Score, error) {
	return toScores(s.db.SearchScores(query))
}

func (s *storageAdapter) DeleteScoresByIDs(scoreIDs []uint) error {
	return s.db.DeleteScoresByIDs(scoreIDs)
}

func (s *storageAdapter) SetRecordedFilePath(scoreID uint, path string) error {
	return s.db.SetRecordedFilePath(scoreID, path)
}

func (s *storageAdapter) InsertAnnotation(scoreID uint, measure int, directive string) error {
	return s.db.InsertAnnotation(scoreID, measure, directive)
}

func (s *storageAdapter) InsertAnnotations(scoreID uint, directives []model.Directive) error {
	return s.db.InsertAnnotations(scoreID, directives)
}

func (s *storageAdapter) DeleteAnnotationsForScore(scoreID uint) error {
	return s.db.DeleteAnnotationsForScore(scoreID)
}

func (s *storageAdapter) DeleteAnnotation(scoreID uint, measure int) error {
	return s.db.DeleteAnnotation(scoreID, measure)
}

func (s *storageAdapter) AnnotationsForScore(scoreID uint) ([]Annotation, error) {
	anns, err := s.db.AnnotationsForScore(scoreID)
	if err != nil {
		return nil, err
	}
	return toAnnotations(anns), nil
}

func (s *storageAdapter) ObserveAnnotations(scoreID uint) (<-chan []Annotation, func(), error) {
	src, cancel, err := s.db.ObserveAnnotations(scoreID)
	if err != nil {
		return nil, nil, err
	}
	out := make(chan []Annotation, 1)
	go func() {
		defer close(out)
		for anns := range src {
			converted := toAnnotations(anns)
			// Conflate like the source channel: keep only the latest set.
			select {
			case out <- converted:
			default:
				select {
				case <-out:
				default:
				}
				out <- converted
			}
		}
	}()
	return out, cancel, nil
}

func (s *storageAdapter) ReplaceLessonResult(scoreID uint, summary, transcript string) error {
	return s.db.ReplaceLessonResult(scoreID, summary, transcript)
}

func (s *storageAdapter) LessonResultForScore(scoreID uint) (*LessonResult, error) {
	result, err := s.db.LessonResultForScore(scoreID)
	if err != nil || result == nil {
		return nil, err
	}
	return &LessonResult{
		ID:             result.ID,
		ScoreID:        result.ScoreOwnerID,
		Summary:        result.Summary,
		FullTranscript: result.FullTranscript,
		CreatedAt:      result.CreatedAt,
	}, nil
}

func (s *storageAdapter) ReplaceAnalysis(scoreID uint, summary, transcript string, directives []model.Directive) error {
	return s.db.ReplaceAnalysis(scoreID, summary, transcript, directives)
}

func (s *storageAdapter) Close() error {
	return s.db.Close()
}

func toScore(score *storage.Score) *Score {
	return &Score{
		ID:               score.ID,
		Title:            score.Title,
		FilePath:         score.FilePath,
		RecordedFilePath: score.RecordedFilePath,
		CreatedAt:        score.CreatedAt,
	}
}

func toScores(scores []storage.Score, err error) ([]Score, error) {
	if err != nil {
		return nil, err
	}
	out := make([]Score, len(scores))
	for i, score := range scores {
		out[i] = *toScore(&score)
	}
	return out, nil
}

func toAnnotations(anns []storage.Annotation) []Annotation {
	out := make([]Annotation, len(anns))
	for i, ann := range anns {
		out[i] = Annotation{
			ID:            ann.ID,
			ScoreID:       ann.ScoreOwnerID,
			MeasureNumber: ann.MeasureNumber,
			Directive:     ann.Directive,
		}
	}
	return out
}

// Verify that storageAdapter implements Storage.
var _ Storage = (*storageAdapter)(nil)
