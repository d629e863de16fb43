package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/lessonsync/lessonsync/pkg/lessonsync/model"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const DefaultDBFile = "lessonsync.sqlite3"

// ErrNotFound is returned when a requested score does not exist.
var ErrNotFound = errors.New("record not found")

type Client struct {
	DB  *gorm.DB
	db  *sql.DB
	hub *hub
}

// Score is a registered musical score document.
type Score struct {
	ID               uint   `gorm:"primaryKey;autoIncrement"`
	Title            string `gorm:"index:idx_score_title"`
	FilePath         string
	RecordedFilePath string
	CreatedAt        time.Time
	Annotations      []Annotation   `gorm:"foreignKey:ScoreOwnerID;constraint:OnDelete:CASCADE"`
	LessonResults    []LessonResult `gorm:"foreignKey:ScoreOwnerID;constraint:OnDelete:CASCADE"`
}

// Annotation is one measure-addressed directive owned by a score.
// (score, measure) pairs are deliberately not unique: re-analysis appends
// unless the caller replaces the whole set first.
type Annotation struct {
	ID            uint `gorm:"primaryKey;autoIncrement"`
	ScoreOwnerID  uint `gorm:"index:idx_annotation_score"`
	MeasureNumber int
	Directive     string
}

// LessonResult is the stored outcome of one completed analysis run.
// At most one active result per score, maintained by replace semantics
// rather than a uniqueness constraint.
type LessonResult struct {
	ID             uint `gorm:"primaryKey;autoIncrement"`
	ScoreOwnerID   uint `gorm:"index:idx_result_score"`
	Summary        string
	FullTranscript string
	CreatedAt      time.Time
}

func NewClient() (*Client, error) {
	dbPath := os.Getenv("LESSONSYNC_DB_PATH")
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	return NewClientWithPath(dbPath)
}

func NewClientWithPath(dbPath string) (*Client, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil && !os.IsExist(err) {
		if filepath.Dir(dbPath) != "." {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_pragma=foreign_keys(1)"), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	// Single local client; one writer connection keeps sqlite happy.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Score{}, &Annotation{}, &LessonResult{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &Client{DB: db, db: sqlDB, hub: newHub()}, nil
}

func (c *Client) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	c.hub.closeAll()
	return c.db.Close()
}

// --- scores ---

func (c *Client) CreateScore(title, filePath string) (*Score, error) {
	score := Score{Title: title, FilePath: filePath}
	if err := c.DB.Create(&score).Error; err != nil {
		return nil, fmt.Errorf("creating score: %w", err)
	}
	return &score, nil
}

func (c *Client) ScoreByID(scoreID uint) (*Score, error) {
	var score Score
	err := c.DB.First(&score, scoreID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying score %d: %w", scoreID, err)
	}
	return &score, nil
}

func (c *Client) ListScores() ([]Score, error) {
	var scores []Score
	if err := c.DB.Order("created_at DESC").Find(&scores).Error; err != nil {
		return nil, fmt.Errorf("listing scores: %w", err)
	}
	return scores, nil
}

func (c *Client) SearchScores(query string) ([]Score, error) {
	var scores []Score
	err := c.DB.Where("title LIKE ?", "%"+query+"%").
		Order("created_at DESC").Find(&scores).Error
	if err != nil {
		return nil, fmt.Errorf("searching scores: %w", err)
	}
	return scores, nil
}

// DeleteScoresByIDs removes the scores and, via FK cascade, every annotation
// and lesson result they own.
func (c *Client) DeleteScoresByIDs(scoreIDs []uint) error {
	if len(scoreIDs) == 0 {
		return nil
	}
	if err := c.DB.Delete(&Score{}, scoreIDs).Error; err != nil {
		return fmt.Errorf("deleting scores: %w", err)
	}
	for _, id := range scoreIDs {
		c.hub.publish(id, nil)
	}
	return nil
}

func (c *Client) SetRecordedFilePath(scoreID uint, path string) error {
	res := c.DB.Model(&Score{}).Where("id = ?", scoreID).
		Update("recorded_file_path", path)
	if res.Error != nil {
		return fmt.Errorf("updating recorded file path: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- annotations ---

func (c *Client) InsertAnnotation(scoreID uint, measure int, directive string) error {
	ann := Annotation{ScoreOwnerID: scoreID, MeasureNumber: measure, Directive: directive}
	if err := c.DB.Create(&ann).Error; err != nil {
		return fmt.Errorf("inserting annotation: %w", err)
	}
	c.notifyAnnotations(scoreID)
	return nil
}

func (c *Client) InsertAnnotations(scoreID uint, directives []model.Directive) error {
	if len(directives) == 0 {
		return nil
	}
	anns := make([]Annotation, len(directives))
	for i, d := range directives {
		anns[i] = Annotation{
			ScoreOwnerID:  scoreID,
			MeasureNumber: d.Measure,
			Directive:     d.Directive,
		}
	}
	if err := c.DB.Create(&anns).Error; err != nil {
		return fmt.Errorf("inserting annotation batch: %w", err)
	}
	c.notifyAnnotations(scoreID)
	return nil
}

// DeleteAnnotationsForScore removes every annotation owned by the score.
// A score with no annotations is a no-op, not an error.
func (c *Client) DeleteAnnotationsForScore(scoreID uint) error {
	err := c.DB.Where("score_owner_id = ?", scoreID).Delete(&Annotation{}).Error
	if err != nil {
		return fmt.Errorf("deleting annotations for score %d: %w", scoreID, err)
	}
	c.notifyAnnotations(scoreID)
	return nil
}

// DeleteAnnotation removes every annotation at the exact (score, measure)
// coordinate. The UI addresses annotations by measure, so duplicates at the
// same measure go together.
func (c *Client) DeleteAnnotation(scoreID uint, measure int) error {
	err := c.DB.Where("score_owner_id = ? AND measure_number = ?", scoreID, measure).
		Delete(&Annotation{}).Error
	if err != nil {
		return fmt.Errorf("deleting annotation at measure %d: %w", measure, err)
	}
	c.notifyAnnotations(scoreID)
	return nil
}

func (c *Client) AnnotationsForScore(scoreID uint) ([]Annotation, error) {
	var anns []Annotation
	err := c.DB.Where("score_owner_id = ?", scoreID).Order("id").Find(&anns).Error
	if err != nil {
		return nil, fmt.Errorf("querying annotations for score %d: %w", scoreID, err)
	}
	return anns, nil
}

// ObserveAnnotations starts a live subscription to the annotation set of one
// score. The current set is delivered immediately, then again after every
// mutation touching that score, until cancel is called. Slow consumers only
// ever see the latest set; intermediate states may be conflated.
func (c *Client) ObserveAnnotations(scoreID uint) (<-chan []Annotation, func(), error) {
	anns, err := c.AnnotationsForScore(scoreID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := c.hub.subscribe(scoreID)
	c.hub.deliver(ch, anns)
	return ch, cancel, nil
}

func (c *Client) notifyAnnotations(scoreID uint) {
	anns, err := c.AnnotationsForScore(scoreID)
	if err != nil {
		return
	}
	c.hub.publish(scoreID, anns)
}

// --- lesson results ---

// ReplaceLessonResult deletes any prior result for the score and inserts a
// fresh one inside a single transaction, so a crash can never leave both.
func (c *Client) ReplaceLessonResult(scoreID uint, summary, transcript string) error {
	err := c.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("score_owner_id = ?", scoreID).Delete(&LessonResult{}).Error; err != nil {
			return err
		}
		result := LessonResult{
			ScoreOwnerID:   scoreID,
			Summary:        summary,
			FullTranscript: transcript,
		}
		return tx.Create(&result).Error
	})
	if err != nil {
		return fmt.Errorf("replacing lesson result for score %d: %w", scoreID, err)
	}
	return nil
}

// LessonResultForScore returns the current result, or nil when none exists.
func (c *Client) LessonResultForScore(scoreID uint) (*LessonResult, error) {
	var result LessonResult
	err := c.DB.Where("score_owner_id = ?", scoreID).First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying lesson result for score %d: %w", scoreID, err)
	}
	return &result, nil
}

// ReplaceAnalysis commits a completed analysis run: the prior lesson result
// and the prior annotation set are both replaced in one transaction, then
// observers of the score see exactly the new annotation set.
func (c *Client) ReplaceAnalysis(scoreID uint, summary, transcript string, directives []model.Directive) error {
	err := c.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("score_owner_id = ?", scoreID).Delete(&LessonResult{}).Error; err != nil {
			return err
		}
		if err := tx.Where("score_owner_id = ?", scoreID).Delete(&Annotation{}).Error; err != nil {
			return err
		}
		result := LessonResult{
			ScoreOwnerID:   scoreID,
			Summary:        summary,
			FullTranscript: transcript,
		}
		if err := tx.Create(&result).Error; err != nil {
			return err
		}
		if len(directives) == 0 {
			return nil
		}
		anns := make([]Annotation, len(directives))
		for i, d := range directives {
			anns[i] = Annotation{
				ScoreOwnerID:  scoreID,
				MeasureNumber: d.Measure,
				Directive:     d.Directive,
			}
		}
		return tx.Create(&anns).Error
	})
	if err != nil {
		return fmt.Errorf("committing analysis for score %d: %w", scoreID, err)
	}
	c.notifyAnnotations(scoreID)
	return nil
}
