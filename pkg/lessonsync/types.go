package lessonsync

import "time"

// Score is a registered musical score document.
type Score struct {
	ID               uint
	Title            string
	FilePath         string // path to the MusicXML document
	RecordedFilePath string // last recorded lesson audio, empty if none
	CreatedAt        time.Time
}

// Annotation is one measure-addressed directive owned by a score.
type Annotation struct {
	ID            uint
	ScoreID       uint
	MeasureNumber int
	Directive     string
}

// LessonResult is the stored outcome of the latest completed analysis run
// for one score.
type LessonResult struct {
	ID             uint
	ScoreID        uint
	Summary        string
	FullTranscript string
	CreatedAt      time.Time
}
