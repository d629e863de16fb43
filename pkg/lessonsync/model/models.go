package model

import "strings"

// Segment is one timed slice of recognized speech returned by the backend.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// LessonData is the outcome of the summarize+transcribe stage.
// Both fields may be absent when the backend found nothing to work with.
type LessonData struct {
	SpeechSegments []Segment `json:"speech_segments"`
	Summary        string    `json:"summary"`
}

// FullTranscript joins the segment texts, space separated, in order.
func (d LessonData) FullTranscript() string {
	if len(d.SpeechSegments) == 0 {
		return ""
	}
	texts := make([]string, len(d.SpeechSegments))
	for i, seg := range d.SpeechSegments {
		texts[i] = seg.Text
	}
	return strings.Join(texts, " ")
}

// Directive is one measure-addressed instruction extracted from a transcript.
type Directive struct {
	Measure   int    `json:"measure"`
	Directive string `json:"directive"`
}

// Snapshot is the derived, immutable view of one score that the overlay
// renderer consumes. Annotations are a read-only copy; mutating the stores
// never changes an already published snapshot.
type Snapshot struct {
	ScoreID            uint
	Title              string
	FilePath           string
	Annotations        []Directive
	Zoom               float64
	ShowAnnotations    bool
	HighlightedMeasure int // 0 means no highlight
}
