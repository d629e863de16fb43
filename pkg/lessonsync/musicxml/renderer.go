package musicxml

import (
	"fmt"
	"os"

	"github.com/lessonsync/lessonsync/pkg/lessonsync/model"
)

const (
	baseFontSize   = 10
	highlightColor = "#1B6EC2"
)

// OverlayRenderer materializes a projection snapshot as an annotated
// MusicXML document. The source document is re-read per render but never
// written back; rendering is a pure projection of the snapshot.
type OverlayRenderer struct{}

func NewOverlayRenderer() *OverlayRenderer {
	return &OverlayRenderer{}
}

// Render reads the snapshot's score document and returns it with overlay
// elements injected. Directive text scales with the zoom factor; a
// highlighted measure gets a marker regardless of annotation presence or
// visibility.
func (r *OverlayRenderer) Render(snapshot model.Snapshot) ([]byte, error) {
	src, err := os.ReadFile(snapshot.FilePath)
	if err != nil {
		return nil, fmt.Errorf("reading score document: %w", err)
	}
	return r.RenderBytes(src, snapshot)
}

// RenderBytes is Render over an in-memory document.
func (r *OverlayRenderer) RenderBytes(src []byte, snapshot model.Snapshot) ([]byte, error) {
	zoom := snapshot.Zoom
	if zoom <= 0 {
		zoom = 1
	}

	var words []Words
	if snapshot.ShowAnnotations {
		for _, ann := range snapshot.Annotations {
			words = append(words, Words{
				Measure:  ann.Measure,
				Text:     ann.Directive,
				FontSize: baseFontSize * zoom,
			})
		}
	}
	if snapshot.HighlightedMeasure > 0 {
		words = append(words, Words{
			Measure:  snapshot.HighlightedMeasure,
			Text:     "▶", // play-position marker
			Color:    highlightColor,
			FontSize: baseFontSize * zoom,
		})
	}

	if len(words) == 0 {
		return src, nil
	}
	return InjectWords(src, words)
}
