// Package musicxml rewrites MusicXML documents to carry lesson directives
// as <direction> elements attached to their measures.
package musicxml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
)

// DefaultColor is the emphasis color used for injected directive text.
const DefaultColor = "#D83F31"

// Words is one text element to place at a measure.
type Words struct {
	Measure  int
	Text     string
	Color    string // defaults to DefaultColor
	FontSize float64
}

// InjectWords copies the document, inserting each Words entry as the first
// child of the first measure carrying its number. Measure numbers that do
// not occur in the document are skipped silently. The input is never
// modified.
func InjectWords(src []byte, words []Words) ([]byte, error) {
	byMeasure := make(map[string][]Words)
	for _, w := range words {
		key := strconv.Itoa(w.Measure)
		byMeasure[key] = append(byMeasure[key], w)
	}

	decoder := xml.NewDecoder(bytes.NewReader(src))
	var out bytes.Buffer
	encoder := xml.NewEncoder(&out)

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing musicxml: %w", err)
		}

		tok = xml.CopyToken(tok)
		if err := encoder.EncodeToken(tok); err != nil {
			return nil, fmt.Errorf("writing musicxml: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "measure" {
			continue
		}
		number := attrValue(start, "number")
		pending, ok := byMeasure[number]
		if !ok {
			continue
		}
		// Only the first measure with this number receives the text,
		// mirroring single-part editing.
		delete(byMeasure, number)
		for _, w := range pending {
			if err := encodeDirection(encoder, w); err != nil {
				return nil, err
			}
		}
	}

	if err := encoder.Flush(); err != nil {
		return nil, fmt.Errorf("flushing musicxml: %w", err)
	}
	return out.Bytes(), nil
}

func attrValue(el xml.StartElement, name string) string {
	for _, attr := range el.Attr {
		if attr.Name.Local == name {
			return attr.Value
		}
	}
	return ""
}

// encodeDirection emits:
//
//	<direction placement="above">
//	  <direction-type>
//	    <words font-weight="bold" font-size="10" color="#D83F31">text</words>
//	  </direction-type>
//	</direction>
func encodeDirection(enc *xml.Encoder, w Words) error {
	color := w.Color
	if color == "" {
		color = DefaultColor
	}
	fontSize := w.FontSize
	if fontSize <= 0 {
		fontSize = 10
	}

	direction := xml.StartElement{
		Name: xml.Name{Local: "direction"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "placement"}, Value: "above"}},
	}
	directionType := xml.StartElement{Name: xml.Name{Local: "direction-type"}}
	wordsEl := xml.StartElement{
		Name: xml.Name{Local: "words"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "font-weight"}, Value: "bold"},
			{Name: xml.Name{Local: "font-size"}, Value: strconv.FormatFloat(fontSize, 'g', -1, 64)},
			{Name: xml.Name{Local: "color"}, Value: color},
		},
	}

	tokens := []xml.Token{
		direction,
		directionType,
		wordsEl,
		xml.CharData(w.Text),
		wordsEl.End(),
		directionType.End(),
		direction.End(),
	}
	for _, tok := range tokens {
		if err := enc.EncodeToken(tok); err != nil {
			return fmt.Errorf("writing direction element: %w", err)
		}
	}
	return nil
}
