package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/wav"
)

// Metadata describes a recorded lesson file.
type Metadata struct {
	Filename   string
	SizeBytes  int64
	Duration   time.Duration
	SampleRate int
	Channels   int
	BitDepth   int
}

var ErrNotWAV = errors.New("not a valid WAV file")

// Probe validates a recorded lesson WAV and reads its header metadata.
// The file is not decoded beyond the header; uploads stream the raw bytes.
func Probe(path string) (*Metadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrNotWAV)
	}

	duration, err := decoder.Duration()
	if err != nil {
		return nil, fmt.Errorf("reading duration of %s: %w", filepath.Base(path), err)
	}

	return &Metadata{
		Filename:   filepath.Base(path),
		SizeBytes:  info.Size(),
		Duration:   duration,
		SampleRate: int(decoder.SampleRate),
		Channels:   int(decoder.NumChans),
		BitDepth:   int(decoder.BitDepth),
	}, nil
}
