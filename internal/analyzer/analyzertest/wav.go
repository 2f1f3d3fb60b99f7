// Package analyzertest builds synthetic audio fixtures for tests.
package analyzertest

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Fixture describes a mono 16-bit tone with silent gaps.
type Fixture struct {
	Seconds    float64
	SampleRate int
	Silences   [][2]float64 // [start, end) in seconds, zeroed samples
}

// DefaultRate keeps fixtures small and makes 10 ms windows land on whole
// sample counts.
const DefaultRate = 8000

// Write encodes f as a PCM WAV into w.
func Write(w io.WriteSeeker, f Fixture) error {
	rate := f.SampleRate
	if rate == 0 {
		rate = DefaultRate
	}
	n := int(math.Round(f.Seconds * float64(rate)))
	data := make([]int, n)
	for i := range data {
		data[i] = int(16384 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
	}
	for _, s := range f.Silences {
		from := int(math.Round(s[0] * float64(rate)))
		to := int(math.Round(s[1] * float64(rate)))
		for i := max(0, from); i < min(n, to); i++ {
			data[i] = 0
		}
	}

	enc := wav.NewEncoder(w, rate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	return enc.Close()
}

// WriteFile writes f to path.
func WriteFile(path string, f Fixture) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(out, f); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// Bytes returns f encoded as WAV bytes.
func Bytes(f Fixture) ([]byte, error) {
	tmp, err := os.CreateTemp("", "fixture-*.wav")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())
	if err := Write(tmp, f); err != nil {
		_ = tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}
	return os.ReadFile(tmp.Name())
}
