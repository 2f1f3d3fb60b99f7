// Package analyzer turns a local audio file into call metadata: its
// duration, a placeholder transcription and the silence intervals.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/tbourn/go-callrec-backend/internal/config"
)

// Failure reasons carried by AnalysisError.
const (
	ReasonEmptyFile  = "empty_file"
	ReasonUnreadable = "unreadable"
	ReasonToolFailed = "tool_failed"
)

// Interval is a silence span in seconds from the start of the audio.
type Interval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Result is the output of a successful analysis.
type Result struct {
	Duration      float64
	Transcription string
	Silences      []Interval
}

// Analyzer extracts a Result from the audio file at path.
type Analyzer interface {
	Analyze(ctx context.Context, path string) (Result, error)
}

// AnalysisError reports why a file could not be analyzed.
type AnalysisError struct {
	Reason string
	Err    error
}

func (e *AnalysisError) Error() string {
	if e.Err == nil {
		return "analysis failed: " + e.Reason
	}
	return fmt.Sprintf("analysis failed (%s): %v", e.Reason, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// IsEmptyFile reports whether err is an AnalysisError for an empty input.
func IsEmptyFile(err error) bool {
	var ae *AnalysisError
	return errors.As(err, &ae) && ae.Reason == ReasonEmptyFile
}

// New builds the analyzer selected by cfg.Backend.
func New(cfg config.AnalyzerConfig) (Analyzer, error) {
	switch cfg.Backend {
	case config.AnalyzerWAV, "":
		return &WAV{MinSilence: cfg.SilenceMinDuration, ThresholdDBFS: cfg.SilenceThreshold}, nil
	case config.AnalyzerFFmpeg:
		return &FFmpeg{
			FFprobeBin:    cfg.FFprobeBin,
			FFmpegBin:     cfg.FFmpegBin,
			MinSilence:    cfg.SilenceMinDuration,
			ThresholdDBFS: cfg.SilenceThreshold,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported analyzer backend %q", cfg.Backend)
	}
}

// Transcribe returns the placeholder transcription for an audio of the given
// duration: one "word-i" token per second, rounded half to even.
func Transcribe(duration float64) string {
	n := int(math.RoundToEven(duration))
	if n <= 0 {
		return ""
	}
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString("word-")
		b.WriteString(strconv.Itoa(i))
	}
	return b.String()
}

// NormalizeIntervals clips intervals to [0, duration], drops empty ones,
// sorts them by start and merges overlapping or touching spans.
func NormalizeIntervals(in []Interval, duration float64) []Interval {
	out := make([]Interval, 0, len(in))
	for _, iv := range in {
		s := math.Max(0, iv.Start)
		e := iv.End
		if duration > 0 {
			e = math.Min(duration, e)
		}
		if math.IsNaN(s) || math.IsNaN(e) || e <= s {
			continue
		}
		out = append(out, Interval{Start: s, End: e})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })

	merged := out[:0]
	for _, iv := range out {
		if n := len(merged); n > 0 && iv.Start <= merged[n-1].End {
			if iv.End > merged[n-1].End {
				merged[n-1].End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// round3 keeps millisecond precision, which is what detectors report.
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
