package analyzer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// FFmpeg analyzes any container ffmpeg can decode. Duration comes from
// ffprobe and silences from the silencedetect filter.
type FFmpeg struct {
	FFprobeBin    string
	FFmpegBin     string
	MinSilence    time.Duration
	ThresholdDBFS float64
}

func (a *FFmpeg) Analyze(ctx context.Context, path string) (Result, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Result{}, &AnalysisError{Reason: ReasonUnreadable, Err: err}
	}
	if fi.Size() == 0 {
		return Result{}, &AnalysisError{Reason: ReasonEmptyFile, Err: errors.New("file has no bytes")}
	}

	duration, err := a.probeDuration(ctx, path)
	if err != nil {
		return Result{}, err
	}
	if duration <= 0 {
		return Result{}, &AnalysisError{Reason: ReasonEmptyFile, Err: errors.New("no decodable audio")}
	}

	silences, err := a.detectSilence(ctx, path, duration)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Duration:      duration,
		Transcription: Transcribe(duration),
		Silences:      NormalizeIntervals(silences, duration),
	}, nil
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (a *FFmpeg) probeDuration(ctx context.Context, path string) (float64, error) {
	bin := strings.TrimSpace(a.FFprobeBin)
	if bin == "" {
		bin = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, bin, "-v", "error", "-hide_banner", "-show_format", "-of", "json", "--", path)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, &AnalysisError{Reason: ReasonUnreadable, Err: fmt.Errorf("ffprobe: %w: %s", err, strings.TrimSpace(stderr.String()))}
	}
	var probe probeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return 0, &AnalysisError{Reason: ReasonToolFailed, Err: fmt.Errorf("ffprobe parse: %w", err)}
	}
	return parseSeconds(probe.Format.Duration), nil
}

func (a *FFmpeg) detectSilence(ctx context.Context, path string, duration float64) ([]Interval, error) {
	bin := strings.TrimSpace(a.FFmpegBin)
	if bin == "" {
		bin = "ffmpeg"
	}
	filter := fmt.Sprintf("silencedetect=noise=%gdB:d=%g", a.ThresholdDBFS, a.MinSilence.Seconds())
	cmd := exec.CommandContext(ctx, bin, "-hide_banner", "-nostats", "-i", path, "-af", filter, "-f", "null", "-")
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &AnalysisError{Reason: ReasonToolFailed, Err: fmt.Errorf("ffmpeg silencedetect: %w", err)}
	}
	return parseSilenceDetect(out, duration), nil
}

// parseSilenceDetect extracts intervals from silencedetect log lines. An
// open silence at end of stream is closed at duration.
func parseSilenceDetect(log []byte, duration float64) []Interval {
	var (
		out   []Interval
		start = math.NaN()
	)
	sc := bufio.NewScanner(bytes.NewReader(log))
	for sc.Scan() {
		line := sc.Text()
		if v, ok := fieldAfter(line, "silence_start:"); ok {
			start = v
			continue
		}
		if v, ok := fieldAfter(line, "silence_end:"); ok && !math.IsNaN(start) {
			out = append(out, Interval{Start: start, End: v})
			start = math.NaN()
		}
	}
	if !math.IsNaN(start) && duration > start {
		out = append(out, Interval{Start: start, End: duration})
	}
	return out
}

func fieldAfter(line, marker string) (float64, bool) {
	i := strings.Index(line, marker)
	if i < 0 {
		return 0, false
	}
	rest := strings.Fields(line[i+len(marker):])
	if len(rest) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(rest[0], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseSeconds(value string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}
