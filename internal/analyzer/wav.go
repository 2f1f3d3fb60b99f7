package analyzer

import (
	"context"
	"errors"
	"math"
	"os"
	"time"

	"github.com/go-audio/wav"
)

// window is the RMS analysis window.
const window = 10 * time.Millisecond

// WAV analyzes PCM WAV files in process. Silence is a run of windows whose
// RMS level is below ThresholdDBFS lasting at least MinSilence.
type WAV struct {
	MinSilence    time.Duration
	ThresholdDBFS float64
}

func (a *WAV) Analyze(ctx context.Context, path string) (Result, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Result{}, &AnalysisError{Reason: ReasonUnreadable, Err: err}
	}
	if fi.Size() == 0 {
		return Result{}, &AnalysisError{Reason: ReasonEmptyFile, Err: errors.New("file has no bytes")}
	}

	f, err := os.Open(path)
	if err != nil {
		return Result{}, &AnalysisError{Reason: ReasonUnreadable, Err: err}
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		// Valid header with no samples counts as empty.
		if d.Err() == nil && d.NumChans > 0 && d.BitDepth >= 8 {
			return Result{}, &AnalysisError{Reason: ReasonEmptyFile, Err: errors.New("wav has no samples")}
		}
		return Result{}, &AnalysisError{Reason: ReasonUnreadable, Err: errors.New("not a PCM wav file")}
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return Result{}, &AnalysisError{Reason: ReasonUnreadable, Err: err}
	}

	chans := int(d.NumChans)
	rate := int(d.SampleRate)
	frames := len(buf.Data) / chans
	if frames == 0 || rate == 0 {
		return Result{}, &AnalysisError{Reason: ReasonEmptyFile, Err: errors.New("wav has no samples")}
	}
	duration := float64(frames) / float64(rate)

	silences, err := a.detect(ctx, buf.Data, chans, rate, int(d.BitDepth))
	if err != nil {
		return Result{}, err
	}
	return Result{
		Duration:      duration,
		Transcription: Transcribe(duration),
		Silences:      NormalizeIntervals(silences, duration),
	}, nil
}

func (a *WAV) detect(ctx context.Context, samples []int, chans, rate, bitDepth int) ([]Interval, error) {
	fullScale := math.Pow(2, float64(bitDepth-1))
	frames := len(samples) / chans
	step := int(int64(rate) * int64(window) / int64(time.Second))
	if step < 1 {
		step = 1
	}
	minFrames := int(int64(rate) * int64(a.MinSilence) / int64(time.Second))

	var (
		out      []Interval
		runStart = -1
	)
	closeRun := func(end int) {
		if runStart >= 0 && end-runStart >= minFrames {
			out = append(out, Interval{
				Start: round3(float64(runStart) / float64(rate)),
				End:   round3(float64(end) / float64(rate)),
			})
		}
		runStart = -1
	}

	for start := 0; start < frames; start += step {
		if start%(step*1000) == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		end := start + step
		if end > frames {
			end = frames
		}
		if dbfs(samples[start*chans:end*chans], fullScale) < a.ThresholdDBFS {
			if runStart < 0 {
				runStart = start
			}
			continue
		}
		closeRun(start)
	}
	closeRun(frames)
	return out, nil
}

// dbfs returns the RMS level of samples relative to full scale.
func dbfs(samples []int, fullScale float64) float64 {
	if len(samples) == 0 {
		return math.Inf(-1)
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms == 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(rms/fullScale)
}
