package audio

import (
	"errors"
	"fmt"
	"math"
)

// EditType names an edit operation.
type EditType string

// Supported edit operations.
const (
	EditVolume EditType = "volume"
	EditFade   EditType = "fade"
	EditTrim   EditType = "trim"
	EditMute   EditType = "mute"
)

// Parameter keys read from Edit.Parameters.
const (
	ParamGain    = "gain"
	ParamFadeIn  = "fade_in"
	ParamFadeOut = "fade_out"
	ParamStart   = "start"
	ParamEnd     = "end"
)

// MaxGain is the largest linear volume multiplier accepted.
const MaxGain = 10.0

// Static errors.
var (
	ErrInvalidEdit     = errors.New("invalid edit")
	ErrUnknownEditType = errors.New("unknown edit type")
)

const (
	errFmtGainRange         = "%w: gain must be between 0.0 and %.1f"
	errFmtNonNegative       = "%w: %s must be non-negative"
	errFmtTrimRange         = "%w: trim end must be after start"
	errFmtSegmentRange      = "%w: segment %d must have 0 <= start < end"
	errFmtMuteNeedsSegments = "%w: mute requires at least one segment"
)

// Segment is a time range in seconds. Type is a free-form client label.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Type  string  `json:"type,omitempty"`
}

// Edit describes one edit applied to a WAV file.
type Edit struct {
	Type       EditType           `json:"edit_type"`
	Parameters map[string]float64 `json:"parameters"`
	Segments   []Segment          `json:"segments,omitempty"`
}

// Validate checks the edit type and its parameters.
func (e Edit) Validate() error {
	err := e.validateSegments()
	if err != nil {
		return err
	}

	switch e.Type {
	case EditVolume:
		gain := e.param(ParamGain, 1.0)
		if gain < 0 || gain > MaxGain {
			return fmt.Errorf(errFmtGainRange, ErrInvalidEdit, MaxGain)
		}
	case EditFade:
		for _, key := range []string{ParamFadeIn, ParamFadeOut} {
			if e.param(key, 0) < 0 {
				return fmt.Errorf(errFmtNonNegative, ErrInvalidEdit, key)
			}
		}
	case EditTrim:
		start, end := e.param(ParamStart, 0), e.param(ParamEnd, 0)
		if start < 0 || end < 0 {
			return fmt.Errorf(errFmtNonNegative, ErrInvalidEdit, "trim bounds")
		}

		if end != 0 && end <= start {
			return fmt.Errorf(errFmtTrimRange, ErrInvalidEdit)
		}
	case EditMute:
		if len(e.Segments) == 0 {
			return fmt.Errorf(errFmtMuteNeedsSegments, ErrInvalidEdit)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEditType, e.Type)
	}

	return nil
}

// Apply decodes wav, applies the edit and returns the re-encoded file.
func (e Edit) Apply(wav []byte) ([]byte, error) {
	err := e.Validate()
	if err != nil {
		return nil, err
	}

	pcm, err := DecodeWAV(wav)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio: %w", err)
	}

	switch e.Type {
	case EditVolume:
		e.applyVolume(pcm)
	case EditFade:
		applyFade(pcm, e.param(ParamFadeIn, 0), e.param(ParamFadeOut, 0))
	case EditTrim:
		applyTrim(pcm, e.param(ParamStart, 0), e.param(ParamEnd, 0))
	case EditMute:
		for _, segment := range e.Segments {
			scaleFrames(pcm, pcm.frameAt(segment.Start), pcm.frameAt(segment.End), 0)
		}
	}

	return pcm.Encode(), nil
}

func (e Edit) param(key string, fallback float64) float64 {
	value, ok := e.Parameters[key]
	if !ok {
		return fallback
	}

	return value
}

func (e Edit) validateSegments() error {
	for i, segment := range e.Segments {
		if segment.Start < 0 || segment.End <= segment.Start {
			return fmt.Errorf(errFmtSegmentRange, ErrInvalidEdit, i)
		}
	}

	return nil
}

// applyVolume scales the whole file, or only the given segments when present.
func (e Edit) applyVolume(pcm *PCM) {
	gain := e.param(ParamGain, 1.0)

	if len(e.Segments) == 0 {
		scaleFrames(pcm, 0, pcm.Frames(), gain)

		return
	}

	for _, segment := range e.Segments {
		scaleFrames(pcm, pcm.frameAt(segment.Start), pcm.frameAt(segment.End), gain)
	}
}

func applyFade(pcm *PCM, fadeIn, fadeOut float64) {
	frames := pcm.Frames()

	inFrames := pcm.frameAt(fadeIn)
	for frame := range inFrames {
		scaleFrames(pcm, frame, frame+1, float64(frame)/float64(inFrames))
	}

	outFrames := pcm.frameAt(fadeOut)
	for i := range outFrames {
		frame := frames - outFrames + i
		scaleFrames(pcm, frame, frame+1, float64(outFrames-i-1)/float64(outFrames))
	}
}

// applyTrim keeps [start, end); end of zero means the end of the file.
func applyTrim(pcm *PCM, start, end float64) {
	first := pcm.frameAt(start)

	last := pcm.Frames()
	if end > 0 {
		last = pcm.frameAt(end)
	}

	if last < first {
		last = first
	}

	pcm.Samples = append([]int16(nil), pcm.Samples[first*pcm.Channels:last*pcm.Channels]...)
}

// scaleFrames multiplies frames [from, to) by factor, saturating at the int16
// range.
func scaleFrames(pcm *PCM, from, to int, factor float64) {
	for i := from * pcm.Channels; i < to*pcm.Channels && i < len(pcm.Samples); i++ {
		scaled := math.Round(float64(pcm.Samples[i]) * factor)
		pcm.Samples[i] = int16(max(math.MinInt16, min(math.MaxInt16, scaled)))
	}
}
