// Package audio decodes, edits and re-encodes 16-bit PCM WAV audio.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// WAV container constants.
const (
	riffHeaderSize  = 12
	chunkHeaderSize = 8
	fmtChunkMinSize = 16

	formatPCM        = 1
	formatExtensible = 0xFFFE
	bitDepth16       = 16
	bytesPerSample   = 2
)

// Quality limits.
const (
	MaxSampleRate = 192000
	MaxChannels   = 8
)

// Static errors.
var (
	ErrNotWAV             = errors.New("not a RIFF/WAVE container")
	ErrMissingFmtChunk    = errors.New("missing fmt chunk")
	ErrMissingDataChunk   = errors.New("missing data chunk")
	ErrUnsupportedFormat  = errors.New("unsupported WAV format")
	ErrInvalidQuality     = errors.New("invalid quality settings")
	ErrTruncatedWAVHeader = errors.New("truncated WAV chunk header")
)

const (
	errFmtSampleRateRange = "%w: sample rate must be between 1 and %d Hz"
	errFmtChannelsRange   = "%w: channels must be between 1 and %d"
	errFmtBitDepth        = "%w: only %d-bit PCM is supported, got format %d with %d bits"
)

// PCM holds interleaved 16-bit samples.
type PCM struct {
	SampleRate int
	Channels   int
	Samples    []int16
}

// IsWAV reports whether data starts with a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= riffHeaderSize &&
		bytes.Equal(data[0:4], []byte("RIFF")) &&
		bytes.Equal(data[8:12], []byte("WAVE"))
}

// DecodeWAV parses a 16-bit PCM WAV file. Unknown chunks are skipped, and a
// data chunk whose declared size overruns the buffer is clamped, which is what
// streaming encoders produce.
func DecodeWAV(data []byte) (*PCM, error) {
	if !IsWAV(data) {
		return nil, ErrNotWAV
	}

	var (
		pcm     PCM
		haveFmt bool
		offset  = riffHeaderSize
	)

	for offset < len(data) {
		if len(data)-offset < chunkHeaderSize {
			return nil, ErrTruncatedWAVHeader
		}

		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + chunkHeaderSize

		if chunkSize < 0 || body+chunkSize > len(data) {
			chunkSize = len(data) - body
		}

		switch chunkID {
		case "fmt ":
			err := parseFmtChunk(data[body:body+chunkSize], &pcm)
			if err != nil {
				return nil, err
			}

			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, ErrMissingFmtChunk
			}

			pcm.Samples = decodeSamples(data[body : body+chunkSize])

			return &pcm, nil
		}

		offset = body + chunkSize + chunkSize%2
	}

	if !haveFmt {
		return nil, ErrMissingFmtChunk
	}

	return nil, ErrMissingDataChunk
}

func parseFmtChunk(chunk []byte, pcm *PCM) error {
	if len(chunk) < fmtChunkMinSize {
		return fmt.Errorf("%w: fmt chunk is %d bytes", ErrUnsupportedFormat, len(chunk))
	}

	audioFormat := binary.LittleEndian.Uint16(chunk[0:2])
	pcm.Channels = int(binary.LittleEndian.Uint16(chunk[2:4]))
	pcm.SampleRate = int(binary.LittleEndian.Uint32(chunk[4:8]))
	bitsPerSample := int(binary.LittleEndian.Uint16(chunk[14:16]))

	if (audioFormat != formatPCM && audioFormat != formatExtensible) || bitsPerSample != bitDepth16 {
		return fmt.Errorf(errFmtBitDepth, ErrUnsupportedFormat, bitDepth16, audioFormat, bitsPerSample)
	}

	return pcm.validate()
}

func decodeSamples(raw []byte) []int16 {
	samples := make([]int16, len(raw)/bytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*bytesPerSample:])) // #nosec G115
	}

	return samples
}

// Encode writes p as a canonical 44-byte-header PCM WAV file.
func (p *PCM) Encode() []byte {
	dataSize := len(p.Samples) * bytesPerSample
	blockAlign := p.Channels * bytesPerSample
	byteRate := p.SampleRate * blockAlign

	buf := bytes.NewBuffer(make([]byte, 0, riffHeaderSize+chunkHeaderSize*2+fmtChunkMinSize+dataSize))

	buf.WriteString("RIFF")
	writeUint32(buf, uint32(4+chunkHeaderSize+fmtChunkMinSize+chunkHeaderSize+dataSize)) // #nosec G115
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	writeUint32(buf, fmtChunkMinSize)
	writeUint16(buf, formatPCM)
	writeUint16(buf, uint16(p.Channels))   // #nosec G115
	writeUint32(buf, uint32(p.SampleRate)) // #nosec G115
	writeUint32(buf, uint32(byteRate))     // #nosec G115
	writeUint16(buf, uint16(blockAlign))   // #nosec G115
	writeUint16(buf, bitDepth16)

	buf.WriteString("data")
	writeUint32(buf, uint32(dataSize)) // #nosec G115

	sample := make([]byte, bytesPerSample)
	for _, s := range p.Samples {
		binary.LittleEndian.PutUint16(sample, uint16(s)) // #nosec G115
		buf.Write(sample)
	}

	return buf.Bytes()
}

// Frames returns the number of sample frames (samples per channel).
func (p *PCM) Frames() int {
	if p.Channels == 0 {
		return 0
	}

	return len(p.Samples) / p.Channels
}

// Duration returns the playback length.
func (p *PCM) Duration() time.Duration {
	if p.SampleRate == 0 {
		return 0
	}

	return time.Duration(p.Frames()) * time.Second / time.Duration(p.SampleRate)
}

// frameAt converts seconds to a frame index clamped to [0, Frames()].
func (p *PCM) frameAt(seconds float64) int {
	frame := int(seconds * float64(p.SampleRate))

	return max(0, min(frame, p.Frames()))
}

func (p *PCM) validate() error {
	if p.SampleRate <= 0 || p.SampleRate > MaxSampleRate {
		return fmt.Errorf(errFmtSampleRateRange, ErrInvalidQuality, MaxSampleRate)
	}

	if p.Channels <= 0 || p.Channels > MaxChannels {
		return fmt.Errorf(errFmtChannelsRange, ErrInvalidQuality, MaxChannels)
	}

	return nil
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte

	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte

	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}
