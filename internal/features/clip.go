package features

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"

	"github.com/desertthunder/tracksig/internal/shared"
)

// Clip is a mono waveform with samples in [-1, 1].
type Clip struct {
	Samples    []float64
	SampleRate int
	Duration   time.Duration
}

// NewClip wraps samples and derives the duration from the sample rate.
func NewClip(samples []float64, sampleRate int) *Clip {
	c := &Clip{Samples: samples, SampleRate: sampleRate}
	if sampleRate > 0 {
		c.Duration = time.Duration(float64(len(samples)) / float64(sampleRate) * float64(time.Second))
	}
	return c
}

// Decode reads a WAV or MP3 stream and mixes it down to mono.
//
// The container is detected from the leading bytes, falling back to the extension of name.
func Decode(r io.Reader, name string) (*Clip, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrDecode, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", shared.ErrDecode)
	}

	switch {
	case bytes.HasPrefix(data, []byte("RIFF")):
		return decodeWAV(data)
	case isMP3(data):
		return decodeMP3(data)
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav":
		return decodeWAV(data)
	case ".mp3":
		return decodeMP3(data)
	}
	return nil, fmt.Errorf("%w: unrecognized container for %q", shared.ErrDecode, name)
}

func isMP3(data []byte) bool {
	if bytes.HasPrefix(data, []byte("ID3")) {
		return true
	}
	return len(data) > 1 && data[0] == 0xFF && data[1]&0xE0 == 0xE0
}

// decodeMP3 mixes the decoder's interleaved 16-bit little-endian stereo output to mono.
func decodeMP3(data []byte) (*Clip, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: mp3: %v", shared.ErrDecode, err)
	}

	var samples []float64
	buf := make([]byte, 4096)
	for {
		n, err := decoder.Read(buf)
		for i := 0; i+3 < n; i += 4 {
			left := int16(buf[i]) | int16(buf[i+1])<<8
			right := int16(buf[i+2]) | int16(buf[i+3])<<8
			samples = append(samples, (float64(left)+float64(right))/2/32768.0)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%w: mp3 read: %v", shared.ErrDecode, err)
		}
	}

	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: mp3 contains no samples", shared.ErrDecode)
	}
	return NewClip(samples, decoder.SampleRate()), nil
}

func decodeWAV(data []byte) (*Clip, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("%w: invalid wav file", shared.ErrDecode)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: wav: %v", shared.ErrDecode, err)
	}
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return nil, fmt.Errorf("%w: wav contains no samples", shared.ErrDecode)
	}

	channels := max(buf.Format.NumChannels, 1)
	depth := buf.SourceBitDepth
	if depth <= 0 {
		depth = 16
	}
	scale := math.Pow(2, float64(depth-1))

	samples := make([]float64, len(buf.Data)/channels)
	for i := range samples {
		var sum float64
		for ch := range channels {
			sum += float64(buf.Data[i*channels+ch])
		}
		samples[i] = sum / float64(channels) / scale
	}
	return NewClip(samples, buf.Format.SampleRate), nil
}

// Resample converts c to rate by linear interpolation. A clip already at rate is returned as is.
func Resample(c *Clip, rate int) *Clip {
	if rate <= 0 || c.SampleRate == rate || len(c.Samples) == 0 {
		return c
	}

	ratio := float64(c.SampleRate) / float64(rate)
	n := int(math.Round(float64(len(c.Samples)) / ratio))
	out := make([]float64, n)
	last := len(c.Samples) - 1
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= last {
			out[i] = c.Samples[last]
			continue
		}
		frac := pos - float64(j)
		out[i] = c.Samples[j]*(1-frac) + c.Samples[j+1]*frac
	}
	return NewClip(out, rate)
}

// Trim keeps the leading fraction of c, capped at maxDuration when it is positive.
func Trim(c *Clip, maxDuration time.Duration, fraction float64) *Clip {
	keep := c.Duration
	if fraction > 0 && fraction < 1 {
		keep = time.Duration(float64(keep) * fraction)
	}
	if maxDuration > 0 && keep > maxDuration {
		keep = maxDuration
	}

	n := int(keep.Seconds() * float64(c.SampleRate))
	if n >= len(c.Samples) {
		return c
	}
	return NewClip(c.Samples[:n], c.SampleRate)
}
