// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/desertthunder/tracksig/internal/models"
)

// StaticComputer is a test double for tasks.SignatureComputer.
//
// Tracks listed in Errors fail with that error; every other track gets Vector.
type StaticComputer struct {
	Vector []float64
	Errors map[string]error
	Panics map[string]bool

	mu    sync.Mutex
	calls []string
}

func (s *StaticComputer) Compute(ctx context.Context, track *models.Track) ([]float64, error) {
	s.mu.Lock()
	s.calls = append(s.calls, track.ID)
	s.mu.Unlock()

	if s.Panics[track.ID] {
		panic("computer exploded on " + track.ID)
	}
	if err, ok := s.Errors[track.ID]; ok {
		return nil, err
	}
	return append([]float64(nil), s.Vector...), nil
}

// Calls returns the IDs passed to Compute, in call order.
func (s *StaticComputer) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

// Sine returns seconds of a sine wave at freq Hz with peak amplitude amp.
func Sine(freq float64, sampleRate int, seconds, amp float64) []float64 {
	out := make([]float64, int(seconds*float64(sampleRate)))
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

// Noise returns seconds of uniform white noise in [-amp, amp] from a fixed seed.
func Noise(seed int64, sampleRate int, seconds, amp float64) []float64 {
	r := rand.New(rand.NewSource(seed))
	out := make([]float64, int(seconds*float64(sampleRate)))
	for i := range out {
		out[i] = amp * (2*r.Float64() - 1)
	}
	return out
}

// Clicks returns a click track at bpm: short decaying bursts on every beat.
func Clicks(bpm float64, sampleRate int, seconds float64) []float64 {
	out := make([]float64, int(seconds*float64(sampleRate)))
	period := int(60 / bpm * float64(sampleRate))
	burst := sampleRate / 50
	for start := 0; start < len(out); start += period {
		for i := 0; i < burst && start+i < len(out); i++ {
			decay := math.Exp(-float64(i) / float64(burst/4))
			out[start+i] = 0.9 * decay * math.Sin(2*math.Pi*1000*float64(i)/float64(sampleRate))
		}
	}
	return out
}

// WriteWAV encodes samples in [-1, 1] as a 16-bit WAV with the given channel count
// (each channel carries the same signal) and returns the file path.
func WriteWAV(t *testing.T, dir, name string, samples []float64, sampleRate, channels int) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
	defer f.Close()

	data := make([]int, 0, len(samples)*channels)
	for _, s := range samples {
		v := int(math.Round(math.Max(-1, math.Min(1, s)) * 32767))
		for range channels {
			data = append(data, v)
		}
	}

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           data,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("Failed to write wav data: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Failed to finalize wav: %v", err)
	}
	return path
}

// WAVBytes encodes samples like [WriteWAV] and returns the file contents.
func WAVBytes(t *testing.T, samples []float64, sampleRate int) []byte {
	t.Helper()
	path := WriteWAV(t, t.TempDir(), "clip.wav", samples, sampleRate, 1)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	return data
}
