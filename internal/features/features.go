// Package features decodes preview audio and computes the per-frame feature matrices a signature is built from.
//
// All spectral features share one Hann-windowed STFT (2048-point frames, 512-sample hop).
// Frames never extend past the end of the clip, so a clip shorter than one frame yields
// empty matrices and the signature builder rejects it.
package features

import (
	"fmt"
	"io"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/desertthunder/tracksig/internal/shared"
	"github.com/desertthunder/tracksig/internal/signature"
)

// Params fixes the analysis resolution.
type Params struct {
	SampleRate int
	NFFT       int
	HopLength  int
	NumMel     int
	NumMFCC    int
	TopDB      float64
	MinBPM     float64
	MaxBPM     float64
}

// DefaultParams matches the analysis used for stored signatures.
func DefaultParams() Params {
	return Params{
		SampleRate: 15500,
		NFFT:       2048,
		HopLength:  512,
		NumMel:     signature.DefaultNumMel,
		NumMFCC:    signature.DefaultNumMFCC,
		TopDB:      80,
		MinBPM:     60,
		MaxBPM:     200,
	}
}

// Provider computes feature matrices from clips. It is safe for concurrent use.
type Provider struct {
	Params Params
}

// NewProvider returns a Provider for p, filling zero fields from [DefaultParams].
func NewProvider(p Params) *Provider {
	d := DefaultParams()
	if p.SampleRate <= 0 {
		p.SampleRate = d.SampleRate
	}
	if p.NFFT <= 0 {
		p.NFFT = d.NFFT
	}
	if p.HopLength <= 0 {
		p.HopLength = d.HopLength
	}
	if p.NumMel <= 0 {
		p.NumMel = d.NumMel
	}
	if p.NumMFCC <= 0 {
		p.NumMFCC = d.NumMFCC
	}
	if p.MinBPM <= 0 {
		p.MinBPM = d.MinBPM
	}
	if p.MaxBPM <= p.MinBPM {
		p.MaxBPM = d.MaxBPM
	}
	return &Provider{Params: p}
}

// Builder returns a signature builder whose coefficient counts match the provider's matrices.
func (p *Provider) Builder() signature.Builder {
	return signature.Builder{NumMFCC: p.Params.NumMFCC, NumMel: p.Params.NumMel}
}

// Load decodes r, resamples to the analysis rate and applies the duration policy.
func (p *Provider) Load(r io.Reader, name string, maxDuration time.Duration, fraction float64) (*Clip, error) {
	clip, err := Decode(r, name)
	if err != nil {
		return nil, err
	}
	return Trim(Resample(clip, p.Params.SampleRate), maxDuration, fraction), nil
}

// Extract computes the matrix for a single kind.
func (p *Provider) Extract(kind signature.Kind, clip *Clip) (signature.Matrix, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %v", shared.ErrUnknownFeature, kind)
	}
	return p.newAnalysis(clip).extract(kind), nil
}

// ExtractAll computes the matrix of every enabled kind, sharing the spectrogram between them.
func (p *Provider) ExtractAll(clip *Clip, toggles signature.Toggles) (map[signature.Kind]signature.Matrix, error) {
	if clip == nil || clip.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: clip has no sample rate", shared.ErrInvalidInput)
	}

	a := p.newAnalysis(clip)
	out := make(map[signature.Kind]signature.Matrix, len(toggles.Enabled()))
	for _, k := range toggles.Enabled() {
		out[k] = a.extract(k)
	}
	return out, nil
}

// analysis caches intermediate spectrograms for one clip.
type analysis struct {
	params Params
	clip   *Clip

	power, magnitude [][]float64
	mel, melDB       [][]float64
	chroma           [][]float64
	done             bool
}

func (p *Provider) newAnalysis(clip *Clip) *analysis {
	return &analysis{params: p.Params, clip: clip}
}

func (a *analysis) spectra() {
	if a.done {
		return
	}
	a.done = true
	a.power, a.magnitude = stft(a.clip.Samples, a.params.NFFT, a.params.HopLength)
	if len(a.power) == 0 {
		return
	}
	a.mel = applyFilters(a.power, melFilterbank(a.params.NumMel, a.params.NFFT, a.clip.SampleRate))
	a.melDB = powerToDB(a.mel, a.params.TopDB)
}

func (a *analysis) extract(k signature.Kind) signature.Matrix {
	switch k {
	case signature.MFCC:
		return a.mfcc()
	case signature.Chroma:
		return a.chromagram()
	case signature.SpectralCentroid:
		return a.centroid()
	case signature.SpectralBandwidth:
		return a.bandwidth()
	case signature.ZeroCrossingRate:
		return a.zeroCrossingRate()
	case signature.RMS:
		return a.rms()
	case signature.MelSpectrogram:
		a.spectra()
		return signature.Matrix(a.mel)
	case signature.Tempo:
		return a.tempo()
	case signature.Tonnetz:
		return a.tonnetz()
	}
	return nil
}

func (a *analysis) mfcc() signature.Matrix {
	a.spectra()
	n := min(a.params.NumMFCC, a.params.NumMel)
	out := make(signature.Matrix, len(a.melDB))
	for f, row := range a.melDB {
		// n never exceeds the row width, so the error is unreachable
		coeffs, _ := signature.Reduce(row, n)
		out[f] = coeffs
	}
	return out
}

func (a *analysis) chromagram() signature.Matrix {
	a.spectra()
	if a.chroma != nil || len(a.power) == 0 {
		return signature.Matrix(a.chroma)
	}

	freqs := binFrequencies(a.params.NFFT, a.clip.SampleRate)
	classes := make([]int, len(freqs))
	for k, f := range freqs {
		classes[k] = -1
		if f >= 27.5 {
			classes[k] = pitchClass(f)
		}
	}

	a.chroma = make([][]float64, len(a.power))
	for f, row := range a.power {
		c := make([]float64, signature.NumChroma)
		for k, x := range row {
			if classes[k] >= 0 {
				c[classes[k]] += x
			}
		}
		if peak := floats.Max(c); peak > 0 {
			for i := range c {
				c[i] /= peak
			}
		}
		a.chroma[f] = c
	}
	return signature.Matrix(a.chroma)
}

func (a *analysis) centroid() signature.Matrix {
	a.spectra()
	freqs := binFrequencies(a.params.NFFT, a.clip.SampleRate)
	out := make(signature.Matrix, len(a.magnitude))
	for f, row := range a.magnitude {
		out[f] = []float64{spectralCentroid(row, freqs)}
	}
	return out
}

func spectralCentroid(mag, freqs []float64) float64 {
	total := floats.Sum(mag)
	if total == 0 {
		return 0
	}
	return floats.Dot(mag, freqs) / total
}

func (a *analysis) bandwidth() signature.Matrix {
	a.spectra()
	freqs := binFrequencies(a.params.NFFT, a.clip.SampleRate)
	out := make(signature.Matrix, len(a.magnitude))
	for f, row := range a.magnitude {
		total := floats.Sum(row)
		if total == 0 {
			out[f] = []float64{0}
			continue
		}
		c := spectralCentroid(row, freqs)
		var acc float64
		for k, m := range row {
			d := freqs[k] - c
			acc += m * d * d
		}
		out[f] = []float64{math.Sqrt(acc / total)}
	}
	return out
}

// timeFrames slices the raw waveform on the same grid as the STFT.
func (a *analysis) timeFrames() [][]float64 {
	n, hop := a.params.NFFT, a.params.HopLength
	frames := frameCount(len(a.clip.Samples), n, hop)
	out := make([][]float64, frames)
	for f := range frames {
		out[f] = a.clip.Samples[f*hop : f*hop+n]
	}
	return out
}

func (a *analysis) zeroCrossingRate() signature.Matrix {
	frames := a.timeFrames()
	out := make(signature.Matrix, len(frames))
	for f, frame := range frames {
		crossings := 0
		for i := 1; i < len(frame); i++ {
			if (frame[i-1] >= 0) != (frame[i] >= 0) {
				crossings++
			}
		}
		out[f] = []float64{float64(crossings) / float64(len(frame))}
	}
	return out
}

func (a *analysis) rms() signature.Matrix {
	frames := a.timeFrames()
	out := make(signature.Matrix, len(frames))
	for f, frame := range frames {
		out[f] = []float64{math.Sqrt(floats.Dot(frame, frame) / float64(len(frame)))}
	}
	return out
}

// onsetEnvelope is the positive spectral flux of the dB mel spectrogram, one value per frame.
func (a *analysis) onsetEnvelope() []float64 {
	a.spectra()
	env := make([]float64, len(a.melDB))
	for f := 1; f < len(a.melDB); f++ {
		var flux float64
		for b, x := range a.melDB[f] {
			if d := x - a.melDB[f-1][b]; d > 0 {
				flux += d
			}
		}
		env[f] = flux / float64(len(a.melDB[f]))
	}
	return env
}

// tempo estimates beats per minute by autocorrelating the onset envelope over lags
// covering MinBPM to MaxBPM.
func (a *analysis) tempo() signature.Matrix {
	env := a.onsetEnvelope()
	if len(env) == 0 {
		return signature.Matrix{}
	}

	frameSeconds := float64(a.params.HopLength) / float64(a.clip.SampleRate)
	minLag := max(int(math.Floor(60/a.params.MaxBPM/frameSeconds)), 1)
	maxLag := min(int(math.Ceil(60/a.params.MinBPM/frameSeconds)), len(env)-1)

	const fallbackBPM = 120.0
	if maxLag < minLag {
		return signature.Matrix{{fallbackBPM}}
	}

	bestLag, bestCorr := 0, 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		corr := floats.Dot(env[:len(env)-lag], env[lag:]) / float64(len(env)-lag)
		if corr > bestCorr {
			bestLag, bestCorr = lag, corr
		}
	}
	if bestLag == 0 {
		return signature.Matrix{{fallbackBPM}}
	}

	bpm := 60 / (float64(bestLag) * frameSeconds)
	bpm = math.Max(a.params.MinBPM, math.Min(a.params.MaxBPM, bpm))
	return signature.Matrix{{bpm}}
}

// tonnetzBasis projects an L1-normalized chroma vector onto the circles of fifths,
// minor thirds and major thirds.
var tonnetzBasis = func() [signature.NumTonnetz][signature.NumChroma]float64 {
	var basis [signature.NumTonnetz][signature.NumChroma]float64
	circles := []struct{ radius, angle float64 }{
		{1, 7 * math.Pi / 6},
		{1, 3 * math.Pi / 2},
		{0.5, 2 * math.Pi / 3},
	}
	for i, c := range circles {
		for l := range signature.NumChroma {
			basis[2*i][l] = c.radius * math.Sin(float64(l)*c.angle)
			basis[2*i+1][l] = c.radius * math.Cos(float64(l)*c.angle)
		}
	}
	return basis
}()

func (a *analysis) tonnetz() signature.Matrix {
	chroma := a.chromagram()
	out := make(signature.Matrix, len(chroma))
	for f, c := range chroma {
		row := make([]float64, signature.NumTonnetz)
		if total := floats.Sum(c); total > 0 {
			for d := range row {
				row[d] = floats.Dot(tonnetzBasis[d][:], c) / total
			}
		}
		out[f] = row
	}
	return out
}
