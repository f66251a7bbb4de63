package features

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/dsp/fourier"
)

// frameCount is the number of full frames of size n with hop h in a signal of length total.
func frameCount(total, n, h int) int {
	if total < n || n <= 0 || h <= 0 {
		return 0
	}
	return 1 + (total-n)/h
}

// stft returns the power and magnitude spectrograms of samples, one row per frame.
//
// Each frame is Hann-windowed; rows hold n/2+1 bins. The FFT is not safe for concurrent
// use, so every call builds its own.
func stft(samples []float64, n, hop int) (power, magnitude [][]float64) {
	frames := frameCount(len(samples), n, hop)
	if frames == 0 {
		return nil, nil
	}

	fft := fourier.NewFFT(n)
	win := window.Hann(n)
	buf := make([]float64, n)
	coeffs := make([]complex128, n/2+1)

	power = make([][]float64, frames)
	magnitude = make([][]float64, frames)
	for f := range frames {
		start := f * hop
		for i := range n {
			buf[i] = samples[start+i] * win[i]
		}
		fft.Coefficients(coeffs, buf)

		p := make([]float64, len(coeffs))
		m := make([]float64, len(coeffs))
		for k, c := range coeffs {
			m[k] = cmplx.Abs(c)
			p[k] = m[k] * m[k]
		}
		power[f], magnitude[f] = p, m
	}
	return power, magnitude
}

// binFrequencies returns the center frequency in Hz of each of the n/2+1 FFT bins.
func binFrequencies(n, sampleRate int) []float64 {
	out := make([]float64, n/2+1)
	for k := range out {
		out[k] = float64(k) * float64(sampleRate) / float64(n)
	}
	return out
}

func hzToMel(f float64) float64 {
	return 2595 * math.Log10(1+f/700)
}

func melToHz(m float64) float64 {
	return 700 * (math.Pow(10, m/2595) - 1)
}

// melFilterbank builds bands triangular filters evenly spaced on the HTK mel scale between 0 Hz and Nyquist.
//
// Each filter is area-normalized so wide high-frequency bands do not dominate.
func melFilterbank(bands, n, sampleRate int) [][]float64 {
	freqs := binFrequencies(n, sampleRate)
	top := hzToMel(float64(sampleRate) / 2)

	edges := make([]float64, bands+2)
	for i := range edges {
		edges[i] = melToHz(top * float64(i) / float64(bands+1))
	}

	filters := make([][]float64, bands)
	for b := range bands {
		lo, center, hi := edges[b], edges[b+1], edges[b+2]
		norm := 2 / (hi - lo)
		w := make([]float64, len(freqs))
		for k, f := range freqs {
			switch {
			case f > lo && f <= center:
				w[k] = norm * (f - lo) / (center - lo)
			case f > center && f < hi:
				w[k] = norm * (hi - f) / (hi - center)
			}
		}
		filters[b] = w
	}
	return filters
}

// applyFilters multiplies every spectrogram row by every filter.
func applyFilters(spec, filters [][]float64) [][]float64 {
	out := make([][]float64, len(spec))
	for f, row := range spec {
		bands := make([]float64, len(filters))
		for b, w := range filters {
			var sum float64
			for k, x := range row {
				sum += x * w[k]
			}
			bands[b] = sum
		}
		out[f] = bands
	}
	return out
}

// powerToDB converts power to decibels relative to 1.0, floored at topDB below the loudest cell.
func powerToDB(spec [][]float64, topDB float64) [][]float64 {
	const amin = 1e-10

	out := make([][]float64, len(spec))
	peak := math.Inf(-1)
	for f, row := range spec {
		db := make([]float64, len(row))
		for i, x := range row {
			db[i] = 10 * math.Log10(math.Max(x, amin))
			peak = math.Max(peak, db[i])
		}
		out[f] = db
	}

	if topDB > 0 {
		floor := peak - topDB
		for _, row := range out {
			for i := range row {
				row[i] = math.Max(row[i], floor)
			}
		}
	}
	return out
}

// pitchClass maps a frequency to its pitch class with C = 0, tuned to A4 = 440 Hz.
func pitchClass(f float64) int {
	midi := 69 + 12*math.Log2(f/440)
	pc := int(math.Round(midi)) % 12
	if pc < 0 {
		pc += 12
	}
	return pc
}
