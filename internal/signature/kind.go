package signature

import (
	"fmt"
	"strings"

	"github.com/desertthunder/tracksig/internal/shared"
)

// Kind is one feature group a signature can be built from.
//
// The numeric order of the constants is the concatenation order of a signature, so
// new kinds must only ever be appended.
type Kind int

const (
	MFCC Kind = iota
	Chroma
	SpectralCentroid
	SpectralBandwidth
	ZeroCrossingRate
	RMS
	MelSpectrogram
	Tempo
	Tonnetz
	numKinds
)

var kindNames = [numKinds]string{
	MFCC:              "mfcc",
	Chroma:            "chroma",
	SpectralCentroid:  "spectral_centroid",
	SpectralBandwidth: "spectral_bandwidth",
	ZeroCrossingRate:  "zero_crossing_rate",
	RMS:               "rms",
	MelSpectrogram:    "mel_spectrogram",
	Tempo:             "tempo",
	Tonnetz:           "tonnetz",
}

// Kinds returns every feature kind in concatenation order.
func Kinds() []Kind {
	out := make([]Kind, 0, numKinds)
	for k := range numKinds {
		out = append(out, k)
	}
	return out
}

func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Valid reports whether k is a known feature kind.
func (k Kind) Valid() bool {
	return k >= 0 && k < numKinds
}

// Aggregate reports how a kind's time-frame matrix is summarized.
type Aggregate int

const (
	AggregateMean Aggregate = iota
	AggregateMeanStd
	AggregateScalar
)

// Aggregate returns the aggregation applied to k when a signature is built.
func (k Kind) Aggregate() Aggregate {
	switch k {
	case MFCC, Chroma:
		return AggregateMeanStd
	case Tempo:
		return AggregateScalar
	default:
		return AggregateMean
	}
}

// ParseKind maps a configuration name such as "mfcc" or "zero_crossing_rate" to a Kind.
func ParseKind(s string) (Kind, error) {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", shared.ErrUnknownFeature, s)
}

// Toggles is the set of enabled feature kinds.
type Toggles uint16

// NewToggles enables the given kinds. Unknown kinds are ignored.
func NewToggles(kinds ...Kind) Toggles {
	var t Toggles
	for _, k := range kinds {
		if k.Valid() {
			t |= 1 << uint(k)
		}
	}
	return t
}

// AllToggles enables every kind.
func AllToggles() Toggles {
	return NewToggles(Kinds()...)
}

// BaseToggles is the smaller set used for quick comparisons: cepstral, chroma, energy, mel and tempo.
func BaseToggles() Toggles {
	return NewToggles(MFCC, Chroma, RMS, MelSpectrogram, Tempo)
}

// ParseToggles builds a Toggles from configuration names.
func ParseToggles(names []string) (Toggles, error) {
	var t Toggles
	for _, name := range names {
		k, err := ParseKind(name)
		if err != nil {
			return 0, err
		}
		t = t.With(k)
	}
	return t, nil
}

// Has reports whether k is enabled.
func (t Toggles) Has(k Kind) bool {
	return k.Valid() && t&(1<<uint(k)) != 0
}

// With returns t with k enabled.
func (t Toggles) With(k Kind) Toggles {
	return t | NewToggles(k)
}

// Without returns t with k disabled.
func (t Toggles) Without(k Kind) Toggles {
	return t &^ NewToggles(k)
}

// Enabled lists the enabled kinds in concatenation order.
func (t Toggles) Enabled() []Kind {
	var out []Kind
	for _, k := range Kinds() {
		if t.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

// Names lists the enabled kinds by configuration name.
func (t Toggles) Names() []string {
	enabled := t.Enabled()
	out := make([]string, len(enabled))
	for i, k := range enabled {
		out[i] = k.String()
	}
	return out
}

func (t Toggles) String() string {
	return strings.Join(t.Names(), ",")
}
