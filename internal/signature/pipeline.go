package signature

import (
	"fmt"

	"github.com/desertthunder/tracksig/internal/shared"
)

// Pipeline chains [Builder.Build], [Normalize] and [Reduce] under one fixed configuration.
type Pipeline struct {
	Builder    Builder
	Toggles    Toggles
	Normalize  bool
	Mode       Mode
	Reduce     bool
	Components int
}

// NewPipeline builds a Pipeline from the signatures section of the config.
//
// An empty normalize string disables normalization.
func NewPipeline(cfg shared.SignatureConfig) (Pipeline, error) {
	toggles, err := ParseToggles(cfg.Features)
	if err != nil {
		return Pipeline{}, err
	}

	p := Pipeline{
		Builder:    NewBuilder(),
		Toggles:    toggles,
		Reduce:     cfg.Reduce,
		Components: cfg.Components,
	}

	if cfg.Normalize != "" {
		mode, err := ParseMode(cfg.Normalize)
		if err != nil {
			return Pipeline{}, err
		}
		p.Normalize, p.Mode = true, mode
	}

	if err := p.Validate(); err != nil {
		return Pipeline{}, err
	}
	return p, nil
}

// Validate checks that the configuration can produce a signature.
func (p Pipeline) Validate() error {
	raw := p.Builder.Width(p.Toggles)
	switch {
	case raw == 0:
		return fmt.Errorf("%w: no feature kinds enabled", shared.ErrInvalidArgument)
	case p.Reduce && (p.Components <= 0 || p.Components > raw):
		return fmt.Errorf("%w: %d components requested from a %d-wide signature",
			shared.ErrInvalidArgument, p.Components, raw)
	}
	return nil
}

// Width returns the length of every signature this pipeline produces.
func (p Pipeline) Width() int {
	if p.Reduce {
		return p.Components
	}
	return p.Builder.Width(p.Toggles)
}

// Apply builds, optionally normalizes and optionally reduces a signature.
func (p Pipeline) Apply(matrices map[Kind]Matrix) ([]float64, error) {
	v, err := p.Builder.Build(matrices, p.Toggles)
	if err != nil {
		return nil, err
	}

	if p.Normalize {
		if v, err = Normalize(v, p.Mode); err != nil {
			return nil, err
		}
	}

	if p.Reduce {
		if v, err = Reduce(v, p.Components); err != nil {
			return nil, err
		}
	}

	return v, nil
}
