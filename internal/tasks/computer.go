package tasks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/desertthunder/tracksig/internal/features"
	"github.com/desertthunder/tracksig/internal/models"
	"github.com/desertthunder/tracksig/internal/shared"
	"github.com/desertthunder/tracksig/internal/signature"
)

// SignatureComputer turns a stored track into its signature.
type SignatureComputer interface {
	Compute(ctx context.Context, track *models.Track) ([]float64, error)
}

// PreviewSource returns the audio bytes behind a preview URL. Implemented by [services.PreviewFetcher].
type PreviewSource interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// AudioComputer computes signatures from preview audio: download, decode, resample, trim, extract, then
// build, normalize and reduce.
type AudioComputer struct {
	source      PreviewSource
	provider    *features.Provider
	pipeline    signature.Pipeline
	maxDuration time.Duration
	fraction    float64
}

// NewAudioComputer creates an AudioComputer. maxDuration and fraction bound how much of each clip is analysed.
func NewAudioComputer(source PreviewSource, provider *features.Provider, pipeline signature.Pipeline, maxDuration time.Duration, fraction float64) *AudioComputer {
	if provider == nil {
		provider = features.NewProvider(features.DefaultParams())
	}
	return &AudioComputer{
		source:      source,
		provider:    provider,
		pipeline:    pipeline,
		maxDuration: maxDuration,
		fraction:    fraction,
	}
}

// NewAudioComputerFromConfig wires an AudioComputer from the signatures section of the config.
func NewAudioComputerFromConfig(source PreviewSource, cfg shared.SignatureConfig) (*AudioComputer, error) {
	pipeline, err := signature.NewPipeline(cfg)
	if err != nil {
		return nil, err
	}
	params := features.DefaultParams()
	params.SampleRate = cfg.SampleRate
	return NewAudioComputer(source, features.NewProvider(params), pipeline, cfg.MaxDuration.Duration, cfg.DurationFraction), nil
}

// Pipeline returns the signature configuration applied by the computer.
func (c *AudioComputer) Pipeline() signature.Pipeline {
	return c.pipeline
}

// Compute downloads the track's preview and computes its signature.
func (c *AudioComputer) Compute(ctx context.Context, track *models.Track) ([]float64, error) {
	if c.source == nil {
		return nil, fmt.Errorf("%w: no preview source configured", shared.ErrServiceUnavailable)
	}

	data, err := c.source.Fetch(ctx, track.PreviewURL)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.Signature(bytes.NewReader(data), track.PreviewURL)
}

// Signature computes the signature of encoded audio read from r. name is only used as a format hint.
func (c *AudioComputer) Signature(r io.Reader, name string) ([]float64, error) {
	clip, err := c.provider.Load(r, name, c.maxDuration, c.fraction)
	if err != nil {
		return nil, err
	}

	matrices, err := c.provider.ExtractAll(clip, c.pipeline.Toggles)
	if err != nil {
		return nil, err
	}
	return c.pipeline.Apply(matrices)
}
