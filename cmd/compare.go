package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/desertthunder/tracksig/internal/formatter"
	"github.com/desertthunder/tracksig/internal/shared"
	"github.com/desertthunder/tracksig/internal/similarity"
	"github.com/desertthunder/tracksig/internal/tasks"
	"github.com/urfave/cli/v3"
)

// fileSigner computes a signature from encoded audio. Implemented by [tasks.AudioComputer].
type fileSigner interface {
	Signature(r io.Reader, name string) ([]float64, error)
}

// Compare computes the signatures of two local files and prints every distance metric between them.
func (r *Runner) Compare(ctx context.Context, cmd *cli.Command) error {
	a, b := cmd.StringArg("a"), cmd.StringArg("b")
	if a == "" || b == "" {
		return fmt.Errorf("%w: compare needs two audio files", shared.ErrMissingArgument)
	}

	signer, ok := r.computer.(fileSigner)
	if !ok {
		computer, err := tasks.NewAudioComputerFromConfig(nil, r.config.Signatures)
		if err != nil {
			return err
		}
		signer = computer
	}

	va, err := signFile(signer, a)
	if err != nil {
		return err
	}
	vb, err := signFile(signer, b)
	if err != nil {
		return err
	}

	comparison, err := similarity.Engine{}.Compare(va, vb)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		metrics := make(map[similarity.Metric]*float64, len(comparison))
		for m, d := range comparison {
			metrics[m] = similarity.Nullable(d)
		}
		return r.writeJSON(map[string]any{"a": a, "b": b, "dimension": len(va), "metrics": metrics}, false)
	}
	_, err = r.output.Write(formatter.ComparisonToText(a, b, comparison))
	return err
}

func signFile(signer fileSigner, path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	defer f.Close()

	v, err := signer.Signature(f, filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}
