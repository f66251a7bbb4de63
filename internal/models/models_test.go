package models

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/desertthunder/tracksig/internal/shared"
)

func TestTrack(t *testing.T) {
	t.Run("artists round trip", func(t *testing.T) {
		tr := &Track{Artists: []string{"Daft Punk", "Pharrell Williams"}}
		if got := SplitArtists(tr.ArtistLine()); !reflect.DeepEqual(got, tr.Artists) {
			t.Errorf("expected %v, got %v", tr.Artists, got)
		}
		if SplitArtists("  ") != nil {
			t.Error("expected no artists for a blank line")
		}
	})

	t.Run("validate", func(t *testing.T) {
		tests := []struct {
			name  string
			track Track
			ok    bool
		}{
			{"valid", Track{Title: "Get Lucky", PreviewURL: "https://p.scdn.co/mp3-preview/abc"}, true},
			{"missing title", Track{PreviewURL: "https://p.scdn.co/mp3-preview/abc"}, false},
			{"missing preview", Track{Title: "Get Lucky"}, false},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := tt.track.Validate()
				if tt.ok && err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				if !tt.ok && !errors.Is(err, shared.ErrInvalidInput) {
					t.Errorf("expected ErrInvalidInput, got %v", err)
				}
			})
		}
	})

	t.Run("has signature", func(t *testing.T) {
		tr := &Track{}
		if tr.HasSignature() {
			t.Error("expected no signature")
		}
		tr.Signature = []float64{0.1}
		if !tr.HasSignature() {
			t.Error("expected signature")
		}
	})

	t.Run("json", func(t *testing.T) {
		tr := Track{ID: "t1", Title: "Get Lucky", Signature: []float64{0.5, math.NaN(), math.Inf(1)}}
		data, err := json.Marshal(tr)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		if !strings.Contains(string(data), `"signature":[0.5,null,null]`) {
			t.Errorf("expected non-finite values as null, got %s", data)
		}

		var back Track
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		if back.ID != "t1" || back.Title != "Get Lucky" {
			t.Errorf("expected fields to survive, got %+v", back)
		}
		if len(back.Signature) != 3 || back.Signature[0] != 0.5 || !math.IsNaN(back.Signature[1]) {
			t.Errorf("expected null to read back as NaN, got %v", back.Signature)
		}

		data, err = json.Marshal(Track{ID: "t2"})
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		if strings.Contains(string(data), "signature") {
			t.Errorf("expected no signature key for a pending track, got %s", data)
		}
	})
}
