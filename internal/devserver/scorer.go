package devserver

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
)

// ClassNames are the labels the disease model can emit.
var ClassNames = []string{"Early Blight", "Late Blight", "Healthy"}

// Verdict is the raw, ungated output for one image.
type Verdict struct {
	Class           string
	Confidence      float64
	PlantConfidence float64
}

// Scorer exposes the subset of model functionality the stub endpoint uses.
type Scorer interface {
	Score(ctx context.Context, image []byte) (Verdict, error)
}

// HashScorer derives a stable verdict from the image digest, so the same
// bytes always produce the same answer.
type HashScorer struct{}

func (HashScorer) Score(ctx context.Context, image []byte) (Verdict, error) {
	if err := ctx.Err(); err != nil {
		return Verdict{}, err
	}
	sum := sha1.Sum(image)
	return Verdict{
		Class:           ClassNames[int(sum[0])%len(ClassNames)],
		Confidence:      0.5 + 0.5*unit(sum[1:3]),
		PlantConfidence: 0.2 + 0.8*unit(sum[3:5]),
	}, nil
}

// unit maps two bytes onto [0, 1].
func unit(b []byte) float64 {
	return float64(binary.BigEndian.Uint16(b)) / 0xFFFF
}
