package signal

import (
	"errors"
	"math"

	"github.com/seven320/pose-net-correction/internal/model"
)

const (
	noseIndex     = 0
	leftEyeIndex  = 1
	rightEyeIndex = 2

	// MinEyeScore is the combined eye confidence a sample must exceed.
	MinEyeScore = 0.5
)

var (
	ErrNoPose           = errors.New("no pose detected")
	ErrMissingKeypoints = errors.New("pose is missing nose or eye keypoints")
)

// Extract derives a sample from the highest-scoring pose of a frame.
func Extract(poses []model.Pose) (model.Sample, error) {
	if len(poses) == 0 {
		return model.Sample{}, ErrNoPose
	}

	best := poses[0]
	for _, p := range poses[1:] {
		if p.Score > best.Score {
			best = p
		}
	}
	if len(best.Keypoints) <= rightEyeIndex {
		return model.Sample{}, ErrMissingKeypoints
	}

	nose := best.Keypoints[noseIndex]
	left := best.Keypoints[leftEyeIndex]
	right := best.Keypoints[rightEyeIndex]

	return model.Sample{
		LengthEyes:   Distance(left.Position, right.Position),
		Score:        left.Score * right.Score,
		TriangleArea: TriangleArea(nose.Position, left.Position, right.Position),
	}, nil
}

// Accepted reports whether s passes the confidence gate.
func Accepted(s model.Sample, minScore float64) bool {
	return s.Score > minScore
}

func Distance(a, b model.Position) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// TriangleArea is the unsigned area spanned by the nose and both eyes.
func TriangleArea(nose, left, right model.Position) float64 {
	return math.Abs(0.5 * ((left.X-nose.X)*(right.Y-nose.Y) - (right.X-nose.X)*(left.Y-nose.Y)))
}
