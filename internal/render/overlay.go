package render

import (
	"math"

	"github.com/seven320/pose-net-correction/internal/model"
	"github.com/seven320/pose-net-correction/internal/settings"
)

// PartNames is the PoseNet keypoint order.
var PartNames = []string{
	"nose", "leftEye", "rightEye", "leftEar", "rightEar",
	"leftShoulder", "rightShoulder", "leftElbow", "rightElbow",
	"leftWrist", "rightWrist", "leftHip", "rightHip",
	"leftKnee", "rightKnee", "leftAnkle", "rightAnkle",
}

var connectedParts = [][2]string{
	{"leftHip", "leftShoulder"}, {"leftElbow", "leftShoulder"},
	{"leftElbow", "leftWrist"}, {"leftHip", "leftKnee"},
	{"leftKnee", "leftAnkle"}, {"rightHip", "rightShoulder"},
	{"rightElbow", "rightShoulder"}, {"rightElbow", "rightWrist"},
	{"rightHip", "rightKnee"}, {"rightKnee", "rightAnkle"},
	{"leftShoulder", "rightShoulder"}, {"leftHip", "rightHip"},
}

var partIndex = func() map[string]int {
	m := make(map[string]int, len(PartNames))
	for i, n := range PartNames {
		m[n] = i
	}
	return m
}()

type Segment struct {
	From model.Keypoint `json:"from"`
	To   model.Keypoint `json:"to"`
}

type Box struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

type PoseOverlay struct {
	Keypoints []model.Keypoint `json:"keypoints,omitempty"`
	Skeleton  []Segment        `json:"skeleton,omitempty"`
	Box       *Box             `json:"bounding_box,omitempty"`
}

type Frame struct {
	ShowVideo bool          `json:"show_video"`
	Poses     []PoseOverlay `json:"poses"`
}

// Overlay turns detected poses into drawing primitives according to the
// panel. Poses under the pose confidence are skipped entirely.
func Overlay(poses []model.Pose, p settings.Panel) Frame {
	out := Frame{ShowVideo: p.Output.ShowVideo, Poses: []PoseOverlay{}}
	minPart := p.Detection.MinPartConfidence

	for _, pose := range poses {
		if pose.Score < p.Detection.MinPoseConfidence {
			continue
		}
		kps := named(pose.Keypoints)

		var po PoseOverlay
		if p.Output.ShowPoints {
			for _, kp := range kps {
				if kp.Score >= minPart {
					po.Keypoints = append(po.Keypoints, kp)
				}
			}
		}
		if p.Output.ShowSkeleton {
			po.Skeleton = AdjacentKeypoints(kps, minPart)
		}
		if p.Output.ShowBoundingBox && len(kps) > 0 {
			b := BoundingBox(kps)
			po.Box = &b
		}
		out.Poses = append(out.Poses, po)
	}
	return out
}

// named fills missing part names from the canonical order.
func named(kps []model.Keypoint) []model.Keypoint {
	out := make([]model.Keypoint, len(kps))
	copy(out, kps)
	for i := range out {
		if out[i].Part == "" && i < len(PartNames) {
			out[i].Part = PartNames[i]
		}
	}
	return out
}

func AdjacentKeypoints(kps []model.Keypoint, minConfidence float64) []Segment {
	byPart := make(map[string]model.Keypoint, len(kps))
	for _, kp := range kps {
		if _, ok := partIndex[kp.Part]; ok {
			byPart[kp.Part] = kp
		}
	}

	var segs []Segment
	for _, pair := range connectedParts {
		a, okA := byPart[pair[0]]
		b, okB := byPart[pair[1]]
		if !okA || !okB {
			continue
		}
		if a.Score < minConfidence || b.Score < minConfidence {
			continue
		}
		segs = append(segs, Segment{From: a, To: b})
	}
	return segs
}

func BoundingBox(kps []model.Keypoint) Box {
	b := Box{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
	for _, kp := range kps {
		b.MinX = math.Min(b.MinX, kp.Position.X)
		b.MinY = math.Min(b.MinY, kp.Position.Y)
		b.MaxX = math.Max(b.MaxX, kp.Position.X)
		b.MaxY = math.Max(b.MaxY, kp.Position.Y)
	}
	return b
}
