package model

import "time"

// Position is an image-space coordinate in pixels.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Keypoint struct {
	Part     string   `json:"part,omitempty"`
	Position Position `json:"position"`
	Score    float64  `json:"score" validate:"gte=0,lte=1"`
}

// Pose is one detected body. Keypoints follow the PoseNet part order, so
// index 0 is the nose and 1/2 are the left and right eye.
type Pose struct {
	Score     float64    `json:"score" validate:"gte=0,lte=1"`
	Keypoints []Keypoint `json:"keypoints" validate:"dive"`
}

// Frame is the pose-estimation result for one video frame.
type Frame struct {
	Poses     []Pose `json:"poses" validate:"dive"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

type Sample struct {
	LengthEyes   float64 `json:"length_eyes"`
	Score        float64 `json:"score"`
	TriangleArea float64 `json:"triangle_area"`
}

type AlertState string

const (
	AlertInactive AlertState = "inactive"
	AlertActive   AlertState = "active"
)

// Snapshot is the published, read-only view of the tracker after a frame.
type Snapshot struct {
	TimeUnix      int64      `json:"timestamp"`
	History       []int      `json:"history"`
	AreaHistory   []int      `json:"area_history"`
	Baseline      *float64   `json:"baseline"`
	State         AlertState `json:"alert_state"`
	WindowFrames  int        `json:"window_frames"`
	WindowSamples int        `json:"window_samples"`
	Frames        int64      `json:"frames_total"`
	Windows       int64      `json:"windows_total"`
	Alerts        int64      `json:"alerts_total"`
}

// Last returns the most recent smoothed value.
func (s Snapshot) Last() (int, bool) {
	if len(s.History) == 0 {
		return 0, false
	}
	return s.History[len(s.History)-1], true
}

type AlertEvent struct {
	ID       string    `json:"id"`
	Value    int       `json:"value"`
	Baseline float64   `json:"baseline"`
	Window   int64     `json:"window"`
	Sound    string    `json:"sound,omitempty"`
	Time     time.Time `json:"time"`
}
