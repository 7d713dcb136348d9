package settings

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

const (
	SinglePose = "single-pose"
	MultiPose  = "multi-pose"
)

type Output struct {
	ShowVideo       bool `json:"show_video"`
	ShowSkeleton    bool `json:"show_skeleton"`
	ShowPoints      bool `json:"show_points"`
	ShowBoundingBox bool `json:"show_bounding_box"`
}

type Detection struct {
	MinPoseConfidence float64 `json:"min_pose_confidence" validate:"gte=0,lte=1"`
	MinPartConfidence float64 `json:"min_part_confidence" validate:"gte=0,lte=1"`
}

// Panel is the state of the demo's settings panel.
type Panel struct {
	Algorithm string    `json:"algorithm" validate:"required,oneof=single-pose multi-pose"`
	Detection Detection `json:"detection"`
	Output    Output    `json:"output"`
}

func Default() Panel {
	return Panel{
		Algorithm: SinglePose,
		Detection: Detection{
			MinPoseConfidence: 0.1,
			MinPartConfidence: 0.5,
		},
		Output: Output{
			ShowVideo:       true,
			ShowSkeleton:    true,
			ShowPoints:      true,
			ShowBoundingBox: true,
		},
	}
}

type Store struct {
	validate *validator.Validate

	mu    sync.RWMutex
	panel Panel
}

func NewStore(v *validator.Validate) *Store {
	if v == nil {
		v = validator.New()
	}
	return &Store{validate: v, panel: Default()}
}

func (s *Store) Get() Panel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.panel
}

// Update replaces the panel after validation. An invalid panel leaves the
// current one in place.
func (s *Store) Update(p Panel) error {
	if err := s.validate.Struct(p); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	s.mu.Lock()
	s.panel = p
	s.mu.Unlock()
	return nil
}
