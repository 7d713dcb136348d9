package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/seven320/pose-net-correction/internal/model"
	"github.com/seven320/pose-net-correction/internal/signal"
	"github.com/seven320/pose-net-correction/internal/windowstats"
)

var ErrUnarmedThreshold = errors.New("cannot arm threshold: history is empty")

const (
	DefaultWindowFrames = 30
	DefaultHistoryLimit = 50
	DefaultMargin       = 5.0
)

// Alerter plays the alert sound. Calls are fire-and-forget.
type Alerter interface {
	Alert(ctx context.Context, ev model.AlertEvent)
}

type AlerterFunc func(ctx context.Context, ev model.AlertEvent)

func (f AlerterFunc) Alert(ctx context.Context, ev model.AlertEvent) { f(ctx, ev) }

type Config struct {
	WindowFrames int
	HistoryLimit int
	Margin       float64
	MinEyeScore  float64
	Sound        string
}

func DefaultConfig() Config {
	return Config{
		WindowFrames: DefaultWindowFrames,
		HistoryLimit: DefaultHistoryLimit,
		Margin:       DefaultMargin,
		MinEyeScore:  signal.MinEyeScore,
	}
}

// Result describes what happened to a single frame.
type Result struct {
	Sample   *model.Sample
	Accepted bool
	Closed   bool
	Value    int
	Reset    bool
	Alert    *model.AlertEvent
}

// Tracker owns the open window, the smoothed history and the armed
// baseline. It is not safe for concurrent use; a single frame loop drives it.
type Tracker struct {
	cfg     Config
	alerter Alerter

	eyes    *windowstats.Window
	areas   *windowstats.Window
	history *windowstats.History
	areaLog *windowstats.History

	baseline float64
	state    model.AlertState

	frames  int64
	windows int64
	alerts  int64
}

func NewTracker(cfg Config, alerter Alerter) *Tracker {
	if alerter == nil {
		alerter = AlerterFunc(func(context.Context, model.AlertEvent) {})
	}
	return &Tracker{
		cfg:     cfg,
		alerter: alerter,
		eyes:    windowstats.NewWindow(cfg.WindowFrames),
		areas:   windowstats.NewWindow(cfg.WindowFrames),
		history: windowstats.NewHistory(cfg.HistoryLimit),
		areaLog: windowstats.NewHistory(cfg.HistoryLimit),
		state:   model.AlertInactive,
	}
}

// Ingest processes one frame. A frame without a usable pose still counts
// towards window closure. ErrEmptyWindow is returned when the window closes
// with no accepted samples; the history is left untouched in that case.
func (t *Tracker) Ingest(ctx context.Context, poses []model.Pose) (Result, error) {
	var res Result
	t.frames++

	sample, err := signal.Extract(poses)
	if err == nil {
		res.Sample = &sample
		if signal.Accepted(sample, t.cfg.MinEyeScore) {
			res.Accepted = true
			t.eyes.Push(sample.LengthEyes)
			t.areas.Push(sample.TriangleArea)
		}
	}

	t.areas.Tick()
	if !t.eyes.Tick() {
		return res, nil
	}
	return t.closeWindow(ctx, res)
}

func (t *Tracker) closeWindow(ctx context.Context, res Result) (Result, error) {
	res.Closed = true
	t.windows++

	area, _ := t.areas.Reduce()
	value, err := t.eyes.Reduce()
	if err != nil {
		return res, fmt.Errorf("close window %d: %w", t.windows, err)
	}

	res.Value = value
	t.areaLog.Append(area)
	res.Reset = t.history.Append(value)

	if ev, fired := t.evaluate(); fired {
		res.Alert = &ev
		t.alerter.Alert(ctx, ev)
	}
	return res, nil
}

func (t *Tracker) evaluate() (model.AlertEvent, bool) {
	if t.state != model.AlertActive {
		return model.AlertEvent{}, false
	}
	last, ok := t.history.Last()
	if !ok || float64(last) <= t.baseline {
		return model.AlertEvent{}, false
	}

	t.alerts++
	return model.AlertEvent{
		ID:       uuid.NewString(),
		Value:    last,
		Baseline: t.baseline,
		Window:   t.windows,
		Sound:    t.cfg.Sound,
		Time:     time.Now(),
	}, true
}

// Arm sets the baseline to the latest smoothed value plus the margin and
// activates alerting. There is no way back to inactive.
func (t *Tracker) Arm() (float64, error) {
	last, ok := t.history.Last()
	if !ok {
		return 0, ErrUnarmedThreshold
	}
	t.baseline = float64(last) + t.cfg.Margin
	t.state = model.AlertActive
	return t.baseline, nil
}

func (t *Tracker) Snapshot() model.Snapshot {
	snap := model.Snapshot{
		TimeUnix:      time.Now().Unix(),
		History:       t.history.Values(),
		AreaHistory:   t.areaLog.Values(),
		State:         t.state,
		WindowFrames:  t.eyes.Frames(),
		WindowSamples: t.eyes.Size(),
		Frames:        t.frames,
		Windows:       t.windows,
		Alerts:        t.alerts,
	}
	if t.state == model.AlertActive {
		b := t.baseline
		snap.Baseline = &b
	}
	return snap
}
