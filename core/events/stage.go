package events

import "time"

const (
	KindStageStarted   Kind = "stage.started"
	KindStageCompleted Kind = "stage.completed"
	KindStageFailed    Kind = "stage.failed"
)

type StageStarted struct {
	Base
	Stage string
}

func NewStageStarted(turn Turn, stage string) StageStarted {
	return StageStarted{Base: NewBase(KindStageStarted, turn), Stage: stage}
}

type StageCompleted struct {
	Base
	Stage    string
	Duration time.Duration
}

func NewStageCompleted(turn Turn, stage string, duration time.Duration) StageCompleted {
	return StageCompleted{Base: NewBase(KindStageCompleted, turn), Stage: stage, Duration: duration}
}

// StageFailed reports a stage error. Degraded is true when the run
// continued with a fallback value.
type StageFailed struct {
	Base
	Stage    string
	Err      error
	Degraded bool
}

func NewStageFailed(turn Turn, stage string, err error, degraded bool) StageFailed {
	return StageFailed{Base: NewBase(KindStageFailed, turn), Stage: stage, Err: err, Degraded: degraded}
}
