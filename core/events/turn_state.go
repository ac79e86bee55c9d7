package events

const (
	// KindTurnStarted identifies the start of a run.
	KindTurnStarted Kind = "turn_state.started"
	// KindTurnCompleted identifies a run that produced audio.
	KindTurnCompleted Kind = "turn_state.completed"
	// KindTurnFailed identifies a run that ended without audio.
	KindTurnFailed Kind = "turn_state.failed"
	// KindTurnArchived identifies the end of the trailing archive step.
	KindTurnArchived Kind = "turn_state.archived"
)

type TurnStarted struct{ Base }

func NewTurnStarted(turn Turn) TurnStarted {
	return TurnStarted{Base: NewBase(KindTurnStarted, turn)}
}

// TurnCompleted carries the location of the rendered response audio.
type TurnCompleted struct {
	Base
	AudioPath string
}

func NewTurnCompleted(turn Turn, audioPath string) TurnCompleted {
	return TurnCompleted{Base: NewBase(KindTurnCompleted, turn), AudioPath: audioPath}
}

type TurnFailed struct {
	Base
	Err error
}

func NewTurnFailed(turn Turn, err error) TurnFailed {
	return TurnFailed{Base: NewBase(KindTurnFailed, turn), Err: err}
}

// TurnArchived reports the outcome of summarizing and persisting a turn.
// Saved is false when the store rejected the record.
type TurnArchived struct {
	Base
	Summary string
	Saved   bool
}

func NewTurnArchived(turn Turn, summary string, saved bool) TurnArchived {
	return TurnArchived{Base: NewBase(KindTurnArchived, turn), Summary: summary, Saved: saved}
}
