package pipeline

// State is a step of one orchestration run.
type State string

const (
	StateRequested       State = "requested"
	StateTextGenerating  State = "text_generating"
	StateImageGenerating State = "image_generating"
	StateImageSkipped    State = "image_skipped"
	StateComposing       State = "composing"
	StatePersisting      State = "persisting"
	StateCompleted       State = "completed"
	StateFailed          State = "failed"
)

// Percentage is the progress reported on entering s. Failed keeps the
// percentage of the step that failed and reports -1 here.
func (s State) Percentage() int {
	switch s {
	case StateRequested:
		return 0
	case StateTextGenerating:
		return 10
	case StateImageGenerating, StateImageSkipped:
		return 40
	case StateComposing:
		return 70
	case StatePersisting:
		return 90
	case StateCompleted:
		return 100
	default:
		return -1
	}
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// ProgressFunc observes state transitions. It is called synchronously on
// the run's goroutine.
type ProgressFunc func(state State, percentage int, message string)

func nopProgress(State, int, string) {}
