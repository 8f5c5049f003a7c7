package job

// State is a job lifecycle state.
type State string

const (
	StateQueued      State = "queued"
	StateResolving   State = "resolving"
	StateDownloading State = "downloading"
	StateTranscoding State = "transcoding"
	StateUploading   State = "uploading"
	StateSucceeded   State = "succeeded"
	StateFailed      State = "failed"
	StateCancelled   State = "cancelled"
)

var pipelineOrder = map[State]int{
	StateQueued:      0,
	StateResolving:   1,
	StateDownloading: 2,
	StateTranscoding: 3,
	StateUploading:   4,
	StateSucceeded:   5,
}

// Terminal reports whether s is final.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// Processing reports whether a stage is actively working in s.
func (s State) Processing() bool {
	switch s {
	case StateResolving, StateDownloading, StateTranscoding, StateUploading:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	_, ok := pipelineOrder[s]
	return ok || s == StateFailed || s == StateCancelled
}

// canTransition enforces the job state machine edges. Cancelled additionally
// requires a prior cancel request, which the caller checks.
func canTransition(from, to State) bool {
	if from.Terminal() || !to.Valid() {
		return false
	}
	if to == StateFailed || to == StateCancelled {
		return true
	}
	fromRank, okFrom := pipelineOrder[from]
	toRank, okTo := pipelineOrder[to]
	return okFrom && okTo && toRank > fromRank
}
