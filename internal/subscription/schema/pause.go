package schema

import (
	"strings"

	dErrors "subport/pkg/domain-errors"
)

// Status values written by the fallback pause/resume strategies.
const (
	StatusPaused     = "paused"
	StatusInProgress = "in_progress"
)

// WriteTarget names the order field a pause strategy writes to.
type WriteTarget int

const (
	WriteStatus WriteTarget = iota
	WriteStage
)

// StateWrite is the single field write a strategy resolved to. The service
// applies it inside the order's transactional section.
type StateWrite struct {
	Target WriteTarget
	Value  string
}

// PauseStrategy attempts to resolve a pause or resume request against one
// engine capability. Strategies are tried in order and short-circuit on the
// first that applies.
type PauseStrategy interface {
	Name() string
	TryApply(d Descriptor, paused bool) (StateWrite, bool)
}

// actionStrategy uses an engine-exposed transition action when present.
type actionStrategy struct{}

func (actionStrategy) Name() string { return "engine_action" }

func (actionStrategy) TryApply(d Descriptor, paused bool) (StateWrite, bool) {
	candidates := []string{"pause", "suspend"}
	if !paused {
		candidates = []string{"resume", "reactivate"}
	}
	for _, action := range candidates {
		if result, ok := d.Actions[action]; ok {
			return StateWrite{Target: WriteStatus, Value: result}, true
		}
	}
	return StateWrite{}, false
}

// stageStrategy locates a stage whose label matches the requested state.
type stageStrategy struct{}

func (stageStrategy) Name() string { return "stage_transition" }

func (stageStrategy) TryApply(d Descriptor, paused bool) (StateWrite, bool) {
	labels := []string{"pause", "suspend"}
	if !paused {
		labels = []string{"progress"}
	}
	for _, stage := range d.Stages {
		label := strings.ToLower(stage.Label)
		for _, want := range labels {
			if strings.Contains(label, want) {
				return StateWrite{Target: WriteStage, Value: stage.ID}, true
			}
		}
	}
	return StateWrite{}, false
}

// statusStrategy writes a recognized value from the enumerated allowed set.
type statusStrategy struct{}

func (statusStrategy) Name() string { return "status_selection" }

func (statusStrategy) TryApply(d Descriptor, paused bool) (StateWrite, bool) {
	want := StatusPaused
	if !paused {
		want = StatusInProgress
	}
	for _, status := range d.Statuses {
		if status == want {
			return StateWrite{Target: WriteStatus, Value: want}, true
		}
	}
	return StateWrite{}, false
}

// pauseStrategies is the reference priority order: engine action first, then
// stage-based, then status-selection-based.
var pauseStrategies = []PauseStrategy{
	actionStrategy{},
	stageStrategy{},
	statusStrategy{},
}

// ResolvePausedState resolves the field write that moves the order into
// (or out of) the paused state. Pause/resume is not guaranteed on every
// integration; an unsupported error is returned when no strategy applies.
func ResolvePausedState(d Descriptor, paused bool) (StateWrite, error) {
	for _, strategy := range pauseStrategies {
		if write, ok := strategy.TryApply(d, paused); ok {
			return write, nil
		}
	}
	return StateWrite{}, dErrors.New(dErrors.CodeUnsupported, "pause/resume is not available for this subscription implementation")
}
