package pipeline

// State is a step of a pipeline run.
type State int

const (
	// Idle means no run is in progress
	Idle State = iota

	// StagingSource means the comparison database holding the current schema is being prepared
	StagingSource

	// StagingTarget means the comparison database holding the desired schema is being prepared
	StagingTarget

	// Diffing means the diff engine is running
	Diffing

	// Applying means the migration is being loaded into the real target database
	Applying

	// Succeeded means the run completed
	Succeeded

	// FailedRecoverable means the run failed but the caller may try again on the next trigger
	FailedRecoverable

	// FailedFatal means the run failed and the caller should give up
	FailedFatal
)

var stateNames = map[State]string{
	Idle:              "idle",
	StagingSource:     "staging source",
	StagingTarget:     "staging target",
	Diffing:           "diffing",
	Applying:          "applying",
	Succeeded:         "succeeded",
	FailedRecoverable: "failed (recoverable)",
	FailedFatal:       "failed (fatal)",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}

	return "unknown"
}

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == Succeeded || s == FailedRecoverable || s == FailedFatal
}
