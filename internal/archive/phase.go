package archive

// Phase is a step of the two-phase archive protocol:
// discover, prepare, validate, then commit or abort.
type Phase string

const (
	PhaseDiscover Phase = "discover"
	PhasePrepare  Phase = "prepare"
	PhaseValidate Phase = "validate"
	PhaseCommit   Phase = "commit"
	PhaseAbort    Phase = "abort"
)

// Status is the per-capability outcome of an update.
type Status string

const (
	StatusCreate Status = "create"
	StatusUpdate Status = "update"
)
