package pipeline

import "strings"

type Outcome int

const (
	OutcomeProcessing Outcome = iota
	OutcomeCompleted
	OutcomeFailed
)

func (o Outcome) Status() Status {
	switch o {
	case OutcomeCompleted:
		return StatusCompleted
	case OutcomeFailed:
		return StatusFailed
	default:
		return StatusProcessing
	}
}

func (o Outcome) String() string { return string(o.Status()) }

// providerStates maps every state name the image providers report onto an
// outcome. Prefixed forms (BATCH_STATE_, JOB_STATE_, STATE_) are stripped
// before lookup.
var providerStates = map[string]Outcome{
	"PENDING":     OutcomeProcessing,
	"QUEUED":      OutcomeProcessing,
	"RUNNING":     OutcomeProcessing,
	"PROCESSING":  OutcomeProcessing,
	"IN_PROGRESS": OutcomeProcessing,
	"UNSPECIFIED": OutcomeProcessing,
	"PAUSED":      OutcomeProcessing,
	"CANCELLING":  OutcomeProcessing,
	"SUCCEEDED":   OutcomeCompleted,
	"SUCCESS":     OutcomeCompleted,
	"COMPLETED":   OutcomeCompleted,
	"DONE":        OutcomeCompleted,
	"FAILED":      OutcomeFailed,
	"FAILURE":     OutcomeFailed,
	"ERROR":       OutcomeFailed,
	"CANCELLED":   OutcomeFailed,
	"CANCELED":    OutcomeFailed,
	"EXPIRED":     OutcomeFailed,
}

var statePrefixes = []string{"BATCH_STATE_", "JOB_STATE_", "STATE_"}

// TranslateState maps a provider state to an outcome and reports whether
// the state was recognized. Unknown states keep the job processing.
func TranslateState(state string) (Outcome, bool) {
	s := strings.ToUpper(strings.TrimSpace(state))
	s = strings.ReplaceAll(s, "-", "_")
	for _, p := range statePrefixes {
		if strings.HasPrefix(s, p) {
			s = strings.TrimPrefix(s, p)
			break
		}
	}
	o, ok := providerStates[s]
	if !ok {
		return OutcomeProcessing, false
	}
	return o, true
}
