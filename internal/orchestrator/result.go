package orchestrator

import (
	"errors"

	"background-picker/internal/thumbcache"
)

// ErrKnownFailure means the source failed to decode before and has not
// changed since.
var ErrKnownFailure = errors.New("source previously failed to decode")

// ErrClosed means the orchestrator shut down before the path was handled.
var ErrClosed = errors.New("orchestrator closed")

// Outcome classifies a Result.
type Outcome int

const (
	// OutcomeHit means a fresh thumbnail was already cached.
	OutcomeHit Outcome = iota
	// OutcomeGenerated means the thumbnail was rendered during this request.
	OutcomeGenerated
	// OutcomeFailed means no thumbnail is available; see Result.Err.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeHit:
		return "hit"
	case OutcomeGenerated:
		return "generated"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result reports what happened to one requested path.
type Result struct {
	// Path is the path as requested.
	Path    string
	Class   thumbcache.SizeClass
	Entry   *thumbcache.Entry
	Outcome Outcome
	// Err is set when Outcome is OutcomeFailed.
	Err error
	// StoreErr is set when the thumbnail was rendered but could not be
	// persisted. Entry is still usable for this run.
	StoreErr error
	// Coalesced is set when the result came from a render started by
	// another request.
	Coalesced bool
}

// Failed reports whether the path counts as failed for exit status
// purposes: nothing could be produced, or the produced thumbnail was not
// persisted.
func (r Result) Failed() bool {
	return r.Outcome == OutcomeFailed || r.StoreErr != nil
}

// Error returns the failure to report, or nil.
func (r Result) Error() error {
	if r.Err != nil {
		return r.Err
	}
	return r.StoreErr
}

// Stats are cumulative counters since the orchestrator was created.
type Stats struct {
	Requested     int64 `json:"requested"`
	Hits          int64 `json:"hits"`
	Generated     int64 `json:"generated"`
	Failed        int64 `json:"failed"`
	Coalesced     int64 `json:"coalesced"`
	StoreFailures int64 `json:"storeFailures"`
	// Renders counts decode attempts; with coalescing it can be lower than
	// Generated + decode failures.
	Renders int64 `json:"renders"`
}
