package denial

import (
	"sort"
	"time"

	"github.com/rcm/rcm/internal/platform/apperr"
)

var transitions = map[Status][]Status{
	StatusNew:          {StatusReviewing, StatusAppealing, StatusWrittenOff},
	StatusReviewing:    {StatusAppealing, StatusCorrecting, StatusWrittenOff},
	StatusAppealing:    {StatusResolved, StatusNew, StatusWrittenOff},
	StatusCorrecting:   {StatusResubmitting, StatusWrittenOff},
	StatusResubmitting: {StatusResolved, StatusNew, StatusWrittenOff},
	StatusResolved:     nil,
	StatusWrittenOff:   nil,
}

// CanTransition reports whether the lifecycle table allows from -> to.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the targets reachable from s.
func AllowedTransitions(s Status) []Status {
	return append([]Status(nil), transitions[s]...)
}

// checkTransition validates a user-requested status change. Staying in the
// same non-terminal state is allowed and reported as changed=false.
func checkTransition(from, to Status) (changed bool, err error) {
	if !to.Valid() {
		return false, apperr.Invalid("target_status", "unknown status "+string(to))
	}
	if from.IsTerminal() {
		return false, apperr.InvalidTransition("denial", string(from), string(to))
	}
	if from == to {
		return false, nil
	}
	if !CanTransition(from, to) {
		return false, apperr.InvalidTransition("denial", string(from), string(to))
	}
	return true, nil
}

// AppealEvent is an appeal lifecycle change that drives the parent denial.
type AppealEvent string

const (
	AppealGenerated AppealEvent = "generated"
	AppealWon       AppealEvent = "won"
	AppealPartial   AppealEvent = "partial"
	AppealDenied    AppealEvent = "denied"
)

// ApplyAppealEvent maps an appeal event onto the denial status it implies.
// Appeal events are accepted from any non-terminal status, since a denial in
// correcting or resubmitting may still be appealed.
func ApplyAppealEvent(from Status, ev AppealEvent) (to Status, resolution *string, err error) {
	switch ev {
	case AppealGenerated:
		to = StatusAppealing
	case AppealWon:
		to = StatusResolved
		r := ResolutionAppealWon
		resolution = &r
	case AppealPartial:
		to = StatusReviewing
	case AppealDenied:
		to = StatusNew
	default:
		return from, nil, apperr.Invalid("appeal_event", "unknown event "+string(ev))
	}
	if from.IsTerminal() {
		return from, nil, apperr.InvalidTransition("denial", string(from), string(to))
	}
	return to, resolution, nil
}

// ComputePriority buckets days until the appeal deadline. Past-due denials
// are critical; denials without a deadline are low.
func ComputePriority(days *int) Priority {
	switch {
	case days == nil:
		return PriorityLow
	case *days <= 3:
		return PriorityCritical
	case *days <= 7:
		return PriorityHigh
	case *days <= 21:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// SortByUrgency orders denials by priority bucket, then nearest deadline,
// then larger denied amount. Amount never moves a denial across buckets.
func SortByUrgency(ds []*Denial, today time.Time) {
	sort.SliceStable(ds, func(i, j int) bool {
		a, b := ds[i], ds[j]
		if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
			return ra < rb
		}
		da, db := a.DaysUntilDeadline(today), b.DaysUntilDeadline(today)
		switch {
		case da != nil && db == nil:
			return true
		case da == nil && db != nil:
			return false
		case da != nil && db != nil && *da != *db:
			return *da < *db
		}
		if c := a.DeniedAmount.Cmp(b.DeniedAmount); c != 0 {
			return c > 0
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}
