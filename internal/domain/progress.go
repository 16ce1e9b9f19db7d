package domain

import "time"

// Action is a client-reported interaction with a topic outside of quiz
// attempts (reading material, loading content, and so on).
type Action string

const (
	ActionStarted       Action = "started"
	ActionAccessed      Action = "accessed"
	ActionContentLoaded Action = "content_loaded"
	ActionCompleted     Action = "completed"
	ActionPaused        Action = "paused"
	ActionResumed       Action = "resumed"
	ActionExited        Action = "exited"
)

// actionFloors maps each progress-moving action to the minimum percentage
// it guarantees. Actions absent from the table only refresh timestamps.
var actionFloors = map[Action]int{
	ActionStarted:       25,
	ActionAccessed:      50,
	ActionContentLoaded: 75,
	ActionCompleted:     100,
}

// resumeSeedPercentage is the percentage a bare "resumed" signal seeds
// when it is the very first interaction with a topic.
const resumeSeedPercentage = 10

// ParseAction validates a client-supplied action string.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionStarted, ActionAccessed, ActionContentLoaded, ActionCompleted,
		ActionPaused, ActionResumed, ActionExited:
		return a, nil
	default:
		return "", ErrUnknownAction
	}
}

// Apply mutates the progress record for one manual action. The percentage
// never regresses: floors raise it via max(current, floor), an override is
// honored only when it exceeds the current value, and "completed" always
// lands on 100. firstInteraction marks a record created by this very
// interaction, which seeds the resume percentage.
func (p *TopicProgress) Apply(action Action, override *int, firstInteraction bool, now time.Time) error {
	if override != nil && (*override < 0 || *override > 100) {
		return ErrInvalidPercentage
	}

	p.LastAccessedAt = now

	// A record created by this interaction carries its creation time as
	// the started timestamp, even when the percentage stays at 0.
	if firstInteraction && p.StartedAt == nil {
		t := now
		p.StartedAt = &t
	}
	if action == ActionResumed && p.StartedAt == nil {
		t := now
		p.StartedAt = &t
	}
	if firstInteraction && action == ActionResumed && p.Percentage == 0 {
		p.Percentage = resumeSeedPercentage
	}
	if floor, ok := actionFloors[action]; ok && floor > p.Percentage {
		p.Percentage = floor
	}
	if override != nil && *override > p.Percentage {
		p.Percentage = *override
	}
	if action == ActionCompleted {
		p.Percentage = 100
	}

	p.touch(now)
	return nil
}

// AdvanceBy raises the percentage by delta, capped at 100. Used when a
// quiz attempt on the topic is evaluated.
func (p *TopicProgress) AdvanceBy(delta int, now time.Time) {
	p.LastAccessedAt = now
	p.Percentage += delta
	if p.Percentage > 100 {
		p.Percentage = 100
	}
	p.touch(now)
}

// touch maintains the started/completed timestamps implied by the current
// percentage.
func (p *TopicProgress) touch(now time.Time) {
	if p.Percentage > 0 && p.StartedAt == nil {
		t := now
		p.StartedAt = &t
	}
	if p.Percentage >= 100 && p.CompletedAt == nil {
		t := now
		p.CompletedAt = &t
	}
}
