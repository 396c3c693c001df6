package quest

import (
	"sort"

	apperr "github.com/loreforge/loreforge/internal/errors"
)

// Status represents the lifecycle state of a quest or side quest
type Status string

const (
	StatusNotStarted Status = "not-started"
	StatusAvailable  Status = "available"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
	StatusCancelled  Status = "cancelled"
	StatusRemoved    Status = "removed"
)

// Event is a requested lifecycle transition
type Event string

const (
	EventActivate Event = "activate"
	EventReject   Event = "reject"
	EventComplete Event = "complete"
	EventCancel   Event = "cancel"
	EventRemove   Event = "remove"
)

// transitions is the closed edge set. Anything not listed here is an
// invalid transition and leaves the record unchanged.
var transitions = map[Status]map[Event]Status{
	StatusNotStarted: {
		EventActivate: StatusInProgress,
		EventReject:   StatusRejected,
	},
	StatusAvailable: {
		EventActivate: StatusInProgress,
	},
	StatusInProgress: {
		EventComplete: StatusCompleted,
		EventCancel:   StatusCancelled,
	},
	StatusRejected: {
		EventRemove: StatusRemoved,
	},
	StatusCancelled: {
		EventRemove: StatusRemoved,
	},
}

// Next returns the status reached by applying ev to current
func Next(current Status, ev Event) (Status, error) {
	if edges, ok := transitions[current]; ok {
		if next, ok := edges[ev]; ok {
			return next, nil
		}
	}
	return current, apperr.InvalidTransitionf("quest cannot go from %q via %q", current, ev).
		WithMeta("status", string(current)).
		WithMeta("event", string(ev))
}

// Record is a quest or side-quest entry. Side quests follow the same
// state machine independently of their parent.
type Record struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      Status    `json:"status"`
	SideQuests  []*Record `json:"side_quests,omitempty"`
}

// Apply transitions the record in place. On error the record is unchanged.
func (r *Record) Apply(ev Event) error {
	next, err := Next(r.Status, ev)
	if err != nil {
		return err
	}
	r.Status = next
	return nil
}

// Clone returns a deep copy of the record
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.SideQuests != nil {
		out.SideQuests = make([]*Record, len(r.SideQuests))
		for i, sq := range r.SideQuests {
			out.SideQuests[i] = sq.Clone()
		}
	}
	return &out
}

// Ledger maps quest id to its record
type Ledger map[string]*Record

// Find locates a record by id, searching side quests as well
func (l Ledger) Find(id string) *Record {
	if r, ok := l[id]; ok {
		return r
	}
	for _, r := range l {
		for _, sq := range r.SideQuests {
			if sq.ID == id {
				return sq
			}
		}
	}
	return nil
}

// Apply transitions the identified quest or side quest. A record that
// reaches the removed state is deleted from the ledger outright.
func (l Ledger) Apply(id string, ev Event) (Status, error) {
	rec := l.Find(id)
	if rec == nil {
		return "", apperr.NotFoundf("quest %q not found", id).WithMeta("quest_id", id)
	}
	if err := rec.Apply(ev); err != nil {
		return rec.Status, err
	}
	if rec.Status == StatusRemoved {
		l.remove(id)
	}
	return rec.Status, nil
}

func (l Ledger) remove(id string) {
	if _, ok := l[id]; ok {
		delete(l, id)
		return
	}
	for _, r := range l {
		for i, sq := range r.SideQuests {
			if sq.ID == id {
				r.SideQuests = append(r.SideQuests[:i], r.SideQuests[i+1:]...)
				return
			}
		}
	}
}

// AutoActivate promotes the first not-started quest (by id order) to
// in-progress when no quest is currently in progress or available, so
// participants always have something actionable. Returns the activated
// record, or nil when nothing changed.
func (l Ledger) AutoActivate() *Record {
	for _, r := range l {
		if r.Status == StatusInProgress || r.Status == StatusAvailable {
			return nil
		}
	}

	ids := make([]string, 0, len(l))
	for id, r := range l {
		if r.Status == StatusNotStarted {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	sort.Strings(ids)

	rec := l[ids[0]]
	rec.Status = StatusInProgress
	return rec
}

// Cleanup removes every record currently in a terminal negative state
// (rejected or cancelled), including side quests. Returns removed ids.
func (l Ledger) Cleanup() []string {
	var removed []string
	for id, r := range l {
		kept := r.SideQuests[:0]
		for _, sq := range r.SideQuests {
			if sq.Status == StatusRejected || sq.Status == StatusCancelled {
				removed = append(removed, sq.ID)
			} else {
				kept = append(kept, sq)
			}
		}
		r.SideQuests = kept
		if r.Status == StatusRejected || r.Status == StatusCancelled {
			removed = append(removed, id)
			delete(l, id)
		}
	}
	sort.Strings(removed)
	return removed
}

// Clone returns a deep copy of the ledger
func (l Ledger) Clone() Ledger {
	if l == nil {
		return nil
	}
	out := make(Ledger, len(l))
	for id, r := range l {
		out[id] = r.Clone()
	}
	return out
}
