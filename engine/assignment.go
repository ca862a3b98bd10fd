/*
assignment.go - Client-to-staff assignment for generated tasks

PURPOSE:
  Every generated task needs an assignee. Firms configure a default staff
  member per client (ClientStaffRelation); clients without one, or whose
  default staff member has been deactivated, get a random active member.

RESOLUTION ORDER:
  1. Relation exists and the related staff member is active -> "defined"
  2. Any active staff exist -> uniform random pick -> "random"
  3. No active staff -> no assignee, the pair is skipped

RANDOMNESS:
  The resolver draws from a RandSource so tests can pin the outcome.
  *math/rand.Rand satisfies RandSource.

SEE ALSO:
  - builder.go: Calls Resolve once per eligible (client, compliance) pair
*/
package engine

import (
	"math/rand"
	"time"
)

// AssignmentKind records how a task's assignee was chosen.
type AssignmentKind string

const (
	AssignmentDefined AssignmentKind = "defined"
	AssignmentRandom  AssignmentKind = "random"
)

// RandSource is the subset of *rand.Rand the resolver needs.
type RandSource interface {
	Intn(n int) int
}

// NewRandSource returns a time-seeded source. Not safe for concurrent use.
func NewRandSource() RandSource {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// AssignmentCounts aggregates resolutions for operator visibility.
type AssignmentCounts struct {
	Defined int
	Random  int
}

// AssignmentResolver resolves assignees for one generation run.
type AssignmentResolver struct {
	relations map[ClientID]StaffID
	active    []Staff
	byID      map[StaffID]Staff
	rnd       RandSource
	counts    AssignmentCounts
}

// NewAssignmentResolver indexes the relation table and keeps only active
// staff. A nil rnd gets a time-seeded source. When the relation table holds
// more than one row for a client, the first one wins.
func NewAssignmentResolver(relations []ClientStaffRelation, staff []Staff, rnd RandSource) *AssignmentResolver {
	if rnd == nil {
		rnd = NewRandSource()
	}
	r := &AssignmentResolver{
		relations: make(map[ClientID]StaffID, len(relations)),
		byID:      make(map[StaffID]Staff),
		rnd:       rnd,
	}
	for _, rel := range relations {
		if _, seen := r.relations[rel.ClientID]; !seen {
			r.relations[rel.ClientID] = rel.StaffID
		}
	}
	r.active = ActiveStaff(staff)
	for _, s := range r.active {
		r.byID[s.ID] = s
	}
	return r
}

// Resolve picks the assignee for one task of the given client.
func (r *AssignmentResolver) Resolve(clientID ClientID) (Staff, AssignmentKind, bool) {
	if staffID, ok := r.relations[clientID]; ok {
		if s, active := r.byID[staffID]; active {
			r.counts.Defined++
			return s, AssignmentDefined, true
		}
	}
	if len(r.active) == 0 {
		return Staff{}, "", false
	}
	r.counts.Random++
	return r.active[r.rnd.Intn(len(r.active))], AssignmentRandom, true
}

// Counts returns the resolutions made so far.
func (r *AssignmentResolver) Counts() AssignmentCounts { return r.counts }

// ActiveStaff filters the roster down to active members, preserving order.
func ActiveStaff(staff []Staff) []Staff {
	var active []Staff
	for _, s := range staff {
		if s.IsActive {
			active = append(active, s)
		}
	}
	return active
}
