// meta holds the global aggregate over all crossings that have received enough votes to count
// as decided, and the deltas that move it when a crossing's result changes.
package meta

import (
	"fmt"

	"github.com/fedus/safe-crossing-cf/internal/domain/vote"
)

// DecidedThreshold is the number of votes at which a crossing starts counting towards the Aggregate
const DecidedThreshold = 5

// Aggregate is the singleton summary document.
//
// Invariant: NotSure + Ok + TooClose + Tie == CrossingsWithEnoughVotes
type Aggregate struct {
	CrossingsWithEnoughVotes int `json:"crossingsWithEnoughVotes"`
	NotSure                  int `json:"votesNotSure"`
	Ok                       int `json:"votesOk"`
	TooClose                 int `json:"votesTooClose"`
	Tie                      int `json:"votesTie"`
}

// Of returns the counter for a given result
func (a *Aggregate) Of(r vote.Result) int {
	switch r {
	case vote.RESULT_NOT_SURE:
		return a.NotSure
	case vote.RESULT_OK:
		return a.Ok
	case vote.RESULT_TOO_CLOSE:
		return a.TooClose
	case vote.RESULT_TIE:
		return a.Tie
	default:
		return 0
	}
}

// Apply adds a Delta to the aggregate in place
func (a *Aggregate) Apply(d Delta) {
	a.CrossingsWithEnoughVotes += d.CrossingsWithEnoughVotes
	a.NotSure += d.NotSure
	a.Ok += d.Ok
	a.TooClose += d.TooClose
	a.Tie += d.Tie
}

// Check returns an InvariantViolation if the category counters do not sum to the decided count
func (a *Aggregate) Check() error {
	sum := a.NotSure + a.Ok + a.TooClose + a.Tie
	if sum != a.CrossingsWithEnoughVotes {
		return InvariantViolation{Sum: sum, CrossingsWithEnoughVotes: a.CrossingsWithEnoughVotes}
	}
	return nil
}

// Delta is a set of increments to apply atomically to the Aggregate
type Delta struct {
	CrossingsWithEnoughVotes int
	NotSure                  int
	Ok                       int
	TooClose                 int
	Tie                      int
}

func (d Delta) IsZero() bool {
	return d == Delta{}
}

func (d Delta) add(r vote.Result, n int) Delta {
	switch r {
	case vote.RESULT_NOT_SURE:
		d.NotSure += n
	case vote.RESULT_OK:
		d.Ok += n
	case vote.RESULT_TOO_CLOSE:
		d.TooClose += n
	case vote.RESULT_TIE:
		d.Tie += n
	}
	return d
}

// DeltaFor derives the Aggregate change caused by a ballot, purely from the result transition edge.
//
//  - first vote taking the crossing to the threshold: the crossing becomes decided under its new result
//  - already decided and the result moved from a defined old result: old -1, new +1
//  - anything else, including every crossing below the threshold: no change
func DeltaFor(b vote.Ballot) Delta {
	var d Delta
	switch {
	case b.FirstVote && b.PriorTotal == DecidedThreshold-1:
		d.CrossingsWithEnoughVotes = 1
		d = d.add(b.Result, 1)
	case b.PriorTotal >= DecidedThreshold && b.ResultChanged():
		d = d.add(*b.PreviousResult, -1).add(b.Result, 1)
	}
	return d
}

// Recompute builds the Aggregate from scratch over a set of (total, result) pairs. Used for audits only;
// the live Aggregate is only ever moved by Deltas.
type Recompute struct {
	agg Aggregate
}

// Add folds a single crossing into the recomputation
func (r *Recompute) Add(total int, result *vote.Result) {
	if total < DecidedThreshold || result == nil {
		return
	}
	r.agg.CrossingsWithEnoughVotes++
	r.agg.Apply(Delta{}.add(*result, 1))
}

func (r *Recompute) Aggregate() Aggregate {
	return r.agg
}

// <-- Errors

// InvariantViolation is returned when the Aggregate's counters are inconsistent
type InvariantViolation struct {
	Sum                      int
	CrossingsWithEnoughVotes int
}

func (e InvariantViolation) Error() string {
	return fmt.Sprintf("Meta counters sum to [%d] but crossingsWithEnoughVotes is [%d]", e.Sum, e.CrossingsWithEnoughVotes)
}

//     Errors -->
