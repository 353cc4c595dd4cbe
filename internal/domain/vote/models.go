// vote holds the pure voting state machine: the categories a user can vote for, the per-crossing
// tallies, and the plurality result derived from them.
package vote

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Vote is a single user's judgement on a crossing. The numeric values are what clients send.
type Vote int

const (
	NOT_SURE Vote = iota
	OK
	TOO_CLOSE
)

var voteToString = map[Vote]string{
	NOT_SURE:  "NOT_SURE",
	OK:        "OK",
	TOO_CLOSE: "TOO_CLOSE",
}

// FromInt returns the Vote for a wire value, or InvalidVote
func FromInt(i int) (Vote, error) {
	v := Vote(i)
	if !v.Valid() {
		return 0, InvalidVote{Value: i}
	}
	return v, nil
}

func (v Vote) Valid() bool {
	_, ok := voteToString[v]
	return ok
}

func (v Vote) String() string {
	if s, ok := voteToString[v]; ok {
		return s
	}
	return fmt.Sprintf("Vote(%d)", int(v))
}

// Result is the plurality outcome of a crossing's tallies
type Result uint8

const (
	RESULT_NOT_SURE Result = iota
	RESULT_OK
	RESULT_TOO_CLOSE
	RESULT_TIE

	// Do not edit these, they are persisted
	notSure  string = "NOT_SURE"
	ok       string = "OK"
	tooClose string = "TOO_CLOSE"
	tie      string = "TIE"
)

var resultToString = map[Result]string{
	RESULT_NOT_SURE:  notSure,
	RESULT_OK:        ok,
	RESULT_TOO_CLOSE: tooClose,
	RESULT_TIE:       tie,
}

var resultToID = map[string]Result{
	notSure:  RESULT_NOT_SURE,
	ok:       RESULT_OK,
	tooClose: RESULT_TOO_CLOSE,
	tie:      RESULT_TIE,
}

// AllResults lists every Result, in declaration order
var AllResults = []Result{RESULT_NOT_SURE, RESULT_OK, RESULT_TOO_CLOSE, RESULT_TIE}

func (r Result) String() string {
	return resultToString[r]
}

// ResultFromString parses a persisted Result
func ResultFromString(s string) (Result, error) {
	if found, ok := resultToID[s]; ok {
		return found, nil
	}
	return 0, fmt.Errorf("invalid result: [%s]", s)
}

// MarshalJSON marshals the enum as a quoted json string
func (r Result) MarshalJSON() ([]byte, error) {
	buffer := bytes.NewBufferString(`"`)
	buffer.WriteString(resultToString[r])
	buffer.WriteString(`"`)
	return buffer.Bytes(), nil
}

// UnmarshalJSON unmashals a quoted json string to the enum value
func (r *Result) UnmarshalJSON(b []byte) error {
	var j string
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	found, err := ResultFromString(j)
	if err != nil {
		return err
	}
	*r = found
	return nil
}

// Tallies counts votes per category. Used both for committed counts and for signed increments.
type Tallies struct {
	NotSure  int
	Ok       int
	TooClose int
}

func (t Tallies) Total() int {
	return t.NotSure + t.Ok + t.TooClose
}

// Of returns the count for a single category
func (t Tallies) Of(v Vote) int {
	switch v {
	case NOT_SURE:
		return t.NotSure
	case OK:
		return t.Ok
	case TOO_CLOSE:
		return t.TooClose
	default:
		return 0
	}
}

// Add returns a copy of t with delta added to the given category
func (t Tallies) Add(v Vote, delta int) Tallies {
	switch v {
	case NOT_SURE:
		t.NotSure += delta
	case OK:
		t.Ok += delta
	case TOO_CLOSE:
		t.TooClose += delta
	}
	return t
}

// Plus adds two Tallies together
func (t Tallies) Plus(other Tallies) Tallies {
	return Tallies{
		NotSure:  t.NotSure + other.NotSure,
		Ok:       t.Ok + other.Ok,
		TooClose: t.TooClose + other.TooClose,
	}
}

func (t Tallies) IsZero() bool {
	return t.NotSure == 0 && t.Ok == 0 && t.TooClose == 0
}

// ResultOf returns the category that strictly beats both others, or RESULT_TIE.
//
// This is the only place a Result is derived from counts.
func ResultOf(t Tallies) Result {
	switch {
	case t.NotSure > t.Ok && t.NotSure > t.TooClose:
		return RESULT_NOT_SURE
	case t.Ok > t.NotSure && t.Ok > t.TooClose:
		return RESULT_OK
	case t.TooClose > t.NotSure && t.TooClose > t.Ok:
		return RESULT_TOO_CLOSE
	default:
		return RESULT_TIE
	}
}

// Ballot is the outcome of planning a single vote against a crossing's committed state.
//
// It is computed from reads done inside a transaction and carries everything needed to
// issue that transaction's writes.
type Ballot struct {
	Cast Vote
	// FirstVote is true when the user had no vote on record for the crossing
	FirstVote bool
	// PriorTotal is the committed vote total before this ballot
	PriorTotal int
	// Increments holds the signed per-category counter changes, zero for a no-op revision
	Increments Tallies
	// Projected are the tallies as they will be once the ballot is written
	Projected Tallies
	// PreviousResult is the committed result, nil when it was never set
	PreviousResult *Result
	Result         Result
}

// ResultChanged is true when the projected result differs from a defined previous result
func (b *Ballot) ResultChanged() bool {
	return b.PreviousResult != nil && *b.PreviousResult != b.Result
}

// Committed is the state of a crossing as read inside a transaction
type Committed struct {
	Tallies Tallies
	Total   int
	// Result is nil when it was never set
	Result *Result
}

// PlanBallot works out what casting `cast` does to a crossing in the `committed` state, given the
// user's prior vote on it (nil if none).
func PlanBallot(prior *Vote, committed Committed, cast Vote) Ballot {
	var increments Tallies
	first := prior == nil
	switch {
	case first:
		increments = increments.Add(cast, 1)
	case *prior != cast:
		increments = increments.Add(*prior, -1).Add(cast, 1)
	}
	projected := committed.Tallies.Plus(increments)
	return Ballot{
		Cast:           cast,
		FirstVote:      first,
		PriorTotal:     committed.Total,
		Increments:     increments,
		Projected:      projected,
		PreviousResult: committed.Result,
		Result:         ResultOf(projected),
	}
}

// <-- Errors

// InvalidVote is returned when a wire value does not map to a Vote
type InvalidVote struct {
	Value int
}

func (e InvalidVote) Error() string {
	return fmt.Sprintf("Invalid vote [%d], expected one of 0 (NOT_SURE), 1 (OK), 2 (TOO_CLOSE)", e.Value)
}

//     Errors -->
