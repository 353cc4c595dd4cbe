package meta

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fedus/safe-crossing-cf/internal/domain/vote"
)

func result(r vote.Result) *vote.Result {
	return &r
}

func TestDeltaFor(t *testing.T) {
	tests := []struct {
		name   string
		ballot vote.Ballot
		want   Delta
	}{
		{
			name:   "below the threshold",
			ballot: vote.Ballot{FirstVote: true, PriorTotal: 2, PreviousResult: result(vote.RESULT_OK), Result: vote.RESULT_TIE},
			want:   Delta{},
		},
		{
			name:   "fifth vote",
			ballot: vote.Ballot{FirstVote: true, PriorTotal: 4, PreviousResult: result(vote.RESULT_OK), Result: vote.RESULT_TIE},
			want:   Delta{CrossingsWithEnoughVotes: 1, Tie: 1},
		},
		{
			name:   "fifth vote without a result change",
			ballot: vote.Ballot{FirstVote: true, PriorTotal: 4, PreviousResult: result(vote.RESULT_OK), Result: vote.RESULT_OK},
			want:   Delta{CrossingsWithEnoughVotes: 1, Ok: 1},
		},
		{
			name:   "revision at four votes does not cross the threshold",
			ballot: vote.Ballot{PriorTotal: 4, PreviousResult: result(vote.RESULT_OK), Result: vote.RESULT_TIE},
			want:   Delta{},
		},
		{
			name:   "sixth vote flipping the result",
			ballot: vote.Ballot{FirstVote: true, PriorTotal: 5, PreviousResult: result(vote.RESULT_TIE), Result: vote.RESULT_OK},
			want:   Delta{Tie: -1, Ok: 1},
		},
		{
			name:   "revision flipping to the zero category",
			ballot: vote.Ballot{PriorTotal: 7, PreviousResult: result(vote.RESULT_OK), Result: vote.RESULT_NOT_SURE},
			want:   Delta{Ok: -1, NotSure: 1},
		},
		{
			name:   "revision flipping from the zero category",
			ballot: vote.Ballot{PriorTotal: 7, PreviousResult: result(vote.RESULT_NOT_SURE), Result: vote.RESULT_TOO_CLOSE},
			want:   Delta{NotSure: -1, TooClose: 1},
		},
		{
			name:   "decided without a stored result",
			ballot: vote.Ballot{PriorTotal: 7, Result: vote.RESULT_TOO_CLOSE},
			want:   Delta{},
		},
		{
			name:   "decided and unchanged",
			ballot: vote.Ballot{FirstVote: true, PriorTotal: 9, PreviousResult: result(vote.RESULT_OK), Result: vote.RESULT_OK},
			want:   Delta{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeltaFor(tt.ballot)
			assert.Equal(t, tt.want, got)
			// Every delta keeps the sum-of-four invariant
			assert.Equal(t, got.CrossingsWithEnoughVotes, got.NotSure+got.Ok+got.TooClose+got.Tie)
		})
	}
}

func TestAggregate_ApplyAndCheck(t *testing.T) {
	var agg Aggregate
	agg.Apply(Delta{CrossingsWithEnoughVotes: 1, Tie: 1})
	agg.Apply(Delta{Tie: -1, TooClose: 1})
	assert.Equal(t, Aggregate{CrossingsWithEnoughVotes: 1, TooClose: 1}, agg)
	assert.Equal(t, 1, agg.Of(vote.RESULT_TOO_CLOSE))
	assert.NoError(t, agg.Check())

	agg.Apply(Delta{Ok: 1})
	assert.Equal(t, InvariantViolation{Sum: 2, CrossingsWithEnoughVotes: 1}, agg.Check())
}

func TestRecompute(t *testing.T) {
	var r Recompute
	r.Add(4, result(vote.RESULT_OK))
	r.Add(5, result(vote.RESULT_OK))
	r.Add(12, result(vote.RESULT_TIE))
	r.Add(6, nil)
	assert.Equal(t, Aggregate{CrossingsWithEnoughVotes: 2, Ok: 1, Tie: 1}, r.Aggregate())
}

func TestDelta_IsZero(t *testing.T) {
	assert.True(t, Delta{}.IsZero())
	assert.False(t, Delta{Tie: -1, Ok: 1}.IsZero())
}
