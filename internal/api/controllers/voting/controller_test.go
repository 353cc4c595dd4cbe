package voting

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fedus/safe-crossing-cf/internal/domain/crossing"
	"github.com/fedus/safe-crossing-cf/internal/domain/meta"
	"github.com/fedus/safe-crossing-cf/internal/domain/user"
	"github.com/fedus/safe-crossing-cf/internal/domain/vote"
	domainVoting "github.com/fedus/safe-crossing-cf/internal/domain/voting"
)

var ctx = context.Background()

func TestNew(t *testing.T) {
	assert.NotPanics(t, func() { New(&domainVoting.MockVotingService{}) })
}

func Test_handleErr(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"random errors should 500", fmt.Errorf("wtf"), 500},
		{"store errors should 500", crossing.StoreErr{Underlying: fmt.Errorf("down")}, 500},
		{"batch too large should 500", crossing.BatchTooLarge{Size: 501, Max: 500}, 500},
		{"invalid votes should 400", vote.InvalidVote{Value: 4}, 400},
		{"invalid node ids should 400", crossing.InvalidNodeId{Value: "x", Reason: "no"}, 400},
		{"invalid user ids should 400", user.InvalidId{Value: "x", Underlying: fmt.Errorf("nope")}, 400},
		{"invalid quantities should 400", domainVoting.InvalidQuantity{}, 400},
		{"missing crossings should 404", crossing.NotFound{Key: "1"}, 404},
		{"conflicts should 409", crossing.TransactionConflict{Attempts: 5}, 409},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := handleErr(tt.err)
			assert.Equal(t, tt.wantCode, got.StatusCode)
			assert.Equal(t, tt.err.Error(), got.Body.Message)
		})
	}
}

func Test_impl_InitializeUser(t *testing.T) {
	tests := []struct {
		name     string
		override func() (domainVoting.InitOutcome, error)
		want     domainVoting.InitOutcome
		wantCode int
	}{
		{"initialized", nil, domainVoting.USER_INITIALIZED, 0},
		{
			"already initialized",
			func() (domainVoting.InitOutcome, error) {
				return domainVoting.USER_ALREADY_INITIALIZED, nil
			},
			domainVoting.USER_ALREADY_INITIALIZED,
			0,
		},
		{
			"failure",
			func() (domainVoting.InitOutcome, error) {
				return "", crossing.StoreErr{Underlying: fmt.Errorf("down")}
			},
			"",
			500,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := domainVoting.MockVotingService{InitializeUserOverride: tt.override}
			c := New(&mock)
			got, err := c.InitializeUser(ctx, "0b6cc3a4-0b6f-4f0e-9d53-3c1e1f1f6b01")
			assert.Equal(t, tt.want, got)
			if tt.wantCode == 0 {
				assert.Nil(t, err)
			} else {
				assert.Equal(t, tt.wantCode, err.StatusCode)
			}
			assert.EqualValues(t, 1, mock.InitializeUserCalled)
		})
	}
}

func Test_impl_Vote(t *testing.T) {
	tests := []struct {
		name     string
		override func() error
		want     string
		wantCode int
	}{
		{"cast", nil, "Vote cast", 0},
		{
			"store failure is reported in the result",
			func() error {
				return crossing.StoreErr{Underlying: fmt.Errorf("down")}
			},
			"Failed to cast vote: Error from store: down",
			0,
		},
		{
			"missing crossing is reported in the result",
			func() error {
				return crossing.NotFound{Key: "1"}
			},
			"Failed to cast vote: Could not find crossing [1]",
			0,
		},
		{
			"conflicts are reported in the result",
			func() error {
				return crossing.TransactionConflict{Attempts: 5}
			},
			"Failed to cast vote: Transaction aborted after [5] conflicting attempts",
			0,
		},
		{
			"invalid arguments are rejected",
			func() error {
				return vote.InvalidVote{Value: 9}
			},
			"",
			400,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := domainVoting.MockVotingService{CastVoteOverride: tt.override}
			c := New(&mock)
			got, err := c.Vote(ctx, "0b6cc3a4-0b6f-4f0e-9d53-3c1e1f1f6b01", "node/1", vote.OK)
			assert.Equal(t, tt.want, got)
			if tt.wantCode == 0 {
				assert.Nil(t, err)
			} else {
				assert.Equal(t, tt.wantCode, err.StatusCode)
			}
		})
	}
}

func Test_impl_NextBatch(t *testing.T) {
	mock := domainVoting.MockVotingService{}
	c := New(&mock)
	got, err := c.NextBatch(ctx, "0b6cc3a4-0b6f-4f0e-9d53-3c1e1f1f6b01", 1, nil)
	assert.Nil(t, err)
	if assert.Len(t, got, 1) {
		assert.Equal(t, domainVoting.MockDomainCrossing.NodeId, got[0].NodeId)
		assert.Equal(t, 1, got[0].VotesOk)
	}

	mock.NextBatchOverride = func() ([]crossing.Crossing, error) {
		return nil, crossing.NotFound{Key: "gone"}
	}
	got, err = c.NextBatch(ctx, "0b6cc3a4-0b6f-4f0e-9d53-3c1e1f1f6b01", 1, nil)
	assert.Nil(t, got)
	assert.Equal(t, 404, err.StatusCode)

	mock.NextBatchOverride = func() ([]crossing.Crossing, error) {
		return []crossing.Crossing{}, nil
	}
	got, err = c.NextBatch(ctx, "0b6cc3a4-0b6f-4f0e-9d53-3c1e1f1f6b01", 1, nil)
	assert.Nil(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.EqualValues(t, 3, mock.NextBatchCalled)
}

func Test_impl_Meta(t *testing.T) {
	mock := domainVoting.MockVotingService{}
	c := New(&mock)
	got, err := c.Meta(ctx)
	assert.Nil(t, err)
	assert.Equal(t, domainVoting.MockMeta.CrossingsWithEnoughVotes, got.CrossingsWithEnoughVotes)

	mock.MetaOverride = func() (*meta.Aggregate, error) {
		return nil, fmt.Errorf("down")
	}
	got, err = c.Meta(ctx)
	assert.Nil(t, got)
	assert.Equal(t, 500, err.StatusCode)
}
