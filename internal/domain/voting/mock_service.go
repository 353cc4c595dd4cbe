package voting

import (
	"context"

	"github.com/fedus/safe-crossing-cf/internal/domain/crossing"
	"github.com/fedus/safe-crossing-cf/internal/domain/meta"
	"github.com/fedus/safe-crossing-cf/internal/domain/user"
	"github.com/fedus/safe-crossing-cf/internal/domain/vote"
)

var mockResult = vote.RESULT_OK

var MockDomainCrossing = crossing.Crossing{
	Key:           "2847133",
	NodeId:        "node/2847133",
	Location:      &crossing.Location{Latitude: 49.61, Longitude: 6.13},
	Tallies:       vote.Tallies{Ok: 1},
	VotesTotal:    1,
	CurrentResult: &mockResult,
}

var MockMeta = meta.Aggregate{
	CrossingsWithEnoughVotes: 3,
	NotSure:                  1,
	Ok:                       2,
}

type MockVotingService struct {
	InitializeUserCalled    uint
	InitializeUserOverride  func() (InitOutcome, error)
	CastVoteCalled          uint
	CastVoteOverride        func() error
	NextBatchCalled         uint
	NextBatchOverride       func() ([]crossing.Crossing, error)
	ImportCrossingsCalled   uint
	ImportCrossingsOverride func() (uint, error)
	MetaCalled              uint
	MetaOverride            func() (*meta.Aggregate, error)
	AuditCalled             uint
	AuditOverride           func() (*AuditReport, error)
}

func (m *MockVotingService) InitializeUser(ctx context.Context, userId user.Id) (InitOutcome, error) {
	m.InitializeUserCalled++
	if m.InitializeUserOverride != nil {
		return m.InitializeUserOverride()
	} else {
		return USER_INITIALIZED, nil
	}
}

func (m *MockVotingService) CastVote(ctx context.Context, userId user.Id, nodeId crossing.NodeId, cast vote.Vote) error {
	m.CastVoteCalled++
	if m.CastVoteOverride != nil {
		return m.CastVoteOverride()
	} else {
		return nil
	}
}

func (m *MockVotingService) NextBatch(ctx context.Context, userId user.Id, quantity uint, lastNodeId *crossing.NodeId) ([]crossing.Crossing, error) {
	m.NextBatchCalled++
	if m.NextBatchOverride != nil {
		return m.NextBatchOverride()
	} else {
		return []crossing.Crossing{MockDomainCrossing}, nil
	}
}

func (m *MockVotingService) ImportCrossings(ctx context.Context, crossings []crossing.NewCrossing) (uint, error) {
	m.ImportCrossingsCalled++
	if m.ImportCrossingsOverride != nil {
		return m.ImportCrossingsOverride()
	} else {
		return uint(len(crossings)), nil
	}
}

func (m *MockVotingService) Meta(ctx context.Context) (*meta.Aggregate, error) {
	m.MetaCalled++
	if m.MetaOverride != nil {
		return m.MetaOverride()
	} else {
		return &MockMeta, nil
	}
}

func (m *MockVotingService) Audit(ctx context.Context) (*AuditReport, error) {
	m.AuditCalled++
	if m.AuditOverride != nil {
		return m.AuditOverride()
	} else {
		return &AuditReport{TotalMismatches: []crossing.Key{}}, nil
	}
}
