package voting

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fedus/safe-crossing-cf/internal/api/models/common"
	"github.com/fedus/safe-crossing-cf/internal/api/models/voting"
	"github.com/fedus/safe-crossing-cf/internal/domain/crossing"
	"github.com/fedus/safe-crossing-cf/internal/domain/user"
	"github.com/fedus/safe-crossing-cf/internal/domain/vote"
	domainVoting "github.com/fedus/safe-crossing-cf/internal/domain/voting"
)

const (
	VoteCast         = "Vote cast"
	voteFailedPrefix = "Failed to cast vote: "
)

// Controller is an interface that defines the methods that are available to the routing
// layer. It is framework-agnostic
type Controller interface {

	// InitializeUser makes every crossing visible to the user, returning USER_INITIALIZED or
	// USER_ALREADY_INITIALIZED
	InitializeUser(ctx context.Context, userId user.Id) (domainVoting.InitOutcome, *common.ApiError)

	// Vote casts or revises a vote.
	//
	// Invalid arguments are reported as errors; any other failure is reported in the returned
	// string, prefixed with "Failed to cast vote: "
	Vote(ctx context.Context, userId user.Id, nodeId crossing.NodeId, v vote.Vote) (string, *common.ApiError)

	// NextBatch returns the next page of crossings the user has yet to vote on
	NextBatch(ctx context.Context, userId user.Id, quantity uint, lastCrossingId *crossing.NodeId) ([]voting.Crossing, *common.ApiError)

	// Meta returns the aggregate over all decided crossings
	Meta(ctx context.Context) (*voting.Meta, *common.ApiError)
}

func New(votingService domainVoting.Service) Controller {
	return &impl{
		votingService: votingService,
	}
}

type impl struct {
	votingService domainVoting.Service
}

func (c *impl) InitializeUser(ctx context.Context, userId user.Id) (domainVoting.InitOutcome, *common.ApiError) {
	outcome, err := c.votingService.InitializeUser(ctx, userId)
	if err != nil {
		return "", handleErr(err)
	} else {
		return outcome, nil
	}
}

func (c *impl) Vote(ctx context.Context, userId user.Id, nodeId crossing.NodeId, v vote.Vote) (string, *common.ApiError) {
	err := c.votingService.CastVote(ctx, userId, nodeId, v)
	switch err.(type) {
	case nil:
		return VoteCast, nil
	case vote.InvalidVote, crossing.InvalidNodeId, user.InvalidId:
		return "", handleErr(err)
	default:
		return fmt.Sprintf("%s%v", voteFailedPrefix, err), nil
	}
}

func (c *impl) NextBatch(ctx context.Context, userId user.Id, quantity uint, lastCrossingId *crossing.NodeId) ([]voting.Crossing, *common.ApiError) {
	result, err := c.votingService.NextBatch(ctx, userId, quantity, lastCrossingId)
	if err != nil {
		return nil, handleErr(err)
	} else {
		apiCrossings := make([]voting.Crossing, 0, len(result))
		for _, dCrossing := range result {
			apiCrossings = append(apiCrossings, voting.FromDomainCrossing(&dCrossing))
		}
		return apiCrossings, nil
	}
}

func (c *impl) Meta(ctx context.Context) (*voting.Meta, *common.ApiError) {
	result, err := c.votingService.Meta(ctx)
	if err != nil {
		return nil, handleErr(err)
	} else {
		m := voting.FromDomainMeta(result)
		return &m, nil
	}
}

func handleErr(err error) *common.ApiError {
	switch v := err.(type) {
	case vote.InvalidVote, crossing.InvalidNodeId, user.InvalidId, domainVoting.InvalidQuantity:
		return invalidArgument(v)
	case crossing.NotFound:
		return notFound(v)
	case crossing.TransactionConflict:
		return conflict(v)
	default:
		return unhandledErr(v)
	}
}

func invalidArgument(err error) *common.ApiError {
	return &common.ApiError{
		StatusCode: http.StatusBadRequest,
		Body: common.Body{
			Message: err.Error(),
		},
	}
}

func notFound(notFound crossing.NotFound) *common.ApiError {
	return &common.ApiError{
		StatusCode: http.StatusNotFound,
		Body: common.Body{
			Message: notFound.Error(),
		},
	}
}

func conflict(conflict crossing.TransactionConflict) *common.ApiError {
	return &common.ApiError{
		StatusCode: http.StatusConflict,
		Body: common.Body{
			Message: conflict.Error(),
		},
	}
}

func unhandledErr(e error) *common.ApiError {
	return &common.ApiError{
		StatusCode: http.StatusInternalServerError,
		Body: common.Body{
			Message: e.Error(),
		},
	}
}
