// voting holds the API models for the callable-style voting endpoints: every request body wraps its
// arguments in a "data" object, and every successful response wraps its value in a "result" field.
package voting

import (
	"github.com/fedus/safe-crossing-cf/internal/domain/crossing"
	"github.com/fedus/safe-crossing-cf/internal/domain/meta"
	"github.com/fedus/safe-crossing-cf/internal/domain/user"
	"github.com/fedus/safe-crossing-cf/internal/domain/vote"
)

type InitializeUserRequest struct {
	Data InitializeUser `json:"data" binding:"required"`
}

type InitializeUser struct {
	UserUuid user.Id `json:"userUuid" binding:"required,uuid" example:"0b6cc3a4-0b6f-4f0e-9d53-3c1e1f1f6b01"`
}

type VoteRequest struct {
	Data Vote `json:"data" binding:"required"`
}

type Vote struct {
	UserUuid       user.Id         `json:"userUuid" binding:"required,uuid" example:"0b6cc3a4-0b6f-4f0e-9d53-3c1e1f1f6b01"`
	CrossingNodeId crossing.NodeId `json:"crossingNodeId" binding:"required,nodeId" example:"node/2847133"`
	// 0 (NOT_SURE), 1 (OK) or 2 (TOO_CLOSE)
	Vote *vote.Vote `json:"vote" binding:"required,vote" swaggertype:"integer" example:"1"`
}

type NextBatchRequest struct {
	Data NextBatch `json:"data" binding:"required"`
}

type NextBatch struct {
	UserId   user.Id `json:"userId" binding:"required,uuid" example:"0b6cc3a4-0b6f-4f0e-9d53-3c1e1f1f6b01"`
	Quantity uint    `json:"quantity" binding:"required,min=1" example:"20"`
	// The node id of the last crossing of the previous page, if any
	LastCrossingId *crossing.NodeId `json:"lastCrossingId,omitempty" binding:"omitempty,nodeId" example:"node/2847133"`
}

// Response is the envelope around every successful result
type Response struct {
	Result interface{} `json:"result" swaggertype:"object"`
}

// Crossing is what the feed hands out; it never includes who has yet to vote on it
type Crossing struct {
	NodeId        crossing.NodeId `json:"nodeId" example:"node/2847133"`
	Latitude      *float64        `json:"latitude,omitempty" example:"49.6116"`
	Longitude     *float64        `json:"longitude,omitempty" example:"6.1319"`
	VotesNotSure  int             `json:"votesNotSure"`
	VotesOk       int             `json:"votesOk"`
	VotesTooClose int             `json:"votesTooClose"`
	VotesTotal    int             `json:"votesTotal"`
	CurrentResult *vote.Result    `json:"currentResult,omitempty" swaggertype:"string" example:"OK"`
}

func FromDomainCrossing(c *crossing.Crossing) Crossing {
	apiCrossing := Crossing{
		NodeId:        c.NodeId,
		VotesNotSure:  c.Tallies.NotSure,
		VotesOk:       c.Tallies.Ok,
		VotesTooClose: c.Tallies.TooClose,
		VotesTotal:    c.VotesTotal,
		CurrentResult: c.CurrentResult,
	}
	if c.Location != nil {
		lat, lon := c.Location.Latitude, c.Location.Longitude
		apiCrossing.Latitude = &lat
		apiCrossing.Longitude = &lon
	}
	return apiCrossing
}

type Meta struct {
	CrossingsWithEnoughVotes int `json:"crossingsWithEnoughVotes"`
	VotesNotSure             int `json:"votesNotSure"`
	VotesOk                  int `json:"votesOk"`
	VotesTooClose            int `json:"votesTooClose"`
	VotesTie                 int `json:"votesTie"`
}

func FromDomainMeta(m *meta.Aggregate) Meta {
	return Meta{
		CrossingsWithEnoughVotes: m.CrossingsWithEnoughVotes,
		VotesNotSure:             m.NotSure,
		VotesOk:                  m.Ok,
		VotesTooClose:            m.TooClose,
		VotesTie:                 m.Tie,
	}
}
