package crossing

import (
	"fmt"
	"strings"

	"github.com/fedus/safe-crossing-cf/internal/domain/user"
	"github.com/fedus/safe-crossing-cf/internal/domain/vote"
)

// NodeId is the composite identifier clients use, "<namespace>/<localId>", e.g. "node/2847133"
type NodeId string

// Key is the store key of a crossing, the localId part of its NodeId
type Key string

// NodeIdFromString validates the "<namespace>/<localId>" shape
func NodeIdFromString(s string) (NodeId, error) {
	trimmed := strings.TrimSpace(s)
	parts := strings.Split(trimmed, "/")
	switch {
	case len(trimmed) == 0:
		return "", InvalidNodeId{Value: s, Reason: "empty string"}
	case len(parts) != 2:
		return "", InvalidNodeId{Value: s, Reason: "expected exactly one '/' separating namespace and local id"}
	case len(parts[0]) == 0:
		return "", InvalidNodeId{Value: s, Reason: "empty namespace"}
	case len(parts[1]) == 0:
		return "", InvalidNodeId{Value: s, Reason: "empty local id"}
	}
	return NodeId(trimmed), nil
}

// Key strips the namespace. Assumes the NodeId was built via NodeIdFromString
func (n NodeId) Key() Key {
	if idx := strings.IndexByte(string(n), '/'); idx >= 0 {
		return Key(n[idx+1:])
	}
	return Key(n)
}

// KeyFromNodeId validates s and returns its store Key
func KeyFromNodeId(s string) (Key, error) {
	nodeId, err := NodeIdFromString(s)
	if err != nil {
		return "", err
	}
	return nodeId.Key(), nil
}

type Location struct {
	Latitude  float64
	Longitude float64
}

// NewCrossing is seed data for a crossing that has yet to be persisted
type NewCrossing struct {
	NodeId   NodeId
	Location *Location
}

// Crossing as persisted, without its unseenBy membership set
type Crossing struct {
	Key      Key
	NodeId   NodeId
	Location *Location
	Tallies  vote.Tallies
	// VotesTotal is persisted alongside the tallies and must always equal Tallies.Total()
	VotesTotal int
	// CurrentResult is nil until the first vote is cast
	CurrentResult *vote.Result
}

// Committed returns the parts of the crossing that a ballot is planned against
func (c *Crossing) Committed() vote.Committed {
	return vote.Committed{
		Tallies: c.Tallies,
		Total:   c.VotesTotal,
		Result:  c.CurrentResult,
	}
}

// Update is what a vote transaction writes to a single crossing
type Update struct {
	// Increments are applied atomically on top of the committed counters; the total follows
	Increments vote.Tallies
	// RemoveUnseenBy, if set, is removed from the unseenBy set
	RemoveUnseenBy *user.Id
	Result         vote.Result
}

// <-- Errors

// NotFound is returned when there is no crossing for a Key
type NotFound struct {
	Key Key
}

func (e NotFound) Error() string {
	return fmt.Sprintf("Could not find crossing [%v]", e.Key)
}

type InvalidNodeId struct {
	Value  string
	Reason string
}

func (e InvalidNodeId) Error() string {
	return fmt.Sprintf("Invalid crossing node id [%s]: %s", e.Value, e.Reason)
}

//     Errors -->
