package user

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Id of a user, a UUID issued by the client
type Id string

// IdFromString validates that s is a UUID and returns it as an Id in its canonical
// lowercase hyphenated form, so every spelling of a UUID maps to the same user
func IdFromString(s string) (Id, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", InvalidId{Value: s, Underlying: err}
	}
	return Id(parsed.String()), nil
}

// User is implicitly created by the first initialization or the first vote
type User struct {
	ID             Id
	Initialized    bool
	TotalVotesCast int
}

// <-- Errors

type InvalidId struct {
	Value      string
	Underlying error
}

func (e InvalidId) Error() string {
	return fmt.Sprintf("Invalid user id [%s]: %v", e.Value, e.Underlying)
}

func (e InvalidId) Unwrap() error {
	return e.Underlying
}

// NotFound is returned when there is no persisted User for an Id
type NotFound struct {
	ID Id
}

func (e NotFound) Error() string {
	return fmt.Sprintf("Could not find user [%v]", e.ID)
}

//     Errors -->
