package genrotor

import (
	"errors"
	"fmt"
)

// ErrNoCredentials is returned by New when the configuration carries no API
// credentials. It is a setup problem: nothing was attempted.
var ErrNoCredentials = errors.New("no API credentials configured")

// ExhaustedError reports that every (model, credential) combination was
// tried and every attempt failed with a recognized transport error. It is an
// availability problem: callers may retry later. Individual attempt errors
// are logged during the traversal, not retained here.
type ExhaustedError struct {
	Clients int
	Models  int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d clients failed across all %d models", e.Clients, e.Models)
}
