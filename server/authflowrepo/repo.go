package authflowrepo

import "time"

// DefaultTTL bounds how long a user may take at the provider's consent screen
const DefaultTTL = 10 * time.Minute

// NowTimeFunc can be overridden in tests
var NowTimeFunc = time.Now

// AuthFlowState is what the server remembers between sending the browser to
// the provider and receiving the callback
type AuthFlowState struct {
	Provider     string
	CodeVerifier string
	Nonce        string
	ReturnURL    string
	CreatedAt    time.Time
}

type Repo interface {
	Put(flowID string, state *AuthFlowState) error
	// Take returns the state and removes it, so a flow can complete once
	Take(flowID string) (*AuthFlowState, error)
	Purge() int
	// Len reports the number of pending flows
	Len() int
}
