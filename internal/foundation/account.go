package foundation

import (
	"strings"
	"sync"
)

type AccountState int

const (
	AccountSignedOut AccountState = iota
	AccountSigningIn
	AccountSignedIn
)

func (s AccountState) String() string {
	switch s {
	case AccountSigningIn:
		return "signing_in"
	case AccountSignedIn:
		return "signed_in"
	default:
		return "signed_out"
	}
}

// Account is the local account store. Safe for concurrent use.
type Account struct {
	mu    sync.RWMutex
	state AccountState
	name  string
}

func NewAccount() *Account {
	return &Account{}
}

func (a *Account) State() (AccountState, string) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state, a.name
}

func (a *Account) BeginSignIn() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = AccountSigningIn
}

func (a *Account) CompleteSignIn(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = AccountSignedIn
	a.name = strings.TrimSpace(name)
}

func (a *Account) SignOut() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = AccountSignedOut
	a.name = ""
}
