// Package credentials decides how to authenticate against a git remote.
//
// The Negotiator picks one mechanism out of the set a remote accepts, in a
// fixed order of preference: ssh agent, transport default, plain text. The
// decision depends only on the request and the stored credentials, so a
// transport may ask again after a rejection and get a consistent answer.
package credentials

import (
	"errors"
	"fmt"

	"github.com/wisp-renderer/wisp-installer/internal/logging"
)

// DefaultUsername is used for ssh agent authentication when neither the URL
// nor the credential helper configuration name a user.
const DefaultUsername = "git"

var ErrNoAuthentication = errors.New("no authentication available")

// Credentials are the username and password collected from the user.
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) String() string {
	masked := "*******"
	if c.Password == "" {
		masked = "<empty>"
	}
	return fmt.Sprintf("%s:%s", c.Username, masked)
}

// Request is a single authentication challenge.
type Request struct {
	URL string
	// Username supplied by the URL or the transport, if any.
	Username string
	Allowed  Mechanism
}

// Credential is the outcome of a negotiation. Password is only set for
// Plaintext.
type Credential struct {
	Mechanism Mechanism
	Username  string
	Password  string
}

// UsernameLookup returns the username configured for url, or "".
type UsernameLookup func(url string) string

type Negotiator struct {
	stored Credentials
	lookup UsernameLookup
	logger *logging.Logger
}

// NewNegotiator returns a negotiator for the stored credentials. By default
// usernames are looked up in the global git configuration.
func NewNegotiator(stored Credentials, logger *logging.Logger) *Negotiator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Negotiator{stored: stored, lookup: HelperUsername, logger: logger}
}

func (n *Negotiator) WithUsernameLookup(lookup UsernameLookup) *Negotiator {
	if lookup == nil {
		lookup = func(string) string { return "" }
	}
	n.lookup = lookup
	return n
}

func (n *Negotiator) Negotiate(req Request) (Credential, error) {
	switch {
	case req.Allowed.Has(SSHAgent):
		return Credential{Mechanism: SSHAgent, Username: n.agentUsername(req)}, nil

	case req.Allowed.Has(Default):
		return Credential{Mechanism: Default}, nil

	case req.Allowed.Has(Plaintext):
		n.logger.Noticef("using plain text to authenticate with %s", req.URL)
		username := n.stored.Username
		if username == "" {
			username = req.Username
		}
		return Credential{Mechanism: Plaintext, Username: username, Password: n.stored.Password}, nil
	}

	return Credential{}, ErrNoAuthentication
}

func (n *Negotiator) agentUsername(req Request) string {
	if req.Username != "" {
		return req.Username
	}
	if username := n.lookup(req.URL); username != "" {
		return username
	}
	return DefaultUsername
}
