package credentials

import (
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
)

// Mechanism is a set of authentication methods a remote accepts.
type Mechanism uint8

const (
	// SSHAgent authenticates with keys held by the local ssh agent.
	SSHAgent Mechanism = 1 << iota
	// Default leaves authentication to the transport: URL userinfo,
	// credential helpers and the like.
	Default
	// Plaintext sends the stored username and password.
	Plaintext
)

const None Mechanism = 0

var mechanismNames = []struct {
	m    Mechanism
	name string
}{
	{SSHAgent, "ssh-agent"},
	{Default, "default"},
	{Plaintext, "plaintext"},
}

func (m Mechanism) Has(o Mechanism) bool {
	return o != None && m&o == o
}

func (m Mechanism) String() string {
	if m == None {
		return "none"
	}
	var names []string
	for _, n := range mechanismNames {
		if m.Has(n.m) {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "|")
}

// Advertised returns the mechanisms a remote accepts before it has rejected
// anything. go-git does not expose the server's challenge, so the set is
// derived from the endpoint protocol.
func Advertised(ep *transport.Endpoint) Mechanism {
	switch ep.Protocol {
	case "ssh":
		return SSHAgent | Plaintext
	default:
		return Default
	}
}

// Rejected returns the mechanisms left to try once the remote has refused
// rejected. An http remote that refuses anonymous access demands explicit
// credentials.
func Rejected(ep *transport.Endpoint, allowed, rejected Mechanism) Mechanism {
	allowed &^= rejected
	if rejected.Has(Default) && isHTTP(ep) {
		allowed |= Plaintext
	}
	return allowed
}

func isHTTP(ep *transport.Endpoint) bool {
	return ep.Protocol == "http" || ep.Protocol == "https"
}
