// Package security decides whether a connecting client is accepted,
// challenged or denied.
package security

import (
	"crypto/subtle"

	"github.com/marmos91/filemq/internal/logger"
	"github.com/marmos91/filemq/internal/sasl"
	"github.com/marmos91/filemq/pkg/config/tree"
)

// Decision is the outcome of one negotiation step.
type Decision int

const (
	Deny Decision = iota
	Accept
	Challenge
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case Challenge:
		return "challenge"
	default:
		return "deny"
	}
}

// Negotiator reads its policy from the settings tree on every call, so
// changes made with SetOption apply to the next handshake.
//
//	security/anonymous          1 to accept clients without credentials
//	security/plain              1 to offer PLAIN; defaults to on when accounts exist
//	security/plain/account      repeated, with login and password
type Negotiator struct {
	settings *tree.Node
}

// NewNegotiator returns a negotiator bound to settings.
func NewNegotiator(settings *tree.Node) *Negotiator {
	return &Negotiator{settings: settings}
}

func (n *Negotiator) anonymous() bool {
	return n.settings.ResolveBool("security/anonymous", false)
}

// PlainEnabled reports whether PLAIN is offered.
func (n *Negotiator) PlainEnabled() bool {
	plain := n.settings.Locate("security/plain")
	return n.settings.ResolveBool("security/plain", len(plain.All("account")) > 0)
}

// Hello decides on a fresh greeting.
func (n *Negotiator) Hello() Decision {
	switch {
	case n.anonymous():
		return Accept
	case n.PlainEnabled():
		return Challenge
	default:
		return Deny
	}
}

// Mechanisms lists the offered mechanisms, ANONYMOUS first.
func (n *Negotiator) Mechanisms() []string {
	var mechs []string
	if n.anonymous() {
		mechs = append(mechs, sasl.Anonymous)
	}
	if n.PlainEnabled() {
		mechs = append(mechs, sasl.Plain)
	}
	return mechs
}

// Respond evaluates a challenge response.
func (n *Negotiator) Respond(mechanism string, blob []byte) Decision {
	switch mechanism {
	case sasl.Anonymous:
		if n.anonymous() {
			return Accept
		}
	case sasl.Plain:
		if !n.PlainEnabled() {
			return Deny
		}
		login, password, err := sasl.PlainDecode(blob)
		if err != nil {
			logger.Debug("Rejecting PLAIN response: %v", err)
			return Deny
		}
		for _, account := range n.settings.Locate("security/plain").All("account") {
			stored := account.Resolve("password", "")
			if account.Resolve("login", "") == login &&
				subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1 {
				return Accept
			}
		}
		logger.Info("Invalid PLAIN credentials for %q", login)
	}
	return Deny
}
