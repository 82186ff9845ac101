package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/filemq/internal/sasl"
	"github.com/marmos91/filemq/pkg/config/tree"
)

func settings(t *testing.T, doc string) *tree.Node {
	t.Helper()
	root, err := tree.Parse([]byte(doc))
	require.NoError(t, err)
	return root
}

const withAccounts = `
security:
  plain:
    account:
      - login: guest
        password: guest
      - login: admin
        password: s3cret
`

func TestHello(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		want  Decision
		mechs []string
	}{
		{"NothingConfigured", "", Deny, nil},
		{"Anonymous", "security:\n  anonymous: 1", Accept, []string{sasl.Anonymous}},
		{"PlainFromAccounts", withAccounts, Challenge, []string{sasl.Plain}},
		{"PlainExplicit", "security:\n  plain: 1", Challenge, []string{sasl.Plain}},
		{"PlainDisabled", "security:\n  plain:\n    _: 0\n    account:\n      login: a\n      password: b", Deny, nil},
		{"Both", "security:\n  anonymous: 1\n  plain: 1", Accept, []string{sasl.Anonymous, sasl.Plain}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewNegotiator(settings(t, tt.doc))
			assert.Equal(t, tt.want, n.Hello())
			assert.Equal(t, tt.mechs, n.Mechanisms())
		})
	}
}

func TestRespond(t *testing.T) {
	n := NewNegotiator(settings(t, withAccounts))

	tests := []struct {
		name string
		mech string
		blob []byte
		want Decision
	}{
		{"Guest", sasl.Plain, sasl.PlainEncode("guest", "guest"), Accept},
		{"SecondAccount", sasl.Plain, sasl.PlainEncode("admin", "s3cret"), Accept},
		{"WrongPassword", sasl.Plain, sasl.PlainEncode("guest", "nope"), Deny},
		{"UnknownLogin", sasl.Plain, sasl.PlainEncode("eve", "guest"), Deny},
		{"CrossedAccounts", sasl.Plain, sasl.PlainEncode("guest", "s3cret"), Deny},
		{"Malformed", sasl.Plain, []byte("guest"), Deny},
		{"AnonymousNotOffered", sasl.Anonymous, nil, Deny},
		{"UnknownMechanism", "CURVE", nil, Deny},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, n.Respond(tt.mech, tt.blob))
		})
	}
}

func TestPolicyFollowsSettings(t *testing.T) {
	root := settings(t, withAccounts)
	n := NewNegotiator(root)
	require.Equal(t, Challenge, n.Hello())

	root.SetPath("security/anonymous", "1")
	assert.Equal(t, Accept, n.Hello())
	assert.Equal(t, Accept, n.Respond(sasl.Anonymous, nil))
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "accept", Accept.String())
	assert.Equal(t, "challenge", Challenge.String())
	assert.Equal(t, "deny", Deny.String())
}
