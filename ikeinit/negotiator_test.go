package ikeinit

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msgboxio/ike/protocol"
)

type stubConfig struct {
	proposals []*protocol.Proposal
}

func (c *stubConfig) Proposals() []*protocol.Proposal                      { return c.proposals }
func (c *stubConfig) RequireCookie() bool                                  { return false }
func (c *stubConfig) SendCookie() bool                                     { return false }
func (c *stubConfig) SupportsFragmentation() bool                         { return false }
func (c *stubConfig) SupportsChildless() bool                             { return false }
func (c *stubConfig) RequirePPK() bool                                    { return false }
func (c *stubConfig) SignatureHashAlgorithms() []protocol.HashAlgorithmId { return nil }
func (c *stubConfig) FollowRedirects() bool                               { return false }

func dhTransform(method uint16) *protocol.SaTransform {
	return &protocol.SaTransform{Transform: protocol.Transform{Type: protocol.TRANSFORM_TYPE_DH, TransformId: method}}
}

func TestNegotiatorSelectsMutualProposal(t *testing.T) {
	local := &stubConfig{proposals: []*protocol.Proposal{
		{ProtocolId: protocol.PROTO_IKE, Number: 1, IsLast: true, Transforms: []*protocol.SaTransform{dhTransform(14)}},
	}}
	peer := []*protocol.Proposal{
		{ProtocolId: protocol.PROTO_IKE, Number: 1, IsLast: true, Transforms: []*protocol.SaTransform{dhTransform(14)}},
	}

	n := NewNegotiator(local, nil)
	sel, cfg, err := n.Select(nil, nil, peer, 0)
	require.NoError(t, err)
	assert.Same(t, local, cfg)
	require.Len(t, sel.Transforms, 1)
	assert.Equal(t, uint16(14), sel.Transforms[0].TransformId)
}

func TestNegotiatorNoProposalChosen(t *testing.T) {
	local := &stubConfig{proposals: []*protocol.Proposal{
		{ProtocolId: protocol.PROTO_IKE, Number: 1, IsLast: true, Transforms: []*protocol.SaTransform{dhTransform(14)}},
	}}
	peer := []*protocol.Proposal{
		{ProtocolId: protocol.PROTO_IKE, Number: 1, IsLast: true, Transforms: []*protocol.SaTransform{dhTransform(15)}},
	}

	n := NewNegotiator(local, nil)
	_, _, err := n.Select(nil, nil, peer, 0)
	assert.Error(t, err)
}

func TestNegotiatorFallsBackToAltConfig(t *testing.T) {
	primary := &stubConfig{proposals: []*protocol.Proposal{
		{ProtocolId: protocol.PROTO_IKE, Number: 1, IsLast: true, Transforms: []*protocol.SaTransform{dhTransform(14)}},
	}}
	alt := &stubConfig{proposals: []*protocol.Proposal{
		{ProtocolId: protocol.PROTO_IKE, Number: 1, IsLast: true, Transforms: []*protocol.SaTransform{dhTransform(15)}},
	}}
	peer := []*protocol.Proposal{
		{ProtocolId: protocol.PROTO_IKE, Number: 1, IsLast: true, Transforms: []*protocol.SaTransform{dhTransform(15)}},
	}

	n := NewNegotiator(primary, altLookup(alt))
	sel, cfg, err := n.Select(nil, nil, peer, 0)
	require.NoError(t, err)
	assert.Same(t, alt, cfg)
	assert.Equal(t, uint16(15), sel.Transforms[0].TransformId)
}

func altLookup(cfgs ...IkeConfig) AltConfigLookup {
	return func(local, remote net.Addr) []IkeConfig { return cfgs }
}

func TestPromoteKeyExchangePrefersSupportingProposalsFirst(t *testing.T) {
	proposals := []*protocol.Proposal{
		{Number: 1, Transforms: []*protocol.SaTransform{dhTransform(14)}},
		{Number: 2, Transforms: []*protocol.SaTransform{dhTransform(15), dhTransform(16)}},
	}
	out := PromoteKeyExchange(proposals, protocol.TRANSFORM_TYPE_DH, 16)
	require.Len(t, out, 2)
	assert.Equal(t, uint8(2), out[0].Number, "the proposal supporting the chosen method moves first")
	assert.Equal(t, uint16(16), out[0].Transforms[0].TransformId, "the chosen method sorts first within its proposal")
	assert.True(t, out[len(out)-1].IsLast)
}
