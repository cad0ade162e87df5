package ike

import (
	"net"

	"github.com/msgboxio/ike/ikeinit"
	"github.com/msgboxio/ike/protocol"
)

// Config is the local policy an IKE SA negotiates IKE_SA_INIT against: the
// IKE proposal(s) to offer or accept, traffic selectors for the Child SA
// negotiated later in IKE_AUTH, and the IKE_SA_INIT-time options
// (cookie/fragmentation/childless/PPK/signature-hash/redirect) the
// ikeinit.IkeConfig interface exposes to the task.
type Config struct {
	// ProposalIke lists acceptable IKE transform sets in preference order;
	// the first entry is what an initiator offers first.
	ProposalIke []protocol.Transforms
	ProposalEsp protocol.Transforms

	TsI, TsR []*protocol.Selector

	IsTransportMode bool

	CookieRequired  bool
	SendCookieFlag  bool
	Fragmentation   bool
	Childless       bool
	PPKRequired     bool
	SignatureHashes []protocol.HashAlgorithmId
	Redirects       bool
}

func DefaultConfig() *Config {
	return &Config{
		ProposalIke:     []protocol.Transforms{protocol.IKE_AES_GCM_16_DH_2048, protocol.IKE_AES_CBC_SHA1_96_DH_1024},
		ProposalEsp:     protocol.ESP_AES_GCM_16,
		Fragmentation:   true,
		SignatureHashes: []protocol.HashAlgorithmId{protocol.HASH_SHA2_256, protocol.HASH_SHA2_512},
	}
}

// Proposals renders the configured IKE transform sets as the Proposal list
// an initiator offers (in order) or a responder matches against, implementing
// ikeinit.IkeConfig.
func (cfg *Config) Proposals() []*protocol.Proposal {
	out := make([]*protocol.Proposal, len(cfg.ProposalIke))
	for i, trs := range cfg.ProposalIke {
		out[i] = &protocol.Proposal{
			IsLast:     i == len(cfg.ProposalIke)-1,
			Number:     uint8(i + 1),
			ProtocolId: protocol.PROTO_IKE,
			Transforms: trs.AsList(),
		}
	}
	return out
}

func (cfg *Config) RequireCookie() bool    { return cfg.CookieRequired }
func (cfg *Config) SendCookie() bool       { return cfg.SendCookieFlag }
func (cfg *Config) SupportsFragmentation() bool { return cfg.Fragmentation }
func (cfg *Config) SupportsChildless() bool     { return cfg.Childless }
func (cfg *Config) RequirePPK() bool             { return cfg.PPKRequired }
func (cfg *Config) FollowRedirects() bool        { return cfg.Redirects }
func (cfg *Config) SignatureHashAlgorithms() []protocol.HashAlgorithmId {
	return cfg.SignatureHashes
}

var _ ikeinit.IkeConfig = (*Config)(nil)

// AddSelector builds traffic selectors from an initiator/responder address
// pair, used once IKE_AUTH negotiates the Child SA this IKE SA will carry.
func (cfg *Config) AddSelector(initiator, responder *net.IPNet) error {
	first, last, err := IPNetToFirstLastAddress(initiator)
	if err != nil {
		return err
	}
	cfg.TsI = []*protocol.Selector{{
		Type:         protocol.TS_IPV4_ADDR_RANGE,
		EndPort:      65535,
		StartAddress: first,
		EndAddress:   last,
	}}
	first, last, err = IPNetToFirstLastAddress(responder)
	if err != nil {
		return err
	}
	cfg.TsR = []*protocol.Selector{{
		Type:         protocol.TS_IPV4_ADDR_RANGE,
		EndPort:      65535,
		StartAddress: first,
		EndAddress:   last,
	}}
	return nil
}
