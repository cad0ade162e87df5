package ike

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/msgboxio/ike/protocol"
)

// FileConfig is the on-disk shape of a Config, loaded with LoadConfigFile.
// Field names mirror Config; proposals are named bundles from the
// protocol package's transform tables rather than inline transform lists,
// since that's the granularity an operator actually wants to pick between.
type FileConfig struct {
	ProposalIke     []string `yaml:"proposal_ike"`
	ProposalEsp     string   `yaml:"proposal_esp"`
	IsTransportMode bool     `yaml:"transport_mode"`
	CookieRequired  bool     `yaml:"cookie_required"`
	SendCookie      bool     `yaml:"send_cookie"`
	Fragmentation   bool     `yaml:"fragmentation"`
	Childless       bool     `yaml:"childless"`
	PPKRequired     bool     `yaml:"ppk_required"`
	Redirects       bool     `yaml:"redirects"`
	SignatureHashes []string `yaml:"signature_hashes"`
}

var namedIkeProposals = map[string]protocol.Transforms{
	"aes-gcm-16-dh-2048":        protocol.IKE_AES_GCM_16_DH_2048,
	"aes-gcm-16-dh-1024":        protocol.IKE_AES_GCM_16_DH_1024,
	"aes-cbc-sha1-96-dh-1024":   protocol.IKE_AES_CBC_SHA1_96_DH_1024,
	"camellia-cbc-sha2-dh-2048": protocol.IKE_CAMELLIA_CBC_SHA2_256_128_DH_2048,
}

var namedEspProposals = map[string]protocol.Transforms{
	"aes-gcm-16":        protocol.ESP_AES_GCM_16,
	"aes-cbc-sha1-96":   protocol.ESP_AES_CBC_SHA1_96,
	"null-sha1-96":      protocol.ESP_NULL_SHA1_96,
	"camellia-cbc-sha2": protocol.ESP_CAMELLIA_CBC_SHA2_256_128,
}

var namedHashAlgos = map[string]protocol.HashAlgorithmId{
	"sha1":   protocol.HASH_SHA1,
	"sha256": protocol.HASH_SHA2_256,
	"sha384": protocol.HASH_SHA2_384,
	"sha512": protocol.HASH_SHA2_512,
}

// LoadConfigFile reads a yaml config file and overlays it onto
// DefaultConfig; a missing or empty proposal list falls back to the
// defaults rather than producing a Config with no proposals at all.
func LoadConfigFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}
	var fc FileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return nil, errors.Wrap(err, "parse config file")
	}
	cfg := DefaultConfig()
	cfg.IsTransportMode = fc.IsTransportMode
	cfg.CookieRequired = fc.CookieRequired
	cfg.SendCookieFlag = fc.SendCookie
	cfg.Childless = fc.Childless
	cfg.PPKRequired = fc.PPKRequired
	cfg.Redirects = fc.Redirects
	if len(fc.ProposalIke) > 0 {
		trs := make([]protocol.Transforms, 0, len(fc.ProposalIke))
		for _, name := range fc.ProposalIke {
			p, ok := namedIkeProposals[name]
			if !ok {
				return nil, errors.Errorf("unknown ike proposal %q", name)
			}
			trs = append(trs, p)
		}
		cfg.ProposalIke = trs
	}
	if fc.ProposalEsp != "" {
		p, ok := namedEspProposals[fc.ProposalEsp]
		if !ok {
			return nil, errors.Errorf("unknown esp proposal %q", fc.ProposalEsp)
		}
		cfg.ProposalEsp = p
	}
	cfg.Fragmentation = fc.Fragmentation
	if len(fc.SignatureHashes) > 0 {
		hashes := make([]protocol.HashAlgorithmId, 0, len(fc.SignatureHashes))
		for _, name := range fc.SignatureHashes {
			h, ok := namedHashAlgos[name]
			if !ok {
				return nil, errors.Errorf("unknown signature hash %q", name)
			}
			hashes = append(hashes, h)
		}
		cfg.SignatureHashes = hashes
	}
	return cfg, nil
}
