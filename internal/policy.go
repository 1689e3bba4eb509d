package internal

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/sensiblebit/bootkit/oid"
	"github.com/sensiblebit/bootkit/pkcs7"
)

// Policy holds the acceptance rules VerifyMessage applies on top of the
// cryptographic checks.
type Policy struct {
	// AllowedDigests lists digest algorithm names, e.g. "sha256". Empty
	// allows any digest the verifier can compute.
	AllowedDigests []string `yaml:"allowed_digests"`
	// MinRSABits rejects signer keys with a shorter modulus.
	MinRSABits int `yaml:"min_rsa_bits"`
	// RequiredAttributes lists signed attributes every signer must carry,
	// e.g. "messageDigest".
	RequiredAttributes []string `yaml:"required_attributes"`
	// RequireEmbeddedSigner rejects signers whose certificate is not
	// carried in the message.
	RequireEmbeddedSigner bool `yaml:"require_embedded_signer"`
	// CheckValidity rejects signer certificates outside their validity
	// window at verification time.
	CheckValidity bool `yaml:"check_validity"`

	digests  []oid.ID
	required pkcs7.AttrSet
}

// DefaultPolicy returns the policy used when no policy file is given.
func DefaultPolicy() *Policy {
	p := &Policy{
		AllowedDigests:        []string{"sha256", "sha384", "sha512"},
		MinRSABits:            2048,
		RequireEmbeddedSigner: true,
	}
	if err := p.Validate(); err != nil {
		panic(err)
	}
	return p
}

// LoadPolicy reads a YAML policy file. Fields absent from the file keep their
// DefaultPolicy values.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy %s: %w", path, err)
	}
	p, err := ParsePolicy(data)
	if err != nil {
		return nil, fmt.Errorf("policy %s: %w", path, err)
	}
	return p, nil
}

// ParsePolicy decodes a YAML policy document over the defaults.
func ParsePolicy(data []byte) (*Policy, error) {
	p := DefaultPolicy()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate resolves the digest and attribute names. It must be called on a
// Policy built without DefaultPolicy or ParsePolicy before it is used.
func (p *Policy) Validate() error {
	if p.MinRSABits < 0 {
		return fmt.Errorf("min_rsa_bits must not be negative, got %d", p.MinRSABits)
	}
	p.digests = nil
	for _, name := range p.AllowedDigests {
		id := oid.ByName(name)
		if !oid.IsDigest(id) {
			return fmt.Errorf("unknown digest algorithm %q", name)
		}
		p.digests = append(p.digests, id)
	}
	p.required = 0
	for _, name := range p.RequiredAttributes {
		a, ok := pkcs7.ParseAttrName(name)
		if !ok {
			return fmt.Errorf("unknown signed attribute %q", name)
		}
		p.required |= a
	}
	return nil
}

// DigestAllowed reports whether the policy accepts digest algorithm id.
func (p *Policy) DigestAllowed(id oid.ID) bool {
	return len(p.digests) == 0 || slices.Contains(p.digests, id)
}

// MissingAttributes returns the required attributes absent from have.
func (p *Policy) MissingAttributes(have pkcs7.AttrSet) pkcs7.AttrSet {
	return p.required &^ have
}
