// Package oid maps DER-encoded object identifiers to the symbolic names used
// by the certificate, PKCS7 and key decoders. The table is built once at
// init and is read-only afterwards, so lookups are safe for concurrent use.
package oid

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"

	"github.com/sensiblebit/bootkit/der"
)

// ID is a recognized object identifier. The zero value is Unknown.
type ID int

const (
	Unknown ID = iota

	// Public-key algorithms and curves.
	RSAEncryption
	ECPublicKey
	Ed25519
	P256
	P384
	P521

	// Signature algorithms.
	MD5WithRSA
	SHA1WithRSA
	SHA224WithRSA
	SHA256WithRSA
	SHA384WithRSA
	SHA512WithRSA
	ECDSAWithSHA1
	ECDSAWithSHA224
	ECDSAWithSHA256
	ECDSAWithSHA384
	ECDSAWithSHA512

	// Digest algorithms.
	MD5
	SHA1
	SHA224
	SHA256
	SHA384
	SHA512

	// PKCS7 content types.
	Data
	SignedData
	MSIndirectData

	// Signed attributes.
	ContentType
	MessageDigest
	SigningTime
	SMIMECapabilities
	MSStatementType
	MSSpOpusInfo

	// Distinguished name attributes.
	CommonName
	Surname
	SerialNumber
	CountryName
	LocalityName
	StateOrProvinceName
	StreetAddress
	OrganizationName
	OrganizationalUnitName
	Title
	GivenName
	EmailAddress
	DomainComponent

	// Certificate extensions.
	SubjectKeyIdentifier
	KeyUsage
	SubjectAltName
	BasicConstraints
	AuthorityKeyIdentifier
	ExtKeyUsage

	numIDs
)

type entry struct {
	dotted string
	name   string
	label  string
}

var entries = [numIDs]entry{
	RSAEncryption: {"1.2.840.113549.1.1.1", "rsa", ""},
	ECPublicKey:   {"1.2.840.10045.2.1", "ecdsa", ""},
	Ed25519:       {"1.3.101.112", "ed25519", ""},
	P256:          {"1.2.840.10045.3.1.7", "P-256", ""},
	P384:          {"1.3.132.0.34", "P-384", ""},
	P521:          {"1.3.132.0.35", "P-521", ""},

	MD5WithRSA:      {"1.2.840.113549.1.1.4", "md5WithRSAEncryption", ""},
	SHA1WithRSA:     {"1.2.840.113549.1.1.5", "sha1WithRSAEncryption", ""},
	SHA224WithRSA:   {"1.2.840.113549.1.1.14", "sha224WithRSAEncryption", ""},
	SHA256WithRSA:   {"1.2.840.113549.1.1.11", "sha256WithRSAEncryption", ""},
	SHA384WithRSA:   {"1.2.840.113549.1.1.12", "sha384WithRSAEncryption", ""},
	SHA512WithRSA:   {"1.2.840.113549.1.1.13", "sha512WithRSAEncryption", ""},
	ECDSAWithSHA1:   {"1.2.840.10045.4.1", "ecdsa-with-SHA1", ""},
	ECDSAWithSHA224: {"1.2.840.10045.4.3.1", "ecdsa-with-SHA224", ""},
	ECDSAWithSHA256: {"1.2.840.10045.4.3.2", "ecdsa-with-SHA256", ""},
	ECDSAWithSHA384: {"1.2.840.10045.4.3.3", "ecdsa-with-SHA384", ""},
	ECDSAWithSHA512: {"1.2.840.10045.4.3.4", "ecdsa-with-SHA512", ""},

	MD5:    {"1.2.840.113549.2.5", "md5", ""},
	SHA1:   {"1.3.14.3.2.26", "sha1", ""},
	SHA224: {"2.16.840.1.101.3.4.2.4", "sha224", ""},
	SHA256: {"2.16.840.1.101.3.4.2.1", "sha256", ""},
	SHA384: {"2.16.840.1.101.3.4.2.2", "sha384", ""},
	SHA512: {"2.16.840.1.101.3.4.2.3", "sha512", ""},

	Data:           {"1.2.840.113549.1.7.1", "data", ""},
	SignedData:     {"1.2.840.113549.1.7.2", "signedData", ""},
	MSIndirectData: {"1.3.6.1.4.1.311.2.1.4", "msIndirectData", ""},

	ContentType:       {"1.2.840.113549.1.9.3", "contentType", ""},
	MessageDigest:     {"1.2.840.113549.1.9.4", "messageDigest", ""},
	SigningTime:       {"1.2.840.113549.1.9.5", "signingTime", ""},
	SMIMECapabilities: {"1.2.840.113549.1.9.15", "smimeCapabilities", ""},
	MSStatementType:   {"1.3.6.1.4.1.311.2.1.11", "msStatementType", ""},
	MSSpOpusInfo:      {"1.3.6.1.4.1.311.2.1.12", "msSpOpusInfo", ""},

	CommonName:             {"2.5.4.3", "commonName", "CN"},
	Surname:                {"2.5.4.4", "surname", "SN"},
	SerialNumber:           {"2.5.4.5", "serialNumber", "serialNumber"},
	CountryName:            {"2.5.4.6", "countryName", "C"},
	LocalityName:           {"2.5.4.7", "localityName", "L"},
	StateOrProvinceName:    {"2.5.4.8", "stateOrProvinceName", "ST"},
	StreetAddress:          {"2.5.4.9", "streetAddress", "street"},
	OrganizationName:       {"2.5.4.10", "organizationName", "O"},
	OrganizationalUnitName: {"2.5.4.11", "organizationalUnitName", "OU"},
	Title:                  {"2.5.4.12", "title", "title"},
	GivenName:              {"2.5.4.42", "givenName", "GN"},
	EmailAddress:           {"1.2.840.113549.1.9.1", "emailAddress", "emailAddress"},
	DomainComponent:        {"0.9.2342.19200300.100.1.25", "domainComponent", "DC"},

	SubjectKeyIdentifier:   {"2.5.29.14", "subjectKeyIdentifier", ""},
	KeyUsage:               {"2.5.29.15", "keyUsage", ""},
	SubjectAltName:         {"2.5.29.17", "subjectAltName", ""},
	BasicConstraints:       {"2.5.29.19", "basicConstraints", ""},
	AuthorityKeyIdentifier: {"2.5.29.35", "authorityKeyIdentifier", ""},
	ExtKeyUsage:            {"2.5.29.37", "extKeyUsage", ""},
}

var (
	byRaw = make(map[string]ID, numIDs)
	raws  [numIDs][]byte
)

func init() {
	for id := RSAEncryption; id < numIDs; id++ {
		raw, err := encode(entries[id].dotted)
		if err != nil {
			panic(fmt.Sprintf("oid: table entry %d: %v", id, err))
		}
		raws[id] = raw
		byRaw[string(raw)] = id
	}
}

// encode converts a dotted OID into its DER content octets.
func encode(dotted string) ([]byte, error) {
	parts := strings.Split(dotted, ".")
	arcs := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("parsing arc %q: %w", p, err)
		}
		arcs[i] = v
	}
	var b cryptobyte.Builder
	b.AddASN1ObjectIdentifier(arcs)
	full, err := b.Bytes()
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", dotted, err)
	}
	n, _, err := der.ReadNext(full, 0)
	if err != nil {
		return nil, err
	}
	if n.Tag != uint32(cbasn1.OBJECT_IDENTIFIER) {
		return nil, fmt.Errorf("encoding %s: unexpected tag %d", dotted, n.Tag)
	}
	return n.Content, nil
}

// Lookup resolves the content octets of an OBJECT IDENTIFIER.
func Lookup(raw []byte) ID {
	return byRaw[string(raw)]
}

// String returns the symbolic name, e.g. "rsa" or "sha256".
func (id ID) String() string {
	if id <= Unknown || id >= numIDs {
		return "unknown"
	}
	return entries[id].name
}

// Dotted returns the dotted decimal form, or "" for Unknown.
func (id ID) Dotted() string {
	if id <= Unknown || id >= numIDs {
		return ""
	}
	return entries[id].dotted
}

// Raw returns a copy of the DER content octets, or nil for Unknown.
func (id ID) Raw() []byte {
	if id <= Unknown || id >= numIDs {
		return nil
	}
	return append([]byte(nil), raws[id]...)
}

// Label returns the short label used when rendering a distinguished name
// attribute (for example "CN" or "O"), or "" when id is not a name attribute.
func (id ID) Label() string {
	if id <= Unknown || id >= numIDs {
		return ""
	}
	return entries[id].label
}

// ByName resolves a symbolic name such as "sha256" back to its ID. Names are
// matched case-insensitively; Unknown is returned when nothing matches.
func ByName(name string) ID {
	for id := Unknown + 1; id < numIDs; id++ {
		if strings.EqualFold(entries[id].name, name) {
			return id
		}
	}
	return Unknown
}
