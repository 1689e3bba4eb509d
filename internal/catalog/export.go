package catalog

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sensiblebit/bootkit"
	"github.com/sensiblebit/bootkit/x509cert"
)

// CertSummary is the exported view of a certificate.
type CertSummary struct {
	Fingerprint    string `json:"sha256_fingerprint" yaml:"sha256_fingerprint"`
	Subject        string `json:"subject" yaml:"subject"`
	Issuer         string `json:"issuer" yaml:"issuer"`
	Serial         string `json:"serial" yaml:"serial"`
	Role           string `json:"role" yaml:"role"`
	KeyType        string `json:"key_type" yaml:"key_type"`
	SignatureAlg   string `json:"signature_algorithm" yaml:"signature_algorithm"`
	NotBefore      string `json:"not_before" yaml:"not_before"`
	NotAfter       string `json:"not_after" yaml:"not_after"`
	SubjectKeyID   string `json:"subject_key_id,omitempty" yaml:"subject_key_id,omitempty"`
	AuthorityKeyID string `json:"authority_key_id,omitempty" yaml:"authority_key_id,omitempty"`

	// IssuerCataloged is set when the issuing certificate was found in the
	// same scan.
	IssuerCataloged bool   `json:"issuer_cataloged" yaml:"issuer_cataloged"`
	Source          string `json:"source" yaml:"source"`
}

// MessageSummary is the exported view of a PKCS7 signature.
type MessageSummary struct {
	Fingerprint string   `json:"sha256_fingerprint" yaml:"sha256_fingerprint"`
	DataType    string   `json:"data_type" yaml:"data_type"`
	DataLen     int      `json:"data_len" yaml:"data_len"`
	Detached    bool     `json:"detached" yaml:"detached"`
	Digests     []string `json:"digest_algorithms" yaml:"digest_algorithms"`
	Signers     []string `json:"signers" yaml:"signers"`
	Source      string   `json:"source" yaml:"source"`
}

// KeySummary is the exported view of an RSA public key.
type KeySummary struct {
	Fingerprint    string `json:"sha256_fingerprint" yaml:"sha256_fingerprint"`
	Bits           int    `json:"bits" yaml:"bits"`
	SSHFingerprint string `json:"ssh_fingerprint,omitempty" yaml:"ssh_fingerprint,omitempty"`
	Source         string `json:"source" yaml:"source"`
}

// Inventory is the full exported catalog.
type Inventory struct {
	Summary      ScanSummary      `json:"summary" yaml:"summary"`
	Certificates []CertSummary    `json:"certificates" yaml:"certificates"`
	Messages     []MessageSummary `json:"messages" yaml:"messages"`
	Keys         []KeySummary     `json:"keys" yaml:"keys"`
	Failures     []*FailureRecord `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// BuildInventory snapshots the store in export form.
func BuildInventory(store *MemStore, input ScanSummaryInput) Inventory {
	inv := Inventory{
		Summary:      store.ScanSummary(input),
		Certificates: []CertSummary{},
		Messages:     []MessageSummary{},
		Keys:         []KeySummary{},
		Failures:     store.Failures(),
	}
	for _, rec := range store.AllCerts() {
		inv.Certificates = append(inv.Certificates, summarizeCert(store, rec))
	}
	for _, rec := range store.AllMessages() {
		msg := rec.Message
		digests := make([]string, 0, len(msg.DigestAlgorithms))
		for _, d := range msg.DigestAlgorithms {
			digests = append(digests, d.String())
		}
		dataType := msg.DataType.String()
		if msg.DataTypeOID != "" && dataType == "unknown" {
			dataType = msg.DataTypeOID
		}
		inv.Messages = append(inv.Messages, MessageSummary{
			Fingerprint: rec.Fingerprint,
			DataType:    dataType,
			DataLen:     msg.DataLen,
			Detached:    msg.Detached(),
			Digests:     digests,
			Signers:     rec.Signers(),
			Source:      rec.Source,
		})
	}
	for _, rec := range store.AllKeys() {
		inv.Keys = append(inv.Keys, KeySummary{
			Fingerprint:    rec.Fingerprint,
			Bits:           rec.Key.Bits(),
			SSHFingerprint: rec.SSHFingerprint,
			Source:         rec.Source,
		})
	}
	return inv
}

func summarizeCert(store *MemStore, rec *CertRecord) CertSummary {
	c := rec.Cert
	return CertSummary{
		Fingerprint:     rec.Fingerprint,
		Subject:         FormatCN(c),
		Issuer:          c.Issuer.String(),
		Serial:          hex.EncodeToString(c.SerialNumber),
		Role:            rec.Role,
		KeyType:         rec.KeyType,
		SignatureAlg:    c.Signature.Algorithm.String(),
		NotBefore:       rec.NotBefore.Format(time.RFC3339),
		NotAfter:        rec.NotAfter.Format(time.RFC3339),
		SubjectKeyID:    bootkit.ColonHex(c.SubjectKeyID),
		AuthorityKeyID:  bootkit.ColonHex(c.AuthorityKeyID),
		IssuerCataloged: !c.SelfIssued() && store.HasIssuer(c),
		Source:          rec.Source,
	}
}

// GenerateJSON renders the inventory as indented JSON.
func GenerateJSON(inv Inventory) ([]byte, error) {
	return json.MarshalIndent(inv, "", "  ")
}

// GenerateYAML renders the inventory as YAML.
func GenerateYAML(inv Inventory) ([]byte, error) {
	return yaml.Marshal(inv)
}

// ExportInput holds parameters for ExportContainer.
type ExportInput struct {
	Store       *MemStore
	Format      string // "p7b", "p12" or "jks"
	Password    string // for "p12" and "jks"
	SignersOnly bool   // only certificates that sign a stored message
}

// ExportContainer packs the stored certificates into a certificate
// container, ordered by fingerprint.
func ExportContainer(input ExportInput) ([]byte, error) {
	var recs []*CertRecord
	if input.SignersOnly {
		recs = input.Store.SignerCertificates()
	} else {
		recs = input.Store.AllCerts()
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("no certificates to export")
	}
	certs := make([]*x509cert.Certificate, 0, len(recs))
	for _, rec := range recs {
		certs = append(certs, rec.Cert)
	}

	switch input.Format {
	case "p7b":
		return bootkit.EncodeP7B(certs)
	case "p12":
		return bootkit.EncodePKCS12TrustStore(certs, input.Password)
	case "jks":
		return bootkit.EncodeJKSTrustStore(certs, input.Password)
	default:
		return nil, fmt.Errorf("unsupported container format %q (use p7b, p12, or jks)", input.Format)
	}
}
