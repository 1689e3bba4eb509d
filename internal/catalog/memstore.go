package catalog

import (
	"bytes"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/sensiblebit/bootkit"
	"github.com/sensiblebit/bootkit/der"
	"github.com/sensiblebit/bootkit/pkcs7"
	"github.com/sensiblebit/bootkit/rsakey"
	"github.com/sensiblebit/bootkit/x509cert"
)

// CertRecord holds a decoded certificate and its computed metadata.
type CertRecord struct {
	Cert        *x509cert.Certificate
	Fingerprint string // SHA-256 of the DER, colon hex
	Role        string // "root", "intermediate", "leaf"
	KeyType     string // e.g. "rsa 2048 bits", "ecdsa P-256"
	NotBefore   time.Time
	NotAfter    time.Time
	Source      string // file that contributed this cert
}

// MessageRecord holds a decoded PKCS7 signature.
type MessageRecord struct {
	Message     *pkcs7.Message
	Raw         []byte
	Fingerprint string
	Source      string
}

// Signers returns the rendered names of the message's signers. A signer
// whose certificate is not embedded is shown by its issuer and serial.
func (r *MessageRecord) Signers() []string {
	names := make([]string, 0, len(r.Message.SignerInfos))
	for _, si := range r.Message.SignerInfos {
		names = append(names, SignerLabel(si))
	}
	return names
}

// KeyRecord holds a decoded RSA public key.
type KeyRecord struct {
	Key            *rsakey.PublicKey
	Raw            []byte
	Fingerprint    string
	SSHFingerprint string
	Source         string
}

// FailureRecord is an input that looked like a signing artifact but did not
// decode.
type FailureRecord struct {
	Source string `json:"source" yaml:"source" db:"source"`
	Kind   string `json:"kind" yaml:"kind" db:"kind"`
	Error  string `json:"error" yaml:"error" db:"error"`
}

// failureKind names the decode error kind, or "container" for failures
// outside the DER decoders (wrong PKCS#12 password, corrupt keystore).
func failureKind(err error) string {
	if k := der.KindOf(err); k != 0 {
		return k.String()
	}
	return "container"
}

// MemStore is an in-memory catalog that implements Handler. Every artifact
// is deduplicated by the SHA-256 fingerprint of its DER encoding.
type MemStore struct {
	certs    map[string]*CertRecord
	messages map[string]*MessageRecord
	keys     map[string]*KeyRecord
	failures map[string]*FailureRecord
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		certs:    make(map[string]*CertRecord),
		messages: make(map[string]*MessageRecord),
		keys:     make(map[string]*KeyRecord),
		failures: make(map[string]*FailureRecord),
	}
}

// HandleCertificate stores a certificate. Duplicates keep the first source.
func (s *MemStore) HandleCertificate(cert *x509cert.Certificate, source string) error {
	if cert == nil {
		return errors.New("certificate is nil")
	}
	fp := bootkit.Fingerprint(cert.Raw)
	if _, exists := s.certs[fp]; exists {
		return nil
	}
	s.certs[fp] = &CertRecord{
		Cert:        cert,
		Fingerprint: fp,
		Role:        CertRole(cert),
		KeyType:     KeyType(cert),
		NotBefore:   cert.NotBefore(),
		NotAfter:    cert.NotAfter(),
		Source:      source,
	}
	return nil
}

// HandleMessage stores a PKCS7 signature.
func (s *MemStore) HandleMessage(msg *pkcs7.Message, raw []byte, source string) error {
	if msg == nil {
		return errors.New("message is nil")
	}
	fp := bootkit.Fingerprint(raw)
	if _, exists := s.messages[fp]; exists {
		return nil
	}
	s.messages[fp] = &MessageRecord{
		Message:     msg,
		Raw:         bytes.Clone(raw),
		Fingerprint: fp,
		Source:      source,
	}
	return nil
}

// HandleKey stores an RSA public key along with its OpenSSH fingerprint.
func (s *MemStore) HandleKey(key *rsakey.PublicKey, raw []byte, source string) error {
	if key == nil {
		return errors.New("key is nil")
	}
	fp := bootkit.Fingerprint(raw)
	if _, exists := s.keys[fp]; exists {
		return nil
	}
	rec := &KeyRecord{
		Key:         key,
		Raw:         bytes.Clone(raw),
		Fingerprint: fp,
		Source:      source,
	}
	sshFP, err := bootkit.SSHFingerprint(key)
	if err != nil {
		slog.Debug("computing SSH fingerprint", "path", source, "error", err)
	} else {
		rec.SSHFingerprint = sshFP
	}
	s.keys[fp] = rec
	return nil
}

// HandleFailure records a decode failure. A later failure for the same
// source replaces the earlier one.
func (s *MemStore) HandleFailure(source string, err error) {
	s.failures[source] = &FailureRecord{
		Source: source,
		Kind:   failureKind(err),
		Error:  err.Error(),
	}
}

// GetCert returns the certificate with the given fingerprint, or nil.
func (s *MemStore) GetCert(fingerprint string) *CertRecord {
	return s.certs[fingerprint]
}

// AllCerts returns all certificate records sorted by fingerprint.
func (s *MemStore) AllCerts() []*CertRecord {
	result := make([]*CertRecord, 0, len(s.certs))
	for _, rec := range s.certs {
		result = append(result, rec)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Fingerprint < result[j].Fingerprint })
	return result
}

// AllMessages returns all message records sorted by source.
func (s *MemStore) AllMessages() []*MessageRecord {
	result := make([]*MessageRecord, 0, len(s.messages))
	for _, rec := range s.messages {
		result = append(result, rec)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Source < result[j].Source })
	return result
}

// AllKeys returns all key records sorted by fingerprint.
func (s *MemStore) AllKeys() []*KeyRecord {
	result := make([]*KeyRecord, 0, len(s.keys))
	for _, rec := range s.keys {
		result = append(result, rec)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Fingerprint < result[j].Fingerprint })
	return result
}

// Failures returns all failure records sorted by source.
func (s *MemStore) Failures() []*FailureRecord {
	result := make([]*FailureRecord, 0, len(s.failures))
	for _, rec := range s.failures {
		result = append(result, rec)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Source < result[j].Source })
	return result
}

// HasIssuer reports whether the store contains the issuer for the given
// cert, by comparing raw subject and issuer bytes.
func (s *MemStore) HasIssuer(cert *x509cert.Certificate) bool {
	for _, rec := range s.certs {
		if rec.Cert == cert || bytes.Equal(rec.Cert.Raw, cert.Raw) {
			continue
		}
		if bytes.Equal(rec.Cert.RawSubject, cert.RawIssuer) {
			return true
		}
	}
	return false
}

// SignerCertificates returns the stored certificates that sign at least one
// stored message, sorted by fingerprint.
func (s *MemStore) SignerCertificates() []*CertRecord {
	seen := make(map[string]bool)
	var result []*CertRecord
	for _, msg := range s.messages {
		for _, si := range msg.Message.SignerInfos {
			if si.Signer == nil {
				continue
			}
			fp := bootkit.Fingerprint(si.Signer.Raw)
			rec, ok := s.certs[fp]
			if !ok || seen[fp] {
				continue
			}
			seen[fp] = true
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Fingerprint < result[j].Fingerprint })
	return result
}

// DumpDebug logs all stored records at debug level.
func (s *MemStore) DumpDebug() {
	for fp, rec := range s.certs {
		slog.Debug("certificate",
			"fingerprint", fp,
			"subject", FormatCN(rec.Cert),
			"role", rec.Role,
			"key_type", rec.KeyType,
			"not_after", rec.NotAfter.Format(time.RFC3339),
			"source", rec.Source)
	}
	for fp, rec := range s.messages {
		slog.Debug("pkcs7 message", "fingerprint", fp, "signers", rec.Signers(), "source", rec.Source)
	}
	for fp, rec := range s.keys {
		slog.Debug("rsa key", "fingerprint", fp, "bits", rec.Key.Bits(), "source", rec.Source)
	}
	for _, rec := range s.failures {
		slog.Debug("failure", "source", rec.Source, "kind", rec.Kind, "error", rec.Error)
	}
	slog.Debug("catalog totals",
		"certificates", len(s.certs), "messages", len(s.messages),
		"keys", len(s.keys), "failures", len(s.failures))
}

// Reset clears the store.
func (s *MemStore) Reset() {
	s.certs = make(map[string]*CertRecord)
	s.messages = make(map[string]*MessageRecord)
	s.keys = make(map[string]*KeyRecord)
	s.failures = make(map[string]*FailureRecord)
}
