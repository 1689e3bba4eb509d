package internal

import (
	"encoding/pem"
	"log/slog"
	"sync"

	"github.com/breml/rootcerts/embedded"

	"github.com/sensiblebit/bootkit"
	"github.com/sensiblebit/bootkit/x509cert"
)

// Anchors is a set of trust anchor certificates. It implements
// catalog.AnchorSet. An Anchors is safe for concurrent reads once built.
type Anchors struct {
	bySubject    map[string][]*x509cert.Certificate
	fingerprints map[string]bool
}

// NewAnchors returns an anchor set holding certs.
func NewAnchors(certs ...*x509cert.Certificate) *Anchors {
	a := &Anchors{
		bySubject:    make(map[string][]*x509cert.Certificate),
		fingerprints: make(map[string]bool),
	}
	for _, c := range certs {
		a.Add(c)
	}
	return a
}

// Add inserts cert, ignoring duplicates.
func (a *Anchors) Add(cert *x509cert.Certificate) {
	fp := bootkit.Fingerprint(cert.Raw)
	if a.fingerprints[fp] {
		return
	}
	a.fingerprints[fp] = true
	a.bySubject[string(cert.RawSubject)] = append(a.bySubject[string(cert.RawSubject)], cert)
}

// Len returns the number of anchors.
func (a *Anchors) Len() int {
	return len(a.fingerprints)
}

// Issuer returns the anchor that issued cert, or nil. When both sides carry
// key identifiers they must agree; otherwise a subject match is enough.
func (a *Anchors) Issuer(cert *x509cert.Certificate) *x509cert.Certificate {
	for _, candidate := range a.bySubject[string(cert.RawIssuer)] {
		if len(cert.AuthorityKeyID) > 0 && len(candidate.SubjectKeyID) > 0 &&
			!candidate.MatchesSubjectKeyID(cert.AuthorityKeyID) {
			continue
		}
		return candidate
	}
	return nil
}

// Anchored reports whether cert is an anchor or was issued by one.
func (a *Anchors) Anchored(cert *x509cert.Certificate) bool {
	if a.fingerprints[bootkit.Fingerprint(cert.Raw)] {
		return true
	}
	return a.Issuer(cert) != nil
}

var mozillaAnchors = sync.OnceValue(func() *Anchors {
	return ParseAnchorsPEM([]byte(embedded.MozillaCACertificatesPEM()))
})

// LoadMozillaAnchors returns the Mozilla root program certificates, decoded
// once per process.
func LoadMozillaAnchors() *Anchors {
	return mozillaAnchors()
}

// ParseAnchorsPEM decodes every CERTIFICATE block of a PEM bundle. Blocks
// that do not decode are skipped.
func ParseAnchorsPEM(data []byte) *Anchors {
	a := NewAnchors()
	skipped := 0
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509cert.ParseCertificate(block.Bytes)
		if err != nil {
			slog.Debug("skipping anchor", "error", err)
			skipped++
			continue
		}
		a.Add(cert)
	}
	if skipped > 0 {
		slog.Debug("anchors not decoded", "skipped", skipped, "loaded", a.Len())
	}
	return a
}
