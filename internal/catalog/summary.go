package catalog

import (
	"time"

	"github.com/sensiblebit/bootkit/x509cert"
)

// AnchorSet reports whether a certificate is issued by, or is, a trust anchor.
type AnchorSet interface {
	Anchored(cert *x509cert.Certificate) bool
}

// ScanSummaryInput holds parameters for ScanSummary.
type ScanSummaryInput struct {
	Anchors AnchorSet // nil skips trust checking
	Now     time.Time // zero means time.Now()
}

// ScanSummary holds aggregate counts from a scan operation.
type ScanSummary struct {
	Roots          int            `json:"roots" yaml:"roots"`
	Intermediates  int            `json:"intermediates" yaml:"intermediates"`
	Leaves         int            `json:"leaves" yaml:"leaves"`
	Messages       int            `json:"messages" yaml:"messages"`
	DetachedSigs   int            `json:"detached_messages" yaml:"detached_messages"`
	Keys           int            `json:"keys" yaml:"keys"`
	Expired        int            `json:"expired" yaml:"expired"`
	Anchored       int            `json:"anchored" yaml:"anchored"`
	Failures       int            `json:"failures" yaml:"failures"`
	FailuresByKind map[string]int `json:"failures_by_kind,omitempty" yaml:"failures_by_kind,omitempty"`
}

// ScanSummary returns aggregate counts of the stored records. When
// input.Anchors is set, certificates chaining directly to an anchor are
// counted as anchored.
func (s *MemStore) ScanSummary(input ScanSummaryInput) ScanSummary {
	now := input.Now
	if now.IsZero() {
		now = time.Now()
	}
	summary := ScanSummary{
		Messages: len(s.messages),
		Keys:     len(s.keys),
		Failures: len(s.failures),
	}
	for _, rec := range s.certs {
		switch rec.Role {
		case "root":
			summary.Roots++
		case "intermediate":
			summary.Intermediates++
		default:
			summary.Leaves++
		}
		if now.After(rec.NotAfter) {
			summary.Expired++
		}
		if input.Anchors != nil && input.Anchors.Anchored(rec.Cert) {
			summary.Anchored++
		}
	}
	for _, rec := range s.messages {
		if rec.Message.Detached() {
			summary.DetachedSigs++
		}
	}
	if len(s.failures) > 0 {
		summary.FailuresByKind = make(map[string]int)
		for _, rec := range s.failures {
			summary.FailuresByKind[rec.Kind]++
		}
	}
	return summary
}
