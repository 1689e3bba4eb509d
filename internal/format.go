package internal

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sensiblebit/bootkit/internal/catalog"
)

// CertAnnotation returns a parenthetical annotation like " (2 expired, 1 unanchored)"
// for non-zero counts, or an empty string if both are zero.
func CertAnnotation(expired, unanchored int) string {
	var parts []string
	if expired > 0 {
		parts = append(parts, fmt.Sprintf("%d expired", expired))
	}
	if unanchored > 0 {
		parts = append(parts, fmt.Sprintf("%d unanchored", unanchored))
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

// FormatScanSummary renders the human-readable report printed after a scan.
// Unanchored counts are only shown when anchorsChecked is set.
func FormatScanSummary(s catalog.ScanSummary, stats ScanStats, anchorsChecked bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Scanned %d file(s) and %d archive(s)", stats.Files, stats.Archives)
	if stats.Skipped > 0 {
		fmt.Fprintf(&sb, ", skipped %d", stats.Skipped)
	}
	sb.WriteString("\n")

	certs := s.Roots + s.Intermediates + s.Leaves
	unanchored := 0
	if anchorsChecked {
		unanchored = certs - s.Anchored
	}
	fmt.Fprintf(&sb, "Certificates: %d (%d root, %d intermediate, %d leaf)%s\n",
		certs, s.Roots, s.Intermediates, s.Leaves, CertAnnotation(s.Expired, unanchored))
	fmt.Fprintf(&sb, "Signatures:   %d", s.Messages)
	if s.DetachedSigs > 0 {
		fmt.Fprintf(&sb, " (%d detached)", s.DetachedSigs)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "RSA keys:     %d\n", s.Keys)

	if s.Failures > 0 {
		kinds := make([]string, 0, len(s.FailuresByKind))
		for kind := range s.FailuresByKind {
			kinds = append(kinds, kind)
		}
		slices.Sort(kinds)
		parts := make([]string, len(kinds))
		for i, kind := range kinds {
			parts[i] = fmt.Sprintf("%d %s", s.FailuresByKind[kind], kind)
		}
		fmt.Fprintf(&sb, "Failures:     %d (%s)\n", s.Failures, strings.Join(parts, ", "))
	}
	return sb.String()
}
