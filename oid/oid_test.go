package oid

import (
	"crypto"
	"sync"
	"testing"
)

func TestLookup_KnownEncodings(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw   []byte
		want  ID
		name  string
		label string
	}{
		{[]byte{0x2a, 0x86, 0x48, 0x86, 0xf7, 0x0d, 0x01, 0x01, 0x01}, RSAEncryption, "rsa", ""},
		{[]byte{0x2a, 0x86, 0x48, 0x86, 0xf7, 0x0d, 0x01, 0x01, 0x0b}, SHA256WithRSA, "sha256WithRSAEncryption", ""},
		{[]byte{0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x01}, SHA256, "sha256", ""},
		{[]byte{0x2a, 0x86, 0x48, 0x86, 0xf7, 0x0d, 0x01, 0x09, 0x04}, MessageDigest, "messageDigest", ""},
		{[]byte{0x2b, 0x06, 0x01, 0x04, 0x01, 0x82, 0x37, 0x02, 0x01, 0x04}, MSIndirectData, "msIndirectData", ""},
		{[]byte{0x55, 0x04, 0x03}, CommonName, "commonName", "CN"},
		{[]byte{0x55, 0x04, 0x0a}, OrganizationName, "organizationName", "O"},
		{[]byte{0x2a, 0x86, 0x48, 0x86, 0xf7, 0x0d, 0x01, 0x09, 0x01}, EmailAddress, "emailAddress", "emailAddress"},
		{[]byte{0x09, 0x92, 0x26, 0x89, 0x93, 0xf2, 0x2c, 0x64, 0x01, 0x19}, DomainComponent, "domainComponent", "DC"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			id := Lookup(tt.raw)
			if id != tt.want {
				t.Fatalf("Lookup(%x) = %v, want %v", tt.raw, id, tt.want)
			}
			if id.String() != tt.name {
				t.Errorf("String() = %q, want %q", id.String(), tt.name)
			}
			if id.Label() != tt.label {
				t.Errorf("Label() = %q, want %q", id.Label(), tt.label)
			}
		})
	}
}

func TestLookup_Unknown(t *testing.T) {
	t.Parallel()
	for _, raw := range [][]byte{nil, {0x55, 0x04}, {0x55, 0x04, 0x03, 0x00}} {
		if id := Lookup(raw); id != Unknown {
			t.Errorf("Lookup(%x) = %v, want Unknown", raw, id)
		}
	}
	if Unknown.String() != "unknown" || Unknown.Dotted() != "" || Unknown.Raw() != nil {
		t.Error("Unknown has non-empty rendering")
	}
}

func TestTableIsComplete(t *testing.T) {
	// WHY: Every ID constant must have an entry; a gap would make Lookup silently return Unknown for a supported algorithm.
	t.Parallel()
	seen := make(map[string]ID)
	for id := RSAEncryption; id < numIDs; id++ {
		if id.Dotted() == "" || id.String() == "" {
			t.Errorf("ID %d has no table entry", id)
			continue
		}
		if prev, dup := seen[id.Dotted()]; dup {
			t.Errorf("%s listed for both %v and %v", id.Dotted(), prev, id)
		}
		seen[id.Dotted()] = id
		if Lookup(id.Raw()) != id {
			t.Errorf("Lookup(Raw(%v)) did not round trip", id)
		}
	}
}

func TestSignature(t *testing.T) {
	t.Parallel()
	s, ok := Signature(SHA256WithRSA)
	if !ok || s.PublicKey != RSAEncryption || s.Hash != SHA256 || s.Encoding != "pkcs1" {
		t.Errorf("Signature(sha256WithRSA) = %+v, %v", s, ok)
	}
	if _, ok := Signature(SHA256); ok {
		t.Error("a digest OID was accepted as a signature algorithm")
	}
	if Hash(s.Hash) != crypto.SHA256 {
		t.Errorf("Hash = %v", Hash(s.Hash))
	}
	if Hash(RSAEncryption) != 0 || IsDigest(RSAEncryption) {
		t.Error("rsaEncryption treated as a digest")
	}
}

func TestLookup_Concurrent(t *testing.T) {
	t.Parallel()
	raw := SHA256.Raw()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				if Lookup(raw) != SHA256 {
					t.Error("concurrent lookup mismatch")
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestByName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		want ID
	}{
		{"sha256", SHA256},
		{"SHA384", SHA384},
		{"rsa", RSAEncryption},
		{"commonName", CommonName},
		{"sha3-256", Unknown},
		{"", Unknown},
	}
	for _, tt := range tests {
		if got := ByName(tt.name); got != tt.want {
			t.Errorf("ByName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
