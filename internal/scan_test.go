package internal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sensiblebit/bootkit/internal/catalog"
)

func writeTree(t *testing.T, files map[string][]byte) string {
	t.Helper()
	root := t.TempDir()
	for name, data := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestScanPath_Tree(t *testing.T) {
	// WHY: A boot partition mixes loose artifacts, archives and VCS
	// metadata; archives are opened and skippable directories never are.
	t.Parallel()
	signer := newTestCert(t, nil, "image-signer", false)
	hidden := newTestCert(t, nil, "in-git", false)
	rootfs := createTestTarGz(t, map[string][]byte{
		"etc/keys/verity.pub": readFixture(t, "rsa_public.der"),
	})

	root := writeTree(t, map[string][]byte{
		"boot/Image.p7s":        readFixture(t, "image.p7"),
		"boot/signer.crt":       signer.pemBuf,
		"boot/notes.txt":        []byte("kernel 6.1"),
		"images/rootfs.tar.gz":  rootfs,
		".git/objects/cert.pem": hidden.pemBuf,
	})

	store := catalog.NewMemStore()
	stats, err := ScanPath(context.Background(), ScanInput{
		Path:    root,
		Handler: store,
		Limits:  DefaultArchiveLimits(),
	})
	if err != nil {
		t.Fatalf("ScanPath: %v", err)
	}
	if stats.Files != 3 || stats.Archives != 1 || stats.Skipped != 0 {
		t.Errorf("stats = %+v", stats)
	}

	var subjects []string
	for _, rec := range store.AllCerts() {
		subjects = append(subjects, rec.Cert.Subject.String())
	}
	if len(subjects) != 2 {
		t.Errorf("certificates = %v, want the signer and the embedded Linaro cert", subjects)
	}
	for _, s := range subjects {
		if s == "Example: in-git" {
			t.Error("certificate under .git was cataloged")
		}
	}
	if len(store.AllMessages()) != 1 {
		t.Errorf("got %d messages, want 1", len(store.AllMessages()))
	}
	keys := store.AllKeys()
	if len(keys) != 1 || keys[0].Source != filepath.Join(root, "images", "rootfs.tar.gz")+":etc/keys/verity.pub" {
		t.Errorf("keys = %+v", keys)
	}
}

func TestScanPath_MaxFileSize(t *testing.T) {
	t.Parallel()
	signer := newTestCert(t, nil, "small", false)
	root := writeTree(t, map[string][]byte{
		"signer.pem": signer.pemBuf,
		"Image.p7s":  readFixture(t, "image.p7"),
	})

	store := catalog.NewMemStore()
	stats, err := ScanPath(context.Background(), ScanInput{
		Path:        root,
		Handler:     store,
		Limits:      DefaultArchiveLimits(),
		MaxFileSize: int64(len(signer.pemBuf)),
	})
	if err != nil {
		t.Fatalf("ScanPath: %v", err)
	}
	if stats.Files != 1 || stats.Skipped != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if len(store.AllMessages()) != 0 {
		t.Error("oversized signature was processed")
	}
}

func TestScanPath_SingleFile(t *testing.T) {
	t.Parallel()
	store := catalog.NewMemStore()
	stats, err := ScanPath(context.Background(), ScanInput{
		Path:    filepath.Join("testdata", "selfsigned.der"),
		Handler: store,
		Limits:  DefaultArchiveLimits(),
	})
	if err != nil {
		t.Fatalf("ScanPath: %v", err)
	}
	if stats.Files != 1 || len(store.AllCerts()) != 1 {
		t.Errorf("stats = %+v, certs = %d", stats, len(store.AllCerts()))
	}
}

func TestScanPath_Errors(t *testing.T) {
	t.Parallel()

	_, err := ScanPath(context.Background(), ScanInput{
		Path:    filepath.Join(t.TempDir(), "missing"),
		Handler: catalog.NewMemStore(),
	})
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing path error = %v", err)
	}

	if _, err := ScanPath(context.Background(), ScanInput{Path: "testdata"}); err == nil {
		t.Error("expected error for nil handler")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ScanPath(ctx, ScanInput{Path: "testdata", Handler: catalog.NewMemStore()})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled scan error = %v", err)
	}
}

func TestIsSkippableDir(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		want bool
	}{
		{".git", true},
		{"node_modules", true},
		{"proc", true},
		{"boot", false},
		{"etc", false},
	}
	for _, tt := range tests {
		if got := IsSkippableDir(tt.name); got != tt.want {
			t.Errorf("IsSkippableDir(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
