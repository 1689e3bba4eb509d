package catalog

import (
	"bytes"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/sensiblebit/bootkit"
	"github.com/sensiblebit/bootkit/x509cert"
)

// jksMagic opens every Java KeyStore.
var jksMagic = []byte{0xFE, 0xED, 0xFE, 0xED}

// ProcessData ingests signing artifacts from in-memory data, dispatching
// decoded objects to the handler. PEM input is split into blocks; binary
// input is only tried when the path has a recognized extension. Decode
// failures go to HandleFailure rather than aborting the scan.
func ProcessData(input ProcessInput) error {
	if len(input.Data) == 0 {
		return nil
	}
	if input.Handler == nil {
		return errors.New("no handler")
	}

	if bootkit.IsPEM(input.Data) {
		slog.Debug("processing as PEM format", "path", input.Path)
		processPEM(input.Data, input.Path, input.Handler)
		return nil
	}

	if HasBinaryExtension(input.Path) {
		slog.Debug("processing as binary format", "path", input.Path)
		processDER(input.Data, input.Path, input.Passwords, input.Handler)
	}
	return nil
}

// processPEM dispatches every supported block. A bad block is reported and
// skipped; the rest of the file is still processed.
func processPEM(data []byte, source string, handler Handler) {
	rest := data
	for n := 0; ; n++ {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return
		}
		blockSource := fmt.Sprintf("%s#%d", source, n)
		obj, err := bootkit.ParseBlock(block)
		if err != nil {
			slog.Warn("skipping malformed PEM block", "path", blockSource, "type", block.Type, "error", err)
			handler.HandleFailure(blockSource, err)
			continue
		}
		if obj == nil {
			slog.Debug("skipping unsupported PEM block", "path", blockSource, "type", block.Type)
			continue
		}
		dispatch(obj, blockSource, handler)
	}
}

// processDER tries the binary formats in priority order:
// certificate / PKCS7 signature / RSA key → JKS → certs-only PKCS#7 → PKCS#12.
func processDER(data []byte, source string, passwords []string, handler Handler) {
	obj, derErr := bootkit.ParseDER(data)
	if derErr == nil {
		dispatch(obj, source, handler)
		return
	}

	if bytes.HasPrefix(data, jksMagic) {
		slog.Debug("attempting JKS parsing", "path", source)
		certs, err := bootkit.CertificatesFromJKS(data, passwords)
		if err == nil {
			dispatchCerts(certs, source, handler)
			return
		}
		slog.Debug("JKS decode failed", "path", source, "error", err)
		handler.HandleFailure(source, err)
		return
	}

	if certs, err := bootkit.CertificatesFromP7B(data); err == nil {
		slog.Debug("parsed certs-only PKCS#7", "path", source, "count", len(certs))
		dispatchCerts(certs, source, handler)
		return
	}

	if isPKCS12Path(source) {
		slog.Debug("attempting PKCS#12 parsing", "path", source)
		certs, err := bootkit.CertificatesFromPKCS12(data, passwords)
		if err == nil {
			dispatchCerts(certs, source, handler)
			return
		}
		slog.Debug("PKCS#12 decode failed", "path", source, "error", err)
		handler.HandleFailure(source, err)
		return
	}

	slog.Debug("no known format matched binary data", "path", source, "error", derErr)
	handler.HandleFailure(source, derErr)
}

func isPKCS12Path(path string) bool {
	if idx := strings.LastIndex(path, ":"); idx >= 0 {
		path = path[idx+1:]
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".p12", ".pfx":
		return true
	}
	return false
}

// dispatch hands an object to the handler. The certificates embedded in a
// PKCS7 message are cataloged alongside it.
func dispatch(obj *bootkit.Object, source string, handler Handler) {
	switch obj.Kind {
	case bootkit.KindCertificate:
		if err := handler.HandleCertificate(obj.Certificate, source); err != nil {
			slog.Debug("handler rejected certificate", "path", source, "error", err)
		}
	case bootkit.KindMessage:
		if err := handler.HandleMessage(obj.Message, obj.Raw, source); err != nil {
			slog.Debug("handler rejected PKCS7 message", "path", source, "error", err)
		}
		dispatchCerts(obj.Message.Certificates, source, handler)
	case bootkit.KindPublicKey:
		if err := handler.HandleKey(obj.PublicKey, obj.Raw, source); err != nil {
			slog.Debug("handler rejected public key", "path", source, "error", err)
		}
	}
}

func dispatchCerts(certs []*x509cert.Certificate, source string, handler Handler) {
	for _, cert := range certs {
		if err := handler.HandleCertificate(cert, source); err != nil {
			slog.Debug("handler rejected certificate", "path", source, "error", err)
		}
	}
}
