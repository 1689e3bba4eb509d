// Package catalog provides the processing pipeline that turns scanned files
// into decoded signing artifacts, and the store that collects them.
package catalog

import (
	"github.com/sensiblebit/bootkit/pkcs7"
	"github.com/sensiblebit/bootkit/rsakey"
	"github.com/sensiblebit/bootkit/x509cert"
)

// Handler receives decoded artifacts from the processing pipeline. Decoded
// records are owned by the handler; raw slices are only valid for the
// duration of the call.
type Handler interface {
	HandleCertificate(cert *x509cert.Certificate, source string) error
	HandleMessage(msg *pkcs7.Message, raw []byte, source string) error
	HandleKey(key *rsakey.PublicKey, raw []byte, source string) error
	// HandleFailure is told about inputs that looked like signing artifacts
	// but did not decode.
	HandleFailure(source string, err error)
}

// ProcessInput holds parameters for ProcessData.
type ProcessInput struct {
	Data      []byte   // raw file content
	Path      string   // virtual path for logging and extension detection
	Passwords []string // passwords to try for PKCS#12 and JKS containers
	Handler   Handler  // receives decoded items
}
