package oid

import "crypto"

// SignatureScheme describes what a signature algorithm identifier implies.
type SignatureScheme struct {
	PublicKey ID
	Hash      ID
	// Encoding names the signature value format: "pkcs1", "x962" or "raw".
	Encoding string
}

var signatures = map[ID]SignatureScheme{
	MD5WithRSA:      {RSAEncryption, MD5, "pkcs1"},
	SHA1WithRSA:     {RSAEncryption, SHA1, "pkcs1"},
	SHA224WithRSA:   {RSAEncryption, SHA224, "pkcs1"},
	SHA256WithRSA:   {RSAEncryption, SHA256, "pkcs1"},
	SHA384WithRSA:   {RSAEncryption, SHA384, "pkcs1"},
	SHA512WithRSA:   {RSAEncryption, SHA512, "pkcs1"},
	ECDSAWithSHA1:   {ECPublicKey, SHA1, "x962"},
	ECDSAWithSHA224: {ECPublicKey, SHA224, "x962"},
	ECDSAWithSHA256: {ECPublicKey, SHA256, "x962"},
	ECDSAWithSHA384: {ECPublicKey, SHA384, "x962"},
	ECDSAWithSHA512: {ECPublicKey, SHA512, "x962"},
	Ed25519:         {Ed25519, Unknown, "raw"},
}

// Signature returns the scheme of a signature algorithm identifier.
func Signature(id ID) (SignatureScheme, bool) {
	s, ok := signatures[id]
	return s, ok
}

var hashes = map[ID]crypto.Hash{
	MD5:    crypto.MD5,
	SHA1:   crypto.SHA1,
	SHA224: crypto.SHA224,
	SHA256: crypto.SHA256,
	SHA384: crypto.SHA384,
	SHA512: crypto.SHA512,
}

// IsDigest reports whether id names a digest algorithm.
func IsDigest(id ID) bool {
	_, ok := hashes[id]
	return ok
}

// Hash maps a digest algorithm to its crypto.Hash. It returns 0 for anything
// else. The hash implementation is not linked in by this call.
func Hash(id ID) crypto.Hash {
	return hashes[id]
}

// IsCurve reports whether id names a supported elliptic curve.
func IsCurve(id ID) bool {
	return id == P256 || id == P384 || id == P521
}
