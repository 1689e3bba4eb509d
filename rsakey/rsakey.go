// Package rsakey decodes PKCS #1 RSA public keys (RFC 8017 appendix A.1.1),
// either bare or wrapped in a SubjectPublicKeyInfo.
package rsakey

import (
	"bytes"
	"crypto/rsa"
	"fmt"
	"math/big"

	"github.com/sensiblebit/bootkit/der"
	"github.com/sensiblebit/bootkit/oid"
)

// PublicKey holds the modulus and exponent exactly as encoded, including any
// leading zero sign-padding octet. Both slices are owned by the key.
type PublicKey struct {
	N []byte
	E []byte
}

// NSize returns the encoded modulus length in bytes.
func (k *PublicKey) NSize() int { return len(k.N) }

// ESize returns the encoded exponent length in bytes.
func (k *PublicKey) ESize() int { return len(k.E) }

// Bits returns the bit length of the modulus.
func (k *PublicKey) Bits() int {
	return new(big.Int).SetBytes(k.N).BitLen()
}

// CryptoKey converts the key for use with crypto/rsa.
func (k *PublicKey) CryptoKey() (*rsa.PublicKey, error) {
	e := new(big.Int).SetBytes(k.E)
	if !e.IsInt64() || e.Int64() > int64(^uint32(0)>>1) {
		return nil, fmt.Errorf("exponent of %d bits is too large", e.BitLen())
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(k.N), E: int(e.Int64())}, nil
}

// ParsePublicKey decodes an RSAPublicKey or a SubjectPublicKeyInfo whose
// algorithm is rsaEncryption. The returned key does not alias b.
func ParsePublicKey(b []byte) (*PublicKey, error) {
	top := der.NewCursor(b)
	outer, err := top.Expect(der.ClassUniversal, true, der.TagSequence)
	if err != nil {
		return nil, der.WithField(err, "publicKey")
	}
	if err := top.Finish(); err != nil {
		return nil, der.WithField(err, "publicKey")
	}

	seq := der.NewCursor(outer.Content)
	if !seq.PeekIs(der.ClassUniversal, true, der.TagSequence) {
		return ParseRSAPublicKey(outer.Raw)
	}

	bits, err := unwrapSPKI(seq)
	if err != nil {
		return nil, der.WithField(err, "subjectPublicKeyInfo")
	}
	return ParseRSAPublicKey(bits)
}

// unwrapSPKI checks the algorithm of a SubjectPublicKeyInfo and returns the
// subjectPublicKey payload.
func unwrapSPKI(seq *der.Cursor) ([]byte, error) {
	alg, err := seq.Sequence()
	if err != nil {
		return nil, der.WithField(err, "algorithm")
	}
	id, err := alg.ReadObjectIdentifier()
	if err != nil {
		return nil, der.WithField(err, "algorithm")
	}
	if oid.Lookup(id) != oid.RSAEncryption {
		return nil, der.WithField(der.Errorf(der.KindUnknownAlgorithm, "%s is not rsaEncryption", id), "algorithm")
	}
	if !alg.Empty() {
		if err := alg.ReadNull(); err != nil {
			return nil, der.WithField(err, "algorithm.parameters")
		}
	}
	if err := alg.Finish(); err != nil {
		return nil, der.WithField(err, "algorithm")
	}

	bs, err := seq.ReadBitString()
	if err != nil {
		return nil, der.WithField(err, "subjectPublicKey")
	}
	if bs.UnusedBits != 0 {
		return nil, der.WithField(der.Errorf(der.KindMalformedEncoding, "%d unused bits", bs.UnusedBits), "subjectPublicKey")
	}
	if err := seq.Finish(); err != nil {
		return nil, err
	}
	return bs.Bytes, nil
}

// ParseRSAPublicKey decodes a bare RSAPublicKey SEQUENCE.
func ParseRSAPublicKey(b []byte) (*PublicKey, error) {
	top := der.NewCursor(b)
	seq, err := top.Sequence()
	if err != nil {
		return nil, der.WithField(err, "RSAPublicKey")
	}
	if err := top.Finish(); err != nil {
		return nil, der.WithField(err, "RSAPublicKey")
	}

	n, err := readPositive(seq)
	if err != nil {
		return nil, der.WithField(err, "RSAPublicKey.modulus")
	}
	e, err := readPositive(seq)
	if err != nil {
		return nil, der.WithField(err, "RSAPublicKey.publicExponent")
	}
	if err := seq.Finish(); err != nil {
		return nil, der.WithField(err, "RSAPublicKey")
	}
	return &PublicKey{N: bytes.Clone(n), E: bytes.Clone(e)}, nil
}

func readPositive(c *der.Cursor) ([]byte, error) {
	v, err := c.ReadInteger()
	if err != nil {
		return nil, err
	}
	if der.IsNegative(v) {
		return nil, der.Errorf(der.KindInvalidValue, "negative integer")
	}
	if len(v) == 1 && v[0] == 0 {
		return nil, der.Errorf(der.KindInvalidValue, "zero integer")
	}
	return v, nil
}
