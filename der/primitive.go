package der

import (
	"bytes"
	"math/big"
	"strconv"
	"strings"
)

const signBit = 0x80

// ParseInteger validates INTEGER content octets and returns them unchanged.
// A single leading zero octet used as sign padding is kept.
func ParseInteger(content []byte) ([]byte, error) {
	if len(content) == 0 {
		return nil, Errorf(KindMalformedEncoding, "empty integer")
	}
	if len(content) > 1 {
		if content[0] == 0x00 && content[1]&signBit == 0 ||
			content[0] == 0xff && content[1]&signBit != 0 {
			return nil, Errorf(KindMalformedEncoding, "integer not minimally encoded")
		}
	}
	return content, nil
}

// IsNegative reports whether validated INTEGER content is negative.
func IsNegative(content []byte) bool {
	return len(content) > 0 && content[0]&signBit != 0
}

// ParseInt64 decodes INTEGER content into an int64.
func ParseInt64(content []byte) (int64, error) {
	if _, err := ParseInteger(content); err != nil {
		return 0, err
	}
	if len(content) > 8 {
		return 0, Errorf(KindInvalidValue, "integer of %d octets overflows int64", len(content))
	}
	var v int64
	if IsNegative(content) {
		v = -1
	}
	for _, c := range content {
		v = v<<8 | int64(c)
	}
	return v, nil
}

// ParseBoolean decodes BOOLEAN content. DER allows only 0x00 and 0xff.
func ParseBoolean(content []byte) (bool, error) {
	if len(content) != 1 {
		return false, Errorf(KindMalformedEncoding, "boolean of %d octets", len(content))
	}
	switch content[0] {
	case 0x00:
		return false, nil
	case 0xff:
		return true, nil
	default:
		return false, Errorf(KindMalformedEncoding, "boolean octet %#02x", content[0])
	}
}

// BitString is a decoded BIT STRING. Bytes borrows the input.
type BitString struct {
	Bytes      []byte
	UnusedBits int
}

// BitLen returns the number of significant bits.
func (b BitString) BitLen() int {
	return len(b.Bytes)*8 - b.UnusedBits
}

// ParseBitString decodes BIT STRING content: one unused-bits count octet
// followed by the payload.
func ParseBitString(content []byte) (BitString, error) {
	if len(content) == 0 {
		return BitString{}, Errorf(KindMalformedEncoding, "bit string missing unused-bits octet")
	}
	unused := int(content[0])
	payload := content[1:]
	if unused > 7 {
		return BitString{}, Errorf(KindMalformedEncoding, "bit string unused-bits count %d", unused)
	}
	if len(payload) == 0 && unused != 0 {
		return BitString{}, Errorf(KindMalformedEncoding, "empty bit string with %d unused bits", unused)
	}
	if unused > 0 && payload[len(payload)-1]&(1<<unused-1) != 0 {
		return BitString{}, Errorf(KindMalformedEncoding, "bit string padding bits are not zero")
	}
	return BitString{Bytes: payload, UnusedBits: unused}, nil
}

// ObjectIdentifier holds the content octets of an OBJECT IDENTIFIER. The raw
// form is what the oid package indexes.
type ObjectIdentifier []byte

// ParseObjectIdentifier validates OBJECT IDENTIFIER content octets.
func ParseObjectIdentifier(content []byte) (ObjectIdentifier, error) {
	if len(content) == 0 {
		return nil, Errorf(KindMalformedEncoding, "empty object identifier")
	}
	if content[len(content)-1]&moreOctetsBit != 0 {
		return nil, Errorf(KindMalformedEncoding, "object identifier ends inside an arc")
	}
	start := true
	for _, c := range content {
		if start && c == moreOctetsBit {
			return nil, Errorf(KindMalformedEncoding, "object identifier arc has leading zero septet")
		}
		start = c&moreOctetsBit == 0
	}
	return ObjectIdentifier(content), nil
}

// Equal reports whether both identifiers have the same encoding.
func (o ObjectIdentifier) Equal(other ObjectIdentifier) bool {
	return bytes.Equal(o, other)
}

// String renders the identifier in dotted decimal form.
func (o ObjectIdentifier) String() string {
	var sb strings.Builder
	first := true
	arc := new(big.Int)
	septets := 0
	var small uint64
	for _, c := range o {
		if septets < 9 {
			small = small<<7 | uint64(c&^moreOctetsBit)
		} else {
			if septets == 9 {
				arc.SetUint64(small)
			}
			arc.Lsh(arc, 7).Or(arc, big.NewInt(int64(c&^moreOctetsBit)))
		}
		septets++
		if c&moreOctetsBit != 0 {
			continue
		}
		if septets <= 9 {
			arc.SetUint64(small)
		}
		if first {
			writeFirstArcs(&sb, arc)
			first = false
		} else {
			sb.WriteByte('.')
			sb.WriteString(arc.String())
		}
		septets = 0
		small = 0
	}
	return sb.String()
}

// writeFirstArcs splits the leading subidentifier into the first two arcs
// (X.690 section 8.19.4).
func writeFirstArcs(sb *strings.Builder, v *big.Int) {
	switch {
	case v.Cmp(big.NewInt(40)) < 0:
		sb.WriteString("0." + v.String())
	case v.Cmp(big.NewInt(80)) < 0:
		sb.WriteString("1." + strconv.FormatInt(v.Int64()-40, 10))
	default:
		rest := new(big.Int).Sub(v, big.NewInt(80))
		sb.WriteString("2." + rest.String())
	}
}
