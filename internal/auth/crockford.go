// Package auth implements the bearer-token/basic-auth gate: Crockford
// Base32 token encoding and the unified authentication/authorization
// procedure shared by every endpoint.
package auth

import (
	"crypto/rand"
	"errors"
	"strings"
)

const crockfordAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

var ErrBadEncoding = errors.New("auth: invalid crockford base32 encoding")

var decodeTable [256]int8

func init() {
	for i := range decodeTable {
		decodeTable[i] = -1
	}
	for i, c := range crockfordAlphabet {
		decodeTable[c] = int8(i)
	}
	// Crockford's ambiguity-tolerant aliases.
	decodeTable['O'] = decodeTable['0']
	decodeTable['o'] = decodeTable['0']
	decodeTable['I'] = decodeTable['1']
	decodeTable['i'] = decodeTable['1']
	decodeTable['L'] = decodeTable['1']
	decodeTable['l'] = decodeTable['1']
	for i, c := range crockfordAlphabet {
		if c >= 'A' {
			decodeTable[c+32] = int8(i) // lowercase
		}
	}
}

// EncodeCrockford encodes raw bytes as Crockford Base32, without padding.
func EncodeCrockford(data []byte) string {
	var sb strings.Builder
	var bitBuf uint32
	bitCount := 0
	for _, b := range data {
		bitBuf = (bitBuf << 8) | uint32(b)
		bitCount += 8
		for bitCount >= 5 {
			bitCount -= 5
			idx := (bitBuf >> uint(bitCount)) & 0x1F
			sb.WriteByte(crockfordAlphabet[idx])
		}
	}
	if bitCount > 0 {
		idx := (bitBuf << uint(5-bitCount)) & 0x1F
		sb.WriteByte(crockfordAlphabet[idx])
	}
	return sb.String()
}

// DecodeCrockford decodes a Crockford Base32 string back to raw bytes.
func DecodeCrockford(s string) ([]byte, error) {
	var out []byte
	var bitBuf uint32
	bitCount := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		v := decodeTable[c]
		if v < 0 {
			return nil, ErrBadEncoding
		}
		bitBuf = (bitBuf << 5) | uint32(v)
		bitCount += 5
		if bitCount >= 8 {
			bitCount -= 8
			out = append(out, byte((bitBuf>>uint(bitCount))&0xFF))
		}
	}
	return out, nil
}

// TokenSecretPrefix is prepended to the Crockford-encoded token on the wire.
const TokenSecretPrefix = "secret-token:"

// NewTokenBytes generates 32 cryptographically random bytes for a fresh
// bearer token.
func NewTokenBytes() ([]byte, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// EncodeToken renders the wire form of a 32-byte token.
func EncodeToken(raw []byte) string {
	return TokenSecretPrefix + EncodeCrockford(raw)
}

// DecodeToken parses the wire form back to 32 raw bytes.
func DecodeToken(wire string) ([]byte, error) {
	if !strings.HasPrefix(wire, TokenSecretPrefix) {
		return nil, ErrBadEncoding
	}
	raw, err := DecodeCrockford(strings.TrimPrefix(wire, TokenSecretPrefix))
	if err != nil {
		return nil, err
	}
	if len(raw) != 32 {
		return nil, ErrBadEncoding
	}
	return raw, nil
}
