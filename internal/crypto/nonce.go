// Package crypto provides order identifier generation, EIP-712 and HMAC
// signing, and encrypted private-key storage for the venue gateways.
package crypto

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math/big"
	"time"
)

// nonceShift reserves the low 64 bits of a nonce for the random component.
var nonceShift = new(big.Int).Lsh(big.NewInt(1), 64)

// NewNonce returns a decimal-encoded identifier built from the current
// microsecond timestamp and 64 bits of crypto/rand entropy. Two orders
// submitted in the same microsecond from the same process collide only when
// their random words collide.
func NewNonce() (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("crypto: reading nonce entropy: %w", err)
	}
	random := binary.BigEndian.Uint64(buf[:])

	n := new(big.Int).SetInt64(time.Now().UnixMicro())
	n.Mul(n, nonceShift)
	n.Add(n, new(big.Int).SetUint64(random))
	return n.String(), nil
}

// NewSalt returns a fresh salt for an order signature. Salts use the same
// timestamp-plus-entropy construction as nonces but are generated
// independently, so a replayed payload never reuses both values.
func NewSalt() (string, error) {
	return NewNonce()
}
