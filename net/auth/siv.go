package auth

// Symmetric packet authentication with AES-SIV-CMAC-256 in the style of the NTS
// Authenticator and Encrypted Extension Fields, RFC 8915, Section 5.6. Keys are
// provisioned out of band; there is one key per direction.

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/miscreant/miscreant.go"

	"example.com/timesync/net/ntp"
)

const (
	extTypeAuthenticator uint16 = 0x0404

	sivAlgorithm = "AES-CMAC-SIV"
	sivKeyLen    = 32
	sivNonceLen  = 16
	sivTagLen    = 16

	extLen = 2 + 2 + 2 + 2 + sivNonceLen + sivTagLen
)

type SIV struct {
	sign   cipher.AEAD
	verify cipher.AEAD
}

var _ Authenticator = (*SIV)(nil)

// NewSIV creates an authenticator that signs outgoing packets with signKey
// and verifies incoming packets with verifyKey. A client uses its C2S key for
// signing and the S2C key for verification; a server the reverse.
func NewSIV(signKey, verifyKey []byte) (*SIV, error) {
	if len(signKey) != sivKeyLen || len(verifyKey) != sivKeyLen {
		return nil, fmt.Errorf("unexpected key length, want %d bytes", sivKeyLen)
	}
	s, err := miscreant.NewAEAD(sivAlgorithm, signKey, sivNonceLen)
	if err != nil {
		return nil, err
	}
	v, err := miscreant.NewAEAD(sivAlgorithm, verifyKey, sivNonceLen)
	if err != nil {
		return nil, err
	}
	return &SIV{sign: s, verify: v}, nil
}

func (a *SIV) Sign(payload []byte) ([]byte, error) {
	if len(payload) != ntp.PacketLen {
		return nil, fmt.Errorf("unexpected payload length: %d", len(payload))
	}
	nonce := make([]byte, sivNonceLen)
	_, err := rand.Read(nonce)
	if err != nil {
		return nil, err
	}
	tag := a.sign.Seal(nil, nonce, nil, payload)
	if len(tag) != sivTagLen {
		panic("unexpected AEAD overhead")
	}

	b := make([]byte, ntp.PacketLen+extLen)
	copy(b, payload)
	ext := b[ntp.PacketLen:]
	binary.BigEndian.PutUint16(ext[0:], extTypeAuthenticator)
	binary.BigEndian.PutUint16(ext[2:], extLen)
	binary.BigEndian.PutUint16(ext[4:], sivNonceLen)
	binary.BigEndian.PutUint16(ext[6:], sivTagLen)
	copy(ext[8:], nonce)
	copy(ext[8+sivNonceLen:], tag)
	return b, nil
}

func (a *SIV) Verify(raw []byte) ([]byte, error) {
	if len(raw) != ntp.PacketLen+extLen {
		return nil, fmt.Errorf("%w: unexpected packet length %d", ErrAuthenticationFailed, len(raw))
	}
	ext := raw[ntp.PacketLen:]
	if binary.BigEndian.Uint16(ext[0:]) != extTypeAuthenticator ||
		binary.BigEndian.Uint16(ext[2:]) != extLen ||
		binary.BigEndian.Uint16(ext[4:]) != sivNonceLen ||
		binary.BigEndian.Uint16(ext[6:]) != sivTagLen {
		return nil, fmt.Errorf("%w: unexpected extension field", ErrAuthenticationFailed)
	}
	nonce := ext[8 : 8+sivNonceLen]
	tag := ext[8+sivNonceLen:]
	_, err := a.verify.Open(nil, nonce, tag, raw[:ntp.PacketLen])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}
	return raw[:ntp.PacketLen], nil
}
