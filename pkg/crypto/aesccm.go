// AES-128-CCM (NIST 800-38C, RFC 3610) as Matter Specification Section
// 3.6 mandates it for message protection: 128-bit key, 128-bit tag,
// 13-byte nonce.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
	"errors"
)

// Matter mandates a fixed CCM profile (spec 3.6): 128-bit key, 128-bit
// tag, 13-byte nonce. NewAESCCMWithParams exists only so RFC 3610's own
// test vectors (which use other sizes) can exercise the same code path.
const (
	AESCCMKeySize   = 16
	AESCCMTagSize   = 16
	AESCCMNonceSize = 13

	aesBlockSize = 16
)

var (
	ErrAESCCMInvalidKeySize     = errors.New("aesccm: invalid key size, must be 16 bytes")
	ErrAESCCMInvalidNonceSize   = errors.New("aesccm: invalid nonce size")
	ErrAESCCMInvalidTagSize     = errors.New("aesccm: invalid tag size, must be 4, 6, 8, 10, 12, 14, or 16")
	ErrAESCCMPlaintextTooLong   = errors.New("aesccm: plaintext too long")
	ErrAESCCMCiphertextTooShort = errors.New("aesccm: ciphertext too short")
	ErrAESCCMAuthFailed         = errors.New("aesccm: message authentication failed")
)

// AESCCM is a keyed AES-CCM instance (NIST 800-38C, RFC 3610). tagSize is
// M in the RFC's notation; lenSize is L, the width in bytes of the
// message-length field that the nonce size leaves for the counter.
type AESCCM struct {
	block   cipher.Block
	tagSize int
	lenSize int
}

// NewAESCCM builds the Matter-mandated CCM profile: 13-byte nonce,
// 16-byte tag.
func NewAESCCM(key []byte) (*AESCCM, error) {
	return NewAESCCMWithParams(key, AESCCMNonceSize, AESCCMTagSize)
}

// NewAESCCMWithParams builds a CCM instance with an explicit nonce and
// tag size (NIST 800-38C allows 7-13 byte nonces and 4-16 byte even tags).
func NewAESCCMWithParams(key []byte, nonceSize, tagSize int) (*AESCCM, error) {
	if len(key) != AESCCMKeySize {
		return nil, ErrAESCCMInvalidKeySize
	}

	lenSize := 15 - nonceSize
	if lenSize < 2 || lenSize > 8 {
		return nil, ErrAESCCMInvalidNonceSize
	}
	if tagSize < 4 || tagSize > 16 || tagSize%2 != 0 {
		return nil, ErrAESCCMInvalidTagSize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &AESCCM{block: block, tagSize: tagSize, lenSize: lenSize}, nil
}

// NonceSize returns the nonce length this instance expects, derived from
// the configured length-field width (nonceSize = 15 - lenSize).
func (c *AESCCM) NonceSize() int { return 15 - c.lenSize }

// TagSize returns the configured authentication tag length.
func (c *AESCCM) TagSize() int { return c.tagSize }

// Seal implements Crypto_AEAD_GenerateEncrypt (spec 3.6.1): it returns
// ciphertext with the authentication tag appended.
func (c *AESCCM) Seal(nonce, plaintext, aad []byte) ([]byte, error) {
	if len(nonce) != c.NonceSize() {
		return nil, ErrAESCCMInvalidNonceSize
	}
	if maxLen := (1 << (8 * c.lenSize)) - 1; len(plaintext) > maxLen {
		return nil, ErrAESCCMPlaintextTooLong
	}

	tag := c.cbcMAC(nonce, plaintext, aad)
	s0 := c.counterBlock(nonce, 0)

	out := make([]byte, len(plaintext)+c.tagSize)
	xorInto(out[len(plaintext):], tag, s0[:c.tagSize])
	c.ctrXOR(nonce, out[:len(plaintext)], plaintext)
	return out, nil
}

// Open implements Crypto_AEAD_DecryptVerify (spec 3.6.2).
func (c *AESCCM) Open(nonce, ciphertext, aad []byte) ([]byte, error) {
	if len(nonce) != c.NonceSize() {
		return nil, ErrAESCCMInvalidNonceSize
	}
	if len(ciphertext) < c.tagSize {
		return nil, ErrAESCCMCiphertextTooShort
	}

	split := len(ciphertext) - c.tagSize
	encryptedData, encryptedTag := ciphertext[:split], ciphertext[split:]

	s0 := c.counterBlock(nonce, 0)
	receivedTag := make([]byte, c.tagSize)
	xorInto(receivedTag, encryptedTag, s0[:c.tagSize])

	plaintext := make([]byte, len(encryptedData))
	c.ctrXOR(nonce, plaintext, encryptedData)

	expectedTag := c.cbcMAC(nonce, plaintext, aad)
	if subtle.ConstantTimeCompare(receivedTag, expectedTag) != 1 {
		return nil, ErrAESCCMAuthFailed
	}
	return plaintext, nil
}

// xorInto sets dst[i] = a[i] ^ b[i] for len(dst) bytes.
func xorInto(dst, a, b []byte) {
	for i := range dst {
		dst[i] = a[i] ^ b[i]
	}
}

// b0Flags builds the CCM B_0 flags octet: Adata | M' | L' (RFC 3610
// §2.2).
func (c *AESCCM) b0Flags(hasAAD bool) byte {
	flags := byte(0)
	if hasAAD {
		flags |= 1 << 6
	}
	flags |= byte((c.tagSize-2)/2) << 3
	flags |= byte(c.lenSize - 1)
	return flags
}

// cbcMAC computes the raw CBC-MAC tag T over B_0, the encoded AAD, and
// the plaintext, then truncates to tagSize bytes (RFC 3610 §2.2).
func (c *AESCCM) cbcMAC(nonce, plaintext, aad []byte) []byte {
	var b0 [aesBlockSize]byte
	b0[0] = c.b0Flags(len(aad) > 0)
	n := copy(b0[1:], nonce)
	c.putLength(b0[1+n:], len(plaintext))

	mac := make([]byte, aesBlockSize)
	c.block.Encrypt(mac, b0[:])

	if len(aad) > 0 {
		c.absorbAAD(mac, aad)
	}
	c.absorbBlocks(mac, plaintext)

	return mac[:c.tagSize]
}

// absorbAAD feeds the length-prefixed AAD encoding (RFC 3610 §2.2) into
// the running CBC-MAC state.
func (c *AESCCM) absorbAAD(mac []byte, aad []byte) {
	var header [aesBlockSize]byte
	aadLen := len(aad)

	var headerLen int
	switch {
	case aadLen < (1<<16)-(1<<8):
		binary.BigEndian.PutUint16(header[0:2], uint16(aadLen))
		headerLen = 2
	case aadLen < (1 << 32):
		header[0], header[1] = 0xFF, 0xFE
		binary.BigEndian.PutUint32(header[2:6], uint32(aadLen))
		headerLen = 6
	default:
		header[0], header[1] = 0xFF, 0xFF
		binary.BigEndian.PutUint64(header[2:10], uint64(aadLen))
		headerLen = 10
	}

	firstChunk := aesBlockSize - headerLen
	if firstChunk > len(aad) {
		firstChunk = len(aad)
	}
	copy(header[headerLen:], aad[:firstChunk])

	for i := 0; i < aesBlockSize; i++ {
		mac[i] ^= header[i]
	}
	c.block.Encrypt(mac, mac)

	c.absorbBlocks(mac, aad[firstChunk:])
}

// absorbBlocks feeds data into the running CBC-MAC state one AES block
// at a time, zero-padding the final partial block (RFC 3610 §2.2).
func (c *AESCCM) absorbBlocks(mac []byte, data []byte) {
	for len(data) > 0 {
		var block [aesBlockSize]byte
		n := copy(block[:], data)
		data = data[n:]

		for i := 0; i < aesBlockSize; i++ {
			mac[i] ^= block[i]
		}
		c.block.Encrypt(mac, mac)
	}
}

// counterBlock encrypts the counter block A_i (flags | nonce | counter)
// under the instance key, implementing both S_0 (i=0, tag masking) and
// the CTR keystream generator (i>=1) from NIST 800-38C Appendix A.3.
func (c *AESCCM) counterBlock(nonce []byte, counter uint64) [aesBlockSize]byte {
	var a [aesBlockSize]byte
	a[0] = byte(c.lenSize - 1)
	n := copy(a[1:], nonce)
	c.putCounter(a[1+n:], counter)

	var out [aesBlockSize]byte
	c.block.Encrypt(out[:], a[:])
	return out
}

// ctrXOR encrypts/decrypts src into dst using CTR mode starting at
// counter 1, the convention CCM reserves counter 0 for S_0.
func (c *AESCCM) ctrXOR(nonce, dst, src []byte) {
	for offset, counter := 0, uint64(1); offset < len(src); offset, counter = offset+aesBlockSize, counter+1 {
		keystream := c.counterBlock(nonce, counter)
		end := offset + aesBlockSize
		if end > len(src) {
			end = len(src)
		}
		for i := offset; i < end; i++ {
			dst[i] = src[i] ^ keystream[i-offset]
		}
	}
}

// putLength encodes length as a big-endian value occupying dst[:lenSize].
func (c *AESCCM) putLength(dst []byte, length int) {
	for i := c.lenSize - 1; i >= 0; i-- {
		dst[i] = byte(length)
		length >>= 8
	}
}

// putCounter encodes counter as a big-endian value occupying dst[:lenSize].
func (c *AESCCM) putCounter(dst []byte, counter uint64) {
	for i := c.lenSize - 1; i >= 0; i-- {
		dst[i] = byte(counter)
		counter >>= 8
	}
}

// AESCCM128Encrypt implements Crypto_AEAD_GenerateEncrypt (spec 3.6.1)
// for the Matter-mandated 16-byte key / 13-byte nonce / 16-byte tag
// profile, without requiring the caller to hold onto an *AESCCM.
func AESCCM128Encrypt(key, nonce, plaintext, aad []byte) ([]byte, error) {
	ccm, err := NewAESCCM(key)
	if err != nil {
		return nil, err
	}
	return ccm.Seal(nonce, plaintext, aad)
}

// AESCCM128Decrypt implements Crypto_AEAD_DecryptVerify (spec 3.6.2) for
// the Matter-mandated CCM profile.
func AESCCM128Decrypt(key, nonce, ciphertext, aad []byte) ([]byte, error) {
	ccm, err := NewAESCCM(key)
	if err != nil {
		return nil, err
	}
	return ccm.Open(nonce, ciphertext, aad)
}
