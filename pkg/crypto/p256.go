package crypto

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

// P-256 parameters (Matter Specification Section 3.5.1).
const (
	P256GroupSizeBits  = 256
	P256GroupSizeBytes = 32

	// P256PublicKeySizeBytes is the uncompressed-point encoding: 0x04 || X || Y.
	P256PublicKeySizeBytes = 65
	// P256CompressedPublicKeySizeBytes is the compressed-point encoding: 0x02/0x03 || X.
	P256CompressedPublicKeySizeBytes = 33
	// P256SignatureSizeBytes is the fixed r || s ECDSA signature encoding.
	P256SignatureSizeBytes = 64
)

func p256Curve() elliptic.Curve { return elliptic.P256() }

// P256KeyPair is a Matter KeyPair (spec 3.5.1): one scalar, exposed
// through both the ecdh and ecdsa stdlib types since agreement and
// signing need different APIs over the same key.
type P256KeyPair struct {
	ecdhPrivate  *ecdh.PrivateKey
	ecdsaPrivate *ecdsa.PrivateKey
}

// P256PublicKey returns the public key as an uncompressed point.
func (kp *P256KeyPair) P256PublicKey() []byte {
	return kp.ecdhPrivate.PublicKey().Bytes()
}

// P256PublicKeyCompressed returns the public key as a compressed point.
func (kp *P256KeyPair) P256PublicKeyCompressed() []byte {
	pub := kp.ecdsaPrivate.PublicKey
	return elliptic.MarshalCompressed(p256Curve(), pub.X, pub.Y)
}

// P256PrivateKey returns the private scalar.
func (kp *P256KeyPair) P256PrivateKey() []byte {
	return kp.ecdhPrivate.Bytes()
}

// P256GenerateKeyPair implements Crypto_GenerateKeyPair (spec 3.5.2).
func P256GenerateKeyPair() (*P256KeyPair, error) {
	ecdhPriv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ECDH key: %w", err)
	}
	return newKeyPair(ecdhPriv)
}

// P256KeyPairFromPrivateKey reconstructs a key pair from its private scalar.
func P256KeyPairFromPrivateKey(privateKey []byte) (*P256KeyPair, error) {
	if len(privateKey) != P256GroupSizeBytes {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", P256GroupSizeBytes, len(privateKey))
	}
	ecdhPriv, err := ecdh.P256().NewPrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return newKeyPair(ecdhPriv)
}

// newKeyPair derives the ecdsa.PrivateKey view of an ecdh.PrivateKey, the
// one conversion every constructor needs.
func newKeyPair(ecdhPriv *ecdh.PrivateKey) (*P256KeyPair, error) {
	x, y, err := parseUncompressedPoint(ecdhPriv.PublicKey().Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to convert to ECDSA key: %w", err)
	}
	d := new(big.Int).SetBytes(ecdhPriv.Bytes())

	return &P256KeyPair{
		ecdhPrivate: ecdhPriv,
		ecdsaPrivate: &ecdsa.PrivateKey{
			PublicKey: ecdsa.PublicKey{Curve: p256Curve(), X: x, Y: y},
			D:         d,
		},
	}, nil
}

// parseUncompressedPoint splits a 0x04 || X || Y encoding into its
// coordinates. Every entry point that accepts a raw public key
// (P256Verify, P256ValidatePublicKey, newKeyPair) goes through this
// single parser rather than re-deriving the 1:33 / 33:65 slicing.
func parseUncompressedPoint(encoded []byte) (x, y *big.Int, err error) {
	if len(encoded) != P256PublicKeySizeBytes {
		return nil, nil, fmt.Errorf("public key must be %d bytes, got %d", P256PublicKeySizeBytes, len(encoded))
	}
	if encoded[0] != 0x04 {
		return nil, nil, errors.New("public key must be in uncompressed format (starting with 0x04)")
	}
	x = new(big.Int).SetBytes(encoded[1:33])
	y = new(big.Int).SetBytes(encoded[33:65])
	return x, y, nil
}

// putScalar zero-pads scalar into the rightmost len(scalar)-sized field
// of dst, the "fixed-width big-endian integer" encoding used for both
// signature components and curve coordinates.
func putScalar(dst []byte, scalar *big.Int) {
	b := scalar.Bytes()
	copy(dst[len(dst)-len(b):], b)
}

// P256Sign implements Crypto_Sign (spec 3.5.3): SHA-256 the message,
// then ECDSA-sign the digest, returning a fixed-width r || s encoding.
func P256Sign(keyPair *P256KeyPair, message []byte) ([]byte, error) {
	hash := SHA256(message)

	r, s, err := ecdsa.Sign(rand.Reader, keyPair.ecdsaPrivate, hash[:])
	if err != nil {
		return nil, fmt.Errorf("ECDSA sign failed: %w", err)
	}

	sig := make([]byte, P256SignatureSizeBytes)
	putScalar(sig[:P256GroupSizeBytes], r)
	putScalar(sig[P256GroupSizeBytes:], s)
	return sig, nil
}

// P256Verify implements Crypto_Verify (spec 3.5.3).
func P256Verify(publicKey, message, signature []byte) (bool, error) {
	x, y, err := parseUncompressedPoint(publicKey)
	if err != nil {
		return false, err
	}
	pub := &ecdsa.PublicKey{Curve: p256Curve(), X: x, Y: y}
	if !pub.Curve.IsOnCurve(x, y) {
		return false, errors.New("public key point is not on the P-256 curve")
	}

	if len(signature) != P256SignatureSizeBytes {
		return false, fmt.Errorf("signature must be %d bytes, got %d", P256SignatureSizeBytes, len(signature))
	}
	r := new(big.Int).SetBytes(signature[:P256GroupSizeBytes])
	s := new(big.Int).SetBytes(signature[P256GroupSizeBytes:])

	hash := SHA256(message)
	return ecdsa.Verify(pub, hash[:], r, s), nil
}

// P256ECDH implements Crypto_ECDH (spec 3.5.4), returning the 32-byte
// x-coordinate of the shared point.
func P256ECDH(keyPair *P256KeyPair, peerPublicKey []byte) ([]byte, error) {
	if len(peerPublicKey) != P256PublicKeySizeBytes {
		return nil, fmt.Errorf("peer public key must be %d bytes, got %d", P256PublicKeySizeBytes, len(peerPublicKey))
	}

	peerPub, err := ecdh.P256().NewPublicKey(peerPublicKey)
	if err != nil {
		return nil, fmt.Errorf("invalid peer public key: %w", err)
	}

	secret, err := keyPair.ecdhPrivate.ECDH(peerPub)
	if err != nil {
		return nil, fmt.Errorf("ECDH computation failed: %w", err)
	}
	return secret, nil
}

// P256ECDHFromPrivateKey is P256ECDH for callers holding only raw key bytes.
func P256ECDHFromPrivateKey(privateKey, peerPublicKey []byte) ([]byte, error) {
	kp, err := P256KeyPairFromPrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	return P256ECDH(kp, peerPublicKey)
}

// P256PublicKeyFromCompressed expands a compressed point (0x02/0x03 || X)
// to the uncompressed encoding (0x04 || X || Y).
func P256PublicKeyFromCompressed(compressed []byte) ([]byte, error) {
	if len(compressed) != P256CompressedPublicKeySizeBytes {
		return nil, fmt.Errorf("compressed key must be %d bytes, got %d", P256CompressedPublicKeySizeBytes, len(compressed))
	}

	x, y := elliptic.UnmarshalCompressed(p256Curve(), compressed)
	if x == nil {
		return nil, errors.New("failed to decompress public key")
	}

	result := make([]byte, P256PublicKeySizeBytes)
	result[0] = 0x04
	putScalar(result[1:1+P256GroupSizeBytes], x)
	putScalar(result[1+P256GroupSizeBytes:], y)
	return result, nil
}

// P256ValidatePublicKey checks that publicKey decodes to a point actually
// on the P-256 curve.
func P256ValidatePublicKey(publicKey []byte) error {
	x, y, err := parseUncompressedPoint(publicKey)
	if err != nil {
		return err
	}
	if !p256Curve().IsOnCurve(x, y) {
		return errors.New("public key point is not on the P-256 curve")
	}
	return nil
}
