package credentials

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"
)

// X509ToMatter converts an X.509 DER certificate to a Matter TLV Certificate.
func X509ToMatter(der []byte) (*Certificate, error) {
	x509Cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrX509ParseFailed, err)
	}
	return x509CertToMatter(x509Cert)
}

// X509PEMToMatter converts a PEM-encoded X.509 certificate to a Matter TLV Certificate.
func X509PEMToMatter(pemData []byte) (*Certificate, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrX509ParseFailed)
	}
	if block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("%w: expected CERTIFICATE, got %s", ErrX509ParseFailed, block.Type)
	}
	return X509ToMatter(block.Bytes)
}

// x509CertToMatter walks the fields of a parsed x509.Certificate into a
// Matter Certificate in wire-field order (spec Table 84).
func x509CertToMatter(x509Cert *x509.Certificate) (*Certificate, error) {
	cert := &Certificate{
		SerialNum: x509Cert.SerialNumber.Bytes(),
		NotBefore: timeToMatterEpoch(x509Cert.NotBefore),
		NotAfter:  timeToMatterEpoch(x509Cert.NotAfter),
	}
	if len(cert.SerialNum) > MaxSerialNumSize {
		return nil, ErrInvalidSerialNumber
	}

	var err error
	if cert.SigAlgo, err = convertSignatureAlgo(x509Cert.SignatureAlgorithm); err != nil {
		return nil, err
	}
	if cert.Issuer, err = convertDN(x509Cert.Issuer); err != nil {
		return nil, fmt.Errorf("issuer: %w", err)
	}
	if cert.Subject, err = convertDN(x509Cert.Subject); err != nil {
		return nil, fmt.Errorf("subject: %w", err)
	}
	if cert.PubKeyAlgo, cert.ECCurveID, err = convertPublicKeyAlgo(x509Cert); err != nil {
		return nil, err
	}
	if cert.ECPubKey, err = extractPublicKey(x509Cert); err != nil {
		return nil, err
	}
	if cert.Extensions, err = convertExtensions(x509Cert); err != nil {
		return nil, err
	}
	if cert.Signature, err = convertSignatureToRaw(x509Cert.Signature); err != nil {
		return nil, err
	}

	return cert, nil
}

func convertSignatureAlgo(algo x509.SignatureAlgorithm) (SignatureAlgo, error) {
	if algo != x509.ECDSAWithSHA256 {
		return SignatureAlgoUnknown, fmt.Errorf("%w: %v", ErrInvalidSignatureAlgo, algo)
	}
	return SignatureAlgoECDSASHA256, nil
}

// convertPublicKeyAlgo reports the key algorithm and curve. Matter only
// ever carries P-256 keys, so ECDSA is the only algorithm accepted.
func convertPublicKeyAlgo(x509Cert *x509.Certificate) (PublicKeyAlgo, EllipticCurveID, error) {
	if x509Cert.PublicKeyAlgorithm != x509.ECDSA {
		return PublicKeyAlgoUnknown, EllipticCurveUnknown,
			fmt.Errorf("%w: %v", ErrInvalidPublicKeyAlgo, x509Cert.PublicKeyAlgorithm)
	}
	return PublicKeyAlgoEC, EllipticCurvePrime256v1, nil
}

// extractPublicKey pulls the raw 65-byte uncompressed point out of
// SubjectPublicKeyInfo; crypto/x509 only exposes a parsed *ecdsa.PublicKey,
// not these wire bytes, so this re-parses the ASN.1 itself.
func extractPublicKey(x509Cert *x509.Certificate) ([]byte, error) {
	var spki struct {
		Algorithm pkix.AlgorithmIdentifier
		PublicKey asn1.BitString
	}
	if _, err := asn1.Unmarshal(x509Cert.RawSubjectPublicKeyInfo, &spki); err != nil {
		return nil, fmt.Errorf("%w: failed to parse public key info: %v", ErrInvalidPublicKey, err)
	}

	pubKey := spki.PublicKey.Bytes
	if len(pubKey) != PublicKeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidPublicKey, PublicKeySize, len(pubKey))
	}
	if pubKey[0] != 0x04 {
		return nil, fmt.Errorf("%w: expected uncompressed format (0x04)", ErrInvalidPublicKey)
	}
	return pubKey, nil
}

func convertDN(name pkix.Name) (DistinguishedName, error) {
	dn := make(DistinguishedName, 0, len(name.Names))
	for _, rdn := range name.Names {
		attr, err := convertRDN(rdn)
		if err != nil {
			return nil, err
		}
		dn = append(dn, attr)
	}
	return dn, nil
}

func convertRDN(rdn pkix.AttributeTypeAndValue) (DNAttribute, error) {
	tag := OIDToTag(rdn.Type)
	if tag == 0 {
		return DNAttribute{}, fmt.Errorf("%w: %v", ErrUnsupportedOID, rdn.Type)
	}

	strVal, ok := rdn.Value.(string)
	if !ok {
		return DNAttribute{}, fmt.Errorf("%w: DN attribute must be string", ErrInvalidDN)
	}

	if IsMatterSpecificTag(tag) {
		u64, err := HexStringToMatterSpecific(strVal)
		if err != nil {
			return DNAttribute{}, fmt.Errorf("%w: %v", ErrInvalidDN, err)
		}
		return NewDNUint64(tag, u64), nil
	}

	// Standard attributes are re-encoded as UTF8String; Matter's
	// PrintableString variant (tag + TagDNPrintableStringOffset) is only
	// ever produced by callers constructing DNAttribute directly.
	return NewDNString(tag, strVal), nil
}

// extensionParsers dispatches each known extension OID to its decoder,
// replacing a chain of per-extension if/else tests with a lookup.
var extensionParsers = map[string]func(*Extensions, []byte) error{
	OIDExtensionBasicConstraints.String(): func(ext *Extensions, v []byte) (err error) {
		ext.BasicConstraints, err = parseBasicConstraints(v)
		return err
	},
	OIDExtensionKeyUsage.String(): func(ext *Extensions, v []byte) (err error) {
		ext.KeyUsage, err = parseKeyUsage(v)
		return err
	},
	OIDExtensionExtKeyUsage.String(): func(ext *Extensions, v []byte) (err error) {
		ext.ExtendedKeyUsage, err = parseExtKeyUsage(v)
		return err
	},
	OIDExtensionSubjectKeyID.String(): func(ext *Extensions, v []byte) (err error) {
		ext.SubjectKeyID, err = parseSubjectKeyID(v)
		return err
	},
	OIDExtensionAuthorityKeyID.String(): func(ext *Extensions, v []byte) (err error) {
		ext.AuthorityKeyID, err = parseAuthorityKeyID(v)
		return err
	},
}

func convertExtensions(x509Cert *x509.Certificate) (Extensions, error) {
	var ext Extensions
	for _, x509Ext := range x509Cert.Extensions {
		parse, known := extensionParsers[x509Ext.Id.String()]
		if !known {
			ext.FutureExtensions = append(ext.FutureExtensions, FutureExtensionExt{Data: x509Ext.Value})
			continue
		}
		if err := parse(&ext, x509Ext.Value); err != nil {
			return ext, err
		}
	}
	return ext, nil
}

func parseBasicConstraints(value []byte) (*BasicConstraints, error) {
	var bc struct {
		IsCA       bool `asn1:"optional"`
		MaxPathLen int  `asn1:"optional,default:-1"`
	}
	if _, err := asn1.Unmarshal(value, &bc); err != nil {
		return nil, fmt.Errorf("%w: basic constraints: %v", ErrInvalidExtension, err)
	}

	result := &BasicConstraints{IsCA: bc.IsCA}
	if bc.MaxPathLen >= 0 {
		pl := uint8(bc.MaxPathLen)
		result.PathLenConstraint = &pl
	}
	return result, nil
}

// keyUsageBits pairs each Matter KeyUsage flag with the ASN.1 BIT STRING
// position it occupies (RFC 5280 §4.2.1.3), in bit order. Both
// parseKeyUsage and keyUsageToBitString (matter_to_x509.go) walk this
// same table instead of repeating nine near-identical flag checks.
var keyUsageBits = []struct {
	flag KeyUsage
	bit  int
}{
	{KeyUsageDigitalSignature, 0},
	{KeyUsageNonRepudiation, 1},
	{KeyUsageKeyEncipherment, 2},
	{KeyUsageDataEncipherment, 3},
	{KeyUsageKeyAgreement, 4},
	{KeyUsageKeyCertSign, 5},
	{KeyUsageCRLSign, 6},
	{KeyUsageEncipherOnly, 7},
	{KeyUsageDecipherOnly, 8},
}

func parseKeyUsage(value []byte) (*KeyUsageExt, error) {
	var bits asn1.BitString
	if _, err := asn1.Unmarshal(value, &bits); err != nil {
		return nil, fmt.Errorf("%w: key usage: %v", ErrInvalidExtension, err)
	}

	var usage KeyUsage
	for _, ku := range keyUsageBits {
		if bits.At(ku.bit) != 0 {
			usage |= ku.flag
		}
	}
	return &KeyUsageExt{Usage: usage}, nil
}

func parseExtKeyUsage(value []byte) (*ExtendedKeyUsageExt, error) {
	var oids []asn1.ObjectIdentifier
	if _, err := asn1.Unmarshal(value, &oids); err != nil {
		return nil, fmt.Errorf("%w: extended key usage: %v", ErrInvalidExtension, err)
	}

	purposes := make([]KeyPurposeID, 0, len(oids))
	for _, oid := range oids {
		kp := OIDToKeyPurpose(oid)
		if kp == KeyPurposeUnknown {
			return nil, fmt.Errorf("%w: unknown key purpose OID: %v", ErrInvalidExtension, oid)
		}
		purposes = append(purposes, kp)
	}
	return &ExtendedKeyUsageExt{KeyPurposes: purposes}, nil
}

// parseKeyID unmarshals an ASN.1 octet string and checks it is exactly
// 20 bytes (the SHA-1 key identifier length RFC 5280 mandates), shared by
// SubjectKeyIdentifier and the keyIdentifier field of AuthorityKeyIdentifier.
func parseKeyID(value []byte) ([]byte, error) {
	var keyID []byte
	if _, err := asn1.Unmarshal(value, &keyID); err != nil {
		return nil, err
	}
	if len(keyID) != 20 {
		return nil, fmt.Errorf("key ID must be 20 bytes, got %d", len(keyID))
	}
	return keyID, nil
}

func parseSubjectKeyID(value []byte) (*SubjectKeyIDExt, error) {
	keyID, err := parseKeyID(value)
	if err != nil {
		return nil, fmt.Errorf("%w: subject key ID: %v", ErrInvalidExtension, err)
	}
	ski := &SubjectKeyIDExt{}
	copy(ski.KeyID[:], keyID)
	return ski, nil
}

func parseAuthorityKeyID(value []byte) (*AuthorityKeyIDExt, error) {
	// AuthorityKeyIdentifier carries optional keyIdentifier,
	// authorityCertIssuer and authorityCertSerialNumber fields; Matter
	// only ever populates the first.
	var aki struct {
		KeyIdentifier             []byte        `asn1:"optional,tag:0"`
		AuthorityCertIssuer       asn1.RawValue `asn1:"optional,tag:1"`
		AuthorityCertSerialNumber *big.Int      `asn1:"optional,tag:2"`
	}
	if _, err := asn1.Unmarshal(value, &aki); err != nil {
		return nil, fmt.Errorf("%w: authority key ID: %v", ErrInvalidExtension, err)
	}
	if len(aki.KeyIdentifier) != 20 {
		return nil, fmt.Errorf("%w: authority key ID must be 20 bytes, got %d", ErrInvalidExtension, len(aki.KeyIdentifier))
	}

	result := &AuthorityKeyIDExt{}
	copy(result.KeyID[:], aki.KeyIdentifier)
	return result, nil
}

// convertSignatureToRaw converts an ASN.1 DER ECDSA signature (SEQUENCE {
// INTEGER r, INTEGER s }) to the fixed-width r||s encoding Matter uses.
func convertSignatureToRaw(sig []byte) ([]byte, error) {
	var ecdsaSig struct{ R, S *big.Int }
	if _, err := asn1.Unmarshal(sig, &ecdsaSig); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureConversionFailed, err)
	}

	raw := make([]byte, SignatureSize)
	putRightAligned(raw[:32], ecdsaSig.R)
	putRightAligned(raw[32:], ecdsaSig.S)
	return raw, nil
}

// putRightAligned zero-pads v's big-endian bytes into the rightmost
// portion of dst, shared by the signature and (in matter_to_x509.go) the
// TBSCertificate's raw DN fields wherever a fixed-width integer is needed.
func putRightAligned(dst []byte, v *big.Int) {
	b := v.Bytes()
	copy(dst[len(dst)-len(b):], b)
}

// timeToMatterEpoch converts a time.Time to Matter epoch seconds,
// collapsing both the X.509 GeneralizedTime "no expiration" sentinel
// (99991231235959Z) and any far-future overflow to 0.
func timeToMatterEpoch(t time.Time) uint32 {
	if t.Year() == 9999 || t.Before(MatterEpochStart) {
		return 0
	}
	secs := t.Sub(MatterEpochStart).Seconds()
	if secs > float64(^uint32(0)) {
		return 0
	}
	return uint32(secs)
}
