package credentials

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"
)

// x509Certificate is the ASN.1 structure for an X.509 certificate.
type x509Certificate struct {
	TBSCertificate     tbsCertificate
	SignatureAlgorithm pkix.AlgorithmIdentifier
	SignatureValue     asn1.BitString
}

// tbsCertificate is the ASN.1 structure for the TBSCertificate.
type tbsCertificate struct {
	Version            int `asn1:"optional,explicit,default:0,tag:0"`
	SerialNumber       *big.Int
	SignatureAlgorithm pkix.AlgorithmIdentifier
	Issuer             asn1.RawValue
	Validity           validity
	Subject            asn1.RawValue
	PublicKeyInfo      publicKeyInfo
	Extensions         []pkix.Extension `asn1:"optional,explicit,tag:3"`
}

type validity struct {
	NotBefore time.Time
	NotAfter  time.Time
}

type publicKeyInfo struct {
	Algorithm pkix.AlgorithmIdentifier
	PublicKey asn1.BitString
}

// MatterToX509 converts a Matter TLV Certificate to X.509 DER format.
func MatterToX509(cert *Certificate) ([]byte, error) {
	tbs, err := buildTBSCertificate(cert)
	if err != nil {
		return nil, err
	}

	sigASN1, err := convertRawSignatureToASN1(cert.Signature)
	if err != nil {
		return nil, err
	}

	x509Cert := x509Certificate{
		TBSCertificate:     tbs,
		SignatureAlgorithm: getSignatureAlgoIdentifier(cert.SigAlgo),
		SignatureValue:     asn1.BitString{Bytes: sigASN1, BitLength: len(sigASN1) * 8},
	}

	der, err := asn1.Marshal(x509Cert)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrX509EncodeFailed, err)
	}
	return der, nil
}

// MatterToX509PEM converts a Matter TLV Certificate to PEM format.
func MatterToX509PEM(cert *Certificate) ([]byte, error) {
	der, err := MatterToX509(cert)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), nil
}

func buildTBSCertificate(cert *Certificate) (tbsCertificate, error) {
	tbs := tbsCertificate{
		Version:            2, // X.509 v3
		SerialNumber:       new(big.Int).SetBytes(cert.SerialNum),
		SignatureAlgorithm: getSignatureAlgoIdentifier(cert.SigAlgo),
	}

	issuerRaw, err := marshalDN(cert.Issuer)
	if err != nil {
		return tbs, fmt.Errorf("issuer: %w", err)
	}
	tbs.Issuer = asn1.RawValue{FullBytes: issuerRaw}

	subjectRaw, err := marshalDN(cert.Subject)
	if err != nil {
		return tbs, fmt.Errorf("subject: %w", err)
	}
	tbs.Subject = asn1.RawValue{FullBytes: subjectRaw}

	tbs.Validity = validity{
		NotBefore: matterEpochToTime(cert.NotBefore),
		NotAfter:  matterEpochToTime(cert.NotAfter),
	}

	tbs.PublicKeyInfo = publicKeyInfo{
		Algorithm: pkix.AlgorithmIdentifier{
			Algorithm:  OIDPublicKeyECDSA,
			Parameters: asn1.RawValue{FullBytes: mustMarshal(OIDNamedCurvePrime256v1)},
		},
		PublicKey: asn1.BitString{Bytes: cert.ECPubKey, BitLength: len(cert.ECPubKey) * 8},
	}

	exts, err := buildX509Extensions(cert)
	if err != nil {
		return tbs, err
	}
	tbs.Extensions = exts

	return tbs, nil
}

// marshalDN builds and DER-encodes the RDNSequence for a Matter DN in one step.
func marshalDN(dn DistinguishedName) ([]byte, error) {
	x509DN, err := buildX509DN(dn)
	if err != nil {
		return nil, err
	}
	return asn1.Marshal(x509DN)
}

func buildX509DN(dn DistinguishedName) ([]pkix.RelativeDistinguishedNameSET, error) {
	rdns := make([]pkix.RelativeDistinguishedNameSET, 0, len(dn))
	for _, attr := range dn {
		tag := attr.BaseTag()
		oid := TagToOID(tag)
		if oid == nil {
			return nil, fmt.Errorf("%w: unknown tag %d", ErrUnsupportedOID, attr.Tag)
		}

		atv := pkix.AttributeTypeAndValue{Type: oid}
		if attr.IsMatterSpecific() {
			atv.Value = MatterSpecificToHexString(attr.Uint64Value(), attr.MatterSpecificByteLength())
		} else {
			atv.Value = attr.StringValue()
		}
		rdns = append(rdns, pkix.RelativeDistinguishedNameSET{atv})
	}
	return rdns, nil
}

// extensionBuilders produces the (OID, critical, value) triple for each
// populated Matter extension, replacing five copy-pasted "if set, marshal,
// append" blocks with one loop over a declarative table.
var extensionBuilders = []struct {
	oid      asn1.ObjectIdentifier
	critical bool
	build    func(*Certificate) (interface{}, bool, error)
}{
	{OIDExtensionBasicConstraints, true, func(c *Certificate) (interface{}, bool, error) {
		bc := c.Extensions.BasicConstraints
		if bc == nil {
			return nil, false, nil
		}
		var v struct {
			IsCA       bool `asn1:"optional"`
			MaxPathLen int  `asn1:"optional,default:-1"`
		}
		v.IsCA = bc.IsCA
		v.MaxPathLen = -1
		if bc.PathLenConstraint != nil {
			v.MaxPathLen = int(*bc.PathLenConstraint)
		}
		return v, true, nil
	}},
	{OIDExtensionKeyUsage, true, func(c *Certificate) (interface{}, bool, error) {
		ku := c.Extensions.KeyUsage
		if ku == nil {
			return nil, false, nil
		}
		return keyUsageToBitString(ku.Usage), true, nil
	}},
	{OIDExtensionExtKeyUsage, true, func(c *Certificate) (interface{}, bool, error) {
		eku := c.Extensions.ExtendedKeyUsage
		if eku == nil {
			return nil, false, nil
		}
		oids := make([]asn1.ObjectIdentifier, 0, len(eku.KeyPurposes))
		for _, kp := range eku.KeyPurposes {
			if oid := KeyPurposeToOID(kp); oid != nil {
				oids = append(oids, oid)
			}
		}
		return oids, true, nil
	}},
	{OIDExtensionSubjectKeyID, false, func(c *Certificate) (interface{}, bool, error) {
		ski := c.Extensions.SubjectKeyID
		if ski == nil {
			return nil, false, nil
		}
		return ski.KeyID[:], true, nil
	}},
	{OIDExtensionAuthorityKeyID, false, func(c *Certificate) (interface{}, bool, error) {
		aki := c.Extensions.AuthorityKeyID
		if aki == nil {
			return nil, false, nil
		}
		v := struct {
			KeyIdentifier []byte `asn1:"optional,tag:0"`
		}{KeyIdentifier: aki.KeyID[:]}
		return v, true, nil
	}},
}

func buildX509Extensions(cert *Certificate) ([]pkix.Extension, error) {
	var exts []pkix.Extension
	for _, eb := range extensionBuilders {
		v, present, err := eb.build(cert)
		if err != nil {
			return nil, err
		}
		if !present {
			continue
		}
		value, err := asn1.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", eb.oid.String(), err)
		}
		exts = append(exts, pkix.Extension{Id: eb.oid, Critical: eb.critical, Value: value})
	}

	// Future extensions carry only the TLV-decoded extension value; the
	// original OID was never round-tripped, so they cannot be reconstructed
	// as proper X.509 extensions here.
	_ = cert.Extensions.FutureExtensions

	return exts, nil
}

func getSignatureAlgoIdentifier(algo SignatureAlgo) pkix.AlgorithmIdentifier {
	if algo == SignatureAlgoECDSASHA256 {
		return pkix.AlgorithmIdentifier{Algorithm: OIDSignatureECDSAWithSHA256}
	}
	return pkix.AlgorithmIdentifier{}
}

// convertRawSignatureToASN1 converts raw r||s signature to ASN.1 DER format.
func convertRawSignatureToASN1(raw []byte) ([]byte, error) {
	if len(raw) != SignatureSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, SignatureSize, len(raw))
	}
	r := new(big.Int).SetBytes(raw[:32])
	s := new(big.Int).SetBytes(raw[32:])
	return asn1.Marshal(struct{ R, S *big.Int }{r, s})
}

// matterEpochToTime converts Matter epoch seconds to time.Time.
func matterEpochToTime(epochSecs uint32) time.Time {
	if epochSecs == 0 {
		// Matter's "no well-defined expiration" sentinel maps to X.509's
		// GeneralizedTime ceiling, 99991231235959Z.
		return time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)
	}
	return MatterEpochStart.Add(time.Duration(epochSecs) * time.Second)
}

// keyUsageToBitString converts Matter KeyUsage flags to the minimal ASN.1
// BIT STRING encoding (trailing zero bits trimmed per DER), walking the
// same keyUsageBits table parseKeyUsage uses in the opposite direction.
func keyUsageToBitString(ku KeyUsage) asn1.BitString {
	var bits uint16
	for _, kb := range keyUsageBits {
		if ku&kb.flag != 0 {
			bits |= 1 << (15 - kb.bit)
		}
	}

	switch {
	case bits&0x00FF != 0:
		return asn1.BitString{Bytes: []byte{byte(bits >> 8), byte(bits)}, BitLength: 16 - trailingZeroBits(bits)}
	case bits != 0:
		return asn1.BitString{Bytes: []byte{byte(bits >> 8)}, BitLength: 8 - trailingZeroBits(bits>>8)}
	default:
		return asn1.BitString{Bytes: []byte{0}, BitLength: 0}
	}
}

func trailingZeroBits(v uint16) int {
	if v == 0 {
		return 16
	}
	n := 0
	for v&1 == 0 {
		v >>= 1
		n++
	}
	return n
}

func mustMarshal(v interface{}) []byte {
	b, err := asn1.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
