package credentials

import "encoding/asn1"

// Matter TLV context tags for certificate fields.
// Spec Section 6.5.2
const (
	TagSerialNum  uint8 = 1
	TagSigAlgo    uint8 = 2
	TagIssuer     uint8 = 3
	TagNotBefore  uint8 = 4
	TagNotAfter   uint8 = 5
	TagSubject    uint8 = 6
	TagPubKeyAlgo uint8 = 7
	TagECCurveID  uint8 = 8
	TagECPubKey   uint8 = 9
	TagExtensions uint8 = 10
	TagSignature  uint8 = 11
)

// Matter TLV context tags for DN attributes.
// Spec Section 6.5.6.1, Table 85 and Table 86
const (
	// Standard DN attributes (UTF8String encoding in X.509)
	TagDNCommonName          uint8 = 1
	TagDNSurname             uint8 = 2
	TagDNSerialNum           uint8 = 3
	TagDNCountryName         uint8 = 4
	TagDNLocalityName        uint8 = 5
	TagDNStateOrProvinceName uint8 = 6
	TagDNOrgName             uint8 = 7
	TagDNOrgUnitName         uint8 = 8
	TagDNTitle               uint8 = 9
	TagDNName                uint8 = 10
	TagDNGivenName           uint8 = 11
	TagDNInitials            uint8 = 12
	TagDNGenQualifier        uint8 = 13
	TagDNDNQualifier         uint8 = 14
	TagDNPseudonym           uint8 = 15
	TagDNDomainComponent     uint8 = 16

	// Matter-specific DN attributes
	TagDNMatterNodeID            uint8 = 17
	TagDNMatterFirmwareSigningID uint8 = 18
	TagDNMatterICACID            uint8 = 19
	TagDNMatterRCACID            uint8 = 20
	TagDNMatterFabricID          uint8 = 21
	TagDNMatterNOCCAT            uint8 = 22
	TagDNMatterVVSID             uint8 = 23

	// PrintableString encoding offset (tag + 0x80)
	TagDNPrintableStringOffset uint8 = 0x80
)

// Matter TLV context tags for extensions.
// Spec Section 6.5.11, Table 90
const (
	TagExtBasicConstraints uint8 = 1
	TagExtKeyUsage         uint8 = 2
	TagExtExtendedKeyUsage uint8 = 3
	TagExtSubjectKeyID     uint8 = 4
	TagExtAuthorityKeyID   uint8 = 5
	TagExtFutureExtension  uint8 = 6
)

// Basic constraints structure tags.
// Spec Section 6.5.11.1
const (
	TagBasicConstraintsIsCA    uint8 = 1
	TagBasicConstraintsPathLen uint8 = 2
)

// X.509 signature algorithm OIDs.
var OIDSignatureECDSAWithSHA256 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 2}

// X.509 public key algorithm OIDs.
var OIDPublicKeyECDSA = asn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1}

// X.509 elliptic curve OIDs.
var OIDNamedCurvePrime256v1 = asn1.ObjectIdentifier{1, 2, 840, 10045, 3, 1, 7}

// X.509 extension OIDs.
var (
	OIDExtensionBasicConstraints = asn1.ObjectIdentifier{2, 5, 29, 19}
	OIDExtensionKeyUsage         = asn1.ObjectIdentifier{2, 5, 29, 15}
	OIDExtensionExtKeyUsage      = asn1.ObjectIdentifier{2, 5, 29, 37}
	OIDExtensionSubjectKeyID     = asn1.ObjectIdentifier{2, 5, 29, 14}
	OIDExtensionAuthorityKeyID   = asn1.ObjectIdentifier{2, 5, 29, 35}
)

// dnAttr is one row of the DN-attribute table that every DN-oriented
// conversion (OIDToTag, TagToOID, the old standalone OID* vars) is
// derived from, instead of keeping the tag table and the OID constants
// as separate hand-synced declarations.
type dnAttr struct {
	tag uint8
	oid asn1.ObjectIdentifier
}

var dnAttrs = []dnAttr{
	{TagDNCommonName, asn1.ObjectIdentifier{2, 5, 4, 3}},
	{TagDNSurname, asn1.ObjectIdentifier{2, 5, 4, 4}},
	{TagDNSerialNum, asn1.ObjectIdentifier{2, 5, 4, 5}},
	{TagDNCountryName, asn1.ObjectIdentifier{2, 5, 4, 6}},
	{TagDNLocalityName, asn1.ObjectIdentifier{2, 5, 4, 7}},
	{TagDNStateOrProvinceName, asn1.ObjectIdentifier{2, 5, 4, 8}},
	{TagDNOrgName, asn1.ObjectIdentifier{2, 5, 4, 10}},
	{TagDNOrgUnitName, asn1.ObjectIdentifier{2, 5, 4, 11}},
	{TagDNTitle, asn1.ObjectIdentifier{2, 5, 4, 12}},
	{TagDNName, asn1.ObjectIdentifier{2, 5, 4, 41}},
	{TagDNGivenName, asn1.ObjectIdentifier{2, 5, 4, 42}},
	{TagDNInitials, asn1.ObjectIdentifier{2, 5, 4, 43}},
	{TagDNGenQualifier, asn1.ObjectIdentifier{2, 5, 4, 44}},
	{TagDNDNQualifier, asn1.ObjectIdentifier{2, 5, 4, 46}},
	{TagDNPseudonym, asn1.ObjectIdentifier{2, 5, 4, 65}},
	{TagDNDomainComponent, asn1.ObjectIdentifier{0, 9, 2342, 19200300, 100, 1, 25}},

	// Matter-specific DN attributes, under the CSA private arc
	// 1.3.6.1.4.1.37244 (spec 6.1.1, Table 83).
	{TagDNMatterNodeID, asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 37244, 1, 1}},
	{TagDNMatterFirmwareSigningID, asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 37244, 1, 2}},
	{TagDNMatterICACID, asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 37244, 1, 3}},
	{TagDNMatterRCACID, asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 37244, 1, 4}},
	{TagDNMatterFabricID, asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 37244, 1, 5}},
	{TagDNMatterNOCCAT, asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 37244, 1, 6}},
	{TagDNMatterVVSID, asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 37244, 1, 7}},
}

// Device Attestation OIDs (for VID/PID in DAC certificates).
var (
	OIDMatterVendorID  = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 37244, 2, 1}
	OIDMatterProductID = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 37244, 2, 2}
)

// keyPurposeAttr pairs a Matter key purpose ID with its extended-key-usage
// OID, the same table-of-pairs pattern used for dnAttrs.
type keyPurposeAttr struct {
	purpose KeyPurposeID
	oid     asn1.ObjectIdentifier
}

var keyPurposeAttrs = []keyPurposeAttr{
	{KeyPurposeServerAuth, asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 1}},
	{KeyPurposeClientAuth, asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 2}},
	{KeyPurposeCodeSigning, asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 3}},
	{KeyPurposeEmailProtection, asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 4}},
	{KeyPurposeTimeStamping, asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 8}},
	{KeyPurposeOCSPSigning, asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 9}},
}

func init() {
	oidToTag = make(map[string]uint8, len(dnAttrs))
	tagToOID = make(map[uint8]asn1.ObjectIdentifier, len(dnAttrs))
	for _, a := range dnAttrs {
		oidToTag[a.oid.String()] = a.tag
		tagToOID[a.tag] = a.oid
	}

	keyPurposeToOIDMap = make(map[KeyPurposeID]asn1.ObjectIdentifier, len(keyPurposeAttrs))
	oidToKeyPurpose = make(map[string]KeyPurposeID, len(keyPurposeAttrs))
	for _, a := range keyPurposeAttrs {
		keyPurposeToOIDMap[a.purpose] = a.oid
		oidToKeyPurpose[a.oid.String()] = a.purpose
	}
}

var (
	oidToTag           map[string]uint8
	tagToOID           map[uint8]asn1.ObjectIdentifier
	keyPurposeToOIDMap map[KeyPurposeID]asn1.ObjectIdentifier
	oidToKeyPurpose    map[string]KeyPurposeID
)

// OIDToTag returns the Matter TLV tag for a given X.509 OID.
// Returns 0 if the OID is not recognized.
func OIDToTag(oid asn1.ObjectIdentifier) uint8 {
	if tag, ok := oidToTag[oid.String()]; ok {
		return tag
	}
	return 0
}

// baseTag strips the PrintableString encoding offset, if present.
func baseTag(tag uint8) uint8 {
	if tag >= TagDNPrintableStringOffset {
		return tag - TagDNPrintableStringOffset
	}
	return tag
}

// TagToOID returns the X.509 OID for a given Matter TLV tag.
// Returns nil if the tag is not recognized.
func TagToOID(tag uint8) asn1.ObjectIdentifier {
	return tagToOID[baseTag(tag)]
}

// IsMatterSpecificTag returns true if the tag is for a Matter-specific DN attribute.
func IsMatterSpecificTag(tag uint8) bool {
	t := baseTag(tag)
	return t >= TagDNMatterNodeID && t <= TagDNMatterVVSID
}

// IsPrintableStringTag returns true if the tag indicates PrintableString encoding.
func IsPrintableStringTag(tag uint8) bool {
	return tag >= TagDNPrintableStringOffset
}

// KeyPurposeToOID returns the X.509 OID for a Matter key purpose ID.
func KeyPurposeToOID(kp KeyPurposeID) asn1.ObjectIdentifier {
	return keyPurposeToOIDMap[kp]
}

// OIDToKeyPurpose returns the Matter key purpose ID for an X.509 OID.
func OIDToKeyPurpose(oid asn1.ObjectIdentifier) KeyPurposeID {
	if kp, ok := oidToKeyPurpose[oid.String()]; ok {
		return kp
	}
	return KeyPurposeUnknown
}
