package tlv

import (
	"encoding/binary"
	"io"
)

// TagControl is the tag form carried in the upper 3 bits of a control
// octet (spec A.7.2): how many bytes follow the control octet to encode
// the tag, and whether those bytes are profile-qualified.
type TagControl int

const (
	TagControlAnonymous        TagControl = iota // no tag bytes
	TagControlContext                            // 1-byte context tag
	TagControlCommonProfile2                     // 2-byte common-profile tag
	TagControlCommonProfile4                     // 4-byte common-profile tag
	TagControlImplicitProfile2                   // 2-byte implicit-profile tag
	TagControlImplicitProfile4                   // 4-byte implicit-profile tag
	TagControlFullyQualified6                    // vendor+profile+2-byte tag
	TagControlFullyQualified8                    // vendor+profile+4-byte tag
)

var tagFormSize = [...]int{
	TagControlAnonymous:        0,
	TagControlContext:          1,
	TagControlCommonProfile2:   2,
	TagControlCommonProfile4:   4,
	TagControlImplicitProfile2: 2,
	TagControlImplicitProfile4: 4,
	TagControlFullyQualified6:  6,
	TagControlFullyQualified8:  8,
}

var tagFormNames = [...]string{
	TagControlAnonymous:        "Anonymous",
	TagControlContext:          "Context",
	TagControlCommonProfile2:   "CommonProfile2",
	TagControlCommonProfile4:   "CommonProfile4",
	TagControlImplicitProfile2: "ImplicitProfile2",
	TagControlImplicitProfile4: "ImplicitProfile4",
	TagControlFullyQualified6:  "FullyQualified6",
	TagControlFullyQualified8:  "FullyQualified8",
}

// String implements fmt.Stringer for diagnostics.
func (tc TagControl) String() string {
	if tc < TagControlAnonymous || tc > TagControlFullyQualified8 {
		return "Unknown"
	}
	return tagFormNames[tc]
}

// Size returns the number of bytes this tag form occupies on the wire,
// not counting the control octet itself.
func (tc TagControl) Size() int {
	if tc < TagControlAnonymous || tc > TagControlFullyQualified8 {
		return 0
	}
	return tagFormSize[tc]
}

// Tag identifies a TLV element: anonymous, context-specific within an
// enclosing structure, or profile-specific (spec A.2). The zero value is
// not a valid Tag; use Anonymous, ContextTag, or one of the profile
// constructors.
type Tag struct {
	form      TagControl
	vendor    uint16 // set only for fully-qualified tags
	profile   uint16 // set only for fully-qualified tags
	tagNumber uint32 // 0-255 for context tags, up to 32 bits otherwise
}

// Anonymous returns the tag used for elements with no tag at all (array
// members, and the top-level element of a message).
func Anonymous() Tag {
	return Tag{form: TagControlAnonymous}
}

// ContextTag returns a context-specific tag, valid only as a direct
// member of a structure.
func ContextTag(number uint8) Tag {
	return Tag{form: TagControlContext, tagNumber: uint32(number)}
}

// CommonProfileTag returns a tag in the Matter common profile, widening
// to the 4-byte form automatically once the number exceeds 16 bits.
func CommonProfileTag(number uint32) Tag {
	return Tag{form: profileForm(number, TagControlCommonProfile2, TagControlCommonProfile4), tagNumber: number}
}

// ImplicitProfileTag returns a tag whose profile is implied by context
// (the enclosing protocol) rather than spelled out on the wire.
func ImplicitProfileTag(number uint32) Tag {
	return Tag{form: profileForm(number, TagControlImplicitProfile2, TagControlImplicitProfile4), tagNumber: number}
}

// FullyQualifiedTag returns a vendor- and profile-qualified tag.
func FullyQualifiedTag(vendor, profile uint16, number uint32) Tag {
	return Tag{
		form:      profileForm(number, TagControlFullyQualified6, TagControlFullyQualified8),
		vendor:    vendor,
		profile:   profile,
		tagNumber: number,
	}
}

// profileForm picks the narrow or wide encoding of a profile tag number.
func profileForm(number uint32, narrow, wide TagControl) TagControl {
	if number >= 1<<16 {
		return wide
	}
	return narrow
}

// Control returns the tag's wire form.
func (t Tag) Control() TagControl { return t.form }

// IsAnonymous reports whether t carries no tag bytes at all.
func (t Tag) IsAnonymous() bool { return t.form == TagControlAnonymous }

// IsContext reports whether t is a context-specific tag.
func (t Tag) IsContext() bool { return t.form == TagControlContext }

// IsProfileSpecific reports whether t is common-profile, implicit-profile,
// or fully-qualified.
func (t Tag) IsProfileSpecific() bool { return t.form >= TagControlCommonProfile2 }

// VendorID returns the vendor id carried by a fully-qualified tag, or 0
// for any other tag form.
func (t Tag) VendorID() uint16 { return t.vendor }

// ProfileNumber returns the profile number carried by a fully-qualified
// tag, or 0 for any other tag form.
func (t Tag) ProfileNumber() uint16 { return t.profile }

// TagNumber returns the tag's numeric value.
func (t Tag) TagNumber() uint32 { return t.tagNumber }

// Size returns the number of bytes t occupies on the wire, excluding the
// control octet.
func (t Tag) Size() int { return t.form.Size() }

// Bytes returns the little-endian wire encoding of t's tag bytes (spec
// A.8), excluding the control octet. It is the single place that knows
// the byte layout of every tag form; WriteTo, ReadTag, and the raw-TLV
// re-tagging path in reader.go all build on it rather than duplicating
// the layout.
func (t Tag) Bytes() []byte {
	switch t.form {
	case TagControlAnonymous:
		return nil
	case TagControlContext:
		return []byte{byte(t.tagNumber)}
	case TagControlCommonProfile2, TagControlImplicitProfile2:
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(t.tagNumber))
		return b
	case TagControlCommonProfile4, TagControlImplicitProfile4:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, t.tagNumber)
		return b
	case TagControlFullyQualified6:
		b := make([]byte, 6)
		binary.LittleEndian.PutUint16(b[0:], t.vendor)
		binary.LittleEndian.PutUint16(b[2:], t.profile)
		binary.LittleEndian.PutUint16(b[4:], uint16(t.tagNumber))
		return b
	case TagControlFullyQualified8:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint16(b[0:], t.vendor)
		binary.LittleEndian.PutUint16(b[2:], t.profile)
		binary.LittleEndian.PutUint32(b[4:], t.tagNumber)
		return b
	default:
		return nil
	}
}

// WriteTo writes t's tag bytes to w, implementing io.WriterTo.
func (t Tag) WriteTo(w io.Writer) (int64, error) {
	b := t.Bytes()
	if len(b) == 0 {
		return 0, nil
	}
	n, err := w.Write(b)
	return int64(n), err
}

// ReadTag reads the tag bytes for the given form from r and reconstructs
// the Tag.
func ReadTag(r io.Reader, form TagControl) (Tag, error) {
	tag := Tag{form: form}

	size := form.Size()
	if size == 0 {
		return tag, nil
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return tag, err
	}

	switch form {
	case TagControlContext:
		tag.tagNumber = uint32(buf[0])
	case TagControlCommonProfile2, TagControlImplicitProfile2:
		tag.tagNumber = uint32(binary.LittleEndian.Uint16(buf))
	case TagControlCommonProfile4, TagControlImplicitProfile4:
		tag.tagNumber = binary.LittleEndian.Uint32(buf)
	case TagControlFullyQualified6:
		tag.vendor = binary.LittleEndian.Uint16(buf[0:2])
		tag.profile = binary.LittleEndian.Uint16(buf[2:4])
		tag.tagNumber = uint32(binary.LittleEndian.Uint16(buf[4:6]))
	case TagControlFullyQualified8:
		tag.vendor = binary.LittleEndian.Uint16(buf[0:2])
		tag.profile = binary.LittleEndian.Uint16(buf[2:4])
		tag.tagNumber = binary.LittleEndian.Uint32(buf[4:8])
	}

	return tag, nil
}
