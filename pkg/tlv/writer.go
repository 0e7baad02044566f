package tlv

import (
	"encoding/binary"
	"math"
	"unicode/utf8"

	"io"
)

// Writer encodes a stream of TLV elements to an io.Writer, mirroring the
// cursor style of Reader: callers build a document with a sequence of Put*
// and Start*/EndContainer calls rather than constructing a tree.
type Writer struct {
	dst   io.Writer
	depth []ElementType // open containers, outermost first
}

// NewWriter returns a Writer that encodes elements to dst.
func NewWriter(dst io.Writer) *Writer {
	return &Writer{dst: dst}
}

// header writes the control octet and tag that precede every element.
func (w *Writer) header(elemType ElementType, tag Tag) error {
	if _, err := w.dst.Write([]byte{BuildControlOctet(elemType, tag.Control())}); err != nil {
		return err
	}
	_, err := tag.WriteTo(w.dst)
	return err
}

// fixedWidth writes a control octet, tag, and the already-encoded value
// bytes for a fixed-size element.
func (w *Writer) fixedWidth(elemType ElementType, tag Tag, value []byte) error {
	if err := w.header(elemType, tag); err != nil {
		return err
	}
	_, err := w.dst.Write(value)
	return err
}

// signedWidth returns the number of bytes (1, 2, 4, or 8) needed to hold v.
func signedWidth(v int64) int {
	switch {
	case v >= math.MinInt8 && v <= math.MaxInt8:
		return 1
	case v >= math.MinInt16 && v <= math.MaxInt16:
		return 2
	case v >= math.MinInt32 && v <= math.MaxInt32:
		return 4
	default:
		return 8
	}
}

// unsignedWidth returns the number of bytes (1, 2, 4, or 8) needed to hold v.
func unsignedWidth(v uint64) int {
	switch {
	case v <= math.MaxUint8:
		return 1
	case v <= math.MaxUint16:
		return 2
	case v <= math.MaxUint32:
		return 4
	default:
		return 8
	}
}

// PutInt writes a signed integer, choosing the narrowest width that holds it.
func (w *Writer) PutInt(tag Tag, v int64) error {
	return w.PutIntWithWidth(tag, v, signedWidth(v))
}

// PutIntWithWidth writes a signed integer at an explicit width (1, 2, 4, or
// 8 bytes), for callers that must match a specific wire encoding rather
// than the narrowest one.
func (w *Writer) PutIntWithWidth(tag Tag, v int64, width int) error {
	buf := make([]byte, width)
	switch width {
	case 1:
		buf[0] = byte(v)
		return w.fixedWidth(ElementTypeInt8, tag, buf)
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(v))
		return w.fixedWidth(ElementTypeInt16, tag, buf)
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(v))
		return w.fixedWidth(ElementTypeInt32, tag, buf)
	case 8:
		binary.LittleEndian.PutUint64(buf, uint64(v))
		return w.fixedWidth(ElementTypeInt64, tag, buf)
	default:
		return ErrInvalidElementType
	}
}

// PutUint writes an unsigned integer, choosing the narrowest width that
// holds it.
func (w *Writer) PutUint(tag Tag, v uint64) error {
	return w.PutUintWithWidth(tag, v, unsignedWidth(v))
}

// PutUintWithWidth writes an unsigned integer at an explicit width (1, 2,
// 4, or 8 bytes).
func (w *Writer) PutUintWithWidth(tag Tag, v uint64, width int) error {
	buf := make([]byte, width)
	switch width {
	case 1:
		buf[0] = byte(v)
		return w.fixedWidth(ElementTypeUInt8, tag, buf)
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(v))
		return w.fixedWidth(ElementTypeUInt16, tag, buf)
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(v))
		return w.fixedWidth(ElementTypeUInt32, tag, buf)
	case 8:
		binary.LittleEndian.PutUint64(buf, v)
		return w.fixedWidth(ElementTypeUInt64, tag, buf)
	default:
		return ErrInvalidElementType
	}
}

// PutBool writes a boolean; True and False are themselves distinct
// element types with no value field, so there is nothing to write beyond
// the header.
func (w *Writer) PutBool(tag Tag, v bool) error {
	elemType := ElementTypeFalse
	if v {
		elemType = ElementTypeTrue
	}
	return w.header(elemType, tag)
}

// PutFloat32 writes a 32-bit IEEE 754 float.
func (w *Writer) PutFloat32(tag Tag, v float32) error {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
	return w.fixedWidth(ElementTypeFloat32, tag, buf)
}

// PutFloat64 writes a 64-bit IEEE 754 float.
func (w *Writer) PutFloat64(tag Tag, v float64) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
	return w.fixedWidth(ElementTypeFloat64, tag, buf)
}

// PutString writes a UTF-8 string, failing with ErrInvalidUTF8 if v is
// not valid UTF-8.
func (w *Writer) PutString(tag Tag, v string) error {
	if !utf8.ValidString(v) {
		return ErrInvalidUTF8
	}
	return w.putLengthPrefixed(tag, []byte(v), true)
}

// PutBytes writes an octet string.
func (w *Writer) PutBytes(tag Tag, v []byte) error {
	return w.putLengthPrefixed(tag, v, false)
}

// putLengthPrefixed writes a length-prefixed string element, choosing the
// narrowest length-field width that holds len(data).
func (w *Writer) putLengthPrefixed(tag Tag, data []byte, utf8 bool) error {
	elemType, width := stringElementType(uint64(len(data)), utf8)
	if err := w.header(elemType, tag); err != nil {
		return err
	}
	if _, err := w.dst.Write(putLengthField(uint64(len(data)), width)); err != nil {
		return err
	}
	_, err := w.dst.Write(data)
	return err
}

// PutRaw re-emits a complete TLV element produced by Reader.RawBytes
// under a new tag, without decoding its value. This is how a value the
// writer never needs to interpret (an opaque attribute payload forwarded
// unchanged, say) gets re-tagged for embedding in a new container.
func (w *Writer) PutRaw(tag Tag, rawTLV []byte) error {
	if len(rawTLV) == 0 {
		return nil
	}

	elemType, originalForm := ParseControlOctet(rawTLV[0])
	if err := w.header(elemType, tag); err != nil {
		return err
	}

	skip := 1 + originalForm.Size()
	if skip < len(rawTLV) {
		_, err := w.dst.Write(rawTLV[skip:])
		return err
	}
	return nil
}

// PutNull writes a null value.
func (w *Writer) PutNull(tag Tag) error {
	return w.header(ElementTypeNull, tag)
}

// StartStructure opens a structure; its members may carry context tags.
func (w *Writer) StartStructure(tag Tag) error { return w.startContainer(ElementTypeStruct, tag) }

// StartArray opens an array; its members must be anonymous.
func (w *Writer) StartArray(tag Tag) error { return w.startContainer(ElementTypeArray, tag) }

// StartList opens a list, which (unlike a structure or array) may mix
// tagged and anonymous members.
func (w *Writer) StartList(tag Tag) error { return w.startContainer(ElementTypeList, tag) }

func (w *Writer) startContainer(elemType ElementType, tag Tag) error {
	if err := w.header(elemType, tag); err != nil {
		return err
	}
	w.depth = append(w.depth, elemType)
	return nil
}

// EndContainer closes the innermost open container.
func (w *Writer) EndContainer() error {
	if len(w.depth) == 0 {
		return ErrNotInContainer
	}
	w.depth = w.depth[:len(w.depth)-1]

	// The end-of-container marker is always anonymous.
	_, err := w.dst.Write([]byte{byte(ElementTypeEnd)})
	return err
}

// ContainerDepth returns how many containers are currently open.
func (w *Writer) ContainerDepth() int { return len(w.depth) }
