package recstore

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

const (
	valueFormatVer1      = 1
	valueFormatVerLatest = valueFormatVer1
)

type valueFlags uint64

const (
	vfVerBit0 = valueFlags(1 << iota)
	vfVerBit1
	vfVerBit2
	vfVerBit3
	vfJSON

	vfVerMask       = (vfVerBit0 | vfVerBit1 | vfVerBit2 | vfVerBit3)
	vfVer1          = vfVerBit0
	vfSupportedMask = (vfVer1 | vfJSON)
	vfDefault       = vfVer1

	checksumSize       = 8
	minValueSize       = 4 + checksumSize
	maxValueHeaderSize = binary.MaxVarintLen64 * 4
	maxSchemaVersion   = 32768 // just a sanity value, can be increased
)

func (vf valueFlags) ver() valueFlags {
	return vf & vfVerMask
}

func (vf valueFlags) encoding() encodingMethod {
	if vf&vfJSON != 0 {
		return JSON
	}
	return MsgPack
}

func flagsForEncoding(enc encodingMethod) valueFlags {
	if enc == JSON {
		return vfDefault | vfJSON
	}
	return vfDefault
}

type value struct {
	Flags     valueFlags
	SchemaVer uint64
	ModCount  uint64
	Data      []byte
}

// Meta describes a stored record without decoding it.
type Meta struct {
	SchemaVer uint64
	ModCount  uint64
	DataSize  int
}

func (vle value) Meta() Meta {
	return Meta{
		SchemaVer: vle.SchemaVer,
		ModCount:  vle.ModCount,
		DataSize:  len(vle.Data),
	}
}

func reserveValueHeader(buf []byte) []byte {
	if len(buf) != 0 {
		panic("value must be written to an empty buffer")
	}
	return buf[:maxValueHeaderSize]
}

// putValueHeader fills in the header reserved by reserveValueHeader, appends
// the checksum of the data that follows it, and returns the final value.
func putValueHeader(buf []byte, flags valueFlags, schemaVer uint64, modCount uint64) []byte {
	if len(buf) < maxValueHeaderSize {
		panic(fmt.Errorf("invalid value buffer len=%d", len(buf))) // sanity check
	}
	if (flags &^ vfSupportedMask) != 0 {
		panic(fmt.Errorf("invalid flags %x", flags))
	}
	dataSize := len(buf) - maxValueHeaderSize
	sum := xxhash.Sum64(buf[maxValueHeaderSize:])

	var off = 0
	n := binary.PutUvarint(buf[off:], uint64(flags))
	off += n
	n = binary.PutUvarint(buf[off:], uint64(schemaVer))
	off += n
	n = binary.PutUvarint(buf[off:], uint64(modCount))
	off += n
	n = binary.PutUvarint(buf[off:], uint64(dataSize))
	off += n
	headerSize := off
	if headerSize > maxValueHeaderSize {
		panic("internal error")
	}

	buf = binary.LittleEndian.AppendUint64(buf, sum)

	if headerSize < maxValueHeaderSize {
		// move the header closer to data
		start := maxValueHeaderSize - headerSize
		copy(buf[start:maxValueHeaderSize], buf[:headerSize])
		return buf[start:]
	} else {
		return buf
	}
}

func (vle *value) decode(data []byte) error {
	orig := data
	if len(data) < minValueSize {
		return dataErrf(orig, len(orig)-len(data), nil, "invalid value: at least %d bytes required", minValueSize)
	}

	v, n := binary.Uvarint(data)
	if n <= 0 {
		return dataErrf(orig, len(orig)-len(data), nil, "invalid value: bad flags")
	}
	if (v & ^uint64(vfSupportedMask)) != 0 {
		return dataErrf(orig, len(orig)-len(data), nil, "invalid value: unsupported flags %x", v)
	}
	if valueFlags(v).ver() != vfVer1 {
		return dataErrf(orig, len(orig)-len(data), nil, "invalid value: unsupported format version %d", valueFlags(v).ver())
	}
	vle.Flags, data = valueFlags(v), data[n:]

	v, n = binary.Uvarint(data)
	if n <= 0 || v > maxSchemaVersion {
		return dataErrf(orig, len(orig)-len(data), nil, "invalid value: bad schema version")
	}
	vle.SchemaVer, data = v, data[n:]

	v, n = binary.Uvarint(data)
	if n <= 0 {
		return dataErrf(orig, len(orig)-len(data), nil, "invalid value: bad mod count")
	}
	vle.ModCount, data = v, data[n:]

	dataSize, n := binary.Uvarint(data)
	if n <= 0 {
		return dataErrf(orig, len(orig)-len(data), nil, "invalid value: bad data size")
	}
	data = data[n:]

	expectedSize := dataSize + checksumSize
	if uint64(len(data)) != expectedSize {
		return dataErrf(orig, len(orig)-len(data), nil, "invalid value: got %d bytes for data+checksum, expected %d bytes", len(data), expectedSize)
	}
	vle.Data, data = data[:dataSize], data[dataSize:]

	expected := binary.LittleEndian.Uint64(data)
	if actual := xxhash.Sum64(vle.Data); actual != expected {
		return dataErrf(orig, len(orig)-len(data), nil, "invalid value: checksum mismatch, stored %016x, computed %016x", expected, actual)
	}
	return nil
}

func encodeKey(id int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

func putKey(buf []byte, id int64) []byte {
	binary.BigEndian.PutUint64(buf[:8], uint64(id))
	return buf[:8]
}

func decodeKey(k []byte) (int64, error) {
	if len(k) != 8 {
		return 0, dataErrf(k, 0, nil, "invalid key: expected 8 bytes")
	}
	id := int64(binary.BigEndian.Uint64(k))
	if id <= 0 {
		return 0, dataErrf(k, 0, nil, "invalid key: non-positive id %d", id)
	}
	return id, nil
}
