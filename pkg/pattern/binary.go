package pattern

import "encoding/binary"

// readUint reads an unsigned integer of the given byte width at off.
// The caller guarantees bounds.
func readUint(data []byte, off, width int, littleEndian bool) uint64 {
	b := data[off : off+width]
	switch width {
	case 1:
		return uint64(b[0])
	case 2:
		if littleEndian {
			return uint64(binary.LittleEndian.Uint16(b))
		}
		return uint64(binary.BigEndian.Uint16(b))
	case 4:
		if littleEndian {
			return uint64(binary.LittleEndian.Uint32(b))
		}
		return uint64(binary.BigEndian.Uint32(b))
	case 8:
		if littleEndian {
			return binary.LittleEndian.Uint64(b)
		}
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

// readField decodes one declarative field at off, returning the value
// and the bytes consumed, or ok=false on insufficient data.
func readField(data []byte, off int, spec fieldSpec, defaultLittle bool) (any, int, bool) {
	little := defaultLittle
	switch spec.ByteOrder {
	case "little":
		little = true
	case "big":
		little = false
	}

	size := fieldTypeSize(spec.Type, spec.Length)
	if size < 0 || off+size > len(data) {
		return nil, 0, false
	}

	switch spec.Type {
	case "uint8", "uint16", "uint32", "uint64":
		return readUint(data, off, size, little), size, true
	case "int8":
		return int64(int8(data[off])), size, true
	case "int16":
		return int64(int16(readUint(data, off, 2, little))), size, true
	case "int32":
		return int64(int32(readUint(data, off, 4, little))), size, true
	case "int64":
		return int64(readUint(data, off, 8, little)), size, true
	case "string":
		return string(data[off : off+size]), size, true
	default: // bytes
		out := make([]byte, size)
		copy(out, data[off:off+size])
		return out, size, true
	}
}
