package bridge

import (
	"bytes"
	"encoding/binary"

	"github.com/tetratelabs/wazero/api"
	"golang.org/x/text/encoding/unicode"

	"github.com/wippyai/callbridge"
	"github.com/wippyai/callbridge/abi"
	"github.com/wippyai/callbridge/errors"
)

const (
	// cefStringSize is sizeof(cef_string_utf16_t): str, length, dtor.
	cefStringSize = 12
	// MaxStringChars bounds a cef_string_t copied into Go.
	MaxStringChars = 1 << 20
	// MaxCStringBytes bounds the NUL scan of a char*.
	MaxCStringBytes = 1 << 16
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// decodeArg converts one raw wasm parameter into a host value, copying any
// guest data it points to.
func decodeArg(mem callbridge.Memory, l abi.Lowered, raw uint64) (Value, error) {
	switch l.Kind {
	case abi.KindInt32:
		return Int32(api.DecodeI32(raw)), nil
	case abi.KindUint32:
		return Uint32(api.DecodeU32(raw)), nil
	case abi.KindInt64:
		return Int64(int64(raw)), nil
	case abi.KindUint64:
		return Uint64(raw), nil
	case abi.KindFloat32:
		return Float32(api.DecodeF32(raw)), nil
	case abi.KindFloat64:
		return Float64(api.DecodeF64(raw)), nil
	case abi.KindPointer:
		return Pointer(api.DecodeU32(raw)), nil
	case abi.KindString:
		s, err := readCEFString(mem, api.DecodeU32(raw))
		if err != nil {
			return Value{}, err
		}
		return String(s), nil
	case abi.KindCString:
		s, err := readCString(mem, api.DecodeU32(raw))
		if err != nil {
			return Value{}, err
		}
		return Value{kind: abi.KindCString, str: s}, nil
	case abi.KindStruct:
		addr := api.DecodeU32(raw)
		if addr == 0 {
			return Value{kind: abi.KindStruct}, nil
		}
		data, err := mem.Read(addr, l.Size)
		if err != nil {
			return Value{}, err
		}
		return Bytes(data), nil
	case abi.KindRef:
		r := &Ref{addr: api.DecodeU32(raw)}
		if r.addr != 0 {
			v, err := mem.ReadU32(r.addr)
			if err != nil {
				return Value{}, err
			}
			r.val = int32(v)
		}
		return refValue(r), nil
	}
	return Value{}, errors.Unsupported(errors.PhaseDispatch, l.Type.Native, "unmarshalable kind "+l.Kind.String())
}

// writeBack stores modified in-out cells.
func writeBack(mem callbridge.Memory, args []Value) error {
	for _, a := range args {
		if r := a.ref; r != nil && r.dirty && r.addr != 0 {
			if err := mem.WriteU32(r.addr, uint32(r.val)); err != nil {
				return err
			}
		}
	}
	return nil
}

// readCEFString copies a cef_string_utf16_t. A null pointer or null str reads
// as the empty string.
func readCEFString(mem callbridge.Memory, addr uint32) (string, error) {
	if addr == 0 {
		return "", nil
	}
	hdr, err := mem.Read(addr, cefStringSize)
	if err != nil {
		return "", err
	}
	str := binary.LittleEndian.Uint32(hdr[0:])
	length := binary.LittleEndian.Uint32(hdr[4:])
	if str == 0 || length == 0 {
		return "", nil
	}
	if length > MaxStringChars {
		return "", errors.New(errors.PhaseDispatch, errors.KindOutOfBounds).
			Native("cef_string_t").Value(length).
			Detail("string length %d exceeds %d characters", length, MaxStringChars).Build()
	}
	data, err := mem.Read(str, length*2)
	if err != nil {
		return "", err
	}
	out, err := utf16le.NewDecoder().Bytes(data)
	if err != nil {
		return "", errors.Wrap(errors.PhaseDispatch, errors.KindInvalidInput, err, "decode UTF-16 string")
	}
	return string(out), nil
}

// readCString copies a NUL-terminated string.
func readCString(mem callbridge.Memory, addr uint32) (string, error) {
	if addr == 0 {
		return "", nil
	}
	size := mem.Size()
	if addr >= size {
		return "", errors.OutOfBounds(errors.PhaseDispatch, addr, 1, size)
	}
	n := size - addr
	if n > MaxCStringBytes {
		n = MaxCStringBytes
	}
	data, err := mem.Read(addr, n)
	if err != nil {
		return "", err
	}
	end := bytes.IndexByte(data, 0)
	if end < 0 {
		return "", errors.New(errors.PhaseDispatch, errors.KindOutOfBounds).
			Native("char*").Value(addr).
			Detail("no NUL within %d bytes", n).Build()
	}
	return string(data[:end]), nil
}
