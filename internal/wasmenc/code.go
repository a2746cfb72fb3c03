package wasmenc

import "bytes"

const (
	opEnd          = 0x0b
	opCall         = 0x10
	opCallIndirect = 0x11
	opDrop         = 0x1a
	opLocalGet     = 0x20
	opI32Load      = 0x28
	opI64Load      = 0x29
	opI32Store     = 0x36
	opI32Const     = 0x41
	opI64Const     = 0x42
)

// Code accumulates a function body expression. The trailing end is added by
// Module.Func.
type Code struct {
	buf bytes.Buffer
}

// LocalGet pushes local i.
func (c *Code) LocalGet(i uint32) *Code {
	c.buf.WriteByte(opLocalGet)
	WriteLEB128u(&c.buf, i)
	return c
}

// I32Const pushes a constant.
func (c *Code) I32Const(v int32) *Code {
	c.buf.WriteByte(opI32Const)
	WriteLEB128s(&c.buf, v)
	return c
}

// I64Const pushes a constant.
func (c *Code) I64Const(v int64) *Code {
	c.buf.WriteByte(opI64Const)
	WriteLEB128s64(&c.buf, v)
	return c
}

// Call calls function fn.
func (c *Code) Call(fn uint32) *Code {
	c.buf.WriteByte(opCall)
	WriteLEB128u(&c.buf, fn)
	return c
}

// CallIndirect calls through table with the expected type.
func (c *Code) CallIndirect(typeIdx, table uint32) *Code {
	c.buf.WriteByte(opCallIndirect)
	WriteLEB128u(&c.buf, typeIdx)
	WriteLEB128u(&c.buf, table)
	return c
}

// I32Load loads 4 bytes at address+offset.
func (c *Code) I32Load(offset uint32) *Code {
	return c.memarg(opI32Load, 2, offset)
}

// I64Load loads 8 bytes at address+offset.
func (c *Code) I64Load(offset uint32) *Code {
	return c.memarg(opI64Load, 3, offset)
}

// I32Store stores 4 bytes at address+offset.
func (c *Code) I32Store(offset uint32) *Code {
	return c.memarg(opI32Store, 2, offset)
}

// Drop discards the top of the stack.
func (c *Code) Drop() *Code {
	c.buf.WriteByte(opDrop)
	return c
}

// Bytes returns the encoded instructions.
func (c *Code) Bytes() []byte {
	return c.buf.Bytes()
}

func (c *Code) memarg(op byte, align, offset uint32) *Code {
	c.buf.WriteByte(op)
	WriteLEB128u(&c.buf, align)
	WriteLEB128u(&c.buf, offset)
	return c
}
