package wasmtest

// Opcodes used by the test guests.
const (
	OpUnreachable byte = 0x00
	OpBlock       byte = 0x02
	OpLoop        byte = 0x03
	OpIf          byte = 0x04
	OpEnd         byte = 0x0b
	OpBr          byte = 0x0c
	OpBrIf        byte = 0x0d
	OpCall        byte = 0x10
	OpDrop        byte = 0x1a
	OpLocalGet    byte = 0x20
	OpLocalSet    byte = 0x21
	OpLocalTee    byte = 0x22
	OpGlobalGet   byte = 0x23
	OpGlobalSet   byte = 0x24
	OpI32Load     byte = 0x28
	OpI32Load16U  byte = 0x2f
	OpI32Store    byte = 0x36
	OpI32Store16  byte = 0x3b
	OpI32Const    byte = 0x41
	OpF64Const    byte = 0x44
	OpI32LeU      byte = 0x4d
	OpI32GeU      byte = 0x4f
	OpI32Add      byte = 0x6a
	OpI32Sub      byte = 0x6b
	OpI32And      byte = 0x71

	BlockVoid byte = 0x40
)

// Code assembles a function body. Methods chain.
type Code struct {
	w Writer
}

func NewCode() *Code { return &Code{} }

func (c *Code) Bytes() []byte { return c.w.Bytes() }

func (c *Code) op(b byte) *Code {
	c.w.Byte(b)
	return c
}

func (c *Code) idx(op byte, i uint32) *Code {
	c.w.Byte(op)
	c.w.WriteU32(i)
	return c
}

func (c *Code) mem(op byte, align, offset uint32) *Code {
	c.w.Byte(op)
	c.w.WriteU32(align)
	c.w.WriteU32(offset)
	return c
}

func (c *Code) Unreachable() *Code { return c.op(OpUnreachable) }
func (c *Code) Drop() *Code        { return c.op(OpDrop) }
func (c *Code) End() *Code         { return c.op(OpEnd) }
func (c *Code) Block() *Code       { c.w.Byte(OpBlock, BlockVoid); return c }
func (c *Code) Loop() *Code        { c.w.Byte(OpLoop, BlockVoid); return c }
func (c *Code) If() *Code          { c.w.Byte(OpIf, BlockVoid); return c }

func (c *Code) Br(depth uint32) *Code   { return c.idx(OpBr, depth) }
func (c *Code) BrIf(depth uint32) *Code { return c.idx(OpBrIf, depth) }
func (c *Code) Call(fn uint32) *Code    { return c.idx(OpCall, fn) }

func (c *Code) LocalGet(i uint32) *Code  { return c.idx(OpLocalGet, i) }
func (c *Code) LocalSet(i uint32) *Code  { return c.idx(OpLocalSet, i) }
func (c *Code) LocalTee(i uint32) *Code  { return c.idx(OpLocalTee, i) }
func (c *Code) GlobalGet(i uint32) *Code { return c.idx(OpGlobalGet, i) }
func (c *Code) GlobalSet(i uint32) *Code { return c.idx(OpGlobalSet, i) }

func (c *Code) I32Load(offset uint32) *Code    { return c.mem(OpI32Load, 2, offset) }
func (c *Code) I32Load16U(offset uint32) *Code { return c.mem(OpI32Load16U, 1, offset) }
func (c *Code) I32Store(offset uint32) *Code   { return c.mem(OpI32Store, 2, offset) }
func (c *Code) I32Store16(offset uint32) *Code { return c.mem(OpI32Store16, 1, offset) }

func (c *Code) I32Const(v int32) *Code {
	c.w.Byte(OpI32Const)
	c.w.WriteS32(v)
	return c
}

func (c *Code) F64Const(v float64) *Code {
	c.w.Byte(OpF64Const)
	c.w.WriteF64(v)
	return c
}

func (c *Code) I32Add() *Code { return c.op(OpI32Add) }
func (c *Code) I32Sub() *Code { return c.op(OpI32Sub) }
func (c *Code) I32And() *Code { return c.op(OpI32And) }
func (c *Code) I32LeU() *Code { return c.op(OpI32LeU) }
func (c *Code) I32GeU() *Code { return c.op(OpI32GeU) }
