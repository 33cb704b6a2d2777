package jvmgen

import (
	"github.com/pkg/errors"
)

// Decoded 解码后的指令及其偏移；跳转指令的 Operands[0] 是相对偏移
type Decoded struct {
	PC int
	Instruction
}

// Target 跳转指令的绝对目标偏移
func (d Decoded) Target() int {
	return d.PC + d.Operands[0]
}

// Decode 把字节码还原为指令序列
func Decode(code []byte) ([]Decoded, error) {
	var out []Decoded
	r := NewByteReader(code)
	for r.Remaining() > 0 {
		pc := r.Pos()
		op := Opcode(r.U8())
		info, ok := opTable[op]
		if !ok {
			return nil, errors.Wrapf(ErrUnsupportedOp, "0x%02x at pc %d", uint8(op), pc)
		}
		in := Instruction{Op: op}
		switch info.format {
		case FormatS1:
			in.Operands = []int{int(int8(r.U8()))}
		case FormatU1:
			in.Operands = []int{int(r.U8())}
		case FormatS2, FormatBranch:
			in.Operands = []int{int(int16(r.U16()))}
		case FormatU2:
			in.Operands = []int{int(r.U16())}
		case FormatIinc:
			slot := int(r.U8())
			in.Operands = []int{slot, int(int8(r.U8()))}
		}
		if r.Err() != nil {
			return nil, errors.Wrapf(ErrMalformedClass, "truncated %s at pc %d", op, pc)
		}
		out = append(out, Decoded{PC: pc, Instruction: in})
	}
	return out, nil
}
