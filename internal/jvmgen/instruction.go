package jvmgen

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/tangzhangming/kforge/internal/ast"
)

// Instruction 一条 JVM 指令。跳转指令在第一遍只记录 Label，
// 第二遍换成相对偏移写入 Operands[0]
type Instruction struct {
	Op       Opcode
	Operands []int
	Label    string
}

// Simple 无操作数指令
func Simple(op Opcode) Instruction {
	return Instruction{Op: op}
}

// WithByte 带一个字节操作数的指令
func WithByte(op Opcode, b int) Instruction {
	return Instruction{Op: op, Operands: []int{b}}
}

// WithShort 带两个字节操作数的指令
func WithShort(op Opcode, s int) Instruction {
	return Instruction{Op: op, Operands: []int{s}}
}

// Branch 跳转到标签的指令
func Branch(op Opcode, label string) Instruction {
	return Instruction{Op: op, Label: label}
}

// Iinc 局部变量自增
func Iinc(slot, delta int) Instruction {
	return Instruction{Op: OpIinc, Operands: []int{slot, delta}}
}

// Len 编码后的字节数
func (in Instruction) Len() int {
	return 1 + in.Op.Format().Width()
}

// Encode 写入操作码和操作数，检查每个操作数的取值范围
func (in Instruction) Encode(w *ByteWriter) error {
	info, ok := opTable[in.Op]
	if !ok {
		return errors.Wrapf(ErrUnsupportedOp, "%s", in.Op)
	}
	if info.format == FormatBranch && len(in.Operands) == 0 {
		return errors.Wrapf(ErrUndefinedLabel, "%s %s not resolved", in.Op, in.Label)
	}
	if len(in.Operands) != info.format.Operands() {
		return errors.Wrapf(ErrBadOperand, "%s expects %d operands, got %d",
			in.Op, info.format.Operands(), len(in.Operands))
	}

	w.WriteU8(uint8(in.Op))
	switch info.format {
	case FormatS1:
		v := in.Operands[0]
		if v < math.MinInt8 || v > math.MaxInt8 {
			return errors.Wrapf(ErrBadOperand, "%s %d", in.Op, v)
		}
		w.WriteI8(int8(v))
	case FormatU1:
		v := in.Operands[0]
		if v < 0 || v > math.MaxUint8 {
			return errors.Wrapf(ErrBadOperand, "%s %d", in.Op, v)
		}
		w.WriteU8(uint8(v))
	case FormatS2:
		v := in.Operands[0]
		if v < math.MinInt16 || v > math.MaxInt16 {
			return errors.Wrapf(ErrBadOperand, "%s %d", in.Op, v)
		}
		w.WriteI16(int16(v))
	case FormatU2:
		v := in.Operands[0]
		if v < 0 || v > math.MaxUint16 {
			return errors.Wrapf(ErrBadOperand, "%s %d", in.Op, v)
		}
		w.WriteU16(uint16(v))
	case FormatBranch:
		v := in.Operands[0]
		if v < math.MinInt16 || v > math.MaxInt16 {
			return errors.Wrapf(ErrBranchRange, "%s offset %d", in.Op, v)
		}
		w.WriteI16(int16(v))
	case FormatIinc:
		slot, delta := in.Operands[0], in.Operands[1]
		if slot < 0 || slot > math.MaxUint8 || delta < math.MinInt8 || delta > math.MaxInt8 {
			return errors.Wrapf(ErrBadOperand, "iinc %d %d", slot, delta)
		}
		w.WriteU8(uint8(slot))
		w.WriteI8(int8(delta))
	}
	return nil
}

func (in Instruction) String() string {
	var sb strings.Builder
	sb.WriteString(in.Op.String())
	if in.Label != "" && len(in.Operands) == 0 {
		sb.WriteString(" " + in.Label)
	}
	for _, v := range in.Operands {
		sb.WriteString(" " + strconv.Itoa(v))
	}
	return sb.String()
}

// PushInt 选择最短的整数常量编码：iconst、bipush、sipush，最后用常量池
func PushInt(pool *ConstantPool, v int32) Instruction {
	switch {
	case v >= -1 && v <= 5:
		return Simple(Opcode(int32(OpIconst0) + v))
	case v >= math.MinInt8 && v <= math.MaxInt8:
		return WithByte(OpBipush, int(v))
	case v >= math.MinInt16 && v <= math.MaxInt16:
		return WithShort(OpSipush, int(v))
	}
	return loadConstant(pool.AddInteger(v))
}

// PushDouble double 常量，0.0 和 1.0 有专用指令
func PushDouble(pool *ConstantPool, v float64) Instruction {
	switch math.Float64bits(v) {
	case math.Float64bits(0):
		return Simple(OpDconst0)
	case math.Float64bits(1):
		return Simple(OpDconst1)
	}
	return WithShort(OpLdc2W, int(pool.AddDouble(v)))
}

// loadConstant 单槽常量，下标超过 255 时用 ldc_w
func loadConstant(idx uint16) Instruction {
	if idx <= math.MaxUint8 {
		return WithByte(OpLdc, int(idx))
	}
	return WithShort(OpLdcW, int(idx))
}

// 每种值类别的 load/store 指令：通用形式和 _0.._3 短形式
type localOps struct {
	load, load0, store, store0 Opcode
}

var (
	intLocals    = localOps{OpIload, OpIload0, OpIstore, OpIstore0}
	doubleLocals = localOps{OpDload, OpDload0, OpDstore, OpDstore0}
	refLocals    = localOps{OpAload, OpAload0, OpAstore, OpAstore0}
)

func localsFor(t ast.Type) localOps {
	switch {
	case t == ast.TypeDouble:
		return doubleLocals
	case t.IsReference():
		return refLocals
	}
	return intLocals
}

// LoadLocal 按类型加载局部变量
func LoadLocal(t ast.Type, slot int) (Instruction, error) {
	ops := localsFor(t)
	return localInstruction(ops.load, ops.load0, slot)
}

// StoreLocal 按类型存储局部变量
func StoreLocal(t ast.Type, slot int) (Instruction, error) {
	ops := localsFor(t)
	return localInstruction(ops.store, ops.store0, slot)
}

func localInstruction(general, short Opcode, slot int) (Instruction, error) {
	switch {
	case slot < 0:
		return Instruction{}, errors.Wrapf(ErrBadOperand, "slot %d", slot)
	case slot <= 3:
		return Simple(short + Opcode(slot)), nil
	case slot <= math.MaxUint8:
		return WithByte(general, slot), nil
	}
	return Instruction{}, errors.Wrapf(ErrTooManyLocals, "slot %d", slot)
}

// ReturnFor 按返回类型选择返回指令
func ReturnFor(t ast.Type) Opcode {
	switch {
	case t == ast.TypeUnit:
		return OpReturn
	case t == ast.TypeDouble:
		return OpDreturn
	case t.IsReference():
		return OpAreturn
	}
	return OpIreturn
}

// DefaultValue 类型的零值，用于补齐没有显式返回值的路径
func DefaultValue(t ast.Type) Instruction {
	switch {
	case t == ast.TypeDouble:
		return Simple(OpDconst0)
	case t.IsReference():
		return Simple(OpAconstNull)
	}
	return Simple(OpIconst0)
}
