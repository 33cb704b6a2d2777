package jvmgen

import "fmt"

// Opcode JVM 操作码
type Opcode uint8

// JVM 操作码常量，只列出生成器、反汇编器和解释器用到的部分
const (
	// 常量操作
	OpNop        Opcode = 0x00
	OpAconstNull Opcode = 0x01 // 将 null 压入栈
	OpIconstM1   Opcode = 0x02 // 将 -1 压入栈
	OpIconst0    Opcode = 0x03
	OpIconst1    Opcode = 0x04
	OpIconst2    Opcode = 0x05
	OpIconst3    Opcode = 0x06
	OpIconst4    Opcode = 0x07
	OpIconst5    Opcode = 0x08
	OpDconst0    Opcode = 0x0E
	OpDconst1    Opcode = 0x0F
	OpBipush     Opcode = 0x10 // 将单字节常量压入栈
	OpSipush     Opcode = 0x11 // 将短整型常量压入栈
	OpLdc        Opcode = 0x12 // 常量池下标 u1
	OpLdcW       Opcode = 0x13 // 常量池下标 u2
	OpLdc2W      Opcode = 0x14 // long/double 常量

	// 加载操作
	OpIload  Opcode = 0x15
	OpDload  Opcode = 0x18
	OpAload  Opcode = 0x19
	OpIload0 Opcode = 0x1A
	OpIload1 Opcode = 0x1B
	OpIload2 Opcode = 0x1C
	OpIload3 Opcode = 0x1D
	OpDload0 Opcode = 0x26
	OpDload1 Opcode = 0x27
	OpDload2 Opcode = 0x28
	OpDload3 Opcode = 0x29
	OpAload0 Opcode = 0x2A
	OpAload1 Opcode = 0x2B
	OpAload2 Opcode = 0x2C
	OpAload3 Opcode = 0x2D
	OpIaload Opcode = 0x2E
	OpDaload Opcode = 0x31
	OpAaload Opcode = 0x32

	// 存储操作
	OpIstore  Opcode = 0x36
	OpDstore  Opcode = 0x39
	OpAstore  Opcode = 0x3A
	OpIstore0 Opcode = 0x3B
	OpIstore1 Opcode = 0x3C
	OpIstore2 Opcode = 0x3D
	OpIstore3 Opcode = 0x3E
	OpDstore0 Opcode = 0x47
	OpDstore1 Opcode = 0x48
	OpDstore2 Opcode = 0x49
	OpDstore3 Opcode = 0x4A
	OpAstore0 Opcode = 0x4B
	OpAstore1 Opcode = 0x4C
	OpAstore2 Opcode = 0x4D
	OpAstore3 Opcode = 0x4E
	OpIastore Opcode = 0x4F
	OpDastore Opcode = 0x52
	OpAastore Opcode = 0x53

	// 栈操作
	OpPop   Opcode = 0x57
	OpPop2  Opcode = 0x58
	OpDup   Opcode = 0x59
	OpDupX1 Opcode = 0x5A
	OpDupX2 Opcode = 0x5B
	OpDup2  Opcode = 0x5C
	OpSwap  Opcode = 0x5F

	// 算术操作
	OpIadd Opcode = 0x60
	OpDadd Opcode = 0x63
	OpIsub Opcode = 0x64
	OpDsub Opcode = 0x67
	OpImul Opcode = 0x68
	OpDmul Opcode = 0x6B
	OpIdiv Opcode = 0x6C
	OpDdiv Opcode = 0x6F
	OpIrem Opcode = 0x70
	OpDrem Opcode = 0x73
	OpIneg Opcode = 0x74
	OpDneg Opcode = 0x77
	OpIand Opcode = 0x7E
	OpIor  Opcode = 0x80
	OpIxor Opcode = 0x82
	OpIinc Opcode = 0x84

	// 类型转换
	OpI2d Opcode = 0x87
	OpD2i Opcode = 0x8E

	// 比较
	OpDcmpl    Opcode = 0x97 // NaN 时压入 -1
	OpDcmpg    Opcode = 0x98 // NaN 时压入 1
	OpIfeq     Opcode = 0x99
	OpIfne     Opcode = 0x9A
	OpIflt     Opcode = 0x9B
	OpIfge     Opcode = 0x9C
	OpIfgt     Opcode = 0x9D
	OpIfle     Opcode = 0x9E
	OpIfIcmpeq Opcode = 0x9F
	OpIfIcmpne Opcode = 0xA0
	OpIfIcmplt Opcode = 0xA1
	OpIfIcmpge Opcode = 0xA2
	OpIfIcmpgt Opcode = 0xA3
	OpIfIcmple Opcode = 0xA4
	OpIfAcmpeq Opcode = 0xA5
	OpIfAcmpne Opcode = 0xA6
	OpGoto     Opcode = 0xA7

	// 返回
	OpIreturn Opcode = 0xAC
	OpDreturn Opcode = 0xAF
	OpAreturn Opcode = 0xB0
	OpReturn  Opcode = 0xB1

	// 字段与方法
	OpGetstatic     Opcode = 0xB2
	OpPutstatic     Opcode = 0xB3
	OpGetfield      Opcode = 0xB4
	OpPutfield      Opcode = 0xB5
	OpInvokevirtual Opcode = 0xB6
	OpInvokespecial Opcode = 0xB7
	OpInvokestatic  Opcode = 0xB8

	// 对象与数组
	OpNew         Opcode = 0xBB
	OpNewarray    Opcode = 0xBC
	OpAnewarray   Opcode = 0xBD
	OpArraylength Opcode = 0xBE
	OpAthrow      Opcode = 0xBF
	OpIfnull      Opcode = 0xC6
	OpIfnonnull   Opcode = 0xC7
)

// NEWARRAY 的基本类型代码
const (
	TypeBoolean = 4
	TypeChar    = 5
	TypeFloat   = 6
	TypeDouble  = 7
	TypeByte    = 8
	TypeShort   = 9
	TypeInt     = 10
	TypeLong    = 11
)

// OperandFormat 指令操作数的编码方式
type OperandFormat uint8

const (
	FormatNone   OperandFormat = iota
	FormatS1                   // 有符号字节（bipush）
	FormatU1                   // 无符号字节（局部变量、ldc、newarray）
	FormatS2                   // 有符号短整型（sipush）
	FormatU2                   // 常量池下标
	FormatBranch               // 相对跳转偏移 s2
	FormatIinc                 // u1 局部变量 + s1 增量
)

// Width 操作数字节数
func (f OperandFormat) Width() int {
	switch f {
	case FormatS1, FormatU1:
		return 1
	case FormatS2, FormatU2, FormatBranch, FormatIinc:
		return 2
	}
	return 0
}

// Operands 操作数个数
func (f OperandFormat) Operands() int {
	switch f {
	case FormatNone:
		return 0
	case FormatIinc:
		return 2
	}
	return 1
}

// opInfo 操作码元数据；pop/push 以栈槽计，-1 表示取决于常量池
type opInfo struct {
	name   string
	format OperandFormat
	pop    int
	push   int
}

var opTable = map[Opcode]opInfo{
	OpNop:        {"nop", FormatNone, 0, 0},
	OpAconstNull: {"aconst_null", FormatNone, 0, 1},
	OpIconstM1:   {"iconst_m1", FormatNone, 0, 1},
	OpIconst0:    {"iconst_0", FormatNone, 0, 1},
	OpIconst1:    {"iconst_1", FormatNone, 0, 1},
	OpIconst2:    {"iconst_2", FormatNone, 0, 1},
	OpIconst3:    {"iconst_3", FormatNone, 0, 1},
	OpIconst4:    {"iconst_4", FormatNone, 0, 1},
	OpIconst5:    {"iconst_5", FormatNone, 0, 1},
	OpDconst0:    {"dconst_0", FormatNone, 0, 2},
	OpDconst1:    {"dconst_1", FormatNone, 0, 2},
	OpBipush:     {"bipush", FormatS1, 0, 1},
	OpSipush:     {"sipush", FormatS2, 0, 1},
	OpLdc:        {"ldc", FormatU1, 0, 1},
	OpLdcW:       {"ldc_w", FormatU2, 0, 1},
	OpLdc2W:      {"ldc2_w", FormatU2, 0, 2},

	OpIload:  {"iload", FormatU1, 0, 1},
	OpDload:  {"dload", FormatU1, 0, 2},
	OpAload:  {"aload", FormatU1, 0, 1},
	OpIload0: {"iload_0", FormatNone, 0, 1},
	OpIload1: {"iload_1", FormatNone, 0, 1},
	OpIload2: {"iload_2", FormatNone, 0, 1},
	OpIload3: {"iload_3", FormatNone, 0, 1},
	OpDload0: {"dload_0", FormatNone, 0, 2},
	OpDload1: {"dload_1", FormatNone, 0, 2},
	OpDload2: {"dload_2", FormatNone, 0, 2},
	OpDload3: {"dload_3", FormatNone, 0, 2},
	OpAload0: {"aload_0", FormatNone, 0, 1},
	OpAload1: {"aload_1", FormatNone, 0, 1},
	OpAload2: {"aload_2", FormatNone, 0, 1},
	OpAload3: {"aload_3", FormatNone, 0, 1},
	OpIaload: {"iaload", FormatNone, 2, 1},
	OpDaload: {"daload", FormatNone, 2, 2},
	OpAaload: {"aaload", FormatNone, 2, 1},

	OpIstore:  {"istore", FormatU1, 1, 0},
	OpDstore:  {"dstore", FormatU1, 2, 0},
	OpAstore:  {"astore", FormatU1, 1, 0},
	OpIstore0: {"istore_0", FormatNone, 1, 0},
	OpIstore1: {"istore_1", FormatNone, 1, 0},
	OpIstore2: {"istore_2", FormatNone, 1, 0},
	OpIstore3: {"istore_3", FormatNone, 1, 0},
	OpDstore0: {"dstore_0", FormatNone, 2, 0},
	OpDstore1: {"dstore_1", FormatNone, 2, 0},
	OpDstore2: {"dstore_2", FormatNone, 2, 0},
	OpDstore3: {"dstore_3", FormatNone, 2, 0},
	OpAstore0: {"astore_0", FormatNone, 1, 0},
	OpAstore1: {"astore_1", FormatNone, 1, 0},
	OpAstore2: {"astore_2", FormatNone, 1, 0},
	OpAstore3: {"astore_3", FormatNone, 1, 0},
	OpIastore: {"iastore", FormatNone, 3, 0},
	OpDastore: {"dastore", FormatNone, 4, 0},
	OpAastore: {"aastore", FormatNone, 3, 0},

	OpPop:   {"pop", FormatNone, 1, 0},
	OpPop2:  {"pop2", FormatNone, 2, 0},
	OpDup:   {"dup", FormatNone, 1, 2},
	OpDupX1: {"dup_x1", FormatNone, 2, 3},
	OpDupX2: {"dup_x2", FormatNone, 3, 4},
	OpDup2:  {"dup2", FormatNone, 2, 4},
	OpSwap:  {"swap", FormatNone, 2, 2},

	OpIadd: {"iadd", FormatNone, 2, 1},
	OpDadd: {"dadd", FormatNone, 4, 2},
	OpIsub: {"isub", FormatNone, 2, 1},
	OpDsub: {"dsub", FormatNone, 4, 2},
	OpImul: {"imul", FormatNone, 2, 1},
	OpDmul: {"dmul", FormatNone, 4, 2},
	OpIdiv: {"idiv", FormatNone, 2, 1},
	OpDdiv: {"ddiv", FormatNone, 4, 2},
	OpIrem: {"irem", FormatNone, 2, 1},
	OpDrem: {"drem", FormatNone, 4, 2},
	OpIneg: {"ineg", FormatNone, 1, 1},
	OpDneg: {"dneg", FormatNone, 2, 2},
	OpIand: {"iand", FormatNone, 2, 1},
	OpIor:  {"ior", FormatNone, 2, 1},
	OpIxor: {"ixor", FormatNone, 2, 1},
	OpIinc: {"iinc", FormatIinc, 0, 0},

	OpI2d: {"i2d", FormatNone, 1, 2},
	OpD2i: {"d2i", FormatNone, 2, 1},

	OpDcmpl:    {"dcmpl", FormatNone, 4, 1},
	OpDcmpg:    {"dcmpg", FormatNone, 4, 1},
	OpIfeq:     {"ifeq", FormatBranch, 1, 0},
	OpIfne:     {"ifne", FormatBranch, 1, 0},
	OpIflt:     {"iflt", FormatBranch, 1, 0},
	OpIfge:     {"ifge", FormatBranch, 1, 0},
	OpIfgt:     {"ifgt", FormatBranch, 1, 0},
	OpIfle:     {"ifle", FormatBranch, 1, 0},
	OpIfIcmpeq: {"if_icmpeq", FormatBranch, 2, 0},
	OpIfIcmpne: {"if_icmpne", FormatBranch, 2, 0},
	OpIfIcmplt: {"if_icmplt", FormatBranch, 2, 0},
	OpIfIcmpge: {"if_icmpge", FormatBranch, 2, 0},
	OpIfIcmpgt: {"if_icmpgt", FormatBranch, 2, 0},
	OpIfIcmple: {"if_icmple", FormatBranch, 2, 0},
	OpIfAcmpeq: {"if_acmpeq", FormatBranch, 2, 0},
	OpIfAcmpne: {"if_acmpne", FormatBranch, 2, 0},
	OpGoto:     {"goto", FormatBranch, 0, 0},

	OpIreturn: {"ireturn", FormatNone, 1, 0},
	OpDreturn: {"dreturn", FormatNone, 2, 0},
	OpAreturn: {"areturn", FormatNone, 1, 0},
	OpReturn:  {"return", FormatNone, 0, 0},

	OpGetstatic:     {"getstatic", FormatU2, -1, -1},
	OpPutstatic:     {"putstatic", FormatU2, -1, -1},
	OpGetfield:      {"getfield", FormatU2, -1, -1},
	OpPutfield:      {"putfield", FormatU2, -1, -1},
	OpInvokevirtual: {"invokevirtual", FormatU2, -1, -1},
	OpInvokespecial: {"invokespecial", FormatU2, -1, -1},
	OpInvokestatic:  {"invokestatic", FormatU2, -1, -1},

	OpNew:         {"new", FormatU2, 0, 1},
	OpNewarray:    {"newarray", FormatU1, 1, 1},
	OpAnewarray:   {"anewarray", FormatU2, 1, 1},
	OpArraylength: {"arraylength", FormatNone, 1, 1},
	OpAthrow:      {"athrow", FormatNone, 1, 0},
	OpIfnull:      {"ifnull", FormatBranch, 1, 0},
	OpIfnonnull:   {"ifnonnull", FormatBranch, 1, 0},
}

// Known 是否为已知操作码
func (op Opcode) Known() bool {
	_, ok := opTable[op]
	return ok
}

// Format 操作数格式
func (op Opcode) Format() OperandFormat {
	return opTable[op].format
}

// IsBranch 是否带相对跳转偏移
func (op Opcode) IsBranch() bool {
	return opTable[op].format == FormatBranch
}

// IsReturn 是否为返回指令
func (op Opcode) IsReturn() bool {
	switch op {
	case OpIreturn, OpDreturn, OpAreturn, OpReturn:
		return true
	}
	return false
}

// EndsBlock 执行后不会落到下一条指令
func (op Opcode) EndsBlock() bool {
	return op == OpGoto || op == OpAthrow || op.IsReturn()
}

func (op Opcode) String() string {
	if info, ok := opTable[op]; ok {
		return info.name
	}
	return fmt.Sprintf("opcode(0x%02x)", uint8(op))
}

// negated 条件跳转的反条件
var negated = map[Opcode]Opcode{
	OpIfeq:      OpIfne,
	OpIfne:      OpIfeq,
	OpIflt:      OpIfge,
	OpIfge:      OpIflt,
	OpIfgt:      OpIfle,
	OpIfle:      OpIfgt,
	OpIfIcmpeq:  OpIfIcmpne,
	OpIfIcmpne:  OpIfIcmpeq,
	OpIfIcmplt:  OpIfIcmpge,
	OpIfIcmpge:  OpIfIcmplt,
	OpIfIcmpgt:  OpIfIcmple,
	OpIfIcmple:  OpIfIcmpgt,
	OpIfAcmpeq:  OpIfAcmpne,
	OpIfAcmpne:  OpIfAcmpeq,
	OpIfnull:    OpIfnonnull,
	OpIfnonnull: OpIfnull,
}

// Negate 条件跳转取反，非条件跳转原样返回 false
func (op Opcode) Negate() (Opcode, bool) {
	n, ok := negated[op]
	return n, ok
}
