package jvmgen

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/tangzhangming/kforge/internal/ast"
	"github.com/tangzhangming/kforge/internal/ast/asttest"
	"github.com/tangzhangming/kforge/internal/tac"
)

// generateMain 只编译 main 方法，返回生成器以便检查标签
func generateMain(t *testing.T, stmts ...ast.Stmt) (*Generator, *CodeResult) {
	t.Helper()
	prog, err := tac.Generate(ast.NewFile(ast.NewMain(stmts...)))
	require.NoError(t, err)
	src := SplitMethods(prog)[0]
	require.True(t, src.Main)

	g, err := NewGenerator(NewConstantPool(), MethodConfig{
		Class: "Main", Name: "main", Main: true, Result: ast.TypeUnit, Types: prog.Types,
	})
	require.NoError(t, err)
	res, err := g.GenerateMethod(src.Instrs)
	require.NoError(t, err)
	return g, res
}

func ops(res *CodeResult) []Opcode {
	out := make([]Opcode, len(res.Instrs))
	for i, in := range res.Instrs {
		out[i] = in.Op
	}
	return out
}

func indexOf(res *CodeResult, op Opcode) int {
	for i, in := range res.Instrs {
		if in.Op == op {
			return i
		}
	}
	return -1
}

func printInt(v int64) ast.Stmt {
	return ast.NewExprStmt(ast.NewCall("println", ast.TypeUnit, ast.NewInt(v)))
}

func checkStack(t *testing.T, g *Generator, res *CodeResult) {
	t.Helper()
	check := CheckCode(res.Code, g.pool)
	require.True(t, check.IsValid, check.Errors)
	assert.Equal(t, res.MaxStack, check.MaxDepth)
}

func TestIfElseBranchLandsOnElse(t *testing.T) {
	x := ast.NewIdent("x", ast.TypeInt)
	g, res := generateMain(t,
		ast.NewVal("x", ast.TypeInt, ast.NewInt(5)),
		ast.NewIf(ast.NewBinary(">", x, ast.NewInt(3)),
			ast.NewBlock(printInt(1)),
			ast.NewBlock(printInt(2))),
	)

	i := indexOf(res, OpIfIcmple)
	require.GreaterOrEqual(t, i, 0, "x > 3 fused into if_icmple: %v", ops(res))
	assert.Equal(t, -1, indexOf(res, OpIconst0), "no boolean value materialized")

	elseStart := res.PCs[g.labels["L0"]]
	assert.Equal(t, elseStart, res.PCs[i]+res.Instrs[i].Operands[0])
	checkStack(t, g, res)
}

func TestBackwardGotoOffset(t *testing.T) {
	i := ast.NewIdent("i", ast.TypeInt)
	g, res := generateMain(t,
		ast.NewVar("i", ast.TypeInt, ast.NewInt(0)),
		ast.NewWhile(ast.NewBinary("<", i, ast.NewInt(10)), ast.NewBlock(
			ast.NewAssign(i, ast.NewBinary("+", i, ast.NewInt(1))),
		)),
	)

	gotoIdx := indexOf(res, OpGoto)
	require.GreaterOrEqual(t, gotoIdx, 0)
	start := res.PCs[g.labels["L0"]]
	off := res.Instrs[gotoIdx].Operands[0]
	assert.Negative(t, off)
	assert.Equal(t, start-res.PCs[gotoIdx], off)

	exit := indexOf(res, OpIfIcmpge)
	require.GreaterOrEqual(t, exit, 0)
	assert.Equal(t, res.PCs[g.labels["L1"]], res.PCs[exit]+res.Instrs[exit].Operands[0])
	checkStack(t, g, res)
}

func TestAdditionNeedsTwoStackSlots(t *testing.T) {
	a, b := ast.NewIdent("a", ast.TypeInt), ast.NewIdent("b", ast.TypeInt)
	g, res := generateMain(t,
		ast.NewVal("a", ast.TypeInt, ast.NewInt(1)),
		ast.NewVal("b", ast.TypeInt, ast.NewInt(2)),
		ast.NewVal("c", ast.TypeInt, ast.NewBinary("+", a, b)),
	)
	assert.GreaterOrEqual(t, res.MaxStack, 2)
	assert.Contains(t, ops(res), OpIadd)
	// args + a + b + t0 + c
	assert.Equal(t, 5, res.MaxLocals)
	checkStack(t, g, res)
}

func TestComparisonValueForm(t *testing.T) {
	a := ast.NewIdent("a", ast.TypeInt)
	g, res := generateMain(t,
		ast.NewVal("a", ast.TypeInt, ast.NewInt(1)),
		ast.NewVal("b", ast.TypeBoolean, ast.NewBinary("==", a, ast.NewInt(1))),
	)
	assert.Equal(t, []Opcode{
		OpIconst1, OpIstore1, // a = 1
		OpIload1, OpIconst1, OpIfIcmpeq, OpIconst0, OpGoto, OpIconst1, OpIstore2, // t0 = a == 1
		OpIload2, OpIstore3, // b = t0
		OpReturn,
	}, ops(res))
	assert.Equal(t, 2, res.MaxStack)
	checkStack(t, g, res)
}

func TestDoubleComparisons(t *testing.T) {
	tests := []struct {
		op     string
		cmp    Opcode
		branch Opcode
	}{
		{"<", OpDcmpg, OpIfge},
		{"<=", OpDcmpg, OpIfgt},
		{">", OpDcmpl, OpIfle},
		{">=", OpDcmpl, OpIflt},
		{"==", OpDcmpl, OpIfne},
		{"!=", OpDcmpl, OpIfeq},
	}
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			d := ast.NewIdent("d", ast.TypeDouble)
			g, res := generateMain(t,
				ast.NewVal("d", ast.TypeDouble, ast.NewDouble(2.5)),
				ast.NewIf(ast.NewBinary(tt.op, d, ast.NewDouble(1.5)), ast.NewBlock(printInt(1)), nil),
			)
			i := indexOf(res, tt.cmp)
			require.GreaterOrEqual(t, i, 0, "%v", ops(res))
			assert.Equal(t, tt.branch, res.Instrs[i+1].Op)
			assert.Equal(t, 4, res.MaxStack)
			checkStack(t, g, res)
		})
	}
}

func TestMixedArithmeticWidensToDouble(t *testing.T) {
	n := ast.NewIdent("n", ast.TypeInt)
	g, res := generateMain(t,
		ast.NewVal("n", ast.TypeInt, ast.NewInt(3)),
		ast.NewVal("d", ast.TypeDouble, ast.NewBinary("*", n, ast.NewDouble(0.5))),
		ast.NewExprStmt(ast.NewCall("println", ast.TypeUnit, ast.NewIdent("d", ast.TypeDouble))),
	)
	got := ops(res)
	assert.Contains(t, got, OpI2d)
	assert.Contains(t, got, OpDmul)
	assert.Contains(t, got, OpDupX2, "double argument moved under System.out")
	checkStack(t, g, res)

	i := indexOf(res, OpInvokevirtual)
	ref, err := g.pool.Ref(uint16(res.Instrs[i].Operands[0]))
	require.NoError(t, err)
	assert.Equal(t, "java/io/PrintStream.println:(D)V", ref.String())
}

func TestStringOperations(t *testing.T) {
	s := ast.NewIdent("s", ast.TypeString)
	g, res := generateMain(t,
		ast.NewVal("s", ast.TypeString, ast.NewString("n=")),
		ast.NewVal("t", ast.TypeString, ast.NewBinary("+", s, ast.NewInt(4))),
		ast.NewVal("same", ast.TypeBoolean, ast.NewBinary("==", s, ast.NewString("n="))),
		ast.NewVal("len", ast.TypeInt, ast.NewProperty(s, "length")),
	)
	var methods []string
	for _, in := range res.Instrs {
		if in.Op == OpInvokevirtual || in.Op == OpInvokestatic {
			ref, err := g.pool.Ref(uint16(in.Operands[0]))
			require.NoError(t, err)
			methods = append(methods, ref.Name+ref.Descriptor)
		}
	}
	assert.Equal(t, []string{
		"valueOf(I)Ljava/lang/String;",
		"concat(Ljava/lang/String;)Ljava/lang/String;",
		"equals(Ljava/lang/Object;)Z",
		"length()I",
	}, methods)
	checkStack(t, g, res)
}

func TestArrays(t *testing.T) {
	arr := ast.NewIdent("arr", ast.TypeIntArray)
	g, res := generateMain(t,
		ast.NewVal("arr", ast.TypeIntArray, ast.NewCall("intArrayOf", ast.TypeIntArray, ast.NewInt(7), ast.NewInt(8))),
		ast.NewAssign(ast.NewIndex(arr, ast.NewInt(1)), ast.NewInt(9)),
		ast.NewVal("n", ast.TypeInt, ast.NewProperty(arr, "size")),
		ast.NewVal("x", ast.TypeInt, ast.NewIndex(arr, ast.NewInt(0))),
	)
	got := ops(res)
	assert.Equal(t, []Opcode{OpIconst2, OpNewarray, OpDup, OpIconst0, OpBipush, OpIastore, OpDup, OpIconst1, OpBipush, OpIastore}, got[:10])
	assert.Equal(t, TypeInt, res.Instrs[1].Operands[0])
	assert.Contains(t, got, OpArraylength)
	assert.Contains(t, got, OpIaload)
	checkStack(t, g, res)
}

func TestUserFunctionCalls(t *testing.T) {
	p := ast.NewIdent("p", ast.TypeInt)
	file := ast.NewFile(
		ast.NewFunc("twice", []*ast.Param{{Name: "p", Type: ast.TypeInt}}, ast.TypeInt,
			ast.NewBlock(ast.NewReturn(ast.NewBinary("*", p, ast.NewInt(2))))),
		ast.NewFunc("log", []*ast.Param{{Name: "p", Type: ast.TypeInt}}, ast.TypeUnit,
			ast.NewBlock(ast.NewExprStmt(ast.NewCall("println", ast.TypeUnit, p)))),
		ast.NewMain(
			ast.NewExprStmt(ast.NewCall("log", ast.TypeUnit, ast.NewInt(1))),
			ast.NewVal("y", ast.TypeInt, ast.NewCall("twice", ast.TypeInt, ast.NewInt(21))),
		),
	)
	prog, err := tac.Generate(file)
	require.NoError(t, err)
	cf, reports, err := GenerateClass(context.Background(), prog, ClassConfig{Name: "Main", Version: Java6, DebugInfo: true})
	require.NoError(t, err)
	require.Len(t, reports, 3)

	byName := make(map[string]MethodReport)
	for _, r := range reports {
		byName[r.Name] = r
		check := CheckCode(r.Code.Code, cf.Pool)
		assert.True(t, check.IsValid, "%s: %v", r.Name, check.Errors)
		assert.Equal(t, r.MaxStack, check.MaxDepth, r.Name)
	}
	assert.Equal(t, "(I)I", byName["twice"].Descriptor)
	assert.Equal(t, "(I)V", byName["log"].Descriptor)
	assert.Equal(t, MainDescriptor, byName["main"].Descriptor)

	mainOps := ops(byName["main"].Code)
	// log 无返回值，既不存储也不弹出
	assert.Equal(t, []Opcode{OpIconst1, OpInvokestatic, OpBipush, OpInvokestatic, OpIstore1, OpIload1, OpIstore2, OpReturn}, mainOps)
	assert.Equal(t, []Opcode{OpIload0, OpIconst2, OpImul, OpIstore1, OpIload1, OpIreturn}, ops(byName["twice"].Code))
}

func TestTerminalReturnAppended(t *testing.T) {
	prog := &tac.Program{
		Instrs: []tac.Instruction{{Op: tac.OpLabel, Label: "func_f"}},
		Funcs:  []tac.Func{{Name: "f", Result: ast.TypeDouble, Start: 0, End: 1}},
	}
	cf, reports, err := GenerateClass(context.Background(), prog, ClassConfig{Name: "T", Version: Java6})
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, []Opcode{OpReturn}, ops(reports[0].Code))
	assert.Equal(t, []Opcode{OpDconst0, OpDreturn}, ops(reports[1].Code))
	assert.Equal(t, 2, reports[1].MaxStack)
	assert.Len(t, cf.Methods, 3)
}

func TestGeneratorErrors(t *testing.T) {
	tests := []struct {
		name   string
		instrs []tac.Instruction
		want   error
	}{
		{
			name:   "undefined label",
			instrs: []tac.Instruction{{Op: tac.OpGoto, Label: "nowhere"}},
			want:   ErrUndefinedLabel,
		},
		{
			name: "duplicate label",
			instrs: []tac.Instruction{
				{Op: tac.OpLabel, Label: "L0"}, {Op: tac.OpLabel, Label: "L0"},
			},
			want: ErrDuplicateLabel,
		},
		{
			name:   "undefined variable",
			instrs: []tac.Instruction{{Op: tac.OpAssign, Arg1: tac.Name("ghost", ast.TypeInt), Result: tac.Name("x", ast.TypeInt)}},
			want:   ErrUndefinedVariable,
		},
		{
			name: "undefined function",
			instrs: []tac.Instruction{{
				Op: tac.OpCall, Arg1: tac.Name("nope", ast.TypeUnknown), Arg2: tac.IntLit(0), Result: tac.Name("t0", ast.TypeInt),
			}},
			want: ErrUndefinedFunction,
		},
		{
			name:   "int literal out of range",
			instrs: []tac.Instruction{{Op: tac.OpAssign, Arg1: tac.IntLit(1 << 40), Result: tac.Name("x", ast.TypeInt)}},
			want:   ErrBadOperand,
		},
		{
			name: "untyped literal",
			instrs: []tac.Instruction{{
				Op: tac.OpAssign, Arg1: tac.Operand{Kind: tac.KindLiteral, Text: "1.5"}, Result: tac.Name("x", ast.TypeDouble),
			}},
			want: ErrBadOperand,
		},
		{
			name: "literal of a non-value type",
			instrs: []tac.Instruction{{
				Op: tac.OpAssign, Arg1: tac.Operand{Kind: tac.KindLiteral, Text: "1", Type: ast.TypeUnit}, Result: tac.Name("x", ast.TypeInt),
			}},
			want: ErrBadOperand,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGenerator(NewConstantPool(), MethodConfig{Class: "Main", Main: true})
			require.NoError(t, err)
			_, err = g.GenerateMethod(tt.instrs)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBranchOutOfRange(t *testing.T) {
	instrs := []tac.Instruction{{Op: tac.OpGoto, Label: "far"}}
	for i := 0; i < 12000; i++ {
		instrs = append(instrs, tac.Instruction{Op: tac.OpAssign, Arg1: tac.IntLit(1000), Result: tac.Name("x", ast.TypeInt)})
	}
	instrs = append(instrs, tac.Instruction{Op: tac.OpLabel, Label: "far"})

	g, err := NewGenerator(NewConstantPool(), MethodConfig{Class: "Main", Main: true})
	require.NoError(t, err)
	_, err = g.GenerateMethod(instrs)
	assert.ErrorIs(t, err, ErrBranchRange)
}

func TestLineNumbers(t *testing.T) {
	lines := lineTable([]lineMark{{0, 1}, {0, 2}, {3, 2}, {5, 4}, {9, 5}}, []int{0, 1, 2, 4, 5, 7, 8, 9, 10, 12})
	assert.Equal(t, []LineNumber{{StartPC: 0, Line: 2}, {StartPC: 7, Line: 4}}, lines)
}

func TestGeneratedMethodsPassStackCheck(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		prog, err := tac.Generate(asttest.File().Draw(t, "file"))
		if err != nil {
			t.Fatalf("tac: %v", err)
		}
		cf, reports, err := GenerateClass(context.Background(), prog, ClassConfig{Name: "Main", Version: Java6, DebugInfo: true})
		if err != nil {
			t.Fatalf("jvm: %v", err)
		}
		for _, r := range reports {
			check := CheckCode(r.Code.Code, cf.Pool)
			if !check.IsValid {
				t.Fatalf("%s: %v\n%s", r.Name, check.Errors, DisassembleCode(r.Code.Code, cf.Pool))
			}
			if check.MaxDepth != r.MaxStack {
				t.Fatalf("%s: max_stack %d, verified depth %d\n%s", r.Name, r.MaxStack, check.MaxDepth,
					DisassembleCode(r.Code.Code, cf.Pool))
			}
		}
	})
}

func TestUnreachableCodeIgnoredByMaxStack(t *testing.T) {
	// return 之后的 a*a 需要 2 个槽，但不可达
	a := tac.Name("a", ast.TypeInt)
	instrs := []tac.Instruction{
		{Op: tac.OpAssign, Arg1: tac.IntLit(1), Result: a},
		{Op: tac.OpReturn},
		{Op: tac.OpMul, Arg1: a, Arg2: a, Result: a},
		{Op: tac.OpLabel, Label: "L0"},
		{Op: tac.OpAssign, Arg1: tac.IntLit(2), Result: a},
	}
	pool := NewConstantPool()
	g, err := NewGenerator(pool, MethodConfig{Class: "Main", Main: true})
	require.NoError(t, err)
	res, err := g.GenerateMethod(instrs)
	require.NoError(t, err)

	check := CheckCode(res.Code, pool)
	require.True(t, check.IsValid, check.Errors)
	assert.Equal(t, 1, check.MaxDepth)
	assert.Equal(t, check.MaxDepth, res.MaxStack)
}

func TestBranchTargetRestoresDepthAfterGoto(t *testing.T) {
	// if/else 的 else 分支紧跟在 goto 之后，由条件跳转恢复为可达
	x := tac.Name("x", ast.TypeInt)
	c := tac.Name("c", ast.TypeBoolean)
	instrs := []tac.Instruction{
		{Op: tac.OpAssign, Arg1: tac.IntLit(3), Result: x},
		{Op: tac.OpLt, Arg1: x, Arg2: tac.IntLit(5), Result: c},
		{Op: tac.OpIfFalse, Arg1: c, Label: "L0"},
		{Op: tac.OpAssign, Arg1: tac.IntLit(1), Result: x},
		{Op: tac.OpGoto, Label: "L1"},
		{Op: tac.OpLabel, Label: "L0"},
		{Op: tac.OpMul, Arg1: x, Arg2: x, Result: x},
		{Op: tac.OpLabel, Label: "L1"},
	}
	pool := NewConstantPool()
	g, err := NewGenerator(pool, MethodConfig{Class: "Main", Main: true})
	require.NoError(t, err)
	res, err := g.GenerateMethod(instrs)
	require.NoError(t, err)

	check := CheckCode(res.Code, pool)
	require.True(t, check.IsValid, check.Errors)
	assert.Equal(t, 2, res.MaxStack)
	assert.Equal(t, check.MaxDepth, res.MaxStack)
}

func TestGenerationIsDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		file := asttest.File().Draw(t, "file")
		compile := func() []byte {
			prog, err := tac.Generate(file)
			if err != nil {
				t.Fatalf("tac: %v", err)
			}
			cf, _, err := GenerateClass(context.Background(), prog, ClassConfig{Name: "Main", Version: Java6, DebugInfo: true, SourceFile: "Main.kt"})
			if err != nil {
				t.Fatalf("jvm: %v", err)
			}
			b, err := cf.ToBytes()
			if err != nil {
				t.Fatalf("bytes: %v", err)
			}
			return b
		}
		a, b := compile(), compile()
		if string(a) != string(b) {
			t.Fatalf("two compilations differ")
		}
	})
}
