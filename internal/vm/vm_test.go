package vm

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/tangzhangming/kforge/internal/ast"
	"github.com/tangzhangming/kforge/internal/ast/asttest"
	"github.com/tangzhangming/kforge/internal/jvmgen"
	"github.com/tangzhangming/kforge/internal/tac"
)

// ============================================================================
// 辅助函数
// ============================================================================

// tester *testing.T 和 *rapid.T 的公共部分
type tester interface {
	require.TestingT
	Helper()
}

// build 编译为 class 文件字节
func build(t tester, file *ast.File) []byte {
	t.Helper()
	prog, err := tac.Generate(file)
	require.NoError(t, err)
	cf, _, err := jvmgen.GenerateClass(context.Background(), prog, jvmgen.ClassConfig{
		Name:       "Main",
		SourceFile: "Main.kt",
		Version:    jvmgen.Java6,
		DebugInfo:  true,
	})
	require.NoError(t, err)
	data, err := cf.ToBytes()
	require.NoError(t, err)
	return data
}

// run 编译并执行，返回标准输出
func run(t *testing.T, decls ...ast.Node) (string, error) {
	t.Helper()
	var out strings.Builder
	_, err := RunBytes(build(t, ast.NewFile(decls...)), Options{Out: &out})
	return out.String(), err
}

func show(x ast.Expr) ast.Stmt {
	return ast.NewExprStmt(ast.NewCall("println", ast.TypeUnit, x))
}

func ident(name string, typ ast.Type) *ast.Ident { return ast.NewIdent(name, typ) }

// ============================================================================
// 执行测试
// ============================================================================

func TestHelloWorld(t *testing.T) {
	out, err := run(t, ast.NewMain(show(ast.NewString("Hello, World!"))))
	require.NoError(t, err)
	assert.Equal(t, "Hello, World!\n", out)
}

func TestLoops(t *testing.T) {
	sum := ident("sum", ast.TypeInt)
	i := ident("i", ast.TypeInt)
	out, err := run(t, ast.NewMain(
		ast.NewVar("sum", ast.TypeInt, ast.NewInt(0)),
		ast.NewFor("i", ast.NewRange(ast.NewInt(1), ast.NewInt(100), false), ast.NewBlock(
			ast.NewAssign(sum, ast.NewBinary("+", sum, i)),
		)),
		show(sum),
		ast.NewWhile(ast.NewBinary(">", sum, ast.NewInt(1000)), ast.NewBlock(
			ast.NewAssign(sum, ast.NewBinary("/", sum, ast.NewInt(2))),
		)),
		show(sum),
	))
	require.NoError(t, err)
	assert.Equal(t, "5050\n631\n", out)
}

func TestDoubles(t *testing.T) {
	x := ident("x", ast.TypeDouble)
	out, err := run(t, ast.NewMain(
		ast.NewVal("x", ast.TypeDouble, ast.NewBinary("+", ast.NewDouble(1.5), ast.NewInt(2))),
		show(x),
		show(ast.NewBinary("/", x, ast.NewInt(0))),
		show(ast.NewBinary("*", x, ast.NewDouble(1e10))),
		show(ast.NewBinary("<", x, ast.NewInt(4))),
	))
	require.NoError(t, err)
	assert.Equal(t, "3.5\nInfinity\n3.5E10\ntrue\n", out)
}

func TestStrings(t *testing.T) {
	s := ident("s", ast.TypeString)
	out, err := run(t, ast.NewMain(
		ast.NewVal("s", ast.TypeString, ast.NewBinary("+", ast.NewString("n="), ast.NewInt(42))),
		show(s),
		show(ast.NewProperty(s, "length")),
		show(ast.NewBinary("==", s, ast.NewString("n=42"))),
		show(ast.NewBinary("<", ast.NewString("apple"), ast.NewString("banana"))),
		show(ast.NewBinary("+", ast.NewString("pi "), ast.NewDouble(3.25))),
	))
	require.NoError(t, err)
	assert.Equal(t, "n=42\n4\ntrue\ntrue\npi 3.25\n", out)
}

func TestArrays(t *testing.T) {
	arr := ident("arr", ast.TypeIntArray)
	ds := ident("ds", ast.TypeDoubleArray)
	out, err := run(t, ast.NewMain(
		ast.NewVal("arr", ast.TypeIntArray, ast.NewCall("intArrayOf", ast.TypeIntArray, ast.NewInt(7), ast.NewInt(8))),
		ast.NewAssign(ast.NewIndex(arr, ast.NewInt(1)), ast.NewInt(30)),
		show(ast.NewBinary("+", ast.NewIndex(arr, ast.NewInt(0)), ast.NewIndex(arr, ast.NewInt(1)))),
		show(ast.NewProperty(arr, "size")),
		ast.NewVal("ds", ast.TypeDoubleArray, ast.NewCall("DoubleArray", ast.TypeDoubleArray, ast.NewInt(3))),
		ast.NewAssign(ast.NewIndex(ds, ast.NewInt(2)), ast.NewDouble(0.5)),
		show(ast.NewIndex(ds, ast.NewInt(2))),
		show(ast.NewIndex(ds, ast.NewInt(0))),
	))
	require.NoError(t, err)
	assert.Equal(t, "37\n2\n0.5\n0.0\n", out)
}

func TestSiblingScopesReuseName(t *testing.T) {
	yes := ast.NewBool(true)
	out, err := run(t, ast.NewMain(
		ast.NewIf(yes, ast.NewBlock(
			ast.NewVar("x", ast.TypeInt, ast.NewInt(1)),
			show(ident("x", ast.TypeInt)),
		), nil),
		ast.NewIf(yes, ast.NewBlock(
			ast.NewVar("x", ast.TypeDouble, ast.NewDouble(2.5)),
			show(ident("x", ast.TypeDouble)),
		), nil),
		ast.NewIf(yes, ast.NewBlock(
			ast.NewVal("x", ast.TypeString, ast.NewString("s")),
			show(ident("x", ast.TypeString)),
		), nil),
	))
	require.NoError(t, err)
	assert.Equal(t, "1\n2.5\ns\n", out)
}

func TestUserFunctions(t *testing.T) {
	n := ident("n", ast.TypeInt)
	fact := ast.NewFunc("fact", []*ast.Param{{Name: "n", Type: ast.TypeInt}}, ast.TypeInt, ast.NewBlock(
		ast.NewIf(ast.NewBinary("<=", n, ast.NewInt(1)), ast.NewBlock(ast.NewReturn(ast.NewInt(1))), nil),
		ast.NewReturn(ast.NewBinary("*", n, ast.NewCall("fact", ast.TypeInt, ast.NewBinary("-", n, ast.NewInt(1))))),
	))
	greet := ast.NewFunc("greet", []*ast.Param{{Name: "who", Type: ast.TypeString}}, ast.TypeUnit, ast.NewBlock(
		show(ast.NewBinary("+", ast.NewString("hi "), ident("who", ast.TypeString))),
	))

	var out strings.Builder
	cf, err := jvmgen.Parse(build(t, ast.NewFile(fact, greet, ast.NewMain(
		show(ast.NewCall("fact", ast.TypeInt, ast.NewInt(10))),
		ast.NewExprStmt(ast.NewCall("greet", ast.TypeUnit, ast.NewString("kforge"))),
	))))
	require.NoError(t, err)
	machine, err := New(cf, Options{Out: &out})
	require.NoError(t, err)
	require.NoError(t, machine.Run())
	assert.Equal(t, "3628800\nhi kforge\n", out.String())

	stats := machine.Stats()
	assert.Equal(t, 11, stats.MaxCallDepth, "main plus ten nested fact calls")
	assert.Equal(t, uint64(12), stats.FunctionCalls)

	r, err := machine.Invoke("fact", "(I)I", IntValue(5))
	require.NoError(t, err)
	assert.Equal(t, IntValue(120), r)

	_, err = machine.Invoke("fact", "(D)D", DoubleValue(1))
	assert.ErrorIs(t, err, ErrNoSuchMethod)
}

// ============================================================================
// 运行时异常
// ============================================================================

func TestRuntimeExceptions(t *testing.T) {
	z := ident("z", ast.TypeInt)
	arr := ident("arr", ast.TypeIntArray)
	tests := []struct {
		name  string
		stmts []ast.Stmt
		class string
		msg   string
	}{
		{
			name: "division by zero",
			stmts: []ast.Stmt{
				ast.NewVal("z", ast.TypeInt, ast.NewInt(0)),
				show(ast.NewBinary("/", ast.NewInt(10), z)),
			},
			class: "java/lang/ArithmeticException",
			msg:   "/ by zero",
		},
		{
			name: "remainder by zero",
			stmts: []ast.Stmt{
				ast.NewVal("z", ast.TypeInt, ast.NewInt(0)),
				show(ast.NewBinary("%", ast.NewInt(10), z)),
			},
			class: "java/lang/ArithmeticException",
			msg:   "/ by zero",
		},
		{
			name: "index out of bounds",
			stmts: []ast.Stmt{
				ast.NewVal("arr", ast.TypeIntArray, ast.NewCall("IntArray", ast.TypeIntArray, ast.NewInt(2))),
				show(ast.NewIndex(arr, ast.NewInt(2))),
			},
			class: "java/lang/ArrayIndexOutOfBoundsException",
			msg:   "Index 2 out of bounds for length 2",
		},
		{
			name: "negative array size",
			stmts: []ast.Stmt{
				ast.NewVal("z", ast.TypeInt, ast.NewInt(-1)),
				ast.NewVal("arr", ast.TypeIntArray, ast.NewCall("IntArray", ast.TypeIntArray, z)),
			},
			class: "java/lang/NegativeArraySizeException",
			msg:   "-1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, ast.NewMain(tt.stmts...))
			var exc *Exception
			require.ErrorAs(t, err, &exc)
			assert.Equal(t, tt.class, exc.Class)
			assert.Equal(t, tt.msg, exc.Message)
			require.NotEmpty(t, exc.Trace)
			assert.Equal(t, "main", exc.Trace[0].Method)
			assert.Equal(t, "Main.kt", exc.Trace[0].Source)
			assert.True(t, strings.HasPrefix(exc.StackTrace(), `Exception in thread "main" java.lang.`), exc.StackTrace())
		})
	}
}

func TestStackOverflow(t *testing.T) {
	n := ident("n", ast.TypeInt)
	loop := ast.NewFunc("loop", []*ast.Param{{Name: "n", Type: ast.TypeInt}}, ast.TypeInt, ast.NewBlock(
		ast.NewReturn(ast.NewCall("loop", ast.TypeInt, ast.NewBinary("+", n, ast.NewInt(1)))),
	))
	_, err := RunBytes(build(t, ast.NewFile(loop, ast.NewMain(show(ast.NewCall("loop", ast.TypeInt, ast.NewInt(0)))))),
		Options{MaxDepth: 32})
	var exc *Exception
	require.ErrorAs(t, err, &exc)
	assert.Equal(t, "java/lang/StackOverflowError", exc.Class)
	assert.Len(t, exc.Trace, 32)
}

func TestStepLimit(t *testing.T) {
	_, err := RunBytes(build(t, ast.NewFile(ast.NewMain(
		ast.NewWhile(ast.NewBool(true), ast.NewBlock()),
	))), Options{MaxSteps: 1000})
	assert.ErrorIs(t, err, ErrStepLimit)
}

// ============================================================================
// 校验
// ============================================================================

// handBuilt 用原始字节码构造只有 main 的类
func handBuilt(t *testing.T, maxStack, maxLocals int, code ...byte) *jvmgen.ClassFile {
	t.Helper()
	cf, err := jvmgen.NewClassFile("Hand", jvmgen.Java6, jvmgen.ClassOptions{})
	require.NoError(t, err)
	cf.AddMethod(jvmgen.AccPublic|jvmgen.AccStatic, "main", jvmgen.MainDescriptor,
		jvmgen.NewCodeAttribute(cf.Pool, maxStack, maxLocals, code))
	return cf
}

func TestStringArrays(t *testing.T) {
	cf, err := jvmgen.NewClassFile("Words", jvmgen.Java6, jvmgen.ClassOptions{})
	require.NoError(t, err)
	rt := jvmgen.NewRuntime(cf.Pool)
	words := []string{"alpha", "beta", "gamma"}

	var code []jvmgen.Instruction
	emit := func(in jvmgen.Instruction) error {
		code = append(code, in)
		return nil
	}
	require.NoError(t, rt.ArrayLiteral(ast.TypeString, len(words), emit, func(i int) error {
		return emit(rt.LoadString(words[i]))
	}))
	printString, err := rt.Print("println", ast.TypeString)
	require.NoError(t, err)
	printInt, err := rt.Print("println", ast.TypeInt)
	require.NoError(t, err)
	code = append(code, jvmgen.Simple(jvmgen.OpDup), jvmgen.Simple(jvmgen.OpArraylength))
	code = append(code, printInt...)
	code = append(code, jvmgen.Simple(jvmgen.OpIconst2), rt.ArrayLoad(ast.TypeString))
	code = append(code, printString...)
	code = append(code, jvmgen.Simple(jvmgen.OpReturn))

	w := jvmgen.NewByteWriter()
	for _, in := range code {
		require.NoError(t, in.Encode(w))
	}
	cf.AddMethod(jvmgen.AccPublic|jvmgen.AccStatic, "main", jvmgen.MainDescriptor,
		jvmgen.NewCodeAttribute(cf.Pool, 4, 1, w.Bytes()))

	var out strings.Builder
	stats, err := Run(cf, Options{Out: &out})
	require.NoError(t, err)
	assert.Equal(t, "3\ngamma\n", out.String())
	assert.Equal(t, uint64(1), stats.Allocations)
}

func TestVerifyErrors(t *testing.T) {
	const (
		iconst1 = byte(jvmgen.OpIconst1)
		pop     = byte(jvmgen.OpPop)
		ret     = byte(jvmgen.OpReturn)
		gotoOp  = byte(jvmgen.OpGoto)
		dconst0 = byte(jvmgen.OpDconst0)
		ireturn = byte(jvmgen.OpIreturn)
		iload1  = byte(jvmgen.OpIload1)
		swap    = byte(jvmgen.OpSwap)
	)
	tests := []struct {
		name      string
		maxStack  int
		maxLocals int
		code      []byte
		load      bool // 加载阶段就应失败
	}{
		{"max_stack exceeded", 1, 1, []byte{iconst1, iconst1, pop, pop, ret}, false},
		{"stack underflow", 1, 1, []byte{pop, ret}, false},
		{"falls off the end", 1, 1, []byte{iconst1, pop}, false},
		{"branch into an instruction", 1, 1, []byte{gotoOp, 0, 1, ret}, true},
		{"wrong return kind", 1, 1, []byte{iconst1, ireturn}, false},
		{"uninitialised local", 1, 2, []byte{iload1, pop, ret}, false},
		{"local outside max_locals", 1, 1, []byte{iload1, pop, ret}, false},
		{"swap splits a double", 3, 1, []byte{dconst0, iconst1, swap, ret}, false},
		{"arguments exceed max_locals", 1, 0, []byte{ret}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			machine, err := New(handBuilt(t, tt.maxStack, tt.maxLocals, tt.code...), Options{})
			if tt.load {
				assert.ErrorIs(t, err, ErrVerify)
				return
			}
			require.NoError(t, err)
			assert.ErrorIs(t, machine.Run(), ErrVerify)
		})
	}
}

func TestUnsupportedAndMissing(t *testing.T) {
	_, err := Run(handBuilt(t, 1, 1, byte(jvmgen.OpAconstNull), byte(jvmgen.OpAthrow)), Options{})
	assert.ErrorIs(t, err, ErrUnsupported)

	cf, err := jvmgen.NewClassFile("Empty", jvmgen.Java6, jvmgen.ClassOptions{})
	require.NoError(t, err)
	_, err = Run(cf, Options{})
	assert.ErrorIs(t, err, ErrNoMain)

	cf = handBuilt(t, 1, 1, byte(jvmgen.OpInvokestatic), 0, 0, byte(jvmgen.OpReturn))
	idx := cf.Pool.AddMethodref("java/lang/Math", "random", "()D")
	code := cf.Methods[0].Code().Code
	code[1], code[2] = byte(idx>>8), byte(idx)
	_, err = Run(cf, Options{})
	assert.ErrorIs(t, err, ErrNoSuchMethod)
}

// ============================================================================
// 语义细节
// ============================================================================

func TestFormatDouble(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.0"},
		{math.Copysign(0, -1), "-0.0"},
		{1, "1.0"},
		{-2.5, "-2.5"},
		{100, "100.0"},
		{0.001, "0.001"},
		{0.0001, "1.0E-4"},
		{1234567.5, "1234567.5"},
		{1e7, "1.0E7"},
		{1.5e-10, "1.5E-10"},
		{math.NaN(), "NaN"},
		{math.Inf(1), "Infinity"},
		{math.Inf(-1), "-Infinity"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDouble(tt.in), "%v", tt.in)
	}
}

func TestNumericSemantics(t *testing.T) {
	assert.Equal(t, int32(0), d2i(math.NaN()))
	assert.Equal(t, int32(math.MaxInt32), d2i(1e20))
	assert.Equal(t, int32(math.MinInt32), d2i(math.Inf(-1)))
	assert.Equal(t, int32(-3), d2i(-3.9))

	assert.Equal(t, int32(-1), dcmp(jvmgen.OpDcmpl, math.NaN(), 0))
	assert.Equal(t, int32(1), dcmp(jvmgen.OpDcmpg, math.NaN(), 0))
	assert.Equal(t, int32(0), dcmp(jvmgen.OpDcmpl, 2, 2))

	r, exc := intArith(jvmgen.OpIdiv, math.MinInt32, -1)
	assert.Nil(t, exc)
	assert.Equal(t, int32(math.MinInt32), r)
	r, _ = intArith(jvmgen.OpIrem, -7, 3)
	assert.Equal(t, int32(-1), r)
	assert.Equal(t, -1.0, doubleArith(jvmgen.OpDrem, -7, 3))

	assert.Equal(t, int32('a'-'b'), compareUTF16("apple", "banana"))
	assert.Equal(t, int32(-2), compareUTF16("ab", "abcd"))
	assert.Equal(t, int32(0), compareUTF16("", ""))
	// U+1F600 编码为代理对，高位代理 0xD83D 小于 U+FFFD
	assert.Less(t, compareUTF16("\U0001F600", "\uFFFD"), int32(0))
}

// ============================================================================
// 与参考求值器对比
// ============================================================================

func TestMatchesReferenceEvaluator(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		file := asttest.File().Draw(rt, "file")
		want, err := asttest.Eval(file, 20000)
		if err != nil {
			// 只比较能在步数上限内结束的程序
			return
		}
		var out strings.Builder
		if _, err := RunBytes(build(rt, file), Options{Out: &out}); err != nil {
			rt.Fatalf("run: %v", err)
		}
		if out.String() != want {
			rt.Fatalf("output mismatch\nvm:\n%s\nreference:\n%s", out.String(), want)
		}
	})
}
