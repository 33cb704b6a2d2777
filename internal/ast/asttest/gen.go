// Package asttest 提供随机 AST 生成器和参考求值器，供各后端做性质测试
package asttest

import (
	"fmt"

	"pgregory.net/rapid"

	"github.com/tangzhangming/kforge/internal/ast"
)

// 生成的程序只用 Int/Boolean，循环次数有界，除数恒为非零字面量，
// 所以参考求值器和字节码执行结果必须逐字节一致。

type genState struct {
	t       *rapid.T
	vars    []string // 可读写的 Int 变量
	readers []string // 只读的 Int 名字（循环变量、计数器）
	helpers []helper
	loops   int
	uniq    int
}

type helper struct {
	name  string
	arity int
}

// File 随机程序：若干辅助函数加一个 main
func File() *rapid.Generator[*ast.File] {
	return rapid.Custom(func(t *rapid.T) *ast.File {
		g := &genState{t: t}
		var decls []ast.Node

		nHelpers := rapid.IntRange(0, 2).Draw(t, "helpers")
		for i := 0; i < nHelpers; i++ {
			decls = append(decls, g.helperFunc(i))
		}

		nVars := rapid.IntRange(1, 4).Draw(t, "vars")
		var body []ast.Stmt
		for i := 0; i < nVars; i++ {
			name := fmt.Sprintf("v%d", i)
			body = append(body, ast.NewVar(name, ast.TypeInt, ast.NewInt(g.lit())))
			g.vars = append(g.vars, name)
		}
		body = append(body, g.stmts(0, rapid.IntRange(1, 8).Draw(t, "stmts"))...)
		for _, v := range g.vars {
			body = append(body, printCall(ident(v)))
		}
		decls = append(decls, ast.NewMain(body...))
		return ast.NewFile(decls...)
	})
}

func (g *genState) helperFunc(i int) ast.Node {
	name := fmt.Sprintf("h%d", i)
	arity := rapid.IntRange(1, 3).Draw(g.t, name+".arity")
	params := make([]*ast.Param, arity)
	saved := g.readers
	g.readers = nil
	for j := range params {
		params[j] = &ast.Param{Name: fmt.Sprintf("p%d", j), Type: ast.TypeInt}
		g.readers = append(g.readers, params[j].Name)
	}
	savedVars := g.vars
	g.vars = nil
	body := ast.NewBlock(ast.NewReturn(g.intExpr(2)))
	g.vars = savedVars
	g.readers = saved
	g.helpers = append(g.helpers, helper{name: name, arity: arity})
	return ast.NewFunc(name, params, ast.TypeInt, body)
}

func (g *genState) lit() int64 {
	return int64(rapid.IntRange(-50, 50).Draw(g.t, "lit"))
}

func (g *genState) fresh(prefix string) string {
	g.uniq++
	return fmt.Sprintf("%s%d", prefix, g.uniq)
}

func ident(name string) *ast.Ident { return ast.NewIdent(name, ast.TypeInt) }

func printCall(x ast.Expr) ast.Stmt {
	return ast.NewExprStmt(ast.NewCall("println", ast.TypeUnit, x))
}

func (g *genState) stmts(depth, n int) []ast.Stmt {
	out := make([]ast.Stmt, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, g.stmt(depth)...)
	}
	return out
}

func (g *genState) stmt(depth int) []ast.Stmt {
	kinds := []string{"assign", "assign", "print"}
	if depth < 2 {
		kinds = append(kinds, "if", "for", "while")
	}
	if g.loops > 0 {
		kinds = append(kinds, "break", "continue")
	}
	switch rapid.SampledFrom(kinds).Draw(g.t, "stmt") {
	case "assign":
		target := rapid.SampledFrom(g.vars).Draw(g.t, "target")
		return []ast.Stmt{ast.NewAssign(ident(target), g.intExpr(2))}
	case "print":
		if rapid.Bool().Draw(g.t, "printBool") {
			return []ast.Stmt{printCall(g.cond(1))}
		}
		return []ast.Stmt{printCall(g.intExpr(2))}
	case "if":
		then := ast.NewBlock(g.stmts(depth+1, rapid.IntRange(0, 3).Draw(g.t, "then"))...)
		var els *ast.Block
		if rapid.Bool().Draw(g.t, "hasElse") {
			els = ast.NewBlock(g.stmts(depth+1, rapid.IntRange(0, 3).Draw(g.t, "else"))...)
		}
		return []ast.Stmt{ast.NewIf(g.cond(2), then, els)}
	case "for":
		k := g.fresh("k")
		from := ast.NewInt(int64(rapid.IntRange(-2, 2).Draw(g.t, "from")))
		to := ast.NewInt(int64(rapid.IntRange(-1, 4).Draw(g.t, "to")))
		rng := ast.NewRange(from, to, rapid.Bool().Draw(g.t, "until"))
		g.readers = append(g.readers, k)
		g.loops++
		body := ast.NewBlock(g.stmts(depth+1, rapid.IntRange(1, 3).Draw(g.t, "body"))...)
		g.loops--
		g.readers = g.readers[:len(g.readers)-1]
		return []ast.Stmt{ast.NewFor(k, rng, body)}
	case "while":
		w := g.fresh("w")
		limit := ast.NewInt(int64(rapid.IntRange(0, 4).Draw(g.t, "limit")))
		g.readers = append(g.readers, w)
		g.loops++
		body := []ast.Stmt{ast.NewAssign(ident(w), ast.NewBinary("+", ident(w), ast.NewInt(1)))}
		body = append(body, g.stmts(depth+1, rapid.IntRange(1, 3).Draw(g.t, "body"))...)
		g.loops--
		g.readers = g.readers[:len(g.readers)-1]
		return []ast.Stmt{
			ast.NewVar(w, ast.TypeInt, ast.NewInt(0)),
			ast.NewWhile(ast.NewBinary("<", ident(w), limit), ast.NewBlock(body...)),
		}
	case "break":
		return []ast.Stmt{&ast.BreakStmt{}}
	default:
		return []ast.Stmt{&ast.ContinueStmt{}}
	}
}

func (g *genState) intExpr(depth int) ast.Expr {
	kinds := []string{"lit"}
	if len(g.vars)+len(g.readers) > 0 {
		kinds = append(kinds, "name", "name")
	}
	if depth > 0 {
		kinds = append(kinds, "arith", "arith", "div", "neg")
		if len(g.helpers) > 0 {
			kinds = append(kinds, "call")
		}
	}
	switch rapid.SampledFrom(kinds).Draw(g.t, "expr") {
	case "lit":
		return ast.NewInt(g.lit())
	case "name":
		names := append(append([]string{}, g.vars...), g.readers...)
		return ident(rapid.SampledFrom(names).Draw(g.t, "name"))
	case "arith":
		op := rapid.SampledFrom([]string{"+", "-", "*"}).Draw(g.t, "op")
		return ast.NewBinary(op, g.intExpr(depth-1), g.intExpr(depth-1))
	case "div":
		op := rapid.SampledFrom([]string{"/", "%"}).Draw(g.t, "op")
		return ast.NewBinary(op, g.intExpr(depth-1), ast.NewInt(int64(rapid.IntRange(1, 9).Draw(g.t, "divisor"))))
	case "neg":
		return ast.NewUnary("-", g.intExpr(depth-1))
	default:
		h := rapid.SampledFrom(g.helpers).Draw(g.t, "helper")
		args := make([]ast.Expr, h.arity)
		for i := range args {
			args[i] = g.intExpr(depth - 1)
		}
		return ast.NewCall(h.name, ast.TypeInt, args...)
	}
}

func (g *genState) cond(depth int) ast.Expr {
	kinds := []string{"cmp", "cmp", "lit"}
	if depth > 0 {
		kinds = append(kinds, "not", "logic")
	}
	switch rapid.SampledFrom(kinds).Draw(g.t, "cond") {
	case "cmp":
		op := rapid.SampledFrom([]string{"<", ">", "<=", ">=", "==", "!="}).Draw(g.t, "cmp")
		return ast.NewBinary(op, g.intExpr(1), g.intExpr(1))
	case "lit":
		return ast.NewBool(rapid.Bool().Draw(g.t, "bool"))
	case "not":
		return ast.NewUnary("!", g.cond(depth-1))
	default:
		op := rapid.SampledFrom([]string{"&&", "||"}).Draw(g.t, "logic")
		return ast.NewBinary(op, g.cond(depth-1), g.cond(depth-1))
	}
}
