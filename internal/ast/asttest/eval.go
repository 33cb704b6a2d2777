package asttest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/tangzhangming/kforge/internal/ast"
)

var errStepLimit = errors.New("step limit exceeded")

type flow int

const (
	flowNext flow = iota
	flowBreak
	flowContinue
	flowReturn
)

type frame struct {
	vars map[string]interface{}
	ret  interface{}
}

type evaluator struct {
	funcs map[string]*ast.FuncDecl
	out   strings.Builder
	steps int
}

// Eval 按 Kotlin 语义直接解释 AST，返回 println/print 的输出。
// 只支持随机生成器用到的 Int/Boolean 子集和字符串字面量。
func Eval(file *ast.File, maxSteps int) (string, error) {
	ev := &evaluator{funcs: make(map[string]*ast.FuncDecl), steps: maxSteps}
	globals := &frame{vars: make(map[string]interface{})}
	for _, d := range file.Decls {
		if fn, ok := d.(*ast.FuncDecl); ok {
			ev.funcs[fn.Name] = fn
		}
	}
	for _, d := range file.Decls {
		if s, ok := d.(ast.Stmt); ok {
			if _, err := ev.stmt(globals, s); err != nil {
				return ev.out.String(), err
			}
		}
	}
	if main, ok := ev.funcs["main"]; ok {
		if _, err := ev.block(globals, main.Body); err != nil {
			return ev.out.String(), err
		}
	}
	return ev.out.String(), nil
}

func (ev *evaluator) tick() error {
	ev.steps--
	if ev.steps < 0 {
		return errStepLimit
	}
	return nil
}

func (ev *evaluator) block(f *frame, b *ast.Block) (flow, error) {
	for _, s := range b.Stmts {
		fl, err := ev.stmt(f, s)
		if err != nil || fl != flowNext {
			return fl, err
		}
	}
	return flowNext, nil
}

func (ev *evaluator) stmt(f *frame, s ast.Stmt) (flow, error) {
	if err := ev.tick(); err != nil {
		return flowNext, err
	}
	switch s := s.(type) {
	case *ast.Block:
		return ev.block(f, s)
	case *ast.VarDecl:
		if s.Init != nil {
			v, err := ev.expr(f, s.Init)
			if err != nil {
				return flowNext, err
			}
			f.vars[s.Name] = v
		}
	case *ast.AssignStmt:
		id, ok := s.Target.(*ast.Ident)
		if !ok {
			return flowNext, fmt.Errorf("unsupported assignment target %T", s.Target)
		}
		v, err := ev.expr(f, s.Value)
		if err != nil {
			return flowNext, err
		}
		f.vars[id.Name] = v
	case *ast.IfStmt:
		c, err := ev.expr(f, s.Cond)
		if err != nil {
			return flowNext, err
		}
		if c.(bool) {
			return ev.block(f, s.Then)
		}
		if s.Else != nil {
			return ev.block(f, s.Else)
		}
	case *ast.WhileStmt:
		for {
			c, err := ev.expr(f, s.Cond)
			if err != nil {
				return flowNext, err
			}
			if !c.(bool) {
				break
			}
			fl, err := ev.block(f, s.Body)
			if err != nil {
				return flowNext, err
			}
			if fl == flowBreak {
				break
			}
			if fl == flowReturn {
				return fl, nil
			}
		}
	case *ast.ForStmt:
		from, err := ev.expr(f, s.Range.From)
		if err != nil {
			return flowNext, err
		}
		to, err := ev.expr(f, s.Range.To)
		if err != nil {
			return flowNext, err
		}
		f.vars[s.Var] = from
		for {
			k := f.vars[s.Var].(int32)
			if s.Range.Until && k >= to.(int32) || !s.Range.Until && k > to.(int32) {
				break
			}
			fl, err := ev.block(f, s.Body)
			if err != nil {
				return flowNext, err
			}
			if fl == flowBreak {
				break
			}
			if fl == flowReturn {
				return fl, nil
			}
			f.vars[s.Var] = f.vars[s.Var].(int32) + 1
			if err := ev.tick(); err != nil {
				return flowNext, err
			}
		}
	case *ast.ReturnStmt:
		if s.Value != nil {
			v, err := ev.expr(f, s.Value)
			if err != nil {
				return flowNext, err
			}
			f.ret = v
		}
		return flowReturn, nil
	case *ast.BreakStmt:
		return flowBreak, nil
	case *ast.ContinueStmt:
		return flowContinue, nil
	case *ast.ExprStmt:
		_, err := ev.expr(f, s.X)
		return flowNext, err
	default:
		return flowNext, fmt.Errorf("unsupported statement %T", s)
	}
	return flowNext, nil
}

func (ev *evaluator) expr(f *frame, e ast.Expr) (interface{}, error) {
	switch e := e.(type) {
	case *ast.IntLit:
		return int32(e.Value), nil
	case *ast.BoolLit:
		return e.Value, nil
	case *ast.StringLit:
		return e.Value, nil
	case *ast.Ident:
		v, ok := f.vars[e.Name]
		if !ok {
			return nil, fmt.Errorf("undefined variable %s", e.Name)
		}
		return v, nil
	case *ast.UnaryExpr:
		x, err := ev.expr(f, e.X)
		if err != nil {
			return nil, err
		}
		if e.Op == "!" {
			return !x.(bool), nil
		}
		return -x.(int32), nil
	case *ast.BinaryExpr:
		x, err := ev.expr(f, e.X)
		if err != nil {
			return nil, err
		}
		y, err := ev.expr(f, e.Y)
		if err != nil {
			return nil, err
		}
		return binary(e.Op, x, y)
	case *ast.CallExpr:
		args := make([]interface{}, len(e.Args))
		for i, a := range e.Args {
			v, err := ev.expr(f, a)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		return ev.call(e.Func, args)
	}
	return nil, fmt.Errorf("unsupported expression %T", e)
}

func binary(op string, x, y interface{}) (interface{}, error) {
	if xb, ok := x.(bool); ok {
		yb := y.(bool)
		switch op {
		case "&&":
			return xb && yb, nil
		case "||":
			return xb || yb, nil
		case "==":
			return xb == yb, nil
		case "!=":
			return xb != yb, nil
		}
		return nil, fmt.Errorf("bad boolean operator %s", op)
	}
	a, b := x.(int32), y.(int32)
	switch op {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		if b == 0 {
			return nil, errors.New("division by zero")
		}
		return a / b, nil
	case "%":
		if b == 0 {
			return nil, errors.New("division by zero")
		}
		return a % b, nil
	case "<":
		return a < b, nil
	case ">":
		return a > b, nil
	case "<=":
		return a <= b, nil
	case ">=":
		return a >= b, nil
	case "==":
		return a == b, nil
	case "!=":
		return a != b, nil
	}
	return nil, fmt.Errorf("bad integer operator %s", op)
}

func (ev *evaluator) call(name string, args []interface{}) (interface{}, error) {
	switch name {
	case "println", "print":
		for _, a := range args {
			ev.out.WriteString(format(a))
		}
		if name == "println" {
			ev.out.WriteByte('\n')
		}
		return nil, nil
	}
	fn, ok := ev.funcs[name]
	if !ok {
		return nil, fmt.Errorf("undefined function %s", name)
	}
	f := &frame{vars: make(map[string]interface{})}
	for i, p := range fn.Params {
		f.vars[p.Name] = args[i]
	}
	if _, err := ev.block(f, fn.Body); err != nil {
		return nil, err
	}
	return f.ret, nil
}

func format(v interface{}) string {
	switch v := v.(type) {
	case int32:
		return strconv.Itoa(int(v))
	case bool:
		return strconv.FormatBool(v)
	case string:
		return v
	}
	return fmt.Sprint(v)
}
