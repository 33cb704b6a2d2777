package ast

import (
	"fmt"

	"github.com/segmentio/encoding/json"
	"go.uber.org/multierr"
)

// ============================================================================
// JSON 编解码
// ============================================================================
//
// 每个节点对象用 "kind" 区分种类，例如：
//
//   {"kind": "Binary", "op": "+", "type": "Int",
//    "x": {"kind": "Ident", "name": "a", "type": "Int"},
//    "y": {"kind": "IntLit", "value": 1}}
//
// 字面量的 "value" 是 JSON 标量；Return/Assign 的 "value" 是表达式节点。
//
// ============================================================================

type jsonParam struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type jsonNode struct {
	Kind    string          `json:"kind"`
	Line    int             `json:"line,omitempty"`
	Name    string          `json:"name,omitempty"`
	Type    string          `json:"type,omitempty"`
	Result  string          `json:"result,omitempty"`
	Mutable bool            `json:"mutable,omitempty"`
	Until   bool            `json:"until,omitempty"`
	Op      string          `json:"op,omitempty"`
	Func    string          `json:"func,omitempty"`
	Value   json.RawMessage `json:"value,omitempty"`
	Params  []jsonParam     `json:"params,omitempty"`
	Init    *jsonNode       `json:"init,omitempty"`
	Target  *jsonNode       `json:"target,omitempty"`
	Cond    *jsonNode       `json:"cond,omitempty"`
	X       *jsonNode       `json:"x,omitempty"`
	Y       *jsonNode       `json:"y,omitempty"`
	Index   *jsonNode       `json:"index,omitempty"`
	From    *jsonNode       `json:"from,omitempty"`
	To      *jsonNode       `json:"to,omitempty"`
	Range   *jsonNode       `json:"range,omitempty"`
	Then    *jsonNode       `json:"then,omitempty"`
	Else    *jsonNode       `json:"else,omitempty"`
	Body    *jsonNode       `json:"body,omitempty"`
	Stmts   []*jsonNode     `json:"stmts,omitempty"`
	Args    []*jsonNode     `json:"args,omitempty"`
}

type jsonFile struct {
	Decls []*jsonNode `json:"decls"`
}

// Decode 从 JSON 解码编译单元，所有节点错误会被合并返回
func Decode(data []byte) (*File, error) {
	var jf jsonFile
	if err := json.Unmarshal(data, &jf); err != nil {
		return nil, fmt.Errorf("invalid AST document: %w", err)
	}
	d := &decoder{}
	file := &File{}
	for i, n := range jf.Decls {
		path := fmt.Sprintf("decls[%d]", i)
		if n != nil && n.Kind == "FuncDecl" {
			if fn := d.funcDecl(n, path); fn != nil {
				file.Decls = append(file.Decls, fn)
			}
			continue
		}
		if s := d.stmt(n, path); s != nil {
			file.Decls = append(file.Decls, s)
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	return file, nil
}

type decoder struct {
	err error
}

func (d *decoder) fail(path, format string, args ...interface{}) {
	d.err = multierr.Append(d.err, fmt.Errorf("%s: %s", path, fmt.Sprintf(format, args...)))
}

func (d *decoder) typ(s, path string) Type {
	t, err := ParseType(s)
	if err != nil {
		d.fail(path, "%v", err)
	}
	return t
}

func (d *decoder) funcDecl(n *jsonNode, path string) *FuncDecl {
	fn := &FuncDecl{
		Name:   n.Name,
		Result: d.typ(n.Result, path+".result"),
		Line:   n.Line,
	}
	if fn.Result == TypeUnknown {
		fn.Result = TypeUnit
	}
	for i, p := range n.Params {
		fn.Params = append(fn.Params, &Param{Name: p.Name, Type: d.typ(p.Type, fmt.Sprintf("%s.params[%d]", path, i))})
	}
	fn.Body = d.block(n.Body, path+".body")
	return fn
}

func (d *decoder) block(n *jsonNode, path string) *Block {
	if n == nil {
		return &Block{}
	}
	if n.Kind != "Block" {
		d.fail(path, "expected Block, got %q", n.Kind)
		return &Block{}
	}
	b := &Block{Line: n.Line}
	for i, s := range n.Stmts {
		if st := d.stmt(s, fmt.Sprintf("%s.stmts[%d]", path, i)); st != nil {
			b.Stmts = append(b.Stmts, st)
		}
	}
	return b
}

func (d *decoder) optBlock(n *jsonNode, path string) *Block {
	if n == nil {
		return nil
	}
	return d.block(n, path)
}

func (d *decoder) stmt(n *jsonNode, path string) Stmt {
	if n == nil {
		d.fail(path, "missing statement")
		return nil
	}
	switch n.Kind {
	case "Block":
		return d.block(n, path)
	case "VarDecl":
		s := &VarDecl{Name: n.Name, Type: d.typ(n.Type, path+".type"), Mutable: n.Mutable, Line: n.Line}
		if n.Init != nil {
			s.Init = d.expr(n.Init, path+".init")
		}
		if s.Type == TypeUnknown && s.Init != nil {
			s.Type = s.Init.Type()
		}
		return s
	case "Assign":
		return &AssignStmt{
			Target: d.expr(n.Target, path+".target"),
			Value:  d.exprValue(n.Value, path+".value"),
			Line:   n.Line,
		}
	case "If":
		return &IfStmt{
			Cond: d.expr(n.Cond, path+".cond"),
			Then: d.block(n.Then, path+".then"),
			Else: d.optBlock(n.Else, path+".else"),
			Line: n.Line,
		}
	case "While":
		return &WhileStmt{Cond: d.expr(n.Cond, path+".cond"), Body: d.block(n.Body, path+".body"), Line: n.Line}
	case "For":
		rng, _ := d.expr(n.Range, path+".range").(*RangeExpr)
		if rng == nil {
			d.fail(path+".range", "expected Range")
			return nil
		}
		return &ForStmt{Var: n.Name, Range: rng, Body: d.block(n.Body, path+".body"), Line: n.Line}
	case "Return":
		s := &ReturnStmt{Line: n.Line}
		if len(n.Value) > 0 && string(n.Value) != "null" {
			s.Value = d.exprValue(n.Value, path+".value")
		}
		return s
	case "Break":
		return &BreakStmt{Line: n.Line}
	case "Continue":
		return &ContinueStmt{Line: n.Line}
	case "ExprStmt":
		return &ExprStmt{X: d.expr(n.X, path+".x"), Line: n.Line}
	}
	d.fail(path, "unknown statement kind %q", n.Kind)
	return nil
}

func (d *decoder) exprValue(raw json.RawMessage, path string) Expr {
	var n jsonNode
	if err := json.Unmarshal(raw, &n); err != nil {
		d.fail(path, "%v", err)
		return &IntLit{}
	}
	return d.expr(&n, path)
}

func (d *decoder) expr(n *jsonNode, path string) Expr {
	if n == nil {
		d.fail(path, "missing expression")
		return &IntLit{}
	}
	switch n.Kind {
	case "IntLit":
		e := &IntLit{Line: n.Line}
		d.scalar(n.Value, &e.Value, path)
		return e
	case "DoubleLit":
		e := &DoubleLit{Line: n.Line}
		d.scalar(n.Value, &e.Value, path)
		return e
	case "StringLit":
		e := &StringLit{Line: n.Line}
		d.scalar(n.Value, &e.Value, path)
		return e
	case "BoolLit":
		e := &BoolLit{Line: n.Line}
		d.scalar(n.Value, &e.Value, path)
		return e
	case "Ident":
		return &Ident{Name: n.Name, Typ: d.typ(n.Type, path+".type"), Line: n.Line}
	case "Binary":
		x := d.expr(n.X, path+".x")
		y := d.expr(n.Y, path+".y")
		typ := d.typ(n.Type, path+".type")
		if typ == TypeUnknown {
			typ = BinaryResult(n.Op, x.Type(), y.Type())
		}
		return &BinaryExpr{Op: n.Op, X: x, Y: y, Typ: typ, Line: n.Line}
	case "Unary":
		x := d.expr(n.X, path+".x")
		typ := d.typ(n.Type, path+".type")
		if typ == TypeUnknown {
			typ = x.Type()
			if n.Op == "!" {
				typ = TypeBoolean
			}
		}
		return &UnaryExpr{Op: n.Op, X: x, Typ: typ, Line: n.Line}
	case "Call":
		e := &CallExpr{Func: n.Func, Typ: d.typ(n.Type, path+".type"), Line: n.Line}
		for i, a := range n.Args {
			e.Args = append(e.Args, d.expr(a, fmt.Sprintf("%s.args[%d]", path, i)))
		}
		return e
	case "Index":
		x := d.expr(n.X, path+".x")
		typ := d.typ(n.Type, path+".type")
		if typ == TypeUnknown {
			typ = x.Type().Elem()
		}
		return &IndexExpr{X: x, Index: d.expr(n.Index, path+".index"), Typ: typ, Line: n.Line}
	case "Property":
		return &PropertyExpr{X: d.expr(n.X, path+".x"), Name: n.Name, Line: n.Line}
	case "Range":
		return &RangeExpr{From: d.expr(n.From, path+".from"), To: d.expr(n.To, path+".to"), Until: n.Until, Line: n.Line}
	}
	d.fail(path, "unknown expression kind %q", n.Kind)
	return &IntLit{}
}

func (d *decoder) scalar(raw json.RawMessage, dst interface{}, path string) {
	if len(raw) == 0 {
		d.fail(path, "missing literal value")
		return
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		d.fail(path, "bad literal value: %v", err)
	}
}

// Encode 把编译单元编码为 JSON
func Encode(f *File) ([]byte, error) {
	jf := jsonFile{Decls: make([]*jsonNode, 0, len(f.Decls))}
	for _, decl := range f.Decls {
		n, err := encodeNode(decl)
		if err != nil {
			return nil, err
		}
		jf.Decls = append(jf.Decls, n)
	}
	return json.MarshalIndent(jf, "", "  ")
}

func encodeNode(node Node) (*jsonNode, error) {
	var err error
	enc := func(n Node) *jsonNode {
		if n == nil || err != nil {
			return nil
		}
		var out *jsonNode
		out, err = encodeNode(n)
		return out
	}
	raw := func(v interface{}) json.RawMessage {
		if err != nil {
			return nil
		}
		var b []byte
		b, err = json.Marshal(v)
		return b
	}

	var n *jsonNode
	switch x := node.(type) {
	case *FuncDecl:
		n = &jsonNode{Kind: "FuncDecl", Name: x.Name, Result: x.Result.String(), Line: x.Line}
		for _, p := range x.Params {
			n.Params = append(n.Params, jsonParam{Name: p.Name, Type: p.Type.String()})
		}
		if x.Body != nil {
			n.Body = enc(x.Body)
		}
	case *Block:
		n = &jsonNode{Kind: "Block", Line: x.Line}
		for _, s := range x.Stmts {
			n.Stmts = append(n.Stmts, enc(s))
		}
	case *VarDecl:
		n = &jsonNode{Kind: "VarDecl", Name: x.Name, Type: x.Type.String(), Mutable: x.Mutable, Line: x.Line}
		if x.Init != nil {
			n.Init = enc(x.Init)
		}
	case *AssignStmt:
		n = &jsonNode{Kind: "Assign", Target: enc(x.Target), Line: x.Line}
		n.Value = raw(enc(x.Value))
	case *IfStmt:
		n = &jsonNode{Kind: "If", Cond: enc(x.Cond), Then: enc(x.Then), Line: x.Line}
		if x.Else != nil {
			n.Else = enc(x.Else)
		}
	case *WhileStmt:
		n = &jsonNode{Kind: "While", Cond: enc(x.Cond), Body: enc(x.Body), Line: x.Line}
	case *ForStmt:
		n = &jsonNode{Kind: "For", Name: x.Var, Range: enc(x.Range), Body: enc(x.Body), Line: x.Line}
	case *ReturnStmt:
		n = &jsonNode{Kind: "Return", Line: x.Line}
		if x.Value != nil {
			n.Value = raw(enc(x.Value))
		}
	case *BreakStmt:
		n = &jsonNode{Kind: "Break", Line: x.Line}
	case *ContinueStmt:
		n = &jsonNode{Kind: "Continue", Line: x.Line}
	case *ExprStmt:
		n = &jsonNode{Kind: "ExprStmt", X: enc(x.X), Line: x.Line}
	case *IntLit:
		n = &jsonNode{Kind: "IntLit", Value: raw(x.Value), Line: x.Line}
	case *DoubleLit:
		n = &jsonNode{Kind: "DoubleLit", Value: raw(x.Value), Line: x.Line}
	case *StringLit:
		n = &jsonNode{Kind: "StringLit", Value: raw(x.Value), Line: x.Line}
	case *BoolLit:
		n = &jsonNode{Kind: "BoolLit", Value: raw(x.Value), Line: x.Line}
	case *Ident:
		n = &jsonNode{Kind: "Ident", Name: x.Name, Type: x.Typ.String(), Line: x.Line}
	case *BinaryExpr:
		n = &jsonNode{Kind: "Binary", Op: x.Op, X: enc(x.X), Y: enc(x.Y), Type: x.Typ.String(), Line: x.Line}
	case *UnaryExpr:
		n = &jsonNode{Kind: "Unary", Op: x.Op, X: enc(x.X), Type: x.Typ.String(), Line: x.Line}
	case *CallExpr:
		n = &jsonNode{Kind: "Call", Func: x.Func, Type: x.Typ.String(), Line: x.Line}
		for _, a := range x.Args {
			n.Args = append(n.Args, enc(a))
		}
	case *IndexExpr:
		n = &jsonNode{Kind: "Index", X: enc(x.X), Index: enc(x.Index), Type: x.Typ.String(), Line: x.Line}
	case *PropertyExpr:
		n = &jsonNode{Kind: "Property", X: enc(x.X), Name: x.Name, Line: x.Line}
	case *RangeExpr:
		n = &jsonNode{Kind: "Range", From: enc(x.From), To: enc(x.To), Until: x.Until, Line: x.Line}
	default:
		return nil, fmt.Errorf("cannot encode node %T", node)
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}
