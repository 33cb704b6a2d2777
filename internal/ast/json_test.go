package ast

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sumProgram = `{
  "decls": [
    {"kind": "FuncDecl", "name": "suma", "result": "Int", "line": 1,
     "params": [{"name": "a", "type": "Int"}, {"name": "b", "type": "Int"}],
     "body": {"kind": "Block", "stmts": [
       {"kind": "Return", "line": 2, "value": {"kind": "Binary", "op": "+",
         "x": {"kind": "Ident", "name": "a", "type": "Int"},
         "y": {"kind": "Ident", "name": "b", "type": "Int"}}}
     ]}},
    {"kind": "FuncDecl", "name": "main", "line": 4,
     "body": {"kind": "Block", "stmts": [
       {"kind": "VarDecl", "name": "x", "type": "Int", "line": 5, "init": {"kind": "IntLit", "value": 10}},
       {"kind": "ExprStmt", "line": 6, "x": {"kind": "Call", "func": "println", "type": "Unit",
         "args": [{"kind": "Call", "func": "suma", "type": "Int",
           "args": [{"kind": "Ident", "name": "x", "type": "Int"}, {"kind": "DoubleLit", "value": 2.5}]}]}}
     ]}}
  ]
}`

func TestDecodeProgram(t *testing.T) {
	file, err := Decode([]byte(sumProgram))
	require.NoError(t, err)
	require.Len(t, file.Decls, 2)

	suma, ok := file.Decls[0].(*FuncDecl)
	require.True(t, ok)
	assert.Equal(t, "fun suma(a: Int, b: Int): Int", suma.String())
	ret := suma.Body.Stmts[0].(*ReturnStmt)
	bin := ret.Value.(*BinaryExpr)
	assert.Equal(t, TypeInt, bin.Type(), "missing type is inferred")
	assert.Equal(t, 2, ret.Line)

	main := file.Decls[1].(*FuncDecl)
	assert.Equal(t, TypeUnit, main.Result)
	decl := main.Body.Stmts[0].(*VarDecl)
	assert.Equal(t, int64(10), decl.Init.(*IntLit).Value)
	call := main.Body.Stmts[1].(*ExprStmt).X.(*CallExpr)
	assert.Equal(t, "println(suma(x, 2.5))", call.String())
}

func TestDecodeCollectsAllErrors(t *testing.T) {
	doc := `{"decls": [
	  {"kind": "Loop"},
	  {"kind": "VarDecl", "name": "x", "type": "Long", "init": {"kind": "Lambda"}}
	]}`
	_, err := Decode([]byte(doc))
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `decls[0]: unknown statement kind "Loop"`)
	assert.Contains(t, msg, `decls[1].type: unknown type "Long"`)
	assert.Contains(t, msg, `decls[1].init: unknown expression kind "Lambda"`)
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	_, err := Decode([]byte(`{"decls": [`))
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "invalid AST document"))
}

func TestEncodeDecodeKeepsStructure(t *testing.T) {
	file := NewFile(
		NewVar("arr", TypeIntArray, NewCall("intArrayOf", TypeIntArray, NewInt(1), NewInt(2))),
		NewMain(
			NewFor("i", NewRange(NewInt(0), NewProperty(NewIdent("arr", TypeIntArray), "size"), true), NewBlock(
				NewIf(NewBinary("==", NewIdent("i", TypeInt), NewInt(1)), NewBlock(&BreakStmt{}), nil),
				NewAssign(NewIndex(NewIdent("arr", TypeIntArray), NewIdent("i", TypeInt)), NewUnary("-", NewIdent("i", TypeInt))),
			)),
			NewWhile(NewUnary("!", NewBool(false)), NewBlock(&ContinueStmt{})),
			NewExprStmt(NewCall("println", TypeUnit, NewString("fin"))),
		),
	)

	data, err := Encode(file)
	require.NoError(t, err)
	back, err := Decode(data)
	require.NoError(t, err)

	again, err := Encode(back)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))
}

func TestBinaryResult(t *testing.T) {
	tests := []struct {
		op   string
		x, y Type
		want Type
	}{
		{"+", TypeInt, TypeInt, TypeInt},
		{"+", TypeInt, TypeDouble, TypeDouble},
		{"+", TypeString, TypeInt, TypeString},
		{"-", TypeDouble, TypeInt, TypeDouble},
		{"<", TypeDouble, TypeDouble, TypeBoolean},
		{"&&", TypeBoolean, TypeBoolean, TypeBoolean},
	}
	for _, tt := range tests {
		if got := BinaryResult(tt.op, tt.x, tt.y); got != tt.want {
			t.Errorf("BinaryResult(%q, %s, %s) = %s, want %s", tt.op, tt.x, tt.y, got, tt.want)
		}
	}
}
