package jvmgen

import (
	"context"

	"github.com/pkg/errors"

	"github.com/tangzhangming/kforge/internal/ast"
	"github.com/tangzhangming/kforge/internal/tac"
)

// ClassConfig 整个类的编译参数
type ClassConfig struct {
	Name            string      // 类的内部名称
	SourceFile      string      // SourceFile 属性，为空时不写
	Version         JavaVersion // 目标版本
	DebugInfo       bool        // 写出 LineNumberTable 和 LocalVariableTable
	AllowUnverified bool        // 允许没有 StackMapTable 的 Java 7/8 class
}

// MethodSource 一个方法对应的 TAC 片段
type MethodSource struct {
	Name   string
	Params []tac.Var
	Result ast.Type
	Main   bool
	Instrs []tac.Instruction
}

// MethodReport 生成后的方法摘要
type MethodReport struct {
	Name       string
	Descriptor string
	MaxStack   int
	MaxLocals  int
	CodeLength int
	Code       *CodeResult
}

// SplitMethods 把 TAC 程序拆成方法：顶层语句和 main 函数体合并为 main，
// 其他函数各自成为静态方法
func SplitMethods(prog *tac.Program) []MethodSource {
	covered := make([]bool, len(prog.Instrs))
	for _, f := range prog.Funcs {
		for i := f.Start; i < f.End && i < len(covered); i++ {
			covered[i] = true
		}
	}

	main := MethodSource{Name: "main", Result: ast.TypeUnit, Main: true}
	for i, in := range prog.Instrs {
		if !covered[i] {
			main.Instrs = append(main.Instrs, in)
		}
	}

	var out []MethodSource
	for _, f := range prog.Funcs {
		body := prog.Instrs[f.Start:f.End]
		if f.Name == "main" {
			main.Instrs = append(main.Instrs, body...)
			continue
		}
		out = append(out, MethodSource{
			Name:   f.Name,
			Params: f.Params,
			Result: f.Result,
			Instrs: body,
		})
	}
	return append([]MethodSource{main}, out...)
}

// GenerateClass 生成完整的 class：main、每个函数和默认构造函数
func GenerateClass(ctx context.Context, prog *tac.Program, cfg ClassConfig) (*ClassFile, []MethodReport, error) {
	cf, err := NewClassFile(cfg.Name, cfg.Version, ClassOptions{AllowUnverified: cfg.AllowUnverified})
	if err != nil {
		return nil, nil, err
	}

	funcs := make(map[string]tac.Func, len(prog.Funcs))
	for _, f := range prog.Funcs {
		if f.Name != "main" {
			funcs[f.Name] = f
		}
	}

	var reports []MethodReport
	for _, src := range SplitMethods(prog) {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		report, err := generateMethod(cf, src, funcs, prog.Types, cfg)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "method %s", src.Name)
		}
		reports = append(reports, report)
	}

	initCode, err := NewRuntime(cf.Pool).InitMethod()
	if err != nil {
		return nil, nil, errors.Wrap(err, "method <init>")
	}
	cf.AddMethod(AccPublic, "<init>", "()V", initCode)

	if cfg.SourceFile != "" {
		cf.AddAttribute(NewSourceFile(cf.Pool, cfg.SourceFile))
	}
	return cf, reports, nil
}

func generateMethod(cf *ClassFile, src MethodSource, funcs map[string]tac.Func, types map[string]ast.Type, cfg ClassConfig) (MethodReport, error) {
	g, err := NewGenerator(cf.Pool, MethodConfig{
		Class:  cfg.Name,
		Name:   src.Name,
		Params: src.Params,
		Result: src.Result,
		Main:   src.Main,
		Funcs:  funcs,
		Types:  types,
	})
	if err != nil {
		return MethodReport{}, err
	}
	res, err := g.GenerateMethod(src.Instrs)
	if err != nil {
		return MethodReport{}, err
	}

	desc := MainDescriptor
	if !src.Main {
		params := make([]ast.Type, len(src.Params))
		for i, p := range src.Params {
			params[i] = p.Type
		}
		desc = MethodDescriptor(params, src.Result)
	}

	var attrs []Attribute
	if cfg.DebugInfo {
		if len(res.Lines) > 0 {
			attrs = append(attrs, NewLineNumberTable(cf.Pool, res.Lines))
		}
		if len(res.Locals) > 0 {
			attrs = append(attrs, NewLocalVariableTable(cf.Pool, res.Locals))
		}
	}
	if src.Main {
		cf.Methods = append(cf.Methods, NewRuntime(cf.Pool).MainMethod(res, attrs...))
	} else {
		cf.AddMethod(AccPublic|AccStatic, src.Name, desc, NewCodeAttribute(cf.Pool, res.MaxStack, res.MaxLocals, res.Code, attrs...))
	}

	return MethodReport{
		Name:       src.Name,
		Descriptor: desc,
		MaxStack:   res.MaxStack,
		MaxLocals:  res.MaxLocals,
		CodeLength: len(res.Code),
		Code:       res,
	}, nil
}
