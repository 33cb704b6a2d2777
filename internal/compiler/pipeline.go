package compiler

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tangzhangming/kforge/internal/ast"
	"github.com/tangzhangming/kforge/internal/bytecode"
	"github.com/tangzhangming/kforge/internal/jvmgen"
	"github.com/tangzhangming/kforge/internal/tac"
)

// ============================================================================
// 编译流水线: AST -> TAC -> (栈式字节码 | class 文件)
// ============================================================================

// Pipeline 串联各个阶段，每个阶段返回自己的结果和 Result
type Pipeline struct {
	jvm *JVMCompiler
	log *zap.Logger
}

// TACResult TAC 阶段结果
type TACResult struct {
	Result
	Program *tac.Program
}

// BytecodeResult 栈式字节码阶段结果
type BytecodeResult struct {
	Result
	Instrs []bytecode.Instruction
	Check  bytecode.StackCheckResult
}

// JVMResult class 文件阶段结果
type JVMResult struct {
	Result
	Class   []byte
	Methods []jvmgen.MethodReport
}

// NewPipeline 创建流水线
func NewPipeline(opts Options) (*Pipeline, error) {
	jvm, err := New(opts)
	if err != nil {
		return nil, err
	}
	return &Pipeline{jvm: jvm, log: jvm.opts.Logger.Named("pipeline")}, nil
}

// Compiler 流水线使用的 JVM 编译器
func (p *Pipeline) Compiler() *JVMCompiler { return p.jvm }

// CompileTAC 把 AST 降低为 TAC
func (p *Pipeline) CompileTAC(file *ast.File) TACResult {
	return p.compileTAC(context.Background(), file)
}

func (p *Pipeline) compileTAC(ctx context.Context, file *ast.File) (res TACResult) {
	defer recoverInto(&res.Result)

	if file == nil {
		res.Result = Failed(errors.New("nil file"))
		return res
	}
	prog, err := tac.GenerateContext(ctx, file)
	if err != nil {
		res.Result = Failed(errors.Wrap(err, "tac"))
		return res
	}
	p.log.Debug("tac generated",
		zap.Int("instructions", len(prog.Instrs)),
		zap.Int("functions", len(prog.Funcs)))
	res.Program = prog
	res.Success = true
	return res
}

// CompileBytecode 生成教学用的栈式字节码并检查栈深度。
// 这条路径与 class 文件无关，检查失败只记录在 Check 中
func (p *Pipeline) CompileBytecode(prog *tac.Program) (res BytecodeResult) {
	defer recoverInto(&res.Result)

	instrs, err := bytecode.Generate(prog.Instrs)
	if err != nil {
		res.Result = Failed(errors.Wrap(err, "bytecode"))
		return res
	}
	res.Instrs = instrs
	res.Check = bytecode.CheckStack(instrs)
	res.Success = true
	p.log.Debug("bytecode generated",
		zap.Int("instructions", len(instrs)),
		zap.Int("max_depth", res.Check.MaxDepth),
		zap.Bool("valid", res.Check.IsValid))
	return res
}

// CompileJVM 生成 class 文件
func (p *Pipeline) CompileJVM(prog *tac.Program) JVMResult {
	return p.compileJVM(context.Background(), prog)
}

func (p *Pipeline) compileJVM(ctx context.Context, prog *tac.Program) (res JVMResult) {
	defer recoverInto(&res.Result)

	cf, reports, err := p.jvm.Generate(ctx, prog)
	if err != nil {
		res.Result = Failed(err)
		return res
	}
	data, err := cf.ToBytes()
	if err != nil {
		res.Result = Failed(errors.Wrap(err, "serialize class"))
		return res
	}
	res.Class = data
	res.Methods = reports
	res.Size = len(data)
	res.Success = true
	return res
}

// CompileContext 从 AST 一直编译到 class 文件
func (p *Pipeline) CompileContext(ctx context.Context, file *ast.File) JVMResult {
	t := p.compileTAC(ctx, file)
	if !t.Success {
		return JVMResult{Result: t.Result}
	}
	return p.compileJVM(ctx, t.Program)
}

func recoverInto(res *Result) {
	if r := recover(); r != nil {
		*res = Failed(errors.Errorf("internal compiler error: %v", r))
	}
}
