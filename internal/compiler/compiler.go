// Package compiler 把 TAC 程序编译为 JVM class 文件，并串联从 AST 开始的各个阶段
package compiler

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	kerrors "github.com/tangzhangming/kforge/internal/errors"
	"github.com/tangzhangming/kforge/internal/jvmgen"
	"github.com/tangzhangming/kforge/internal/tac"
)

// Options 编译参数
type Options struct {
	ClassName       string // 类名，默认 Main
	SourceFile      string // SourceFile 属性，为空时不写
	JavaVersion     int    // 6、7 或 8，默认 6
	DebugInfo       bool   // 写出 LineNumberTable 和 LocalVariableTable
	AllowUnverified bool   // 允许不带 StackMapTable 的 Java 7/8 class
	Logger          *zap.Logger
}

// Result 编译结果，失败信息不会以 panic 的形式越过 API
type Result struct {
	Success bool
	Errors  []string
	Path    string // CompileToFile 写出的文件
	Size    int    // class 字节数

	Details []*kerrors.CompileError
}

// JVMCompiler TAC 到 class 文件的编译器
type JVMCompiler struct {
	opts    Options
	version jvmgen.JavaVersion
	log     *zap.Logger
}

// New 创建编译器，目标版本无效时返回错误
func New(opts Options) (*JVMCompiler, error) {
	if opts.ClassName == "" {
		opts.ClassName = "Main"
	}
	if opts.JavaVersion == 0 {
		opts.JavaVersion = 6
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if strings.ContainsAny(opts.ClassName, ". ;[") {
		return nil, errors.Errorf("invalid class name %q", opts.ClassName)
	}

	version, err := jvmgen.ParseJavaVersion(opts.JavaVersion)
	if err != nil {
		return nil, err
	}
	if version.NeedsStackMap() && !opts.AllowUnverified {
		return nil, errors.Wrapf(jvmgen.ErrStackMapRequired, "%s", version)
	}

	return &JVMCompiler{
		opts:    opts,
		version: version,
		log:     opts.Logger.Named("jvm"),
	}, nil
}

// Options 返回补全默认值后的参数
func (c *JVMCompiler) Options() Options { return c.opts }

// Compile 生成 class 文件字节
func (c *JVMCompiler) Compile(prog *tac.Program) ([]byte, error) {
	return c.CompileContext(context.Background(), prog)
}

// CompileContext 同 Compile，ctx 取消时在方法之间停止
func (c *JVMCompiler) CompileContext(ctx context.Context, prog *tac.Program) ([]byte, error) {
	cf, _, err := c.Generate(ctx, prog)
	if err != nil {
		return nil, err
	}
	data, err := cf.ToBytes()
	if err != nil {
		return nil, errors.Wrap(err, "serialize class")
	}
	c.log.Debug("class written",
		zap.String("class", c.opts.ClassName),
		zap.Int("size", len(data)))
	return data, nil
}

// Generate 生成并校验每个方法。任何方法的栈校验失败都会使整个编译失败，
// 所有失败的方法一起报告
func (c *JVMCompiler) Generate(ctx context.Context, prog *tac.Program) (cf *jvmgen.ClassFile, reports []jvmgen.MethodReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			cf, reports = nil, nil
			err = errors.Errorf("internal compiler error: %v", r)
		}
	}()

	if prog == nil {
		return nil, nil, errors.New("nil program")
	}

	cf, reports, err = jvmgen.GenerateClass(ctx, prog, jvmgen.ClassConfig{
		Name:            c.opts.ClassName,
		SourceFile:      c.opts.SourceFile,
		Version:         c.version,
		DebugInfo:       c.opts.DebugInfo,
		AllowUnverified: c.opts.AllowUnverified,
	})
	if err != nil {
		return nil, nil, err
	}

	var verr error
	for _, r := range reports {
		c.log.Debug("method generated",
			zap.String("class", c.opts.ClassName),
			zap.String("method", r.Name),
			zap.String("descriptor", r.Descriptor),
			zap.Int("max_stack", r.MaxStack),
			zap.Int("max_locals", r.MaxLocals),
			zap.Int("code_len", r.CodeLength))
		verr = multierr.Append(verr, verify(cf.Pool, r))
	}
	if verr != nil {
		return nil, nil, verr
	}
	return cf, reports, nil
}

// verify 用数据流重放检查方法的栈深度，声明的 max_stack 必须覆盖真实深度
func verify(pool *jvmgen.ConstantPool, r jvmgen.MethodReport) error {
	check := jvmgen.CheckCode(r.Code.Code, pool)
	if !check.IsValid {
		return errors.Wrapf(jvmgen.ErrStackMismatch, "method %s: %s", r.Name, strings.Join(check.Errors, "; "))
	}
	if check.MaxDepth != r.MaxStack {
		return errors.Wrapf(jvmgen.ErrStackMismatch, "method %s: verified depth %d, max_stack %d",
			r.Name, check.MaxDepth, r.MaxStack)
	}
	return nil
}

// CompileToFile 编译并写出 outputPath。先写临时文件再改名，失败时不留下半个 class 文件
func (c *JVMCompiler) CompileToFile(fs afero.Fs, prog *tac.Program, outputPath string) Result {
	data, err := c.Compile(prog)
	if err != nil {
		return Failed(err)
	}
	if err := WriteClass(fs, outputPath, data); err != nil {
		return Failed(err)
	}
	c.log.Info("wrote class", zap.String("path", outputPath), zap.Int("size", len(data)))
	return Result{Success: true, Path: outputPath, Size: len(data)}
}

// WriteClass 原子地写出 class 文件
func WriteClass(fs afero.Fs, path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return kerrors.Wrap(kerrors.IO0001, err)
		}
	}
	tmp := path + ".tmp"
	if err := afero.WriteFile(fs, tmp, data, 0o644); err != nil {
		_ = fs.Remove(tmp)
		return kerrors.Wrap(kerrors.IO0001, err)
	}
	if err := fs.Rename(tmp, path); err != nil {
		_ = fs.Remove(tmp)
		return kerrors.Wrap(kerrors.IO0001, err)
	}
	return nil
}

// Failed 把错误展开为失败的 Result，multierr 合并的错误逐个列出
func Failed(err error) Result {
	res := Result{}
	for _, e := range multierr.Errors(err) {
		ce := kerrors.FromError(e)
		res.Details = append(res.Details, ce)
		res.Errors = append(res.Errors, fmt.Sprintf("[%s] %s", ce.Code, ce.Message))
	}
	return res
}

// Err 把失败的 Result 合并回一个 error，成功时为 nil
func (r Result) Err() error {
	var err error
	for _, d := range r.Details {
		err = multierr.Append(err, d)
	}
	return err
}
