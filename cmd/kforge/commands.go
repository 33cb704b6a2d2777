package main

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/tangzhangming/kforge/internal/bytecode"
	"github.com/tangzhangming/kforge/internal/compiler"
	"github.com/tangzhangming/kforge/internal/config"
	kerrors "github.com/tangzhangming/kforge/internal/errors"
	"github.com/tangzhangming/kforge/internal/i18n"
	"github.com/tangzhangming/kforge/internal/jvmgen"
	"github.com/tangzhangming/kforge/internal/vm"
)

// ============================================================================
// kforge tac
// ============================================================================

func newTACCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tac <file.json>",
		Args:  cobra.ExactArgs(1),
		Short: i18n.T("cli.cmd_tac"),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, file, err := a.readProgram(args[0])
			if err != nil {
				return err
			}
			p, err := a.pipeline(args[0], nil)
			if err != nil {
				return a.report(args[0], err)
			}
			res := p.CompileTAC(file)
			if !res.Success {
				return a.reportDetails(args[0], res.Details)
			}

			if asJSON {
				data, err := json.MarshalIndent(res.Program, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, string(data))
				return nil
			}
			fmt.Fprint(a.out, res.Program.Text())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, i18n.T("cli.opt_json"))
	return cmd
}

// ============================================================================
// kforge asm
// ============================================================================

func newAsmCmd(a *app) *cobra.Command {
	var noComments, check bool
	cmd := &cobra.Command{
		Use:   "asm <file.json>",
		Args:  cobra.ExactArgs(1),
		Short: i18n.T("cli.cmd_asm"),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, file, err := a.readProgram(args[0])
			if err != nil {
				return err
			}
			p, err := a.pipeline(args[0], nil)
			if err != nil {
				return a.report(args[0], err)
			}
			t := p.CompileTAC(file)
			if !t.Success {
				return a.reportDetails(args[0], t.Details)
			}
			res := p.CompileBytecode(t.Program)
			if !res.Success {
				return a.reportDetails(args[0], res.Details)
			}

			comments := a.cfg.Output.Comments && !noComments
			fmt.Fprintln(a.out, bytecode.Format(res.Instrs, bytecode.FormatOptions{Comments: comments}))
			if !check {
				return nil
			}
			if res.Check.IsValid {
				fmt.Fprintln(a.out, i18n.T("cli.stack_ok", res.Check.MaxDepth))
				return nil
			}
			fmt.Fprintln(a.out, i18n.T("cli.stack_bad"))
			for _, e := range res.Check.Errors {
				fmt.Fprintln(a.out, ";   "+e)
			}
			return errReported
		},
	}
	cmd.Flags().BoolVar(&noComments, "no-comments", false, i18n.T("cli.opt_no_comments"))
	cmd.Flags().BoolVar(&check, "check", false, i18n.T("cli.opt_check"))
	return cmd
}

// ============================================================================
// kforge build
// ============================================================================

// buildFlags build 和 run 共用的编译参数
type buildFlags struct {
	class       string
	java        int
	debug       bool
	output      string
	noCache     bool
	diagnostics string
}

func (f *buildFlags) register(flags *pflag.FlagSet) {
	flags.StringVar(&f.class, "class", "", i18n.T("cli.opt_class"))
	flags.IntVar(&f.java, "java", 0, i18n.T("cli.opt_java"))
	flags.BoolVarP(&f.debug, "debug", "g", false, i18n.T("cli.opt_debug"))
}

func newBuildCmd(a *app) *cobra.Command {
	bf := &buildFlags{}
	cmd := &cobra.Command{
		Use:   "build <file.json>",
		Args:  cobra.ExactArgs(1),
		Short: i18n.T("cli.cmd_build"),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			if bf.diagnostics != diagText && bf.diagnostics != diagJSON {
				return errors.Errorf("unknown diagnostics format %q (want text or json)", bf.diagnostics)
			}
			fail := func(errs ...error) error { return a.diagnose(input, bf.diagnostics, errs...) }

			data, file, err := a.readProgram(input)
			if err != nil {
				return err
			}
			p, err := a.pipeline(input, bf)
			if err != nil {
				return fail(err)
			}
			opts := p.Compiler().Options()

			// -o 相对当前目录，配置中的 dir 相对配置文件或输入文件
			dir := bf.output
			if dir == "" {
				dir = a.cfg.Output.Dir
				if !filepath.IsAbs(dir) {
					base := a.cfgDir
					if base == "" {
						base = filepath.Dir(input)
					}
					dir = filepath.Join(base, dir)
				}
			}
			path := filepath.Join(dir, opts.ClassName+".class")

			var cache *compiler.Cache
			key := compiler.Key(data, opts)
			if a.cfg.Output.Cache && !bf.noCache {
				if cache, err = compiler.NewCache(a.fs, filepath.Join(dir, compiler.DefaultCacheDir)); err != nil {
					a.log.Warn("build cache disabled", zap.Error(err))
				}
			}
			if cache != nil {
				if class, ok := cache.Get(key); ok {
					if existing, err := afero.ReadFile(a.fs, path); err == nil && bytes.Equal(existing, class) {
						a.success("cli.cached", path, len(class))
						return nil
					}
					if err := compiler.WriteClass(a.fs, path, class); err != nil {
						return fail(err)
					}
					a.success("cli.built", path, len(class))
					return nil
				}
			}

			res := p.CompileContext(cmd.Context(), file)
			if !res.Success {
				errs := make([]error, len(res.Details))
				for i, d := range res.Details {
					errs[i] = d
				}
				return fail(errs...)
			}
			if err := compiler.WriteClass(a.fs, path, res.Class); err != nil {
				return fail(err)
			}
			if cache != nil {
				if err := cache.Put(key, input, res.Class); err != nil {
					a.log.Warn("build cache not updated", zap.Error(err))
				}
			}
			a.success("cli.built", path, res.Size)
			return nil
		},
	}
	bf.register(cmd.Flags())
	cmd.Flags().StringVarP(&bf.output, "output", "o", "", i18n.T("cli.opt_output"))
	cmd.Flags().BoolVar(&bf.noCache, "no-cache", false, i18n.T("cli.opt_no_cache"))
	cmd.Flags().StringVar(&bf.diagnostics, "diagnostics", diagText, i18n.T("cli.opt_diagnostics"))
	return cmd
}

// pipeline 用配置和命令行参数创建流水线，命令行优先
func (a *app) pipeline(input string, bf *buildFlags) (*compiler.Pipeline, error) {
	jc := a.cfg.JVM
	opts := compiler.Options{
		ClassName:       jc.ClassName,
		SourceFile:      jc.SourceFile,
		JavaVersion:     jc.JavaVersion,
		DebugInfo:       jc.DebugInfo,
		AllowUnverified: jc.AllowUnverified,
		Logger:          a.log,
	}
	if opts.SourceFile == "" {
		opts.SourceFile = sourceName(input)
	}
	if bf != nil {
		if bf.class != "" {
			opts.ClassName = bf.class
		}
		if bf.java != 0 {
			opts.JavaVersion = bf.java
		}
		opts.DebugInfo = opts.DebugInfo || bf.debug
	}
	if !config.ValidClassName(opts.ClassName) {
		return nil, errors.Wrapf(config.ErrInvalid, "class name %q", opts.ClassName)
	}
	return compiler.NewPipeline(opts)
}

// ============================================================================
// kforge javap
// ============================================================================

func newJavapCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "javap <file.class>",
		Args:  cobra.ExactArgs(1),
		Short: i18n.T("cli.cmd_javap"),
		RunE: func(cmd *cobra.Command, args []string) error {
			cf, err := a.readClass(args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(a.out, jvmgen.Disassemble(cf))
			return nil
		},
	}
}

func (a *app) readClass(path string) (*jvmgen.ClassFile, error) {
	data, err := afero.ReadFile(a.fs, path)
	if err != nil {
		return nil, errors.New(i18n.T("cli.read_failed", path, err))
	}
	cf, err := jvmgen.Parse(data)
	if err != nil {
		return nil, a.report(path, err)
	}
	return cf, nil
}

// ============================================================================
// kforge run
// ============================================================================

func newRunCmd(a *app) *cobra.Command {
	bf := &buildFlags{}
	var maxSteps int
	var stats bool
	cmd := &cobra.Command{
		Use:   "run <file.json|file.class>",
		Args:  cobra.ExactArgs(1),
		Short: i18n.T("cli.cmd_run"),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			cf, err := a.loadRunnable(cmd.Context(), input, bf)
			if err != nil {
				return err
			}

			opts := vm.Options{
				Out:      a.out,
				MaxSteps: a.cfg.Run.MaxSteps,
				MaxDepth: a.cfg.Run.MaxDepth,
				Logger:   a.log,
				Trace:    a.verbose,
			}
			if cmd.Flags().Changed("max-steps") {
				opts.MaxSteps = maxSteps
			}
			st, err := vm.Run(cf, opts)
			if stats {
				fmt.Fprintln(a.errOut, i18n.T("cli.stats", st.InstructionsExecuted, st.FunctionCalls,
					st.NativeCalls, st.Allocations, st.MaxCallDepth))
			}
			if err == nil {
				return nil
			}

			var exc *vm.Exception
			if errors.As(err, &exc) {
				f := kerrors.NewFormatter()
				f.Colors = useColor(a.errOut)
				fmt.Fprint(a.errOut, f.FormatException(exc))
				return errReported
			}
			return a.report(input, err)
		},
	}
	bf.register(cmd.Flags())
	cmd.Flags().IntVar(&maxSteps, "max-steps", vm.DefaultMaxSteps, i18n.T("cli.opt_max_steps"))
	cmd.Flags().BoolVar(&stats, "stats", false, i18n.T("cli.opt_stats"))
	return cmd
}

// loadRunnable .class 文件直接解析，其他输入先编译
func (a *app) loadRunnable(ctx context.Context, input string, bf *buildFlags) (*jvmgen.ClassFile, error) {
	if strings.EqualFold(filepath.Ext(input), ".class") {
		return a.readClass(input)
	}
	_, file, err := a.readProgram(input)
	if err != nil {
		return nil, err
	}
	p, err := a.pipeline(input, bf)
	if err != nil {
		return nil, a.report(input, err)
	}
	res := p.CompileContext(ctx, file)
	if !res.Success {
		return nil, a.reportDetails(input, res.Details)
	}
	return jvmgen.Parse(res.Class)
}

// ============================================================================
// kforge init / version
// ============================================================================

func newInitCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init [dir]",
		Args:  cobra.MaximumNArgs(1),
		Short: i18n.T("cli.cmd_init"),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			abs, err := filepath.Abs(dir)
			if err != nil {
				return err
			}
			path := filepath.Join(dir, config.ConfigFileName)
			if exists, _ := afero.Exists(a.fs, path); exists && !force {
				return errors.New(i18n.T("cli.config_exists", path))
			}
			if err := a.fs.MkdirAll(dir, 0o755); err != nil {
				return err
			}
			if err := config.GenerateDefault(abs).Save(a.fs, path); err != nil {
				return err
			}
			a.success("cli.config_written", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, i18n.T("cli.opt_force"))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Args:  cobra.NoArgs,
		Short: i18n.T("cli.cmd_version"),
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, i18n.T("cli.version", Version))
			fmt.Fprintln(out, i18n.T("cli.version_desc", jvmgen.Java6))
			fmt.Fprintf(out, "go: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
