package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tangzhangming/kforge/internal/ast"
	"github.com/tangzhangming/kforge/internal/config"
	kerrors "github.com/tangzhangming/kforge/internal/errors"
	"github.com/tangzhangming/kforge/internal/i18n"
	"github.com/tangzhangming/kforge/internal/logger"
)

// errReported 错误已经打印过，main 只需要设置退出码
var errReported = errors.New("errors reported")

// app 所有子命令共享的状态
type app struct {
	fs     afero.Fs
	out    io.Writer
	errOut io.Writer

	configPath string
	lang       string
	verbose    bool

	cfg      *config.Config
	cfgDir   string // 配置文件所在目录，没有配置文件时为空
	log      *zap.Logger
	closeLog func()
}

func newRootCmd(fs afero.Fs, out, errOut io.Writer) *cobra.Command {
	a := &app{fs: fs, out: out, errOut: errOut, closeLog: func() {}}

	cmd := &cobra.Command{
		Use:           "kforge",
		Short:         i18n.T("cli.short"),
		Long:          i18n.T("cli.long"),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(args)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.closeLog()
		},
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	flags := cmd.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", i18n.T("cli.opt_config"))
	flags.StringVar(&a.lang, "lang", "", i18n.T("cli.opt_lang"))
	flags.BoolVarP(&a.verbose, "verbose", "v", false, i18n.T("cli.opt_verbose"))

	cmd.AddCommand(
		newTACCmd(a),
		newAsmCmd(a),
		newBuildCmd(a),
		newJavapCmd(a),
		newRunCmd(a),
		newInitCmd(a),
		newVersionCmd(),
	)
	return cmd
}

// setup 确定语言，加载配置，创建日志记录器
func (a *app) setup(args []string) error {
	if a.lang != "" {
		i18n.SetLanguageFromString(a.lang)
	}

	var err error
	path := a.configPath
	switch {
	case path != "":
		a.cfg, err = config.LoadConfig(a.fs, path)
	case len(args) > 0:
		a.cfg, path, err = config.Load(a.fs, args[0])
	default:
		a.cfg, path, err = config.Load(a.fs, ".")
	}
	if err != nil {
		return err
	}
	if path != "" {
		a.cfgDir = filepath.Dir(path)
	}

	level := a.cfg.Log.Level
	if a.verbose {
		level = "debug"
	}
	a.log, a.closeLog, err = logger.New(logger.Options{Level: level, File: a.cfg.Log.File, Err: a.errOut, Fs: a.fs})
	return err
}

// readProgram 读取并解码 JSON 形式的程序
func (a *app) readProgram(path string) ([]byte, *ast.File, error) {
	data, err := afero.ReadFile(a.fs, path)
	if err != nil {
		return nil, nil, errors.New(i18n.T("cli.read_failed", path, err))
	}
	file, err := ast.Decode(data)
	if err != nil {
		return nil, nil, a.report(path, err)
	}
	return data, file, nil
}

// report 打印诊断并返回 errReported
func (a *app) report(path string, errs ...error) error {
	r := kerrors.NewReporter(a.errOut)
	if !useColor(a.errOut) {
		r.SetFormatter(&kerrors.Formatter{ShowHints: true})
	}
	for _, err := range errs {
		r.ReportError(err, path)
	}
	r.Summary()
	return errReported
}

// reportDetails 打印编译结果中的诊断
func (a *app) reportDetails(path string, details []*kerrors.CompileError) error {
	errs := make([]error, len(details))
	for i, d := range details {
		errs[i] = d
	}
	return a.report(path, errs...)
}

// 诊断输出格式
const (
	diagText = "text"
	diagJSON = "json"
)

// diagnose 按格式输出错误：text 交给 report，json 在标准输出写一份
// textDocument/publishDiagnostics 参数，供编辑器插件读取
func (a *app) diagnose(path, format string, errs ...error) error {
	if format != diagJSON {
		return a.report(path, errs...)
	}
	details := make([]*kerrors.CompileError, len(errs))
	for i, err := range errs {
		details[i] = kerrors.FromError(err).WithFile(path)
	}
	data, err := json.Marshal(kerrors.PublishParams(path, details))
	if err != nil {
		return errors.Wrap(err, "encode diagnostics")
	}
	fmt.Fprintln(a.out, string(data))
	return errReported
}

// success 打印绿色的成功信息
func (a *app) success(format string, args ...interface{}) {
	c := color.New(color.FgGreen)
	if useColor(a.out) {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	c.Fprintln(a.out, i18n.T(format, args...))
}

// useColor 只有真实终端才输出颜色
func useColor(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && !color.NoColor && (f == os.Stdout || f == os.Stderr)
}

// sourceName 输入文件对应的 SourceFile 属性：prog.json -> prog.kt
func sourceName(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))] + ".kt"
}
