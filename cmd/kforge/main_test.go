package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/segmentio/encoding/json"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/protocol"

	"github.com/tangzhangming/kforge/internal/ast"
	"github.com/tangzhangming/kforge/internal/config"
	kerrors "github.com/tangzhangming/kforge/internal/errors"
	"github.com/tangzhangming/kforge/internal/i18n"
	"github.com/tangzhangming/kforge/internal/jvmgen"
)

// execute 在内存文件系统上运行 kforge
func execute(t *testing.T, fs afero.Fs, args ...string) (string, string, error) {
	t.Helper()
	i18n.SetLanguage(i18n.LangEnglish)
	var out, errOut bytes.Buffer
	cmd := newRootCmd(fs, &out, &errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// writeProgram 把程序编码为 JSON 写到 path
func writeProgram(t *testing.T, fs afero.Fs, path string, decls ...ast.Node) {
	t.Helper()
	data, err := ast.Encode(ast.NewFile(decls...))
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, path, data, 0o644))
}

func countdown() []ast.Node {
	n := ast.NewIdent("n", ast.TypeInt)
	return []ast.Node{ast.NewMain(
		ast.NewVar("n", ast.TypeInt, ast.NewInt(3)),
		ast.NewWhile(ast.NewBinary(">", n, ast.NewInt(0)), ast.NewBlock(
			ast.NewExprStmt(ast.NewCall("println", ast.TypeUnit, n)),
			ast.NewAssign(n, ast.NewBinary("-", n, ast.NewInt(1))),
		)),
	)}
}

func TestScanLang(t *testing.T) {
	assert.Equal(t, "zh", scanLang([]string{"build", "--lang", "zh", "x.json"}))
	assert.Equal(t, "en", scanLang([]string{"--lang=en"}))
	assert.Equal(t, "", scanLang([]string{"run", "--lang"}))
}

func TestTACCommand(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeProgram(t, fs, "/w/count.json", countdown()...)

	out, _, err := execute(t, fs, "tac", "/w/count.json")
	require.NoError(t, err)
	assert.Contains(t, out, "n = 3\n")
	assert.Contains(t, out, "IF_FALSE")

	out, _, err = execute(t, fs, "tac", "--json", "/w/count.json")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "{"))
}

func TestAsmCommand(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeProgram(t, fs, "/w/count.json", countdown()...)

	out, _, err := execute(t, fs, "asm", "--check", "/w/count.json")
	require.NoError(t, err)
	assert.Contains(t, out, "HALT")
	assert.Contains(t, out, "; stack check: max depth")

	out, _, err = execute(t, fs, "asm", "--no-comments", "/w/count.json")
	require.NoError(t, err)
	assert.NotContains(t, out, "stack check")
}

func TestBuildRunAndJavap(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeProgram(t, fs, "/w/count.json", countdown()...)

	out, _, err := execute(t, fs, "build", "--class", "Count", "-g", "/w/count.json")
	require.NoError(t, err)
	assert.Contains(t, out, "Generated JVM class: /w/Count.class")

	data, err := afero.ReadFile(fs, "/w/Count.class")
	require.NoError(t, err)
	cf, err := jvmgen.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "Count", cf.Name())
	assert.Equal(t, "count.kt", cf.SourceFile())

	// 第二次构建命中缓存
	out, _, err = execute(t, fs, "build", "--class", "Count", "-g", "/w/count.json")
	require.NoError(t, err)
	assert.Contains(t, out, "Up to date: /w/Count.class")

	out, _, err = execute(t, fs, "run", "/w/Count.class")
	require.NoError(t, err)
	assert.Equal(t, "3\n2\n1\n", out)

	out, errOut, err := execute(t, fs, "run", "--stats", "/w/count.json")
	require.NoError(t, err)
	assert.Equal(t, "3\n2\n1\n", out)
	assert.Contains(t, errOut, "instructions:")

	out, _, err = execute(t, fs, "javap", "/w/Count.class")
	require.NoError(t, err)
	assert.Contains(t, out, "Count")
	assert.Contains(t, out, "main")
}

func TestBuildOutputDirAndNoCache(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeProgram(t, fs, "/w/count.json", countdown()...)

	_, _, err := execute(t, fs, "build", "--no-cache", "-o", "/out", "/w/count.json")
	require.NoError(t, err)
	exists, err := afero.Exists(fs, "/out/Main.class")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = afero.Exists(fs, "/out/.kforge-cache")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestBuildUsesConfig(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := config.Default()
	cfg.JVM.ClassName = "FromConfig"
	cfg.Output.Dir = "classes"
	require.NoError(t, cfg.Save(fs, "/proj/kforge.toml"))
	writeProgram(t, fs, "/proj/src/count.json", countdown()...)

	_, _, err := execute(t, fs, "build", "/proj/src/count.json")
	require.NoError(t, err)
	exists, err := afero.Exists(fs, "/proj/classes/FromConfig.class")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestBuildErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeProgram(t, fs, "/w/bad.json", ast.NewMain(&ast.BreakStmt{}))

	_, errOut, err := execute(t, fs, "build", "/w/bad.json")
	assert.Equal(t, errReported, err)
	assert.Contains(t, errOut, "error[G0009]")
	assert.Contains(t, errOut, "aborting due to 1 previous error(s)")

	_, errOut, err = execute(t, fs, "build", "--java", "7", "/w/bad.json")
	assert.Equal(t, errReported, err)
	assert.Contains(t, errOut, "error[G0006]")

	_, _, err = execute(t, fs, "build", "/w/missing.json")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cannot read /w/missing.json")

	require.NoError(t, afero.WriteFile(fs, "/w/garbage.json", []byte("{"), 0o644))
	_, errOut, err = execute(t, fs, "build", "/w/garbage.json")
	assert.Equal(t, errReported, err)
	assert.Contains(t, errOut, "error[IN0001]")
}

func TestBuildDiagnosticsJSON(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeProgram(t, fs, "/w/bad.json", ast.NewMain(&ast.BreakStmt{}))

	out, errOut, err := execute(t, fs, "build", "--diagnostics", "json", "/w/bad.json")
	assert.Equal(t, errReported, err)
	assert.Empty(t, errOut)

	var params protocol.PublishDiagnosticsParams
	require.NoError(t, json.Unmarshal([]byte(out), &params))
	assert.Equal(t, "file:///w/bad.json", string(params.URI))
	require.Len(t, params.Diagnostics, 1)
	d := params.Diagnostics[0]
	assert.Equal(t, "G0009", d.Code)
	assert.Equal(t, kerrors.Source, d.Source)
	assert.Equal(t, protocol.DiagnosticSeverityError, d.Severity)

	_, _, err = execute(t, fs, "build", "--diagnostics", "xml", "/w/bad.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown diagnostics format "xml"`)

	writeProgram(t, fs, "/w/count.json", countdown()...)
	out, _, err = execute(t, fs, "build", "--diagnostics", "json", "/w/count.json")
	require.NoError(t, err)
	assert.Contains(t, out, "Generated JVM class")
}

func TestRunException(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeProgram(t, fs, "/w/div.json", ast.NewMain(
		ast.NewVal("z", ast.TypeInt, ast.NewInt(0)),
		ast.NewExprStmt(ast.NewCall("println", ast.TypeUnit,
			ast.NewBinary("/", ast.NewInt(1), ast.NewIdent("z", ast.TypeInt)))),
	))

	_, errOut, err := execute(t, fs, "run", "/w/div.json")
	assert.Equal(t, errReported, err)
	assert.Contains(t, errOut, "java.lang.ArithmeticException: / by zero")
	assert.Contains(t, errOut, "at Main.main(div.kt")
}

func TestInitCommand(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/work/hello-app", 0o755))

	out, _, err := execute(t, fs, "init", "/work/hello-app")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote /work/hello-app/kforge.toml")

	cfg, err := config.LoadConfig(fs, "/work/hello-app/kforge.toml")
	require.NoError(t, err)
	assert.Equal(t, "HelloApp", cfg.JVM.ClassName)

	_, _, err = execute(t, fs, "init", "/work/hello-app")
	assert.Error(t, err)
	_, _, err = execute(t, fs, "init", "--force", "/work/hello-app")
	assert.NoError(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, afero.NewMemMapFs(), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "kforge "+Version)
	assert.Contains(t, out, "Java 6 (50.0)")
}

func TestChineseMessages(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeProgram(t, fs, "/w/count.json", countdown()...)
	defer i18n.SetLanguage(i18n.LangEnglish)

	out, _, err := execute(t, fs, "--lang", "zh", "build", "/w/count.json")
	require.NoError(t, err)
	assert.Contains(t, out, "已生成 JVM class")
}
