package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/afero"

	"github.com/tangzhangming/kforge/internal/i18n"
)

const (
	Version = "0.1.0"
)

func main() {
	// 命令描述在构造时翻译，先确定语言
	i18n.Detect(scanLang(os.Args[1:]))

	cmd := newRootCmd(afero.NewOsFs(), os.Stdout, os.Stderr)
	if err := cmd.Execute(); err != nil {
		if err != errReported {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// scanLang 预扫描 --lang 参数
func scanLang(args []string) string {
	for i, arg := range args {
		switch {
		case arg == "--lang" && i+1 < len(args):
			return args[i+1]
		case strings.HasPrefix(arg, "--lang="):
			return strings.TrimPrefix(arg, "--lang=")
		}
	}
	return ""
}
