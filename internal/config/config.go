// Package config 读写 kforge.toml 项目配置
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/tangzhangming/kforge/internal/logger"
)

// 常量定义
const (
	ConfigFileName = "kforge.toml" // 配置文件名
	DefaultClass   = "Main"
)

// ErrInvalid 配置值不合法
var ErrInvalid = errors.New("invalid config")

// Config 项目配置
type Config struct {
	JVM    JVMConfig    `toml:"jvm"`
	Output OutputConfig `toml:"output"`
	Run    RunConfig    `toml:"run"`
	Log    LogConfig    `toml:"log"`
}

// JVMConfig class 文件生成参数
type JVMConfig struct {
	ClassName       string `toml:"class_name"`
	SourceFile      string `toml:"source_file"` // 为空时使用输入文件名
	JavaVersion     int    `toml:"java_version"`
	DebugInfo       bool   `toml:"debug_info"`
	AllowUnverified bool   `toml:"allow_unverified"`
}

// OutputConfig 输出参数
type OutputConfig struct {
	Dir      string `toml:"dir"`
	Comments bool   `toml:"comments"` // 栈式字节码清单带注释
	Cache    bool   `toml:"cache"`    // 使用构建缓存
}

// RunConfig 解释器参数
type RunConfig struct {
	MaxSteps int `toml:"max_steps"`
	MaxDepth int `toml:"max_depth"`
}

// LogConfig 日志参数
type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// Default 默认配置
func Default() *Config {
	return &Config{
		JVM: JVMConfig{
			ClassName:   DefaultClass,
			JavaVersion: 6,
		},
		Output: OutputConfig{
			Dir:      ".",
			Comments: true,
			Cache:    true,
		},
		Run: RunConfig{
			MaxSteps: 50_000_000,
			MaxDepth: 256,
		},
		Log: LogConfig{
			Level: "warn",
		},
	}
}

// LoadConfig 从文件加载配置，文件中缺少的键保持默认值
func LoadConfig(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config file %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, path)
	}
	return cfg, nil
}

// Validate 检查取值范围
func (c *Config) Validate() error {
	if !ValidClassName(c.JVM.ClassName) {
		return errors.Wrapf(ErrInvalid, "jvm.class_name %q", c.JVM.ClassName)
	}
	switch c.JVM.JavaVersion {
	case 6, 7, 8:
	default:
		return errors.Wrapf(ErrInvalid, "jvm.java_version %d (want 6, 7 or 8)", c.JVM.JavaVersion)
	}
	if c.Run.MaxSteps < 0 || c.Run.MaxDepth < 0 {
		return errors.Wrap(ErrInvalid, "run limits must not be negative")
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(ErrInvalid, err.Error())
	}
	return nil
}

// Save 保存配置到文件
func (c *Config) Save(fs afero.Fs, path string) error {
	if err := afero.WriteFile(fs, path, []byte(generateConfigWithComments(c)), 0o644); err != nil {
		return errors.Wrapf(err, "failed to write config file %s", path)
	}
	return nil
}

// generateConfigWithComments 生成带注释的配置文件内容
func generateConfigWithComments(c *Config) string {
	var sb strings.Builder

	sb.WriteString("[jvm]\n")
	sb.WriteString("# 生成的类名\n")
	sb.WriteString(fmt.Sprintf("class_name = %q\n", c.JVM.ClassName))
	sb.WriteString("# SourceFile 属性，留空时使用输入文件名\n")
	sb.WriteString(fmt.Sprintf("source_file = %q\n", c.JVM.SourceFile))
	sb.WriteString("# 目标版本 6/7/8；7 和 8 需要 allow_unverified\n")
	sb.WriteString(fmt.Sprintf("java_version = %d\n", c.JVM.JavaVersion))
	sb.WriteString(fmt.Sprintf("debug_info = %t\n", c.JVM.DebugInfo))
	sb.WriteString(fmt.Sprintf("allow_unverified = %t\n\n", c.JVM.AllowUnverified))

	sb.WriteString("[output]\n")
	sb.WriteString(fmt.Sprintf("dir = %q\n", c.Output.Dir))
	sb.WriteString(fmt.Sprintf("comments = %t\n", c.Output.Comments))
	sb.WriteString(fmt.Sprintf("cache = %t\n\n", c.Output.Cache))

	sb.WriteString("[run]\n")
	sb.WriteString(fmt.Sprintf("max_steps = %d\n", c.Run.MaxSteps))
	sb.WriteString(fmt.Sprintf("max_depth = %d\n\n", c.Run.MaxDepth))

	sb.WriteString("[log]\n")
	sb.WriteString("# debug/info/warn/error，KFORGE_DEBUG=1 时为 debug\n")
	sb.WriteString(fmt.Sprintf("level = %q\n", c.Log.Level))
	sb.WriteString(fmt.Sprintf("file = %q\n", c.Log.File))

	return sb.String()
}

// GenerateDefault 生成默认配置
// dir 是项目目录路径，用于生成默认的类名
func GenerateDefault(dir string) *Config {
	cfg := Default()
	cfg.JVM.ClassName = ClassNameFor(filepath.Base(dir))
	return cfg
}

// ClassNameFor 把目录名或文件名转换为合法的类名：hello-world -> HelloWorld
func ClassNameFor(name string) string {
	name = strings.TrimSuffix(name, filepath.Ext(name))

	var sb strings.Builder
	upper := true
	for _, r := range name {
		switch {
		case r == '-' || r == '_' || r == ' ' || r == '.':
			upper = true
		case unicode.IsLetter(r) || (unicode.IsDigit(r) && sb.Len() > 0):
			if upper {
				r = unicode.ToUpper(r)
				upper = false
			}
			sb.WriteRune(r)
		}
	}

	if sb.Len() == 0 {
		return DefaultClass
	}
	return sb.String()
}

// ValidClassName 类名是否为合法的 Java 标识符（不含包路径）
func ValidClassName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		if r == '_' || r == '$' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return true
}

// FindConfigFile 从指定路径向上查找配置文件
// 返回配置文件的完整路径，如果找不到则返回空字符串
func FindConfigFile(fs afero.Fs, startPath string) string {
	info, err := fs.Stat(startPath)
	if err != nil {
		return ""
	}

	dir := startPath
	if !info.IsDir() {
		dir = filepath.Dir(startPath)
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}

	// 向上查找
	for {
		configPath := filepath.Join(dir, ConfigFileName)
		if _, err := fs.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// 已到达根目录
			return ""
		}
		dir = parent
	}
}

// Load 查找并加载 startPath 所在项目的配置，找不到时返回默认配置
func Load(fs afero.Fs, startPath string) (*Config, string, error) {
	path := FindConfigFile(fs, startPath)
	if path == "" {
		return Default(), "", nil
	}
	cfg, err := LoadConfig(fs, path)
	return cfg, path, err
}
