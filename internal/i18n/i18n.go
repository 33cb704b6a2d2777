// Package i18n 提供 kforge 命令行和诊断信息的中英文消息
package i18n

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// Language 语言类型
type Language string

const (
	LangEnglish Language = "en"
	LangChinese Language = "zh"
)

// EnvLang 覆盖语言检测的环境变量
const EnvLang = "KFORGE_LANG"

// 全局语言设置
var (
	currentLang = LangEnglish
	mu          sync.RWMutex
)

// SetLanguage 设置当前语言
func SetLanguage(lang Language) {
	mu.Lock()
	defer mu.Unlock()
	currentLang = lang
}

// ParseLanguage 解析语言名，无法识别时为英文
func ParseLanguage(lang string) Language {
	switch strings.ToLower(strings.TrimSpace(lang)) {
	case "zh", "zh-cn", "zh_cn", "zh-tw", "zh-hk", "chinese":
		return LangChinese
	}
	return LangEnglish
}

// SetLanguageFromString 从字符串设置语言
func SetLanguageFromString(lang string) {
	SetLanguage(ParseLanguage(lang))
}

// GetLanguage 获取当前语言
func GetLanguage() Language {
	mu.RLock()
	defer mu.RUnlock()
	return currentLang
}

// Detect 确定并设置界面语言。
// 优先级: 参数 > KFORGE_LANG > 操作系统语言 > 英文
func Detect(override string) Language {
	lang := LangEnglish
	switch {
	case override != "":
		lang = ParseLanguage(override)
	case os.Getenv(EnvLang) != "":
		lang = ParseLanguage(os.Getenv(EnvLang))
	case systemChinese():
		lang = LangChinese
	}
	SetLanguage(lang)
	return lang
}

// envChinese 检查 Unix 风格的 locale 环境变量
func envChinese() bool {
	for _, v := range []string{"LC_ALL", "LC_MESSAGES", "LANGUAGE", "LANG"} {
		if val := strings.ToLower(os.Getenv(v)); val != "" {
			return strings.HasPrefix(val, "zh") || strings.Contains(val, "chinese")
		}
	}
	return false
}

// T 翻译消息（支持格式化参数）
func T(msgID string, args ...interface{}) string {
	msg, ok := lookup(GetLanguage(), msgID)
	if !ok {
		// 找不到翻译则返回原始 ID
		return msgID
	}
	if len(args) > 0 {
		return fmt.Sprintf(msg, args...)
	}
	return msg
}

// Has 消息 ID 是否有英文文本
func Has(msgID string) bool {
	_, ok := messagesEN[msgID]
	return ok
}

func lookup(lang Language, msgID string) (string, bool) {
	if lang == LangChinese {
		if msg, ok := messagesZH[msgID]; ok {
			return msg, true
		}
	}
	// 回退到英文
	msg, ok := messagesEN[msgID]
	return msg, ok
}
