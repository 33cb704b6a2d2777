//go:build windows

package i18n

import (
	"strings"

	"golang.org/x/sys/windows"
)

// systemChinese 读取用户界面首选语言，例如 zh-CN
func systemChinese() bool {
	langs, err := windows.GetUserPreferredUILanguages(windows.MUI_LANGUAGE_NAME)
	if err == nil && len(langs) > 0 {
		return strings.HasPrefix(strings.ToLower(langs[0]), "zh")
	}
	return envChinese()
}
