package filesystem

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"unicode"
)

const maxFilenameLength = 200

// SanitizeFilename 清理附件文件名，去掉目录部分和当前平台不允许的字符。
func SanitizeFilename(filename string) string {
	filename = strings.ReplaceAll(filename, "\\", "/")
	filename = filepath.Base(filepath.FromSlash(filename))

	for _, char := range invalidChars() {
		filename = strings.ReplaceAll(filename, char, "_")
	}

	filename = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, filename)

	filename = strings.Trim(limitLength(filename, maxFilenameLength), " .")
	if filename == "" {
		return "unnamed"
	}
	return filename
}

// invalidChars 当前平台文件名中不允许的字符
func invalidChars() []string {
	switch runtime.GOOS {
	case "darwin", "linux":
		return []string{"/", "\x00"}
	default:
		return []string{"<", ">", ":", "\"", "|", "?", "*", "\\", "/", "\x00"}
	}
}

// limitLength 按字节截断，保留扩展名，不拆开多字节字符
func limitLength(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}

	ext := filepath.Ext(s)
	if len(ext) >= maxLen {
		ext = ""
	}
	name := strings.TrimSuffix(s, ext)
	budget := maxLen - len(ext)

	cut := 0
	for i := range name {
		if i > budget {
			break
		}
		cut = i
	}
	return name[:cut] + ext
}

// validatePath 拒绝包含上级目录引用的路径
func validatePath(path string) error {
	if len(path) > 2000 {
		return fmt.Errorf("path too long: %d characters", len(path))
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("path traversal detected: %s", path)
		}
	}
	return nil
}

// normalizePath 转为清理后的绝对路径
func normalizePath(path string) string {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return absPath
}
