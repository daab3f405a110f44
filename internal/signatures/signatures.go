package signatures

import (
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

// Matcher 单个模式匹配器，返回命中的文本片段
type Matcher interface {
	Match(s string) (string, bool)
}

// Classified 分类结果：URL 候选与 shell 命令候选两个有序集合，
// 互不相交，同一字符串最多归入一类。
type Classified struct {
	URLs          []string `json:"urls"`
	ShellCommands []string `json:"shell_commands"`
}

// URL 候选的最小字符串长度，更短的串误报率过高
const minURLLength = 6

var urlPattern = regexp.MustCompile(
	`(?i)\b(?:https?|ftp)://[a-z0-9][a-z0-9.-]*\.[a-z]{2,}(?::\d{1,5})?(?:/[^\s"'<>]*)?`)

// 常见交互式 shell 程序名（出现在首个空白分隔 token 时视为命令）
var shellVocabulary = map[string]bool{
	"am":             true,
	"cd":             true,
	"chmod":          true,
	"chown":          true,
	"cmp":            true,
	"dalvikvm":       true,
	"exit":           true,
	"getprop":        true,
	"iptables":       true,
	"kill":           true,
	"ls":             true,
	"mkdir":          true,
	"mount":          true,
	"mv":             true,
	"ping":           true,
	"pm":             true,
	"rm":             true,
	"rmdir":          true,
	"service":        true,
	"servicemanager": true,
	"setprop":        true,
	"sh":             true,
	"su":             true,
}

// urlMatcher URL 模式匹配器
type urlMatcher struct{}

// NewURLMatcher 创建 URL 匹配器
func NewURLMatcher() Matcher {
	return urlMatcher{}
}

func (urlMatcher) Match(s string) (string, bool) {
	if len(s) <= minURLLength {
		return "", false
	}
	match := urlPattern.FindString(s)
	return match, match != ""
}

// shellMatcher shell 命令匹配器
type shellMatcher struct{}

// NewShellMatcher 创建 shell 命令匹配器
func NewShellMatcher() Matcher {
	return shellMatcher{}
}

func (shellMatcher) Match(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return "", false
	}
	token := strings.Trim(fields[0], "_#$")
	if !shellVocabulary[token] {
		return "", false
	}
	return trimmed, true
}

// Classifier 对 DEX 字符串表做模式分类。
// 类别按声明顺序匹配：URL 在前，同一字符串两类都命中时 URL 优先。
type Classifier struct {
	logger *logrus.Logger
	url    Matcher
	shell  Matcher
}

// NewClassifier 创建默认分类器
func NewClassifier(logger *logrus.Logger) *Classifier {
	return NewClassifierWith(logger, NewURLMatcher(), NewShellMatcher())
}

// NewClassifierWith 以注入的匹配器创建分类器
func NewClassifierWith(logger *logrus.Logger, url, shell Matcher) *Classifier {
	return &Classifier{logger: logger, url: url, shell: shell}
}

// Classify 扫描字符串表。enabled 为 false 时直接返回空结果，
// 不进行任何模式求值（成本开关）。
func (c *Classifier) Classify(stringTable []string, enabled bool) Classified {
	result := Classified{URLs: []string{}, ShellCommands: []string{}}
	if !enabled {
		return result
	}

	for _, s := range stringTable {
		if match, ok := c.url.Match(s); ok {
			result.URLs = append(result.URLs, match)
			continue
		}
		if match, ok := c.shell.Match(s); ok {
			result.ShellCommands = append(result.ShellCommands, match)
		}
	}

	c.logger.WithFields(logrus.Fields{
		"strings":        len(stringTable),
		"urls":           len(result.URLs),
		"shell_commands": len(result.ShellCommands),
	}).Debug("String classification completed")

	return result
}
