package graphql

import "strings"

// 操作类型
const (
	OperationQuery        = "query"
	OperationMutation     = "mutation"
	OperationSubscription = "subscription"
)

// Operation 文档中第一个操作的类型与名称
type Operation struct {
	Type string
	Name string
}

// ParseOperation 跳过注释与空白读取第一个关键字，简写形式 { ... } 视为匿名 query
func ParseOperation(document string) Operation {
	s := skipIgnored(document)
	for _, kw := range []string{OperationQuery, OperationMutation, OperationSubscription} {
		rest, ok := strings.CutPrefix(s, kw)
		if !ok || (rest != "" && isNameChar(rest[0])) {
			continue
		}
		rest = skipIgnored(rest)
		end := 0
		for end < len(rest) && isNameChar(rest[end]) {
			end++
		}
		return Operation{Type: kw, Name: rest[:end]}
	}
	return Operation{Type: OperationQuery}
}

// skipIgnored 去掉开头的空白、逗号与 # 注释
func skipIgnored(s string) string {
	for {
		s = strings.TrimLeft(s, " \t\r\n,\ufeff")
		if !strings.HasPrefix(s, "#") {
			return s
		}
		if i := strings.IndexAny(s, "\r\n"); i >= 0 {
			s = s[i:]
		} else {
			return ""
		}
	}
}

func isNameChar(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}
