package domain

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"
)

// 验证相关的错误定义
var (
	ErrInvalidEmail     = errors.New("invalid email format")
	ErrEmailTooLong     = errors.New("email address too long")
	ErrLocalPartTooLong = errors.New("local part too long (max 64 chars)")
	ErrDomainTooLong    = errors.New("domain too long (max 253 chars)")
	ErrInvalidDomain    = errors.New("invalid domain format")
	ErrSubjectTooLong   = errors.New("subject too long (max 998 chars)")
)

// 验证常量
const (
	// RFC 5321/5322 长度限制
	MaxEmailLength     = 254
	MaxLocalPartLength = 64
	MaxDomainLength    = 253
	MaxSubjectLength   = 998
)

// 域名验证（支持子域名）
var domainRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

// NormalizeAddress 去掉空白和尖括号并转为小写。
//
// 目录匹配只做大小写无关的精确比较，不展开子地址或别名。
func NormalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	addr = strings.Trim(addr, "<>")
	return strings.ToLower(addr)
}

// ValidateAddress 校验单个邮箱地址（不含显示名）。
func ValidateAddress(addr string) error {
	addr = NormalizeAddress(addr)
	if addr == "" {
		return ErrInvalidEmail
	}
	if len(addr) > MaxEmailLength {
		return ErrEmailTooLong
	}

	parsed, err := mail.ParseAddress(addr)
	if err != nil || !strings.EqualFold(parsed.Address, addr) {
		return ErrInvalidEmail
	}

	at := strings.LastIndex(addr, "@")
	if at <= 0 || at == len(addr)-1 {
		return ErrInvalidEmail
	}
	if at > MaxLocalPartLength {
		return ErrLocalPartTooLong
	}

	domainPart := addr[at+1:]
	if len(domainPart) > MaxDomainLength {
		return ErrDomainTooLong
	}
	if !ValidateDomain(domainPart) {
		return ErrInvalidDomain
	}
	return nil
}

// ValidateDomain 验证域名格式
func ValidateDomain(domain string) bool {
	if domain == "" || len(domain) > MaxDomainLength {
		return false
	}
	return domainRegex.MatchString(domain)
}

// ValidateSubject 主题不能为空白，不能含换行，长度不超过一行头字段上限
func ValidateSubject(subject string) error {
	if strings.TrimSpace(subject) == "" {
		return errors.New("subject is required")
	}
	if len(subject) > MaxSubjectLength {
		return ErrSubjectTooLong
	}
	if strings.ContainsAny(subject, "\r\n") {
		return errors.New("subject must not contain line breaks")
	}
	return nil
}

// DomainOf 返回地址的域名部分（小写）
func DomainOf(addr string) string {
	addr = NormalizeAddress(addr)
	if at := strings.LastIndex(addr, "@"); at >= 0 {
		return addr[at+1:]
	}
	return ""
}
