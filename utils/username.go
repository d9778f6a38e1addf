package utils

import (
	"html"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const usernamePlaceholder = "без username"

// SanitizeUsername приводит Telegram-username к виду, безопасному для
// подстановки в HTML-сообщения: NFKC-нормализация, срез управляющих
// символов, экранирование. Пустой результат — nil.
func SanitizeUsername(value *string) *string {
	if value == nil || *value == "" {
		return nil
	}

	clean := norm.NFKC.String(strings.TrimSpace(*value))
	clean = strings.TrimPrefix(clean, "@")

	var builder strings.Builder
	for _, r := range clean {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			continue
		}
		builder.WriteRune(r)
	}
	clean = html.EscapeString(builder.String())

	if clean == "" {
		return nil
	}
	return &clean
}

// UsernameForDisplay возвращает @username либо заглушку, когда имени нет.
func UsernameForDisplay(username *string) string {
	sanitized := SanitizeUsername(username)
	if sanitized == nil {
		return usernamePlaceholder
	}
	return "@" + *sanitized
}
