package robokassa

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
)

// CalculateSignature строит подпись Robokassa:
// MD5(login:amount:invId:password[:значения Shp-параметров по алфавиту ключей]).
// В дайджест входят только значения дополнительных параметров, ключи
// участвуют лишь в порядке сортировки.
func CalculateSignature(merchantLogin string, amount float64, invoiceID string, password string, extraParams map[string]string) string {
	parts := []string{merchantLogin, formatAmount(amount), invoiceID, password}

	if len(extraParams) > 0 {
		keys := make([]string, 0, len(extraParams))
		for k := range extraParams {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, extraParams[k])
		}
	}

	sum := md5.Sum([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(sum[:])
}

// VerifySignature сравнивает подпись из callback с вычисленной. Регистр
// hex-цифр не значим.
func VerifySignature(merchantLogin string, amount float64, invoiceID string, signature string, password string, extraParams map[string]string) bool {
	expected := CalculateSignature(merchantLogin, amount, invoiceID, password, extraParams)
	return strings.EqualFold(expected, signature)
}

// formatAmount — каноническая строка суммы для дайджеста: без экспоненты и
// без хвостовых нулей. Обе стороны обязаны сериализовать сумму одинаково.
func formatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}
