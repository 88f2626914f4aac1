package connectors

import "strings"

// CLOBErrorCodes maps CLOB rejection strings to whether they are transient.
// Transient rejections are safe to retry with backoff; the rest must surface
// to the caller unretried.
var CLOBErrorCodes = map[string]bool{
	"RATE_LIMITED":           true,
	"SERVICE_UNAVAILABLE":    true,
	"REQUEST_TIMEOUT":        true,
	"MARKET_NOT_READY":       true,
	"INVALID_ORDER_MIN_SIZE": false,
	"INVALID_ORDER_PRICE":    false,
	"INSUFFICIENT_BALANCE":   false,
	"MARKET_CLOSED":          false,
	"DUPLICATE_CLIENT_ID":    false,
	"ORDER_NOT_FOUND":        false,
}

// classifyError extracts the leading error code token and reports whether
// the failure is transient. Unknown codes are treated as fatal.
func classifyError(msg string) (string, bool) {
	code := msg
	if idx := strings.IndexAny(msg, ": "); idx > 0 {
		code = msg[:idx]
	}
	code = strings.ToUpper(strings.TrimSpace(code))

	transient, ok := CLOBErrorCodes[code]
	if !ok {
		return code, false
	}
	return code, transient
}
