package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind categorizes provider call failures for failover decisions.
type ErrorKind string

const (
	KindNone          ErrorKind = ""
	KindQuotaExceeded ErrorKind = "quota_exceeded"      // 429: cool the provider down and try the next one
	KindUnsupported   ErrorKind = "unsupported_request" // 400: fall back to the catch-all
	KindTransport     ErrorKind = "transport"           // anything else: surfaced to the user, not retried
)

var (
	// ErrExhausted is returned when every provider was tried in one call chain.
	ErrExhausted = errors.New("all providers failed")

	// ErrNoCredentials is returned when no provider has a configured credential.
	ErrNoCredentials = errors.New("no provider credentials configured")
)

// CallError describes a failed provider call
type CallError struct {
	Kind     ErrorKind
	Provider string
	Status   int    // HTTP status, 0 when no response was received
	Detail   string // provider error message or truncated body
	Err      error  // underlying transport/decoding error, if any
}

func (e *CallError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Provider)
	if e.Status != 0 {
		fmt.Fprintf(&sb, ": %d %s", e.Status, http.StatusText(e.Status))
	}
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// KindOf returns the failover class of err, KindTransport for foreign errors
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindTransport
}

// ClassifyStatus maps an HTTP error response to a failover class.
// A 400 counts as an unsupported request when match is empty, or when match
// appears in the provider's error status or message (case-insensitive).
func ClassifyStatus(status int, errStatus, errMessage, match string) ErrorKind {
	switch status {
	case http.StatusTooManyRequests:
		return KindQuotaExceeded
	case http.StatusBadRequest:
		if match == "" {
			return KindUnsupported
		}
		m := strings.ToLower(match)
		if strings.Contains(strings.ToLower(errStatus), m) || strings.Contains(strings.ToLower(errMessage), m) {
			return KindUnsupported
		}
		return KindTransport
	default:
		return KindTransport
	}
}

// User-facing notices
const (
	switchNotice     = "Переключились на модель: "
	apiErrorPrefix   = "Ошибка API: "
	callErrorPrefix  = "Ошибка при запросе к API: "
	exhaustedNotice  = "Все модели сейчас недоступны, попробуйте позже."
	noCredentialText = "Бот не настроен: не задан ни один API-ключ."
)

// NoCredentialsNotice is the static reply used when no provider is configured
func NoCredentialsNotice() string {
	return noCredentialText
}

// FormatErrorForUser renders a query failure as chat text
func FormatErrorForUser(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrNoCredentials) {
		return noCredentialText
	}
	if errors.Is(err, ErrExhausted) {
		return exhaustedNotice + "\n" + err.Error()
	}
	var ce *CallError
	if errors.As(err, &ce) && ce.Status != 0 {
		return apiErrorPrefix + ce.Error()
	}
	return callErrorPrefix + err.Error()
}

// truncate shortens s to at most n bytes, respecting UTF-8 boundaries
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
