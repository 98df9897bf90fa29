package logger

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	lg   *zap.Logger
	once sync.Once
)

// New builds the process logger: sampled JSON in production, a colored
// console encoder everywhere else. Repeated calls return the first build.
func New(env string) (*zap.Logger, error) {
	var err error
	once.Do(func() {
		lg, err = buildConfig(env).Build()
	})
	return lg, err
}

func buildConfig(env string) zap.Config {
	if env == "production" {
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		return cfg
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return cfg
}

// RequestIDKey stores the per-request correlation identifier on a context.
type RequestIDKey struct{}

// TraceIDKey stores the trace identifier on a context so layers below HTTP
// (event publishing, repositories) can correlate work with the originating
// request.
type TraceIDKey struct{}

// TraceIDFromContext returns the trace identifier carried by ctx, or "".
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if val, ok := ctx.Value(TraceIDKey{}).(string); ok {
		return val
	}
	return ""
}

// PII masking helpers. Login identifiers, emails, and client IPs never reach
// log output or event payloads unmasked.

var emailRegex = regexp.MustCompile(`^([^@]{1,3})[^@]*(@.+)$`)

// MaskEmail keeps at most the first three characters of the local part and
// the full domain: john.doe@example.com becomes joh***@example.com.
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}

	if matches := emailRegex.FindStringSubmatch(email); len(matches) == 3 {
		return matches[1] + "***" + matches[2]
	}

	if _, domain, ok := strings.Cut(email, "@"); ok {
		return "***@" + domain
	}

	return "***"
}

// MaskIP keeps the first two IPv4 octets (192.168.1.100 becomes 192.168.*.*)
// or the first four IPv6 groups.
func MaskIP(ip string) string {
	if ip == "" {
		return ""
	}

	if strings.Contains(ip, ".") {
		if parts := strings.Split(ip, "."); len(parts) == 4 {
			return parts[0] + "." + parts[1] + ".*.*"
		}
	}

	if strings.Contains(ip, ":") {
		if parts := strings.Split(ip, ":"); len(parts) >= 4 {
			return strings.Join(parts[:4], ":") + ":*:*:*:*"
		}
	}

	return "***"
}

// MaskIdentifier masks a login identifier, via MaskEmail when the value
// carries an @ and generic masking otherwise.
func MaskIdentifier(identifier string) string {
	if strings.Contains(identifier, "@") {
		return MaskEmail(identifier)
	}
	return MaskString(identifier)
}

// MaskString keeps the first and last two characters of an arbitrary
// sensitive value; anything four characters or shorter masks entirely.
func MaskString(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "***"
	}
	return s[:2] + "***" + s[len(s)-2:]
}
