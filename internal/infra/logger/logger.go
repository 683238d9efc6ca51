package logger

import (
	"fmt"
	"net/netip"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects the encoder and level of the process logger.
type Options struct {
	// Env "production" switches to JSON output with sampling.
	Env string
	// Level is a zap level name; empty means info in production and debug elsewhere.
	Level   string
	Service string
}

// New builds the process logger. Every entry carries the service and env.
func New(opts Options) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if opts.Env == "production" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	if opts.Level != "" {
		level, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", opts.Level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(level)
	}

	fields := make(map[string]any, 2)
	if opts.Service != "" {
		fields["service"] = opts.Service
	}
	if opts.Env != "" {
		fields["env"] = opts.Env
	}
	cfg.InitialFields = fields

	return cfg.Build()
}

// RequestIDKey is used to store a request identifier on the context.
type RequestIDKey struct{}

// MaskPhone keeps the "+", up to three leading digits of an international
// number and the last four digits.
// Example: +38641348050 -> +386***8050
func MaskPhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ""
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	if len(digits) <= 4 {
		return "***"
	}
	tail := digits[len(digits)-4:]
	if strings.HasPrefix(phone, "+") && len(digits) >= 10 {
		return "+" + digits[:3] + "***" + tail
	}
	return "***" + tail
}

// MaskName keeps the first rune of a personal name.
// Example: Horvat -> H***
func MaskName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	r, _ := utf8.DecodeRuneInString(name)
	return string(r) + "***"
}

// MaskIP keeps the network half of an address: two octets of IPv4, four
// groups of IPv6.
func MaskIP(ip string) string {
	if ip == "" {
		return ""
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return "***"
	}
	if addr.Is4() || addr.Is4In6() {
		b := addr.Unmap().As4()
		return fmt.Sprintf("%d.%d.*.*", b[0], b[1])
	}
	b := addr.As16()
	return fmt.Sprintf("%02x%02x:%02x%02x:%02x%02x:%02x%02x:*:*:*:*", b[0], b[1], b[2], b[3], b[4], b[5], b[6], b[7])
}

// MaskString keeps two characters at each end.
// Example: "01J9ZK4W3M8Q" -> "01***8Q"
func MaskString(s string) string {
	if len(s) <= 4 {
		if s == "" {
			return ""
		}
		return "***"
	}
	return s[:2] + "***" + s[len(s)-2:]
}

// MaskSessionKey masks a session key, which is a phone number on the
// messaging channel and an opaque token on the web.
func MaskSessionKey(key string) string {
	if strings.HasPrefix(key, "+") {
		return MaskPhone(key)
	}
	return MaskString(key)
}
