package config

import (
	"fmt"
	"strconv"
	"strings"
)

// field binds a config key to its environment suffix and setter.
type field struct {
	key    string
	env    string
	set    func(c *Config, raw string) error
	isZero func(c *Config) bool
	copy   func(dst, src *Config)
}

var fields = []field{
	stringField("host", "HOST", func(c *Config) *string { return &c.Host }),
	intField("port", "PORT", func(c *Config) *int { return &c.Port }),
	intField("sslPort", "SSL_PORT", func(c *Config) *int { return &c.SSLPort }),
	stringField("sslCert", "SSL_CERT", func(c *Config) *string { return &c.SSLCert }),
	stringField("sslKey", "SSL_KEY", func(c *Config) *string { return &c.SSLKey }),
	stringField("sslClientCA", "SSL_CLIENT_CA", func(c *Config) *string { return &c.SSLClientCA }),
	intField("requestTimeout", "REQUEST_TIMEOUT", func(c *Config) *int { return &c.RequestTimeout }),
	intField("startTimeout", "START_TIMEOUT", func(c *Config) *int { return &c.StartTimeout }),
	intField("stopTimeout", "STOP_TIMEOUT", func(c *Config) *int { return &c.StopTimeout }),
	stringField("handlerStorageRoot", "HANDLER_STORAGE_ROOT", func(c *Config) *string { return &c.HandlerStorageRoot }),
	stringField("certStorageRoot", "CERT_STORAGE_ROOT", func(c *Config) *string { return &c.CertStorageRoot }),
	stringField("serverLogFile", "SERVER_LOG_FILE", func(c *Config) *string { return &c.ServerLogFile }),
	stringField("serverLogLevel", "SERVER_LOG_LEVEL", func(c *Config) *string { return &c.ServerLogLevel }),
	stringField("serverLogFormat", "SERVER_LOG_FORMAT", func(c *Config) *string { return &c.ServerLogFormat }),
	stringField("authSecret", "AUTH_SECRET", func(c *Config) *string { return &c.AuthSecret }),
}

func fieldByKey(key string) (field, bool) {
	for _, f := range fields {
		if f.key == key {
			return f, true
		}
	}
	return field{}, false
}

func stringField(key, env string, ptr func(*Config) *string) field {
	return field{
		key: key,
		env: env,
		set: func(c *Config, raw string) error {
			*ptr(c) = raw
			return nil
		},
		isZero: func(c *Config) bool { return *ptr(c) == "" },
		copy:   func(dst, src *Config) { *ptr(dst) = *ptr(src) },
	}
}

func intField(key, env string, ptr func(*Config) *int) field {
	return field{
		key: key,
		env: env,
		set: func(c *Config, raw string) error {
			v, ok := Coerce(raw).(int)
			if !ok {
				return fmt.Errorf("%q is not an integer", raw)
			}
			*ptr(c) = v
			return nil
		},
		isZero: func(c *Config) bool { return *ptr(c) == 0 },
		copy:   func(dst, src *Config) { *ptr(dst) = *ptr(src) },
	}
}

// Coerce converts a raw environment string to int, float64, bool or string,
// trying each in that order.
func Coerce(raw string) any {
	if v, err := strconv.Atoi(raw); err == nil {
		return v
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return v
	}
	if v, err := ParseBool(raw); err == nil {
		return v
	}
	return raw
}

// ParseBool accepts yes/true/on and no/false/off in any case.
func ParseBool(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "yes", "true", "on":
		return true, nil
	case "no", "false", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}
