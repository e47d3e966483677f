package config

import (
	"errors"
	"fmt"
)

const maxTimeoutSeconds = 3600

// Validate checks ports, timeouts and the SSL pair.
func (c *Config) Validate() error {
	var errs []error

	checkPort := func(key string, port int) {
		if port < 0 || port > 65535 {
			errs = append(errs, &ConfigError{Key: key, Message: fmt.Sprintf("port %d is out of range (0-65535)", port)})
		}
	}
	checkPort("port", c.Port)
	checkPort("sslPort", c.SSLPort)

	if c.Port != 0 && c.Port == c.SSLPort {
		errs = append(errs, &ConfigError{Key: "sslPort", Message: "port and sslPort cannot be the same"})
	}

	checkTimeout := func(key string, v int) {
		if v <= 0 || v > maxTimeoutSeconds {
			errs = append(errs, &ConfigError{Key: key, Message: fmt.Sprintf("%d is out of range (1-%d)", v, maxTimeoutSeconds)})
		}
	}
	checkTimeout("requestTimeout", c.RequestTimeout)
	checkTimeout("startTimeout", c.StartTimeout)
	checkTimeout("stopTimeout", c.StopTimeout)

	if (c.SSLCert == "") != (c.SSLKey == "") {
		errs = append(errs, &ConfigError{Key: "sslCert", Message: "sslCert and sslKey must be set together"})
	}
	if c.SSLClientCA != "" && c.SSLCert == "" {
		errs = append(errs, &ConfigError{Key: "sslClientCA", Message: "requires sslCert and sslKey"})
	}
	if c.HandlerStorageRoot == "" {
		errs = append(errs, &ConfigError{Key: "handlerStorageRoot", Message: "must not be empty"})
	}

	return errors.Join(errs...)
}
