package config

import "time"

// Config is the controller configuration.
type Config struct {
	Host    string `yaml:"host" json:"host"`
	Port    int    `yaml:"port" json:"port"`
	SSLPort int    `yaml:"sslPort" json:"sslPort"`
	SSLCert string `yaml:"sslCert,omitempty" json:"sslCert,omitempty"`
	SSLKey  string `yaml:"sslKey,omitempty" json:"sslKey,omitempty"`
	// SSLClientCA requires HTTPS clients of the controller to present a
	// certificate signed by this CA.
	SSLClientCA string `yaml:"sslClientCA,omitempty" json:"sslClientCA,omitempty"`

	// RequestTimeout is the per-request timeout in seconds for the control API.
	RequestTimeout int `yaml:"requestTimeout" json:"requestTimeout"`
	// StartTimeout is how long, in seconds, a spawned app has to become healthy.
	StartTimeout int `yaml:"startTimeout" json:"startTimeout"`
	// StopTimeout is how long, in seconds, an app gets to exit before it is killed.
	StopTimeout int `yaml:"stopTimeout" json:"stopTimeout"`

	HandlerStorageRoot string `yaml:"handlerStorageRoot" json:"handlerStorageRoot"`
	CertStorageRoot    string `yaml:"certStorageRoot" json:"certStorageRoot"`

	ServerLogFile   string `yaml:"serverLogFile,omitempty" json:"serverLogFile,omitempty"`
	ServerLogLevel  string `yaml:"serverLogLevel" json:"serverLogLevel"`
	ServerLogFormat string `yaml:"serverLogFormat" json:"serverLogFormat"`

	// AuthSecret enables HS256 bearer-token auth on the control API when set.
	AuthSecret string `yaml:"authSecret,omitempty" json:"-"`

	// Sources tracks where each value came from.
	Sources map[string]string `yaml:"-" json:"-"`
}

// Value sources.
const (
	SourceDefault = "default"
	SourceFile    = "file"
	SourceEnv     = "env"
	SourceFlag    = "flag"
)

// Defaults.
const (
	DefaultHost               = "0.0.0.0"
	DefaultPort               = 8080
	DefaultSSLPort            = 443
	DefaultRequestTimeout     = 10
	DefaultStartTimeout       = 5
	DefaultStopTimeout        = 5
	DefaultHandlerStorageRoot = "./httpmocker/handlers"
	DefaultCertStorageRoot    = "./httpmocker/certs"
	DefaultServerLogLevel     = "debug"
	DefaultServerLogFormat    = "text"
)

// Default returns a Config populated with defaults.
func Default() *Config {
	cfg := &Config{
		Host:               DefaultHost,
		Port:               DefaultPort,
		SSLPort:            DefaultSSLPort,
		RequestTimeout:     DefaultRequestTimeout,
		StartTimeout:       DefaultStartTimeout,
		StopTimeout:        DefaultStopTimeout,
		HandlerStorageRoot: DefaultHandlerStorageRoot,
		CertStorageRoot:    DefaultCertStorageRoot,
		ServerLogLevel:     DefaultServerLogLevel,
		ServerLogFormat:    DefaultServerLogFormat,
		Sources:            make(map[string]string),
	}
	for _, f := range fields {
		cfg.Sources[f.key] = SourceDefault
	}
	return cfg
}

// RequestTimeoutDuration returns RequestTimeout as a time.Duration.
func (c *Config) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// StartTimeoutDuration returns StartTimeout as a time.Duration.
func (c *Config) StartTimeoutDuration() time.Duration {
	return time.Duration(c.StartTimeout) * time.Second
}

// StopTimeoutDuration returns StopTimeout as a time.Duration.
func (c *Config) StopTimeoutDuration() time.Duration {
	return time.Duration(c.StopTimeout) * time.Second
}

// Set records an explicit value from the given source. It is used by the CLI
// to apply flag values with correct source tracking.
func (c *Config) Set(key string, value string, source string) error {
	f, ok := fieldByKey(key)
	if !ok {
		return &ConfigError{Key: key, Message: "unknown configuration key"}
	}
	if err := f.set(c, value); err != nil {
		return &ConfigError{Key: key, Message: err.Error()}
	}
	if c.Sources == nil {
		c.Sources = make(map[string]string)
	}
	c.Sources[key] = source
	return nil
}
