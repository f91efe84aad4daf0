// Package config holds the hookrelay configuration specification and the
// typed view of it used by the server and client commands.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Spec defines all configuration items for hookrelay.
//
//nolint:gochecknoglobals // global config spec is intentional
var Spec = ConfigSpec{
	// General
	"db": ConfigVarSpec{
		Help:         "SQLite database path",
		DefaultValue: "hookrelay.db",
		EnvVar:       "HOOKRELAY_DB",
	},
	"log-level": ConfigVarSpec{
		Help:         "Log level (debug|info|warn|error)",
		DefaultValue: "info",
		EnvVar:       "HOOKRELAY_LOG_LEVEL",
	},
	"log-format": ConfigVarSpec{
		Help:         "Log format (json|console)",
		DefaultValue: "json",
		EnvVar:       "HOOKRELAY_LOG_FORMAT",
	},
	"shutdown-timeout-seconds": ConfigVarSpec{
		Help:         "Graceful shutdown timeout in seconds",
		DefaultValue: 30,
		EnvVar:       "HOOKRELAY_SHUTDOWN_TIMEOUT_SECONDS",
	},

	// Capture listener
	"capture.port": ConfigVarSpec{
		Help:         "Capture HTTP port",
		DefaultValue: 8080,
		EnvVar:       "HOOKRELAY_CAPTURE_PORT",
	},
	"capture.https-port": ConfigVarSpec{
		Help:         "Capture HTTPS port (0 disables HTTPS)",
		DefaultValue: 0,
		EnvVar:       "HOOKRELAY_CAPTURE_HTTPS_PORT",
	},
	"capture.max-body-bytes": ConfigVarSpec{
		Help:         "Maximum accepted request body size in bytes",
		DefaultValue: 1 << 20,
		EnvVar:       "HOOKRELAY_CAPTURE_MAX_BODY_BYTES",
	},

	// Read API
	"api.port": ConfigVarSpec{
		Help:         "Read API port",
		DefaultValue: 8081,
		EnvVar:       "HOOKRELAY_API_PORT",
	},
	"api.url": ConfigVarSpec{
		Help:         "Read API base URL used by client commands",
		DefaultValue: "http://localhost:8081",
		EnvVar:       "HOOKRELAY_API_URL",
	},

	// TLS
	"tls.cert": ConfigVarSpec{
		Help:         "TLS certificate file for the capture HTTPS listener",
		DefaultValue: "",
		EnvVar:       "HOOKRELAY_TLS_CERT",
	},
	"tls.key": ConfigVarSpec{
		Help:         "TLS key file for the capture HTTPS listener",
		DefaultValue: "",
		EnvVar:       "HOOKRELAY_TLS_KEY",
	},
	"acme.domains": ConfigVarSpec{
		Help:         "Domains to obtain ACME certificates for",
		DefaultValue: []string{},
		EnvVar:       "HOOKRELAY_ACME_DOMAINS",
		ParseFunc:    ParseList,
	},
	"acme.email": ConfigVarSpec{
		Help:         "ACME account email",
		DefaultValue: "",
		EnvVar:       "HOOKRELAY_ACME_EMAIL",
	},
	"acme.staging": ConfigVarSpec{
		Help:         "Use the Let's Encrypt staging CA",
		DefaultValue: false,
		EnvVar:       "HOOKRELAY_ACME_STAGING",
	},

	// Relay
	"relay.upstreams": ConfigVarSpec{
		Help:         "Upstream base URLs that qualifying events are relayed to",
		DefaultValue: []string{},
		EnvVar:       "HOOKRELAY_RELAY_UPSTREAMS",
		ParseFunc:    ParseList,
	},
	"relay.path-template": ConfigVarSpec{
		Help:         "Upstream path template; {eventName} is replaced with the event name",
		DefaultValue: "/script/{eventName}",
		EnvVar:       "HOOKRELAY_RELAY_PATH_TEMPLATE",
	},
	"relay.event-suffix": ConfigVarSpec{
		Help:         "Suffix appended to the eventName of relayed bodies",
		DefaultValue: "_relayed",
		EnvVar:       "HOOKRELAY_RELAY_EVENT_SUFFIX",
	},
	"relay.origin-name": ConfigVarSpec{
		Help:         "Value sent as x-origin-domain on relayed requests",
		DefaultValue: "hookrelay",
		EnvVar:       "HOOKRELAY_RELAY_ORIGIN_NAME",
	},
	"relay.max-in-flight": ConfigVarSpec{
		Help:         "Maximum concurrent relay attempts",
		DefaultValue: 4,
		EnvVar:       "HOOKRELAY_RELAY_MAX_IN_FLIGHT",
	},
	"relay.timeout-seconds": ConfigVarSpec{
		Help:         "Per-attempt upstream timeout in seconds",
		DefaultValue: 30,
		EnvVar:       "HOOKRELAY_RELAY_TIMEOUT_SECONDS",
	},

	// S3 archive
	"s3.endpoint": ConfigVarSpec{
		Help:         "S3 endpoint URL (empty uses the AWS default)",
		DefaultValue: "",
		EnvVar:       "HOOKRELAY_S3_ENDPOINT",
	},
	"s3.region": ConfigVarSpec{
		Help:         "S3 region",
		DefaultValue: "us-east-1",
		EnvVar:       "HOOKRELAY_S3_REGION",
	},
	"s3.access-key-id": ConfigVarSpec{
		Help:         "S3 access key ID (empty uses the default credential chain)",
		DefaultValue: "",
		EnvVar:       "HOOKRELAY_S3_ACCESS_KEY_ID",
	},
	"s3.secret-access-key": ConfigVarSpec{
		Help:         "S3 secret access key",
		DefaultValue: "",
		EnvVar:       "HOOKRELAY_S3_SECRET_ACCESS_KEY",
	},
	"s3.bucket": ConfigVarSpec{
		Help:         "S3 bucket for CSV exports",
		DefaultValue: "",
		EnvVar:       "HOOKRELAY_S3_BUCKET",
	},
}

// Config is the typed server configuration.
type Config struct {
	DBPath          string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	HTTPPort     int
	HTTPSPort    int
	MaxBodyBytes int64
	APIPort      int

	TLSCertFile string
	TLSKeyFile  string
	ACMEDomains []string
	ACMEEmail   string
	ACMEStaging bool

	Relay RelayConfig
	S3    S3Config
}

// RelayConfig configures the relay gate.
type RelayConfig struct {
	Upstreams    []string
	PathTemplate string
	EventSuffix  string
	OriginName   string
	MaxInFlight  int
	Timeout      time.Duration
}

// S3Config configures the CSV archive target.
type S3Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
}

// Load returns the running configuration as a Config.
func Load() *Config {
	return &Config{
		DBPath:          Spec.GetString("db"),
		LogLevel:        Spec.GetString("log-level"),
		LogFormat:       Spec.GetString("log-format"),
		ShutdownTimeout: seconds("shutdown-timeout-seconds"),
		HTTPPort:        Spec.GetInt("capture.port"),
		HTTPSPort:       Spec.GetInt("capture.https-port"),
		MaxBodyBytes:    int64(Spec.GetInt("capture.max-body-bytes")),
		APIPort:         Spec.GetInt("api.port"),
		TLSCertFile:     Spec.GetString("tls.cert"),
		TLSKeyFile:      Spec.GetString("tls.key"),
		ACMEDomains:     Spec.GetStringSlice("acme.domains"),
		ACMEEmail:       Spec.GetString("acme.email"),
		ACMEStaging:     Spec.GetBool("acme.staging"),
		Relay: RelayConfig{
			Upstreams:    Spec.GetStringSlice("relay.upstreams"),
			PathTemplate: Spec.GetString("relay.path-template"),
			EventSuffix:  Spec.GetString("relay.event-suffix"),
			OriginName:   Spec.GetString("relay.origin-name"),
			MaxInFlight:  Spec.GetInt("relay.max-in-flight"),
			Timeout:      seconds("relay.timeout-seconds"),
		},
		S3: S3Config{
			Endpoint:        Spec.GetString("s3.endpoint"),
			Region:          Spec.GetString("s3.region"),
			AccessKeyID:     Spec.GetString("s3.access-key-id"),
			SecretAccessKey: Spec.GetString("s3.secret-access-key"),
			Bucket:          Spec.GetString("s3.bucket"),
		},
	}
}

func seconds(key string) time.Duration {
	return time.Duration(Spec.GetInt(key)) * time.Second
}

// Validate checks the running configuration.
func Validate() error {
	logLevel := Spec.GetString("log-level")
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(logLevel)] {
		return fmt.Errorf("invalid log-level: %s (must be debug|info|warn|error)", logLevel)
	}

	logFormat := Spec.GetString("log-format")
	if logFormat != "json" && logFormat != "console" {
		return fmt.Errorf("invalid log-format: %s (must be json|console)", logFormat)
	}

	for _, key := range []string{"capture.port", "api.port"} {
		if port := Spec.GetInt(key); port <= 0 || port > 65535 {
			return fmt.Errorf("%s must be between 1 and 65535, got %d", key, port)
		}
	}
	if port := Spec.GetInt("capture.https-port"); port < 0 || port > 65535 {
		return fmt.Errorf("capture.https-port must be between 0 and 65535, got %d", port)
	}

	for _, key := range []string{
		"capture.max-body-bytes",
		"relay.max-in-flight",
		"relay.timeout-seconds",
		"shutdown-timeout-seconds",
	} {
		if v := Spec.GetInt(key); v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", key, v)
		}
	}

	if (Spec.GetString("tls.cert") == "") != (Spec.GetString("tls.key") == "") {
		return fmt.Errorf("tls.cert and tls.key must be set together")
	}
	if len(Spec.GetStringSlice("acme.domains")) > 0 && Spec.GetInt("capture.https-port") == 0 {
		return fmt.Errorf("acme.domains requires capture.https-port")
	}

	if tmpl := Spec.GetString("relay.path-template"); !strings.HasPrefix(tmpl, "/") {
		return fmt.Errorf("relay.path-template must start with /, got %q", tmpl)
	}
	for _, upstream := range Spec.GetStringSlice("relay.upstreams") {
		u, err := url.Parse(upstream)
		if err != nil {
			return fmt.Errorf("invalid relay upstream %q: %w", upstream, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("relay upstream %q must be an absolute http(s) URL", upstream)
		}
	}

	return nil
}
