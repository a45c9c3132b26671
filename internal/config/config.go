package config

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/viewstream/viewstream-go/internal/verr"
)

type Config struct {
	Protocol string // http or https
	Host     string
	Port     int
	Bucket   string

	Username string
	Password string

	TLSConfig *tls.Config // nil disables custom TLS settings

	// Rows accumulated per query before an intermediate flush to the
	// row handler.
	BatchThreshold int

	// Overall timeout for a single view request. Zero means no timeout.
	QueryTimeout   time.Duration
	ConnectTimeout time.Duration

	// Max retries for the underlying HTTP transport.
	RetryMax int

	UserAgentEntry string
	ClientName     string
	ClientVersion  string
}

func WithDefaults() *Config {
	return &Config{
		Protocol:       "http",
		Port:           8092,
		Bucket:         "default",
		BatchThreshold: 20,
		ConnectTimeout: 30 * time.Second,
		RetryMax:       4,
		ClientName:     "goviewstreamclient", //important. Do not change
		ClientVersion:  "0.9.0",
	}
}

// ParseDSN constructs a config from a DSN string of the form:
//
//	http(s)://[user:password@]host[:port]/bucket[?param=value]
func ParseDSN(dsn string) (*Config, error) {
	parsedURL, err := url.Parse(dsn)
	if err != nil {
		return nil, errors.Wrap(err, verr.ErrInvalidDSNFormat)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, errors.New(verr.ErrInvalidDSNFormat)
	}
	if parsedURL.Hostname() == "" {
		return nil, errors.New(verr.ErrInvalidDSNFormat)
	}

	cfg := WithDefaults()
	cfg.Protocol = parsedURL.Scheme
	cfg.Host = parsedURL.Hostname()

	if parsedURL.Port() != "" {
		port, err := strconv.Atoi(parsedURL.Port())
		if err != nil {
			return nil, errors.New(verr.ErrInvalidDSNPort)
		}
		cfg.Port = port
	} else if cfg.Protocol == "https" {
		cfg.Port = 18092
	}

	if parsedURL.User != nil {
		cfg.Username = parsedURL.User.Username()
		cfg.Password, _ = parsedURL.User.Password()
	}

	if bucket := strings.Trim(parsedURL.Path, "/"); bucket != "" {
		cfg.Bucket = bucket
	}

	params := parsedURL.Query()
	if params.Has("timeout") {
		timeout, err := strconv.Atoi(params.Get("timeout"))
		if err != nil {
			return nil, errors.New(verr.ErrInvalidDSNTimeout)
		}
		cfg.QueryTimeout = time.Duration(timeout) * time.Second
	}
	if params.Has("batchThreshold") {
		threshold, err := strconv.Atoi(params.Get("batchThreshold"))
		if err != nil || threshold < 1 {
			return nil, errors.New(verr.ErrInvalidDSNBatch)
		}
		cfg.BatchThreshold = threshold
	}
	if params.Has("retries") {
		retries, err := strconv.Atoi(params.Get("retries"))
		if err != nil {
			return nil, errors.Wrap(err, verr.ErrInvalidDSNFormat)
		}
		cfg.RetryMax = retries
	}
	if params.Has("userAgentEntry") {
		cfg.UserAgentEntry = params.Get("userAgentEntry")
	}

	return cfg, nil
}

// BaseURL returns the REST endpoint prefix for the configured store.
func (c *Config) BaseURL() string {
	return fmt.Sprintf("%s://%s:%d", c.Protocol, c.Host, c.Port)
}

func (c *Config) UserAgent() string {
	ua := c.ClientName + "/" + c.ClientVersion
	if c.UserAgentEntry != "" {
		ua = ua + " (" + c.UserAgentEntry + ")"
	}
	return ua
}

func (c *Config) DeepCopy() *Config {
	if c == nil {
		return nil
	}

	return &Config{
		Protocol:       c.Protocol,
		Host:           c.Host,
		Port:           c.Port,
		Bucket:         c.Bucket,
		Username:       c.Username,
		Password:       c.Password,
		TLSConfig:      c.TLSConfig.Clone(),
		BatchThreshold: c.BatchThreshold,
		QueryTimeout:   c.QueryTimeout,
		ConnectTimeout: c.ConnectTimeout,
		RetryMax:       c.RetryMax,
		UserAgentEntry: c.UserAgentEntry,
		ClientName:     c.ClientName,
		ClientVersion:  c.ClientVersion,
	}
}
