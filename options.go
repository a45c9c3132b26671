package viewstream

import (
	"crypto/tls"
	"time"

	"github.com/viewstream/viewstream-go/internal/config"
)

type ConnOption func(c *config.Config)

// WithServerHostname sets up the server hostname. Mandatory.
func WithServerHostname(host string) ConnOption {
	return func(c *config.Config) {
		c.Host = host
	}
}

// WithPort sets up the server port. Defaults to 8092 (18092 with TLS).
func WithPort(port int) ConnOption {
	return func(c *config.Config) {
		c.Port = port
	}
}

// WithBucket sets up the bucket queried by this client. Defaults to "default".
func WithBucket(bucket string) ConnOption {
	return func(c *config.Config) {
		c.Bucket = bucket
	}
}

// WithCredentials sets up basic authentication against the store.
func WithCredentials(username, password string) ConnOption {
	return func(c *config.Config) {
		c.Username = username
		c.Password = password
	}
}

// WithTLS enables TLS with the given configuration and switches the
// default port accordingly.
func WithTLS(tlsConfig *tls.Config) ConnOption {
	return func(c *config.Config) {
		c.Protocol = "https"
		c.TLSConfig = tlsConfig
		if c.Port == 8092 {
			c.Port = 18092
		}
	}
}

// WithBatchThreshold overrides the number of rows buffered per query before
// an intermediate flush to the row handler. Defaults to 20.
func WithBatchThreshold(threshold int) ConnOption {
	return func(c *config.Config) {
		if threshold > 0 {
			c.BatchThreshold = threshold
		}
	}
}

// WithQueryTimeout adds a timeout for the entire view request.
// Defaults to no timeout.
func WithQueryTimeout(timeout time.Duration) ConnOption {
	return func(c *config.Config) {
		c.QueryTimeout = timeout
	}
}

// WithRetries sets the max number of transport retries. Defaults to 4.
func WithRetries(retries int) ConnOption {
	return func(c *config.Config) {
		c.RetryMax = retries
	}
}

// WithUserAgentEntry is used to identify partners.
// Set as a string with format <isv-name+product-name>.
func WithUserAgentEntry(entry string) ConnOption {
	return func(c *config.Config) {
		c.UserAgentEntry = entry
	}
}
