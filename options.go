package connman

import (
	"fmt"
	"net/http"
	"time"
)

// Option configures a Client at construction.
type Option func(*Client)

// WithConfig replaces the whole global default configuration.
func WithConfig(config Config) Option {
	return func(c *Client) {
		c.config = config
	}
}

// WithTimeout sets the default per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.config.Timeout = d
	}
}

// WithConnectTimeout sets the transport dial timeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.config.ConnectTimeout = d
	}
}

// WithMaxRetries sets the maximum number of retry attempts.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.config.MaxRetries = n
	}
}

// WithBackoffFactor sets the base delay; retry n waits factor * 2^(n-1).
func WithBackoffFactor(d time.Duration) Option {
	return func(c *Client) {
		c.config.BackoffFactor = d
	}
}

// WithMaxBackoff caps the computed backoff delay.
func WithMaxBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.config.MaxBackoff = d
	}
}

// WithJitter sets the jitter factor for backoff (0.0 to 1.0).
func WithJitter(f float64) Option {
	return func(c *Client) {
		if f < 0 {
			f = 0
		}
		if f > 1 {
			f = 1
		}
		c.config.BackoffJitter = f
	}
}

// WithBackoffStrategy selects the delay algorithm between retries.
func WithBackoffStrategy(strategy BackoffStrategy) Option {
	return func(c *Client) {
		c.backoffStrategy = strategy
	}
}

// WithRetryStatuses replaces the set of HTTP statuses considered retryable.
func WithRetryStatuses(statuses ...int) Option {
	return func(c *Client) {
		c.config.RetryStatuses = statuses
	}
}

// WithRateLimit sets the global token bucket quota: requests per period.
func WithRateLimit(requests int, period time.Duration) Option {
	return func(c *Client) {
		c.config.RateLimitRequests = requests
		c.config.RateLimitPeriod = period
	}
}

// WithBlockingRateLimit makes rate limit admission suspend the caller until a
// token frees or the context deadline elapses, instead of rejecting.
func WithBlockingRateLimit() Option {
	return func(c *Client) {
		c.blockingRateLimit = true
	}
}

// WithCircuitBreaker sets the failure threshold and recovery timeout applied
// to each destination's breaker.
func WithCircuitBreaker(failureThreshold int, recoveryTimeout time.Duration) Option {
	return func(c *Client) {
		c.config.FailureThreshold = failureThreshold
		c.config.RecoveryTimeout = recoveryTimeout
	}
}

// WithPool sizes the connection pool: connections is the number of warm
// destination pools, maxSize the hard per-destination bound.
func WithPool(connections, maxSize int) Option {
	return func(c *Client) {
		c.config.PoolConnections = connections
		c.config.PoolMaxSize = maxSize
	}
}

// WithPoolAcquireTimeout bounds how long a dispatch blocks waiting for a
// connection slot on a saturated destination.
func WithPoolAcquireTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.config.PoolAcquireTimeout = d
	}
}

// WithTransport supplies a custom transport; pool bounds still apply.
func WithTransport(transport *http.Transport) Option {
	return func(c *Client) {
		c.transport = transport
	}
}

// WithEndpointConfig registers a per-destination override at construction.
func WithEndpointConfig(pattern string, cfg EndpointConfig) Option {
	return func(c *Client) {
		c.initialOverrides[pattern] = cfg
	}
}

// WithEndpointConfigs registers several per-destination overrides at once.
func WithEndpointConfigs(overrides map[string]EndpointConfig) Option {
	return func(c *Client) {
		for pattern, cfg := range overrides {
			c.initialOverrides[pattern] = cfg
		}
	}
}

// WithAuth sets the global default authenticator.
func WithAuth(a Authenticator) Option {
	return func(c *Client) {
		c.auth.setGlobal(a)
	}
}

// WithEndpointAuth sets an authenticator for destinations matching pattern.
func WithEndpointAuth(pattern string, a Authenticator) Option {
	return func(c *Client) {
		c.auth.setEndpoint(pattern, a)
	}
}

// WithObserver appends observers invoked at the three extension points.
func WithObserver(observers ...Observer) Option {
	return func(c *Client) {
		c.observers = append(c.observers, observers...)
	}
}

// WithMetrics enables Prometheus metrics on the default registerer.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithLogger sets a custom logger for debug output.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDebug enables debug logging with the default configuration.
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets a custom debug configuration.
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithSimpleLogger enables debug logging with a console logger.
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs.
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// ValidateConfiguration validates the client configuration and returns an
// error if invalid.
func (c *Client) ValidateConfiguration() error {
	var problems []string

	problems = append(problems, c.validateRetryConfig()...)
	problems = append(problems, c.validateRateLimitConfig()...)
	problems = append(problems, c.validateCircuitBreakerConfig()...)
	problems = append(problems, c.validatePoolConfig()...)
	problems = append(problems, c.validateDebugConfig()...)
	problems = append(problems, c.validateObserverConfig()...)

	if len(problems) > 0 {
		return &ClientError{
			Type:    ErrorTypeValidation,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %v", problems),
		}
	}
	return nil
}

func (c *Client) validateRetryConfig() []string {
	var problems []string

	if c.config.MaxRetries < 0 {
		problems = append(problems, "MaxRetries must be non-negative")
	}
	if c.config.BackoffFactor <= 0 {
		problems = append(problems, "BackoffFactor must be positive")
	}
	if c.config.MaxBackoff < c.config.BackoffFactor {
		problems = append(problems, "MaxBackoff must be greater than or equal to BackoffFactor")
	}
	if c.config.BackoffJitter < 0 || c.config.BackoffJitter > 1 {
		problems = append(problems, "BackoffJitter must be between 0 and 1")
	}
	if c.config.Timeout <= 0 {
		problems = append(problems, "Timeout must be positive")
	}
	for _, status := range c.config.RetryStatuses {
		if status < 100 || status > 599 {
			problems = append(problems, fmt.Sprintf("retry status %d is not a valid HTTP status", status))
		}
	}
	return problems
}

func (c *Client) validateRateLimitConfig() []string {
	var problems []string

	if c.config.RateLimitRequests < 0 {
		problems = append(problems, "RateLimitRequests must be non-negative")
	}
	if c.config.RateLimitRequests > 0 && c.config.RateLimitPeriod <= 0 {
		problems = append(problems, "RateLimitPeriod must be positive when rate limiting is enabled")
	}
	return problems
}

func (c *Client) validateCircuitBreakerConfig() []string {
	var problems []string

	if c.config.FailureThreshold <= 0 {
		problems = append(problems, "FailureThreshold must be positive")
	}
	if c.config.RecoveryTimeout <= 0 {
		problems = append(problems, "RecoveryTimeout must be positive")
	}
	return problems
}

func (c *Client) validatePoolConfig() []string {
	var problems []string

	if c.config.PoolConnections <= 0 {
		problems = append(problems, "PoolConnections must be positive")
	}
	if c.config.PoolMaxSize <= 0 {
		problems = append(problems, "PoolMaxSize must be positive")
	}
	if c.config.PoolAcquireTimeout <= 0 {
		problems = append(problems, "PoolAcquireTimeout must be positive")
	}
	return problems
}

func (c *Client) validateDebugConfig() []string {
	var problems []string

	if c.debug != nil && c.debug.Enabled {
		if c.debug.RequestIDGen == nil {
			problems = append(problems, "debug RequestIDGen must be set when debug is enabled")
		}
		if c.logger == nil {
			problems = append(problems, "logger must be set when debug is enabled")
		}
	}
	return problems
}

func (c *Client) validateObserverConfig() []string {
	var problems []string

	for i, observer := range c.observers {
		if observer == nil {
			problems = append(problems, fmt.Sprintf("observer[%d] cannot be nil", i))
		}
	}
	return problems
}
