package connman

import (
	"context"
	"io"
	"net/http"
	"time"
)

// Client is a resilient HTTP connection manager. Every convenience method
// funnels into Dispatch, which runs the resilience pipeline around one
// logical request: endpoint config resolution, rate limit admission, circuit
// breaker admission, then a bounded retry loop over the connection pool. It
// is safe for concurrent use; limiter, breaker and pool state is scoped per
// destination so unrelated destinations never contend.
type Client struct {
	config          Config
	backoffStrategy BackoffStrategy

	resolver *endpointResolver
	pool     *ConnectionPool
	limiters *rateLimiterRegistry
	breakers *breakerRegistry
	auth     *authRegistry

	observers         []Observer
	blockingRateLimit bool

	metrics *MetricsCollector
	debug   *DebugConfig
	logger  Logger

	// construction-only, consumed by New
	initialOverrides map[string]EndpointConfig
	transport        *http.Transport

	validationError error
}

// New constructs a Client from the provided functional options. A best effort
// validation is performed; call IsValid / ValidationError for errors.
func New(options ...Option) *Client {
	c := &Client{
		config:           DefaultConfig(),
		backoffStrategy:  ExponentialBackoff,
		limiters:         newRateLimiterRegistry(),
		breakers:         newBreakerRegistry(),
		auth:             newAuthRegistry(nil),
		debug:            DefaultDebugConfig(),
		initialOverrides: make(map[string]EndpointConfig),
	}

	for _, option := range options {
		option(c)
	}

	c.resolver = newEndpointResolver(c.config, c.initialOverrides)
	c.initialOverrides = nil

	if c.pool == nil {
		poolConfig := PoolConfig{
			Connections:    c.config.PoolConnections,
			MaxSize:        c.config.PoolMaxSize,
			AcquireTimeout: c.config.PoolAcquireTimeout,
			ConnectTimeout: c.config.ConnectTimeout,
		}
		if c.transport != nil {
			c.pool = NewConnectionPoolWithTransport(poolConfig, c.transport)
		} else {
			c.pool = NewConnectionPool(poolConfig)
		}
	}

	if err := c.ValidateConfiguration(); err != nil {
		c.validationError = err
	}

	return c
}

// Close releases the connection pool and its idle connections. In-flight
// requests finish normally; further dispatches fail.
func (c *Client) Close() {
	c.pool.Close()
}

// Get performs an HTTP GET through the resilience pipeline.
func (c *Client) Get(ctx context.Context, url string, opts *RequestOptions) (*http.Response, error) {
	return c.Dispatch(ctx, http.MethodGet, url, opts)
}

// Post performs an HTTP POST through the resilience pipeline.
func (c *Client) Post(ctx context.Context, url string, opts *RequestOptions) (*http.Response, error) {
	return c.Dispatch(ctx, http.MethodPost, url, opts)
}

// Put performs an HTTP PUT through the resilience pipeline.
func (c *Client) Put(ctx context.Context, url string, opts *RequestOptions) (*http.Response, error) {
	return c.Dispatch(ctx, http.MethodPut, url, opts)
}

// Delete performs an HTTP DELETE through the resilience pipeline.
func (c *Client) Delete(ctx context.Context, url string, opts *RequestOptions) (*http.Response, error) {
	return c.Dispatch(ctx, http.MethodDelete, url, opts)
}

// Patch performs an HTTP PATCH through the resilience pipeline.
func (c *Client) Patch(ctx context.Context, url string, opts *RequestOptions) (*http.Response, error) {
	return c.Dispatch(ctx, http.MethodPatch, url, opts)
}

// Head performs an HTTP HEAD through the resilience pipeline.
func (c *Client) Head(ctx context.Context, url string, opts *RequestOptions) (*http.Response, error) {
	return c.Dispatch(ctx, http.MethodHead, url, opts)
}

// Options performs an HTTP OPTIONS through the resilience pipeline.
func (c *Client) Options(ctx context.Context, url string, opts *RequestOptions) (*http.Response, error) {
	return c.Dispatch(ctx, http.MethodOptions, url, opts)
}

// Dispatch runs one logical request through the full resilience pipeline and
// returns the response or one of the package's typed errors. Terminal HTTP
// failures (4xx outside the retryable set) return both the response and a
// Transport error so callers can still read the body.
func (c *Client) Dispatch(ctx context.Context, method, url string, opts *RequestOptions) (*http.Response, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}
	req, err := buildRequest(ctx, method, url, opts)
	if err != nil {
		return nil, err
	}
	return c.do(req, opts)
}

// Do executes a prepared *http.Request through the resilience pipeline. The
// request's GetBody must be set for bodies that need replay across retries
// (http.NewRequest does this for byte and string readers).
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.do(req, &RequestOptions{})
}

func (c *Client) do(req *http.Request, opts *RequestOptions) (*http.Response, error) {
	start := time.Now()

	if req.URL == nil || !req.URL.IsAbs() || req.URL.Host == "" {
		return nil, &ClientError{
			Type:    ErrorTypeInvalidRequest,
			Message: "request URL must be absolute with a host",
			Method:  req.Method,
		}
	}

	eff, destination := c.resolver.Resolve(req.URL)
	if opts.Override != nil {
		applyOverride(&eff, *opts.Override)
	}
	if opts.Timeout > 0 {
		eff.Timeout = opts.Timeout
	}

	var requestID string
	if c.debugEnabled() && c.debug.RequestIDGen != nil {
		requestID = c.debug.RequestIDGen()
	}

	c.applyAuth(req, opts)

	info := RequestInfo{
		RequestID:   requestID,
		Method:      req.Method,
		URL:         req.URL.String(),
		Destination: destination,
		Headers:     redactedHeaders(req.Header),
		Timestamp:   start,
	}

	if c.debugEnabled() && c.debug.LogRequests {
		c.logger.Debug("Starting request", "requestID", requestID, "method", req.Method, "url", req.URL.String(), "destination", destination)
	}

	c.metrics.RecordRequestStart(req.Method, destination)
	defer c.metrics.RecordRequestEnd(req.Method, destination)

	c.notifyRequest(info)

	if err := c.admitRateLimit(req.Context(), info, eff); err != nil {
		c.notifyError(ErrorInfo{Request: info, Err: err, Duration: time.Since(start)})
		return nil, err
	}

	breaker := c.breakers.breaker(destination, CircuitBreakerConfig{
		FailureThreshold: eff.FailureThreshold,
		RecoveryTimeout:  eff.RecoveryTimeout,
	})
	if !breaker.Allow() {
		if c.debugEnabled() && c.debug.LogCircuit {
			c.logger.Warn("Circuit breaker open", "requestID", requestID, "destination", destination)
		}
		c.metrics.RecordError(ErrorTypeCircuitOpen, req.Method, destination)
		err := c.newError(ErrorTypeCircuitOpen, "circuit breaker is open", nil, info, 0, time.Since(start))
		c.notifyError(ErrorInfo{Request: info, Err: err, Duration: time.Since(start)})
		return nil, err
	}

	resp, attempts, err := c.retryLoop(req, opts, eff, info)

	breakerSuccess := err == nil || !isBreakerFailure(err)
	breaker.Record(breakerSuccess)
	state, _ := breaker.Snapshot()
	c.metrics.RecordCircuitBreakerState(destination, state)
	if c.debugEnabled() && c.debug.LogCircuit && !breakerSuccess {
		c.logger.Warn("Circuit breaker failure recorded", "requestID", requestID, "destination", destination, "state", state.String())
	}

	duration := time.Since(start)
	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
	}
	c.metrics.RecordRequest(req.Method, destination, statusCode, duration)

	if err != nil {
		c.metrics.RecordError(errorTypeOf(err), req.Method, destination)
		c.notifyError(ErrorInfo{Request: info, Err: err, Attempts: attempts, Duration: duration})
		return resp, err
	}

	c.notifyResponse(ResponseInfo{
		Request:    info,
		StatusCode: resp.StatusCode,
		Headers:    resp.Header.Clone(),
		Attempts:   attempts,
		Duration:   duration,
	})
	return resp, nil
}

// retryLoop sends attempts through the connection pool until the outcome is
// terminal or retries are exhausted. Backoff sleeps suspend only this call.
func (c *Client) retryLoop(req *http.Request, opts *RequestOptions, eff EffectiveConfig, info RequestInfo) (*http.Response, int, error) {
	policy := newRetryPolicy(eff, c.backoffStrategy)
	start := info.Timestamp
	destination := info.Destination

	var lastStatus int
	var lastErr error

	attempt := 0
	for {
		attempt++

		if attempt > 1 {
			if c.debugEnabled() && c.debug.LogRetries {
				c.logger.Info("Retry attempt", "requestID", info.RequestID, "attempt", attempt-1, "maxRetries", eff.MaxRetries, "destination", destination)
			}
			c.metrics.RecordRetry(req.Method, destination, attempt-1)
		}

		resp, err := c.sendAttempt(req, eff, destination)
		if err == nil && resp != nil {
			lastStatus = resp.StatusCode
		}
		lastErr = err

		if !policy.Retryable(resp, err) {
			if err == nil && resp != nil && resp.StatusCode >= 400 {
				terminalErr := c.newError(ErrorTypeTransport, "terminal HTTP status", nil, info, attempt, time.Since(start))
				terminalErr.StatusCode = resp.StatusCode
				terminalErr.MaxRetries = eff.MaxRetries
				return resp, attempt, terminalErr
			}
			if err != nil {
				// Unreachable today: transport errors are always retryable.
				transportErr := c.newError(ErrorTypeTransport, "transport failure", err, info, attempt, time.Since(start))
				return nil, attempt, transportErr
			}
			return resp, attempt, nil
		}

		// Retryable failure: compute the delay before discarding the
		// response, then free its connection slot.
		delay := policy.RetryDelay(attempt, resp)
		if resp != nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}

		if !policy.ShouldRetry(attempt) {
			exhausted := c.newError(ErrorTypeMaxRetries, "all retry attempts exhausted", lastErr, info, attempt, time.Since(start))
			exhausted.StatusCode = lastStatus
			exhausted.MaxRetries = eff.MaxRetries
			return nil, attempt, exhausted
		}

		if c.debugEnabled() && c.debug.LogRetries {
			c.logger.Info("Scheduling retry", "requestID", info.RequestID, "attempt", attempt, "backoff", delay, "destination", destination)
		}

		select {
		case <-req.Context().Done():
			cancelled := c.newError(ErrorTypeTransport, "request cancelled during backoff", req.Context().Err(), info, attempt, time.Since(start))
			cancelled.StatusCode = lastStatus
			return nil, attempt, cancelled
		case <-time.After(delay):
		}
	}
}

// sendAttempt runs one try: clone the request with a per-attempt deadline,
// replay the body, and send through the pool. The deadline is released when
// the response body is closed.
func (c *Client) sendAttempt(req *http.Request, eff EffectiveConfig, destination string) (*http.Response, error) {
	ctx := req.Context()
	cancel := context.CancelFunc(func() {})
	if eff.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, eff.Timeout)
	}

	clone := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			cancel()
			return nil, err
		}
		clone.Body = body
	}

	resp, err := c.pool.Send(destination, eff.PoolMaxSize, clone)
	if c.debugEnabled() && c.debug.LogPool {
		c.logger.Debug("Pool attempt finished", "destination", destination, "inUse", c.pool.InUse(destination))
	}
	c.metrics.RecordPoolInUse(destination, c.pool.InUse(destination))
	if err != nil {
		cancel()
		return nil, err
	}

	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// admitRateLimit consumes one token for the destination, blocking when the
// client is in blocking mode, rejecting immediately otherwise. Rejections are
// deterministic signals and are never retried internally.
func (c *Client) admitRateLimit(ctx context.Context, info RequestInfo, eff EffectiveConfig) error {
	if eff.RateLimitRequests <= 0 || eff.RateLimitPeriod <= 0 {
		return nil
	}
	destination := info.Destination

	if c.blockingRateLimit {
		if err := c.limiters.Wait(ctx, destination, eff.RateLimitRequests, eff.RateLimitPeriod); err != nil {
			c.metrics.RecordError(ErrorTypeRateLimit, info.Method, destination)
			return c.newError(ErrorTypeRateLimit, "rate limit wait aborted", err, info, 0, time.Since(info.Timestamp))
		}
	} else if !c.limiters.Allow(destination, eff.RateLimitRequests, eff.RateLimitPeriod) {
		if c.debugEnabled() && c.debug.LogRateLimit {
			c.logger.Warn("Rate limit exceeded", "requestID", info.RequestID, "destination", destination)
		}
		c.metrics.RecordError(ErrorTypeRateLimit, info.Method, destination)
		return c.newError(ErrorTypeRateLimit, "rate limit exceeded", nil, info, 0, time.Since(info.Timestamp))
	}

	c.metrics.RecordRateLimiterTokens(destination, c.limiters.Tokens(destination, eff.RateLimitRequests))
	return nil
}

// applyAuth injects credentials with request-level > endpoint > global
// precedence. Authenticators never overwrite headers already present.
func (c *Client) applyAuth(req *http.Request, opts *RequestOptions) {
	if opts.Auth != nil {
		opts.Auth.Apply(req)
	}
	if a := c.auth.resolve(req.URL.Host + req.URL.Path); a != nil {
		a.Apply(req)
	}
}

func (c *Client) newError(errorType, message string, cause error, info RequestInfo, attempt int, duration time.Duration) *ClientError {
	return &ClientError{
		Type:      errorType,
		Message:   message,
		Cause:     cause,
		RequestID: info.RequestID,
		Method:    info.Method,
		URL:       info.URL,
		Endpoint:  info.Destination,
		Attempt:   attempt,
		Timestamp: time.Now(),
		Duration:  duration,
	}
}

func (c *Client) debugEnabled() bool {
	return c.debug != nil && c.debug.Enabled && c.logger != nil
}

// isBreakerFailure reports whether an outcome counts against the circuit
// breaker. A delivered response, even a terminal 4xx, proves the destination
// is reachable; only exhausted retries (network errors or persistent 5xx)
// count as failures.
func isBreakerFailure(err error) bool {
	if clientErr, ok := err.(*ClientError); ok {
		return clientErr.Type == ErrorTypeMaxRetries
	}
	return err != nil
}

func errorTypeOf(err error) string {
	if clientErr, ok := err.(*ClientError); ok {
		return clientErr.Type
	}
	return ErrorTypeTransport
}

// cancelOnClose releases the attempt's deadline once the caller is done with
// the body, keeping the connection's read window open until then.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// AddEndpointConfig registers or replaces the override for pattern at
// runtime.
func (c *Client) AddEndpointConfig(pattern string, cfg EndpointConfig) {
	c.resolver.Add(pattern, cfg)
}

// RemoveEndpointConfig drops the override for pattern.
func (c *Client) RemoveEndpointConfig(pattern string) {
	c.resolver.Remove(pattern)
}

// EndpointConfigPatterns returns the registered override patterns, sorted.
func (c *Client) EndpointConfigPatterns() []string {
	return c.resolver.Patterns()
}

// SetAuth replaces the global default authenticator.
func (c *Client) SetAuth(a Authenticator) {
	c.auth.setGlobal(a)
}

// SetEndpointAuth registers an authenticator for destinations matching
// pattern, taking precedence over the global authenticator.
func (c *Client) SetEndpointAuth(pattern string, a Authenticator) {
	c.auth.setEndpoint(pattern, a)
}

// RemoveEndpointAuth drops the endpoint authenticator for pattern.
func (c *Client) RemoveEndpointAuth(pattern string) {
	c.auth.removeEndpoint(pattern)
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}
