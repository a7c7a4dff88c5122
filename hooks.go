package connman

import (
	"net/http"
	"time"
)

// RequestInfo is the immutable snapshot handed to observers before dispatch.
// Headers are a clone; mutating them has no effect on the request.
type RequestInfo struct {
	RequestID   string
	Method      string
	URL         string
	Destination string
	Headers     http.Header
	Timestamp   time.Time
}

// ResponseInfo is the snapshot handed to observers after a response.
type ResponseInfo struct {
	Request    RequestInfo
	StatusCode int
	Headers    http.Header
	Attempts   int
	Duration   time.Duration
}

// ErrorInfo is the snapshot handed to observers when a dispatch fails.
type ErrorInfo struct {
	Request  RequestInfo
	Err      error
	Attempts int
	Duration time.Duration
}

// Observer receives notifications at the three fixed extension points of a
// dispatch. Observers run in registration order; a panic or slow observer
// never fails or aborts the underlying request.
type Observer interface {
	OnRequest(info RequestInfo)
	OnResponse(info ResponseInfo)
	OnError(info ErrorInfo)
}

// ObserverFuncs adapts plain functions to the Observer interface. Nil fields
// are skipped.
type ObserverFuncs struct {
	Request  func(info RequestInfo)
	Response func(info ResponseInfo)
	Error    func(info ErrorInfo)
}

// OnRequest implements Observer.
func (o ObserverFuncs) OnRequest(info RequestInfo) {
	if o.Request != nil {
		o.Request(info)
	}
}

// OnResponse implements Observer.
func (o ObserverFuncs) OnResponse(info ResponseInfo) {
	if o.Response != nil {
		o.Response(info)
	}
}

// OnError implements Observer.
func (o ObserverFuncs) OnError(info ErrorInfo) {
	if o.Error != nil {
		o.Error(info)
	}
}

func (c *Client) notifyRequest(info RequestInfo) {
	for _, obs := range c.observers {
		c.safeNotify(func() { obs.OnRequest(info) })
	}
}

func (c *Client) notifyResponse(info ResponseInfo) {
	for _, obs := range c.observers {
		c.safeNotify(func() { obs.OnResponse(info) })
	}
}

func (c *Client) notifyError(info ErrorInfo) {
	for _, obs := range c.observers {
		c.safeNotify(func() { obs.OnError(info) })
	}
}

// safeNotify runs one observer callback, swallowing panics so hook failures
// stay isolated from the primary request.
func (c *Client) safeNotify(fn func()) {
	defer func() {
		if r := recover(); r != nil && c.logger != nil {
			c.logger.Error("Observer panicked", "panic", r)
		}
	}()
	fn()
}

// redactedHeaders returns a clone of h with credential-bearing values masked,
// for safe logging and observer snapshots.
func redactedHeaders(h http.Header) http.Header {
	if h == nil {
		return nil
	}
	clone := h.Clone()
	for name := range clone {
		if isSensitiveHeader(name) {
			clone.Set(name, "[REDACTED]")
		}
	}
	return clone
}

func isSensitiveHeader(name string) bool {
	switch http.CanonicalHeaderKey(name) {
	case "Authorization", "Proxy-Authorization", "X-Api-Key", "X-Auth-Token", "Cookie", "Set-Cookie":
		return true
	default:
		return false
	}
}
