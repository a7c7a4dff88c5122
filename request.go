package connman

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// FormFile is one file part of a multipart request body.
type FormFile struct {
	Field   string
	Name    string
	Content io.Reader
}

// RequestOptions is the per-call configuration bag. At most one body form
// (Body, JSON, Form, Files) may be set; Files may be combined with Form
// fields in the same multipart payload. Override fields mirror
// EndpointConfig and are merged over the resolved endpoint configuration for
// this call only.
type RequestOptions struct {
	Timeout time.Duration
	Headers http.Header
	Query   url.Values

	Body  io.Reader
	JSON  interface{}
	Form  url.Values
	Files []FormFile

	Auth     Authenticator
	Override *EndpointConfig
}

var supportedMethods = map[string]struct{}{
	http.MethodGet:     {},
	http.MethodPost:    {},
	http.MethodPut:     {},
	http.MethodDelete:  {},
	http.MethodPatch:   {},
	http.MethodHead:    {},
	http.MethodOptions: {},
}

// buildRequest validates method and URL, encodes the body form, and returns
// a request whose GetBody is replayable for retries. All failures here are
// InvalidRequest errors raised before any limiter, breaker or pool state is
// touched.
func buildRequest(ctx context.Context, method, rawURL string, opts *RequestOptions) (*http.Request, error) {
	method = strings.ToUpper(method)
	if _, ok := supportedMethods[method]; !ok {
		return nil, &ClientError{
			Type:    ErrorTypeInvalidRequest,
			Message: fmt.Sprintf("unsupported method %q", method),
			Method:  method,
			URL:     rawURL,
		}
	}

	u, err := parseRequestURL(rawURL)
	if err != nil {
		return nil, err
	}

	if len(opts.Query) > 0 {
		q := u.Query()
		for key, values := range opts.Query {
			for _, value := range values {
				q.Add(key, value)
			}
		}
		u.RawQuery = q.Encode()
	}

	body, contentType, err := encodeBody(opts)
	if err != nil {
		return nil, &ClientError{
			Type:    ErrorTypeInvalidRequest,
			Message: "encoding request body",
			Cause:   err,
			Method:  method,
			URL:     rawURL,
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, &ClientError{
			Type:    ErrorTypeInvalidRequest,
			Message: "building request",
			Cause:   err,
			Method:  method,
			URL:     rawURL,
		}
	}

	for key, values := range opts.Headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

// encodeBody turns the options' body form into a replayable reader and its
// content type.
func encodeBody(opts *RequestOptions) (io.Reader, string, error) {
	forms := 0
	if opts.Body != nil {
		forms++
	}
	if opts.JSON != nil {
		forms++
	}
	if len(opts.Files) > 0 {
		forms++
	} else if len(opts.Form) > 0 {
		forms++
	}
	if forms > 1 {
		return nil, "", fmt.Errorf("multiple body forms set")
	}

	switch {
	case len(opts.Files) > 0:
		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)
		for key, values := range opts.Form {
			for _, value := range values {
				if err := writer.WriteField(key, value); err != nil {
					return nil, "", err
				}
			}
		}
		for _, file := range opts.Files {
			part, err := writer.CreateFormFile(file.Field, file.Name)
			if err != nil {
				return nil, "", err
			}
			if _, err := io.Copy(part, file.Content); err != nil {
				return nil, "", err
			}
		}
		if err := writer.Close(); err != nil {
			return nil, "", err
		}
		return bytes.NewReader(buf.Bytes()), writer.FormDataContentType(), nil

	case opts.JSON != nil:
		data, err := json.Marshal(opts.JSON)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(data), "application/json", nil

	case len(opts.Form) > 0:
		return strings.NewReader(opts.Form.Encode()), "application/x-www-form-urlencoded", nil

	case opts.Body != nil:
		return opts.Body, "", nil
	}
	return nil, "", nil
}
