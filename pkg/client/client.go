// Package client is the HTTP transport that entity schemas use to reach a
// JSON REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"strings"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/diwise/restmodel/pkg/model"
	"github.com/diwise/restmodel/pkg/model/errors"
	"github.com/diwise/restmodel/pkg/model/params"
)

const (
	TraceAttributePath      string = "http.path"
	TraceAttributeRequestID string = "request-id"
	TraceAttributeTenant    string = "tenant"

	RequestIDHeader string = "X-Request-ID"
	TenantHeader    string = "X-Tenant"
)

var tracer = otel.Tracer("restmodel-client")

var _ model.Transport = (*Client)(nil)

type Client struct {
	baseURL    string
	tenant     string
	headers    http.Header
	debug      bool
	httpClient *http.Client
}

func Debug(enabled string) func(*Client) {
	return func(c *Client) {
		c.debug = (enabled == "true")
	}
}

func Tenant(tenant string) func(*Client) {
	return func(c *Client) {
		c.tenant = tenant
	}
}

// Header adds a header that is sent with every request.
func Header(key, value string) func(*Client) {
	return func(c *Client) {
		c.headers.Add(key, value)
	}
}

// WithHTTPClient replaces the default client. Its transport is used as is.
func WithHTTPClient(httpClient *http.Client) func(*Client) {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func New(baseURL string, options ...func(*Client)) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		headers: http.Header{},
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}

	for _, option := range options {
		option(c)
	}

	return c
}

// Get requests path with p encoded in the query string and returns the decoded
// JSON body.
func (c *Client) Get(ctx context.Context, path string, p params.Params) (any, error) {
	var err error

	requestID := uuid.NewString()

	ctx, span := tracer.Start(ctx, "get",
		trace.WithAttributes(attribute.String(TraceAttributePath, path)),
		trace.WithAttributes(attribute.String(TraceAttributeRequestID, requestID)),
		trace.WithAttributes(attribute.String(TraceAttributeTenant, c.tenant)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	endpoint := c.endpoint(path)
	if query := p.Values().Encode(); query != "" {
		separator := "?"
		if strings.Contains(endpoint, "?") {
			separator = "&"
		}
		endpoint = endpoint + separator + query
	}

	response, responseBody, err := c.call(ctx, http.MethodGet, endpoint, requestID, nil)
	if err != nil {
		return nil, err
	}

	result, err := decodeResponse(response, responseBody)
	return result, err
}

// Post sends body as a JSON document to path and returns the decoded JSON
// response.
func (c *Client) Post(ctx context.Context, path string, body params.Params) (any, error) {
	var err error

	requestID := uuid.NewString()

	ctx, span := tracer.Start(ctx, "post",
		trace.WithAttributes(attribute.String(TraceAttributePath, path)),
		trace.WithAttributes(attribute.String(TraceAttributeRequestID, requestID)),
		trace.WithAttributes(attribute.String(TraceAttributeTenant, c.tenant)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	b, err := json.Marshal(body)
	if err != nil {
		err = fmt.Errorf("failed to marshal request body: %s (%w)", err.Error(), errors.ErrInternal)
		return nil, err
	}

	response, responseBody, err := c.call(ctx, http.MethodPost, c.endpoint(path), requestID, bytes.NewBuffer(b))
	if err != nil {
		return nil, err
	}

	result, err := decodeResponse(response, responseBody)
	return result, err
}

func (c *Client) endpoint(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return c.baseURL + path
}

func (c *Client) call(ctx context.Context, method, endpoint, requestID string, body io.Reader) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %s (%w)", err.Error(), errors.ErrInternal)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.tenant != "" {
		req.Header.Set(TenantHeader, c.tenant)
	}

	for header, headerValue := range c.headers {
		for _, val := range headerValue {
			req.Header.Add(header, val)
		}
	}

	log := logging.GetFromContext(ctx)
	log.Debug("sending request", "method", method, "url", endpoint, "request_id", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to send request: %s (%w)", err.Error(), errors.ErrRequest)
	}

	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %s (%w)", err.Error(), errors.ErrBadResponse)
	}

	if c.debug {
		if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode != http.StatusNotFound {
			reqbytes, _ := httputil.DumpRequest(req, false)
			respbytes, _ := httputil.DumpResponse(resp, false)

			log.Error("request failed", "request", string(reqbytes), "response", string(respbytes))
		}
	}

	return resp, respBody, nil
}

func decodeResponse(response *http.Response, responseBody []byte) (any, error) {
	contentType := response.Header.Get("Content-Type")

	if response.StatusCode >= http.StatusBadRequest {
		return nil, errors.NewErrorFromResponse(response.StatusCode, contentType, responseBody)
	}

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return nil, errors.StatusError{Code: response.StatusCode}
	}

	if len(bytes.TrimSpace(responseBody)) == 0 {
		return nil, nil
	}

	var result any
	if err := json.Unmarshal(responseBody, &result); err != nil {
		if len(responseBody) < 1000 {
			return nil, errors.NewBadResponseError(fmt.Sprintf("unmarshaling of %s failed with err %s", string(responseBody), err.Error()))
		}
		return nil, errors.NewBadResponseError(fmt.Sprintf("unmarshaling failed with err %s", err.Error()))
	}

	return result, nil
}
