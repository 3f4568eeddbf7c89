package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/draftea/order-fulfillment/shared/resilience"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// HTTPClient is a traced JSON client for downstream services. It never sets a
// client timeout; every request is bounded by its context.
type HTTPClient struct {
	name    string
	baseURL string
	client  *http.Client
	tracer  trace.Tracer
}

func NewHTTPClient(name, baseURL string) *HTTPClient {
	return &HTTPClient{
		name:    name,
		baseURL: baseURL,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
			},
		},
		tracer: otel.Tracer("order-fulfillment/httpclient"),
	}
}

type errorBody struct {
	Reason string `json:"reason"`
	Error  string `json:"error"`
}

// Do sends body as JSON and decodes a 2xx response into out. 4xx responses
// are business rejections, 5xx, 408 and 429 are transient.
func (c *HTTPClient) Do(ctx context.Context, method, path string, body, out interface{}) error {
	ctx, span := c.tracer.Start(ctx, fmt.Sprintf("call-%s", c.name), trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to marshal request")
		}
		reader = bytes.NewReader(payload)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")

	span.SetAttributes(
		attribute.String("http.url", url),
		attribute.String("http.method", method),
	)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return resilience.Transient(errors.Wrapf(err, "%s unreachable", c.name))
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resilience.Transient(errors.Wrapf(err, "failed to decode %s response", c.name))
		}
		return nil

	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		err := errors.Errorf("%s returned status %s", c.name, resp.Status)
		span.SetStatus(codes.Error, err.Error())
		return resilience.Transient(err)
	}

	var eb errorBody
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&eb)
	reason := eb.Reason
	if reason == "" {
		reason = eb.Error
	}
	if reason == "" {
		reason = resp.Status
	}

	span.SetStatus(codes.Error, reason)
	return resilience.Reject(reason)
}
