package predict

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/leaf-check/internal/logging"
	"github.com/example/leaf-check/internal/selection"
)

const (
	// FieldName is the multipart field the prediction endpoint reads.
	FieldName = "file"
	// DefaultTimeout bounds one prediction attempt end to end.
	DefaultTimeout = 60 * time.Second

	maxResponseBytes = 1 << 20
)

// Predictor exposes the subset of functionality the upload controller uses.
type Predictor interface {
	Predict(ctx context.Context, file selection.File) (*Result, error)
}

// Client posts images to the prediction endpoint. Every error it returns is
// a *Fault.
type Client struct {
	endpoint   string
	httpClient *http.Client
	timeout    time.Duration
	cache      *resultCache
	metrics    metrics
	logger     *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithCache serves repeated images from cache and stores new results for ttl.
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(c *Client) {
		if cache != nil {
			c.cache = newResultCache(cache, ttl, c.logger)
		}
	}
}

// NewClient builds a client for endpoint, which is normalized with
// ResolveEndpoint.
func NewClient(endpoint string, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		endpoint:   ResolveEndpoint(endpoint),
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		logger:     logger.Named("predict"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the resolved prediction URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Metrics summarizes every Predict call made so far.
func (c *Client) Metrics() MetricsSummary {
	return c.metrics.summary()
}

// Predict uploads file as a single-field multipart body and normalizes the
// outcome. It performs at most one request and never retries; a cache hit
// answers without one.
func (c *Client) Predict(ctx context.Context, file selection.File) (*Result, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(c.logger, "predict.submit", requestID)
	start := time.Now()

	data, err := selection.ReadAll(file)
	if err != nil {
		return nil, c.fail(opLogger, start, ReadFault(file.Name(), logging.NewOperationError("predict.read_file", requestID, err)))
	}

	if cached, ok := c.cache.lookup(ctx, requestID, data); ok {
		latency := time.Since(start)
		c.metrics.record(cached, nil, latency, true)
		opLogger.Info("prediction served from cache", zap.String("label", cached.Label))
		return cached, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, contentType, err := encodeMultipart(file.Name(), data)
	if err != nil {
		return nil, c.fail(opLogger, start, &Fault{
			Kind:    FaultTransport,
			Message: FallbackMessage,
			Cause:   logging.NewOperationError("predict.encode", requestID, err),
		})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, c.fail(opLogger, start, &Fault{
			Kind:    FaultTransport,
			Message: FallbackMessage,
			Cause:   logging.NewOperationError("predict.build_request", requestID, err),
		})
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	opLogger.Debug("submitting prediction", zap.String("endpoint", c.endpoint), zap.Int("bytes", len(data)))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.fail(opLogger, start, c.transportFault(requestID, err))
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, c.fail(opLogger, start, c.transportFault(requestID, err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.fail(opLogger, start, &Fault{
			Kind:       FaultServer,
			Message:    serverMessage(payload, statusMessage(resp.StatusCode)),
			StatusCode: resp.StatusCode,
			Cause:      logging.NewOperationError("predict.response", requestID, errors.New(resp.Status)),
		})
	}

	result := decodeResult(payload)
	if result.Malformed {
		opLogger.Warn("prediction response body could not be decoded", zap.Int("status", resp.StatusCode))
	}
	c.cache.store(ctx, requestID, data, result)

	latency := time.Since(start)
	c.metrics.record(result, nil, latency, false)
	opLogger.Info("prediction completed",
		zap.String("label", result.Label),
		zap.Duration("latency", latency),
	)
	return result, nil
}

func (c *Client) fail(opLogger *zap.Logger, start time.Time, fault *Fault) *Fault {
	latency := time.Since(start)
	c.metrics.record(nil, fault, latency, false)
	opLogger.Warn("prediction failed",
		zap.String("kind", string(fault.Kind)),
		zap.String("message", fault.Message),
		zap.Int("status", fault.StatusCode),
		zap.Error(fault.Cause),
		zap.Duration("latency", latency),
	)
	return fault
}

func (c *Client) transportFault(requestID string, err error) *Fault {
	cause := logging.NewOperationError("predict.transport", requestID, err)
	if isTimeout(err) {
		return &Fault{
			Kind:    FaultTimeout,
			Message: fmt.Sprintf("timeout of %dms exceeded", c.timeout.Milliseconds()),
			Cause:   cause,
		}
	}

	msg := err.Error()
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		msg = urlErr.Err.Error()
	}
	if errors.Is(err, context.Canceled) {
		msg = "request canceled"
	}
	if msg = strings.TrimSpace(msg); msg != "" {
		msg = "network error: " + msg
	}
	return &Fault{Kind: FaultTransport, Message: serverMessage(nil, msg), Cause: cause}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func encodeMultipart(name string, data []byte) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FieldName, quoteEscaper.Replace(name)))
	header.Set("Content-Type", detectContentType(name, data))

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}

func detectContentType(name string, data []byte) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}
