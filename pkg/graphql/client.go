// Package graphql 编排一次逻辑请求：限流、缓存、鉴权、401 刷新后重试一次
package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/lk2023060901/livesync/pkg/cache"
	"github.com/lk2023060901/livesync/pkg/config"
	"github.com/lk2023060901/livesync/pkg/logger"
	"github.com/lk2023060901/livesync/pkg/otel"
)

// maxAuthRetries 401 之后最多重试的次数
const maxAuthRetries = 1

// Authenticator 提供 token 并在 401 时刷新
type Authenticator interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (bool, error)
	NeedsRefresh(ctx context.Context) bool
}

// Cache 只读操作的响应缓存
type Cache interface {
	Get(key string) (json.RawMessage, bool)
	Set(key string, value json.RawMessage, ttl time.Duration)
	Invalidate(pattern string)
}

// Limiter 请求发出前的准入
type Limiter interface {
	Allow() bool
	RetryAfter() time.Duration
}

// Client 请求编排器
type Client struct {
	config     *Config
	httpClient *http.Client
	auth       Authenticator
	cache      Cache
	limiter    Limiter
	tracerProv trace.TracerProvider
	tracer     trace.Tracer
	metrics    *RequestMetrics
	registerer prometheus.Registerer
	logger     logger.Logger
}

// Option 客户端选项
type Option func(*Client)

// WithAuthenticator 设置鉴权，未设置时请求不带 Authorization
func WithAuthenticator(a Authenticator) Option {
	return func(c *Client) {
		c.auth = a
	}
}

// WithResponseCache 设置响应缓存
func WithResponseCache(rc Cache) Option {
	return func(c *Client) {
		c.cache = rc
	}
}

// WithLimiter 设置限流器
func WithLimiter(l Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithHTTPClient 自定义 HTTP 客户端，其 Transport 会被 otelhttp 包装
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTracerProvider 设置追踪，默认不产生 span
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		c.tracerProv = tp
	}
}

// WithMetricsRegisterer 设置 Prometheus 注册器
func WithMetricsRegisterer(r prometheus.Registerer) Option {
	return func(c *Client) {
		c.registerer = r
	}
}

// WithLogger 设置日志记录器
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient 创建请求编排器
func NewClient(cfg *Config, opts ...Option) (*Client, error) {
	merged, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(merged); err != nil {
		return nil, errors.Mark(err, ErrInvalidConfig)
	}

	c := &Client{config: merged}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logger.OrNoop(c.logger).Named("graphql")
	if c.tracerProv == nil {
		c.tracerProv = noop.NewTracerProvider()
	}
	c.tracer = c.tracerProv.Tracer("github.com/lk2023060901/livesync/pkg/graphql")
	c.metrics = NewRequestMetrics(c.registerer)

	hc := &http.Client{Timeout: merged.Timeout}
	if c.httpClient != nil {
		clone := *c.httpClient
		hc = &clone
	}
	base := hc.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	hc.Transport = otelhttp.NewTransport(base,
		otelhttp.WithTracerProvider(c.tracerProv),
		otelhttp.WithPropagators(otel.Propagator()),
	)
	c.httpClient = hc

	return c, nil
}

type requestBody struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type responseBody struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Request 执行一次逻辑请求，返回响应中的 data
func (c *Client) Request(ctx context.Context, query string, variables map[string]any, opts ...RequestOption) (json.RawMessage, error) {
	var ro requestOptions
	for _, opt := range opts {
		opt(&ro)
	}

	op := ParseOperation(query)
	if ro.mutation {
		op.Type = OperationMutation
	}

	ctx, span := c.tracer.Start(ctx, "graphql."+op.Type,
		otel.WithSpanKind(otel.SpanKindClient),
		otel.WithAttributes(
			otel.String(otel.GraphQLOperationTypeKey, op.Type),
			otel.String(otel.GraphQLOperationNameKey, op.Name),
		),
	)
	defer span.End()

	start := time.Now()
	data, err := c.do(ctx, span, query, variables, op, ro)
	c.metrics.observe(op.Type, outcome(err), time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(otel.CodeError, err.Error())
		c.logger.DebugContext(ctx, "request failed",
			"operation", op.Name,
			"type", op.Type,
			"error", err,
		)
		return nil, err
	}
	span.SetStatus(otel.CodeOk, "")
	return data, nil
}

func (c *Client) do(ctx context.Context, span otel.Span, query string, variables map[string]any, op Operation, ro requestOptions) (json.RawMessage, error) {
	if c.limiter != nil && !c.limiter.Allow() {
		c.metrics.onRateLimited()
		return nil, &RateLimitedError{RetryAfter: c.limiter.RetryAfter()}
	}

	body, err := json.Marshal(requestBody{Query: query, Variables: variables})
	if err != nil {
		return nil, errors.Wrap(err, "graphql: encode request")
	}

	mutation := op.Type == OperationMutation
	cacheable := ro.cache && op.Type == OperationQuery && c.cache != nil
	var key string
	if cacheable {
		if key, err = cache.Key(op.Name, query, variables); err != nil {
			return nil, errors.Wrap(err, "graphql: cache key")
		}
		if v, ok := c.cache.Get(key); ok {
			c.metrics.onCache(true)
			span.SetAttributes(otel.Bool(otel.CacheHitKey, true))
			return v, nil
		}
		c.metrics.onCache(false)
	}

	useAuth := !ro.skipAuth && c.auth != nil
	if useAuth && c.config.ProactiveRefresh && c.auth.NeedsRefresh(ctx) {
		ok, err := c.auth.Refresh(ctx)
		c.metrics.onRefresh(ok)
		if !ok {
			return nil, authRequired(err)
		}
	}

	if mutation && c.cache != nil {
		defer func() {
			c.cache.Invalidate("")
			c.metrics.onInvalidate()
		}()
	}

	for attempt := 0; ; attempt++ {
		var token string
		if useAuth {
			if token, err = c.auth.Token(ctx); err != nil {
				return nil, errors.Wrap(err, "graphql: read token")
			}
		}

		status, raw, err := c.post(ctx, body, token)
		if err != nil {
			return nil, &TransportError{Err: err}
		}

		if status == http.StatusUnauthorized {
			if !useAuth {
				return nil, ErrAuthenticationRequired
			}
			if attempt >= maxAuthRetries {
				return nil, errors.Wrap(ErrAuthenticationRequired, "graphql: rejected after refresh")
			}
			ok, rerr := c.auth.Refresh(ctx)
			c.metrics.onRefresh(ok)
			span.SetAttributes(otel.Int(otel.AuthRetryKey, attempt+1))
			if !ok {
				return nil, authRequired(rerr)
			}
			continue
		}

		span.SetAttributes(otel.Int(otel.HTTPStatusCodeKey, status))
		if status < 200 || status > 299 {
			return nil, &TransportError{StatusCode: status, Body: truncate(raw, 4<<10)}
		}

		var resp responseBody
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, &TransportError{StatusCode: status, Body: truncate(raw, 4<<10), Err: errors.Wrap(err, "decode response")}
		}
		if len(resp.Errors) > 0 {
			msgs := make([]string, 0, len(resp.Errors))
			for _, e := range resp.Errors {
				msgs = append(msgs, e.Message)
			}
			return nil, &APIError{Messages: msgs, Data: resp.Data}
		}

		if cacheable {
			c.cache.Set(key, resp.Data, ro.cacheTTL)
		}
		return resp.Data, nil
	}
}

func (c *Client) post(ctx context.Context, body []byte, token string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxResponseSize))
	if err != nil {
		return resp.StatusCode, nil, errors.Wrap(err, "read response")
	}
	return resp.StatusCode, raw, nil
}

// authRequired 刷新失败的原因保留在错误链中
func authRequired(cause error) error {
	if cause == nil {
		return ErrAuthenticationRequired
	}
	return errors.Mark(errors.Wrap(cause, "graphql: refresh"), ErrAuthenticationRequired)
}

func outcome(err error) string {
	var (
		rl  *RateLimitedError
		te  *TransportError
		api *APIError
	)
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &rl):
		return "rate_limited"
	case errors.Is(err, ErrAuthenticationRequired):
		return "unauthenticated"
	case errors.As(err, &te):
		return "transport_error"
	case errors.As(err, &api):
		return "api_error"
	default:
		return "error"
	}
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
