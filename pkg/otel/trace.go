package otel

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// 重导出常用类型，组件无需直接依赖 go.opentelemetry.io/otel
type (
	Span            = trace.Span
	SpanStartOption = trace.SpanStartOption
	Attribute       = attribute.KeyValue
)

const (
	SpanKindClient = trace.SpanKindClient
	CodeError      = codes.Error
	CodeOk         = codes.Ok
)

var (
	WithSpanKind   = trace.WithSpanKind
	WithAttributes = trace.WithAttributes

	String = attribute.String
	Int    = attribute.Int
	Bool   = attribute.Bool
)

// GraphQL 请求的 span 属性键
const (
	GraphQLOperationNameKey = "graphql.operation.name"
	GraphQLOperationTypeKey = "graphql.operation.type"
	CacheHitKey             = "livesync.cache.hit"
	AuthRetryKey            = "livesync.auth.retries"
	HTTPStatusCodeKey       = "http.response.status_code"
)
