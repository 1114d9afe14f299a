package logging

import (
	"context"
	"strconv"
)

type contextKey string

const (
	TraceIDKey     = "trace_id"
	MessageIDKey   = "message_id"
	ServiceNameKey = "service_name"
	SubjectKeyKey  = "subject_key"
	PartitionKey   = "partition"
)

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, contextKey(TraceIDKey), traceID)
}

func WithMessageID(ctx context.Context, messageID string) context.Context {
	return context.WithValue(ctx, contextKey(MessageIDKey), messageID)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, contextKey(ServiceNameKey), serviceName)
}

func WithSubjectKey(ctx context.Context, subjectKey string) context.Context {
	return context.WithValue(ctx, contextKey(SubjectKeyKey), subjectKey)
}

func WithPartition(ctx context.Context, partition int) context.Context {
	return context.WithValue(ctx, contextKey(PartitionKey), partition)
}

func getString(ctx context.Context, key string) string {
	if v, ok := ctx.Value(contextKey(key)).(string); ok {
		return v
	}
	return ""
}

func GetTraceID(ctx context.Context) string {
	return getString(ctx, TraceIDKey)
}

func GetMessageID(ctx context.Context) string {
	return getString(ctx, MessageIDKey)
}

func GetServiceName(ctx context.Context) string {
	return getString(ctx, ServiceNameKey)
}

func GetSubjectKey(ctx context.Context) string {
	return getString(ctx, SubjectKeyKey)
}

// GetPartition returns the worker partition, or -1 when unset.
func GetPartition(ctx context.Context) int {
	if v, ok := ctx.Value(contextKey(PartitionKey)).(int); ok {
		return v
	}
	return -1
}

func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 10)

	if traceID := GetTraceID(ctx); traceID != "" {
		fields = append(fields, TraceIDKey, traceID)
	}

	if messageID := GetMessageID(ctx); messageID != "" {
		fields = append(fields, MessageIDKey, messageID)
	}

	if serviceName := GetServiceName(ctx); serviceName != "" {
		fields = append(fields, ServiceNameKey, serviceName)
	}

	if subjectKey := GetSubjectKey(ctx); subjectKey != "" {
		fields = append(fields, SubjectKeyKey, subjectKey)
	}

	if partition := GetPartition(ctx); partition >= 0 {
		fields = append(fields, PartitionKey, strconv.Itoa(partition))
	}

	return fields
}
