package context

import (
	"context"
	"strings"
)

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	chatIDKey    ctxKey = "chat_id"
	messageIDKey ctxKey = "message_id"
)

// WithRequestID stores the request correlation id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// WithChatID stores the source chat of an ingested message.
func WithChatID(ctx context.Context, chatID string) context.Context {
	return withValue(ctx, chatIDKey, chatID)
}

func ChatIDFromContext(ctx context.Context) string {
	return stringValue(ctx, chatIDKey)
}

// WithMessageID stores the idempotency key of an ingested message.
func WithMessageID(ctx context.Context, messageID string) context.Context {
	return withValue(ctx, messageIDKey, messageID)
}

func MessageIDFromContext(ctx context.Context) string {
	return stringValue(ctx, messageIDKey)
}

func withValue(ctx context.Context, key ctxKey, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(key).(string)
	return value
}
