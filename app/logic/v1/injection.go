package v1

import (
	"context"

	"github.com/scholarly-ai/scholarly/pkg/i18n"
)

const (
	USER_CONTEXT_KEY = "__scholarly.user_id"
	LANGUAGE_KEY     = "__scholarly.accept_language"
)

// InjectUserID get caller id from context
func InjectUserID(ctx context.Context) (string, bool) {
	val, ok := ctx.Value(USER_CONTEXT_KEY).(string)
	return val, ok && val != ""
}

func InjectLanguage(ctx context.Context) string {
	if val, ok := ctx.Value(LANGUAGE_KEY).(string); ok && val != "" {
		return val
	}
	return i18n.DEFAULT_LANG
}
