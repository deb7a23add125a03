package logger

import (
	"context"
	"log/slog"
	"os"
)

var base *slog.Logger

func Init() {
	base = slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

func emit(level slog.Level, event string, fields map[string]interface{}) {
	if base == nil {
		Init()
	}
	attrs := make([]any, 0, len(fields)*2)
	for key, value := range fields {
		attrs = append(attrs, key, value)
	}
	base.Log(context.Background(), level, event, attrs...)
}

func Info(event string, fields map[string]interface{}) {
	emit(slog.LevelInfo, event, fields)
}

func Warn(event string, fields map[string]interface{}) {
	emit(slog.LevelWarn, event, fields)
}

func Error(event string, fields map[string]interface{}) {
	emit(slog.LevelError, event, fields)
}

func InfoWithUser(userID, event string, fields map[string]interface{}) {
	if fields == nil {
		fields = map[string]interface{}{}
	}
	fields["user_id"] = userID
	emit(slog.LevelInfo, event, fields)
}
