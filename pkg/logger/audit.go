package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent mirrors a login-attempt fact for structured log output. The
// durable record lives in the login_attempts table; this stream exists so
// operators can tail authentication activity without a database query.
type AuditEvent struct {
	Outcome   string // "success", "failed", "locked", "unverified"
	AccountID string
	Username  string
	IPAddress string
	UserAgent string
	Reason    string
}

// AuditLogger provides structured audit logging on top of slog.
type AuditLogger struct {
	logger *slog.Logger
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger}
}

// LogAttempt emits one structured record per authentication or two-factor
// verification call. Failures log at Warn so they stand out in aggregation.
func (al *AuditLogger) LogAttempt(event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "auth"),
		slog.String("outcome", event.Outcome),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.AccountID != "" {
		attrs = append(attrs, slog.String("account_id", event.AccountID))
	}
	if event.Username != "" {
		attrs = append(attrs, slog.String("username", event.Username))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", event.Reason))
	}

	if event.Outcome == "success" {
		al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
	} else {
		al.logger.LogAttrs(context.Background(), slog.LevelWarn, "audit", attrs...)
	}
}

// LogSessionEvent records session lifecycle changes (create/terminate).
func (al *AuditLogger) LogSessionEvent(action, sessionID, accountID string) {
	al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit",
		slog.String("audit_type", "session"),
		slog.String("action", action),
		slog.String("session_id", sessionID),
		slog.String("account_id", accountID),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	)
}
