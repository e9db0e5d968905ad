package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/mssola/useragent"

	"github.com/ttrenholm/gatehouse/internal/models"
	pkglogger "github.com/ttrenholm/gatehouse/pkg/logger"
)

// AttemptRecorder is the persistence interface for login attempts.
type AttemptRecorder interface {
	Record(ctx context.Context, attempt *models.LoginAttempt) error
}

// GeoResolver turns an IP address into a coarse location string. Geo
// enrichment is an external collaborator; the default resolver returns nil.
type GeoResolver interface {
	Resolve(ip string) *string
}

// NoopGeoResolver is the default: attempts carry no location.
type NoopGeoResolver struct{}

func (NoopGeoResolver) Resolve(string) *string { return nil }

// RequestContext carries the caller-side facts attached to every attempt.
// An explicit struct threaded through the auth services, not a mutated
// request object.
type RequestContext struct {
	IPAddress string
	UserAgent string
}

// AuditService writes the append-only login-attempt record with a dual-write
// pattern: durable row plus structured log line. Record is fire-and-forget;
// a failed write is logged and swallowed so it can never block or alter an
// authentication decision.
type AuditService struct {
	repo        AttemptRecorder
	geo         GeoResolver
	auditLogger *pkglogger.AuditLogger
	logger      *slog.Logger
	retention   time.Duration
}

func NewAuditService(repo AttemptRecorder, geo GeoResolver, auditLogger *pkglogger.AuditLogger, logger *slog.Logger, retention time.Duration) *AuditService {
	if geo == nil {
		geo = NoopGeoResolver{}
	}
	return &AuditService{
		repo:        repo,
		geo:         geo,
		auditLogger: auditLogger,
		logger:      logger,
		retention:   retention,
	}
}

// Record persists one attempt. Never returns an error to the caller.
func (s *AuditService) Record(ctx context.Context, accountID *string, username, outcome, reason string, reqCtx RequestContext) {
	now := time.Now()

	ua := useragent.New(reqCtx.UserAgent)
	browser, _ := ua.Browser()

	device := "desktop"
	if ua.Mobile() {
		device = "mobile"
	} else if ua.Bot() {
		device = "bot"
	}

	attempt := &models.LoginAttempt{
		AccountID:   accountID,
		Username:    username,
		IPAddress:   reqCtx.IPAddress,
		UserAgent:   reqCtx.UserAgent,
		Device:      device,
		Browser:     browser,
		OS:          ua.OS(),
		Location:    s.geo.Resolve(reqCtx.IPAddress),
		Outcome:     outcome,
		Reason:      reason,
		AttemptedAt: now,
		ExpiresAt:   now.Add(s.retention),
	}

	if err := s.repo.Record(ctx, attempt); err != nil {
		s.logger.Error("failed to persist login attempt",
			slog.String("username", username),
			slog.String("outcome", outcome),
			slog.Any("error", err))
		// Swallowed: audit failures never surface to the caller.
	}

	acctID := ""
	if accountID != nil {
		acctID = *accountID
	}
	s.auditLogger.LogAttempt(pkglogger.AuditEvent{
		Outcome:   outcome,
		AccountID: acctID,
		Username:  username,
		IPAddress: reqCtx.IPAddress,
		UserAgent: reqCtx.UserAgent,
		Reason:    reason,
	})
}
