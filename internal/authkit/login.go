package authkit

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// LoginService turns a provider's raw attributes into a freshly issued session.
type LoginService struct {
	reconciler *Reconciler
	sessions   *SessionIssuer
	logger     *zap.Logger
	metrics    MetricsRecorder
}

// NewLoginService constructs a LoginService.
func NewLoginService(reconciler *Reconciler, sessions *SessionIssuer, logger *zap.Logger, metrics MetricsRecorder) *LoginService {
	if reconciler == nil {
		panic("reconciler is required")
	}
	if sessions == nil {
		panic("session issuer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &LoginService{reconciler: reconciler, sessions: sessions, logger: logger, metrics: metrics}
}

// CompleteLogin normalizes the provider payload, reconciles the local user and mints a session.
// No token is produced when any step fails.
func (service *LoginService) CompleteLogin(ctx context.Context, providerName string, attributes map[string]interface{}) (Session, ReconciledUser, error) {
	identity, normalizeErr := NormalizeProviderAttributes(providerName, attributes)
	if normalizeErr != nil {
		service.metrics.Increment(metricAuthLoginFailure)
		code := "auth.login.incomplete_identity"
		if errors.Is(normalizeErr, ErrUnsupportedProvider) {
			code = "auth.login.unsupported_provider"
		}
		service.logger.Warn("provider attributes rejected",
			zap.String("code", code),
			zap.String("provider", providerName),
			zap.Error(normalizeErr))
		return Session{}, ReconciledUser{}, fmt.Errorf("auth.login.normalize: %w", normalizeErr)
	}

	user, reconcileErr := service.reconciler.Reconcile(ctx, identity)
	if reconcileErr != nil {
		service.metrics.Increment(metricAuthLoginFailure)
		service.logger.Error("user reconciliation failed",
			zap.String("code", "auth.login.reconcile_failed"),
			zap.String("provider", string(identity.Provider)),
			zap.Error(reconcileErr))
		return Session{}, ReconciledUser{}, fmt.Errorf("auth.login.reconcile: %w", reconcileErr)
	}

	session, issueErr := service.sessions.Issue(user)
	if issueErr != nil {
		service.metrics.Increment(metricAuthLoginFailure)
		service.logger.Error("session issuance failed",
			zap.String("code", "auth.login.issue_failed"),
			zap.String("handle", user.Handle),
			zap.Error(issueErr))
		return Session{}, ReconciledUser{}, fmt.Errorf("auth.login.issue: %w", issueErr)
	}

	service.metrics.Increment(metricAuthLoginSuccess)
	service.logger.Info("login completed",
		zap.String("code", "auth.login.success"),
		zap.String("handle", user.Handle),
		zap.String("role", user.Role))
	return session, user, nil
}
