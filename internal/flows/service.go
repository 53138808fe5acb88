package flows

import "context"

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Issue.Codec != nil && s.deps.Issue.Store != nil
}

func (s Service) Issue(ctx context.Context, subject, role string) IssueResult {
	return RunIssue(ctx, subject, role, s.deps.Issue)
}

func (s Service) Refresh(ctx context.Context, refreshToken string) RefreshResult {
	return RunRefresh(ctx, refreshToken, s.deps.Refresh)
}

func (s Service) RevokeAccess(ctx context.Context, accessToken string) RevokeResult {
	return RunRevokeAccess(ctx, accessToken, s.deps.Revoke)
}

func (s Service) Validate(ctx context.Context, accessToken string) ValidateResult {
	return RunValidate(ctx, accessToken, s.deps.Validate)
}

func (s Service) Login(ctx context.Context, username, password string) LoginResult {
	return RunLogin(ctx, username, password, s.deps.Login)
}

func (s Service) Register(ctx context.Context, username, password, name, phone string) LoginResult {
	return RunRegister(ctx, username, password, name, phone, s.deps.Register)
}
