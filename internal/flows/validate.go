package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/session"
)

// ValidateFailureKind classifies validation failures for root-level mapping.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureInvalid
	ValidateFailureBlacklisted
	ValidateFailureStore
)

// ValidateResult returns either claims or a classified failure.
type ValidateResult struct {
	Failure ValidateFailureKind
	Err     error
	Claims  *jwt.Claims
}

// ValidateDeps captures validation flow dependencies.
type ValidateDeps struct {
	Codec        TokenCodec
	Store        session.Backend
	StoreTimeout time.Duration
}

// RunValidate verifies accessToken and checks the blacklist. A store failure
// is reported as such, never as an invalid token.
func RunValidate(ctx context.Context, accessToken string, deps ValidateDeps) ValidateResult {
	claims, err := deps.Codec.ParseAccess(accessToken)
	if err != nil {
		return ValidateResult{Failure: ValidateFailureInvalid, Err: err}
	}

	cctx, cancel := bounded(ctx, deps.StoreTimeout)
	defer cancel()
	revoked, err := deps.Store.IsBlacklisted(cctx, accessToken)
	if err != nil {
		return ValidateResult{Failure: ValidateFailureStore, Err: err, Claims: claims}
	}
	if revoked {
		return ValidateResult{Failure: ValidateFailureBlacklisted, Claims: claims}
	}

	return ValidateResult{Claims: claims}
}
