package auth

import (
	"context"

	"github.com/2beens/healthtracker/internal/telemetry/tracing"
)

//go:generate mockgen -source=$GOFILE -destination=../middleware/checker_mocks_test.go -package=middleware_test

var _ Checker = (*TokenChecker)(nil)

// Checker resolves a profile token to its profile id.
type Checker interface {
	ProfileID(ctx context.Context, token string) (string, error)
}

type TokenChecker struct {
	issuer *TokenIssuer
}

func NewTokenChecker(issuer *TokenIssuer) *TokenChecker {
	return &TokenChecker{
		issuer: issuer,
	}
}

func (c *TokenChecker) ProfileID(ctx context.Context, token string) (_ string, err error) {
	_, span := tracing.GlobalTracer.Start(ctx, "auth.checkProfileToken")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	return c.issuer.Parse(token)
}
