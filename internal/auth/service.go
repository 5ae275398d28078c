package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/fieldlab/arena-server/internal/core"
	"github.com/fieldlab/arena-server/internal/store"
)

var (
	// ErrInvalidCredentials is returned when the profile fails authorization.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrPoolExhausted is returned when no claimable slot remains.
	ErrPoolExhausted = errors.New("no claimable slot available")
)

// Service authenticates profiles against the channel registry and issues
// tokens. Password hashes, when present, live in the roster store; the
// registry itself only sees plain credential strings for ad-hoc identities.
type Service struct {
	registry  *core.Registry
	roster    store.RosterStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service. roster may be nil when the
// process runs without provisioned slots.
func NewService(registry *core.Registry, roster store.RosterStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		registry:  registry,
		roster:    roster,
		jwtConfig: jwtConfig,
	}
}

// Login validates a profile and returns a signed token. Roster-provisioned
// slots are checked against their bcrypt hash first; the registry then
// applies its own authorization rules (checked-out, invalidated slots).
func (s *Service) Login(ctx context.Context, id, pwd string) (string, error) {
	if s.roster != nil {
		slot, err := s.roster.GetSlot(ctx, id)
		if err != nil {
			return "", fmt.Errorf("roster lookup: %w", err)
		}
		if slot != nil && slot.PwdHash != "" {
			if err := ComparePassword(slot.PwdHash, pwd); err != nil {
				return "", ErrInvalidCredentials
			}
			// The hash already matched; the registry record carries no pwd.
			pwd = ""
		}
	}

	rec, ok := s.registry.Authorize(core.Profile{ID: id, Pwd: pwd})
	if !ok {
		return "", ErrInvalidCredentials
	}
	token, err := GenerateToken(s.jwtConfig, rec.ID, rec.Admin)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}

// Claim maps an external participant code to a provisioned slot and returns
// the slot's id with a token for it. Claiming the same code twice returns the
// same slot.
func (s *Service) Claim(ctx context.Context, code string) (string, string, error) {
	rec, ok := s.registry.ClaimID(code)
	if !ok {
		return "", "", ErrPoolExhausted
	}
	if s.roster != nil {
		if err := s.roster.MarkClaimed(ctx, rec.ID, code, rec.TagDate); err != nil {
			return "", "", fmt.Errorf("persist claim: %w", err)
		}
	}
	token, err := GenerateToken(s.jwtConfig, rec.ID, rec.Admin)
	if err != nil {
		return "", "", fmt.Errorf("generate token: %w", err)
	}
	return rec.ID, token, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}
