package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fieldlab/arena-server/internal/core"
	"github.com/fieldlab/arena-server/internal/store"
)

// memRoster is an in-memory RosterStore for tests.
type memRoster struct {
	slots   map[string]store.Slot
	claimed map[string]string
}

func newMemRoster() *memRoster {
	return &memRoster{
		slots:   make(map[string]store.Slot),
		claimed: make(map[string]string),
	}
}

func (m *memRoster) LoadRoster(ctx context.Context) ([]store.Slot, error) {
	out := make([]store.Slot, 0, len(m.slots))
	for _, s := range m.slots {
		out = append(out, s)
	}
	return out, nil
}

func (m *memRoster) CreateSlot(ctx context.Context, slot store.Slot) error {
	m.slots[slot.ID] = slot
	return nil
}

func (m *memRoster) GetSlot(ctx context.Context, id string) (*store.Slot, error) {
	s, ok := m.slots[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memRoster) MarkClaimed(ctx context.Context, id, tag string, at time.Time) error {
	m.claimed[id] = tag
	return nil
}

func (m *memRoster) Close() error { return nil }

func testJWTConfig() *JWTConfig {
	return &JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "arena-test",
		Audience: "arena-clients",
		TTL:      time.Hour,
	}
}

func TestLoginRosterPassword(t *testing.T) {
	reg := core.NewRegistry(nil)
	if _, err := reg.AddClient("p1", nil); err != nil {
		t.Fatalf("add client: %v", err)
	}

	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	roster := newMemRoster()
	roster.slots["p1"] = store.Slot{ID: "p1", PwdHash: hash, Valid: true}

	svc := NewService(reg, roster, testJWTConfig())

	if _, err := svc.Login(context.Background(), "p1", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v", err)
	}

	token, err := svc.Login(context.Background(), "p1", "s3cret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.ClientID != "p1" || claims.Admin {
		t.Fatalf("claims = %+v, want player p1", claims)
	}
}

func TestLoginWithoutRoster(t *testing.T) {
	reg := core.NewRegistry(nil)
	if _, err := reg.AddClient("m", map[string]any{"admin": true, "pwd": "hunter2"}); err != nil {
		t.Fatalf("add client: %v", err)
	}
	svc := NewService(reg, nil, testJWTConfig())

	if _, err := svc.Login(context.Background(), "m", "nope"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v", err)
	}
	if _, err := svc.Login(context.Background(), "nobody", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown id: got %v", err)
	}

	token, err := svc.Login(context.Background(), "m", "hunter2")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.ClientID != "m" || !claims.Admin {
		t.Fatalf("claims = %+v, want admin m", claims)
	}
}

func TestClaim(t *testing.T) {
	reg := core.NewRegistry(nil)
	if _, err := reg.AddClient("p1", nil); err != nil {
		t.Fatalf("add client: %v", err)
	}
	roster := newMemRoster()
	svc := NewService(reg, roster, testJWTConfig())

	id, token, err := svc.Claim(context.Background(), "CODE-1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if id != "p1" || token == "" {
		t.Fatalf("claim = (%q, %q), want p1 with a token", id, token)
	}
	if roster.claimed["p1"] != "CODE-1" {
		t.Fatalf("claim not persisted: %v", roster.claimed)
	}

	// Claiming the same code again maps to the same slot.
	again, _, err := svc.Claim(context.Background(), "CODE-1")
	if err != nil || again != "p1" {
		t.Fatalf("repeated claim = (%q, %v), want p1", again, err)
	}

	if _, _, err := svc.Claim(context.Background(), "CODE-2"); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("exhausted pool: got %v", err)
	}
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	cfg := testJWTConfig()
	token, err := GenerateToken(cfg, "p1", false)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	other := *cfg
	other.Secret = []byte("different-secret")
	if _, err := ValidateToken(&other, token); err == nil {
		t.Fatal("token signed with another secret must not validate")
	}

	other = *cfg
	other.Issuer = "someone-else"
	if _, err := ValidateToken(&other, token); err == nil {
		t.Fatal("issuer mismatch must not validate")
	}

	if _, err := ValidateToken(cfg, token+"x"); err == nil {
		t.Fatal("tampered token must not validate")
	}
}
