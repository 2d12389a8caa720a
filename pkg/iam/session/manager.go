package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Abraxas-365/authlink/pkg/iam/core"
	"github.com/Abraxas-365/authlink/pkg/kernel"
	"github.com/Abraxas-365/authlink/pkg/logx"
)

var _ Provider = (*Manager)(nil)

// Manager implements Provider on top of a Store and a TokenCodec.
type Manager struct {
	store  Store
	codec  *TokenCodec
	users  core.UserReader
	claims []FetchableClaim
	now    func() time.Time
}

func NewManager(store Store, codec *TokenCodec, users core.UserReader) *Manager {
	return &Manager{store: store, codec: codec, users: users, now: time.Now}
}

// RegisterClaim adds a claim whose value is fetched for every new session.
func (m *Manager) RegisterClaim(c FetchableClaim) {
	m.claims = append(m.claims, c)
}

func (m *Manager) CreateNewSession(ctx context.Context, tenantID kernel.TenantID, recipeUserID kernel.RecipeUserID) (Session, error) {
	u, err := m.users.GetUser(ctx, recipeUserID.UserID())
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, core.ErrUnknownUser().WithDetail("recipe_user_id", recipeUserID)
	}

	now := m.now().UTC()
	doc := &Document{
		Handle:       uuid.NewString(),
		UserID:       u.ID,
		RecipeUserID: recipeUserID,
		TenantID:     tenantID.OrDefault(),
		Claims:       make(map[string]any),
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.codec.TTL()),
	}

	for _, c := range m.claims {
		v, ok, err := c.Fetch(ctx, u, recipeUserID, doc.TenantID)
		if err != nil {
			return nil, err
		}
		if ok {
			doc.Claims[c.Key()] = v
		}
	}

	if err := m.store.Put(ctx, doc, m.codec.TTL()); err != nil {
		return nil, err
	}
	token, err := m.codec.Issue(doc)
	if err != nil {
		return nil, err
	}

	logx.WithContext(ctx).WithFields(logx.Fields{
		"user_id":        doc.UserID,
		"recipe_user_id": doc.RecipeUserID,
		"session_handle": doc.Handle,
	}).Info("session created")

	return &session{doc: doc, token: token, manager: m}, nil
}

func (m *Manager) GetSession(ctx context.Context, accessToken string) (Session, error) {
	if accessToken == "" {
		return nil, ErrUnauthorised().WithDetail("reason", "missing token")
	}
	claims, err := m.codec.Parse(accessToken)
	if err != nil {
		return nil, err
	}
	doc, err := m.store.Get(ctx, claims.Handle)
	if err != nil {
		return nil, err
	}
	if doc == nil || !m.now().Before(doc.ExpiresAt) {
		return nil, ErrUnauthorised().WithDetail("reason", "session revoked or expired")
	}
	if doc.Claims == nil {
		doc.Claims = make(map[string]any)
	}
	return &session{doc: doc, token: accessToken, manager: m}, nil
}

func (m *Manager) RevokeSession(ctx context.Context, handle string) error {
	return m.store.Delete(ctx, handle)
}

func (m *Manager) save(ctx context.Context, doc *Document) error {
	ttl := doc.ExpiresAt.Sub(m.now())
	if ttl <= 0 {
		return ErrUnauthorised().WithDetail("reason", "session expired")
	}
	return m.store.Put(ctx, doc, ttl)
}

// ============================================================================
// session
// ============================================================================

type session struct {
	doc     *Document
	token   string
	manager *Manager
}

func (s *session) UserID() kernel.UserID             { return s.doc.UserID }
func (s *session) RecipeUserID() kernel.RecipeUserID { return s.doc.RecipeUserID }
func (s *session) TenantID() kernel.TenantID         { return s.doc.TenantID }
func (s *session) Handle() string                    { return s.doc.Handle }
func (s *session) AccessToken() string               { return s.token }

func (s *session) ClaimValue(_ context.Context, claim Claim) (any, bool) {
	v, ok := s.doc.Claims[claim.Key()]
	return v, ok
}

func (s *session) SetClaimValue(ctx context.Context, claim Claim, value any) error {
	s.doc.Claims[claim.Key()] = value
	return s.manager.save(ctx, s.doc)
}

// AssertClaims fails with INVALID_CLAIMS on the first failing validator.
func (s *session) AssertClaims(_ context.Context, validators ...Validator) error {
	for _, v := range validators {
		value, present := s.doc.Claims[v.ClaimKey]
		if !v.Validate(value, present) {
			return ErrInvalidClaims(v.ID).WithDetail("reason", "claim validation failed")
		}
	}
	return nil
}
