package mfasrv

import (
	"context"
	"slices"
	"time"

	"github.com/Abraxas-365/authlink/pkg/config"
	"github.com/Abraxas-365/authlink/pkg/iam/mfa"
	"github.com/Abraxas-365/authlink/pkg/iam/session"
	"github.com/Abraxas-365/authlink/pkg/iam/user"
	"github.com/Abraxas-365/authlink/pkg/kernel"
	"github.com/Abraxas-365/authlink/pkg/logx"
)

// ClaimKey holds {"c": {factor: completedAtMillis}, "v": requirementsMet}.
const ClaimKey = "st-mfa"

type claim struct{}

func (claim) Key() string { return ClaimKey }

// Claim is the multi-factor session claim.
var Claim session.Claim = claim{}

var (
	_ mfa.Recipe               = (*Service)(nil)
	_ mfa.FirstFactorValidator = (*Service)(nil)
)

// RequirementsFunc computes the secondary factor requirements of a sign in.
type RequirementsFunc func(ctx context.Context, sess session.Session, u *user.User, factorsSetUp []mfa.FactorID, tenantID kernel.TenantID) (mfa.RequirementList, error)

type Option func(*Service)

// WithRequirements replaces the configured required secondary factors.
func WithRequirements(fn RequirementsFunc) Option {
	return func(s *Service) { s.requirements = fn }
}

// Service is the config driven multi-factor recipe.
type Service struct {
	tenants      []kernel.TenantID
	firstFactors []mfa.FactorID
	required     []mfa.FactorID
	requirements RequirementsFunc
	now          func() time.Time
}

func NewService(cfg config.MFAConfig, opts ...Option) *Service {
	s := &Service{now: time.Now}
	for _, t := range cfg.Tenants {
		s.tenants = append(s.tenants, kernel.TenantID(t))
	}
	for _, f := range cfg.FirstFactors {
		s.firstFactors = append(s.firstFactors, mfa.FactorID(f))
	}
	for _, f := range cfg.RequiredSecondaryFactors {
		s.required = append(s.required, mfa.FactorID(f))
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) IsValidFirstFactor(_ context.Context, tenantID kernel.TenantID, factorID mfa.FactorID) (mfa.FirstFactorStatus, error) {
	if len(s.tenants) > 0 && !slices.Contains(s.tenants, tenantID.OrDefault()) {
		return mfa.FirstFactorTenantNotFound, nil
	}
	if len(s.firstFactors) == 0 || slices.Contains(s.firstFactors, factorID) {
		return mfa.FirstFactorOK, nil
	}
	return mfa.FirstFactorInvalid, nil
}

func (s *Service) FactorsSetUpForUser(_ context.Context, u *user.User, _ kernel.TenantID) ([]mfa.FactorID, error) {
	var out []mfa.FactorID
	if u == nil {
		return out, nil
	}
	for _, lm := range u.LoginMethods {
		for _, f := range mfa.FactorsForLoginMethod(lm) {
			if !slices.Contains(out, f) {
				out = append(out, f)
			}
		}
	}
	return out, nil
}

func (s *Service) RequirementsForAuth(ctx context.Context, sess session.Session, u *user.User, factorsSetUp []mfa.FactorID, tenantID kernel.TenantID) (mfa.RequirementList, error) {
	if s.requirements != nil {
		return s.requirements(ctx, sess, u, factorsSetUp, tenantID)
	}
	if len(s.required) == 0 {
		return nil, nil
	}
	return mfa.RequirementList{{OneOf: slices.Clone(s.required)}}, nil
}

func (s *Service) AssertAllowedToSetupFactor(ctx context.Context, sess session.Session, factorID mfa.FactorID, factorsSetUp []mfa.FactorID, requirements mfa.RequirementList) error {
	completed := CompletedFactors(ctx, sess)
	next := requirements.NextUnsatisfied(completed)
	if len(next) == 0 {
		return nil
	}

	log := logx.WithContext(ctx).WithFields(logx.Fields{"factor_id": factorID, "next": next})
	if slices.ContainsFunc(next, func(f mfa.FactorID) bool { return slices.Contains(factorsSetUp, f) }) {
		log.Debug("mfa: an already set up factor must be completed first")
		return session.ErrInvalidClaims(ClaimKey).
			WithDetail("reason", "Completed factors in the session does not satisfy the MFA requirements for auth")
	}
	if !slices.Contains(next, factorID) {
		log.Debug("mfa: factor not allowed to be set up")
		return session.ErrInvalidClaims(ClaimKey).
			WithDetail("reason", "The factor you are trying to set up is not allowed")
	}
	return nil
}

func (s *Service) MarkFactorAsCompleteInSession(ctx context.Context, sess session.Session, factorID mfa.FactorID) error {
	value, _ := sess.ClaimValue(ctx, Claim)
	c := make(map[string]any)
	if m, ok := value.(map[string]any); ok {
		if prev, ok := m["c"].(map[string]any); ok {
			for k, v := range prev {
				c[k] = v
			}
		}
	}
	c[factorID.String()] = s.now().UnixMilli()

	completed := make([]mfa.FactorID, 0, len(c))
	for k := range c {
		completed = append(completed, mfa.FactorID(k))
	}
	requirements, err := s.RequirementsForAuth(ctx, sess, nil, nil, sess.TenantID())
	if err != nil {
		return err
	}

	return sess.SetClaimValue(ctx, Claim, map[string]any{
		"c": c,
		"v": len(requirements.NextUnsatisfied(completed)) == 0,
	})
}

// CompletedFactors reads the completed factors from the session claim.
func CompletedFactors(ctx context.Context, sess session.Session) []mfa.FactorID {
	value, ok := sess.ClaimValue(ctx, Claim)
	if !ok {
		return nil
	}
	m, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	c, ok := m["c"].(map[string]any)
	if !ok {
		return nil
	}
	out := make([]mfa.FactorID, 0, len(c))
	for k := range c {
		out = append(out, mfa.FactorID(k))
	}
	slices.Sort(out)
	return out
}
