package session

import "context"

// BooleanClaim is a claim holding a bool.
type BooleanClaim struct {
	key string
}

func NewBooleanClaim(key string) BooleanClaim {
	return BooleanClaim{key: key}
}

func (c BooleanClaim) Key() string { return c.key }

// IsTrue passes only when the claim is set to true.
func (c BooleanClaim) IsTrue() Validator {
	return Validator{
		ClaimKey: c.key,
		ID:       c.key,
		Validate: func(value any, present bool) bool {
			b, ok := value.(bool)
			return present && ok && b
		},
	}
}

// Value reads the claim from s. present is false for unset or non-bool values.
func (c BooleanClaim) Value(ctx context.Context, s Session) (value bool, present bool) {
	v, ok := s.ClaimValue(ctx, c)
	b, isBool := v.(bool)
	return b, ok && isBool
}
