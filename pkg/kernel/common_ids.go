package kernel

type UserID string

func NewUserID(id string) UserID { return UserID(id) }
func (u UserID) String() string  { return string(u) }
func (u UserID) IsEmpty() bool   { return string(u) == "" }

// RecipeUserID identifies a single login method. Before linking it is also the
// user id; after linking the user id is the primary user's.
type RecipeUserID string

func NewRecipeUserID(id string) RecipeUserID { return RecipeUserID(id) }
func (r RecipeUserID) String() string        { return string(r) }
func (r RecipeUserID) IsEmpty() bool         { return string(r) == "" }

// UserID returns the same value typed as a user id.
func (r RecipeUserID) UserID() UserID { return UserID(r) }

type TenantID string

// DefaultTenantID is the tenant every app has out of the box.
const DefaultTenantID TenantID = "public"

func NewTenantID(id string) TenantID { return TenantID(id) }
func (t TenantID) String() string    { return string(t) }
func (t TenantID) IsEmpty() bool     { return string(t) == "" }

// OrDefault returns DefaultTenantID when t is empty.
func (t TenantID) OrDefault() TenantID {
	if t.IsEmpty() {
		return DefaultTenantID
	}
	return t
}
