package session

// Role is the coarse authorization level attached to an identity.
type Role string

const (
	RoleUser      Role = "user"
	RolePowerUser Role = "power_user"
	RoleAdmin     Role = "admin"
)

// Normalize maps the empty role to [RoleUser].
func (r Role) Normalize() Role {
	if r == "" {
		return RoleUser
	}
	return r
}

// Identity describes the signed-in user. Attrs carries any extra fields the
// API returned (for example created_at) so they survive a persist/restore.
type Identity struct {
	ID       string
	Username string
	Role     Role
	Attrs    map[string]any
}

// IsZero reports whether no identity field is set.
func (i Identity) IsZero() bool {
	return i.ID == "" && i.Username == "" && i.Role == "" && len(i.Attrs) == 0
}

// IdentityPatch is a partial identity. Nil fields are left untouched by Merge.
type IdentityPatch struct {
	ID       *string
	Username *string
	Role     *Role
	Attrs    map[string]any
}

// Merge returns a copy of i with every non-nil patch field applied.
func (i Identity) Merge(p IdentityPatch) Identity {
	out := i.clone()
	if p.ID != nil {
		out.ID = *p.ID
	}
	if p.Username != nil {
		out.Username = *p.Username
	}
	if p.Role != nil {
		out.Role = *p.Role
	}
	if len(p.Attrs) > 0 {
		if out.Attrs == nil {
			out.Attrs = make(map[string]any, len(p.Attrs))
		}
		for k, v := range p.Attrs {
			out.Attrs[k] = v
		}
	}
	return out
}

func (i Identity) clone() Identity {
	out := i
	if i.Attrs != nil {
		out.Attrs = make(map[string]any, len(i.Attrs))
		for k, v := range i.Attrs {
			out.Attrs[k] = v
		}
	}
	return out
}

// Snapshot is a consistent copy of the session at one instant.
type Snapshot struct {
	Credential  string
	Identity    Identity
	HasIdentity bool
	Generation  uint64
}

// Authenticated reports whether the snapshot holds a credential.
func (s Snapshot) Authenticated() bool {
	return s.Credential != ""
}
