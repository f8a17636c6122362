package contracts

// Actor identifies a verified participant (grantor, delegate, approver).
// Identities arrive pre-verified from the upstream identity provider;
// this core never authenticates anyone.
type Actor struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// IsZero reports whether the actor carries no identity.
func (a Actor) IsZero() bool {
	return a.ID == "" && a.Name == ""
}
