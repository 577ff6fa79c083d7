package models

// RoleAgencyAdmin is the elevated role with implicit access to every
// conversation of its agency.
const RoleAgencyAdmin = "agency_admin"

// Identity is the resolved caller: user, agency and role as carried by the
// auth token or the websocket auth envelope.
type Identity struct {
	UserID   string `json:"user_id"`
	AgencyID string `json:"agency_id"`
	Role     string `json:"role"`
}

// IsAdmin reports whether the identity carries the elevated agency role.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAgencyAdmin
}

// IsZero reports an unresolved identity.
func (i Identity) IsZero() bool {
	return i.UserID == "" || i.AgencyID == ""
}
