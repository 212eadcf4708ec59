package model

type Role string

const (
	RoleSalesRep     Role = "SALES_REP"
	RoleSalesManager Role = "SALES_MANAGER"
	RoleClient       Role = "CLIENT"
)

// Principal is the authenticated caller resolved from the identity provider.
type Principal struct {
	UserID   uint
	Role     Role
	FullName string
	Email    string
}

func (p Principal) IsSalesRep() bool     { return p.Role == RoleSalesRep }
func (p Principal) IsSalesManager() bool { return p.Role == RoleSalesManager }
func (p Principal) IsClient() bool       { return p.Role == RoleClient }
