package auth

import "time"

// User represents a back-office user account.
type User struct {
	ID           int64
	Email        string
	Name         string
	Role         Role
	BranchID     int64
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Role is a coarse permission bundle. Dealerships run small staffs, so a
// fixed role set beats per-user permission rows.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleClerk   Role = "clerk"
)

var rolePermissions = map[Role][]string{
	RoleAdmin: {
		"inventory.view", "inventory.edit", "inventory.transfer",
		"sales.view", "sales.edit",
		"procurement.view", "procurement.edit",
		"masterdata.view", "masterdata.edit",
		"reports.view",
	},
	RoleManager: {
		"inventory.view", "inventory.edit", "inventory.transfer",
		"sales.view", "sales.edit",
		"procurement.view", "procurement.edit",
		"masterdata.view",
		"reports.view",
	},
	RoleClerk: {
		"inventory.view",
		"sales.view",
		"masterdata.view",
	},
}

// Permissions returns the permission strings granted to the role.
func (r Role) Permissions() []string {
	return rolePermissions[r]
}

// Has reports whether the role carries the named permission.
func (r Role) Has(perm string) bool {
	for _, p := range rolePermissions[r] {
		if p == perm {
			return true
		}
	}
	return false
}

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	_, ok := rolePermissions[r]
	return ok
}
