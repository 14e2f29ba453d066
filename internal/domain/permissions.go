package domain

// Actions checked by the authorization middleware. Each maps one-to-one
// onto a token ability string.
const (
	ActionProductsWrite   = "products:write"
	ActionProductsManage  = "products:manage"
	ActionCategoriesWrite = "categories:write"
	ActionCouponsManage   = "coupons:manage"
	ActionOrdersManage    = "orders:manage"
	ActionUsersManage     = "users:manage"
	ActionGDPRManage      = "gdpr:manage"
)

// rolePermissions is the explicit permission table. Authorization is a
// lookup here, never reflection or runtime role expansion.
var rolePermissions = map[string]map[string]bool{
	RoleBuyer: {},
	RoleSeller: {
		ActionProductsWrite: true,
	},
	RoleAdmin: {
		ActionProductsWrite:   true,
		ActionProductsManage:  true,
		ActionCategoriesWrite: true,
		ActionCouponsManage:   true,
		ActionOrdersManage:    true,
		ActionUsersManage:     true,
		ActionGDPRManage:      true,
	},
}

// HasPermission reports whether the given role may perform the action.
// Unknown roles and unknown actions are denied.
func HasPermission(role, action string) bool {
	perms, ok := rolePermissions[role]
	if !ok {
		return false
	}
	return perms[action]
}

// AbilitiesForRole returns the ability strings embedded in access tokens
// issued to users of the given role.
func AbilitiesForRole(role string) []string {
	perms, ok := rolePermissions[role]
	if !ok {
		return nil
	}
	abilities := make([]string, 0, len(perms))
	for action, allowed := range perms {
		if allowed {
			abilities = append(abilities, action)
		}
	}
	return abilities
}
