package domain

import "testing"

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role    string
		action  string
		allowed bool
	}{
		{RoleBuyer, ActionProductsWrite, false},
		{RoleBuyer, ActionOrdersManage, false},
		{RoleSeller, ActionProductsWrite, true},
		{RoleSeller, ActionProductsManage, false},
		{RoleSeller, ActionCouponsManage, false},
		{RoleAdmin, ActionProductsWrite, true},
		{RoleAdmin, ActionProductsManage, true},
		{RoleAdmin, ActionCategoriesWrite, true},
		{RoleAdmin, ActionCouponsManage, true},
		{RoleAdmin, ActionOrdersManage, true},
		{RoleAdmin, ActionUsersManage, true},
		{RoleAdmin, ActionGDPRManage, true},
		{"superuser", ActionProductsWrite, false},
		{RoleAdmin, "products:teleport", false},
		{"", "", false},
	}

	for _, tt := range tests {
		if got := HasPermission(tt.role, tt.action); got != tt.allowed {
			t.Errorf("HasPermission(%q, %q) = %v, want %v", tt.role, tt.action, got, tt.allowed)
		}
	}
}

func TestAbilitiesForRole(t *testing.T) {
	buyer := AbilitiesForRole(RoleBuyer)
	if len(buyer) != 0 {
		t.Errorf("buyer abilities = %v, want none", buyer)
	}

	seller := AbilitiesForRole(RoleSeller)
	if len(seller) != 1 || seller[0] != ActionProductsWrite {
		t.Errorf("seller abilities = %v, want only products:write", seller)
	}

	// Every admin ability must round-trip through HasPermission
	for _, ability := range AbilitiesForRole(RoleAdmin) {
		if !HasPermission(RoleAdmin, ability) {
			t.Errorf("admin ability %q not granted by HasPermission", ability)
		}
	}

	if AbilitiesForRole("unknown") != nil {
		t.Error("unknown role must yield no abilities")
	}
}
