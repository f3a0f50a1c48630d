package authz

import (
	"errors"
	"testing"
)

func TestHasPermission_InactiveUserAlwaysDenied(t *testing.T) {
	p := Principal{Role: RoleAdmin, Active: false}
	if HasPermission(p, PermVoidInvoice) {
		t.Error("an inactive user must never be granted a permission, regardless of role")
	}
}

func TestHasPermission_RoleMapping(t *testing.T) {
	cases := []struct {
		role  Role
		perm  Permission
		grant bool
	}{
		{RoleWaiter, PermApplyDiscount, false},
		{RoleCashier, PermApplyDiscount, true},
		{RoleCashier, PermVoidAfterSubtotal, false},
		{RoleManager, PermVoidAfterSubtotal, true},
		{RoleAdmin, PermRedirectPrinter, true},
		{RoleSuperUser, PermCloseCash, true},
	}
	for _, c := range cases {
		got := HasPermission(Principal{Role: c.role, Active: true}, c.perm)
		if got != c.grant {
			t.Errorf("HasPermission(role=%s, perm=%s) = %v, want %v", c.role, c.perm, got, c.grant)
		}
	}
}

func TestRequirePermission_DeniedErrorNamesRoleAndPermission(t *testing.T) {
	err := RequirePermission(Principal{Role: RoleWaiter, Active: true}, PermCloseCash)
	if err == nil {
		t.Fatal("expected an error for a waiter requesting PermCloseCash")
	}
	var denied *DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected *DeniedError, got %T", err)
	}
	if denied.Role != RoleWaiter {
		t.Errorf("denied.Role = %s, want %s", denied.Role, RoleWaiter)
	}
	if denied.Permission != PermCloseCash {
		t.Errorf("denied.Permission = %s, want %s", denied.Permission, PermCloseCash)
	}
}

func TestRequirePermission_GrantedReturnsNil(t *testing.T) {
	if err := RequirePermission(Principal{Role: RoleManager, Active: true}, PermApplyDiscount); err != nil {
		t.Errorf("expected nil error for a manager applying a discount, got %v", err)
	}
}
