package identity

import (
	"context"
	"testing"
)

func TestIdentity_HasAnyRole(t *testing.T) {
	idt := Identity{Subject: "u1", Roles: []string{RoleAdminOwner, RoleAccountant}}

	tests := []struct {
		name  string
		roles []string
		want  bool
	}{
		{name: "no roles", want: true},
		{name: "held role", roles: []string{RoleAccountant}, want: true},
		{name: "one of many", roles: []string{RoleStudent, RoleAdminOwner}, want: true},
		{name: "missing role", roles: []string{RoleStudent}},
		{name: "prefix is not a match", roles: []string{RoleAdmin}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := idt.HasAnyRole(tt.roles...); got != tt.want {
				t.Errorf("HasAnyRole() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestContext(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Error("FromContext() found an identity in an empty context")
	}
	ctx := NewContext(context.Background(), Identity{Subject: "u1"})
	idt, ok := FromContext(ctx)
	if !ok || idt.Subject != "u1" {
		t.Errorf("FromContext() = %+v, %v", idt, ok)
	}
}
