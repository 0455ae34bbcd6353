package model

import "testing"

func TestCapabilitySet_Has(t *testing.T) {
	tests := []struct {
		name string
		set  CapabilitySet
		cap  string
		want bool
	}{
		{"exact", CapabilitySet{"Post:read": true}, "Post:read", true},
		{"exact miss", CapabilitySet{"Post:read": true}, "Post:delete", false},
		{"star", CapabilitySet{"*": true}, "User:update", true},
		{"namespace wildcard", CapabilitySet{"Post:*": true}, "Post:delete", true},
		{"namespace wildcard other list", CapabilitySet{"Post:*": true}, "User:read", false},
		{"prefix without wildcard", CapabilitySet{"Post": true}, "Post:read", false},
		{"false entry", CapabilitySet{"Post:read": false}, "Post:read", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.set.Has(tt.cap); got != tt.want {
				t.Errorf("Has(%q) = %v, want %v", tt.cap, got, tt.want)
			}
		})
	}
}

func TestCapabilitySet_HasAll(t *testing.T) {
	cs := CapabilitySet{"Post:read": true, "Post:update": true}
	if !cs.HasAll("Post:read", "Post:update") {
		t.Error("HasAll(read, update) = false, want true")
	}
	if cs.HasAll("Post:read", "Post:delete") {
		t.Error("HasAll(read, delete) = true, want false")
	}
}

func TestCapabilitySet_CanList(t *testing.T) {
	cs := CapabilitySet{"Post:*": true}
	if !cs.CanList("Post", ActionDelete) {
		t.Error("CanList(Post, delete) = false, want true")
	}
	if cs.CanList("User", ActionRead) {
		t.Error("CanList(User, read) = true, want false")
	}
	if got := ListCapability("Post", ActionCreate); got != "Post:create" {
		t.Errorf("ListCapability = %q", got)
	}
}
