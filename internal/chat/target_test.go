package chat

import (
	"testing"
	"time"
)

func TestParseTarget(t *testing.T) {
	tests := []struct {
		in      string
		want    Target
		wantErr bool
	}{
		{"#General", Channel("general"), false},
		{"general", Channel("general"), false},
		{"channel:deals", Channel("deals"), false},
		{"@Bob@x.com", DM("bob@x.com"), false},
		{"dm:bob@x.com", DM("bob@x.com"), false},
		{"bob@x.com", DM("bob@x.com"), false},
		{"@bob", Target{}, true},
		{"", Target{}, true},
		{"#", Target{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTarget(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTarget(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseTarget(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestTargetKeyAndString(t *testing.T) {
	if k := Channel("general").Key(); k != "channel:general" {
		t.Errorf("Key() = %q", k)
	}
	if s := DM("a@x.com").String(); s != "@a@x.com" {
		t.Errorf("String() = %q", s)
	}
	if k := (Target{}).Key(); k != "" {
		t.Errorf("zero Key() = %q", k)
	}
}

func TestChannelPermsIsLocked(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Minute)
	past := now.Add(-time.Minute)

	tests := []struct {
		name  string
		perms ChannelPerms
		want  bool
	}{
		{"open", ChannelPerms{}, false},
		{"flag", ChannelPerms{Locked: true}, true},
		{"until future", ChannelPerms{LockedUntil: &future}, true},
		{"until past", ChannelPerms{LockedUntil: &past}, false},
		{"flag beats past until", ChannelPerms{Locked: true, LockedUntil: &past}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.perms.IsLocked(now); got != tt.want {
				t.Errorf("IsLocked() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestChannelPermsCanRead(t *testing.T) {
	perms := ChannelPerms{ReadRole: "dealer", ReadPlan: "pro"}
	if perms.CanRead(Identity{Role: "member", Plan: "pro"}) {
		t.Error("member read a dealer channel")
	}
	if !perms.CanRead(Identity{Role: "dealer", Plan: "PRO"}) {
		t.Error("dealer on pro plan denied")
	}
	if !perms.CanRead(Identity{Role: "admin"}) {
		t.Error("admin denied")
	}
}
