package devserver

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/matheus3301/showroom/internal/chat"
)

// Seed is the initial data a server starts with.
type Seed struct {
	Channels []chat.ChannelPerms `toml:"channels"`
	Users    []User              `toml:"users"`
}

// DefaultSeed is used when no seed file is given.
func DefaultSeed() Seed {
	return Seed{
		Channels: []chat.ChannelPerms{
			{Slug: "general", Title: "General"},
			{Slug: "announcements", Title: "Announcements"},
			{Slug: "vip", Title: "VIP lounge", ReadPlan: "pro"},
			{Slug: "staff", Title: "Staff", ReadRole: "admin"},
		},
		Users: []User{
			{Email: "admin@showroom.local", Name: "Admin", Role: "admin", Plan: "pro"},
			{Email: "ana@showroom.local", Name: "Ana", Role: "member", Plan: "pro"},
			{Email: "bruno@showroom.local", Name: "Bruno", Role: "member", Plan: "free"},
		},
	}
}

// LoadSeed reads a TOML seed file with [[channels]] and [[users]] tables.
func LoadSeed(path string) (Seed, error) {
	var s Seed
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return Seed{}, fmt.Errorf("load seed %s: %w", path, err)
	}
	for i, c := range s.Channels {
		if c.Slug == "" {
			return Seed{}, fmt.Errorf("load seed %s: channel %d has no slug", path, i)
		}
	}
	for i, u := range s.Users {
		if u.Email == "" {
			return Seed{}, fmt.Errorf("load seed %s: user %d has no email", path, i)
		}
	}
	return s, nil
}
