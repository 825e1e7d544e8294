package tui

import "testing"

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		name string
		args string
	}{
		{"open #general", "open", "#general"},
		{"o  #general ", "open", "#general"},
		{"DM ana@showroom.local", "dm", "ana@showroom.local"},
		{"s  hello world", "search", "hello world"},
		{"q", "quit", ""},
		{"h", "help", ""},
		{"status dnd", "status", "dnd"},
		{"", "", ""},
	}
	for _, tt := range tests {
		cmd := ParseCommand(tt.in)
		if cmd.Name != tt.name || cmd.Args != tt.args {
			t.Errorf("ParseCommand(%q) = %+v, want {%s %s}", tt.in, cmd, tt.name, tt.args)
		}
	}
}

func TestCommandIndex(t *testing.T) {
	n, err := ParseCommand("toggle 2").Index()
	if err != nil || n != 2 {
		t.Fatalf("Index = %d, %v", n, err)
	}
	for _, in := range []string{"toggle", "toggle 0", "toggle x"} {
		if _, err := ParseCommand(in).Index(); err == nil {
			t.Errorf("%q: expected error", in)
		}
	}
}

func TestCommandFields(t *testing.T) {
	got := ParseCommand("attach a.png   b.pdf").Fields()
	if len(got) != 2 || got[0] != "a.png" || got[1] != "b.pdf" {
		t.Fatalf("Fields = %v", got)
	}
}
