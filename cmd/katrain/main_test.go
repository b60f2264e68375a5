package main

import "testing"

func TestRootCommand(t *testing.T) {
	cmd := newRootCommand()
	for _, name := range []string{"serve", "gtp", "selfplay"} {
		sub, _, err := cmd.Find([]string{name})
		if err != nil || sub.Name() != name {
			t.Fatalf("subcommand %s missing: %v", name, err)
		}
	}
	if cmd.PersistentFlags().Lookup("config") == nil || cmd.PersistentFlags().Lookup("debug") == nil {
		t.Fatalf("persistent flags missing")
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := NewLogger(false, "warn"); err != nil {
		t.Fatalf("warn level: %v", err)
	}
	if _, err := NewLogger(true, ""); err != nil {
		t.Fatalf("debug logger: %v", err)
	}
	if _, err := NewLogger(false, "loud"); err == nil {
		t.Fatalf("unknown level accepted")
	}
}
