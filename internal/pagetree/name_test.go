package pagetree

import "testing"

func TestParseFile(t *testing.T) {
	p := MustNameParser("")

	tests := []struct {
		name      string
		wantTitle string
		wantID    string
		wantOK    bool
	}{
		{"a-2.md", "a", "2", true},
		{"my-page-2.md", "my-page", "2", true},
		{"Meeting Notes 0a1b2c3d.md", "Meeting Notes", "0a1b2c3d", true},
		{"snake_case_x9.md", "snake_case", "x9", true},
		{"sub/b-4.md", "b", "4", true},
		{"index.md", "", "", false},
		{"index-3.md", "index", "3", true},
		{"notes.txt", "", "", false},
		{"-4.md", "", "", false},
		{"trailing-.md", "", "", false},
		{"Getting Started.md", "", "", false},
		{"Release Notes v2.md", "Release Notes", "v2", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, id, ok := p.ParseFile(tt.name)
			if ok != tt.wantOK || title != tt.wantTitle || id != tt.wantID {
				t.Errorf("ParseFile(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.name, title, id, ok, tt.wantTitle, tt.wantID, tt.wantOK)
			}
		})
	}
}

func TestCustomIDPattern(t *testing.T) {
	p, err := NewNameParser(`[0-9a-f]{8}`)
	if err != nil {
		t.Fatalf("NewNameParser() error = %v", err)
	}

	if _, _, ok := p.ParseStem("Release 2024"); ok {
		t.Error("expected year-like suffix to be rejected by an 8-hex pattern")
	}
	title, id, ok := p.ParseStem("Release 2024 deadbeef")
	if !ok || title != "Release 2024" || id != "deadbeef" {
		t.Errorf("ParseStem() = (%q, %q, %v)", title, id, ok)
	}
}

func TestInvalidIDPattern(t *testing.T) {
	if _, err := NewNameParser(`[`); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestIsIndexFile(t *testing.T) {
	p := MustNameParser("")
	for name, want := range map[string]bool{
		"index.md":   true,
		"Index.md":   true,
		"index-3.md": true,
		"index 3.md": true,
		"indexes.md": false,
		"a-2.md":     false,
		"index":      false,
	} {
		if got := p.IsIndexFile(name); got != want {
			t.Errorf("IsIndexFile(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestStripSuffix(t *testing.T) {
	p := MustNameParser("")
	if got := p.StripSuffix("sub 3"); got != "sub" {
		t.Errorf("StripSuffix(sub 3) = %q", got)
	}
	if got := p.StripSuffix("sub"); got != "sub" {
		t.Errorf("StripSuffix(sub) = %q", got)
	}
}

func TestTitleMatch(t *testing.T) {
	if MatchExact.Equal("Straße", "STRASSE") {
		t.Error("exact match should be case sensitive")
	}
	if !MatchFold.Equal("Straße", "strasse") {
		t.Error("fold match should use full case folding")
	}
	if !MatchFold.Valid() || TitleMatch("loose").Valid() {
		t.Error("unexpected Valid() result")
	}
}
