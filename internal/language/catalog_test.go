package language

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestBuiltin_Entries(t *testing.T) {
	c := Builtin()

	if c.Len() < 10 {
		t.Fatalf("Len() = %d, want at least 10", c.Len())
	}

	list := c.List()
	if list[0].ID != DefaultLanguageID {
		t.Errorf("List()[0].ID = %v, want %v", list[0].ID, DefaultLanguageID)
	}

	want := []string{"english", "hindi", "bengali", "telugu", "marathi", "tamil", "gujarati", "kannada", "malayalam", "punjabi"}
	for _, id := range want {
		if _, err := c.Resolve(id); err != nil {
			t.Errorf("Resolve(%q) error = %v", id, err)
		}
	}
}

func TestResolve(t *testing.T) {
	c := Builtin()

	tests := []struct {
		id         string
		wantFamily string
		wantTag    string
		wantErr    bool
	}{
		{"hindi", "hi", "hi-IN", false},
		{"Tamil", "ta", "ta-IN", false},
		{" english ", "en", "en-IN", false},
		{"klingon", "", "", true},
		{"", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			l, err := c.Resolve(tt.id)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Resolve() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownLanguage) {
					t.Errorf("Resolve() error = %v, want ErrUnknownLanguage", err)
				}
				return
			}
			if l.LocaleFamily != tt.wantFamily {
				t.Errorf("LocaleFamily = %v, want %v", l.LocaleFamily, tt.wantFamily)
			}
			if l.LocaleTag != tt.wantTag {
				t.Errorf("LocaleTag = %v, want %v", l.LocaleTag, tt.wantTag)
			}
		})
	}
}

func TestList_ReturnsCopy(t *testing.T) {
	c := Builtin()
	list := c.List()
	list[1].DisplayName = "changed"

	l, _ := c.Resolve(list[1].ID)
	if l.DisplayName == "changed" {
		t.Error("List() exposed internal storage")
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		entries []Language
	}{
		{"missing default", []Language{{ID: "hindi", LocaleFamily: "hi"}}},
		{"duplicate", []Language{{ID: "english", LocaleFamily: "en"}, {ID: "english", LocaleFamily: "en"}}},
		{"empty id", []Language{{ID: "english", LocaleFamily: "en"}, {ID: " ", LocaleFamily: "xx"}}},
		{"no family", []Language{{ID: "english"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.entries); err == nil {
				t.Error("New() expected error")
			}
		})
	}
}

func TestMergeRemote(t *testing.T) {
	c := Builtin()
	unknown := c.MergeRemote(map[string]string{
		"hindi":   "Hindi (हिंदी)",
		"odia":    "ଓଡ଼ିଆ",
		"bengali":  "  ",
	})

	if len(unknown) != 1 || unknown[0] != "odia" {
		t.Errorf("MergeRemote() unknown = %v, want [odia]", unknown)
	}
	if l, _ := c.Resolve("hindi"); l.DisplayName != "Hindi (हिंदी)" {
		t.Errorf("hindi DisplayName = %v, want Hindi (हिंदी)", l.DisplayName)
	}
	if l, _ := c.Resolve("bengali"); l.DisplayName != "বাংলা" {
		t.Errorf("bengali DisplayName = %v, want unchanged", l.DisplayName)
	}
	if c.Len() != 10 {
		t.Errorf("Len() = %d, want 10", c.Len())
	}
}

type stubFetcher struct {
	names map[string]string
	err   error
}

func (s stubFetcher) Languages(ctx context.Context) (map[string]string, error) {
	return s.names, s.err
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "languages.yaml")
	content := `languages:
  - id: odia
    display_name: ଓଡ଼ିଆ
    locale_family: or
    locale_tag: or-IN
  - id: english
    locale_tag: en-US
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	c := Load(context.Background(), Options{
		File:    path,
		Fetcher: stubFetcher{names: map[string]string{"odia": "Odia"}},
	})

	if c.Len() != 11 {
		t.Fatalf("Len() = %d, want 11", c.Len())
	}
	odia, err := c.Resolve("odia")
	if err != nil {
		t.Fatalf("Resolve(odia) error = %v", err)
	}
	if odia.DisplayName != "Odia" {
		t.Errorf("odia DisplayName = %v, want Odia", odia.DisplayName)
	}
	if en := c.Default(); en.LocaleTag != "en-US" || en.DisplayName != "English" {
		t.Errorf("Default() = %+v, want en-US tag and English name", en)
	}
}

func TestLoad_OverrideIDCase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "languages.yaml")
	content := `languages:
  - id: " Hindi "
    display_name: Hindi
  - id: odia
    display_name: ଓଡ଼ିଆ
    locale_family: or
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	c := Load(context.Background(), Options{File: path})

	if c.Len() != 11 {
		t.Fatalf("Len() = %d, want 11", c.Len())
	}
	hi, err := c.Resolve("hindi")
	if err != nil {
		t.Fatalf("Resolve(hindi) error = %v", err)
	}
	if hi.DisplayName != "Hindi" || hi.LocaleTag != "hi-IN" {
		t.Errorf("hindi = %+v, want renamed entry keeping hi-IN", hi)
	}
	if _, err := c.Resolve("odia"); err != nil {
		t.Errorf("Resolve(odia) error = %v", err)
	}
	if got := c.List()[1].ID; got != "hindi" {
		t.Errorf("List()[1] = %q, want hindi in its built-in position", got)
	}
}

func TestLoad_Fallbacks(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("languages: [ {id: x"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	tests := []struct {
		name string
		opts Options
	}{
		{"missing file", Options{File: filepath.Join(dir, "missing.yaml")}},
		{"corrupt file", Options{File: bad}},
		{"fetch failure", Options{Fetcher: stubFetcher{err: errors.New("connection refused")}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Load(context.Background(), tt.opts)
			if c.Len() != len(builtin) {
				t.Errorf("Len() = %d, want %d", c.Len(), len(builtin))
			}
		})
	}
}
