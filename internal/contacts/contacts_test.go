package contacts

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"blastbot/internal/phone"
	logx "blastbot/pkg/logx"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contacts.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoadNormalizesAndDefaults(t *testing.T) {
	t.Parallel()
	src := NewSource(phone.Default(), logx.Nop())

	path := writeFile(t, strings.Join([]string{
		"name,phone,message",
		"Alice,081234567,Custom hello {name}",
		",6281234568,",
		"Bob,,skipped because no phone",
		"Carol,81234569",
	}, "\n"))

	got, err := src.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}

	if got[0].Name != "Alice" || got[0].Phone != "6281234567@s.whatsapp.net" || got[0].Message != "Custom hello {name}" {
		t.Fatalf("unexpected first contact: %+v", got[0])
	}
	if got[1].Name != DefaultName {
		t.Fatalf("Name = %q, want default %q", got[1].Name, DefaultName)
	}
	if got[1].Message != "" {
		t.Fatalf("Message = %q, want empty (use run default)", got[1].Message)
	}
	// Short row: message column entirely absent still defaults.
	if got[2].Phone != "6281234569@s.whatsapp.net" || got[2].Message != "" {
		t.Fatalf("unexpected third contact: %+v", got[2])
	}
}

func TestLoadIgnoresUnknownColumns(t *testing.T) {
	t.Parallel()
	src := NewSource(phone.Default(), logx.Nop())
	path := writeFile(t, "email,phone,notes\na@example.com,0811,vip\n")

	got, err := src.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(got) != 1 || got[0].Name != DefaultName {
		t.Fatalf("unexpected contacts: %+v", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	src := NewSource(phone.Default(), logx.Nop())
	_, err := src.Load(filepath.Join(t.TempDir(), "nope.csv"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestLoadParseErrors(t *testing.T) {
	t.Parallel()
	src := NewSource(phone.Default(), logx.Nop())

	tests := []struct {
		name    string
		content string
	}{
		{name: "empty file", content: ""},
		{name: "no phone column", content: "name,message\nAlice,hi\n"},
		{name: "broken quoting", content: "name,phone\n\"Alice,0811\n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := src.Load(writeFile(t, tt.content))
			if !errors.Is(err, ErrParse) {
				t.Fatalf("err = %v, want ErrParse", err)
			}
		})
	}
}
