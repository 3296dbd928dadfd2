package cmd

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseEnvPairs(t *testing.T) {
	got, err := parseEnvPairs([]string{"FOO=bar", "BAZ=qux=extra"})
	if err != nil {
		t.Fatalf("parseEnvPairs() error = %v", err)
	}
	if got["FOO"] != "bar" || got["BAZ"] != "qux=extra" {
		t.Errorf("parseEnvPairs() = %+v", got)
	}
}

func TestParseEnvPairs_RejectsMissingEquals(t *testing.T) {
	if _, err := parseEnvPairs([]string{"NOVALUE"}); err == nil {
		t.Error("parseEnvPairs() should reject an entry with no '='")
	}
}

func TestReadDomainsFile_SkipsBlankLinesAndComments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "domains.txt")
	content := "github.com\n\n# a comment\napi.example.com\n   \n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	got, err := readDomainsFile(path)
	if err != nil {
		t.Fatalf("readDomainsFile() error = %v", err)
	}
	want := []string{"github.com", "api.example.com"}
	if len(got) != len(want) {
		t.Fatalf("readDomainsFile() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("readDomainsFile()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestReadDomainsFile_MissingFile(t *testing.T) {
	if _, err := readDomainsFile("/no/such/file"); err == nil {
		t.Error("readDomainsFile() should error on a missing file")
	}
}

func TestJoinShellArgs_EscapesSingleQuotes(t *testing.T) {
	got := joinShellArgs([]string{"echo", "it's fine"})
	want := `'echo' 'it'\''s fine'`
	if got != want {
		t.Errorf("joinShellArgs() = %q, want %q", got, want)
	}
}

func TestHostEnvMap_SplitsOnFirstEquals(t *testing.T) {
	t.Setenv("AWF_TEST_VAR", "a=b=c")
	got := hostEnvMap()
	if got["AWF_TEST_VAR"] != "a=b=c" {
		t.Errorf("hostEnvMap()[AWF_TEST_VAR] = %q, want %q", got["AWF_TEST_VAR"], "a=b=c")
	}
}
