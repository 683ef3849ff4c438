package testutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestInternalImportForbidden(t *testing.T) {
	cases := map[string]bool{
		"doccore/internal/core": true,
		"internal/x":            true,
		"doccore/pkg/domain":    false,
	}
	for in, want := range cases {
		if got := InternalImportForbidden(in); got != want {
			t.Fatalf("InternalImportForbidden(%q)=%v want %v", in, got, want)
		}
	}
}

func TestStorageDriverForbidden(t *testing.T) {
	cases := map[string]bool{
		"github.com/jackc/pgx/v5/stdlib":               true,
		"github.com/aws/aws-sdk-go-v2/service/s3":      true,
		"modernc.org/sqlite":                           true,
		"doccore/internal/infra/persistence/memory":    true,
		"github.com/expr-lang/expr":                    false,
		"doccore/pkg/domain":                           false,
		"github.com/jackc/pgpassfile-not-a-driver-dep": false,
	}
	for in, want := range cases {
		if got := StorageDriverForbidden(in); got != want {
			t.Fatalf("StorageDriverForbidden(%q)=%v want %v", in, got, want)
		}
	}
}

func writeFile(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package tmp\nimport (\n\t\"fmt\"\n\t\"doccore/internal/core\"\n)\nvar _ = fmt.Sprint\n")
	writeFile(t, dir, "a_test.go", "package tmp\nimport \"modernc.org/sqlite\"\n")
	writeFile(t, dir, "notes.txt", "import \"doccore/internal/x\"")

	viols, err := directImportViolations(dir, InternalImportForbidden)
	if err != nil {
		t.Fatalf("directImportViolations: %v", err)
	}
	if len(viols) != 1 || viols[0] != "doccore/internal/core (in a.go)" {
		t.Fatalf("unexpected violations %v", viols)
	}
	AssertNoDirectImports(t, dir, StorageDriverForbidden, "test files are ignored")

	writeFile(t, dir, "broken.go", "package tmp\nimport (")
	if _, err := directImportViolations(dir, InternalImportForbidden); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := directImportViolations(filepath.Join(dir, "missing"), InternalImportForbidden); err == nil {
		t.Fatalf("expected read error")
	}
}

func TestTransitiveDependencyViolations(t *testing.T) {
	prev := goListDeps
	t.Cleanup(func() { goListDeps = prev })

	goListDeps = func(string) ([]byte, error) {
		return []byte("fmt\ndoccore/pkg/domain\n\ngithub.com/jackc/pgx/v5\n"), nil
	}
	viols, _, err := transitiveDependencyViolations("./...", StorageDriverForbidden)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(viols) != 1 || viols[0] != "github.com/jackc/pgx/v5" {
		t.Fatalf("unexpected violations %v", viols)
	}

	goListDeps = func(string) ([]byte, error) { return []byte("boom"), errors.New("exit 1") }
	if _, out, err := transitiveDependencyViolations(".", StorageDriverForbidden); err == nil || string(out) != "boom" {
		t.Fatalf("expected go list failure, got %v %q", err, out)
	}
}
