// Command layercheck is an import restriction linter for the certification
// core.
//
// The packages that decide verdicts must stay free of storage drivers, CLI
// wiring and telemetry SDKs so a verdict depends only on the certification
// documents and the run inputs.
//
// Usage:
//
//	go run ./tools/layercheck [-root <project-root>]
package main

import (
	"flag"
	"fmt"
	"go/parser"
	"go/token"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// corePackages are the directories under pkg/ that form the certification core.
var corePackages = []string{
	"builtin",
	"canonicalize",
	"certify",
	"confidence",
	"contract",
	"document",
	"evidence",
	"policy",
	"provenance",
	"triggers",
}

// Forbidden import path fragments. Any non-test Go file in a core package
// that imports one of these is a violation.
var forbiddenFragments = []string{
	"/pkg/archive",
	"/pkg/config",
	"/pkg/observability",
	"/cmd/",
	"github.com/spf13/cobra",
	"github.com/lib/pq",
	"modernc.org/sqlite",
	"go.opentelemetry.io/otel/sdk",
	"go.opentelemetry.io/otel/exporters",
}

// Violation is a single forbidden import.
type Violation struct {
	File     string
	Line     int
	Import   string
	Fragment string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s:%d imports %q (forbidden: %q)", v.File, v.Line, v.Import, v.Fragment)
}

func main() {
	root := flag.String("root", ".", "Project root directory")
	flag.Parse()
	os.Exit(run(*root, os.Stdout, os.Stderr))
}

func run(root string, stdout, stderr io.Writer) int {
	violations, err := Check(root)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}
	for _, v := range violations {
		_, _ = fmt.Fprintf(stdout, "LAYER VIOLATION: %s\n", v)
	}
	if len(violations) > 0 {
		_, _ = fmt.Fprintf(stdout, "\n%d layer violation(s) found\n", len(violations))
		return 1
	}
	_, _ = fmt.Fprintln(stdout, "layer check passed: certification core has no forbidden imports")
	return 0
}

// Check scans the core packages under root/pkg and returns every forbidden
// import, ordered by file and line.
func Check(root string) ([]Violation, error) {
	pkgDir := filepath.Join(root, "pkg")
	if _, err := os.Stat(pkgDir); err != nil {
		return nil, fmt.Errorf("%s: %w", pkgDir, err)
	}

	var violations []Violation
	fset := token.NewFileSet()
	for _, name := range corePackages {
		dir := filepath.Join(pkgDir, name)
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".go") || strings.HasSuffix(e.Name(), "_test.go") {
				continue
			}
			path := filepath.Join(dir, e.Name())
			f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
			if err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
			for _, imp := range f.Imports {
				importPath := strings.Trim(imp.Path.Value, `"`)
				for _, frag := range forbiddenFragments {
					if !strings.Contains(importPath, frag) {
						continue
					}
					rel, relErr := filepath.Rel(root, path)
					if relErr != nil {
						rel = path
					}
					violations = append(violations, Violation{
						File:     filepath.ToSlash(rel),
						Line:     fset.Position(imp.Pos()).Line,
						Import:   importPath,
						Fragment: frag,
					})
				}
			}
		}
	}
	sort.Slice(violations, func(i, j int) bool {
		if violations[i].File != violations[j].File {
			return violations[i].File < violations[j].File
		}
		return violations[i].Line < violations[j].Line
	})
	return violations, nil
}
