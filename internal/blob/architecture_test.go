package blob

import (
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// TestOnlyBlobPackageImportsDrivers keeps callers on the blob.Store interface:
// only this package may construct the drivers under internal/infra/blob.
func TestOnlyBlobPackageImportsDrivers(t *testing.T) {
	const (
		driverPrefix  = "heritagestore/internal/infra/blob"
		allowedPrefix = "heritagestore/internal/blob"
	)
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}
	pkgs, err := packages.Load(cfg, "heritagestore/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}

	seen := make(map[string]struct{})
	for _, pkg := range pkgs {
		if hasPrefix(pkg.PkgPath, allowedPrefix) || hasPrefix(pkg.PkgPath, driverPrefix) {
			continue
		}
		for importPath := range pkg.Imports {
			if hasPrefix(importPath, driverPrefix) {
				seen[pkg.PkgPath+": "+importPath] = struct{}{}
			}
		}
	}
	if len(seen) == 0 {
		return
	}
	violations := make([]string, 0, len(seen))
	for v := range seen {
		violations = append(violations, v)
	}
	sort.Strings(violations)
	for _, v := range violations {
		t.Errorf("forbidden import of blob driver: %s", v)
	}
}

func hasPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
