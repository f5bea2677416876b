// designlint walks kernel/src and checks that every package directory is
// cited somewhere in DESIGN.md's grounding ledger. It is a host-side audit
// tool, not part of the kernel build: run it by hand after adding or
// renaming a package, the same way the rest of this tree's tooling
// (cmd/dtbinfo) is run by hand; no build or test step invokes either.
//
// Usage: go run kernel/scripts/designlint.go <repo-root>
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// pkgInfo is one kernel/src package directory found on disk.
type pkgInfo struct {
	name string
	path string
}

func findPackages(srcRoot string) ([]pkgInfo, error) {
	entries, err := os.ReadDir(srcRoot)
	if err != nil {
		return nil, err
	}
	var pkgs []pkgInfo
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(srcRoot, e.Name())
		if hasGoFiles(dir) {
			pkgs = append(pkgs, pkgInfo{name: e.Name(), path: dir})
			continue
		}
		// arch has per-target subdirectories (arm64, riscv64, sim) rather
		// than .go files directly in kernel/src/arch.
		sub, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, se := range sub {
			if se.IsDir() && hasGoFiles(filepath.Join(dir, se.Name())) {
				pkgs = append(pkgs, pkgInfo{name: e.Name() + "/" + se.Name(), path: filepath.Join(dir, se.Name())})
			}
		}
	}
	return pkgs, nil
}

func hasGoFiles(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".go") && !strings.HasSuffix(e.Name(), "_test.go") {
			return true
		}
	}
	return false
}

// cited reports whether pkg's base name appears anywhere in the ledger
// text. This is deliberately a loose substring check, not a parse of
// DESIGN.md's structure: the ledger is prose, and a false negative here
// (a package mentioned under a different heading than expected) is a far
// cheaper mistake than a parser that silently breaks on reformatting.
func cited(ledger, pkg string) bool {
	base := pkg
	if i := strings.LastIndex(pkg, "/"); i >= 0 {
		base = pkg[i+1:]
	}
	return strings.Contains(ledger, base)
}

func main() {
	if len(os.Args) != 2 {
		fmt.Println("designlint <repo-root>")
		os.Exit(2)
	}
	root := os.Args[1]
	ledgerBytes, err := os.ReadFile(filepath.Join(root, "DESIGN.md"))
	if err != nil {
		fmt.Printf("reading DESIGN.md: %v\n", err)
		os.Exit(1)
	}
	ledger := string(ledgerBytes)

	pkgs, err := findPackages(filepath.Join(root, "kernel", "src"))
	if err != nil {
		fmt.Printf("walking kernel/src: %v\n", err)
		os.Exit(1)
	}

	var missing []string
	for _, p := range pkgs {
		if !cited(ledger, p.name) {
			missing = append(missing, p.name)
		}
	}

	fmt.Printf("packages: %d, cited: %d, missing: %d\n", len(pkgs), len(pkgs)-len(missing), len(missing))
	for _, m := range missing {
		fmt.Printf("  ungrounded: kernel/src/%s\n", m)
	}
	if len(missing) > 0 {
		os.Exit(1)
	}
}
