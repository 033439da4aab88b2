package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
)

const modulePath = "lockstep/client"

type packageInfo struct {
	ImportPath string
	Imports    []string
}

// layerRule forbids packages matched by Pattern from importing any of the
// listed prefixes.
type layerRule struct {
	Pattern   string
	Forbidden []string
}

var rules = []layerRule{
	{
		Pattern: "./internal/sim/...",
		Forbidden: []string{
			modulePath + "/internal/net",
			modulePath + "/internal/session",
			modulePath + "/internal/app",
		},
	},
	{
		Pattern: "./internal/net/packet/...",
		Forbidden: []string{
			modulePath + "/internal/session",
			modulePath + "/internal/app",
		},
	},
	{
		Pattern: "./internal/net/proto/...",
		Forbidden: []string{
			modulePath + "/internal/session",
			modulePath + "/internal/app",
		},
	},
	{
		Pattern: "./internal/net/transport/...",
		Forbidden: []string{
			modulePath + "/internal/session",
			modulePath + "/internal/app",
		},
	},
	{
		Pattern: "./internal/session/...",
		Forbidden: []string{
			modulePath + "/internal/app",
			modulePath + "/internal/headless",
			modulePath + "/internal/savestore",
			modulePath + "/internal/net/diagnostics",
		},
	},
}

func main() {
	var violations []string
	for _, rule := range rules {
		pkgs, err := listPackages(rule.Pattern)
		if err != nil {
			fmt.Fprintf(os.Stderr, "depscheck: %v\n", err)
			os.Exit(1)
		}
		for _, pkg := range pkgs {
			for _, imp := range pkg.Imports {
				for _, prefix := range rule.Forbidden {
					if imp == prefix || strings.HasPrefix(imp, prefix+"/") {
						violations = append(violations, fmt.Sprintf("%s -> %s", pkg.ImportPath, imp))
					}
				}
			}
		}
	}

	if len(violations) > 0 {
		sort.Strings(violations)
		fmt.Fprintln(os.Stderr, "depscheck: found forbidden imports:")
		for _, violation := range violations {
			fmt.Fprintf(os.Stderr, "  %s\n", violation)
		}
		os.Exit(1)
	}
}

func listPackages(pattern string) ([]packageInfo, error) {
	cmd := exec.Command("go", "list", "-json", pattern)
	cmd.Env = os.Environ()
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.Stderr.Write(exitErr.Stderr)
		}
		return nil, fmt.Errorf("failed to list packages %s: %w", pattern, err)
	}

	var pkgs []packageInfo
	decoder := json.NewDecoder(bytes.NewReader(output))
	for {
		var pkg packageInfo
		if err := decoder.Decode(&pkg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to decode package info: %w", err)
		}
		pkgs = append(pkgs, pkg)
	}
	return pkgs, nil
}
