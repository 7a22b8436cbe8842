//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	semver "github.com/Masterminds/semver/v3"
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
	"github.com/pkg/errors"
)

const GO_VERSION_CONSTRAINT = ">= 1.18"

const buildPackage = "github.com/polysweep/polysweep/internal/sweepctl/build"

// Build sweepctl into bin/ with version metadata baked in.
func Build() error {
	mg.Deps(goCheck)
	ldflags := strings.Join([]string{
		fmt.Sprintf("-X %s.ReleaseVersion=%s", buildPackage, releaseVersion()),
		fmt.Sprintf("-X %s.GitCommit=%s", buildPackage, gitCommit()),
		fmt.Sprintf("-X %s.BuildTime=%s", buildPackage, time.Now().UTC().Format(time.RFC3339)),
		fmt.Sprintf("-X %s.GoVersion=%s", buildPackage, runtime.Version()),
	}, " ")
	return goRun("build", "-ldflags", ldflags, "-o", filepath.Join("bin", binaryWithExt("sweepctl")), "cmd/sweepctl/main.go")
}

// Check dependent tools are present and the correct version.
func CheckDeps() error {
	checks := []struct {
		name  string
		check func() error
	}{
		{"go", goCheck},
		{"golangci-lint", golangciLintCheck},
	}
	failures := false
	for _, check := range checks {
		fmt.Printf("Checking %s... ", check.name)
		if err := check.check(); err != nil {
			fmt.Printf("FAILED\nReason: %v\n", err)
			failures = true
		} else {
			fmt.Println("PASSED")
		}
	}
	if failures {
		return errors.New("check(s) failed.")
	}
	return nil
}

// Cleans build and test artifacts.
func Clean() {
	fmt.Println("Cleaning...")
	for _, path := range []string{"bin", "test_reports"} {
		os.RemoveAll(path)
	}
}

func releaseVersion() string {
	version, err := sh.Output("git", "describe", "--tags", "--always")
	if err != nil {
		return "UNKNOWN"
	}
	return version
}

func gitCommit() string {
	commit, err := sh.Output("git", "rev-parse", "--short", "HEAD")
	if err != nil {
		return "UNKNOWN"
	}
	return commit
}

// Check the go version meets the predefined constraints
func goCheck() error {
	output, err := goOutput("version")
	if err != nil {
		return errors.Errorf("error running version cmd: %v", err)
	}
	fields := strings.Fields(output)
	if len(fields) < 3 {
		return errors.Errorf("unexpected version cmd output: %s", output)
	}
	version, err := semver.NewVersion(strings.TrimPrefix(fields[2], "go"))
	if err != nil {
		return errors.Errorf("error parsing version: %v", err)
	}
	constraint, err := semver.NewConstraint(GO_VERSION_CONSTRAINT)
	if err != nil {
		return errors.Errorf("error parsing constraint: %v", err)
	}
	if !constraint.Check(version) {
		return errors.Errorf("found version %v but it failed constraint %v", version, constraint)
	}
	return nil
}
