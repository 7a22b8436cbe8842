//go:build mage
// +build mage

package main

import (
	"fmt"
	"runtime"

	"github.com/magefile/mage/sh"
)

func binaryWithExt(name string) string {
	if runtime.GOOS == "windows" {
		return fmt.Sprintf("%s.exe", name)
	}
	return name
}

func goRun(args ...string) error {
	return sh.RunV("go", args...)
}

func goOutput(args ...string) (string, error) {
	return sh.Output("go", args...)
}
