package main

import (
	"github.com/polysweep/polysweep/cmd/sweepctl/cmd"
	"github.com/polysweep/polysweep/internal/common"
)

func main() {
	common.ConfigureCommandLineLogging()
	cmd.Execute()
}
