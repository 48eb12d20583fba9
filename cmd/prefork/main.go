package main

import (
	"github.com/Paintersrp/prefork/internal/cli"
	"github.com/Paintersrp/prefork/internal/metrics"
)

func main() {
	metrics.EmitBuildInfo()
	cli.Execute()
}
