// Command netopt is the CLI binder for the multipath routing optimizer:
// a thin cobra/pflag wrapper over internal/{inventory,probe,aspath,
// planner,route,checkpoint,safety,config,events} implementing the verbs
// documented in spec §6, with the exit codes that section assigns to
// each failure kind.
package main

import (
	"os"

	"netopt/cmd/netopt/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
