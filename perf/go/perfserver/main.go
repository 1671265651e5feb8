// perfserver is the single binary of the performance alerting service. The
// frontend, the task worker and database setup are sub-commands.
package main

import (
	"os"

	"go.treeherder.org/infra/perf/go/perfserver/cmd"
)

func main() {
	os.Exit(cmd.Execute(os.Args[1:]))
}
