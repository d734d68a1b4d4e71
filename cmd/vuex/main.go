// Command vuex loads CUE store definitions, runs them and checks them against
// YAML scenarios.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Layouwen/vuex-study/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
