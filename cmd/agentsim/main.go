// Command agentsim runs decision-graph agents in a simulated town.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/AaronLay10/decisiongraph/internal/cli"
)

func main() {
	app := cli.New()

	if err := app.Execute(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
