package main

import (
	"os"

	"github.com/kthezelais/budget-tracker/internal/cli"
	"github.com/pterm/pterm"

	_ "time/tzdata"
)

var version = "dev"

func main() {
	app := cli.NewApp(version)
	if err := app.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}
