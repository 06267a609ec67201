package main

import "github.com/openfleet/lastmile/internal/adapters/cli"

func main() {
	cli.Execute()
}
