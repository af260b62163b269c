package main

import (
	"os"

	"github.com/appmato/gestion/cmd/appmatoctl/cli"
)

func main() {
	os.Exit(cli.Execute(cli.Deps{}, os.Args[1:]))
}
