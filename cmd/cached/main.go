package main

import (
	"github.com/himakhaitan/wscache/cli/commands"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(commands.ServerOptions())
	app.Run()
}
