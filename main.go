package main

import (
	"log/slog"

	"github.com/marymwortman-lang/PureConnect/cmd"
	"github.com/marymwortman-lang/PureConnect/internal/logging"
)

func main() {
	logging.Init(slog.LevelError)
	cmd.Execute()
}
