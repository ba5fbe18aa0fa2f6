package main

import (
	"embed"
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/flankk/node/pkg/log"
)

//go:embed config/migrations/*/*.sql
var embedMigrations embed.FS

func main() {
	var logConf log.Config
	if err := cleanenv.ReadEnv(&logConf); err != nil {
		fmt.Fprintln(os.Stderr, "failed to read log config:", err)
		os.Exit(1)
	}
	logger := log.NewZapLogger(logConf)
	defer func() { _ = logger.Sync() }()

	runCli(logger.WithName("flankk"), os.Args[1:])
}
