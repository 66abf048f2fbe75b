// FilePath: cmd/main.go
package main

import (
	"fmt"
	"os"

	tm "github.com/buger/goterm"
	"github.com/itsatony/sensorhub/internal/config"
	"github.com/itsatony/sensorhub/internal/server"
	nuts "github.com/vaudience/go-nuts"
)

var logo = []string{
	"   _____                            __  __      __  ",
	"  / ___/___  ____  _________  _____/ / / /_  __/ /_ ",
	"  \\__ \\/ _ \\/ __ \\/ ___/ __ \\/ ___/ /_/ / / / / __ \\",
	" ___/ /  __/ / / (__  ) /_/ / /  / __  / /_/ / /_/ /",
	"/____/\\___/_/ /_/____/\\____/_/  /_/ /_/\\__,_/_.___/ ",
}

func main() {
	nuts.InitVersion()
	if err := run(); err != nil {
		nuts.L.Errorf("[Main] %v", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if cfg.Server.Banner {
		printBanner()
	}
	nuts.L.Infof("[Main] Starting SensorHub v%s (%s)", nuts.GetVersion(), cfg.Summary())

	return server.New(cfg).Start()
}

// printBanner clears the terminal and prints the logo with the running version
func printBanner() {
	tm.Clear()
	tm.MoveCursor(1, 1)
	tm.Flush()

	fmt.Println()
	for _, line := range logo {
		fmt.Println(line)
	}
	fmt.Printf("%s  %s\n", tm.Color(fmt.Sprintf("%52s", "."), tm.CYAN), nuts.GetVersion())
}
