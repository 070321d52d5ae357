package main

import (
	"fmt"
	"os"

	"github.com/fancylads/bespoke/cmd"
	"github.com/fancylads/bespoke/internal/config"
)

func main() {
	cfg := config.NewConfigurationWithOptionsAndDefaults()
	if err := cmd.NewRootCommand(cfg).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
