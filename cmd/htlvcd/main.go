package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"

	"github.com/danmuck/htlvc/internal/device"
	"github.com/danmuck/htlvc/internal/logging"
	"github.com/danmuck/htlvc/internal/observability"
)

func main() {
	configPath := flag.String("config", "cmd/htlvcd/ex.config.toml", "service config path")
	flag.Parse()

	logging.ConfigureRuntime()
	logger := observability.InitLogger("htlvcd")

	cfg := device.DefaultServiceConfig()
	if _, err := os.Stat(*configPath); err == nil {
		loaded, err := loadServiceConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "htlvcd: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	} else if !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "htlvcd: %v\n", err)
		os.Exit(1)
	} else {
		logger.Warn().Str("config", *configPath).Msg("htlvcd config not found, using defaults")
	}

	svc := device.NewServiceWithConfig(cfg)
	if err := svc.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "htlvcd: %v\n", err)
		os.Exit(1)
	}
}
