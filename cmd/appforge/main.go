package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/forgeworks/appforge/internal/config"
	"github.com/forgeworks/appforge/internal/version"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"appforge.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Serve struct {
	} `cmd:"" help:"Run the build service: queue, workers, HTTP API"`

	Build struct {
		Partner string `short:"p" required:"" help:"Partner identifier"`
		File    string `short:"f" required:"" help:"Partner configuration file (YAML)"`
		Kind    string `short:"k" help:"Build kind (debug|release)" default:"debug"`
		Tier    string `short:"t" help:"Partner tier (basic|premium|enterprise)" default:"basic"`
	} `cmd:"" help:"Run one build to completion without starting the service"`

	Validate struct {
		Partner string `short:"p" required:"" help:"Partner identifier"`
		File    string `short:"f" required:"" help:"Partner configuration file (YAML)"`
	} `cmd:"" help:"Validate a partner configuration and exit"`

	Version struct {
	} `cmd:"" help:"Print version information"`
}

func main() {
	ctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	switch ctx.Command() {
	case "serve":
		cfg, err := loadConfig(CLI.Config, logger)
		if err != nil {
			logger.Error("failed to load configuration", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := runServe(cfg, logger); err != nil {
			logger.Error("service failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	case "build":
		cfg, err := loadConfig(CLI.Config, logger)
		if err != nil {
			logger.Error("failed to load configuration", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := runBuild(cfg, logger); err != nil {
			logger.Error("build failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	case "validate":
		if err := runValidate(); err != nil {
			os.Exit(1)
		}
	case "version":
		fmt.Println(version.String())
	}
}

func loadConfig(path string, logger *slog.Logger) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Warn("configuration file not found, using defaults", slog.String("path", path))
		return config.Default(), nil
	}
	return config.Load(path)
}
