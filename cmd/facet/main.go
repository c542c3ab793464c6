package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hpungsan/facet/internal/app"
	"github.com/hpungsan/facet/internal/config"
	"github.com/hpungsan/facet/internal/logging"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
    __                _
   / _| __ _  ___ ___| |_
  | |_ / _' |/ __/ _ \ __|
  |  _| (_| | (_|  __/ |_
  |_|  \__,_|\___\___|\__|

  Persona extraction and storage

  Usage: facet <command> [options]
         facet --help

  MCP server mode requires piped input.`)
}

// deps lazily loads configuration and connects services on first use, so
// --help and config need neither a config file nor credentials.
type deps struct {
	baseDir string

	once   sync.Once
	cfg    *config.Config
	logger *zap.Logger
	app    *app.App
	err    error
}

func (r *deps) load(ctx context.Context) (*config.Config, *zap.Logger, app.Services, error) {
	r.once.Do(func() {
		r.cfg, r.err = config.Load(r.baseDir)
		if r.err != nil {
			r.err = fmt.Errorf("failed to load config: %w", r.err)
			return
		}
		r.logger, r.err = logging.New(r.cfg.Env, r.cfg.LogLevel)
		if r.err != nil {
			r.err = fmt.Errorf("failed to create logger: %w", r.err)
			return
		}
		r.app, r.err = app.New(ctx, r.cfg, r.logger)
		if r.err != nil {
			r.err = fmt.Errorf("failed to initialize services: %w", r.err)
		}
	})
	if r.err != nil {
		return nil, nil, app.Services{}, r.err
	}
	return r.cfg, r.logger, r.app.Services, nil
}

func (r *deps) close() {
	if r.app != nil {
		if err := r.app.Close(); err != nil {
			r.logger.Warn("failed to close services", zap.Error(err))
		}
	}
	if r.logger != nil {
		_ = r.logger.Sync()
	}
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	baseDir := os.Getenv("FACET_HOME")
	if baseDir == "" {
		dir, err := config.DefaultBaseDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		baseDir = dir
	}

	rt := &deps{baseDir: filepath.Clean(baseDir)}
	defer rt.close()

	args := os.Args
	// No args + piped stdin → MCP server mode
	if len(args) < 2 {
		args = append(args, "mcp")
	}

	cliApp := newCLIApp(rt.load)
	if err := cliApp.Run(args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		rt.close()
		os.Exit(1)
	}
}
