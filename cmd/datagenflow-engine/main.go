// Command datagenflow-engine wires together the block registry, the
// pipeline executor and the job scheduler into a single long-running
// process. It exposes no HTTP surface: pipelines, jobs and seed files are
// driven programmatically by embedding pkg/pipeline and pkg/jobqueue, or
// interactively via cmd/datagenflow-debug.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/codeready-toolchain/datagenflow/pkg/block"
	"github.com/codeready-toolchain/datagenflow/pkg/block/builtin"
	"github.com/codeready-toolchain/datagenflow/pkg/blockwatch"
	"github.com/codeready-toolchain/datagenflow/pkg/cleanup"
	"github.com/codeready-toolchain/datagenflow/pkg/config"
	"github.com/codeready-toolchain/datagenflow/pkg/jobqueue"
	"github.com/codeready-toolchain/datagenflow/pkg/modelconfig"
	"github.com/codeready-toolchain/datagenflow/pkg/storage"
	"github.com/codeready-toolchain/datagenflow/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	configPath := flag.String("config", getEnv("ENGINE_CONFIG", "./config/engine.yaml"), "Path to the engine config YAML file")
	envPath := flag.String("env-file", getEnv("ENGINE_ENV_FILE", ".env"), "Path to an optional .env file")
	flag.Parse()

	setupLogging()

	if err := godotenv.Load(*envPath); err != nil {
		slog.Warn("no .env file loaded", "path", *envPath, "error", err)
	}

	slog.Info("starting "+version.AppName, "version", version.Full())

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.StoragePath, storage.EnvFallback{
		Endpoint: os.Getenv("LLM_ENDPOINT"),
		APIKey:   os.Getenv("LLM_API_KEY"),
		Model:    os.Getenv(cfg.LLMModelEnv),
	})
	if err != nil {
		slog.Error("failed to open storage", "path", cfg.StoragePath, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("error closing storage", "error", err)
		}
	}()

	registry := block.NewRegistry()
	registerBuiltinBlocks(registry)
	discoverPluginBlocks(registry, cfg.BlockDirs)

	watcher, err := blockwatch.New(cfg.ReloadDebounce, func(path string) {
		slog.Info("reloading blocks after filesystem change", "path", path)
		discoverPluginBlocks(registry, cfg.BlockDirs)
	})
	if err != nil {
		slog.Error("failed to start block watcher", "error", err)
		os.Exit(1)
	}
	for _, dir := range []string{cfg.BlockDirs.Custom, cfg.BlockDirs.User} {
		if dir == "" {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			slog.Warn("not watching block directory", "dir", dir, "error", err)
		}
	}
	watcher.Start()
	defer func() {
		if err := watcher.Close(); err != nil {
			slog.Error("error closing block watcher", "error", err)
		}
	}()

	queue := jobqueue.New()
	models := modelconfig.New(store, os.Getenv(cfg.LLMModelEnv), nil)
	_ = models

	cleanupSvc := cleanup.NewService(&cfg.Retention, store)
	cleanupSvc.Start(ctx)
	defer cleanupSvc.Stop()

	slog.Info("engine ready",
		"storage_path", cfg.StoragePath,
		"blocks", len(registry.ListTypes()),
		"active_job", hasActiveJob(queue),
	)

	<-ctx.Done()
	slog.Info("shutting down")
}

func setupLogging() {
	var handler slog.Handler
	switch getEnv("ENGINE_LOG_FORMAT", "text") {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, nil)
	default:
		handler = slog.NewTextHandler(os.Stdout, nil)
	}
	slog.SetDefault(slog.New(handler))
}

func registerBuiltinBlocks(registry *block.Registry) {
	registry.RegisterBuiltin("TextGenerator", builtin.NewTextGenerator, builtin.TextGeneratorContract)
	registry.RegisterBuiltin("Validator", builtin.NewValidator, builtin.ValidatorContract)
	registry.RegisterBuiltin("MarkdownMultiplier", builtin.NewMarkdownMultiplier, builtin.MarkdownMultiplierContract)
}

func discoverPluginBlocks(registry *block.Registry, dirs config.BlockDirs) {
	for _, d := range []struct {
		path   string
		source block.Source
	}{
		{dirs.Custom, block.SourceCustom},
		{dirs.User, block.SourceUser},
	} {
		if d.path == "" {
			continue
		}
		files, err := pluginFiles(d.path)
		if err != nil {
			slog.Warn("skipping block directory", "dir", d.path, "error", err)
			continue
		}
		for _, discErr := range registry.DiscoverDir(d.path, d.source, files) {
			slog.Warn("block discovery error", "dir", d.path, "error", discErr)
		}
	}
}

func pluginFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name := e.Name(); len(name) > 3 && name[len(name)-3:] == ".so" {
			files = append(files, dir+"/"+name)
		}
	}
	return files, nil
}

func hasActiveJob(queue *jobqueue.Queue) bool {
	_, ok := queue.Active()
	return ok
}
