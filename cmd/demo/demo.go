package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/joho/godotenv"

	"github.com/brunokim/causal-doc/server"
)

var (
	configFile    = flag.String("config", "", "TOML config file. Defaults to $CAUSAL_DOC_CONFIG, then to built-in defaults")
	envFile       = flag.String("env", ".env", "file with environment variables, ignored if missing")
	port          = flag.Int("port", 0, "port to run server, overriding the config")
	debugFilename = flag.String("debug_file", "", "file to dump every request in JSONL format, overriding the config")
)

func main() {
	flag.Parse()
	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	conf, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := newLogger(conf.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := server.NewFromConfig(ctx, conf, logger)
	if err != nil {
		level.Error(logger).Log("msg", "failed to create server", "err", err)
		os.Exit(1)
	}
	if err := server.ListenAndServe(ctx, conf.Addr, s, logger); err != nil {
		level.Error(logger).Log("msg", "server stopped", "err", err)
		os.Exit(1)
	}
}

func loadConfig() (*server.Config, error) {
	path := *configFile
	if path == "" {
		path = os.Getenv("CAUSAL_DOC_CONFIG")
	}
	conf := &server.Config{
		Addr:              ":8009",
		SnapshotThreshold: server.DefaultSnapshotThreshold,
		LogLevel:          "info",
	}
	if path != "" {
		var err error
		if conf, err = server.LoadConfig(path); err != nil {
			return nil, err
		}
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		conf.RedisAddr = addr
	}
	if *port != 0 {
		conf.Addr = fmt.Sprintf(":%d", *port)
	}
	if *debugFilename != "" {
		conf.DebugFile = *debugFilename
	}
	return conf, nil
}

func newLogger(logLevel string) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
	var opt level.Option
	switch logLevel {
	case "debug":
		opt = level.AllowDebug()
	case "warn":
		opt = level.AllowWarn()
	case "error":
		opt = level.AllowError()
	default:
		opt = level.AllowInfo()
	}
	return level.NewFilter(logger, opt)
}
