package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/saradindusengupta/streamlit-healthcheck/internal/app"
	cfgpkg "github.com/saradindusengupta/streamlit-healthcheck/internal/config"
	"github.com/saradindusengupta/streamlit-healthcheck/internal/logging"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "init":
		runInit(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: healthcheck <command> [flags]

commands:
  serve   start the health check API server
  init    write a fresh default config file`)
}

// runServe 启动健康检查服务
func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	host := fs.String("host", "", "bind address override, e.g. 127.0.0.1")
	port := fs.Int("port", 0, "bind port override")
	configPath := fs.String("config", "health_check_config.json", "path to health check config file")
	logLevel := fs.String("log-level", "", "log level override (debug|info|warn|error)")
	_ = fs.Parse(args)

	// 1) 加载配置：坏配置降级为默认值，只记录不退出
	cfg, cfgErr := cfgpkg.Load(*configPath)
	if *host != "" || *port > 0 {
		cfg.HTTP.Addr = overrideAddr(cfg.HTTP.Addr, *host, *port)
	}

	// 2) 初始化日志
	logger, err := logging.InitLogger(cfg.Logging, *logLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)
	log := zap.L()

	if cfgErr != nil {
		log.Warn("config load degraded to defaults", zap.String("path", *configPath), zap.Error(cfgErr))
	}

	// 3) 组装并启动服务
	svc, err := app.New(cfg, logger, app.Options{})
	if err != nil {
		log.Fatal("service bootstrap error", zap.Error(err))
	}
	httpErrCh := svc.Start()

	// 信号处理，优雅关闭
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("signal received", zap.String("signal", sig.String()))
	case err := <-httpErrCh:
		log.Error("http server error", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	svc.Shutdown(ctx)
}

// runInit 写出一份默认配置文件
func runInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", "health_check_config.json", "path to health check config file")
	_ = fs.Parse(args)

	if err := cfgpkg.Save(*configPath, cfgpkg.Default()); err != nil {
		fmt.Fprintf(os.Stderr, "init config failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("default config written to %s\n", *configPath)
}

// overrideAddr 把 --host / --port 覆盖项拼进监听地址，
// 未覆盖的一侧沿用配置值。--host 也接受完整的 host:port。
func overrideAddr(current, host string, port int) string {
	if host != "" && strings.Contains(host, ":") {
		return host
	}

	curHost, curPort := splitAddr(current)
	if host != "" {
		curHost = host
	}
	if port > 0 {
		curPort = strconv.Itoa(port)
	}
	return curHost + ":" + curPort
}

func splitAddr(addr string) (host, port string) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return addr, "8000"
	}
	return addr[:idx], addr[idx+1:]
}
