package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"pkt.systems/fabricmcp"
	"pkt.systems/fabricmcp/client"
	"pkt.systems/fabricmcp/internal/svcfields"
	"pkt.systems/pslog"
)

func submain(ctx context.Context) int {
	baseLogger := pslog.LoggerFromEnv(context.Background(),
		pslog.WithEnvPrefix("FABRICMCP_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(os.Stderr),
	).With("app", "fabricmcp")
	cmd := newRootCommand(baseLogger)
	rootInvocation := invocationTargetsRootCommand(cmd, os.Args[1:])
	ctx = withSignalCancel(ctx)
	if _, err := cmd.ExecuteContextC(ctx); err != nil {
		if err != context.Canceled {
			if rootInvocation {
				svcfields.WithSubsystem(baseLogger, "cli.root").Error("command failed", "error", err)
			} else {
				fmt.Fprintf(os.Stderr, "%s\n", err)
			}
		}
		return 1
	}
	return 0
}

// invocationTargetsRootCommand reports whether the argument list runs the
// root server rather than a subcommand. Flag values are skipped so a value
// that happens to match a subcommand name does not count.
func invocationTargetsRootCommand(root *cobra.Command, args []string) bool {
	lookupLong := func(name string) *pflag.Flag {
		if flag := root.Flags().Lookup(name); flag != nil {
			return flag
		}
		return root.PersistentFlags().Lookup(name)
	}
	lookupShort := func(shorthand string) *pflag.Flag {
		if flag := root.Flags().ShorthandLookup(shorthand); flag != nil {
			return flag
		}
		return root.PersistentFlags().ShorthandLookup(shorthand)
	}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return true
		}
		if strings.HasPrefix(arg, "--") {
			if strings.ContainsRune(arg, '=') {
				continue
			}
			if flag := lookupLong(strings.TrimPrefix(arg, "--")); flag != nil && flag.NoOptDefVal == "" {
				i++
			}
			continue
		}
		if strings.HasPrefix(arg, "-") && len(arg) > 1 {
			shorthand := arg[len(arg)-1:]
			if flag := lookupShort(shorthand); flag != nil && flag.NoOptDefVal == "" {
				i++
			}
			continue
		}
		return !isSubcommandToken(root, arg)
	}
	return true
}

func isSubcommandToken(root *cobra.Command, token string) bool {
	for _, sub := range root.Commands() {
		if token == sub.Name() || slices.Contains(sub.Aliases, token) {
			return true
		}
	}
	return false
}

func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}

func newRootCommand(baseLogger pslog.Logger) *cobra.Command {
	var cfg fabricmcp.Config
	cmd := &cobra.Command{
		Use:           "fabricmcp",
		Short:         "fabricmcp exposes the Fabric personal-memory API as MCP tools over stdio or streamable HTTP",
		SilenceErrors: true,
		Example: `
  # stdio transport for a local MCP client (token from the environment)
  ONFABRIC_AUTH_TOKEN=ft_... fabricmcp

  # streamable HTTP where each caller sends its own Authorization header
  fabricmcp --transport http --listen :8000 --token-source header

  # enable the Gemini image generation tool
  ONFABRIC_AUTH_TOKEN=ft_... GEMINI_API_KEY=ai_... fabricmcp

  # point at a different Fabric deployment
  fabricmcp --fabric-base-url https://staging.onfabric.io/api/v1
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := baseLogger
			cliLogger := svcfields.WithSubsystem(logger, "cli.root")
			ctx := cmd.Context()
			cmd.SilenceUsage = true
			svcfields.WithSubsystem(logger, "server.lifecycle.init").WithLogLevel().Info(
				"welcome to fabricmcp",
				"app", "fabricmcp",
				"pid", os.Getpid(),
				"uid", os.Getuid(),
				"gid", os.Getgid(),
			)
			if err := loadEnvFile(strings.TrimSpace(viper.GetString("env-file")), cliLogger); err != nil {
				return err
			}
			configFile, err := loadConfigFile()
			if err != nil {
				return err
			}
			if configFile != "" {
				cliLogger.Info("loaded config file", "path", configFile)
			}
			if err := bindConfig(&cfg); err != nil {
				return err
			}
			logLevel := strings.TrimSpace(viper.GetString("log-level"))
			if logLevel == "" {
				logLevel = "info"
			}
			if level, ok := pslog.ParseLevel(logLevel); ok {
				logger = logger.LogLevel(level)
			}
			server, err := fabricmcp.NewServer(fabricmcp.NewServerRequest{
				Config: cfg,
				Logger: logger,
			})
			if err != nil {
				return err
			}
			return server.Run(ctx)
		},
	}

	persistentFlags := cmd.PersistentFlags()
	persistentFlags.StringP("config", "c", "", "path to YAML config file (defaults to $HOME/.fabricmcp/"+fabricmcp.DefaultConfigFileName+")")
	persistentFlags.String("env-file", "", "dotenv file to load before binding config (default ./.env when present)")
	persistentFlags.String("log-level", "info", "log level (trace|debug|info|warn|error)")

	flags := cmd.Flags()
	flags.StringP("listen", "l", fabricmcp.DefaultListen, "listen address for the http transport")
	flags.String("mcp-path", fabricmcp.DefaultMCPPath, "HTTP path serving the MCP endpoint")
	flags.StringP("transport", "t", fabricmcp.TransportAuto, fmt.Sprintf("MCP transport (%s); auto picks stdio for piped stdin", strings.Join(fabricmcp.ValidTransports(), ", ")))
	flags.String("fabric-base-url", fabricmcp.DefaultFabricBaseURL, "Fabric API base URL")
	flags.String("token-source", string(fabricmcp.TokenSourceAuto), "bearer token source (auto, env, header, param); auto follows the transport")
	flags.String("auth-token", "", "Fabric bearer token for the env token source (or set "+fabricmcp.EnvAuthToken+")")
	flags.String("gemini-api-key", "", "Gemini API key enabling fabric.images.generate (or set "+fabricmcp.EnvGeminiAPIKey+")")
	flags.String("image-model", fabricmcp.DefaultImageModel, "Gemini model used for image generation")
	flags.Duration("http-timeout", fabricmcp.DefaultHTTPTimeout, "timeout for one upstream Fabric request")
	flags.Duration("asset-timeout", fabricmcp.DefaultAssetTimeout, "timeout for one signed-URL asset download")
	flags.String("max-body", humanizeBytes(client.DefaultMaxBodyBytes), "maximum upstream response body size")
	flags.Bool("compact-descriptions", false, "trim tool descriptions to their purpose line for tight context windows")
	flags.String("otlp-endpoint", "", "OTLP collector endpoint (e.g. grpc://localhost:4317)")
	flags.String("metrics-listen", "", "metrics listen address (Prometheus scrape endpoint; empty disables)")
	flags.String("pprof-listen", "", "pprof listen address (debug/pprof endpoints; empty disables)")
	flags.Bool("enable-profiling-metrics", false, "enable Go runtime profiling metrics on the Prometheus endpoint")

	bindFlag := func(name string) {
		flag := flags.Lookup(name)
		if flag == nil {
			flag = persistentFlags.Lookup(name)
		}
		if flag == nil {
			panic(fmt.Sprintf("flag %q not found", name))
		}
		if err := viper.BindPFlag(name, flag); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("FABRICMCP")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	names := []string{
		"config", "env-file", "log-level",
		"listen", "mcp-path", "transport", "fabric-base-url", "token-source",
		"auth-token", "gemini-api-key", "image-model",
		"http-timeout", "asset-timeout", "max-body", "compact-descriptions",
		"otlp-endpoint", "metrics-listen", "pprof-listen", "enable-profiling-metrics",
	}
	for _, name := range names {
		bindFlag(name)
	}
	// Fabric and Gemini credentials keep their native variable names alongside
	// the FABRICMCP_-prefixed ones.
	mustBindEnv("auth-token", fabricmcp.EnvAuthToken)
	mustBindEnv("gemini-api-key", fabricmcp.EnvGeminiAPIKey)

	cmd.AddCommand(newClientCommand(baseLogger))
	cmd.AddCommand(newConfigCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func mustBindEnv(key string, envs ...string) {
	if err := viper.BindEnv(append([]string{key}, envs...)...); err != nil {
		panic(err)
	}
}

func bindConfig(cfg *fabricmcp.Config) error {
	cfg.Listen = strings.TrimSpace(viper.GetString("listen"))
	cfg.MCPPath = strings.TrimSpace(viper.GetString("mcp-path"))
	cfg.Transport = strings.ToLower(strings.TrimSpace(viper.GetString("transport")))
	cfg.FabricBaseURL = strings.TrimSpace(viper.GetString("fabric-base-url"))
	cfg.TokenSource = fabricmcp.TokenSource(strings.ToLower(strings.TrimSpace(viper.GetString("token-source"))))
	cfg.AuthToken = strings.TrimSpace(viper.GetString("auth-token"))
	cfg.GeminiAPIKey = strings.TrimSpace(viper.GetString("gemini-api-key"))
	cfg.ImageModel = strings.TrimSpace(viper.GetString("image-model"))
	cfg.HTTPTimeout = viper.GetDuration("http-timeout")
	cfg.AssetTimeout = viper.GetDuration("asset-timeout")
	if maxBody := strings.TrimSpace(viper.GetString("max-body")); maxBody != "" {
		size, err := humanize.ParseBytes(maxBody)
		if err != nil {
			return fmt.Errorf("parse max-body: %w", err)
		}
		cfg.MaxBodyBytes = int64(size)
	}
	cfg.CompactDescriptions = viper.GetBool("compact-descriptions")
	cfg.OTLPEndpoint = strings.TrimSpace(viper.GetString("otlp-endpoint"))
	cfg.MetricsListen = strings.TrimSpace(viper.GetString("metrics-listen"))
	cfg.PprofListen = strings.TrimSpace(viper.GetString("pprof-listen"))
	cfg.EnableProfilingMetrics = viper.GetBool("enable-profiling-metrics")
	return nil
}

// loadEnvFile loads a dotenv file without overriding variables already set in
// the real environment. An explicit path must exist; the implicit ./.env is
// optional.
func loadEnvFile(path string, logger pslog.Logger) error {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return fmt.Errorf("expand env file %q: %w", path, err)
		}
		if err := godotenv.Load(expanded); err != nil {
			return fmt.Errorf("load env file %q: %w", expanded, err)
		}
		logger.Info("loaded env file", "path", expanded)
		return nil
	}
	if err := godotenv.Load(); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}
	logger.Debug("loaded env file", "path", ".env")
	return nil
}

func loadConfigFile() (string, error) {
	cfgPath := strings.TrimSpace(viper.GetString("config"))
	explicit := cfgPath != ""

	if cfgPath == "" {
		if dir, err := fabricmcp.DefaultConfigDir(); err == nil {
			candidate := filepath.Join(dir, fabricmcp.DefaultConfigFileName)
			if _, err := os.Stat(candidate); err == nil {
				cfgPath = candidate
			}
		}
	}

	if cfgPath == "" {
		return "", nil
	}

	expanded, err := expandPath(cfgPath)
	if err != nil {
		return "", fmt.Errorf("expand config path %q: %w", cfgPath, err)
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return "", nil
		}
		return "", fmt.Errorf("config file %q: %w", expanded, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("config file %q is a directory", expanded)
	}

	viper.SetConfigFile(expanded)
	if err := viper.ReadInConfig(); err != nil {
		return "", fmt.Errorf("read config file %q: %w", expanded, err)
	}
	return expanded, nil
}

func expandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if len(p) == 1 {
			p = home
		} else if p[1] == '/' || p[1] == '\\' {
			p = filepath.Join(home, p[2:])
		}
	}
	return filepath.Abs(p)
}

// humanizeBytes renders n in binary units so ParseBytes recovers the exact
// value from generated configs.
func humanizeBytes(n int64) string {
	return strings.ReplaceAll(humanize.IBytes(uint64(n)), " ", "")
}
