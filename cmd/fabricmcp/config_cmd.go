package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"pkt.systems/fabricmcp"
	fabricclient "pkt.systems/fabricmcp/client"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage fabricmcp configuration files",
	}
	cmd.AddCommand(newConfigGenCommand())
	return cmd
}

func newConfigGenCommand() *cobra.Command {
	var outPath string
	var force bool
	var stdout bool
	defaultOutput := "$HOME/.fabricmcp/" + fabricmcp.DefaultConfigFileName
	if dir, err := fabricmcp.DefaultConfigDir(); err == nil {
		defaultOutput = filepath.Join(dir, fabricmcp.DefaultConfigFileName)
	}

	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate a default fabricmcp configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if stdout && outPath != "" {
				return fmt.Errorf("--stdout and --out are mutually exclusive")
			}
			if outPath == "" {
				dir, err := fabricmcp.DefaultConfigDir()
				if err != nil {
					return fmt.Errorf("resolve config dir: %w", err)
				}
				outPath = filepath.Join(dir, fabricmcp.DefaultConfigFileName)
			}

			data, err := defaultConfigYAML()
			if err != nil {
				return err
			}

			if stdout {
				fmt.Print(string(data))
				return nil
			}

			expanded, err := expandPath(outPath)
			if err != nil {
				return fmt.Errorf("expand config path %q: %w", outPath, err)
			}
			outPath = expanded
			if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
				return fmt.Errorf("create config dir: %w", err)
			}
			if !force {
				if _, err := os.Stat(outPath); err == nil {
					return fmt.Errorf("config file %s already exists (use --force to overwrite)", outPath)
				} else if !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("stat config file: %w", err)
				}
			}
			if err := os.WriteFile(outPath, data, 0o600); err != nil {
				return fmt.Errorf("write config file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote default config to %s\n", outPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "", fmt.Sprintf("output path for generated config (defaults to %s)", defaultOutput))
	cmd.Flags().BoolVar(&force, "force", false, "overwrite the target file if it already exists")
	cmd.Flags().BoolVar(&stdout, "stdout", false, "print the config to stdout instead of writing a file")
	return cmd
}

type configDefaults struct {
	Listen                 string `yaml:"listen"`
	MCPPath                string `yaml:"mcp-path"`
	Transport              string `yaml:"transport"`
	FabricBaseURL          string `yaml:"fabric-base-url"`
	TokenSource            string `yaml:"token-source"`
	AuthToken              string `yaml:"auth-token"`
	GeminiAPIKey           string `yaml:"gemini-api-key"`
	ImageModel             string `yaml:"image-model"`
	HTTPTimeout            string `yaml:"http-timeout"`
	AssetTimeout           string `yaml:"asset-timeout"`
	MaxBody                string `yaml:"max-body"`
	CompactDescriptions    bool   `yaml:"compact-descriptions"`
	OTLPEndpoint           string `yaml:"otlp-endpoint"`
	MetricsListen          string `yaml:"metrics-listen"`
	PprofListen            string `yaml:"pprof-listen"`
	EnableProfilingMetrics bool   `yaml:"enable-profiling-metrics"`
	ClientServer           string `yaml:"client.server"`
	ClientAuthToken        string `yaml:"client.auth_token"`
	ClientTimeout          string `yaml:"client.timeout"`
	LogLevel               string `yaml:"log-level"`
}

func defaultConfigYAML(overrides ...func(*configDefaults)) ([]byte, error) {
	defaults := configDefaults{
		Listen:                 fabricmcp.DefaultListen,
		MCPPath:                fabricmcp.DefaultMCPPath,
		Transport:              fabricmcp.TransportAuto,
		FabricBaseURL:          fabricmcp.DefaultFabricBaseURL,
		TokenSource:            string(fabricmcp.TokenSourceAuto),
		AuthToken:              "",
		GeminiAPIKey:           "",
		ImageModel:             fabricmcp.DefaultImageModel,
		HTTPTimeout:            fabricmcp.DefaultHTTPTimeout.String(),
		AssetTimeout:           fabricmcp.DefaultAssetTimeout.String(),
		MaxBody:                humanizeBytes(fabricclient.DefaultMaxBodyBytes),
		CompactDescriptions:    false,
		OTLPEndpoint:           "",
		MetricsListen:          "",
		PprofListen:            "",
		EnableProfilingMetrics: false,
		ClientServer:           defaultClientServer,
		ClientAuthToken:        "",
		ClientTimeout:          fabricclient.DefaultHTTPTimeout.String(),
		LogLevel:               "info",
	}
	for _, fn := range overrides {
		if fn != nil {
			fn(&defaults)
		}
	}

	out, err := yaml.Marshal(&defaults)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return out, nil
}
