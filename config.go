package fabricmcp

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"pkt.systems/fabricmcp/client"
	"pkt.systems/fabricmcp/internal/imagegen"
)

// Transport selects how the facade speaks MCP.
const (
	// TransportAuto picks stdio when stdin is not an interactive terminal,
	// HTTP otherwise.
	TransportAuto = "auto"
	// TransportStdio serves a single session over stdin/stdout.
	TransportStdio = "stdio"
	// TransportHTTP serves streamable HTTP sessions on Config.Listen.
	TransportHTTP = "http"
)

// TokenSource selects where the facade finds each caller's Fabric bearer
// token.
type TokenSource string

const (
	// TokenSourceAuto resolves to header over HTTP and env over stdio.
	TokenSourceAuto TokenSource = "auto"
	// TokenSourceEnv reads the token from Config.AuthToken, conventionally
	// populated from ONFABRIC_AUTH_TOKEN.
	TokenSourceEnv TokenSource = "env"
	// TokenSourceHeader reads the Authorization header of the HTTP request
	// that carried the tool call.
	TokenSourceHeader TokenSource = "header"
	// TokenSourceParam reads the optional auth_token tool argument.
	TokenSourceParam TokenSource = "param"
)

const (
	// DefaultListen is the default TCP endpoint the HTTP transport binds to.
	DefaultListen = ":8000"
	// DefaultMCPPath is the HTTP path serving the MCP endpoint.
	DefaultMCPPath = "/mcp"
	// DefaultFabricBaseURL targets the hosted Fabric API.
	DefaultFabricBaseURL = client.DefaultBaseURL
	// DefaultHTTPTimeout bounds one upstream Fabric request.
	DefaultHTTPTimeout = client.DefaultHTTPTimeout
	// DefaultAssetTimeout bounds one signed-URL asset download.
	DefaultAssetTimeout = client.DefaultAssetTimeout
	// DefaultImageModel is the Gemini model used by the image tool.
	DefaultImageModel = imagegen.DefaultModel
	// DefaultShutdownTimeout caps graceful HTTP shutdown.
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultTopFacets is the top_k used by fabric.facets.top when the caller
	// does not pass one.
	DefaultTopFacets = 10

	// EnvAuthToken names the environment variable the CLI binds to
	// Config.AuthToken.
	EnvAuthToken = "ONFABRIC_AUTH_TOKEN"
	// EnvGeminiAPIKey names the environment variable the CLI binds to
	// Config.GeminiAPIKey.
	EnvGeminiAPIKey = "GEMINI_API_KEY"

	// DefaultConfigFileName is the YAML file the CLI looks for in the config
	// directory.
	DefaultConfigFileName = "config.yaml"
)

// DefaultConfigDir returns the directory the CLI reads configuration from.
// FABRICMCP_CONFIG_DIR overrides the $HOME/.fabricmcp default.
func DefaultConfigDir() (string, error) {
	if override := strings.TrimSpace(os.Getenv("FABRICMCP_CONFIG_DIR")); override != "" {
		if filepath.IsAbs(override) {
			return override, nil
		}
		return filepath.Abs(override)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".fabricmcp"), nil
}

// Config controls facade runtime behavior. The zero value plus applyDefaults
// yields a server that talks to the hosted Fabric API over the auto-selected
// transport.
type Config struct {
	// Listen is the TCP endpoint for the HTTP transport.
	Listen string
	// MCPPath is the HTTP path serving MCP (default /mcp).
	MCPPath string
	// Transport is auto, stdio, or http.
	Transport string
	// FabricBaseURL overrides the upstream Fabric API base URL.
	FabricBaseURL string
	// TokenSource is auto, env, header, or param.
	TokenSource TokenSource
	// AuthToken is the bearer token used by the env token source.
	AuthToken string
	// GeminiAPIKey enables the image-generation tool when set.
	GeminiAPIKey string
	// ImageModel overrides the Gemini model for image generation.
	ImageModel string
	// HTTPTimeout bounds one upstream Fabric request.
	HTTPTimeout time.Duration
	// AssetTimeout bounds one signed-URL asset download.
	AssetTimeout time.Duration
	// MaxBodyBytes caps upstream response reads (0 keeps the client default).
	MaxBodyBytes int64
	// CompactDescriptions trims tool descriptions to their purpose line for
	// clients with tight context windows.
	CompactDescriptions bool
	// OTLPEndpoint enables trace export when set (grpc://, grpcs://, http://,
	// https://, or bare host:port for insecure gRPC).
	OTLPEndpoint string
	// MetricsListen serves Prometheus metrics on this address when set.
	MetricsListen string
	// PprofListen serves pprof on this address when set.
	PprofListen string
	// EnableProfilingMetrics adds Go runtime metrics to the metrics endpoint.
	EnableProfilingMetrics bool
}

// ValidTransports returns the supported transport selections.
func ValidTransports() []string {
	return []string{TransportAuto, TransportStdio, TransportHTTP}
}

// ValidTokenSources returns the supported token source selections.
func ValidTokenSources() []TokenSource {
	return []TokenSource{TokenSourceAuto, TokenSourceEnv, TokenSourceHeader, TokenSourceParam}
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Listen) == "" {
		cfg.Listen = DefaultListen
	}
	if strings.TrimSpace(cfg.MCPPath) == "" {
		cfg.MCPPath = DefaultMCPPath
	}
	if strings.TrimSpace(cfg.Transport) == "" {
		cfg.Transport = TransportAuto
	}
	if strings.TrimSpace(cfg.FabricBaseURL) == "" {
		cfg.FabricBaseURL = DefaultFabricBaseURL
	}
	if strings.TrimSpace(string(cfg.TokenSource)) == "" {
		cfg.TokenSource = TokenSourceAuto
	}
	if strings.TrimSpace(cfg.ImageModel) == "" {
		cfg.ImageModel = DefaultImageModel
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = DefaultHTTPTimeout
	}
	if cfg.AssetTimeout <= 0 {
		cfg.AssetTimeout = DefaultAssetTimeout
	}
}

func validateConfig(cfg Config) error {
	if !slices.Contains(ValidTransports(), cfg.Transport) {
		return fmt.Errorf("transport must be one of %s", strings.Join(ValidTransports(), ", "))
	}
	if !slices.Contains(ValidTokenSources(), cfg.TokenSource) {
		names := make([]string, 0, len(ValidTokenSources()))
		for _, src := range ValidTokenSources() {
			names = append(names, string(src))
		}
		return fmt.Errorf("token source must be one of %s", strings.Join(names, ", "))
	}
	if cfg.Transport != TransportStdio && strings.TrimSpace(cfg.Listen) == "" {
		return fmt.Errorf("listen address required for http transport")
	}
	if !strings.HasPrefix(cfg.MCPPath, "/") {
		return fmt.Errorf("mcp path must start with /")
	}
	u, err := url.Parse(cfg.FabricBaseURL)
	if err != nil {
		return fmt.Errorf("parse fabric base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("fabric base url must be http or https")
	}
	return nil
}
