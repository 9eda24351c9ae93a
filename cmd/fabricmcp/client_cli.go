package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	yaml "gopkg.in/yaml.v2"

	"pkt.systems/fabricmcp"
	"pkt.systems/fabricmcp/api"
	fabricclient "pkt.systems/fabricmcp/client"
	"pkt.systems/fabricmcp/internal/svcfields"
	"pkt.systems/fabricmcp/internal/version"
	"pkt.systems/pslog"
)

const (
	clientServerKey    = "client.server"
	clientAuthTokenKey = "client.auth_token"
	clientTimeoutKey   = "client.timeout"

	defaultClientServer = "http://localhost:8000/mcp"
)

func newClientCommand(baseLogger pslog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Interact with a running fabricmcp server over streamable HTTP",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger := svcfields.WithSubsystem(baseLogger, "cli.client")
			if err := loadEnvFile(strings.TrimSpace(viper.GetString("env-file")), logger); err != nil {
				return err
			}
			_, err := loadConfigFile()
			return err
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringP("server", "s", defaultClientServer, "fabricmcp MCP endpoint URL")
	flags.String("auth-token", "", "Fabric bearer token sent as the Authorization header")
	flags.Duration("timeout", fabricclient.DefaultHTTPTimeout, "timeout for one MCP request")

	mustBindFlag(clientServerKey, "FABRICMCP_CLIENT_SERVER", flags.Lookup("server"))
	mustBindFlag(clientAuthTokenKey, fabricmcp.EnvAuthToken, flags.Lookup("auth-token"))
	mustBindFlag(clientTimeoutKey, "FABRICMCP_CLIENT_TIMEOUT", flags.Lookup("timeout"))

	cmd.AddCommand(
		newClientToolsCommand(),
		newClientCallCommand(),
		newClientResourcesCommand(),
		newClientResourceCommand(),
	)

	return cmd
}

func mustBindFlag(key, env string, flag *pflag.Flag) {
	if flag == nil {
		panic(fmt.Sprintf("flag for key %s not found", key))
	}
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(err)
	}
	if env != "" {
		if err := viper.BindEnv(key, env); err != nil {
			panic(err)
		}
	}
}

func clientContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := viper.GetDuration(clientTimeoutKey)
	if timeout <= 0 {
		timeout = fabricclient.DefaultHTTPTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// bearerTransport adds the configured Fabric token to every MCP request so a
// header-source server can resolve it per call.
type bearerTransport struct {
	base  http.RoundTripper
	token string
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(clone)
}

func dialMCP(ctx context.Context) (*mcpsdk.ClientSession, error) {
	endpoint := strings.TrimSpace(viper.GetString(clientServerKey))
	if endpoint == "" {
		endpoint = defaultClientServer
	}
	httpClient := &http.Client{}
	if token := strings.TrimSpace(viper.GetString(clientAuthTokenKey)); token != "" {
		httpClient.Transport = &bearerTransport{base: http.DefaultTransport, token: token}
	}
	transport := &mcpsdk.StreamableClientTransport{
		Endpoint:   endpoint,
		HTTPClient: httpClient,
	}
	mcpClient := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    "fabricmcp-cli",
		Version: version.Current(),
	}, nil)
	session, err := mcpClient.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", endpoint, err)
	}
	return session, nil
}

func newClientToolsCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools the server exposes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := clientContext(cmd)
			defer cancel()
			session, err := dialMCP(ctx)
			if err != nil {
				return err
			}
			defer session.Close()
			res, err := session.ListTools(ctx, nil)
			if err != nil {
				return err
			}
			tools := res.Tools
			sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(tools)
			}
			for _, tool := range tools {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", tool.Name, firstLine(tool.Description))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print full tool definitions as JSON")
	return cmd
}

func newClientCallCommand() *cobra.Command {
	var argPairs []string
	var argsFile string
	var format string
	var saveImage string
	cmd := &cobra.Command{
		Use:   "call TOOL",
		Short: "Call a tool and print its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			toolArgs, err := collectToolArgs(argPairs, argsFile)
			if err != nil {
				return err
			}
			ctx, cancel := clientContext(cmd)
			defer cancel()
			session, err := dialMCP(ctx)
			if err != nil {
				return err
			}
			defer session.Close()
			res, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
				Name:      args[0],
				Arguments: toolArgs,
			})
			if err != nil {
				return err
			}
			return renderCallResult(cmd, res, format, saveImage)
		},
	}
	cmd.Flags().StringArrayVar(&argPairs, "arg", nil, "tool argument as key=value (repeatable; values parse as JSON when they look like it)")
	cmd.Flags().StringVar(&argsFile, "args-file", "", "read tool arguments from a JSON or YAML file ('-' for stdin)")
	cmd.Flags().StringVar(&format, "format", "json", "structured result format (json|yaml)")
	cmd.Flags().StringVar(&saveImage, "save-image", "", "write returned image bytes to this path (extension appended from the MIME type)")
	return cmd
}

func newClientResourcesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resources",
		Short: "List the documentation resources the server exposes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := clientContext(cmd)
			defer cancel()
			session, err := dialMCP(ctx)
			if err != nil {
				return err
			}
			defer session.Close()
			res, err := session.ListResources(ctx, nil)
			if err != nil {
				return err
			}
			resources := res.Resources
			sort.Slice(resources, func(i, j int) bool { return resources[i].URI < resources[j].URI })
			for _, resource := range resources {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", resource.URI, firstLine(resource.Description))
			}
			return nil
		},
	}
	return cmd
}

func newClientResourceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resource URI",
		Short: "Read one documentation resource and print it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := clientContext(cmd)
			defer cancel()
			session, err := dialMCP(ctx)
			if err != nil {
				return err
			}
			defer session.Close()
			res, err := session.ReadResource(ctx, &mcpsdk.ReadResourceParams{URI: args[0]})
			if err != nil {
				return err
			}
			for _, contents := range res.Contents {
				if contents.Text != "" {
					fmt.Fprintln(cmd.OutOrStdout(), contents.Text)
					continue
				}
				if len(contents.Blob) > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "(%d byte blob, %s)\n", len(contents.Blob), contents.MIMEType)
				}
			}
			return nil
		},
	}
	return cmd
}

func collectToolArgs(pairs []string, argsFile string) (map[string]any, error) {
	out := map[string]any{}
	if argsFile != "" {
		fromFile, err := decodeArgsFile(argsFile)
		if err != nil {
			return nil, err
		}
		for k, v := range fromFile {
			out[k] = v
		}
	}
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			return nil, fmt.Errorf("invalid --arg %q (expected key=value)", pair)
		}
		out[key] = coerceArgValue(value)
	}
	if token := strings.TrimSpace(viper.GetString(clientAuthTokenKey)); token != "" {
		if _, present := out["auth_token"]; !present {
			out["auth_token"] = token
		}
	}
	return out, nil
}

// coerceArgValue keeps numbers, booleans, null, and composite JSON literals
// typed; everything else stays a string.
func coerceArgValue(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return raw
	}
	switch trimmed[0] {
	case '{', '[', '"', 't', 'f', 'n', '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	return raw
}

func decodeArgsFile(path string) (map[string]any, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = readAllStdin()
	} else {
		expanded, expandErr := expandPath(path)
		if expandErr != nil {
			return nil, fmt.Errorf("expand args file %q: %w", path, expandErr)
		}
		path = expanded
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read args file %q: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		out := map[string]any{}
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("parse args file %q: %w", path, err)
		}
		return out, nil
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse args file %q: %w", path, err)
	}
	out, ok := yamlToJSON(raw).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("args file %q must decode to a mapping", path)
	}
	return out, nil
}

func readAllStdin() ([]byte, error) {
	return io.ReadAll(os.Stdin)
}

// yamlToJSON rewrites yaml.v2 decoding output so map keys are strings and the
// structure round-trips through encoding/json.
func yamlToJSON(v any) any {
	switch value := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(value))
		for k, item := range value {
			out[fmt.Sprintf("%v", k)] = yamlToJSON(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(value))
		for k, item := range value {
			out[k] = yamlToJSON(item)
		}
		return out
	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = yamlToJSON(item)
		}
		return out
	default:
		return v
	}
}

func renderCallResult(cmd *cobra.Command, res *mcpsdk.CallToolResult, format, saveImage string) error {
	if res == nil {
		return fmt.Errorf("empty tool result")
	}
	if res.IsError {
		if text := firstTextContent(res); text != "" {
			return fmt.Errorf("tool failed: %s", text)
		}
		return fmt.Errorf("tool failed")
	}

	for _, content := range res.Content {
		image, ok := content.(*mcpsdk.ImageContent)
		if !ok {
			continue
		}
		if saveImage == "" {
			fmt.Fprintf(cmd.OutOrStdout(), "(image %s, %d bytes; rerun with --save-image to write it)\n", image.MIMEType, len(image.Data))
			continue
		}
		path, err := writeImage(saveImage, image.MIMEType, image.Data)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s, %d bytes)\n", path, image.MIMEType, len(image.Data))
	}

	if res.StructuredContent != nil {
		switch strings.ToLower(strings.TrimSpace(format)) {
		case "json", "":
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res.StructuredContent)
		case "yaml":
			rendered, err := yaml.Marshal(res.StructuredContent)
			if err != nil {
				return fmt.Errorf("render yaml: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(rendered)
			return err
		default:
			return fmt.Errorf("unsupported --format %q (expected json|yaml)", format)
		}
	}

	if text := firstTextContent(res); text != "" {
		fmt.Fprintln(cmd.OutOrStdout(), text)
	}
	return nil
}

func firstTextContent(res *mcpsdk.CallToolResult) string {
	for _, content := range res.Content {
		if text, ok := content.(*mcpsdk.TextContent); ok {
			return text.Text
		}
	}
	return ""
}

func writeImage(path, mimeType string, data []byte) (string, error) {
	expanded, err := expandPath(path)
	if err != nil {
		return "", fmt.Errorf("expand image path %q: %w", path, err)
	}
	if filepath.Ext(expanded) == "" {
		expanded += "." + string(api.FormatForMIME(mimeType))
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return "", fmt.Errorf("create image dir: %w", err)
	}
	if err := os.WriteFile(expanded, data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return expanded, nil
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
