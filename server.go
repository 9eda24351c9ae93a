package fabricmcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/term"

	"pkt.systems/fabricmcp/client"
	"pkt.systems/fabricmcp/internal/imagegen"
	"pkt.systems/fabricmcp/internal/svcfields"
	"pkt.systems/fabricmcp/internal/version"
	"pkt.systems/pslog"
)

// Server is the MCP facade service contract.
type Server interface {
	Run(context.Context) error
}

// NewServerRequest wraps constructor inputs. Only Config is required: a nil
// Logger logs structured to stderr, a nil Client is built from Config, a nil
// Cache starts empty, and a nil ImageGen is built from Config.GeminiAPIKey
// when one is set (otherwise the image tool stays unregistered).
type NewServerRequest struct {
	Config   Config
	Logger   pslog.Logger
	Client   *client.Client
	Cache    *TapestryCache
	ImageGen imagegen.Generator
}

type server struct {
	cfg          Config
	logger       pslog.Logger
	lifecycleLog pslog.Logger
	toolLog      pslog.Logger
	cacheLog     pslog.Logger
	fabric       *client.Client
	cache        *TapestryCache
	imageGen     imagegen.Generator
	metrics      *toolMetrics
	telemetry    *telemetryBundle
	httpServer   *http.Server
	transport    string
	tokenSource  TokenSource
	mcpHTTPPath  string
}

// NewServer constructs the Fabric MCP facade service.
func NewServer(req NewServerRequest) (Server, error) {
	cfg := req.Config
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	logger := req.Logger
	if logger == nil {
		logger = pslog.NewStructured(context.Background(), os.Stderr).With("app", "fabricmcp")
	}

	transport := cfg.Transport
	if transport == TransportAuto {
		transport = TransportHTTP
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			transport = TransportStdio
		}
	}
	tokenSource := cfg.TokenSource
	if tokenSource == TokenSourceAuto {
		tokenSource = TokenSourceHeader
		if transport == TransportStdio {
			tokenSource = TokenSourceEnv
		}
	}

	s := &server{
		cfg:          cfg,
		logger:       logger,
		lifecycleLog: svcfields.WithSubsystem(logger, "server.lifecycle"),
		toolLog:      svcfields.WithSubsystem(logger, "mcp.tools"),
		cacheLog:     svcfields.WithSubsystem(logger, "fabric.tapestries"),
		cache:        req.Cache,
		imageGen:     req.ImageGen,
		transport:    transport,
		tokenSource:  tokenSource,
		mcpHTTPPath:  cleanHTTPPath(cfg.MCPPath),
	}
	if s.cache == nil {
		s.cache = NewTapestryCache()
	}

	fabric := req.Client
	if fabric == nil {
		opts := []client.Option{
			client.WithLogger(logger),
			client.WithHTTPTimeout(cfg.HTTPTimeout),
			client.WithAssetTimeout(cfg.AssetTimeout),
		}
		if cfg.MaxBodyBytes > 0 {
			opts = append(opts, client.WithMaxBodyBytes(cfg.MaxBodyBytes))
		}
		var err error
		fabric, err = client.New(cfg.FabricBaseURL, opts...)
		if err != nil {
			return nil, err
		}
	}
	s.fabric = fabric

	if s.imageGen == nil && strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		gen, err := imagegen.New(imagegen.Config{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.ImageModel,
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}
		s.imageGen = gen
	}

	telemetry, err := setupTelemetry(context.Background(), cfg.OTLPEndpoint, cfg.MetricsListen, cfg.PprofListen, cfg.EnableProfilingMetrics, svcfields.WithSubsystem(logger, "telemetry"))
	if err != nil {
		return nil, err
	}
	s.telemetry = telemetry
	s.metrics = newToolMetrics(svcfields.WithSubsystem(logger, "telemetry"), s.cache)

	if transport == TransportHTTP {
		s.httpServer = &http.Server{
			Addr:    cfg.Listen,
			Handler: s.buildMux(),
		}
	}

	return s, nil
}

// Run serves MCP until ctx is canceled. The stdio transport owns
// stdin/stdout for the session; the HTTP transport listens on Config.Listen
// and shuts down gracefully on cancel.
func (s *server) Run(ctx context.Context) error {
	defer func() {
		if s.telemetry != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = s.telemetry.Shutdown(shutdownCtx)
			cancel()
		}
	}()

	if s.transport == TransportStdio {
		return s.runStdio(ctx)
	}
	return s.runHTTP(ctx)
}

func (s *server) runStdio(ctx context.Context) error {
	s.lifecycleLog.Info("starting fabric MCP facade", "transport", "stdio", "token_source", s.tokenSource, "image_tool", s.imageGen != nil)
	err := s.buildMCPServer().Run(ctx, &mcpsdk.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *server) runHTTP(ctx context.Context) error {
	s.lifecycleLog.Info("starting fabric MCP facade", "transport", "http", "listen", s.cfg.Listen, "mcp_path", s.mcpHTTPPath, "token_source", s.tokenSource, "image_tool", s.imageGen != nil)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *server) buildMux() *http.ServeMux {
	mcpSrv := s.buildMCPServer()
	streamable := mcpsdk.NewStreamableHTTPHandler(func(_ *http.Request) *mcpsdk.Server {
		return mcpSrv
	}, nil)

	var handler http.Handler = streamable
	handler = withAuthorizationCapture(handler)
	handler = withCorrelationHeader(handler)
	handler = otelhttp.NewHandler(handler, "mcp")

	mux := http.NewServeMux()
	mux.Handle(s.mcpHTTPPath, handler)
	return mux
}

func (s *server) buildMCPServer() *mcpsdk.Server {
	mcpSrv := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "fabric-mcp-facade",
		Version: version.Current(),
	}, &mcpsdk.ServerOptions{
		Instructions:       defaultServerInstructions(s.cfg, s.tokenSource, s.imageGen != nil),
		InitializedHandler: s.handleInitialized,
	})
	s.registerResources(mcpSrv)
	s.registerTools(mcpSrv)
	return mcpSrv
}

// withCorrelationHeader adopts the caller's correlation ID when it is sane
// and stamps a fresh one otherwise, so upstream Fabric calls can be traced
// back to the MCP request that caused them.
func withCorrelationHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cid, ok := client.NormalizeCorrelationID(r.Header.Get(client.HeaderCorrelationID))
		if !ok {
			cid = client.GenerateCorrelationID()
		}
		w.Header().Set(client.HeaderCorrelationID, cid)
		next.ServeHTTP(w, r.WithContext(client.WithCorrelationID(r.Context(), cid)))
	})
}

// registerTool wires one handler behind the shared middleware: observability
// innermost, structured errors outermost so envelope rendering sees every
// failure.
func registerTool[In, Out any](s *server, srv *mcpsdk.Server, name, description string, h mcpsdk.ToolHandlerFor[In, Out]) {
	wrapped := withStructuredToolErrors(name, withToolObservability(name, s.toolLog, s.metrics, h))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        name,
		Description: description,
	}, wrapped)
}

func (s *server) registerTools(srv *mcpsdk.Server) {
	descriptions := buildToolDescriptions(s.cfg)
	desc := func(name string) string {
		description, ok := descriptions[name]
		if !ok {
			panic(fmt.Sprintf("missing MCP tool description for %q", name))
		}
		return description
	}

	registerTool(s, srv, toolTapestriesList, desc(toolTapestriesList), s.handleTapestriesListTool)
	registerTool(s, srv, toolFacetTypes, desc(toolFacetTypes), s.handleFacetTypesTool)
	registerTool(s, srv, toolFacetsTop, desc(toolFacetsTop), s.handleFacetsTopTool)
	registerTool(s, srv, toolFacetsSearch, desc(toolFacetsSearch), s.handleFacetsSearchTool)
	registerTool(s, srv, toolFacetMemories, desc(toolFacetMemories), s.handleFacetMemoriesTool)
	registerTool(s, srv, toolFacetThreads, desc(toolFacetThreads), s.handleFacetThreadsTool)
	registerTool(s, srv, toolFacetNeighbours, desc(toolFacetNeighbours), s.handleFacetNeighboursTool)
	registerTool(s, srv, toolMemoryNeighbours, desc(toolMemoryNeighbours), s.handleMemoryNeighboursTool)
	registerTool(s, srv, toolTapestryThreads, desc(toolTapestryThreads), s.handleTapestryThreadsTool)
	registerTool(s, srv, toolThreadImage, desc(toolThreadImage), s.handleThreadImageTool)
	if s.imageGen != nil {
		registerTool(s, srv, toolImageGenerate, desc(toolImageGenerate), s.handleImageGenerateTool)
	} else {
		s.lifecycleLog.Info("image generation tool disabled", "reason", "no gemini api key configured")
	}
	registerTool(s, srv, toolHelp, desc(toolHelp), s.handleHelpTool)
}

// token resolves the Fabric bearer token for one tool call.
func (s *server) token(ctx context.Context, param string) (string, error) {
	return resolveBearerToken(ctx, s.tokenSource, s.cfg.AuthToken, param)
}

// passThroughOutput carries an upstream body without re-validating its
// shape: JSON rides in result, anything else is tagged result_text.
type passThroughOutput struct {
	Result     json.RawMessage `json:"result,omitempty" jsonschema:"Upstream response decoded as JSON"`
	ResultText string          `json:"result_text,omitempty" jsonschema:"Upstream response that was not valid JSON"`
}

func rawResult(body []byte) passThroughOutput {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && json.Valid(trimmed) {
		return passThroughOutput{Result: json.RawMessage(append([]byte(nil), trimmed...))}
	}
	return passThroughOutput{ResultText: string(body)}
}

func cleanHTTPPath(raw string) string {
	p := strings.TrimSpace(raw)
	if p == "" {
		return DefaultMCPPath
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
