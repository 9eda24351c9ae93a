package fabricmcp

import (
	"context"
	"strings"
	"testing"
)

func TestParseCollectorTarget(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		raw       string
		wantProto string
		wantHost  string
		wantPath  string
		plaintext bool
		wantErr   string
	}{
		{name: "bare host defaults to plaintext grpc", raw: "collector", wantProto: "grpc", wantHost: "collector:4317", plaintext: true},
		{name: "bare host keeps explicit port", raw: "collector:9999", wantProto: "grpc", wantHost: "collector:9999", plaintext: true},
		{name: "grpc scheme", raw: "grpc://otel.internal", wantProto: "grpc", wantHost: "otel.internal:4317", plaintext: true},
		{name: "grpcs scheme uses tls", raw: "grpcs://otel.internal:4317", wantProto: "grpc", wantHost: "otel.internal:4317"},
		{name: "http scheme with path", raw: "http://otel.internal/v1/traces", wantProto: "http", wantHost: "otel.internal:4318", wantPath: "/v1/traces", plaintext: true},
		{name: "https default port", raw: "https://otel.internal", wantProto: "http", wantHost: "otel.internal:4318"},
		{name: "unknown scheme", raw: "udp://otel.internal", wantErr: "unknown otlp scheme"},
		{name: "empty", raw: "   ", wantErr: "empty otlp endpoint"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			target, err := parseCollectorTarget(tt.raw)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse %q: %v", tt.raw, err)
			}
			if target.proto != tt.wantProto {
				t.Fatalf("proto: got %q want %q", target.proto, tt.wantProto)
			}
			if target.hostport != tt.wantHost {
				t.Fatalf("hostport: got %q want %q", target.hostport, tt.wantHost)
			}
			if target.urlPath != tt.wantPath {
				t.Fatalf("urlPath: got %q want %q", target.urlPath, tt.wantPath)
			}
			if target.plaintext != tt.plaintext {
				t.Fatalf("plaintext: got %v want %v", target.plaintext, tt.plaintext)
			}
		})
	}
}

func TestSetupTelemetryDisabledReturnsNilBundle(t *testing.T) {
	t.Parallel()

	bundle, err := setupTelemetry(context.Background(), "", "", "", false, nil)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if bundle != nil {
		t.Fatalf("expected nil bundle when telemetry is disabled")
	}
	if err := bundle.Shutdown(context.Background()); err != nil {
		t.Fatalf("nil bundle shutdown: %v", err)
	}
}

func TestSetupTelemetryProfilingRequiresMetricsListener(t *testing.T) {
	t.Parallel()

	_, err := setupTelemetry(context.Background(), "", "", "", true, nil)
	if err == nil || !strings.Contains(err.Error(), "metrics listen address") {
		t.Fatalf("expected profiling-without-metrics error, got %v", err)
	}
}
