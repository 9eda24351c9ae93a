package main

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/dustin/go-humanize"
	"pkt.systems/pslog"

	"pkt.systems/fabricmcp"
	fabricclient "pkt.systems/fabricmcp/client"
)

func TestInvocationTargetsRootCommand(t *testing.T) {
	root := newRootCommand(pslog.NewStructured(io.Discard))
	cases := []struct {
		name string
		args []string
		want bool
	}{
		{name: "no args", args: nil, want: true},
		{name: "root flag only", args: []string{"--listen", ":9000"}, want: true},
		{name: "root shorthand with value", args: []string{"-t", "http"}, want: true},
		{name: "root flag with equals", args: []string{"--transport=http"}, want: true},
		{name: "config shorthand with value", args: []string{"-c", "/tmp/cfg.yaml"}, want: true},
		{name: "subcommand", args: []string{"client", "tools"}, want: false},
		{name: "subcommand after root flag", args: []string{"--config", "/tmp/cfg.yaml", "client", "tools"}, want: false},
		{name: "version subcommand", args: []string{"version"}, want: false},
		{name: "config gen subcommand", args: []string{"config", "gen"}, want: false},
		{name: "unknown shorthand no subcommand", args: []string{"-z"}, want: true},
		{name: "unknown shorthand before subcommand", args: []string{"-z", "client", "tools"}, want: false},
		{name: "unknown long before subcommand", args: []string{"--bogus", "version"}, want: false},
		{name: "double dash terminates", args: []string{"--"}, want: true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := invocationTargetsRootCommand(root, tc.args)
			if got != tc.want {
				t.Fatalf("invocationTargetsRootCommand(%v)=%v want %v", tc.args, got, tc.want)
			}
		})
	}
}

func TestSubmainFlagParseFailureRoutedToStderr(t *testing.T) {
	origArgs := os.Args
	defer func() { os.Args = origArgs }()
	os.Args = []string{"fabricmcp", "client", "tools", "-z"}

	stderr := captureStderr(t, func() {
		exitCode := submain(context.Background())
		if exitCode != 1 {
			t.Fatalf("submain() exitCode=%d want 1", exitCode)
		}
	})
	if !strings.Contains(stderr, "unknown shorthand flag") {
		t.Fatalf("expected parser failure routed to stderr, got %q", stderr)
	}
}

func TestRootHasExpectedShorthands(t *testing.T) {
	root := newRootCommand(pslog.NewStructured(io.Discard))
	if flag := root.PersistentFlags().ShorthandLookup("c"); flag == nil || flag.Name != "config" {
		t.Fatalf("expected persistent -c shorthand for --config, got %#v", flag)
	}
	if flag := root.Flags().ShorthandLookup("l"); flag == nil || flag.Name != "listen" {
		t.Fatalf("expected -l shorthand for --listen, got %#v", flag)
	}
	if flag := root.Flags().ShorthandLookup("t"); flag == nil || flag.Name != "transport" {
		t.Fatalf("expected -t shorthand for --transport, got %#v", flag)
	}
}

func TestServerFlagsAreRootOnly(t *testing.T) {
	root := newRootCommand(pslog.NewStructured(io.Discard))
	for _, name := range []string{"listen", "transport", "token-source", "gemini-api-key"} {
		if flag := root.Flags().Lookup(name); flag == nil {
			t.Fatalf("expected --%s on root local flags", name)
		}
		if flag := root.PersistentFlags().Lookup(name); flag != nil {
			t.Fatalf("expected --%s to not be persistent, got %#v", name, flag)
		}
	}
}

func TestHumanizeBytesRoundTripsThroughParseBytes(t *testing.T) {
	rendered := humanizeBytes(fabricclient.DefaultMaxBodyBytes)
	parsed, err := humanize.ParseBytes(rendered)
	if err != nil {
		t.Fatalf("ParseBytes(%q): %v", rendered, err)
	}
	if int64(parsed) != fabricclient.DefaultMaxBodyBytes {
		t.Fatalf("round trip %q=%d want %d", rendered, parsed, fabricclient.DefaultMaxBodyBytes)
	}
}

func TestExpandPathResolvesHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir: %v", err)
	}
	got, err := expandPath("~/fabricmcp.yaml")
	if err != nil {
		t.Fatalf("expandPath: %v", err)
	}
	if !strings.HasPrefix(got, home) {
		t.Fatalf("expected %q under %q", got, home)
	}
	got, err = expandPath("~")
	if err != nil {
		t.Fatalf("expandPath: %v", err)
	}
	if got != home {
		t.Fatalf("expandPath(~)=%q want %q", got, home)
	}
}

func TestDefaultConfigDirEnvOverride(t *testing.T) {
	t.Setenv("FABRICMCP_CONFIG_DIR", "/opt/fabricmcp-conf")
	dir, err := fabricmcp.DefaultConfigDir()
	if err != nil {
		t.Fatalf("DefaultConfigDir: %v", err)
	}
	if dir != "/opt/fabricmcp-conf" {
		t.Fatalf("DefaultConfigDir=%q want /opt/fabricmcp-conf", dir)
	}
}

func captureStderr(t *testing.T, fn func()) string {
	t.Helper()
	orig := os.Stderr
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	defer r.Close()
	os.Stderr = w
	defer func() {
		os.Stderr = orig
	}()

	done := make(chan string, 1)
	go func() {
		data, _ := io.ReadAll(r)
		done <- string(data)
	}()

	fn()
	_ = w.Close()
	return <-done
}
