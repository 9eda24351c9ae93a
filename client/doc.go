// Package client provides the Go client for the Fabric REST API. It covers
// the tapestry, facet, memory, and thread surface the MCP facade exposes and
// can be embedded directly in tools that want typed access without the MCP
// layer.
//
// Copyright (C) 2025 Michel Blomgren <https://pkt.systems>
//
// Every operation takes the bearer token as an argument rather than storing
// it on the client: one client instance serves any number of callers, which
// is exactly how the facade uses it. Construct with client.New:
//
//	cli, err := client.New(client.DefaultBaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	tapestries, err := cli.ListTapestries(ctx, token)
//
// Non-2xx upstream responses surface as *client.APIError carrying the HTTP
// status and raw body. An account without tapestries surfaces as
// *client.NotFoundError. Neither is retried; the caller decides.
package client
