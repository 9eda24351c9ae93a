// Package fabricmcp exposes the Fabric personal-data API as an MCP server.
// One binary serves both stdio and streamable-HTTP transports, resolves each
// caller's bearer token to their tapestry, and forwards facet, memory, and
// thread operations upstream as typed MCP tools. A generative-image tool is
// registered when a Gemini API key is configured.
//
// Copyright (C) 2025 Michel Blomgren <https://pkt.systems>
//
// # Running a server
//
//	cfg := fabricmcp.Config{
//	    Listen:    ":8000",
//	    Transport: fabricmcp.TransportHTTP,
//	}
//	srv, err := fabricmcp.NewServer(fabricmcp.NewServerRequest{Config: cfg})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Over HTTP the facade reads each caller's Authorization header, so one
// process serves any number of Fabric accounts. Over stdio there is exactly
// one caller; the token comes from the ONFABRIC_AUTH_TOKEN environment
// variable instead.
//
// # Talking to a running facade
//
// The fabricmcp binary doubles as an MCP client for scripting:
//
//	fabricmcp client tools --server http://localhost:8000/mcp
//	fabricmcp client call fabric.facets.top --arg facet_type=topics --arg top_k=5
//
// See the cmd/fabricmcp package for the CLI and the client package for the
// underlying Fabric REST client.
package fabricmcp
