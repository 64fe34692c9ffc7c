package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	mcproto "github.com/mark3labs/mcp-go/mcp"
)

// ndjsonClient drives servers that speak newline-delimited JSON-RPC
// instead of Content-Length framing. The child always runs in the
// agent's working directory; the transport has no cwd control.
type ndjsonClient struct {
	c *client.Client
}

func openNDJSON(ctx context.Context, srv Server) (Client, error) {
	if len(srv.Command) == 0 {
		return nil, errors.New("mcp: empty command")
	}
	mc, err := client.NewStdioMCPClient(srv.Command[0], envList(srv.Env), srv.Command[1:]...)
	if err != nil {
		return nil, fmt.Errorf("mcp: start %s: %w", srv.Command[0], err)
	}
	if err := mc.Start(ctx); err != nil {
		mc.Close()
		return nil, fmt.Errorf("mcp: start client: %w", err)
	}

	initReq := mcproto.InitializeRequest{}
	initReq.Params.ProtocolVersion = protocolVersion
	initReq.Params.ClientInfo = mcproto.Implementation{Name: clientName, Version: clientVersion}
	if _, err := mc.Initialize(ctx, initReq); err != nil {
		mc.Close()
		return nil, fmt.Errorf("mcp: initialize: %w", err)
	}
	return &ndjsonClient{c: mc}, nil
}

func (n *ndjsonClient) ListTools(ctx context.Context) (map[string]any, error) {
	res, err := n.c.ListTools(ctx, mcproto.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcp: tools/list: %w", err)
	}
	return resultMap(res)
}

func (n *ndjsonClient) CallTool(ctx context.Context, name string, arguments map[string]any) (map[string]any, error) {
	req := mcproto.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = arguments
	res, err := n.c.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("mcp: tools/call: %w", err)
	}
	return resultMap(res)
}

func (n *ndjsonClient) Close() error { return n.c.Close() }

// resultMap re-encodes an mcp-go result into the wire-shaped map the
// framed client returns, so callers see one result format.
func resultMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("mcp: encode result: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("mcp: decode result: %w", err)
	}
	return m, nil
}
