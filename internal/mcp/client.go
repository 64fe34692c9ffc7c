package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const (
	protocolVersion = "2024-11-05"
	clientName      = "agentd"
	clientVersion   = "0.1.0"

	// DefaultIOTimeout bounds each framed message read.
	DefaultIOTimeout = 30 * time.Second
)

// Client is an open connection to one MCP server. Connections are opened
// per dispatch and closed right after; see Dial.
type Client interface {
	ListTools(ctx context.Context) (map[string]any, error)
	CallTool(ctx context.Context, name string, arguments map[string]any) (map[string]any, error)
	Close() error
}

// Dial opens a connection to srv using its transport.
func Dial(ctx context.Context, srv Server, ioTimeout time.Duration) (Client, error) {
	switch srv.Transport {
	case "", TransportStdio:
		return OpenStdio(ctx, srv, ioTimeout)
	case TransportNDJSON:
		return openNDJSON(ctx, srv)
	default:
		return nil, fmt.Errorf("mcp: transport %q not supported", srv.Transport)
	}
}

// StdioClient speaks LSP-framed JSON-RPC 2.0 over a child process's
// stdio: every message is preceded by a Content-Length header and a
// blank line. Not safe for concurrent use.
type StdioClient struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	out       *bufio.Reader
	outFile   *os.File // deadline handle; nil when the pipe has none
	stderr    bytes.Buffer
	ioTimeout time.Duration
	nextID    int
}

// OpenStdio starts the server process and performs the initialize
// handshake. Handshake failures are ignored; some servers skip it.
func OpenStdio(ctx context.Context, srv Server, ioTimeout time.Duration) (*StdioClient, error) {
	if len(srv.Command) == 0 {
		return nil, errors.New("mcp: empty command")
	}
	if ioTimeout <= 0 {
		ioTimeout = DefaultIOTimeout
	}

	cmd := exec.CommandContext(ctx, srv.Command[0], srv.Command[1:]...)
	cmd.Dir = srv.Cwd
	cmd.Env = append(os.Environ(), envList(srv.Env)...)

	c := &StdioClient{cmd: cmd, ioTimeout: ioTimeout, nextID: 1}
	cmd.Stderr = &c.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp: stdin pipe: %w", err)
	}
	c.stdin = stdin
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("mcp: stdout pipe: %w", err)
	}
	c.out = bufio.NewReader(stdout)
	c.outFile, _ = stdout.(*os.File)

	if err := cmd.Start(); err != nil {
		stdin.Close()
		return nil, fmt.Errorf("mcp: start %s: %w", srv.Command[0], err)
	}

	c.request("initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{"list": true, "call": true},
		},
		"clientInfo": map[string]any{"name": clientName, "version": clientVersion},
	})
	return c, nil
}

// ListTools issues tools/list.
func (c *StdioClient) ListTools(ctx context.Context) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.request("tools/list", map[string]any{})
}

// CallTool issues tools/call for one named tool.
func (c *StdioClient) CallTool(ctx context.Context, name string, arguments map[string]any) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if arguments == nil {
		arguments = map[string]any{}
	}
	return c.request("tools/call", map[string]any{"name": name, "arguments": arguments})
}

// Close sends a best-effort shutdown request without waiting for the
// reply, then terminates the process.
func (c *StdioClient) Close() error {
	if c.cmd != nil && c.cmd.Process != nil {
		c.writeMessage(map[string]any{
			"jsonrpc": "2.0", "id": c.nextID, "method": "shutdown", "params": map[string]any{},
		})
		c.stdin.Close()
		c.cmd.Process.Kill()
		c.cmd.Wait()
	}
	return nil
}

// request writes one JSON-RPC request and reads messages until the
// response with the matching id arrives. Notifications and responses to
// other ids are skipped.
func (c *StdioClient) request(method string, params map[string]any) (map[string]any, error) {
	id := c.nextID
	c.nextID++
	req := map[string]any{"jsonrpc": "2.0", "id": id, "method": method}
	if params != nil {
		req["params"] = params
	}
	if err := c.writeMessage(req); err != nil {
		return nil, err
	}
	for {
		msg, err := c.readMessage()
		if err != nil {
			return nil, err
		}
		got, ok := msg["id"].(float64)
		if !ok || int(got) != id {
			continue
		}
		if e, found := msg["error"]; found {
			detail, _ := json.Marshal(e)
			return nil, fmt.Errorf("mcp: server error: %s", detail)
		}
		switch result := msg["result"].(type) {
		case map[string]any:
			return result, nil
		case nil:
			return map[string]any{}, nil
		default:
			return map[string]any{"result": result}, nil
		}
	}
}

func (c *StdioClient) writeMessage(msg map[string]any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("mcp: encode message: %w", err)
	}
	if _, err := fmt.Fprintf(c.stdin, "Content-Length: %d\r\n\r\n", len(data)); err != nil {
		return fmt.Errorf("mcp: write header: %w", err)
	}
	if _, err := c.stdin.Write(data); err != nil {
		return fmt.Errorf("mcp: write body: %w", err)
	}
	return nil
}

// readMessage reads one framed message. The io timeout covers headers
// and body together.
func (c *StdioClient) readMessage() (map[string]any, error) {
	if c.outFile != nil {
		c.outFile.SetReadDeadline(time.Now().Add(c.ioTimeout))
	}

	contentLength := -1
	for {
		line, err := c.out.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("mcp: read header: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if rest, ok := strings.CutPrefix(strings.ToLower(line), "content-length:"); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(rest)); err == nil {
				contentLength = n
			}
		}
	}
	if contentLength < 0 {
		return nil, errors.New("mcp: missing Content-Length header")
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(c.out, body); err != nil {
		return nil, fmt.Errorf("mcp: read body: %w", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("mcp: invalid json: %w", err)
	}
	return msg, nil
}

func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
