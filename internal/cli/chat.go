package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/agentd-dev/agentd/internal/config"
	"github.com/agentd-dev/agentd/internal/engine"
)

// Chat runs the interactive loop until the input closes or the user
// quits. The /auto command flips the sink's auto-approve switch without
// spending a model turn.
func Chat(ctx context.Context, session *engine.Session, cfg *config.Config, sink *Sink, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "Entering chat mode. Type 'exit' to quit.")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "you> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || isQuit(line) {
			break
		}

		if fields := strings.Fields(line); len(fields) > 0 && strings.EqualFold(fields[0], "/auto") {
			arg := "toggle"
			if len(fields) > 1 {
				arg = strings.ToLower(fields[1])
			}
			switch arg {
			case "on", "true", "1":
				sink.SetAutoApprove(true)
			case "off", "false", "0":
				sink.SetAutoApprove(false)
			default:
				sink.SetAutoApprove(!sink.AutoApprove())
			}
			fmt.Fprintf(out, "[auto] auto-approve set to %v\n", sink.AutoApprove())
			continue
		}

		var err error
		if cfg.Stream {
			_, err = session.ChatStream(ctx, line, sink)
		} else {
			_, err = session.ChatOnce(ctx, line, sink)
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintln(out, "error:", err)
		}
	}
	return scanner.Err()
}

func isQuit(line string) bool {
	switch strings.ToLower(line) {
	case "exit", "quit", "/exit", "/quit":
		return true
	}
	return false
}
