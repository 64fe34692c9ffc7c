package gateway

import (
	_ "embed"
	"net/http"
)

// The chat page drives the SSE endpoint directly; everything it needs
// ships in one file so the binary stays self-contained.
//
//go:embed ui.html
var indexHTML []byte

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(indexHTML)
}
