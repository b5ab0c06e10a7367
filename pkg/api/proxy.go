package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/dmarceau/agentrunner/pkg/logging"
	"github.com/dmarceau/agentrunner/pkg/transport"
)

// proxyPathPrefix is where the forwarding proxy is mounted
const proxyPathPrefix = "/proxy/webhook/"

// handleProxy relays a request to {engine}/webhook/{path} and streams
// the engine's answer back. Browser clients trigger webhooks through
// this route so the engine never needs to share an origin with them.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, proxyPathPrefix)
	if r.URL.RawQuery != "" {
		path += "?" + r.URL.RawQuery
	}

	resp, err := s.deps.Engine.Forward(r.Context(), r.Method, path, r.Body, r.Header)
	if err != nil {
		s.logger.Warn("proxy request failed",
			logging.F("path", path),
			logging.F("error", err.Error()),
		)
		writeError(w, err)
		return
	}
	defer resp.Body.Close()

	transport.CopyEndToEndHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		s.logger.Warn("proxy response copy interrupted", logging.F("error", err.Error()))
	}
}
