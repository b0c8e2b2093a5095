// Package webhttp exposes the gateway over HTTP: JSON request bodies in,
// plain-text (optionally chunked) responses out.
package webhttp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	root "github.com/go-go-golems/petfood-agent/pkg/webchat"
	"github.com/go-go-golems/petfood-agent/pkg/session"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

const (
	HeaderSessionID = "X-Session-ID"
	maxBodyBytes    = 1 << 20
	// statusClientClosedRequest is nginx's code for a client that went away.
	statusClientClosedRequest = 499
)

// RecommendRequestBody is the body of the one-shot endpoints.
type RecommendRequestBody struct {
	Message string `json:"message"`
}

// ChatRequestBody is the body of /chat-streaming.
type ChatRequestBody struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatHTTPService describes the gateway operations used by the handlers.
type ChatHTTPService interface {
	Recommend(ctx context.Context, message string) (string, error)
	StreamStateless(ctx context.Context, message string) (root.ChunkStream, error)
	StreamChat(ctx context.Context, sessionID string, message string) (root.ChatStream, error)
	EndSession(ctx context.Context, sessionID string) (session.EndResult, error)
}

// EventFeedService attaches websocket observers to the lifecycle feed.
type EventFeedService interface {
	Attach(ctx context.Context, conn *websocket.Conn, sessionFilter string)
}

var _ ChatHTTPService = &root.ChatService{}
var _ EventFeedService = &root.EventFeed{}

func statusForKind(k root.Kind) int {
	switch k {
	case root.KindValidation:
		return http.StatusBadRequest
	case root.KindSessionNotFound:
		return http.StatusNotFound
	case root.KindCanceled:
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a gateway error to an HTTP status. Validation messages are
// returned verbatim; others carry the error text.
func writeError(w http.ResponseWriter, req *http.Request, err error) {
	status := statusForKind(root.KindOf(err))
	msg := err.Error()
	var gerr *root.Error
	if errors.As(err, &gerr) && gerr.Kind == root.KindValidation && gerr.Msg != "" {
		msg = gerr.Msg
	}
	kind := root.KindOf(err)
	switch {
	case kind == root.KindCanceled:
		hlog.FromRequest(req).Debug().Err(err).Msg("client went away")
	case status >= http.StatusInternalServerError:
		hlog.FromRequest(req).Error().Err(err).Str("kind", kind.String()).Msg("request failed")
	}
	http.Error(w, msg, status)
}

func decodeBody(req *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(req.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return root.ValidationError("Invalid request body")
	}
	return nil
}

func NewHealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}

func NewRecommendHandler(svc ChatHTTPService) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if svc == nil {
			http.Error(w, "chat service not initialized", http.StatusServiceUnavailable)
			return
		}
		var body RecommendRequestBody
		if err := decodeBody(req, &body); err != nil {
			writeError(w, req, err)
			return
		}
		out, err := svc.Recommend(req.Context(), body.Message)
		if err != nil {
			writeError(w, req, err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, out)
	}
}

func NewRecommendStreamingHandler(svc ChatHTTPService) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if svc == nil {
			http.Error(w, "chat service not initialized", http.StatusServiceUnavailable)
			return
		}
		var body RecommendRequestBody
		if err := decodeBody(req, &body); err != nil {
			writeError(w, req, err)
			return
		}
		stream, err := svc.StreamStateless(req.Context(), body.Message)
		if err != nil {
			writeError(w, req, err)
			return
		}
		defer func() { _ = stream.Close() }()
		streamText(w, req, "", stream)
	}
}

func NewChatStreamingHandler(svc ChatHTTPService) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if svc == nil {
			http.Error(w, "chat service not initialized", http.StatusServiceUnavailable)
			return
		}
		var body ChatRequestBody
		if err := decodeBody(req, &body); err != nil {
			writeError(w, req, err)
			return
		}
		cs, err := svc.StreamChat(req.Context(), body.SessionID, body.Message)
		if err != nil {
			writeError(w, req, err)
			return
		}
		logger := hlog.FromRequest(req).With().Str("session_id", cs.SessionID).Logger()
		w.Header().Set(HeaderSessionID, cs.SessionID)
		if cs.Ended {
			logger.Debug().Msg("chat request for ended session")
			streamText(w, req, root.EndedChunk(cs.SessionID), nil)
			return
		}
		defer func() { _ = cs.Stream.Close() }()
		if cs.Created {
			logger.Debug().Msg("chat stream on new session")
		}
		streamText(w, req, root.SessionChunk(cs.SessionID), cs.Stream)
	}
}

func NewEndSessionHandler(svc ChatHTTPService) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if svc == nil {
			http.Error(w, "chat service not initialized", http.StatusServiceUnavailable)
			return
		}
		id := strings.TrimSpace(req.PathValue("session_id"))
		res, err := svc.EndSession(req.Context(), id)
		if err != nil {
			writeError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func NewEventsHandler(feed EventFeedService, upgrader websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if feed == nil {
			http.Error(w, "event feed not enabled", http.StatusNotFound)
			return
		}
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		feed.Attach(req.Context(), conn, strings.TrimSpace(req.URL.Query().Get("session_id")))
	}
}

// streamText writes prefix and then every chunk of stream, flushing after
// each write. A failed write means the client went away; the caller's
// deferred Close cancels the generation.
func streamText(w http.ResponseWriter, req *http.Request, prefix string, stream root.ChunkStream) {
	logger := hlog.FromRequest(req)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	write := func(s string) bool {
		if _, err := io.WriteString(w, s); err != nil {
			logger.Debug().Err(err).Msg("client went away")
			return false
		}
		if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			logger.Debug().Err(err).Msg("flush failed")
			return false
		}
		return true
	}

	if prefix != "" && !write(prefix) {
		return
	}
	if stream == nil {
		return
	}
	for {
		chunk, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			logStreamEnd(logger, err)
			return
		}
		if chunk == "" {
			continue
		}
		if !write(chunk) {
			return
		}
	}
}

func logStreamEnd(logger *zerolog.Logger, err error) {
	if errors.Is(err, context.Canceled) {
		logger.Debug().Msg("stream cancelled by client")
		return
	}
	logger.Warn().Err(err).Msg("stream ended with error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
