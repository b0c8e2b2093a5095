package webchat

import (
	"context"
	"strings"

	"github.com/go-go-golems/petfood-agent/pkg/session"
	"github.com/pkg/errors"
)

const msgNoMessage = "No message provided"

// ChatStream is the outcome of starting a chat-mode stream. When Ended is
// set, the requested session was ended and Stream is nil.
type ChatStream struct {
	SessionID string
	Created   bool
	Ended     bool
	Stream    ChunkStream
}

// ChatService exposes the gateway operations used by the HTTP handlers.
type ChatService struct {
	lifecycle *session.Lifecycle
	coord     *StreamCoordinator
}

func NewChatService(lifecycle *session.Lifecycle, coord *StreamCoordinator) (*ChatService, error) {
	if lifecycle == nil {
		return nil, errors.New("webchat: lifecycle is nil")
	}
	if coord == nil {
		return nil, errors.New("webchat: stream coordinator is nil")
	}
	return &ChatService{lifecycle: lifecycle, coord: coord}, nil
}

func validateMessage(message string) error {
	if message == "" {
		return ValidationError(msgNoMessage)
	}
	return nil
}

// Recommend answers a single message on a throwaway session.
func (s *ChatService) Recommend(ctx context.Context, message string) (string, error) {
	if err := validateMessage(message); err != nil {
		return "", err
	}
	sess, err := s.lifecycle.NewEphemeral(ctx)
	if err != nil {
		return "", newError(KindUpstreamInference, "build engine", err)
	}
	return s.coord.Complete(ctx, sess, message)
}

// StreamStateless streams a single message on a throwaway session.
func (s *ChatService) StreamStateless(ctx context.Context, message string) (ChunkStream, error) {
	if err := validateMessage(message); err != nil {
		return nil, err
	}
	sess, err := s.lifecycle.NewEphemeral(ctx)
	if err != nil {
		return nil, newError(KindUpstreamInference, "build engine", err)
	}
	h, err := s.coord.Open(ctx, sess, message)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// StreamChat continues (or starts) the conversation sessionID.
func (s *ChatService) StreamChat(ctx context.Context, sessionID string, message string) (ChatStream, error) {
	if err := validateMessage(message); err != nil {
		return ChatStream{}, err
	}
	sessionID = strings.TrimSpace(sessionID)
	res, err := s.lifecycle.ResolveForChat(ctx, sessionID)
	if err != nil {
		return ChatStream{SessionID: sessionID}, newError(KindInternal, "resolve session", err)
	}
	if res.Ended {
		return ChatStream{SessionID: res.ID, Ended: true}, nil
	}

	h, err := s.coord.Open(ctx, res.Session, message)
	if err != nil {
		if KindOf(err) == KindSessionEnded {
			// Ended while this request waited for the session.
			return ChatStream{SessionID: res.ID, Ended: true}, nil
		}
		return ChatStream{SessionID: res.ID, Created: res.Created}, err
	}
	return ChatStream{SessionID: res.ID, Created: res.Created, Stream: h}, nil
}

// EndSession ends sessionID. Unknown ids yield the not-found status.
func (s *ChatService) EndSession(ctx context.Context, sessionID string) (session.EndResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	res, err := s.lifecycle.End(ctx, sessionID)
	if err != nil {
		return session.EndResult{}, newError(KindInternal, "end session", err)
	}
	if res.Status == session.EndStatusEnded {
		s.coord.ForgetSession(ctx, sessionID)
	}
	return res, nil
}
