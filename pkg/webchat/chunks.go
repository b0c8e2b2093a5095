package webchat

import (
	"fmt"
	"strings"
)

// SessionChunk announces the effective session id as the first chunk of a
// chat stream.
func SessionChunk(id string) string {
	return fmt.Sprintf("[Session ID: %s]\n\n", id)
}

// EndedChunk is the only chunk sent for a request against an ended session.
func EndedChunk(id string) string {
	return fmt.Sprintf("[Error: Session %s has been ended. Please start a new session.]\n", id)
}

// DiagnosticChunk terminates a stream whose generation failed after output
// started.
func DiagnosticChunk(err error) string {
	desc := "generation failed"
	if err != nil {
		if s := strings.TrimSpace(err.Error()); s != "" {
			desc = s
		}
	}
	return fmt.Sprintf("\n[Error: %s]\n", desc)
}
