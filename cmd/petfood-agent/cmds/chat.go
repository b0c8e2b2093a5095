package cmds

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	webhttp "github.com/go-go-golems/petfood-agent/pkg/webchat/http"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type chatClient struct {
	baseURL   string
	sessionID string
	stateless bool
	http      *http.Client
}

func newChatCommand(_ *settings) *cobra.Command {
	var (
		message string
		end     bool
	)
	c := &chatClient{http: &http.Client{}}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to a running gateway from the terminal",
		Long: "Sends messages to /chat-streaming and prints the streamed reply.\n" +
			"Without --message, reads one message per line from stdin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			c.baseURL = strings.TrimRight(c.baseURL, "/")

			if end {
				if c.sessionID == "" {
					return errors.New("--end requires --session")
				}
				return c.end(ctx, out)
			}
			if message != "" {
				return c.send(ctx, message, out)
			}
			return c.loop(ctx, cmd.InOrStdin(), out)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&c.baseURL, "url", "http://localhost:8000", "gateway base URL")
	flags.StringVar(&c.sessionID, "session", "", "continue an existing session")
	flags.BoolVar(&c.stateless, "stateless", false, "use /recommend-streaming without session memory")
	flags.StringVarP(&message, "message", "m", "", "send a single message and exit")
	flags.BoolVar(&end, "end", false, "end the session given by --session")
	return cmd
}

func (c *chatClient) loop(ctx context.Context, in io.Reader, out io.Writer) error {
	interactive := false
	if f, ok := in.(*os.File); ok {
		interactive = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	scanner := bufio.NewScanner(in)
	for {
		if interactive {
			_, _ = fmt.Fprint(out, "> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if interactive && (line == "/quit" || line == "/exit") {
			return nil
		}
		if err := c.send(ctx, line, out); err != nil {
			return err
		}
	}
}

func (c *chatClient) send(ctx context.Context, message string, out io.Writer) error {
	var (
		path string
		body any
	)
	if c.stateless {
		path = "/recommend-streaming"
		body = webhttp.RecommendRequestBody{Message: message}
	} else {
		path = "/chat-streaming"
		body = webhttp.ChatRequestBody{Message: message, SessionID: c.sessionID}
	}
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "POST %s", path)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	if id := resp.Header.Get(webhttp.HeaderSessionID); id != "" {
		c.sessionID = id
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		return errors.Wrap(err, "read stream")
	}
	_, _ = fmt.Fprintln(out)
	return nil
}

func (c *chatClient) end(ctx context.Context, out io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/chat/"+url.PathEscape(c.sessionID), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "end session")
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	var res struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return errors.Wrap(err, "decode end response")
	}
	_, err = fmt.Fprintf(out, "%s: %s\n", c.sessionID, res.Status)
	return err
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return errors.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(raw)))
}
