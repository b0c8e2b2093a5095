package cmds

import (
	"encoding/json"
	"io"

	"github.com/go-go-golems/petfood-agent/pkg/persistence/chatstore"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newTurnsCommand(s *settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "turns",
		Short: "Inspect the committed turn transcript",
	}
	cmd.AddCommand(newTurnsListCommand(s))
	return cmd
}

func newTurnsListCommand(s *settings) *cobra.Command {
	var (
		dsn    string
		q      chatstore.TurnQuery
		output string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored turns, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				dsn = s.v.GetString("store.turns_dsn")
			}
			if dsn == "" {
				return errors.New("no turn store configured: pass --dsn or set store.turns_dsn")
			}
			store, err := chatstore.Open(dsn)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			turns, err := store.List(cmd.Context(), q)
			if err != nil {
				return err
			}
			return writeTurns(cmd.OutOrStdout(), output, turns)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&dsn, "dsn", "", "sqlite DSN of the turn store (defaults to store.turns_dsn)")
	flags.StringVar(&q.SessionID, "session", "", "only turns of this session")
	flags.StringVar(&q.Mode, "mode", "", "only turns of this mode (chat, stateless)")
	flags.IntVar(&q.Limit, "limit", 50, "maximum number of turns")
	flags.StringVarP(&output, "output", "o", "yaml", "output format (yaml, json)")
	return cmd
}

func writeTurns(w io.Writer, format string, turns []chatstore.TurnRecord) error {
	if turns == nil {
		turns = []chatstore.TurnRecord{}
	}
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(turns); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(turns)
	default:
		return errors.Errorf("unknown output format %q", format)
	}
}
