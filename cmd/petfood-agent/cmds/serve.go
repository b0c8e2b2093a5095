package cmds

import (
	"github.com/go-go-golems/petfood-agent/pkg/webchat"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newServeCommand(s *settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the recommendation gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			for key, flag := range map[string]string{
				"server.addr":              "addr",
				"engine.provider":          "provider",
				"store.turns_dsn":          "turns-dsn",
				"redis.enabled":            "redis",
				"events.websocket_enabled": "websocket-events",
			} {
				if err := s.v.BindPFlag(key, flags.Lookup(flag)); err != nil {
					return errors.Wrapf(err, "bind --%s", flag)
				}
			}
			cfg, err := s.load()
			if err != nil {
				return err
			}

			g, err := buildGateway(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			srv, err := webchat.NewServer(webchat.ServerOptions{
				Addr:              cfg.Server.Addr,
				Handler:           g.Handler,
				ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
				ShutdownTimeout:   cfg.Server.ShutdownTimeout,
				Store:             g.Store,
				Feed:              g.Feed,
				Closers:           g.Closers,
			})
			if err != nil {
				g.Close()
				return err
			}
			return srv.Run(cmd.Context())
		},
	}
	cmd.Flags().String("addr", ":8000", "listen address")
	cmd.Flags().String("provider", "openai", "inference provider (openai, echo)")
	cmd.Flags().String("turns-dsn", "", "sqlite DSN for the turn transcript (empty keeps it in memory)")
	cmd.Flags().Bool("redis", false, "publish lifecycle events to redis streams")
	cmd.Flags().Bool("websocket-events", false, "expose lifecycle events on GET /events")
	return cmd
}
