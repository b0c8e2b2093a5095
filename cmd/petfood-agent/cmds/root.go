package cmds

import (
	"github.com/go-go-golems/petfood-agent/pkg/config"
	"github.com/go-go-golems/petfood-agent/pkg/logging"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// settings is shared by the subcommands once the root pre-run loaded it.
type settings struct {
	configFile string
	v          *viper.Viper
}

func (s *settings) load() (*config.Config, error) {
	if s.v == nil {
		return nil, errors.New("configuration not initialized")
	}
	return config.Load(s.v)
}

func NewRootCommand() *cobra.Command {
	s := &settings{}
	root := &cobra.Command{
		Use:           "petfood-agent",
		Short:         "petfood-agent serves streaming pet food recommendations over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v, err := config.New(s.configFile)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			for key, flag := range map[string]string{
				"logging.level":  "log-level",
				"logging.format": "log-format",
				"logging.caller": "log-caller",
			} {
				if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
					return errors.Wrapf(err, "bind --%s", flag)
				}
			}
			s.v = v

			// raw values: the full config is only decoded by the commands that need it
			return logging.Init(logging.Settings{
				Level:  v.GetString("logging.level"),
				Format: v.GetString("logging.format"),
				Caller: v.GetBool("logging.caller"),
			})
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&s.configFile, "config", "", "path to a YAML config file")
	pf.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	pf.String("log-format", "auto", "log format (auto, console, json)")
	pf.Bool("log-caller", false, "annotate log lines with the caller")

	root.AddCommand(newServeCommand(s))
	root.AddCommand(newChatCommand(s))
	root.AddCommand(newTurnsCommand(s))
	return root
}
