package cli

import (
	"fmt"

	"cdr.dev/slog/v3"
	"github.com/coder/serpent"
	"github.com/searchd/analytics/buildinfo"
	"github.com/searchd/analytics/cli/clilog"
)

const (
	varVerbose   = "verbose"
	varLogHuman  = "log-human"
	varLogJSON   = "log-json"
	varLogFilter = "log-filter"

	envPrefix = "SEARCHD_"
)

// RootCmd holds the options shared by every subcommand.
type RootCmd struct {
	verbose   bool
	logHuman  string
	logJSON   string
	logFilter []string
}

func (r *RootCmd) Command() *serpent.Command {
	cmd := &serpent.Command{
		Use: "searchd-analytics",
		Long: fmt.Sprintf("searchd-analytics %s: anonymized usage analytics for a searchd instance.\n",
			buildinfo.Version()),
		Handler: func(inv *serpent.Invocation) error {
			return inv.Command.HelpHandler(inv)
		},
		Children: []*serpent.Command{
			r.server(),
			r.traits(),
			r.identity(),
			r.version(),
		},
	}
	// Set default help handler for all commands.
	cmd.Walk(func(c *serpent.Command) {
		if c.HelpHandler == nil {
			c.HelpHandler = serpent.DefaultHelpFn()
		}
	})

	cmd.Options = serpent.OptionSet{
		{
			Name:          varVerbose,
			Flag:          varVerbose,
			FlagShorthand: "v",
			Env:           envPrefix + "VERBOSE",
			Description:   "Output debug-level logs.",
			Value:         serpent.BoolOf(&r.verbose),
		},
		{
			Name:        varLogHuman,
			Flag:        varLogHuman,
			Env:         envPrefix + "LOGGING_HUMAN",
			Default:     "/dev/stderr",
			Description: "Output human-readable logs to a given file.",
			Value:       serpent.StringOf(&r.logHuman),
		},
		{
			Name:        varLogJSON,
			Flag:        varLogJSON,
			Env:         envPrefix + "LOGGING_JSON",
			Description: "Output JSON logs to a given file.",
			Value:       serpent.StringOf(&r.logJSON),
		},
		{
			Name:        varLogFilter,
			Flag:        varLogFilter,
			Env:         envPrefix + "LOG_FILTER",
			Description: "Filter debug logs by matching against a given regex. Use .* to match all debug logs.",
			Value:       serpent.StringArrayOf(&r.logFilter),
		},
	}
	return cmd
}

// logger builds the process logger from the root logging options.
func (r *RootCmd) logger(inv *serpent.Invocation) (slog.Logger, func(), error) {
	opts := []clilog.Option{
		clilog.WithHuman(r.logHuman),
		clilog.WithJSON(r.logJSON),
		clilog.WithFilter(r.logFilter...),
	}
	if r.verbose {
		opts = append(opts, clilog.WithVerbose())
	}
	return clilog.New(opts...).Build(inv)
}
