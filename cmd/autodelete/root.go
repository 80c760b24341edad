package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/mattermost/mattermost-server/v6/model"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ericzzh/mattermost-plugin-autodelete/server/app"
	"github.com/ericzzh/mattermost-plugin-autodelete/server/config"
	"github.com/ericzzh/mattermost-plugin-autodelete/server/filestore"
)

const defaultDataDirectory = "autodelete-data"

type Command = cobra.Command

func Run(args []string) error {
	RootCmd.SetArgs(args)
	return RootCmd.Execute()
}

var RootCmd = &cobra.Command{
	Use:           "autodelete",
	Short:         "Delete your own Mattermost messages a while after sending them",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	dataDirFlag    string
	configFlag     string
	logFileFlag    string
	logLevelFlag   string
	protectChannel string
)

func init() {
	RootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "directory holding the channels and queue documents")
	RootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "YAML configuration file")
	RootCmd.PersistentFlags().StringVar(&logFileFlag, "log-file", "", "log to this file, rotated, instead of stderr")
	RootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "info", "debug, info, warn or error")

	protectCmd.Flags().StringVar(&protectChannel, "channel", "", "channel of the message, for the log only")

	RootCmd.AddCommand(channelsCmd, enableCmd, disableCmd, queueCmd, protectCmd, runCmd)
}

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "List the channels with auto-delete on",
	Args:  cobra.NoArgs,
	RunE:  channelsCmdF,
}

var enableCmd = &cobra.Command{
	Use:   "enable <channel-id> [team-id]",
	Short: "Turn auto-delete on for a channel. Leave the team out for direct and group messages",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(command *cobra.Command, args []string) error {
		return setChannelCmdF(command, args, true)
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable <channel-id> [team-id]",
	Short: "Turn auto-delete off for a channel. Queued messages are still deleted",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(command *cobra.Command, args []string) error {
		return setChannelCmdF(command, args, false)
	},
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List the messages waiting to be deleted",
	Args:  cobra.NoArgs,
	RunE:  queueCmdF,
}

var protectCmd = &cobra.Command{
	Use:   "protect <message-id>",
	Short: "Keep a queued message from being deleted",
	Args:  cobra.ExactArgs(1),
	RunE:  protectCmdF,
}

// local is what every sub command works with.
type local struct {
	logger        *zeroLogger
	closer        io.Closer
	configService *config.FileService
	store         *filestore.Store
}

func (l *local) Close() error {
	return l.closer.Close()
}

func (l *local) deps(deleter app.Deleter) app.EngineDeps {
	return app.EngineDeps{
		Store:         l.store,
		Deleter:       deleter,
		ConfigService: l.configService,
		Logger:        l.logger,
		Notifier:      &logNotifier{logger: l.logger},
	}
}

// engine returns the engine of the single local user. Its documents sit directly in the
// data directory.
func (l *local) engine(userID string, deleter app.Deleter) *app.Engine {
	return app.NewEngine(userID, "", l.deps(deleter))
}

func openLocal() (*local, error) {
	logger, closer, err := newLogger(logFileFlag, logLevelFlag)
	if err != nil {
		return nil, err
	}

	configService, err := config.NewFileService(configFlag)
	if err != nil {
		closer.Close()
		return nil, err
	}
	cfg := configService.GetConfiguration()
	if cfg.StorageBackend != config.StorageBackendFile {
		closer.Close()
		return nil, errors.Errorf("storage backend %q is only available inside the Mattermost plugin", cfg.StorageBackend)
	}

	dir := dataDirFlag
	if dir == "" {
		dir = cfg.DataDirectory
	}
	if dir == "" {
		dir = defaultDataDirectory
	}

	store, err := filestore.New(dir)
	if err != nil {
		closer.Close()
		return nil, err
	}

	return &local{
		logger:        logger,
		closer:        closer,
		configService: configService,
		store:         store,
	}, nil
}

func channelsCmdF(command *cobra.Command, args []string) error {
	l, err := openLocal()
	if err != nil {
		return err
	}
	defer l.Close()

	refs, err := l.engine("", nil).Channels()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(command.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CHANNEL\tTEAM")
	for _, ref := range refs {
		team := ref.ServerID
		if team == "" {
			team = "-"
		}
		fmt.Fprintf(w, "%s\t%s\n", ref.ChannelID, team)
	}
	return w.Flush()
}

func setChannelCmdF(command *cobra.Command, args []string, enabled bool) error {
	l, err := openLocal()
	if err != nil {
		return err
	}
	defer l.Close()

	ref := app.ChannelRef{ChannelID: args[0]}
	if len(args) > 1 {
		ref.ServerID = args[1]
	}

	if err := l.engine("", nil).SetChannelEnabled(ref, enabled); err != nil {
		return err
	}

	state := "off"
	if enabled {
		state = "on"
	}
	fmt.Fprintf(command.OutOrStdout(), "auto-delete is %s for channel %s\n", state, ref.ChannelID)
	return nil
}

func queueCmdF(command *cobra.Command, args []string) error {
	l, err := openLocal()
	if err != nil {
		return err
	}
	defer l.Close()

	entries, err := l.engine("", nil).QueuedMessages()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(command.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MESSAGE\tCHANNEL\tQUEUED AT\tATTEMPTS")
	for _, e := range entries {
		queuedAt := model.GetTimeForMillis(e.EnqueuedAt).UTC().Format(time.RFC3339)
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", e.MessageID, e.ChannelID, queuedAt, e.Attempts)
	}
	return w.Flush()
}

func protectCmdF(command *cobra.Command, args []string) error {
	l, err := openLocal()
	if err != nil {
		return err
	}
	defer l.Close()

	removed, err := l.engine("", nil).UnprotectMessage(args[0], protectChannel)
	if err != nil {
		return err
	}

	if !removed {
		fmt.Fprintf(command.OutOrStdout(), "message %s is not queued\n", args[0])
		return nil
	}
	fmt.Fprintf(command.OutOrStdout(), "message %s will not be deleted\n", args[0])
	return nil
}
