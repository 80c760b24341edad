package command

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattermost/mattermost-server/v6/model"
	"github.com/mattermost/mattermost-server/v6/plugin"
	"github.com/pkg/errors"

	"github.com/ericzzh/mattermost-plugin-autodelete/server/app"
	"github.com/ericzzh/mattermost-plugin-autodelete/server/bot"
	"github.com/ericzzh/mattermost-plugin-autodelete/server/config"
)

const helpText = "######  Auto-Delete Plugin - Slash Command Help\n" +
	"* `/autodelete toggle` - Turn auto-delete on or off for this channel. \n" +
	"* `/autodelete on` - Delete the messages you send in this channel from now on. \n" +
	"* `/autodelete off` - Stop queueing your new messages in this channel. Queued messages are still deleted. \n" +
	"* `/autodelete status` - Show whether auto-delete is on in this channel. \n" +
	"* `/autodelete protect <post id>` - Keep a queued message from being deleted. \n" +
	"* `/autodelete queue` - List your messages waiting to be deleted. \n" +
	""

// Register is a function that allows the runner to register commands with the mattermost server.
type Register func(*model.Command) error

// RegisterCommands should be called by the plugin to register all necessary commands
func RegisterCommands(registerFunc Register) error {
	return registerFunc(getCommand())
}

func getCommand() *model.Command {
	return &model.Command{
		Trigger:          "autodelete",
		DisplayName:      "Auto-Delete",
		Description:      "Delete your own messages a while after sending them",
		AutoComplete:     true,
		AutoCompleteDesc: "Available commands: toggle, on, off, status, protect, queue, help",
		AutoCompleteHint: "[command]",
		AutocompleteData: getAutocompleteData(),
	}
}

func getAutocompleteData() *model.AutocompleteData {
	command := model.NewAutocompleteData("autodelete", "[command]",
		"Available commands: toggle, on, off, status, protect, queue, help")

	command.AddCommand(model.NewAutocompleteData("toggle", "", "Turn auto-delete on or off for this channel"))
	command.AddCommand(model.NewAutocompleteData("on", "", "Turn auto-delete on for this channel"))
	command.AddCommand(model.NewAutocompleteData("off", "", "Turn auto-delete off for this channel"))
	command.AddCommand(model.NewAutocompleteData("status", "", "Show the auto-delete state of this channel"))

	protect := model.NewAutocompleteData("protect", "[post id]", "Keep a queued message from being deleted")
	protect.AddTextArgument("Id of the post to keep", "[post id]", "")
	command.AddCommand(protect)

	command.AddCommand(model.NewAutocompleteData("queue", "", "List your messages waiting to be deleted"))
	command.AddCommand(model.NewAutocompleteData("help", "", "Show help"))

	return command
}

// Runner handles commands.
type Runner struct {
	context       *plugin.Context
	args          *model.CommandArgs
	logger        bot.Logger
	poster        bot.Poster
	registry      *app.Registry
	resolver      app.ChannelResolver
	configService config.Service
	now           func() time.Time
}

// NewCommandRunner creates a command runner.
func NewCommandRunner(ctx *plugin.Context,
	args *model.CommandArgs,
	logger bot.Logger,
	poster bot.Poster,
	registry *app.Registry,
	resolver app.ChannelResolver,
	configService config.Service,
) *Runner {
	return &Runner{
		context:       ctx,
		args:          args,
		logger:        logger,
		poster:        poster,
		registry:      registry,
		resolver:      resolver,
		configService: configService,
		now:           time.Now,
	}
}

func (r *Runner) isValid() error {
	if r.context == nil || r.args == nil || r.registry == nil || r.resolver == nil {
		return errors.New("invalid arguments to command.Runner")
	}
	return nil
}

// Execute should be called by the plugin when a command invocation is received from the Mattermost server.
func (r *Runner) Execute() error {
	if err := r.isValid(); err != nil {
		return err
	}

	split := strings.Fields(r.args.Command)
	if len(split) == 0 || split[0] != "/autodelete" {
		return nil
	}

	cmd := ""
	if len(split) > 1 {
		cmd = split[1]
	}
	parameters := []string{}
	if len(split) > 2 {
		parameters = split[2:]
	}

	switch cmd {
	case "toggle":
		r.actionToggle()
	case "on":
		r.actionSet(true)
	case "off":
		r.actionSet(false)
	case "status":
		r.actionStatus()
	case "protect":
		r.actionProtect(parameters)
	case "queue":
		r.actionQueue()
	default:
		r.postCommandResponse(helpText)
	}

	return nil
}

func (r *Runner) postCommandResponse(text string) {
	post := &model.Post{
		Message: text,
	}
	r.poster.EphemeralPost(r.args.UserId, r.args.ChannelId, post)
}

func (r *Runner) fail(txt string, err error) {
	r.logger.Errorf("AutoDelete: /autodelete for user %s failed: %s: %v", r.args.UserId, txt, err)
	r.postCommandResponse(txt + ". Please try again later.")
}

func (r *Runner) currentChannel() (app.ChannelRef, bool) {
	ref, err := r.resolver.ResolveChannel(r.args.UserId, r.args.ChannelId)
	if err != nil {
		r.fail("Could not look up this channel", err)
		return ref, false
	}
	return ref, true
}

func (r *Runner) stateText(enabled bool) string {
	if enabled {
		return fmt.Sprintf("Auto-delete is **on** in this channel. Messages you send here are deleted %d seconds after sending.",
			r.configService.GetConfiguration().DeleteAfterSeconds)
	}
	return "Auto-delete is **off** in this channel."
}

// engine returns the caller's engine, nil when they never used auto-delete. On failure the
// caller has already been told and false is returned.
func (r *Runner) engine() (*app.Engine, bool) {
	engine, err := r.registry.Lookup(r.args.UserId)
	if err != nil {
		r.fail("Could not load your auto-delete settings", err)
		return nil, false
	}
	return engine, true
}

func (r *Runner) actionToggle() {
	ref, ok := r.currentChannel()
	if !ok {
		return
	}

	engine, err := r.registry.Ensure(r.args.UserId)
	if err != nil {
		r.fail("Could not load your auto-delete settings", err)
		return
	}

	enabled, err := engine.ToggleChannel(ref)
	if err != nil {
		r.fail("Could not save your auto-delete settings", err)
		return
	}
	r.postCommandResponse(r.stateText(enabled))
}

func (r *Runner) actionSet(enabled bool) {
	ref, ok := r.currentChannel()
	if !ok {
		return
	}

	engine, ok := r.engine()
	if !ok {
		return
	}
	if engine == nil && !enabled {
		r.postCommandResponse(r.stateText(false))
		return
	}
	if engine == nil {
		var err error
		if engine, err = r.registry.Ensure(r.args.UserId); err != nil {
			r.fail("Could not load your auto-delete settings", err)
			return
		}
	}

	if err := engine.SetChannelEnabled(ref, enabled); err != nil {
		r.fail("Could not save your auto-delete settings", err)
		return
	}
	r.postCommandResponse(r.stateText(enabled))
}

func (r *Runner) actionStatus() {
	ref, ok := r.currentChannel()
	if !ok {
		return
	}

	engine, ok := r.engine()
	if !ok {
		return
	}
	if engine == nil {
		r.postCommandResponse(r.stateText(false))
		return
	}

	enabled, err := engine.IsChannelEnabled(ref)
	if err != nil {
		r.fail("Could not read your auto-delete settings", err)
		return
	}

	entries, err := engine.QueuedMessages()
	if err != nil {
		r.fail("Could not read your delete queue", err)
		return
	}
	queued := 0
	for _, e := range entries {
		if e.ChannelID == ref.ChannelID {
			queued++
		}
	}

	r.postCommandResponse(fmt.Sprintf("%s\n%d of your messages in this channel are waiting to be deleted.",
		r.stateText(enabled), queued))
}

func (r *Runner) actionProtect(args []string) {
	if len(args) != 1 {
		r.postCommandResponse("Usage: `/autodelete protect <post id>`")
		return
	}
	postID := args[0]

	engine, ok := r.engine()
	if !ok {
		return
	}
	if engine == nil {
		r.postCommandResponse(fmt.Sprintf("Message `%s` is not waiting to be deleted.", postID))
		return
	}

	removed, err := engine.UnprotectMessage(postID, r.args.ChannelId)
	if err != nil {
		r.fail("Could not update your delete queue", err)
		return
	}
	if !removed {
		r.postCommandResponse(fmt.Sprintf("Message `%s` is not waiting to be deleted.", postID))
		return
	}
	r.postCommandResponse(fmt.Sprintf("Message `%s` will not be deleted.", postID))
}

func (r *Runner) actionQueue() {
	engine, ok := r.engine()
	if !ok {
		return
	}
	if engine == nil {
		r.postCommandResponse("No messages are waiting to be deleted.")
		return
	}

	entries, err := engine.QueuedMessages()
	if err != nil {
		r.fail("Could not read your delete queue", err)
		return
	}
	if len(entries) == 0 {
		r.postCommandResponse("No messages are waiting to be deleted.")
		return
	}

	deleteAfter := r.configService.GetConfiguration().DeleteAfter()
	nowMillis := model.GetMillisForTime(r.now())

	var sb strings.Builder
	sb.WriteString("| Post | Channel | Deleted in |\n| --- | --- | --- |\n")
	for _, e := range entries {
		left := deleteAfter - time.Duration(nowMillis-e.EnqueuedAt)*time.Millisecond
		if left < 0 {
			left = 0
		}
		fmt.Fprintf(&sb, "| `%s` | `%s` | %s |\n", e.MessageID, e.ChannelID, left.Round(time.Second))
	}
	r.postCommandResponse(sb.String())
}
