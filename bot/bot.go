// Package bot owns the Discord session lifecycle, the slash command
// surface and the gateway listeners.
package bot

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"jubilee/dal"
	"jubilee/stats"
)

type commandHandler = func(
	*discordgo.Session,
	*discordgo.InteractionCreate,
)

// Reconciler refreshes a guild's overview message after its data changed.
type Reconciler interface {
	Reconcile(ctx context.Context, guildID string) error
}

// Bot wires the command handlers and listeners onto the shard sessions.
type Bot struct {
	sessions           []*discordgo.Session
	store              *dal.Store
	reconciler         Reconciler
	stats              *stats.Tracker
	log                zerolog.Logger
	registeredCommands []*discordgo.ApplicationCommand
	commandHandlers    map[string]commandHandler
}

// Connect opens one gateway session per shard. Sessions are opened before
// command registration so the bot's application id is known.
func Connect(token string, shardCount int, log zerolog.Logger) ([]*discordgo.Session, error) {
	if shardCount < 1 {
		shardCount = 1
	}

	sessions := make([]*discordgo.Session, 0, shardCount)
	for shard := 0; shard < shardCount; shard++ {
		session, err := discordgo.New("Bot " + token)
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}

		session.Identify.Intents = discordgo.IntentsGuilds |
			discordgo.IntentsGuildMembers |
			discordgo.IntentsGuildMessages
		if shardCount > 1 {
			session.Identify.Shard = &[2]int{shard, shardCount}
		}

		shard := shard
		session.AddHandler(func(*discordgo.Session, *discordgo.Ready) {
			log.Info().Int("shard", shard).Msg("shard is up")
		})

		if err := session.Open(); err != nil {
			for _, open := range sessions {
				open.Close()
			}
			return nil, fmt.Errorf("open shard %d: %w", shard, err)
		}
		sessions = append(sessions, session)
	}

	return sessions, nil
}

// New attaches the command surface and listeners to connected sessions.
// guildID scopes command registration to one guild for testing; empty
// registers globally.
func New(
	sessions []*discordgo.Session,
	guildID string,
	store *dal.Store,
	reconciler Reconciler,
	tracker *stats.Tracker,
	log zerolog.Logger,
) (*Bot, error) {
	bot := &Bot{
		sessions:   sessions,
		store:      store,
		reconciler: reconciler,
		stats:      tracker,
		log:        log.With().Str("component", "bot").Logger(),
	}

	bot.commandHandlers = map[string]commandHandler{
		"birthday": bot.Birthday,
		"config":   bot.Config,
		"count":    bot.Count,
	}

	sources := make([]eventSource, len(sessions))
	for i, session := range sessions {
		sources[i] = session
	}
	bot.attachHandlers(sources)

	rest := sessions[0]

	for _, command := range botCommands {
		created, err := rest.ApplicationCommandCreate(
			rest.State.User.ID,
			guildID,
			command,
		)
		if err != nil {
			return nil, fmt.Errorf("create %v command: %w", command.Name, err)
		}
		bot.registeredCommands = append(bot.registeredCommands, created)
		bot.log.Info().Str("command", command.Name).Msg("registered command")
	}

	return bot, nil
}

// Shutdown deregisters commands and closes all sessions.
func (bot *Bot) Shutdown(guildID string) {
	bot.log.Info().Msg("shutting down")

	rest := bot.sessions[0]
	for _, command := range bot.registeredCommands {
		err := rest.ApplicationCommandDelete(
			rest.State.User.ID,
			guildID,
			command.ID,
		)
		if err != nil {
			bot.log.Warn().Err(err).Str("command", command.Name).Msg("failed to delete command")
		}
	}

	for _, session := range bot.sessions {
		session.Close()
	}
}

// eventSource is the slice of the session the bot registers listeners on.
type eventSource interface {
	AddHandler(handler interface{}) func()
}

// attachHandlers registers the gateway listeners on every shard session.
// Discord routes a guild's events, interactions included, to the shard
// that owns the guild, so each listener must be present on all of them.
func (bot *Bot) attachHandlers(sources []eventSource) {
	for _, source := range sources {
		source.AddHandler(bot.handleInteraction)
		source.AddHandler(bot.handleMemberRemove)
	}
}

func (bot *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	if handler, ok := bot.commandHandlers[i.ApplicationCommandData().Name]; ok {
		handler(s, i)
	}
}

func (bot *Bot) handleMemberRemove(s *discordgo.Session, e *discordgo.GuildMemberRemove) {
	log := bot.log.With().Str("guild", e.GuildID).Str("user", e.User.ID).Logger()

	if err := bot.store.DeleteBirthday(e.GuildID, e.User.ID); err != nil {
		log.Warn().Err(err).Msg("failed to remove birthday of departed member")
		return
	}
	if err := bot.store.DeleteRoleRemovalFor(e.GuildID, e.User.ID); err != nil {
		log.Warn().Err(err).Msg("failed to reclaim pending role removal")
	}
	if err := bot.reconciler.Reconcile(context.Background(), e.GuildID); err != nil {
		log.Warn().Err(err).Msg("failed to refresh overview after member left")
	}
}
