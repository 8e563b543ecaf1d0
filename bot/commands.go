package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"jubilee/clock"
	"jubilee/discord"
	"jubilee/models"
)

const birthdayResponseFormat = "January 2"

var botCommands = []*discordgo.ApplicationCommand{
	{
		Name:        "birthday",
		Description: "Manage your birthday.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "set",
				Description: "Saves your birthday.",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "month",
						Description: "Month of your birthday (1-12).",
						Required:    true,
					}, {
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "day",
						Description: "Day of your birthday (1-31).",
						Required:    true,
					}, {
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "year",
						Description: "Year of your birthday (optional).",
						Required:    false,
					},
				},
			}, {
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "get",
				Description: "Looks up a birthday.",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionUser,
						Name:        "user",
						Description: "The user to look up. Defaults to you.",
						Required:    false,
					},
				},
			}, {
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "forget",
				Description: "Removes your birthday.",
			},
		},
	}, {
		Name:        "config",
		Description: "Configure birthday announcements for this server.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "list",
				Description: "Shows the current configuration.",
			}, {
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "announcement-channel",
				Description: "Sets the channel for birthday announcements.",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionChannel,
						Name:        "channel",
						Description: "The channel to use.",
						Required:    true,
					},
				},
			}, {
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "overview-channel",
				Description: "Sets the channel for the upcoming-birthdays overview.",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionChannel,
						Name:        "channel",
						Description: "The channel to use.",
						Required:    true,
					},
				},
			}, {
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "birthday-role",
				Description: "Sets the role to apply on birthdays.",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionRole,
						Name:        "role",
						Description: "The role to use.",
						Required:    true,
					},
				},
			}, {
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "ping-role",
				Description: "Sets the role pinged with announcements.",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionRole,
						Name:        "role",
						Description: "The role to ping.",
						Required:    true,
					},
				},
			}, {
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "timezone",
				Description: "Sets the server's UTC offset.",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "offset",
						Description: "Whole-hour UTC offset, -12 to +14.",
						Required:    true,
					},
				},
			}, {
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "announcement-message",
				Description: "Sets a custom announcement message (premium).",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "message",
						Description: "Template text; {mention} becomes the birthday user.",
						Required:    true,
					},
				},
			}, {
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "reset",
				Description: "Resets all birthday configuration.",
			},
		},
	}, {
		Name:        "count",
		Description: "The current count of servers, birthdays and users.",
	},
}

func subcommand(i *discordgo.InteractionCreate) (string, []*discordgo.ApplicationCommandInteractionDataOption) {
	data := i.ApplicationCommandData()
	if len(data.Options) > 0 &&
		data.Options[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		return data.Options[0].Name, data.Options[0].Options
	}
	return "", data.Options
}

func optionMap(
	options []*discordgo.ApplicationCommandInteractionDataOption,
) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	byName := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, option := range options {
		byName[option.Name] = option
	}
	return byName
}

// Birthday handles the /birthday subcommands.
func (bot *Bot) Birthday(s *discordgo.Session, i *discordgo.InteractionCreate) {
	discord.AckInteraction(i.Interaction, s)

	if i.Member == nil {
		discord.SendFollowup("Birthdays only work inside a server.", i.Interaction, s)
		return
	}

	sub, options := subcommand(i)

	var reply string
	switch sub {
	case "set":
		reply = bot.birthdaySet(i, options)
	case "get":
		reply = bot.birthdayGet(i, options)
	case "forget":
		reply = bot.birthdayForget(i)
	default:
		reply = "Unknown subcommand."
	}

	discord.SendFollowup(reply, i.Interaction, s)
}

func (bot *Bot) birthdaySet(
	i *discordgo.InteractionCreate,
	options []*discordgo.ApplicationCommandInteractionDataOption,
) string {
	opts := optionMap(options)
	month := int(opts["month"].IntValue())
	day := int(opts["day"].IntValue())
	var year *int
	if opt, ok := opts["year"]; ok {
		y := int(opt.IntValue())
		year = &y
	}

	if !validBirthDate(month, day) {
		return "That doesn't look like a valid date. Use month 1-12 and a day that exists in that month."
	}

	err := bot.store.UpsertBirthday(models.Birthday{
		GuildID: i.GuildID,
		UserID:  i.Member.User.ID,
		Month:   uint(month),
		Day:     uint(day),
		Year:    year,
	})
	if err != nil {
		bot.log.Error().Err(err).Msg("failed to save birthday")
		return "I couldn't save your birthday, please try again later."
	}

	bot.triggerReconcile(i.GuildID)

	pretty := time.Date(0, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return fmt.Sprintf(
		"Saved %v as %v's birthday.",
		pretty.Format(birthdayResponseFormat),
		i.Member.Mention(),
	)
}

func (bot *Bot) birthdayGet(
	i *discordgo.InteractionCreate,
	options []*discordgo.ApplicationCommandInteractionDataOption,
) string {
	userID := i.Member.User.ID
	if opt, ok := optionMap(options)["user"]; ok {
		userID = opt.UserValue(nil).ID
	}

	birthday, err := bot.store.GetBirthday(i.GuildID, userID)
	if err != nil {
		bot.log.Error().Err(err).Msg("failed to look up birthday")
		return "Something went wrong looking that up."
	}
	if birthday == nil {
		return fmt.Sprintf("<@%s> hasn't registered their birthday with me yet.", userID)
	}

	pretty := time.Date(0, time.Month(birthday.Month), int(birthday.Day), 0, 0, 0, 0, time.UTC)
	return fmt.Sprintf(
		"I've got <@%s>'s birthday down as %v.",
		userID,
		pretty.Format(birthdayResponseFormat),
	)
}

func (bot *Bot) birthdayForget(i *discordgo.InteractionCreate) string {
	err := bot.store.DeleteBirthday(i.GuildID, i.Member.User.ID)
	if err != nil {
		bot.log.Error().Err(err).Msg("failed to delete birthday")
		return "I couldn't remove your birthday, please contact an admin."
	}

	bot.triggerReconcile(i.GuildID)
	return "I have erased your birthday from my database."
}

// Config handles the /config subcommands. All of them are admin gated.
func (bot *Bot) Config(s *discordgo.Session, i *discordgo.InteractionCreate) {
	discord.AckInteraction(i.Interaction, s)

	if i.Member == nil {
		discord.SendFollowup("Configuration only works inside a server.", i.Interaction, s)
		return
	}

	guild, err := s.State.Guild(i.GuildID)
	if err != nil {
		bot.log.Error().Str("guild", i.GuildID).Msg("interaction from unknown guild")
		discord.SendFollowup("Something went wrong.", i.Interaction, s)
		return
	}

	if !discord.MemberHasAdminPermissions(guild, i.Member) {
		discord.SendFollowup("Nice try.", i.Interaction, s)
		return
	}

	config, err := bot.store.EnsureGuildConfig(i.GuildID)
	if err != nil {
		bot.log.Error().Err(err).Msg("failed to load guild config")
		discord.SendFollowup("Something went wrong.", i.Interaction, s)
		return
	}

	sub, options := subcommand(i)

	var reply string
	switch sub {
	case "list":
		reply = configSummary(config)
	case "announcement-channel":
		reply = bot.setAnnouncementChannel(config, options)
	case "overview-channel":
		reply = bot.setOverviewChannel(config, options)
	case "birthday-role":
		reply = bot.setBirthdayRole(s, config, options)
	case "ping-role":
		reply = bot.setPingRole(config, options)
	case "timezone":
		reply = bot.setTimezone(config, options)
	case "announcement-message":
		reply = bot.setAnnouncementMessage(config, options)
	case "reset":
		reply = bot.resetConfig(config)
	default:
		reply = "Unknown subcommand."
	}

	discord.SendFollowup(reply, i.Interaction, s)
}

func (bot *Bot) saveConfig(config *models.GuildConfig, success string) string {
	if err := bot.store.SaveGuildConfig(config); err != nil {
		bot.log.Error().Err(err).Str("guild", config.GuildID).Msg("failed to save config")
		return "I couldn't save that setting, please try again later."
	}
	return success
}

func (bot *Bot) setAnnouncementChannel(
	config *models.GuildConfig,
	options []*discordgo.ApplicationCommandInteractionDataOption,
) string {
	channelID := optionMap(options)["channel"].ChannelValue(nil).ID
	config.AnnouncementChannelID = &channelID
	return bot.saveConfig(config, fmt.Sprintf("I will now announce birthdays in <#%s>.", channelID))
}

func (bot *Bot) setOverviewChannel(
	config *models.GuildConfig,
	options []*discordgo.ApplicationCommandInteractionDataOption,
) string {
	channelID := optionMap(options)["channel"].ChannelValue(nil).ID
	config.OverviewChannelID = &channelID
	// The old message lives in the old channel; reconciliation below
	// creates a fresh one and persists its ref.
	config.OverviewMessageID = nil

	reply := bot.saveConfig(config, fmt.Sprintf("I will now keep the birthday overview in <#%s>.", channelID))
	bot.triggerReconcile(config.GuildID)
	return reply
}

func (bot *Bot) setBirthdayRole(
	s *discordgo.Session,
	config *models.GuildConfig,
	options []*discordgo.ApplicationCommandInteractionDataOption,
) string {
	// Resolve against the session so the role's permissions are the live
	// ones; a bare id would make the admin check pass vacuously.
	role := optionMap(options)["role"].RoleValue(s, config.GuildID)
	if discord.RoleAllowsAdminPermissions(role) {
		return "That role allows admin permissions, that's a bad idea."
	}
	config.BirthdayRoleID = &role.ID
	return bot.saveConfig(config, fmt.Sprintf("I will now assign <@&%s> on birthdays.", role.ID))
}

func (bot *Bot) setPingRole(
	config *models.GuildConfig,
	options []*discordgo.ApplicationCommandInteractionDataOption,
) string {
	roleID := optionMap(options)["role"].RoleValue(nil, "").ID
	config.PingRoleID = &roleID
	return bot.saveConfig(config, fmt.Sprintf("I will now ping <@&%s> with announcements.", roleID))
}

func (bot *Bot) setTimezone(
	config *models.GuildConfig,
	options []*discordgo.ApplicationCommandInteractionDataOption,
) string {
	offset := int(optionMap(options)["offset"].IntValue())
	if !clock.ValidOffset(offset) {
		return fmt.Sprintf(
			"Offsets must be whole hours between %d and +%d. Half-hour timezones aren't supported yet, sorry!",
			clock.MinOffset, clock.MaxOffset,
		)
	}
	config.UTCOffset = offset
	return bot.saveConfig(config, fmt.Sprintf("This server now celebrates birthdays at UTC%+d.", offset))
}

func (bot *Bot) setAnnouncementMessage(
	config *models.GuildConfig,
	options []*discordgo.ApplicationCommandInteractionDataOption,
) string {
	message := optionMap(options)["message"].StringValue()
	config.AnnouncementMessage = message

	success := "Saved your announcement message."
	if !config.Premium {
		success += " Custom messages are applied on premium servers only."
	}
	return bot.saveConfig(config, success)
}

func (bot *Bot) resetConfig(config *models.GuildConfig) string {
	fresh := models.GuildConfig{GuildID: config.GuildID, Premium: config.Premium}
	fresh.Model = config.Model
	reply := bot.saveConfig(&fresh, "Birthday configuration has been reset.")
	bot.triggerReconcile(config.GuildID)
	return reply
}

func configSummary(config *models.GuildConfig) string {
	channel := func(id *string) string {
		if id == nil {
			return "not set"
		}
		return "<#" + *id + ">"
	}
	role := func(id *string) string {
		if id == nil {
			return "not set"
		}
		return "<@&" + *id + ">"
	}

	return fmt.Sprintf(
		"**Birthday configuration**\n"+
			"Timezone: UTC%+d\n"+
			"Announcement channel: %s\n"+
			"Overview channel: %s\n"+
			"Birthday role: %s\n"+
			"Ping role: %s\n"+
			"Premium: %v",
		config.UTCOffset,
		channel(config.AnnouncementChannelID),
		channel(config.OverviewChannelID),
		role(config.BirthdayRoleID),
		role(config.PingRoleID),
		config.Premium,
	)
}

// Count reports the cached population counters and database totals.
func (bot *Bot) Count(s *discordgo.Session, i *discordgo.InteractionCreate) {
	discord.AckInteraction(i.Interaction, s)

	counters := bot.stats.Current()
	guilds, err := bot.store.CountGuilds()
	if err != nil {
		bot.log.Error().Err(err).Msg("failed to count guilds")
	}
	birthdays, err := bot.store.CountAllBirthdays()
	if err != nil {
		bot.log.Error().Err(err).Msg("failed to count birthdays")
	}

	captured := "never"
	if !counters.CapturedAt.IsZero() {
		captured = counters.CapturedAt.UTC().Format(time.RFC3339)
	}

	reply := fmt.Sprintf(
		"**Discord**: %d servers, %d users (captured %s)\n"+
			"**Database**: %d configured servers, %d birthdays",
		counters.GuildCount,
		counters.UserCount,
		captured,
		guilds,
		birthdays,
	)

	if i.GuildID != "" {
		here, err := bot.store.CountBirthdays(i.GuildID)
		if err == nil {
			reply += fmt.Sprintf("\n**This server**: %d birthdays", here)
		}
	}

	discord.SendFollowup(reply, i.Interaction, s)
}

func (bot *Bot) triggerReconcile(guildID string) {
	if err := bot.reconciler.Reconcile(context.Background(), guildID); err != nil {
		bot.log.Warn().Err(err).Str("guild", guildID).Msg("overview refresh failed")
	}
}

// validBirthDate accepts real calendar dates, Feb 29 included.
func validBirthDate(month, day int) bool {
	if month < 1 || month > 12 || day < 1 {
		return false
	}
	daysIn := map[int]int{
		1: 31, 2: 29, 3: 31, 4: 30, 5: 31, 6: 30,
		7: 31, 8: 31, 9: 30, 10: 31, 11: 30, 12: 31,
	}
	return day <= daysIn[month]
}
