// Package discord wraps the discordgo session behind the narrow surface the
// pipeline needs, and classifies its errors into the retry taxonomy.
package discord

import (
	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

// Client is the chat-platform surface used by the pipeline, the overview
// reconciler and the sweep. It exists so those components can take a fake
// in tests.
type Client interface {
	SendMessage(channelID, content string) (messageID string, err error)
	EditMessage(channelID, messageID, content string) error
	GrantRole(guildID, userID, roleID string) error
	RevokeRole(guildID, userID, roleID string) error
}

// ShardCount is one shard's view of the population.
type ShardCount struct {
	Guilds  int
	Members int
}

// Gateway implements Client over one or more discordgo sessions (one per
// shard). All REST calls go through shard 0; counting walks every shard.
type Gateway struct {
	sessions []*discordgo.Session
	log      zerolog.Logger
}

// NewGateway wraps the given shard sessions.
func NewGateway(sessions []*discordgo.Session, log zerolog.Logger) *Gateway {
	return &Gateway{sessions: sessions, log: log.With().Str("component", "gateway").Logger()}
}

func (g *Gateway) rest() *discordgo.Session {
	return g.sessions[0]
}

// SendMessage sends content to the given channel and returns the new
// message's id.
func (g *Gateway) SendMessage(channelID, content string) (string, error) {
	msg, err := g.rest().ChannelMessageSend(channelID, content)
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

// EditMessage replaces the content of an existing message.
func (g *Gateway) EditMessage(channelID, messageID, content string) error {
	_, err := g.rest().ChannelMessageEdit(channelID, messageID, content)
	return err
}

// GrantRole adds the given role to a guild member.
func (g *Gateway) GrantRole(guildID, userID, roleID string) error {
	return g.rest().GuildMemberRoleAdd(guildID, userID, roleID)
}

// RevokeRole removes the given role from a guild member.
func (g *Gateway) RevokeRole(guildID, userID, roleID string) error {
	return g.rest().GuildMemberRoleRemove(guildID, userID, roleID)
}

// MemberCountsPerShard returns the guild and member totals seen by each
// shard. A shard that has not finished identifying yields an error so the
// caller never sums a partial fleet.
func (g *Gateway) MemberCountsPerShard() ([]ShardCount, error) {
	counts := make([]ShardCount, 0, len(g.sessions))
	for i, session := range g.sessions {
		if session.State == nil || !session.DataReady {
			return nil, &ShardUnavailableError{Shard: i}
		}
		var count ShardCount
		for _, guild := range session.State.Guilds {
			count.Guilds++
			count.Members += guild.MemberCount
		}
		counts = append(counts, count)
	}
	return counts, nil
}
