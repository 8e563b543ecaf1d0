package discord

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// ShardUnavailableError reports a shard whose gateway connection is not
// ready to answer a count request.
type ShardUnavailableError struct {
	Shard int
}

func (e *ShardUnavailableError) Error() string {
	return fmt.Sprintf("shard %d is not ready", e.Shard)
}

// IsTransient reports whether the error is worth retrying: rate limits,
// server-side failures and anything that never reached the API (network
// timeouts and the like).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) {
		if rest.Response == nil {
			return true
		}
		code := rest.Response.StatusCode
		return code == 429 || code >= 500
	}
	var shard *ShardUnavailableError
	if errors.As(err, &shard) {
		return true
	}
	// Errors that are not REST responses are connection-level failures.
	return true
}

// IsPermission reports whether the error means the bot lacks permission or
// role-hierarchy standing. These need admin intervention and are permanent
// for the current occurrence.
func IsPermission(err error) bool {
	var rest *discordgo.RESTError
	if !errors.As(err, &rest) {
		return false
	}
	if rest.Message != nil {
		switch rest.Message.Code {
		case discordgo.ErrCodeMissingAccess, discordgo.ErrCodeMissingPermissions:
			return true
		}
	}
	return rest.Response != nil && rest.Response.StatusCode == 403
}

// IsNotFound reports whether the error means the referenced channel,
// message, member or role no longer exists.
func IsNotFound(err error) bool {
	var rest *discordgo.RESTError
	if !errors.As(err, &rest) {
		return false
	}
	if rest.Message != nil {
		switch rest.Message.Code {
		case discordgo.ErrCodeUnknownChannel,
			discordgo.ErrCodeUnknownMember,
			discordgo.ErrCodeUnknownMessage,
			discordgo.ErrCodeUnknownRole,
			discordgo.ErrCodeUnknownGuild,
			discordgo.ErrCodeUnknownUser:
			return true
		}
	}
	return rest.Response != nil && rest.Response.StatusCode == 404
}
