// Package permission decides whether a message author may trigger rich
// content in the channel the message was sent to.
package permission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
)

// ErrNotGuild is returned when a channel does not belong to a guild.
var ErrNotGuild = errors.New("channel is not part of a guild")

// Decision is the outcome of a permission check. Only Allowed lets the
// pipeline continue.
type Decision int

const (
	Unresolved Decision = iota
	Allowed
	Denied
)

func (d Decision) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case Denied:
		return "denied"
	default:
		return "unresolved"
	}
}

// Member is the author's guild membership as carried on a message event.
type Member struct {
	Roles        []string
	TimeoutUntil *time.Time
}

// Subject identifies who is acting and where. When Member is set the
// directory is not asked for the member.
type Subject struct {
	ChannelID string
	UserID    string
	Member    *Member
}

// Directory looks up the Discord objects a permission check depends on.
type Directory interface {
	Channel(ctx context.Context, channelID string) (*discordgo.Channel, error)
	Guild(ctx context.Context, guildID string) (*discordgo.Guild, error)
	Member(ctx context.Context, guildID, userID string) (*discordgo.Member, error)
}

// Gate checks that an author holds the Embed Links permission.
type Gate struct {
	dir      Directory
	logger   *slog.Logger
	required int64
	now      func() time.Time
}

func NewGate(log *slog.Logger, dir Directory) *Gate {
	if log == nil {
		log = slog.Default()
	}
	return &Gate{
		dir:      dir,
		logger:   log.With(slog.String("component", "permission")),
		required: discordgo.PermissionEmbedLinks,
		now:      time.Now,
	}
}

// Check resolves channel, guild and member in that order. Any lookup that
// fails yields Unresolved.
func (g *Gate) Check(ctx context.Context, subject Subject) Decision {
	perms, err := g.resolve(ctx, subject)
	if err != nil {
		g.logger.Debug("permission unresolved",
			slog.String("channel_id", subject.ChannelID),
			slog.String("user_id", subject.UserID),
			slog.Any("error", err),
		)
		return Unresolved
	}
	if perms&g.required != g.required {
		return Denied
	}
	return Allowed
}

func (g *Gate) resolve(ctx context.Context, subject Subject) (int64, error) {
	if subject.ChannelID == "" || subject.UserID == "" {
		return 0, errors.New("missing channel or user id")
	}
	channel, err := g.dir.Channel(ctx, subject.ChannelID)
	if err != nil {
		return 0, fmt.Errorf("resolve channel: %w", err)
	}
	if channel == nil || channel.GuildID == "" || !isGuildChannel(channel.Type) {
		return 0, ErrNotGuild
	}
	// Threads inherit their overwrites from the parent channel.
	if isThread(channel.Type) && channel.ParentID != "" {
		parent, err := g.dir.Channel(ctx, channel.ParentID)
		if err != nil {
			return 0, fmt.Errorf("resolve thread parent: %w", err)
		}
		channel = parent
	}
	guild, err := g.dir.Guild(ctx, channel.GuildID)
	if err != nil {
		return 0, fmt.Errorf("resolve guild: %w", err)
	}
	if guild == nil {
		return 0, errors.New("resolve guild: not found")
	}
	member, err := g.member(ctx, guild.ID, subject)
	if err != nil {
		return 0, err
	}
	return ChannelPermissions(guild, channel, subject.UserID, member, g.now()), nil
}

func (g *Gate) member(ctx context.Context, guildID string, subject Subject) (*discordgo.Member, error) {
	if m := subject.Member; m != nil {
		return &discordgo.Member{
			GuildID:                    guildID,
			User:                       &discordgo.User{ID: subject.UserID},
			Roles:                      m.Roles,
			CommunicationDisabledUntil: m.TimeoutUntil,
		}, nil
	}
	member, err := g.dir.Member(ctx, guildID, subject.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolve member: %w", err)
	}
	if member == nil {
		return nil, errors.New("resolve member: not found")
	}
	return member, nil
}

func isGuildChannel(t discordgo.ChannelType) bool {
	return t != discordgo.ChannelTypeDM && t != discordgo.ChannelTypeGroupDM
}

func isThread(t discordgo.ChannelType) bool {
	switch t {
	case discordgo.ChannelTypeGuildPublicThread,
		discordgo.ChannelTypeGuildPrivateThread,
		discordgo.ChannelTypeGuildNewsThread:
		return true
	}
	return false
}

// ChannelPermissions computes a member's effective permissions in channel:
// guild base permissions, then @everyone, role and member overwrites.
func ChannelPermissions(guild *discordgo.Guild, channel *discordgo.Channel, userID string, member *discordgo.Member, now time.Time) int64 {
	if guild.OwnerID == userID {
		return discordgo.PermissionAll
	}

	roles := make(map[string]struct{}, len(member.Roles))
	for _, id := range member.Roles {
		roles[id] = struct{}{}
	}

	var perms int64
	for _, role := range guild.Roles {
		if role == nil {
			continue
		}
		if _, ok := roles[role.ID]; ok || role.ID == guild.ID {
			perms |= role.Permissions
		}
	}
	if perms&discordgo.PermissionAdministrator != 0 {
		return discordgo.PermissionAll
	}

	if channel != nil {
		for _, ow := range channel.PermissionOverwrites {
			if ow != nil && ow.ID == guild.ID {
				perms &^= ow.Deny
				perms |= ow.Allow
			}
		}
		var allow, deny int64
		for _, ow := range channel.PermissionOverwrites {
			if ow == nil || ow.Type != discordgo.PermissionOverwriteTypeRole {
				continue
			}
			if _, ok := roles[ow.ID]; ok {
				allow |= ow.Allow
				deny |= ow.Deny
			}
		}
		perms &^= deny
		perms |= allow
		for _, ow := range channel.PermissionOverwrites {
			if ow != nil && ow.Type == discordgo.PermissionOverwriteTypeMember && ow.ID == userID {
				perms &^= ow.Deny
				perms |= ow.Allow
			}
		}
	}

	if member.CommunicationDisabledUntil != nil && member.CommunicationDisabledUntil.After(now) {
		perms &= discordgo.PermissionViewChannel | discordgo.PermissionReadMessageHistory
	}
	return perms
}
