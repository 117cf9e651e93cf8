package bot

import (
	"context"

	"github.com/bwmarrin/discordgo"
)

// Directory resolves channels, guilds and members from the session state
// cache, falling back to the REST API on a miss.
type Directory struct {
	session *discordgo.Session
}

func NewDirectory(session *discordgo.Session) *Directory {
	return &Directory{session: session}
}

func (d *Directory) Channel(ctx context.Context, channelID string) (*discordgo.Channel, error) {
	if ch, err := d.session.State.Channel(channelID); err == nil && ch != nil {
		return ch, nil
	}
	return d.session.Channel(channelID, discordgo.WithContext(ctx))
}

func (d *Directory) Guild(ctx context.Context, guildID string) (*discordgo.Guild, error) {
	if g, err := d.session.State.Guild(guildID); err == nil && g != nil && len(g.Roles) > 0 {
		return g, nil
	}
	return d.session.Guild(guildID, discordgo.WithContext(ctx))
}

func (d *Directory) Member(ctx context.Context, guildID, userID string) (*discordgo.Member, error) {
	if m, err := d.session.State.Member(guildID, userID); err == nil && m != nil {
		return m, nil
	}
	return d.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
}
