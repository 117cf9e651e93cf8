package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/memohai/trackcard/internal/card"
	"github.com/memohai/trackcard/internal/pipeline"
)

// Discord rejects messages with more embeds than this.
const maxEmbedsPerMessage = 10

type complexSender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Sender delivers card batches as Discord replies.
type Sender struct {
	session complexSender
}

func NewSender(session *discordgo.Session) *Sender {
	return &Sender{session: session}
}

func (s *Sender) Send(ctx context.Context, msg pipeline.OutboundMessage) error {
	if msg.ChannelID == "" {
		return errors.New("discord target is required")
	}
	if len(msg.Cards) == 0 {
		return nil
	}
	if len(msg.Cards) > maxEmbedsPerMessage {
		return fmt.Errorf("too many cards for one message: %d", len(msg.Cards))
	}
	if _, err := s.session.ChannelMessageSendComplex(msg.ChannelID, toMessageSend(msg), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send discord cards: %w", err)
	}
	return nil
}

func toMessageSend(msg pipeline.OutboundMessage) *discordgo.MessageSend {
	send := &discordgo.MessageSend{
		Embeds: make([]*discordgo.MessageEmbed, 0, len(msg.Cards)),
	}
	for _, c := range msg.Cards {
		send.Embeds = append(send.Embeds, toEmbed(c))
	}
	if msg.ReplyTo != "" {
		send.Reference = &discordgo.MessageReference{
			MessageID: msg.ReplyTo,
			ChannelID: msg.ChannelID,
		}
	}
	if msg.SuppressMentions {
		send.AllowedMentions = &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{},
		}
	}
	return send
}

func toEmbed(c card.Card) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: c.Title,
		URL:   c.URL,
	}
	// An empty thumbnail URL is rejected by the API, so leave it out.
	if c.Thumbnail != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: c.Thumbnail}
	}
	for _, f := range c.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Inline,
		})
	}
	if c.Footer.Text != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{
			Text:    c.Footer.Text,
			IconURL: c.Footer.IconURL,
		}
	}
	return embed
}
