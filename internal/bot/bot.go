// Package bot connects the card pipeline to the Discord gateway.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/memohai/trackcard/internal/healthcheck"
	"github.com/memohai/trackcard/internal/permission"
	"github.com/memohai/trackcard/internal/pipeline"
	"github.com/memohai/trackcard/internal/preview"
)

// Intents needed to read message content and keep guild, channel and role
// state cached for permission checks.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsMessageContent

// MessageHandler processes one inbound message.
type MessageHandler interface {
	Handle(ctx context.Context, msg pipeline.IncomingMessage) pipeline.Outcome
}

type Bot struct {
	logger   *slog.Logger
	session  *discordgo.Session
	handler  MessageHandler
	mu       sync.Mutex
	removers []func()
	stopping bool
	inflight sync.WaitGroup
}

// NewSession creates an unopened Discord session for a bot token.
func NewSession(token string) (*discordgo.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("discord bot token is required")
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = Intents
	return session, nil
}

func New(log *slog.Logger, session *discordgo.Session, handler MessageHandler) *Bot {
	if log == nil {
		log = slog.Default()
	}
	return &Bot{
		logger:  log.With(slog.String("component", "discord")),
		session: session,
		handler: handler,
	}
}

// Start registers event handlers and opens the gateway connection.
func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info("start")

	b.mu.Lock()
	b.stopping = false
	b.removers = append(b.removers,
		b.session.AddHandler(b.onReady),
		b.session.AddHandler(b.onMessageCreate),
	)
	b.mu.Unlock()

	if err := b.session.Open(); err != nil {
		b.removeHandlers()
		return fmt.Errorf("discord open connection: %w", err)
	}
	return nil
}

// Stop detaches handlers, waits for in-flight runs and closes the gateway.
func (b *Bot) Stop(ctx context.Context) error {
	b.logger.Info("stop")
	b.mu.Lock()
	b.stopping = true
	b.mu.Unlock()
	b.removeHandlers()

	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		b.logger.Warn("stopping with runs still in flight", slog.Any("error", ctx.Err()))
	}
	return b.session.Close()
}

// Check reports whether the gateway session has received READY.
func (b *Bot) Check(_ context.Context) healthcheck.CheckResult {
	b.session.RLock()
	ready := b.session.DataReady
	b.session.RUnlock()
	if !ready {
		return healthcheck.CheckResult{ID: "discord.gateway", Status: healthcheck.StatusError, Summary: "not connected"}
	}
	return healthcheck.CheckResult{ID: "discord.gateway", Status: healthcheck.StatusOK}
}

func (b *Bot) removeHandlers() {
	b.mu.Lock()
	removers := b.removers
	b.removers = nil
	b.mu.Unlock()
	for _, remove := range removers {
		remove()
	}
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	if r == nil || r.User == nil {
		return
	}
	b.logger.Info(fmt.Sprintf("%s is ready", r.User.Username),
		slog.String("user_id", r.User.ID),
		slog.Int("guilds", len(r.Guilds)),
	)
}

func (b *Bot) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil {
		return
	}
	b.dispatch(m.Message)
}

// dispatch runs the pipeline for msg on its own goroutine.
func (b *Bot) dispatch(msg *discordgo.Message) bool {
	if msg.Author == nil || msg.Author.Bot {
		return false
	}
	if strings.TrimSpace(msg.Content) == "" {
		return false
	}
	incoming := toIncoming(msg)

	// Add must not race with Wait in Stop.
	b.mu.Lock()
	if b.stopping {
		b.mu.Unlock()
		return false
	}
	b.inflight.Add(1)
	b.mu.Unlock()
	go func() {
		defer b.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("message run panicked",
					slog.String("message_id", incoming.ID),
					slog.Any("panic", r),
				)
			}
		}()
		b.handler.Handle(context.Background(), incoming)
	}()
	return true
}

func toIncoming(msg *discordgo.Message) pipeline.IncomingMessage {
	incoming := pipeline.IncomingMessage{
		ID:        msg.ID,
		ChannelID: msg.ChannelID,
		GuildID:   msg.GuildID,
		Text:      msg.Content,
	}
	if msg.Author != nil {
		incoming.AuthorID = msg.Author.ID
	}
	if msg.Member != nil && msg.GuildID != "" {
		incoming.Member = &permission.Member{
			Roles:        msg.Member.Roles,
			TimeoutUntil: msg.Member.CommunicationDisabledUntil,
		}
	}
	if len(msg.Embeds) > 0 {
		incoming.Previews = make([]preview.Descriptor, 0, len(msg.Embeds))
		for _, e := range msg.Embeds {
			if e == nil {
				continue
			}
			d := preview.Descriptor{Kind: string(e.Type), URL: e.URL}
			if e.Provider != nil {
				d.Provider = e.Provider.Name
			}
			incoming.Previews = append(incoming.Previews, d)
		}
	}
	return incoming
}
