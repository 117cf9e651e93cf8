// Package pipeline runs one inbound chat message through link detection,
// permission checks, catalog enrichment and card delivery.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/memohai/trackcard/internal/card"
	"github.com/memohai/trackcard/internal/catalog"
	"github.com/memohai/trackcard/internal/linkscan"
	"github.com/memohai/trackcard/internal/metrics"
	"github.com/memohai/trackcard/internal/permission"
	"github.com/memohai/trackcard/internal/preview"
)

// IncomingMessage is the transport-neutral view of a chat message.
type IncomingMessage struct {
	ID        string
	ChannelID string
	GuildID   string
	AuthorID  string
	Text      string
	Previews  []preview.Descriptor
	// Member is the author's membership snapshot from the event, if any.
	Member *permission.Member
}

// OutboundMessage is a batch of cards sent as a reply to ReplyTo.
type OutboundMessage struct {
	ChannelID        string
	ReplyTo          string
	Cards            []card.Card
	SuppressMentions bool
}

type PermissionChecker interface {
	Check(ctx context.Context, subject permission.Subject) permission.Decision
}

type Enricher interface {
	Enrich(ctx context.Context, refs []linkscan.Reference) []catalog.Item
}

type Sender interface {
	Send(ctx context.Context, msg OutboundMessage) error
}

// Outcome names the state a run stopped in.
type Outcome string

const (
	OutcomeNotPermitted    Outcome = "not_permitted"
	OutcomeNoReferences    Outcome = "no_references"
	OutcomeAlreadyRendered Outcome = "already_rendered"
	OutcomeNothingFetched  Outcome = "nothing_fetched"
	OutcomeAssemblyFailed  Outcome = "assembly_failed"
	OutcomeSendFailed      Outcome = "send_failed"
	OutcomeSent            Outcome = "sent"
)

type Pipeline struct {
	gate      PermissionChecker
	enricher  Enricher
	assembler card.Assembler
	sender    Sender
	logger    *slog.Logger
}

func New(log *slog.Logger, gate PermissionChecker, enricher Enricher, assembler card.Assembler, sender Sender) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		gate:      gate,
		enricher:  enricher,
		assembler: assembler,
		sender:    sender,
		logger:    log.With(slog.String("component", "pipeline")),
	}
}

// Handle processes msg and sends at most one reply. Failures are logged and
// never reported to the chat.
func (p *Pipeline) Handle(ctx context.Context, msg IncomingMessage) Outcome {
	outcome := p.run(ctx, msg)
	metrics.PipelineRunsTotal.WithLabelValues(string(outcome)).Inc()
	return outcome
}

func (p *Pipeline) run(ctx context.Context, msg IncomingMessage) Outcome {
	log := p.logger.With(
		slog.String("message_id", msg.ID),
		slog.String("channel_id", msg.ChannelID),
	)

	decision := p.gate.Check(ctx, permission.Subject{ChannelID: msg.ChannelID, UserID: msg.AuthorID, Member: msg.Member})
	if decision != permission.Allowed {
		log.Debug("rich content not permitted", slog.String("decision", decision.String()))
		return OutcomeNotPermitted
	}

	refs := linkscan.Extract(msg.Text)
	if len(refs) == 0 {
		return OutcomeNoReferences
	}

	pending := make([]linkscan.Reference, 0, len(refs))
	for _, ref := range refs {
		if preview.IsAlreadyRendered(msg.Previews, ref.ID) {
			continue
		}
		pending = append(pending, ref)
	}
	if len(pending) == 0 {
		log.Debug("all references already rendered", slog.Int("references", len(refs)))
		return OutcomeAlreadyRendered
	}

	items := p.enricher.Enrich(ctx, pending)
	if len(items) == 0 {
		log.Debug("no catalog items fetched", slog.Int("references", len(pending)))
		return OutcomeNothingFetched
	}

	cards, err := p.assembler.Assemble(items)
	if err != nil {
		log.Warn("card assembly failed", slog.Any("error", err))
		return OutcomeAssemblyFailed
	}

	out := OutboundMessage{
		ChannelID:        msg.ChannelID,
		ReplyTo:          msg.ID,
		Cards:            cards,
		SuppressMentions: true,
	}
	if err := p.sender.Send(ctx, out); err != nil {
		log.Warn("send cards failed", slog.Any("error", err))
		return OutcomeSendFailed
	}
	metrics.CardsSentTotal.Add(float64(len(cards)))
	log.Info("cards sent", slog.Int("cards", len(cards)))
	return OutcomeSent
}
