package netstatus

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"example.com/flightguild/bot/internal/cache"
	"example.com/flightguild/bot/internal/chat"
	"example.com/flightguild/bot/internal/models"
	"example.com/flightguild/bot/internal/repositories"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

const boardTitle = "VATSIM Online Update"

// Board keeps a single status message in the status channel current
type Board struct {
	dispatcher chat.Dispatcher
	refs       repositories.MessageRefStore
	cache      cache.Cache
	clock      clockwork.Clock
	channelID  string
	guildID    string
	maxItems   int

	mu     sync.Mutex
	ref    models.MessageRef
	latest *Snapshot
}

// NewBoard creates a board posting to channelID
func NewBoard(
	dispatcher chat.Dispatcher,
	refs repositories.MessageRefStore,
	c cache.Cache,
	clock clockwork.Clock,
	channelID, guildID string,
	maxItems int,
) *Board {
	if maxItems <= 0 {
		maxItems = 20
	}
	return &Board{
		dispatcher: dispatcher,
		refs:       refs,
		cache:      c,
		clock:      clock,
		channelID:  channelID,
		guildID:    guildID,
		maxItems:   maxItems,
	}
}

// EnsureMessage validates the stored board message and posts a placeholder if it is gone
func (b *Board) EnsureMessage(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ref, err := b.refs.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Stored status message reference unreadable, a new message will be posted")
	}
	if ref.IsZero() && b.cache != nil {
		if err := b.cache.Get(ctx, cache.NetStatusBoardKey(b.guildID), &ref); err != nil && !errors.Is(err, cache.ErrMiss) {
			log.Warn().Err(err).Msg("Could not read status message reference from cache")
		}
	}

	if !ref.IsZero() {
		exists, err := b.dispatcher.MessageExists(ctx, ref)
		if err == nil && exists {
			b.ref = ref
			log.Info().Str("channel_id", ref.ChannelID).Str("message_id", ref.MessageID).Msg("Found existing status message")
			return nil
		}
		log.Warn().Err(err).Msg("Stored status message is gone, posting a new one")
	}

	placeholder := chat.Message{Embeds: []chat.Embed{{
		Title:       boardTitle,
		Description: "Loading...",
		Timestamp:   b.clock.Now(),
	}}}
	return b.postLocked(ctx, placeholder)
}

// Apply renders update onto the board. Poll failures leave the board unchanged.
func (b *Board) Apply(ctx context.Context, update Update) {
	if update.Err != nil {
		log.Warn().Err(update.Err).Msg("Skipping status board update")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	snapshot := update.Snapshot
	b.latest = snapshot
	if b.cache != nil {
		if err := b.cache.Set(ctx, cache.NetStatusSnapshotKey(b.guildID), snapshot, 0); err != nil {
			log.Warn().Err(err).Msg("Could not cache network snapshot")
		}
	}

	msg := Render(snapshot, b.maxItems)
	if !b.ref.IsZero() {
		err := b.dispatcher.EditMessage(ctx, b.ref, msg)
		if err == nil {
			return
		}
		log.Warn().Err(err).Msg("Could not edit status message, posting a new one")
	}

	if err := b.postLocked(ctx, msg); err != nil {
		log.Error().Err(err).Msg("Could not post status message")
	}
}

// Run applies updates until ctx ends or the channel closes
func (b *Board) Run(ctx context.Context, updates <-chan Update) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.Apply(ctx, update)
		}
	}
}

// Latest returns the most recent snapshot, preferring the shared cache
func (b *Board) Latest(ctx context.Context) (*Snapshot, bool) {
	if b.cache != nil {
		var cached Snapshot
		if err := b.cache.Get(ctx, cache.NetStatusSnapshotKey(b.guildID), &cached); err == nil {
			return &cached, true
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.latest == nil {
		return nil, false
	}
	return b.latest, true
}

func (b *Board) postLocked(ctx context.Context, msg chat.Message) error {
	ref, err := b.dispatcher.SendChannelMessage(ctx, b.channelID, msg)
	if err != nil {
		return errors.Wrap(err, "failed to post status message")
	}
	b.ref = ref

	if err := b.refs.Save(ctx, ref); err != nil {
		log.Warn().Err(err).Msg("Could not save status message reference")
	}
	if b.cache != nil {
		if err := b.cache.Set(ctx, cache.NetStatusBoardKey(b.guildID), ref, 0); err != nil {
			log.Warn().Err(err).Msg("Could not cache status message reference")
		}
	}
	log.Info().Str("channel_id", ref.ChannelID).Str("message_id", ref.MessageID).Msg("Posted status message")
	return nil
}

// Render builds the board embed, listing at most maxItems entries per section
func Render(snapshot *Snapshot, maxItems int) chat.Message {
	controllers := lo.Map(lo.Slice(snapshot.Controllers, 0, maxItems), func(c Controller, _ int) string {
		name := c.Name
		if name == "" {
			name = "unknown"
		}
		return fmt.Sprintf("%s (%s)", c.Callsign, name)
	})
	pilots := lo.Map(lo.Slice(snapshot.Pilots, 0, maxItems), func(p Pilot, _ int) string {
		if p.FlightPlan == nil {
			return p.Callsign
		}
		return fmt.Sprintf("%s %s->%s", p.Callsign, p.FlightPlan.Departure, p.FlightPlan.Arrival)
	})

	return chat.Message{Embeds: []chat.Embed{{
		Title:     boardTitle,
		Timestamp: snapshot.FetchedAt,
		Fields: []chat.EmbedField{
			{Name: fmt.Sprintf("ATC Online (%d)", len(snapshot.Controllers)), Value: joinOrNone(controllers)},
			{Name: fmt.Sprintf("Pilots (%d)", len(snapshot.Pilots)), Value: joinOrNone(pilots)},
		},
	}}}
}

func joinOrNone(lines []string) string {
	if len(lines) == 0 {
		return "None"
	}
	return strings.Join(lines, "\n")
}
