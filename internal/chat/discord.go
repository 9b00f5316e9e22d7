package chat

import (
	"context"
	"net/http"
	"time"

	"example.com/flightguild/bot/config"
	"example.com/flightguild/bot/internal/apperrors"
	"example.com/flightguild/bot/internal/models"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// DiscordDispatcher implements Dispatcher on a discordgo session scoped to one guild
type DiscordDispatcher struct {
	session *discordgo.Session
	guildID string
	limiter *rate.Limiter
}

// NewDiscordDispatcher creates a dispatcher throttled to cfg.RPS calls per second
func NewDiscordDispatcher(session *discordgo.Session, guildID string, cfg config.RateLimitConfig) *DiscordDispatcher {
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &DiscordDispatcher{
		session: session,
		guildID: guildID,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// AddRole grants roleID to the member
func (d *DiscordDispatcher) AddRole(ctx context.Context, memberID, roleID string) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := d.session.GuildMemberRoleAdd(d.guildID, memberID, roleID, discordgo.WithContext(ctx)); err != nil {
		return errors.Wrap(apperrors.Mark(err, apperrors.ErrRoleMutation), "failed to add role")
	}
	return nil
}

// RemoveRole revokes roleID from the member
func (d *DiscordDispatcher) RemoveRole(ctx context.Context, memberID, roleID string) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := d.session.GuildMemberRoleRemove(d.guildID, memberID, roleID, discordgo.WithContext(ctx)); err != nil {
		return errors.Wrap(apperrors.Mark(err, apperrors.ErrRoleMutation), "failed to remove role")
	}
	return nil
}

// FetchMember loads a guild member
func (d *DiscordDispatcher) FetchMember(ctx context.Context, memberID string) (*Member, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	m, err := d.session.GuildMember(d.guildID, memberID, discordgo.WithContext(ctx))
	if err != nil {
		if isNotFound(err) {
			return nil, errors.Wrapf(apperrors.ErrNotFound, "member %s", memberID)
		}
		return nil, errors.Wrap(err, "failed to fetch member")
	}
	return MemberFromDiscord(m), nil
}

// SendDirectMessage opens a DM channel with the user and posts msg
func (d *DiscordDispatcher) SendDirectMessage(ctx context.Context, userID string, msg Message) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	channel, err := d.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return errors.Wrap(apperrors.Mark(err, apperrors.ErrNotification), "failed to open DM channel")
	}
	if _, err := d.session.ChannelMessageSendComplex(channel.ID, toMessageSend(msg), discordgo.WithContext(ctx)); err != nil {
		return errors.Wrap(apperrors.Mark(err, apperrors.ErrNotification), "failed to send DM")
	}
	return nil
}

// SendChannelMessage posts msg to a channel and returns its reference
func (d *DiscordDispatcher) SendChannelMessage(ctx context.Context, channelID string, msg Message) (models.MessageRef, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return models.MessageRef{}, err
	}
	sent, err := d.session.ChannelMessageSendComplex(channelID, toMessageSend(msg), discordgo.WithContext(ctx))
	if err != nil {
		return models.MessageRef{}, errors.Wrap(apperrors.Mark(err, apperrors.ErrNotification), "failed to send channel message")
	}
	return models.MessageRef{ChannelID: sent.ChannelID, MessageID: sent.ID}, nil
}

// EditMessage replaces content, embeds and controls of an existing message
func (d *DiscordDispatcher) EditMessage(ctx context.Context, ref models.MessageRef, msg Message) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	content := msg.Content
	embeds := toEmbeds(msg.Embeds)
	components := toComponents(msg.Buttons)
	edit := &discordgo.MessageEdit{
		ID:         ref.MessageID,
		Channel:    ref.ChannelID,
		Content:    &content,
		Embeds:     &embeds,
		Components: &components,
	}
	if _, err := d.session.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx)); err != nil {
		if isNotFound(err) {
			return errors.Wrapf(apperrors.ErrNotFound, "message %s", ref.MessageID)
		}
		return errors.Wrap(apperrors.Mark(err, apperrors.ErrNotification), "failed to edit message")
	}
	return nil
}

// DeleteMessage removes a message
func (d *DiscordDispatcher) DeleteMessage(ctx context.Context, ref models.MessageRef) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := d.session.ChannelMessageDelete(ref.ChannelID, ref.MessageID, discordgo.WithContext(ctx)); err != nil {
		if isNotFound(err) {
			return errors.Wrapf(apperrors.ErrNotFound, "message %s", ref.MessageID)
		}
		return errors.Wrap(apperrors.Mark(err, apperrors.ErrNotification), "failed to delete message")
	}
	return nil
}

// MessageExists reports whether ref still resolves to a message
func (d *DiscordDispatcher) MessageExists(ctx context.Context, ref models.MessageRef) (bool, error) {
	if ref.IsZero() {
		return false, nil
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return false, err
	}
	if _, err := d.session.ChannelMessage(ref.ChannelID, ref.MessageID, discordgo.WithContext(ctx)); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, errors.Wrap(err, "failed to fetch message")
	}
	return true, nil
}

// MemberFromDiscord converts a discordgo member
func MemberFromDiscord(m *discordgo.Member) *Member {
	if m == nil {
		return nil
	}
	member := &Member{RoleIDs: append([]string(nil), m.Roles...)}
	if m.User != nil {
		member.ID = m.User.ID
		member.Tag = m.User.String()
	}
	return member
}

func isNotFound(err error) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		return restErr.Response.StatusCode == http.StatusNotFound
	}
	return false
}

func toMessageSend(msg Message) *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Content:    msg.Content,
		Embeds:     toEmbeds(msg.Embeds),
		Components: toComponents(msg.Buttons),
	}
}

// ToComponents converts buttons into a single action row
func ToComponents(buttons []Button) []discordgo.MessageComponent {
	return toComponents(buttons)
}

func toEmbeds(embeds []Embed) []*discordgo.MessageEmbed {
	out := make([]*discordgo.MessageEmbed, 0, len(embeds))
	for _, e := range embeds {
		embed := &discordgo.MessageEmbed{
			Title:       e.Title,
			Description: e.Description,
		}
		if !e.Timestamp.IsZero() {
			embed.Timestamp = e.Timestamp.UTC().Format(time.RFC3339)
		}
		for _, f := range e.Fields {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name:   f.Name,
				Value:  f.Value,
				Inline: f.Inline,
			})
		}
		out = append(out, embed)
	}
	return out
}

func toComponents(buttons []Button) []discordgo.MessageComponent {
	if len(buttons) == 0 {
		return []discordgo.MessageComponent{}
	}
	row := discordgo.ActionsRow{}
	for _, b := range buttons {
		row.Components = append(row.Components, discordgo.Button{
			CustomID: b.CustomID,
			Label:    b.Label,
			Style:    toButtonStyle(b.Style),
		})
	}
	return []discordgo.MessageComponent{row}
}

func toButtonStyle(style ButtonStyle) discordgo.ButtonStyle {
	switch style {
	case ButtonSecondary:
		return discordgo.SecondaryButton
	case ButtonSuccess:
		return discordgo.SuccessButton
	case ButtonDanger:
		return discordgo.DangerButton
	default:
		return discordgo.PrimaryButton
	}
}
