package interactions

import (
	"context"
	"strconv"

	"example.com/flightguild/bot/internal/chat"
	"example.com/flightguild/bot/internal/services"
	"example.com/flightguild/bot/internal/tracing"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Commands returns the slash commands the bot registers in its guild
func Commands() []*discordgo.ApplicationCommand {
	minDuration := float64(1)
	return []*discordgo.ApplicationCommand{
		{
			Name:        CommandGiveRole,
			Description: "Request a role",
		},
		{
			Name:        CommandGroupFlight,
			Description: "Create a group flight event",
		},
		{
			Name:        CommandAnnouncements,
			Description: "Send an announcement (Dev/Admin only)",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionChannel,
					Name:         "channel",
					Description:  "Channel to post in",
					ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews},
					Required:     true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "message",
					Description: "Announcement text",
					Required:    true,
				},
			},
		},
		{
			Name:        CommandBan,
			Description: "Ban a member for a number of minutes (Dev/Admin only)",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "Member to ban",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "duration",
					Description: "Duration in minutes",
					MinValue:    &minDuration,
					Required:    true,
				},
			},
		},
		{
			Name:        CommandRevokeBan,
			Description: "Lift a ban early (Dev/Admin only)",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "Banned member",
					Required:    true,
				},
			},
		},
	}
}

// RegisterCommands overwrites the guild's slash commands with Commands
func RegisterCommands(s *discordgo.Session, appID, guildID string) error {
	if appID == "" {
		return errors.New("application id is unknown")
	}
	_, err := s.ApplicationCommandBulkOverwrite(appID, guildID, Commands())
	return errors.Wrap(err, "failed to register commands")
}

// Handler connects a discordgo session to the router
type Handler struct {
	router   *Router
	requests *services.RoleRequestService
	tracer   tracing.Tracer
}

// NewHandler creates a new discordgo handler
func NewHandler(router *Router, requests *services.RoleRequestService, tracer tracing.Tracer) *Handler {
	if tracer == nil {
		tracer = tracing.Disabled()
	}
	return &Handler{router: router, requests: requests, tracer: tracer}
}

// Register adds the interaction and member-join handlers to the session
func (h *Handler) Register(s *discordgo.Session) {
	s.AddHandler(h.onInteraction)
	s.AddHandler(h.onMemberAdd)
}

func (h *Handler) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	in, ok := FromDiscord(i.Interaction)
	if !ok {
		return
	}

	txn := h.tracer.StartTransaction("interaction/" + transactionName(in))
	defer h.tracer.EndTransaction(txn)
	h.tracer.AddAttribute(txn, "member_id", in.Member.ID)

	resp := h.router.Dispatch(context.Background(), in)
	if err := s.InteractionRespond(i.Interaction, toInteractionResponse(resp)); err != nil {
		h.tracer.RecordError(txn, err)
		log.Error().Err(err).Str("interaction", transactionName(in)).Msg("Failed to respond to interaction")
	}
}

func (h *Handler) onMemberAdd(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.Member == nil || m.User == nil {
		return
	}
	h.requests.OnMemberJoin(context.Background(), m.GuildID, m.User.ID)
}

func transactionName(in Interaction) string {
	switch in.Kind {
	case KindCommand:
		return in.Name
	case KindModal:
		return in.CustomID
	default:
		prefix, _ := ParseCustomID(in.CustomID)
		return prefix
	}
}

// FromDiscord converts a discordgo interaction into its neutral form
func FromDiscord(i *discordgo.Interaction) (Interaction, bool) {
	in := Interaction{GuildID: i.GuildID}
	switch {
	case i.Member != nil:
		in.Member = chat.MemberFromDiscord(i.Member)
	case i.User != nil:
		in.Member = &chat.Member{ID: i.User.ID, Tag: i.User.String()}
	default:
		return Interaction{}, false
	}

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		in.Kind = KindCommand
		in.Name = data.Name
		in.Options = make(map[string]string, len(data.Options))
		for _, opt := range data.Options {
			in.Options[opt.Name] = optionValue(opt)
		}
	case discordgo.InteractionMessageComponent:
		data := i.MessageComponentData()
		in.Kind = KindComponent
		in.CustomID = data.CustomID
		in.Values = data.Values
	case discordgo.InteractionModalSubmit:
		data := i.ModalSubmitData()
		in.Kind = KindModal
		in.CustomID = data.CustomID
		in.Fields = modalFields(data.Components)
	default:
		return Interaction{}, false
	}
	return in, true
}

func optionValue(opt *discordgo.ApplicationCommandInteractionDataOption) string {
	switch opt.Type {
	case discordgo.ApplicationCommandOptionInteger:
		return strconv.FormatInt(opt.IntValue(), 10)
	case discordgo.ApplicationCommandOptionBoolean:
		return strconv.FormatBool(opt.BoolValue())
	default:
		// user, channel and role options carry their id as a string
		v, _ := opt.Value.(string)
		return v
	}
}

func modalFields(rows []discordgo.MessageComponent) map[string]string {
	fields := make(map[string]string)
	for _, c := range rows {
		row, ok := c.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, rc := range row.Components {
			if input, ok := rc.(*discordgo.TextInput); ok {
				fields[input.CustomID] = input.Value
			}
		}
	}
	return fields
}

func toInteractionResponse(resp Response) *discordgo.InteractionResponse {
	switch resp.Kind {
	case ShowModal:
		return &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseModal,
			Data: &discordgo.InteractionResponseData{
				CustomID:   resp.Modal.CustomID,
				Title:      resp.Modal.Title,
				Components: modalComponents(resp.Modal.Inputs),
			},
		}
	case Update:
		return &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseUpdateMessage,
			Data: &discordgo.InteractionResponseData{
				Content:    resp.Content,
				Components: responseComponents(resp),
			},
		}
	default:
		return &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content:    resp.Content,
				Components: responseComponents(resp),
				Flags:      discordgo.MessageFlagsEphemeral,
			},
		}
	}
}

// responseComponents always returns a non-nil slice so updates clear old controls
func responseComponents(resp Response) []discordgo.MessageComponent {
	if resp.Select != nil {
		menu := discordgo.SelectMenu{
			MenuType:    discordgo.StringSelectMenu,
			CustomID:    resp.Select.CustomID,
			Placeholder: resp.Select.Placeholder,
		}
		for _, r := range resp.Select.Options {
			menu.Options = append(menu.Options, discordgo.SelectMenuOption{Label: r.Name, Value: r.ID})
		}
		return []discordgo.MessageComponent{discordgo.ActionsRow{Components: []discordgo.MessageComponent{menu}}}
	}
	return chat.ToComponents(resp.Buttons)
}

func modalComponents(inputs []TextInput) []discordgo.MessageComponent {
	out := make([]discordgo.MessageComponent, 0, len(inputs))
	for _, in := range inputs {
		style := discordgo.TextInputShort
		if in.Paragraph {
			style = discordgo.TextInputParagraph
		}
		out = append(out, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.TextInput{CustomID: in.CustomID, Label: in.Label, Style: style, Required: true},
		}})
	}
	return out
}
