package notify

import (
	"context"
	"fmt"
	"strings"

	"mibagent/internal/integrations/discord"
)

const alertColor = 0xDC2626

// DiscordSink posts an embed to a Discord webhook.
type DiscordSink struct {
	WebhookURL string
	client     *discord.Client
}

func NewDiscordSink(webhookURL string) *DiscordSink {
	return &DiscordSink{WebhookURL: strings.TrimSpace(webhookURL), client: discord.NewClient()}
}

func (d *DiscordSink) Name() string { return "discord" }

func (d *DiscordSink) Send(ctx context.Context, ev CrossingEvent) error {
	embed := discord.NewEmbed("CPU threshold crossed", ev.Summary(), alertColor, "mibagent", ev.At)
	embed.Fields = []discord.EmbedField{
		{Name: "Sample", Value: fmt.Sprintf("%d%%", ev.Sample), Inline: true},
		{Name: "Threshold", Value: fmt.Sprintf("%d%%", ev.Threshold), Inline: true},
		{Name: "Time", Value: ev.Timestamp, Inline: true},
	}
	_, err := d.client.Post(ctx, d.WebhookURL, discord.WebhookPayload{Embeds: []discord.Embed{embed}})
	return err
}
