package notify

import (
	"net/http"

	"github.com/kiranshivaraju/llm-quality-observer/internal/config"
)

// ChannelsFromConfig returns a channel for every configured destination, in
// slack, discord, email order. Unset destinations are skipped.
func ChannelsFromConfig(cfg config.NotifyConfig, client *http.Client) ([]Channel, error) {
	var channels []Channel
	if cfg.SlackWebhookURL != "" {
		channels = append(channels, NewSlackWebhook(cfg.SlackWebhookURL, client))
	}
	if cfg.DiscordWebhookURL != "" {
		channels = append(channels, NewDiscordWebhook(cfg.DiscordWebhookURL, client))
	}
	if cfg.SMTP.Enabled() {
		email, err := NewEmail(cfg.SMTP)
		if err != nil {
			return nil, err
		}
		channels = append(channels, email)
	}
	return channels, nil
}
