package gateway

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// DiscordMessenger posts to channels over the Discord REST API. No gateway
// connection is opened.
type DiscordMessenger struct {
	Session *discordgo.Session
}

func NewDiscordMessenger(token string) (*DiscordMessenger, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	return &DiscordMessenger{Session: s}, nil
}

func (d *DiscordMessenger) Send(channelID string, text string) error {
	if channelID == "" {
		return fmt.Errorf("invalid channel ID: %q", channelID)
	}
	_, err := d.Session.ChannelMessageSend(channelID, text)
	return err
}
