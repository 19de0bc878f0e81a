// Package discord adapts a discordgo session to the output and
// command surfaces the rest of the bot works against.
package discord

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
)

// Client wraps a gateway session. It satisfies refresh.ChatClient.
type Client struct {
	session   *discordgo.Session
	connected atomic.Bool
}

func New(token string) (*Client, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages

	c := &Client{session: session}
	session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Connect) {
		c.connected.Store(true)
	})
	session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		log.Printf("discord: gateway disconnected")
		c.connected.Store(false)
	})
	return c, nil
}

func (c *Client) Open() error  { return c.session.Open() }
func (c *Client) Close() error { return c.session.Close() }

// Session exposes the underlying session for the command surface.
func (c *Client) Session() *discordgo.Session { return c.session }

func (c *Client) Connected() bool { return c.connected.Load() }

func (c *Client) HasGuild(guildID int64) bool {
	g, err := c.session.State.Guild(formatID(guildID))
	return err == nil && g != nil
}

// ReplaceCategoryChannels deletes every voice channel under the
// category and recreates one per name, in order. The wholesale
// replacement keeps channel order consistent with the given names
// without diffing against whatever is currently there.
func (c *Client) ReplaceCategoryChannels(ctx context.Context, guildID, categoryID int64, names []string) error {
	gid, cat := formatID(guildID), formatID(categoryID)
	channels, err := c.session.GuildChannels(gid, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("list channels: %w", err)
	}
	for _, ch := range channels {
		if ch.Type != discordgo.ChannelTypeGuildVoice || ch.ParentID != cat {
			continue
		}
		if _, err := c.session.ChannelDelete(ch.ID, discordgo.WithContext(ctx)); err != nil {
			log.Printf("discord: delete channel %s: %v", ch.ID, err)
		}
	}
	for _, name := range names {
		_, err := c.session.GuildChannelCreateComplex(gid, discordgo.GuildChannelCreateData{
			Name:     name,
			Type:     discordgo.ChannelTypeGuildVoice,
			ParentID: cat,
		}, discordgo.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("create channel %q: %w", name, err)
		}
	}
	return nil
}

func (c *Client) SendMessage(ctx context.Context, channelID int64, content string) error {
	_, err := c.session.ChannelMessageSend(formatID(channelID), content, discordgo.WithContext(ctx))
	return err
}

// categoryIn reports whether id names a category channel of the guild.
func (c *Client) categoryIn(guildID int64, id int64) bool {
	ch, err := c.channel(id)
	return err == nil && ch.Type == discordgo.ChannelTypeGuildCategory && ch.GuildID == formatID(guildID)
}

// textChannelIn reports whether id names a text channel of the guild.
func (c *Client) textChannelIn(guildID int64, id int64) bool {
	ch, err := c.channel(id)
	return err == nil && ch.Type == discordgo.ChannelTypeGuildText && ch.GuildID == formatID(guildID)
}

func (c *Client) channel(id int64) (*discordgo.Channel, error) {
	if ch, err := c.session.State.Channel(formatID(id)); err == nil {
		return ch, nil
	}
	return c.session.Channel(formatID(id))
}

func formatID(id int64) string { return strconv.FormatInt(id, 10) }

func parseID(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }
