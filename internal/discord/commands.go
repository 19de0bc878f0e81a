package discord

import (
	"context"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"pricebot/internal/quote"
	"pricebot/internal/refresh"
	"pricebot/internal/tenant"
)

const verifyTimeout = 15 * time.Second

// Commands wires the admin slash-command surface onto a session.
// Every command is ephemeral and gated on the Discord administrator
// permission or the guild's configured admin role.
type Commands struct {
	client    *Client
	registry  *tenant.Registry
	store     *quote.Store
	refresher *refresh.Scheduler

	registerOnce sync.Once
}

func NewCommands(client *Client, registry *tenant.Registry, store *quote.Store, refresher *refresh.Scheduler) *Commands {
	h := &Commands{
		client:    client,
		registry:  registry,
		store:     store,
		refresher: refresher,
	}
	client.session.AddHandler(h.onReady)
	client.session.AddHandler(h.onInteraction)
	return h
}

func (h *Commands) onReady(s *discordgo.Session, _ *discordgo.Ready) {
	h.registerOnce.Do(func() {
		for _, cmd := range commandDefinitions() {
			if _, err := s.ApplicationCommandCreate(s.State.User.ID, "", cmd); err != nil {
				log.Printf("discord: register command %s: %v", cmd.Name, err)
			}
		}
		log.Printf("discord: slash commands registered")
	})
}

func commandDefinitions() []*discordgo.ApplicationCommand {
	str := func(name, desc string) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        name,
			Description: desc,
			Required:    true,
		}
	}
	return []*discordgo.ApplicationCommand{
		{Name: "set_cmc_api_key", Description: "Set this server's CoinMarketCap API key",
			Options: []*discordgo.ApplicationCommandOption{str("api_key", "CoinMarketCap API key")}},
		{Name: "remove_cmc_api_key", Description: "Remove this server's CoinMarketCap API key"},
		{Name: "set_admin_role", Description: "Set the role allowed to manage the bot",
			Options: []*discordgo.ApplicationCommandOption{str("role_id", "Role ID")}},
		{Name: "remove_admin_role", Description: "Remove the configured admin role"},
		{Name: "set_voice_update_category", Description: "Set the category for price update voice channels",
			Options: []*discordgo.ApplicationCommandOption{str("category_id", "Category ID")}},
		{Name: "add_voice_ticker", Description: "Add a ticker to voice channel updates",
			Options: []*discordgo.ApplicationCommandOption{str("ticker", "Ticker symbol")}},
		{Name: "remove_voice_ticker", Description: "Remove a ticker from voice channel updates",
			Options: []*discordgo.ApplicationCommandOption{str("ticker", "Ticker symbol")}},
		{Name: "add_message_ticker", Description: "Add a ticker for regular price messages",
			Options: []*discordgo.ApplicationCommandOption{str("ticker", "Ticker symbol"), str("channel_id", "Target text channel ID")}},
		{Name: "remove_message_ticker", Description: "Remove a ticker from regular price messages",
			Options: []*discordgo.ApplicationCommandOption{str("ticker", "Ticker symbol")}},
		{Name: "add_message_ratio_tickers", Description: "Add a ticker ratio for regular messages",
			Options: []*discordgo.ApplicationCommandOption{str("ticker1", "Base ticker"), str("ticker2", "Counter ticker"), str("channel_id", "Target text channel ID")}},
		{Name: "remove_message_ratio_tickers", Description: "Remove a ticker ratio from regular messages",
			Options: []*discordgo.ApplicationCommandOption{str("ticker1", "Base ticker"), str("ticker2", "Counter ticker")}},
		{Name: "force_update_voice_tickers", Description: "Force update all voice channels"},
		{Name: "force_update_message_tickers", Description: "Force update all message tickers"},
		{Name: "force_update_ratio_tickers", Description: "Force update all ratio tickers"},
		{Name: "show_settings", Description: "Show all current bot settings"},
	}
}

func (h *Commands) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	guildID, err := parseID(i.GuildID)
	if err != nil {
		return
	}
	data := i.ApplicationCommandData()
	if !h.isAdmin(guildID, i) {
		h.reply(s, i, "You need administrator permissions to use this command.")
		return
	}
	opts := make(map[string]string, len(data.Options))
	for _, opt := range data.Options {
		opts[opt.Name] = opt.StringValue()
	}

	switch data.Name {
	case "set_cmc_api_key":
		h.setAPIKey(s, i, guildID, opts["api_key"])
	case "remove_cmc_api_key":
		h.removeAPIKey(s, i, guildID)
	case "set_admin_role":
		h.setAdminRole(s, i, guildID, opts["role_id"])
	case "remove_admin_role":
		h.removeAdminRole(s, i, guildID)
	case "set_voice_update_category":
		h.setVoiceCategory(s, i, guildID, opts["category_id"])
	case "add_voice_ticker":
		h.addVoiceTicker(s, i, guildID, opts["ticker"])
	case "remove_voice_ticker":
		h.removeVoiceTicker(s, i, guildID, opts["ticker"])
	case "add_message_ticker":
		h.addMessageTicker(s, i, guildID, opts["ticker"], opts["channel_id"])
	case "remove_message_ticker":
		h.removeMessageTicker(s, i, guildID, opts["ticker"])
	case "add_message_ratio_tickers":
		h.addRatioTickers(s, i, guildID, opts["ticker1"], opts["ticker2"], opts["channel_id"])
	case "remove_message_ratio_tickers":
		h.removeRatioTickers(s, i, guildID, opts["ticker1"], opts["ticker2"])
	case "force_update_voice_tickers":
		h.forceUpdate(s, i, guildID, func(ctx context.Context) { h.refresher.RefreshVoice(ctx) })
	case "force_update_message_tickers":
		h.forceUpdate(s, i, guildID, func(ctx context.Context) { h.refresher.RefreshMessages(ctx, true, false) })
	case "force_update_ratio_tickers":
		h.forceUpdate(s, i, guildID, func(ctx context.Context) { h.refresher.RefreshMessages(ctx, false, true) })
	case "show_settings":
		h.showSettings(s, i, guildID)
	}
}

func (h *Commands) isAdmin(guildID int64, i *discordgo.InteractionCreate) bool {
	if i.Member == nil {
		return false
	}
	if i.Member.Permissions&discordgo.PermissionAdministrator != 0 {
		return true
	}
	cfg, ok := h.registry.Get(guildID)
	if !ok || cfg.AdminRole == 0 {
		return false
	}
	return slices.Contains(i.Member.Roles, formatID(cfg.AdminRole))
}

func (h *Commands) reply(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		log.Printf("discord: interaction response: %v", err)
	}
}

// verifyTicker asks the upstream directly whether a symbol resolves,
// bypassing the cache so a freshly typed-in key or ticker is tested
// for real.
func (h *Commands) verifyTicker(apiKey, symbol string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), verifyTimeout)
	defer cancel()
	return len(h.store.FetchUncached(ctx, apiKey, []string{symbol})) > 0
}

func (h *Commands) setAPIKey(s *discordgo.Session, i *discordgo.InteractionCreate, guildID int64, apiKey string) {
	apiKey = strings.TrimSpace(apiKey)
	if len(apiKey) < 10 || !h.verifyTicker(apiKey, "BTC") {
		h.reply(s, i, "Invalid or unaccepted API key.")
		return
	}
	err := h.registry.Update(guildID, func(c *tenant.Config) { c.APIKey = apiKey })
	if err != nil {
		h.replySaveError(s, i, err)
		return
	}
	h.reply(s, i, "API key saved and validated.")
}

func (h *Commands) removeAPIKey(s *discordgo.Session, i *discordgo.InteractionCreate, guildID int64) {
	cfg, ok := h.registry.Get(guildID)
	if !ok || !cfg.HasAPIKey() {
		h.reply(s, i, "No API key set.")
		return
	}
	err := h.registry.Update(guildID, func(c *tenant.Config) { c.APIKey = "" })
	if err != nil {
		h.replySaveError(s, i, err)
		return
	}
	h.reply(s, i, "API key removed.")
}

func (h *Commands) setAdminRole(s *discordgo.Session, i *discordgo.InteractionCreate, guildID int64, roleID string) {
	id, err := parseID(roleID)
	if err != nil || !h.roleIn(guildID, id) {
		h.reply(s, i, "Invalid role ID.")
		return
	}
	if err := h.registry.Update(guildID, func(c *tenant.Config) { c.AdminRole = id }); err != nil {
		h.replySaveError(s, i, err)
		return
	}
	h.reply(s, i, fmt.Sprintf("Admin role set to <@&%d>.", id))
}

func (h *Commands) removeAdminRole(s *discordgo.Session, i *discordgo.InteractionCreate, guildID int64) {
	cfg, ok := h.registry.Get(guildID)
	if !ok || cfg.AdminRole == 0 {
		h.reply(s, i, "No admin role configured.")
		return
	}
	if err := h.registry.Update(guildID, func(c *tenant.Config) { c.AdminRole = 0 }); err != nil {
		h.replySaveError(s, i, err)
		return
	}
	h.reply(s, i, "Admin role removed. Only administrators can use admin commands now.")
}

func (h *Commands) setVoiceCategory(s *discordgo.Session, i *discordgo.InteractionCreate, guildID int64, categoryID string) {
	id, err := parseID(categoryID)
	if err != nil || !h.client.categoryIn(guildID, id) {
		h.reply(s, i, "Category not found. Please provide a valid category ID.")
		return
	}
	err = h.registry.Update(guildID, func(c *tenant.Config) {
		c.UpdateCategory = id
		c.VoiceTickers = nil
	})
	if err != nil {
		h.replySaveError(s, i, err)
		return
	}
	h.reply(s, i, fmt.Sprintf("Update category set to <#%d>.", id))
}

func (h *Commands) addVoiceTicker(s *discordgo.Session, i *discordgo.InteractionCreate, guildID int64, ticker string) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	cfg, ok := h.registry.Get(guildID)
	if !ok || cfg.UpdateCategory == 0 || !cfg.HasAPIKey() {
		h.reply(s, i, "Set update category and CMC API key first.")
		return
	}
	if slices.Contains(cfg.VoiceTickers, ticker) {
		h.reply(s, i, fmt.Sprintf("%s is already being tracked.", ticker))
		return
	}
	if !h.verifyTicker(cfg.APIKey, ticker) {
		h.reply(s, i, fmt.Sprintf("Ticker %s not found on CoinMarketCap.", ticker))
		return
	}
	if err := h.registry.Update(guildID, func(c *tenant.Config) { c.AddVoiceTicker(ticker) }); err != nil {
		h.replySaveError(s, i, err)
		return
	}
	h.reply(s, i, fmt.Sprintf("Added %s to voice channel updates.", ticker))
	go h.refresher.RefreshVoice(context.Background())
}

func (h *Commands) removeVoiceTicker(s *discordgo.Session, i *discordgo.InteractionCreate, guildID int64, ticker string) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	cfg, ok := h.registry.Get(guildID)
	if !ok || !slices.Contains(cfg.VoiceTickers, ticker) {
		h.reply(s, i, fmt.Sprintf("%s is not currently being tracked.", ticker))
		return
	}
	if err := h.registry.Update(guildID, func(c *tenant.Config) { c.RemoveVoiceTicker(ticker) }); err != nil {
		h.replySaveError(s, i, err)
		return
	}
	h.reply(s, i, fmt.Sprintf("Removed %s from voice channel updates.", ticker))
	go h.refresher.RefreshVoice(context.Background())
}

func (h *Commands) addMessageTicker(s *discordgo.Session, i *discordgo.InteractionCreate, guildID int64, ticker, channelID string) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	cfg, ok := h.registry.Get(guildID)
	if !ok || !cfg.HasAPIKey() {
		h.reply(s, i, "Set CMC API key first.")
		return
	}
	id, err := parseID(channelID)
	if err != nil || !h.client.textChannelIn(guildID, id) {
		h.reply(s, i, "Channel not found. Please provide a valid channel ID.")
		return
	}
	if !h.verifyTicker(cfg.APIKey, ticker) {
		h.reply(s, i, fmt.Sprintf("Ticker %s not found on CoinMarketCap.", ticker))
		return
	}
	err = h.registry.Update(guildID, func(c *tenant.Config) {
		if c.MessageTickers == nil {
			c.MessageTickers = make(map[string]int64)
		}
		c.MessageTickers[ticker] = id
	})
	if err != nil {
		h.replySaveError(s, i, err)
		return
	}
	h.reply(s, i, fmt.Sprintf("Added %s price messages to <#%d>.", ticker, id))
}

func (h *Commands) removeMessageTicker(s *discordgo.Session, i *discordgo.InteractionCreate, guildID int64, ticker string) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	cfg, ok := h.registry.Get(guildID)
	if !ok {
		h.reply(s, i, fmt.Sprintf("%s is not currently being tracked for messages.", ticker))
		return
	}
	if _, tracked := cfg.MessageTickers[ticker]; !tracked {
		h.reply(s, i, fmt.Sprintf("%s is not currently being tracked for messages.", ticker))
		return
	}
	if err := h.registry.Update(guildID, func(c *tenant.Config) { delete(c.MessageTickers, ticker) }); err != nil {
		h.replySaveError(s, i, err)
		return
	}
	h.reply(s, i, fmt.Sprintf("Removed %s from price messages.", ticker))
}

func (h *Commands) addRatioTickers(s *discordgo.Session, i *discordgo.InteractionCreate, guildID int64, ticker1, ticker2, channelID string) {
	t1 := strings.ToUpper(strings.TrimSpace(ticker1))
	t2 := strings.ToUpper(strings.TrimSpace(ticker2))
	cfg, ok := h.registry.Get(guildID)
	if !ok || !cfg.HasAPIKey() {
		h.reply(s, i, "Set CMC API key first.")
		return
	}
	id, err := parseID(channelID)
	if err != nil || !h.client.textChannelIn(guildID, id) {
		h.reply(s, i, "Channel not found. Please provide a valid channel ID.")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), verifyTimeout)
	defer cancel()
	have := make(map[string]bool)
	for _, q := range h.store.FetchUncached(ctx, cfg.APIKey, []string{t1, t2}) {
		have[q.Symbol] = true
	}
	if !have[t1] || !have[t2] {
		h.reply(s, i, "One or both tickers not found on CoinMarketCap.")
		return
	}
	key := tenant.PairKey(t1, t2)
	err = h.registry.Update(guildID, func(c *tenant.Config) {
		if c.RatioTickers == nil {
			c.RatioTickers = make(map[string]int64)
		}
		c.RatioTickers[key] = id
	})
	if err != nil {
		h.replySaveError(s, i, err)
		return
	}
	h.reply(s, i, fmt.Sprintf("Added %s ratio messages to <#%d>.", key, id))
}

func (h *Commands) removeRatioTickers(s *discordgo.Session, i *discordgo.InteractionCreate, guildID int64, ticker1, ticker2 string) {
	key := tenant.PairKey(strings.TrimSpace(ticker1), strings.TrimSpace(ticker2))
	cfg, ok := h.registry.Get(guildID)
	if !ok {
		h.reply(s, i, fmt.Sprintf("%s is not currently being tracked.", key))
		return
	}
	if _, tracked := cfg.RatioTickers[key]; !tracked {
		h.reply(s, i, fmt.Sprintf("%s is not currently being tracked.", key))
		return
	}
	if err := h.registry.Update(guildID, func(c *tenant.Config) { delete(c.RatioTickers, key) }); err != nil {
		h.replySaveError(s, i, err)
		return
	}
	h.reply(s, i, fmt.Sprintf("Removed %s from ratio messages.", key))
}

func (h *Commands) forceUpdate(s *discordgo.Session, i *discordgo.InteractionCreate, guildID int64, run func(ctx context.Context)) {
	cfg, ok := h.registry.Get(guildID)
	if !ok || !cfg.HasAPIKey() {
		h.reply(s, i, "Set CMC API key first.")
		return
	}
	h.reply(s, i, "Updating...")
	go run(context.Background())
}

func (h *Commands) showSettings(s *discordgo.Session, i *discordgo.InteractionCreate, guildID int64) {
	embed := &discordgo.MessageEmbed{
		Title: "Crypto Bot Settings",
		Color: 0x3498db,
	}
	cfg, ok := h.registry.Get(guildID)
	if !ok {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Status", Value: "No settings configured yet.",
		})
	} else {
		embed.Fields = settingsFields(cfg)
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		log.Printf("discord: interaction response: %v", err)
	}
}

func settingsFields(cfg tenant.Config) []*discordgo.MessageEmbedField {
	field := func(name, value string) *discordgo.MessageEmbedField {
		return &discordgo.MessageEmbedField{Name: name, Value: value}
	}
	apiKey := "❌ Not configured"
	if cfg.HasAPIKey() {
		apiKey = "✅ ..." + lastN(cfg.APIKey, 4)
	}
	adminRole := "Not configured"
	if cfg.AdminRole != 0 {
		adminRole = fmt.Sprintf("<@&%d>", cfg.AdminRole)
	}
	category := "Not configured"
	if cfg.UpdateCategory != 0 {
		category = fmt.Sprintf("<#%d>", cfg.UpdateCategory)
	}
	voice := "None"
	if len(cfg.VoiceTickers) > 0 {
		voice = strings.Join(cfg.VoiceTickers, ", ")
	}
	fields := []*discordgo.MessageEmbedField{
		field("CoinMarketCap API Key", apiKey),
		field("Admin Role", adminRole),
		field("Update Category", category),
		field("Voice Channel Tickers", voice),
	}
	if len(cfg.MessageTickers) > 0 {
		fields = append(fields, field("Message Tickers", formatChannelMap(cfg.MessageTickers)))
	}
	if len(cfg.RatioTickers) > 0 {
		fields = append(fields, field("Ratio Tickers", formatChannelMap(cfg.RatioTickers)))
	}
	return fields
}

func formatChannelMap(m map[string]int64) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s → <#%d>", k, m[k]))
	}
	return strings.Join(lines, "\n")
}

func lastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func (h *Commands) replySaveError(s *discordgo.Session, i *discordgo.InteractionCreate, err error) {
	log.Printf("discord: save settings: %v", err)
	h.reply(s, i, "Failed to save settings, check the bot logs.")
}

func (h *Commands) roleIn(guildID, roleID int64) bool {
	if r, err := h.client.session.State.Role(formatID(guildID), formatID(roleID)); err == nil && r != nil {
		return true
	}
	roles, err := h.client.session.GuildRoles(formatID(guildID))
	if err != nil {
		return false
	}
	want := formatID(roleID)
	for _, r := range roles {
		if r.ID == want {
			return true
		}
	}
	return false
}
