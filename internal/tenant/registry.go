package tenant

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"sync"
)

// Registry is the in-memory set of tenants, backed by a JSON file.
// Mutations go through Update, which persists after every change.
// Reads hand out copies so scheduler loops never observe a tenant
// mid-mutation.
type Registry struct {
	path string

	mu     sync.RWMutex
	guilds map[int64]*Config
}

// Load reads the registry from path. A missing file yields an empty
// registry; a file that exists but cannot be parsed is an error, so a
// corrupt config is never silently overwritten on the next save.
func Load(path string) (*Registry, error) {
	r := &Registry{path: path, guilds: make(map[int64]*Config)}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Printf("tenant: no config at %s, starting empty", path)
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read tenants: %w", err)
	}
	var file map[string]fileGuild
	if err := json.Unmarshal(b, &file); err != nil {
		return nil, fmt.Errorf("parse tenants: %w", err)
	}
	for idStr, fg := range file {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse tenants: guild id %q: %w", idStr, err)
		}
		cfg, err := fg.config(id)
		if err != nil {
			return nil, fmt.Errorf("parse tenants: guild %s: %w", idStr, err)
		}
		r.guilds[id] = cfg
	}
	log.Printf("tenant: loaded %d guild configs from %s", len(r.guilds), path)
	return r, nil
}

// Get returns a copy of one tenant's config.
func (r *Registry) Get(id int64) (Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.guilds[id]
	if !ok {
		return Config{}, false
	}
	return c.clone(), true
}

// Snapshot returns copies of all tenants in stable (ID) order.
func (r *Registry) Snapshot() []Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Config, 0, len(r.guilds))
	for _, c := range r.guilds {
		out = append(out, c.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Update mutates one tenant under the registry lock and persists the
// whole registry afterwards. The tenant is created on first write.
func (r *Registry) Update(id int64, fn func(*Config)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.guilds[id]
	if !ok {
		c = &Config{ID: id}
		r.guilds[id] = c
	}
	fn(c)
	return r.saveLocked()
}

func (r *Registry) saveLocked() error {
	file := make(map[string]fileGuild, len(r.guilds))
	for id, c := range r.guilds {
		file[strconv.FormatInt(id, 10)] = newFileGuild(c)
	}
	b, err := json.MarshalIndent(file, "", "    ")
	if err != nil {
		return fmt.Errorf("encode tenants: %w", err)
	}
	if err := os.WriteFile(r.path, b, 0o644); err != nil {
		return fmt.Errorf("save tenants: %w", err)
	}
	return nil
}

// fileGuild is the on-disk shape. Snowflake IDs are serialized as
// decimal strings so other consumers of the file cannot lose precision
// reading them as floats.
type fileGuild struct {
	VoiceTickers   []string          `json:"voice_tickers"`
	RatioTickers   map[string]string `json:"ratio_tickers"`
	MessageTickers map[string]string `json:"message_tickers"`
	UpdateCategory string            `json:"update_category,omitempty"`
	AdminRoleID    string            `json:"admin_role_id,omitempty"`
	APIKey         string            `json:"cmc_api_key,omitempty"`
}

func newFileGuild(c *Config) fileGuild {
	fg := fileGuild{
		VoiceTickers:   c.VoiceTickers,
		RatioTickers:   formatIDMap(c.RatioTickers),
		MessageTickers: formatIDMap(c.MessageTickers),
		APIKey:         c.APIKey,
	}
	if fg.VoiceTickers == nil {
		fg.VoiceTickers = []string{}
	}
	if c.UpdateCategory != 0 {
		fg.UpdateCategory = strconv.FormatInt(c.UpdateCategory, 10)
	}
	if c.AdminRole != 0 {
		fg.AdminRoleID = strconv.FormatInt(c.AdminRole, 10)
	}
	return fg
}

func (fg fileGuild) config(id int64) (*Config, error) {
	c := &Config{
		ID:           id,
		APIKey:       fg.APIKey,
		VoiceTickers: fg.VoiceTickers,
	}
	var err error
	if fg.UpdateCategory != "" {
		if c.UpdateCategory, err = strconv.ParseInt(fg.UpdateCategory, 10, 64); err != nil {
			return nil, fmt.Errorf("update_category: %w", err)
		}
	}
	if fg.AdminRoleID != "" {
		if c.AdminRole, err = strconv.ParseInt(fg.AdminRoleID, 10, 64); err != nil {
			return nil, fmt.Errorf("admin_role_id: %w", err)
		}
	}
	if c.MessageTickers, err = parseIDMap(fg.MessageTickers); err != nil {
		return nil, fmt.Errorf("message_tickers: %w", err)
	}
	if c.RatioTickers, err = parseIDMap(fg.RatioTickers); err != nil {
		return nil, fmt.Errorf("ratio_tickers: %w", err)
	}
	return c, nil
}

func formatIDMap(m map[string]int64) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = strconv.FormatInt(v, 10)
	}
	return out
}

func parseIDMap(m map[string]string) (map[string]int64, error) {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = id
	}
	return out, nil
}
