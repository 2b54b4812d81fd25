package profile

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pelletier/go-toml/v2"

	"github.com/Faiz-k/Intentify/config"
)

// Common error messages
const (
	ErrProfileNotFound     = "profile '%s' not found"
	ErrProfileExists       = "profile '%s' already exists"
	ErrCannotDeleteCurrent = "cannot delete the currently active profile, please switch to another profile first"
	ErrEmptyAPIKey         = "API key is empty"
	ErrEmptyProfileID      = "profile name cannot be empty"
)

// ProfileConfig is the content of the profile file.
type ProfileConfig struct {
	Current  string             `toml:"current"`
	Profiles map[string]Profile `toml:"profiles"`
	Defaults ProfileDefaults    `toml:"defaults"`
}

// Profile is one named backend configuration.
type Profile struct {
	APIKey  string `toml:"key,omitempty"` // base64 encoded
	BaseURL string `toml:"base_url,omitempty"`
}

// ProfileDefaults holds values used when a profile leaves them unset.
type ProfileDefaults struct {
	BaseURL string `toml:"base_url,omitempty"`
}

// Entry is a profile together with its name, for listings.
type Entry struct {
	ID      string `json:"id"`
	BaseURL string `json:"base_url"`
	Key     string `json:"key"` // masked
	Current bool   `json:"current"`
}

// ProfileManager manages the profile file
type ProfileManager struct {
	config ProfileConfig
	path   string
}

// NewProfileManager creates a manager for the profile file at path.
func NewProfileManager(path, defaultBaseURL string) *ProfileManager {
	return &ProfileManager{
		config: ProfileConfig{
			Profiles: make(map[string]Profile),
			Defaults: ProfileDefaults{BaseURL: defaultBaseURL},
		},
		path: path,
	}
}

// Default loads the manager for the configured profile path.
func Default() (*ProfileManager, error) {
	pm := NewProfileManager(config.GetProfilePath(), config.GetAPIURL())
	if err := pm.Load(); err != nil {
		return nil, err
	}
	return pm, nil
}

// Load loads profiles from file. A missing file is an empty configuration.
func (pm *ProfileManager) Load() error {
	defaultBaseURL := pm.config.Defaults.BaseURL

	data, err := os.ReadFile(pm.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read profile file: %v", err)
	}

	if len(data) == 0 {
		return nil
	}

	var cfg ProfileConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse profile file: %v", err)
	}
	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]Profile)
	}
	if cfg.Defaults.BaseURL == "" {
		cfg.Defaults.BaseURL = defaultBaseURL
	}
	pm.config = cfg
	return nil
}

// Save saves profiles to file
func (pm *ProfileManager) Save() error {
	if err := os.MkdirAll(filepath.Dir(pm.path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %v", err)
	}

	data, err := toml.Marshal(pm.createCleanConfigForSaving())
	if err != nil {
		return fmt.Errorf("failed to serialize profile data: %v", err)
	}

	if err := os.WriteFile(pm.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write profile file: %v", err)
	}
	return nil
}

// createCleanConfigForSaving omits base_url fields that match the default.
func (pm *ProfileManager) createCleanConfigForSaving() ProfileConfig {
	clean := ProfileConfig{
		Current:  pm.config.Current,
		Profiles: make(map[string]Profile, len(pm.config.Profiles)),
		Defaults: pm.config.Defaults,
	}
	for id, p := range pm.config.Profiles {
		cp := Profile{APIKey: p.APIKey}
		if p.BaseURL != "" && p.BaseURL != pm.config.Defaults.BaseURL {
			cp.BaseURL = p.BaseURL
		}
		clean.Profiles[id] = cp
	}
	return clean
}

// Add stores a new profile. The first profile becomes the current one.
func (pm *ProfileManager) Add(id, key, baseURL string) error {
	if id == "" {
		return errors.New(ErrEmptyProfileID)
	}
	if _, exists := pm.config.Profiles[id]; exists {
		return fmt.Errorf(ErrProfileExists, id)
	}

	p := Profile{BaseURL: baseURL}
	if key != "" {
		p.APIKey = base64.StdEncoding.EncodeToString([]byte(key))
	}
	pm.config.Profiles[id] = p

	if pm.config.Current == "" {
		pm.config.Current = id
	}
	return pm.Save()
}

// Use switches the current profile.
func (pm *ProfileManager) Use(id string) error {
	if len(pm.config.Profiles) == 0 {
		return fmt.Errorf("no profiles available, please add a profile first")
	}
	if _, exists := pm.config.Profiles[id]; !exists {
		return fmt.Errorf(ErrProfileNotFound, id)
	}

	pm.config.Current = id
	return pm.Save()
}

// Remove removes the specified profile
func (pm *ProfileManager) Remove(id string) error {
	if _, exists := pm.config.Profiles[id]; !exists {
		return fmt.Errorf(ErrProfileNotFound, id)
	}
	if id == pm.config.Current && len(pm.config.Profiles) > 1 {
		return errors.New(ErrCannotDeleteCurrent)
	}

	delete(pm.config.Profiles, id)
	if id == pm.config.Current {
		pm.config.Current = ""
	}
	return pm.Save()
}

// GetCurrent returns a copy of the current profile with defaults filled in,
// or nil when none is selected.
func (pm *ProfileManager) GetCurrent() *Profile {
	if pm.config.Current == "" {
		return nil
	}
	p, exists := pm.config.Profiles[pm.config.Current]
	if !exists {
		return nil
	}
	if p.BaseURL == "" {
		p.BaseURL = pm.config.Defaults.BaseURL
	}
	return &p
}

func (pm *ProfileManager) GetCurrentProfileID() string {
	return pm.config.Current
}

// GetEffectiveBaseURL is the current profile's base URL, or the default.
func (pm *ProfileManager) GetEffectiveBaseURL() string {
	if p := pm.GetCurrent(); p != nil && p.BaseURL != "" {
		return p.BaseURL
	}
	return pm.config.Defaults.BaseURL
}

// GetCurrentAPIKey returns the decoded key of the current profile. An empty
// key without error means the backend is used anonymously.
func (pm *ProfileManager) GetCurrentAPIKey() (string, error) {
	p := pm.GetCurrent()
	if p == nil || p.APIKey == "" {
		return "", nil
	}
	return DecodeAPIKey(p.APIKey)
}

// List returns all profiles sorted by name.
func (pm *ProfileManager) List() []Entry {
	ids := make([]string, 0, len(pm.config.Profiles))
	for id := range pm.config.Profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		p := pm.config.Profiles[id]
		baseURL := p.BaseURL
		if baseURL == "" {
			baseURL = pm.config.Defaults.BaseURL
		}
		entries = append(entries, Entry{
			ID:      id,
			BaseURL: baseURL,
			Key:     GetMaskedAPIKey(p.APIKey),
			Current: id == pm.config.Current,
		})
	}
	return entries
}

// ListJSON renders List as indented JSON.
func (pm *ProfileManager) ListJSON() string {
	data, err := json.MarshalIndent(pm.List(), "", "  ")
	if err != nil {
		return "[]"
	}
	return string(data)
}

// DecodeAPIKey decodes a base64 encoded API key
func DecodeAPIKey(encodedKey string) (string, error) {
	if encodedKey == "" {
		return "", errors.New(ErrEmptyAPIKey)
	}
	decoded, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return "", fmt.Errorf("failed to decode API key: %v", err)
	}
	return string(decoded), nil
}

// GetMaskedAPIKey gets the masked version of an encoded API key
func GetMaskedAPIKey(encodedKey string) string {
	if encodedKey == "" {
		return "-"
	}
	key, err := DecodeAPIKey(encodedKey)
	if err != nil {
		return "***"
	}
	return maskAPIKey(key)
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
