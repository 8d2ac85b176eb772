package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"skovkrogen/internal/checklist"
	"skovkrogen/internal/models"

	"gopkg.in/yaml.v3"
)

// Household is the root of household.yaml: who can book, what the checkout
// checklist contains and which Telegram accounts belong to whom.
type Household struct {
	Roster        []string         `yaml:"roster"`
	Checklist     []checklist.Item `yaml:"checklist"`
	TelegramUsers map[int64]string `yaml:"telegram_users"`
}

// LoadHousehold loads and validates the household file. A missing file yields
// the defaults so a fresh install works without one.
func LoadHousehold(path string) (*Household, error) {
	if path == "" {
		path = "configs/household.yaml"
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		h := &Household{}
		h.applyDefaults()
		return h, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read household config: %w", err)
	}
	return ParseHousehold(data)
}

// ParseHousehold decodes household YAML.
func ParseHousehold(data []byte) (*Household, error) {
	var h Household
	if err := yaml.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("parse household config: %w", err)
	}
	if err := h.Validate(); err != nil {
		return nil, fmt.Errorf("validate household config: %w", err)
	}
	h.applyDefaults()
	return &h, nil
}

// Validate checks the roster and Telegram mapping.
func (h *Household) Validate() error {
	names := make(map[string]bool)
	for i, n := range h.Roster {
		n = strings.TrimSpace(n)
		if n == "" {
			return fmt.Errorf("roster[%d]: name is required", i)
		}
		if names[n] {
			return fmt.Errorf("roster[%d]: duplicate name '%s'", i, n)
		}
		names[n] = true
	}
	for id, email := range h.TelegramUsers {
		if id <= 0 {
			return fmt.Errorf("telegram_users: id must be positive, got %d", id)
		}
		if !strings.Contains(email, "@") {
			return fmt.Errorf("telegram_users[%d]: invalid email '%s'", id, email)
		}
	}
	if len(h.Checklist) > 0 {
		if _, err := checklist.NewTemplate(h.Checklist); err != nil {
			return fmt.Errorf("checklist: %w", err)
		}
	}
	return nil
}

func (h *Household) applyDefaults() {
	if len(h.Roster) == 0 {
		h.Roster = append([]string(nil), models.DefaultRoster...)
	}
	for i := range h.Roster {
		h.Roster[i] = strings.TrimSpace(h.Roster[i])
	}
	if len(h.Checklist) == 0 {
		h.Checklist = append([]checklist.Item(nil), checklist.DefaultItems...)
	}
	if h.TelegramUsers == nil {
		h.TelegramUsers = map[int64]string{}
	}
}

// RosterNames returns the roster as a models.Roster.
func (h *Household) RosterNames() models.Roster {
	return models.Roster(h.Roster)
}

// Template builds the checklist template.
func (h *Household) Template() *checklist.Template {
	tpl, err := checklist.NewTemplate(h.Checklist)
	if err != nil {
		return checklist.Default()
	}
	return tpl
}

// EmailForTelegram maps a Telegram user id to the household email.
func (h *Household) EmailForTelegram(id int64) (string, bool) {
	email, ok := h.TelegramUsers[id]
	return email, ok
}

// TelegramIDsFor lists the Telegram accounts mapped to email, sorted.
func (h *Household) TelegramIDsFor(email string) []int64 {
	var ids []int64
	for id, e := range h.TelegramUsers {
		if strings.EqualFold(e, email) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
