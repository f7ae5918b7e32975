package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/mapping"
)

// Store holds the current settings in memory and writes changes through to
// the repository. Readers get copies, so a concurrent Update never changes a
// snapshot that is already in use.
type Store struct {
	mu      sync.RWMutex
	current Settings
	repo    Repository
}

func NewStore(repo Repository) *Store {
	return &Store{
		repo:    repo,
		current: Settings{LogDays: DefaultLogDays},
	}
}

// Load reads persisted values over defaults. Keys missing from the repository
// are seeded from defaults and written back so the first boot persists them.
func (s *Store) Load(ctx context.Context, defaults Settings) error {
	stored, err := s.repo.LoadAll(ctx)
	if err != nil {
		return err
	}

	merged := defaults.clone()
	if merged.LogDays <= 0 {
		merged.LogDays = DefaultLogDays
	}
	if err := decode(stored, &merged); err != nil {
		return err
	}

	missing := make(map[string]Value)
	for key, v := range encode(merged) {
		if _, ok := stored[key]; !ok {
			missing[key] = v
		}
	}
	if len(missing) > 0 {
		if err := s.repo.SaveAll(ctx, missing); err != nil {
			return err
		}
		slog.Info("settings seeded", "keys", len(missing))
	}

	s.mu.Lock()
	s.current = merged
	s.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the current settings.
func (s *Store) Snapshot() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.clone()
}

// Update applies fn to a copy, persists the result and swaps it in.
func (s *Store) Update(ctx context.Context, fn func(*Settings) error) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.clone()
	if err := fn(&next); err != nil {
		return Settings{}, err
	}
	if next.LogDays <= 0 {
		next.LogDays = DefaultLogDays
	}
	if err := s.repo.SaveAll(ctx, encode(next)); err != nil {
		return Settings{}, err
	}
	s.current = next
	warnOverlaps(next.Mappings)
	return next.clone(), nil
}

// MigrateMappings upgrades legacy mapping entries once. The persisted flag keeps
// later boots from touching the table again.
func (s *Store) MigrateMappings(ctx context.Context) (bool, error) {
	if s.Snapshot().MappingsMigrated {
		return false, nil
	}

	migrated := false
	_, err := s.Update(ctx, func(st *Settings) error {
		if st.MappingsMigrated {
			return nil
		}
		st.Mappings, migrated = mapping.Migrate(st.Mappings)
		st.MappingsMigrated = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if migrated {
		slog.Info("migrated mappings to multi-product format", "count", len(s.Snapshot().Mappings))
	}
	return migrated, nil
}

func warnOverlaps(entries []mapping.Entry) {
	for _, o := range mapping.FindOverlaps(entries) {
		slog.Warn("product id mapped by more than one active entry; first entry wins",
			"product_id", o.ProductID,
			"entries", o.Indexes,
		)
	}
}

func encode(s Settings) map[string]Value {
	mappings := s.Mappings
	if mappings == nil {
		mappings = []mapping.Entry{}
	}
	b, _ := json.Marshal(mappings)
	return map[string]Value{
		keyWebhookSecret:    {Value: s.WebhookSecret, Type: "string"},
		keyAPIKey:           {Value: s.APIKey, Type: "string"},
		keyBaseURL:          {Value: s.BaseURL, Type: "string"},
		keyAdminEmail:       {Value: s.AdminEmail, Type: "string"},
		keyLogDays:          {Value: strconv.Itoa(s.LogDays), Type: "int"},
		keyMappings:         {Value: string(b), Type: "json"},
		keyMappingsMigrated: {Value: strconv.FormatBool(s.MappingsMigrated), Type: "bool"},
	}
}

func decode(stored map[string]Value, s *Settings) error {
	if v, ok := stored[keyWebhookSecret]; ok {
		s.WebhookSecret = v.Value
	}
	if v, ok := stored[keyAPIKey]; ok {
		s.APIKey = v.Value
	}
	if v, ok := stored[keyBaseURL]; ok && v.Value != "" {
		s.BaseURL = v.Value
	}
	if v, ok := stored[keyAdminEmail]; ok {
		s.AdminEmail = v.Value
	}
	if v, ok := stored[keyLogDays]; ok {
		if n, err := strconv.Atoi(v.Value); err == nil && n > 0 {
			s.LogDays = n
		}
	}
	if v, ok := stored[keyMappings]; ok && v.Value != "" {
		var entries []mapping.Entry
		if err := json.Unmarshal([]byte(v.Value), &entries); err != nil {
			return fmt.Errorf("failed to decode stored mappings: %w", err)
		}
		s.Mappings = entries
	}
	if v, ok := stored[keyMappingsMigrated]; ok {
		s.MappingsMigrated, _ = strconv.ParseBool(v.Value)
	}
	return nil
}
