package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// ErrConflict is returned when inserting a row whose key already exists
var ErrConflict = errors.New("row already exists")

const (
	profilesCollection = "profiles"
	settingsCollection = "user_settings"
	accountsCollection = "accounts"
)

// Account is a locally registered user, used when no hosted backend is configured
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	FullName     string    `json:"full_name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ChromemStore keeps rows in memory and writes them through to a chromem
// database. Rows are stored as JSON document content; lookups never embed.
type ChromemStore struct {
	db     *chromem.DB
	logger *zap.Logger
	now    func() time.Time

	mu       sync.RWMutex
	profiles map[string]*Profile
	settings map[string]*Settings // keyed by user id
	accounts map[string]*Account  // keyed by lowercase email
}

// staticEmbedding gives every document the same unit vector. The collections
// are used as a document store, so similarity search is never needed.
func staticEmbedding(context.Context, string) ([]float32, error) {
	return []float32{1}, nil
}

// OpenPersistent opens (or creates) a persistent chromem database under dir
func OpenPersistent(dir string, logger *zap.Logger) (*ChromemStore, error) {
	db, err := chromem.NewPersistentDB(dir, true)
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", dir, err)
	}
	return NewChromemStore(db, logger)
}

// NewChromemStore wraps db and loads every existing row into memory
func NewChromemStore(db *chromem.DB, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ChromemStore{
		db:       db,
		logger:   logger,
		now:      time.Now,
		profiles: make(map[string]*Profile),
		settings: make(map[string]*Settings),
		accounts: make(map[string]*Account),
	}

	ctx := context.Background()
	if err := load(ctx, s, profilesCollection, func(p *Profile) { s.profiles[p.ID] = p }); err != nil {
		return nil, err
	}
	if err := load(ctx, s, settingsCollection, func(st *Settings) { s.settings[st.UserID] = st }); err != nil {
		return nil, err
	}
	if err := load(ctx, s, accountsCollection, func(a *Account) { s.accounts[strings.ToLower(a.Email)] = a }); err != nil {
		return nil, err
	}

	logger.Info("✅ Store loaded",
		zap.Int("profiles", len(s.profiles)),
		zap.Int("settings", len(s.settings)),
		zap.Int("accounts", len(s.accounts)))
	return s, nil
}

func load[T any](ctx context.Context, s *ChromemStore, name string, add func(*T)) error {
	collection, err := s.collection(name)
	if err != nil {
		return err
	}
	count := collection.Count()
	if count == 0 {
		return nil
	}

	// chromem rejects nResults above the document count, so ask for exactly that many.
	results, err := collection.Query(ctx, name, count, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", name, err)
	}
	for _, result := range results {
		row := new(T)
		if err := json.Unmarshal([]byte(result.Content), row); err != nil {
			s.logger.Warn("⚠️  Skipping unreadable row", zap.String("collection", name), zap.String("id", result.ID), zap.Error(err))
			continue
		}
		add(row)
	}
	return nil
}

func (s *ChromemStore) collection(name string) (*chromem.Collection, error) {
	collection, err := s.db.GetOrCreateCollection(name, map[string]string{"type": name}, staticEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create %s collection: %w", name, err)
	}
	return collection, nil
}

func (s *ChromemStore) persist(ctx context.Context, name, id string, row any) error {
	collection, err := s.collection(name)
	if err != nil {
		return err
	}
	content, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to marshal %s row: %w", name, err)
	}
	doc := chromem.Document{
		ID:        id,
		Metadata:  map[string]string{"type": name},
		Embedding: []float32{1},
		Content:   string(content),
	}
	if err := collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to persist %s row %s: %w", name, id, err)
	}
	return nil
}

func (s *ChromemStore) GetProfile(_ context.Context, userID string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *ChromemStore) InsertProfile(ctx context.Context, p Profile) (*Profile, error) {
	if p.ID == "" {
		return nil, errors.New("profile id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.profiles[p.ID]; exists {
		return nil, fmt.Errorf("profile %s: %w", p.ID, ErrConflict)
	}
	if p.Theme == "" {
		p.Theme = ThemeSystem
	}
	now := s.now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	if err := s.persist(ctx, profilesCollection, p.ID, p); err != nil {
		return nil, err
	}
	s.profiles[p.ID] = &p
	cp := p
	return &cp, nil
}

func (s *ChromemStore) UpdateProfile(ctx context.Context, userID string, u ProfileUpdate) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	p := *existing
	u.Apply(&p)
	p.UpdatedAt = s.now().UTC()

	if err := s.persist(ctx, profilesCollection, p.ID, p); err != nil {
		return nil, err
	}
	s.profiles[userID] = &p
	cp := p
	return &cp, nil
}

func (s *ChromemStore) GetSettings(_ context.Context, userID string) (*Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.settings[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (s *ChromemStore) InsertSettings(ctx context.Context, st Settings) (*Settings, error) {
	if st.UserID == "" {
		return nil, errors.New("settings user_id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.settings[st.UserID]; exists {
		return nil, fmt.Errorf("settings for %s: %w", st.UserID, ErrConflict)
	}
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	now := s.now().UTC()
	st.CreatedAt, st.UpdatedAt = now, now

	if err := s.persist(ctx, settingsCollection, st.UserID, st); err != nil {
		return nil, err
	}
	s.settings[st.UserID] = &st
	cp := st
	return &cp, nil
}

func (s *ChromemStore) UpdateSettings(ctx context.Context, userID string, u SettingsUpdate) (*Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.settings[userID]
	if !ok {
		return nil, ErrNotFound
	}
	st := *existing
	u.Apply(&st)
	st.UpdatedAt = s.now().UTC()

	if err := s.persist(ctx, settingsCollection, st.UserID, st); err != nil {
		return nil, err
	}
	s.settings[userID] = &st
	cp := st
	return &cp, nil
}

// GetAccount looks up a local account by email, ignoring case
func (s *ChromemStore) GetAccount(_ context.Context, email string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// GetAccountByID is a linear scan; local deployments hold a handful of accounts
func (s *ChromemStore) GetAccountByID(_ context.Context, id string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.accounts {
		if a.ID == id {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// SetAccountPassword replaces the password hash of the account with id
func (s *ChromemStore) SetAccountPassword(ctx context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, a := range s.accounts {
		if a.ID != id {
			continue
		}
		updated := *a
		updated.PasswordHash = passwordHash
		if err := s.persist(ctx, accountsCollection, updated.ID, updated); err != nil {
			return err
		}
		s.accounts[key] = &updated
		return nil
	}
	return ErrNotFound
}

// InsertAccount registers a new local account. The email must be unused.
func (s *ChromemStore) InsertAccount(ctx context.Context, a Account) (*Account, error) {
	key := strings.ToLower(strings.TrimSpace(a.Email))
	if key == "" {
		return nil, errors.New("account email is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[key]; exists {
		return nil, fmt.Errorf("account %s: %w", key, ErrConflict)
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.Email = key
	a.CreatedAt = s.now().UTC()

	if err := s.persist(ctx, accountsCollection, a.ID, a); err != nil {
		return nil, err
	}
	s.accounts[key] = &a
	cp := a
	return &cp, nil
}
