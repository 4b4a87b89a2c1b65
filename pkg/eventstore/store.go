package eventstore

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Options tune a Store.
type Options struct {
	// Categories seeds the category list of a new definitions document.
	Categories []string
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// Store is the typed per-user event store. All read-modify-write cycles of
// one user are serialized by a per-user mutex.
type Store struct {
	docs       DocumentStore
	categories []string
	now        func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewStore wraps docs with typed accessors.
func NewStore(docs DocumentStore, opts Options) (*Store, error) {
	if docs == nil {
		return nil, errors.New("eventstore: document store is nil")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		docs:       docs,
		categories: append([]string(nil), opts.Categories...),
		now:        now,
		locks:      make(map[string]*sync.Mutex),
	}, nil
}

// Documents exposes the backing document store.
func (s *Store) Documents() DocumentStore { return s.docs }

// Now returns the store clock.
func (s *Store) Now() time.Time { return s.now() }

// Close releases the backing store.
func (s *Store) Close() error { return s.docs.Close() }

func (s *Store) userLock(userID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	mu, ok := s.locks[userID]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[userID] = mu
	}
	return mu
}

// Users lists all users with persisted documents.
func (s *Store) Users(ctx context.Context) ([]string, error) {
	return s.docs.Users(ctx)
}

func (s *Store) emptyDefinitions(userID string) *DefinitionsDoc {
	now := s.now()
	return &DefinitionsDoc{
		UserID:      userID,
		Definitions: map[string]*EventDefinition{},
		Categories:  append([]string(nil), s.categories...),
		CreatedTime: now,
		LastUpdated: now,
	}
}

func (s *Store) emptyRecords(userID string) *RecordsDoc {
	now := s.now()
	return &RecordsDoc{
		UserID:        userID,
		Records:       []EventRecord{},
		ActiveRecords: map[string]EventRecord{},
		Sequences:     map[string]int{},
		CreatedTime:   now,
		LastUpdated:   now,
	}
}

// LoadDefinitions returns the user's definitions, an empty default when none
// exist, or a *ParseError when the stored document is malformed.
func (s *Store) LoadDefinitions(ctx context.Context, userID string) (*DefinitionsDoc, error) {
	raw, found, err := s.docs.Load(ctx, userID, KindDefinitions)
	if err != nil {
		return nil, err
	}
	if !found {
		return s.emptyDefinitions(userID), nil
	}
	doc := &DefinitionsDoc{}
	if err := decodeDocument(userID, KindDefinitions, raw, doc); err != nil {
		return nil, err
	}
	if doc.UserID == "" {
		doc.UserID = userID
	}
	if doc.Definitions == nil {
		doc.Definitions = map[string]*EventDefinition{}
	}
	return doc, nil
}

// LoadRecords mirrors LoadDefinitions for the record document.
func (s *Store) LoadRecords(ctx context.Context, userID string) (*RecordsDoc, error) {
	raw, found, err := s.docs.Load(ctx, userID, KindRecords)
	if err != nil {
		return nil, err
	}
	if !found {
		return s.emptyRecords(userID), nil
	}
	doc := &RecordsDoc{}
	if err := decodeDocument(userID, KindRecords, raw, doc); err != nil {
		return nil, err
	}
	if doc.UserID == "" {
		doc.UserID = userID
	}
	if doc.Records == nil {
		doc.Records = []EventRecord{}
	}
	if doc.ActiveRecords == nil {
		doc.ActiveRecords = map[string]EventRecord{}
	}
	if doc.Sequences == nil {
		doc.Sequences = map[string]int{}
	}
	return doc, nil
}

// LoadDefinitionsOrDefault logs load failures and falls back to an empty
// document. Use it only on read paths that tolerate missing data.
func (s *Store) LoadDefinitionsOrDefault(ctx context.Context, userID string) *DefinitionsDoc {
	doc, err := s.LoadDefinitions(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("eventstore: load definitions failed, using empty default")
		return s.emptyDefinitions(userID)
	}
	return doc
}

// LoadRecordsOrDefault is the lenient variant of LoadRecords.
func (s *Store) LoadRecordsOrDefault(ctx context.Context, userID string) *RecordsDoc {
	doc, err := s.LoadRecords(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("eventstore: load records failed, using empty default")
		return s.emptyRecords(userID)
	}
	return doc
}

// SaveDefinitions persists doc, stamping last_updated.
func (s *Store) SaveDefinitions(ctx context.Context, userID string, doc *DefinitionsDoc) error {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()
	return s.saveDefinitions(ctx, userID, doc)
}

// SaveRecords persists doc, stamping last_updated.
func (s *Store) SaveRecords(ctx context.Context, userID string, doc *RecordsDoc) error {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()
	return s.saveRecords(ctx, userID, doc)
}

func (s *Store) saveDefinitions(ctx context.Context, userID string, doc *DefinitionsDoc) error {
	if doc == nil {
		return errors.New("eventstore: definitions document is nil")
	}
	doc.UserID = userID
	doc.LastUpdated = s.now()
	raw, err := encodeDocument(doc)
	if err != nil {
		return errors.Wrap(err, "eventstore: encode definitions failed")
	}
	return s.docs.Save(ctx, userID, KindDefinitions, raw)
}

func (s *Store) saveRecords(ctx context.Context, userID string, doc *RecordsDoc) error {
	if doc == nil {
		return errors.New("eventstore: records document is nil")
	}
	doc.UserID = userID
	doc.LastUpdated = s.now()
	raw, err := encodeDocument(doc)
	if err != nil {
		return errors.Wrap(err, "eventstore: encode records failed")
	}
	return s.docs.Save(ctx, userID, KindRecords, raw)
}

// Update runs fn on freshly loaded documents under the user's lock and saves
// both documents when fn succeeds. Malformed documents abort the update so a
// corrupted file is never overwritten with an empty default.
//
// Records are written before definitions. A failed definitions write leaves
// stats lagging behind a saved record; the reverse order would count a
// record that was never stored.
func (s *Store) Update(ctx context.Context, userID string, fn func(defs *DefinitionsDoc, records *RecordsDoc) error) error {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	defs, err := s.LoadDefinitions(ctx, userID)
	if err != nil {
		return err
	}
	records, err := s.LoadRecords(ctx, userID)
	if err != nil {
		return err
	}
	if err := fn(defs, records); err != nil {
		return err
	}
	if err := s.saveRecords(ctx, userID, records); err != nil {
		return err
	}
	return s.saveDefinitions(ctx, userID, defs)
}
