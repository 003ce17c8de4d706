package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"batisecure/internal/gdpr/models"
)

// MemoryStore is a mutex-guarded in-memory implementation of every GDPR
// store interface. Used in tests and for single-instance deployments
// without a database.
type MemoryStore struct {
	mu sync.RWMutex

	consents  map[string]*models.Consent
	requests  map[string]*models.RightsRequest
	logs      []*models.ProcessingLog
	retention map[string]*models.RetentionPolicy
	breaches  map[string]*models.Breach

	profiles      map[string]*models.UserProfile
	projects      map[string][]map[string]any
	quotes        map[string][]map[string]any
	notifications map[string][]map[string]any
	messages      map[string][]*models.Message
	comments      map[string][]*models.Comment
	documents     map[string][]*models.Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		consents:      make(map[string]*models.Consent),
		requests:      make(map[string]*models.RightsRequest),
		retention:     make(map[string]*models.RetentionPolicy),
		breaches:      make(map[string]*models.Breach),
		profiles:      make(map[string]*models.UserProfile),
		projects:      make(map[string][]map[string]any),
		quotes:        make(map[string][]map[string]any),
		notifications: make(map[string][]map[string]any),
		messages:      make(map[string][]*models.Message),
		comments:      make(map[string][]*models.Comment),
		documents:     make(map[string][]*models.Document),
	}
}

// Snapshot returns a deep copy of the mutable subject state so an
// in-memory erasure transaction can roll back on failure.
func (s *MemoryStore) Snapshot() *SubjectSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &SubjectSnapshot{
		profiles:  make(map[string]*models.UserProfile, len(s.profiles)),
		messages:  make(map[string][]*models.Message, len(s.messages)),
		comments:  make(map[string][]*models.Comment, len(s.comments)),
		documents: make(map[string][]*models.Document, len(s.documents)),
	}
	for id, p := range s.profiles {
		cp := *p
		snap.profiles[id] = &cp
	}
	for id, msgs := range s.messages {
		snap.messages[id] = copyMessages(msgs)
	}
	for id, cms := range s.comments {
		snap.comments[id] = copyComments(cms)
	}
	for id, docs := range s.documents {
		snap.documents[id] = copyDocuments(docs)
	}
	return snap
}

// Restore puts the subject state back to a previous snapshot.
func (s *MemoryStore) Restore(snap *SubjectSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.profiles = snap.profiles
	s.messages = snap.messages
	s.comments = snap.comments
	s.documents = snap.documents
}

// SubjectSnapshot holds the erasure-mutable portion of a MemoryStore.
type SubjectSnapshot struct {
	profiles  map[string]*models.UserProfile
	messages  map[string][]*models.Message
	comments  map[string][]*models.Comment
	documents map[string][]*models.Document
}

// --- ConsentStore ---

func (s *MemoryStore) Save(ctx context.Context, consent *models.Consent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *consent
	s.consents[consent.ID] = &cp
	return nil
}

func (s *MemoryStore) ListByUser(ctx context.Context, userID string, filter *models.ConsentFilter) ([]*models.Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Consent
	for _, c := range s.consents {
		if c.UserID != userID {
			continue
		}
		if filter != nil {
			if filter.Purpose != nil && c.Purpose != *filter.Purpose {
				continue
			}
			if filter.ActiveOnly && !c.IsActive() {
				continue
			}
		}
		cp := *c
		out = append(out, &cp)
	}
	sortConsents(out)
	return out, nil
}

func (s *MemoryStore) ActiveByUserAndPurpose(ctx context.Context, userID string, purpose models.Purpose) ([]*models.Consent, error) {
	return s.ListByUser(ctx, userID, &models.ConsentFilter{Purpose: &purpose, ActiveOnly: true})
}

func (s *MemoryStore) Revoke(ctx context.Context, userID string, purpose models.Purpose, revokedAt time.Time, ip, userAgent string) ([]*models.Consent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Consent
	for _, c := range s.consents {
		if c.UserID != userID || c.Purpose != purpose || !c.IsActive() {
			continue
		}
		at := revokedAt
		c.RevokedAt = &at
		c.RevokedIPAddress = ip
		c.RevokedUserAgent = userAgent
		cp := *c
		out = append(out, &cp)
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	sortConsents(out)
	return out, nil
}

func (s *MemoryStore) CountActiveByPurpose(ctx context.Context) (map[models.Purpose]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[models.Purpose]int)
	for _, c := range s.consents {
		if c.IsActive() {
			counts[c.Purpose]++
		}
	}
	return counts, nil
}

func (s *MemoryStore) CountActive(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, c := range s.consents {
		if c.IsActive() {
			n++
		}
	}
	return n, nil
}

// --- RightsStore ---

func (s *MemoryStore) SaveRequest(ctx context.Context, request *models.RightsRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *request
	s.requests[request.ID] = &cp
	return nil
}

func (s *MemoryStore) FindRequestByID(ctx context.Context, id string) (*models.RightsRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) UpdateRequest(ctx context.Context, request *models.RightsRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[request.ID]; !ok {
		return ErrNotFound
	}
	cp := *request
	s.requests[request.ID] = &cp
	return nil
}

func (s *MemoryStore) ListRequestsByUser(ctx context.Context, userID string) ([]*models.RightsRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listRequestsLocked(userID, nil), nil
}

func (s *MemoryStore) ListRequests(ctx context.Context, filter *models.RequestFilter) ([]*models.RightsRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listRequestsLocked("", filter), nil
}

func (s *MemoryStore) listRequestsLocked(userID string, filter *models.RequestFilter) []*models.RightsRequest {
	var out []*models.RightsRequest
	for _, r := range s.requests {
		if userID != "" && r.UserID != userID {
			continue
		}
		if filter != nil {
			if filter.Type != nil && r.Type != *filter.Type {
				continue
			}
			if filter.Status != nil && r.Status != *filter.Status {
				continue
			}
			if filter.From != nil && r.CreatedAt.Before(*filter.From) {
				continue
			}
			if filter.To != nil && r.CreatedAt.After(*filter.To) {
				continue
			}
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *MemoryStore) CountRequestsByStatus(ctx context.Context, status models.RequestStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, r := range s.requests {
		if r.Status == status {
			n++
		}
	}
	return n, nil
}

// --- ProcessingLogStore ---

func (s *MemoryStore) AppendLog(ctx context.Context, entry *models.ProcessingLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *entry
	s.logs = append(s.logs, &cp)
	return nil
}

func (s *MemoryStore) ListLogsByUser(ctx context.Context, userID string) ([]*models.ProcessingLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.ProcessingLog
	for _, l := range s.logs {
		if l.UserID == userID {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListLogsBetween(ctx context.Context, from, to time.Time) ([]*models.ProcessingLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.ProcessingLog
	for _, l := range s.logs {
		if l.Timestamp.Before(from) || l.Timestamp.After(to) {
			continue
		}
		cp := *l
		out = append(out, &cp)
	}
	return out, nil
}

// --- RetentionStore ---

func (s *MemoryStore) Upsert(ctx context.Context, policy *models.RetentionPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *policy
	s.retention[retentionKey(policy.DataType, policy.Category)] = &cp
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*models.RetentionPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.RetentionPolicy, 0, len(s.retention))
	for _, p := range s.retention {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DataType < out[j].DataType })
	return out, nil
}

func retentionKey(dataType, category string) string {
	return strings.ToLower(dataType) + "|" + strings.ToLower(category)
}

// --- BreachStore ---

func (s *MemoryStore) SaveBreach(ctx context.Context, breach *models.Breach) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *breach
	s.breaches[breach.ID] = &cp
	return nil
}

func (s *MemoryStore) FindBreachByID(ctx context.Context, id string) (*models.Breach, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.breaches[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *MemoryStore) UpdateBreach(ctx context.Context, breach *models.Breach) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.breaches[breach.ID]; !ok {
		return ErrNotFound
	}
	cp := *breach
	s.breaches[breach.ID] = &cp
	return nil
}

func (s *MemoryStore) ListBreaches(ctx context.Context) ([]*models.Breach, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Breach, 0, len(s.breaches))
	for _, b := range s.breaches {
		cp := *b
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.After(out[j].DetectedAt) })
	return out, nil
}

func (s *MemoryStore) CountDetectedSince(ctx context.Context, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, b := range s.breaches {
		if !b.DetectedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// --- SubjectStore ---

func (s *MemoryStore) PutProfile(profile *models.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *profile
	s.profiles[profile.ID] = &cp
}

func (s *MemoryStore) PutProjects(userID string, rows []map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[userID] = rows
}

func (s *MemoryStore) PutQuotes(userID string, rows []map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[userID] = rows
}

func (s *MemoryStore) PutNotifications(userID string, rows []map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications[userID] = rows
}

func (s *MemoryStore) PutMessages(userID string, msgs []*models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[userID] = copyMessages(msgs)
}

func (s *MemoryStore) PutComments(userID string, cms []*models.Comment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments[userID] = copyComments(cms)
}

func (s *MemoryStore) PutDocuments(userID string, docs []*models.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[userID] = copyDocuments(docs)
}

func (s *MemoryStore) Profile(ctx context.Context, userID string) (*models.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) Projects(ctx context.Context, userID string) ([]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyRows(s.projects[userID]), nil
}

func (s *MemoryStore) Quotes(ctx context.Context, userID string) ([]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyRows(s.quotes[userID]), nil
}

func (s *MemoryStore) Notifications(ctx context.Context, userID string) ([]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyRows(s.notifications[userID]), nil
}

func (s *MemoryStore) Messages(ctx context.Context, userID string) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyMessages(s.messages[userID]), nil
}

func (s *MemoryStore) Comments(ctx context.Context, userID string) ([]*models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyComments(s.comments[userID]), nil
}

func (s *MemoryStore) Documents(ctx context.Context, userID string) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyDocuments(s.documents[userID]), nil
}

func (s *MemoryStore) CountUsers(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles), nil
}

func (s *MemoryStore) AnonymizeProfile(ctx context.Context, userID, anonymizedEmail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return ErrNotFound
	}
	p.Email = anonymizedEmail
	p.Nom = ""
	p.Prenom = ""
	p.Telephone = ""
	p.Entreprise = ""
	p.Adresse = ""
	p.Image = ""
	return nil
}

func (s *MemoryStore) RedactMessages(ctx context.Context, userID, placeholder string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages[userID]
	for _, m := range msgs {
		m.Contenu = placeholder
		m.PhotoURL = nil
	}
	return len(msgs), nil
}

func (s *MemoryStore) RedactComments(ctx context.Context, userID, placeholder string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cms := s.comments[userID]
	for _, c := range cms {
		c.Contenu = placeholder
		c.PhotoURL = nil
	}
	return len(cms), nil
}

func (s *MemoryStore) DeleteDocuments(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.documents[userID])
	delete(s.documents, userID)
	return n, nil
}

// --- helpers ---

func sortConsents(cs []*models.Consent) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Timestamp.Equal(cs[j].Timestamp) {
			return cs[i].ID < cs[j].ID
		}
		return cs[i].Timestamp.After(cs[j].Timestamp)
	})
}

func copyMessages(msgs []*models.Message) []*models.Message {
	out := make([]*models.Message, len(msgs))
	for i, m := range msgs {
		cp := *m
		out[i] = &cp
	}
	return out
}

func copyComments(cms []*models.Comment) []*models.Comment {
	out := make([]*models.Comment, len(cms))
	for i, c := range cms {
		cp := *c
		out[i] = &cp
	}
	return out
}

func copyDocuments(docs []*models.Document) []*models.Document {
	out := make([]*models.Document, len(docs))
	for i, d := range docs {
		cp := *d
		out[i] = &cp
	}
	return out
}

func copyRows(rows []map[string]any) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		cp := make(map[string]any, len(r))
		for k, v := range r {
			cp[k] = v
		}
		out[i] = cp
	}
	return out
}
