package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"batisecure/internal/gdpr/models"
)

// PostgresStore persists the GDPR records in PostgreSQL. It implements the
// same interfaces as MemoryStore so the controller does not care which one
// it is handed.
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx
}

// NewPostgres constructs a PostgreSQL-backed store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresTx constructs a store bound to an open transaction. Used by
// the erasure path so every mutation commits or rolls back together.
func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{tx: tx}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer() dbExecutor {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// --- ConsentStore ---

func (s *PostgresStore) Save(ctx context.Context, consent *models.Consent) error {
	if consent == nil {
		return fmt.Errorf("consent is required")
	}
	query := `
		INSERT INTO consentements (id, user_id, purpose, granted, ip_address, user_agent, created_at, revoked_at, revoked_ip, revoked_user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.execer().ExecContext(ctx, query,
		consent.ID,
		consent.UserID,
		string(consent.Purpose),
		consent.Granted,
		consent.IPAddress,
		consent.UserAgent,
		consent.Timestamp,
		consent.RevokedAt,
		consent.RevokedIPAddress,
		consent.RevokedUserAgent,
	)
	if err != nil {
		return fmt.Errorf("save consent: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string, filter *models.ConsentFilter) ([]*models.Consent, error) {
	query := `
		SELECT id, user_id, purpose, granted, ip_address, user_agent, created_at, revoked_at, revoked_ip, revoked_user_agent
		FROM consentements
		WHERE user_id = $1
	`
	args := []any{userID}
	if filter != nil && filter.Purpose != nil {
		args = append(args, string(*filter.Purpose))
		query += fmt.Sprintf(" AND purpose = $%d", len(args))
	}
	if filter != nil && filter.ActiveOnly {
		query += " AND granted AND revoked_at IS NULL"
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := s.execer().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list consents: %w", err)
	}
	defer rows.Close()

	var out []*models.Consent
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consent: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consents: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ActiveByUserAndPurpose(ctx context.Context, userID string, purpose models.Purpose) ([]*models.Consent, error) {
	return s.ListByUser(ctx, userID, &models.ConsentFilter{Purpose: &purpose, ActiveOnly: true})
}

func (s *PostgresStore) Revoke(ctx context.Context, userID string, purpose models.Purpose, revokedAt time.Time, ip, userAgent string) ([]*models.Consent, error) {
	query := `
		UPDATE consentements
		SET revoked_at = $3, revoked_ip = $4, revoked_user_agent = $5
		WHERE user_id = $1 AND purpose = $2 AND granted AND revoked_at IS NULL
		RETURNING id, user_id, purpose, granted, ip_address, user_agent, created_at, revoked_at, revoked_ip, revoked_user_agent
	`
	rows, err := s.execer().QueryContext(ctx, query, userID, string(purpose), revokedAt, ip, userAgent)
	if err != nil {
		return nil, fmt.Errorf("revoke consent: %w", err)
	}
	defer rows.Close()

	var out []*models.Consent
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consent: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consents: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

func (s *PostgresStore) CountActiveByPurpose(ctx context.Context) (map[models.Purpose]int, error) {
	query := `
		SELECT purpose, COUNT(*)
		FROM consentements
		WHERE granted AND revoked_at IS NULL
		GROUP BY purpose
	`
	rows, err := s.execer().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count consents: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Purpose]int)
	for rows.Next() {
		var purpose string
		var n int
		if err := rows.Scan(&purpose, &n); err != nil {
			return nil, fmt.Errorf("scan consent count: %w", err)
		}
		counts[models.Purpose(purpose)] = n
	}
	return counts, rows.Err()
}

func (s *PostgresStore) CountActive(ctx context.Context) (int, error) {
	var n int
	err := s.execer().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM consentements WHERE granted AND revoked_at IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active consents: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConsent(row rowScanner) (*models.Consent, error) {
	var c models.Consent
	var purpose string
	var revokedAt sql.NullTime
	var revokedIP, revokedUA sql.NullString
	err := row.Scan(&c.ID, &c.UserID, &purpose, &c.Granted, &c.IPAddress, &c.UserAgent,
		&c.Timestamp, &revokedAt, &revokedIP, &revokedUA)
	if err != nil {
		return nil, err
	}
	c.Purpose = models.Purpose(purpose)
	if revokedAt.Valid {
		t := revokedAt.Time
		c.RevokedAt = &t
	}
	c.RevokedIPAddress = revokedIP.String
	c.RevokedUserAgent = revokedUA.String
	return &c, nil
}

// --- RightsStore ---

func (s *PostgresStore) SaveRequest(ctx context.Context, request *models.RightsRequest) error {
	requestData, err := json.Marshal(request.RequestData)
	if err != nil {
		return fmt.Errorf("encode request data: %w", err)
	}
	processedData, err := json.Marshal(request.ProcessedData)
	if err != nil {
		return fmt.Errorf("encode processed data: %w", err)
	}
	query := `
		INSERT INTO demandes_rgpd (id, user_id, type, status, request_data, processed_data, processor_user_id, response_note, created_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10)
	`
	_, err = s.execer().ExecContext(ctx, query,
		request.ID,
		request.UserID,
		string(request.Type),
		string(request.Status),
		requestData,
		processedData,
		request.ProcessorUserID,
		request.ResponseNote,
		request.CreatedAt,
		request.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("save rights request: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindRequestByID(ctx context.Context, id string) (*models.RightsRequest, error) {
	query := `
		SELECT id, user_id, type, status, request_data, processed_data, COALESCE(processor_user_id, ''), response_note, created_at, processed_at
		FROM demandes_rgpd
		WHERE id = $1
	`
	r, err := scanRequest(s.execer().QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find rights request: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) UpdateRequest(ctx context.Context, request *models.RightsRequest) error {
	processedData, err := json.Marshal(request.ProcessedData)
	if err != nil {
		return fmt.Errorf("encode processed data: %w", err)
	}
	query := `
		UPDATE demandes_rgpd
		SET status = $2, processed_data = $3, processor_user_id = NULLIF($4, ''), response_note = $5, processed_at = $6
		WHERE id = $1
	`
	res, err := s.execer().ExecContext(ctx, query,
		request.ID,
		string(request.Status),
		processedData,
		request.ProcessorUserID,
		request.ResponseNote,
		request.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("update rights request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update rights request: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListRequestsByUser(ctx context.Context, userID string) ([]*models.RightsRequest, error) {
	query := `
		SELECT id, user_id, type, status, request_data, processed_data, COALESCE(processor_user_id, ''), response_note, created_at, processed_at
		FROM demandes_rgpd
		WHERE user_id = $1
		ORDER BY created_at DESC, id
	`
	return s.queryRequests(ctx, query, userID)
}

func (s *PostgresStore) ListRequests(ctx context.Context, filter *models.RequestFilter) ([]*models.RightsRequest, error) {
	query := `
		SELECT id, user_id, type, status, request_data, processed_data, COALESCE(processor_user_id, ''), response_note, created_at, processed_at
		FROM demandes_rgpd
		WHERE 1=1
	`
	var args []any
	if filter != nil {
		if filter.Type != nil {
			args = append(args, string(*filter.Type))
			query += fmt.Sprintf(" AND type = $%d", len(args))
		}
		if filter.Status != nil {
			args = append(args, string(*filter.Status))
			query += fmt.Sprintf(" AND status = $%d", len(args))
		}
		if filter.From != nil {
			args = append(args, *filter.From)
			query += fmt.Sprintf(" AND created_at >= $%d", len(args))
		}
		if filter.To != nil {
			args = append(args, *filter.To)
			query += fmt.Sprintf(" AND created_at <= $%d", len(args))
		}
	}
	query += " ORDER BY created_at DESC, id"
	return s.queryRequests(ctx, query, args...)
}

func (s *PostgresStore) CountRequestsByStatus(ctx context.Context, status models.RequestStatus) (int, error) {
	var n int
	err := s.execer().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM demandes_rgpd WHERE status = $1`, string(status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count rights requests: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) queryRequests(ctx context.Context, query string, args ...any) ([]*models.RightsRequest, error) {
	rows, err := s.execer().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rights requests: %w", err)
	}
	defer rows.Close()

	var out []*models.RightsRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rights request: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rights requests: %w", err)
	}
	return out, nil
}

func scanRequest(row rowScanner) (*models.RightsRequest, error) {
	var r models.RightsRequest
	var reqType, status string
	var requestData, processedData []byte
	var processedAt sql.NullTime
	err := row.Scan(&r.ID, &r.UserID, &reqType, &status, &requestData, &processedData,
		&r.ProcessorUserID, &r.ResponseNote, &r.CreatedAt, &processedAt)
	if err != nil {
		return nil, err
	}
	r.Type = models.RequestType(reqType)
	r.Status = models.RequestStatus(status)
	if len(requestData) > 0 {
		if err := json.Unmarshal(requestData, &r.RequestData); err != nil {
			return nil, fmt.Errorf("decode request data: %w", err)
		}
	}
	if len(processedData) > 0 {
		if err := json.Unmarshal(processedData, &r.ProcessedData); err != nil {
			return nil, fmt.Errorf("decode processed data: %w", err)
		}
	}
	if processedAt.Valid {
		t := processedAt.Time
		r.ProcessedAt = &t
	}
	return &r, nil
}

// --- ProcessingLogStore ---

func (s *PostgresStore) AppendLog(ctx context.Context, entry *models.ProcessingLog) error {
	query := `
		INSERT INTO journal_traitements (id, user_id, data_type, operation, lawful_basis, purpose, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.execer().ExecContext(ctx, query,
		entry.ID,
		entry.UserID,
		entry.DataType,
		entry.Operation,
		string(entry.LawfulBasis),
		entry.Purpose,
		entry.Source,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append processing log: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListLogsByUser(ctx context.Context, userID string) ([]*models.ProcessingLog, error) {
	query := `
		SELECT id, user_id, data_type, operation, lawful_basis, purpose, source, created_at
		FROM journal_traitements
		WHERE user_id = $1
		ORDER BY created_at, id
	`
	return s.queryLogs(ctx, query, userID)
}

func (s *PostgresStore) ListLogsBetween(ctx context.Context, from, to time.Time) ([]*models.ProcessingLog, error) {
	query := `
		SELECT id, user_id, data_type, operation, lawful_basis, purpose, source, created_at
		FROM journal_traitements
		WHERE created_at >= $1 AND created_at <= $2
		ORDER BY created_at, id
	`
	return s.queryLogs(ctx, query, from, to)
}

func (s *PostgresStore) queryLogs(ctx context.Context, query string, args ...any) ([]*models.ProcessingLog, error) {
	rows, err := s.execer().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list processing logs: %w", err)
	}
	defer rows.Close()

	var out []*models.ProcessingLog
	for rows.Next() {
		var l models.ProcessingLog
		var basis string
		if err := rows.Scan(&l.ID, &l.UserID, &l.DataType, &l.Operation, &basis, &l.Purpose, &l.Source, &l.Timestamp); err != nil {
			return nil, fmt.Errorf("scan processing log: %w", err)
		}
		l.LawfulBasis = models.LawfulBasis(basis)
		out = append(out, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate processing logs: %w", err)
	}
	return out, nil
}

// --- RetentionStore ---

func (s *PostgresStore) Upsert(ctx context.Context, policy *models.RetentionPolicy) error {
	query := `
		INSERT INTO retention_policies (data_type, category, retention_days, lawful_basis, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (data_type, category) DO UPDATE
		SET retention_days = EXCLUDED.retention_days,
		    lawful_basis = EXCLUDED.lawful_basis,
		    updated_at = EXCLUDED.updated_at
	`
	_, err := s.execer().ExecContext(ctx, query,
		policy.DataType,
		policy.Category,
		policy.RetentionDays,
		string(policy.LawfulBasis),
		policy.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert retention policy: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.RetentionPolicy, error) {
	query := `
		SELECT data_type, category, retention_days, lawful_basis, updated_at
		FROM retention_policies
		ORDER BY data_type, category
	`
	rows, err := s.execer().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list retention policies: %w", err)
	}
	defer rows.Close()

	var out []*models.RetentionPolicy
	for rows.Next() {
		var p models.RetentionPolicy
		var basis string
		if err := rows.Scan(&p.DataType, &p.Category, &p.RetentionDays, &basis, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan retention policy: %w", err)
		}
		p.LawfulBasis = models.LawfulBasis(basis)
		out = append(out, &p)
	}
	return out, rows.Err()
}

// --- BreachStore ---

func (s *PostgresStore) SaveBreach(ctx context.Context, breach *models.Breach) error {
	dataTypes, err := json.Marshal(breach.AffectedDataTypes)
	if err != nil {
		return fmt.Errorf("encode affected data types: %w", err)
	}
	actions, err := json.Marshal(breach.MitigationActions)
	if err != nil {
		return fmt.Errorf("encode mitigation actions: %w", err)
	}
	query := `
		INSERT INTO violations_donnees (id, title, description, severity, affected_data_types, affected_users_count, reported_by, occurred_at, detected_at, status, mitigation_actions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = s.execer().ExecContext(ctx, query,
		breach.ID,
		breach.Title,
		breach.Description,
		string(breach.Severity),
		dataTypes,
		breach.AffectedUsersCount,
		breach.ReportedBy,
		breach.OccurredAt,
		breach.DetectedAt,
		string(breach.Status),
		actions,
	)
	if err != nil {
		return fmt.Errorf("save breach: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindBreachByID(ctx context.Context, id string) (*models.Breach, error) {
	query := `
		SELECT id, title, description, severity, affected_data_types, affected_users_count, reported_by, occurred_at, detected_at, status, mitigation_actions
		FROM violations_donnees
		WHERE id = $1
	`
	b, err := scanBreach(s.execer().QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find breach: %w", err)
	}
	return b, nil
}

func (s *PostgresStore) UpdateBreach(ctx context.Context, breach *models.Breach) error {
	actions, err := json.Marshal(breach.MitigationActions)
	if err != nil {
		return fmt.Errorf("encode mitigation actions: %w", err)
	}
	query := `
		UPDATE violations_donnees
		SET severity = $2, affected_users_count = $3, status = $4, mitigation_actions = $5
		WHERE id = $1
	`
	res, err := s.execer().ExecContext(ctx, query,
		breach.ID,
		string(breach.Severity),
		breach.AffectedUsersCount,
		string(breach.Status),
		actions,
	)
	if err != nil {
		return fmt.Errorf("update breach: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update breach: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListBreaches(ctx context.Context) ([]*models.Breach, error) {
	query := `
		SELECT id, title, description, severity, affected_data_types, affected_users_count, reported_by, occurred_at, detected_at, status, mitigation_actions
		FROM violations_donnees
		ORDER BY detected_at DESC, id
	`
	rows, err := s.execer().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list breaches: %w", err)
	}
	defer rows.Close()

	var out []*models.Breach
	for rows.Next() {
		b, err := scanBreach(rows)
		if err != nil {
			return nil, fmt.Errorf("scan breach: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountDetectedSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.execer().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM violations_donnees WHERE detected_at >= $1`, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count breaches: %w", err)
	}
	return n, nil
}

func scanBreach(row rowScanner) (*models.Breach, error) {
	var b models.Breach
	var severity, status string
	var dataTypes, actions []byte
	err := row.Scan(&b.ID, &b.Title, &b.Description, &severity, &dataTypes, &b.AffectedUsersCount,
		&b.ReportedBy, &b.OccurredAt, &b.DetectedAt, &status, &actions)
	if err != nil {
		return nil, err
	}
	b.Severity = models.BreachSeverity(severity)
	b.Status = models.BreachStatus(status)
	if len(dataTypes) > 0 {
		if err := json.Unmarshal(dataTypes, &b.AffectedDataTypes); err != nil {
			return nil, fmt.Errorf("decode affected data types: %w", err)
		}
	}
	if len(actions) > 0 {
		if err := json.Unmarshal(actions, &b.MitigationActions); err != nil {
			return nil, fmt.Errorf("decode mitigation actions: %w", err)
		}
	}
	return &b, nil
}

// --- SubjectStore ---

func (s *PostgresStore) Profile(ctx context.Context, userID string) (*models.UserProfile, error) {
	query := `
		SELECT id, email, COALESCE(nom, ''), COALESCE(prenom, ''), COALESCE(telephone, ''),
		       COALESCE(entreprise, ''), COALESCE(adresse, ''), COALESCE(image, ''), role, created_at
		FROM users
		WHERE id = $1
	`
	var p models.UserProfile
	err := s.execer().QueryRowContext(ctx, query, userID).Scan(
		&p.ID, &p.Email, &p.Nom, &p.Prenom, &p.Telephone,
		&p.Entreprise, &p.Adresse, &p.Image, &p.Role, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find profile: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) Projects(ctx context.Context, userID string) ([]map[string]any, error) {
	return s.queryGeneric(ctx,
		`SELECT id, nom, description, statut, date_debut, date_fin, created_at FROM chantiers WHERE client_id = $1 ORDER BY created_at`,
		userID)
}

func (s *PostgresStore) Quotes(ctx context.Context, userID string) ([]map[string]any, error) {
	return s.queryGeneric(ctx,
		`SELECT id, reference, montant, statut, created_at FROM devis WHERE client_id = $1 ORDER BY created_at`,
		userID)
}

func (s *PostgresStore) Notifications(ctx context.Context, userID string) ([]map[string]any, error) {
	return s.queryGeneric(ctx,
		`SELECT id, titre, contenu, lu, created_at FROM notifications WHERE user_id = $1 ORDER BY created_at`,
		userID)
}

func (s *PostgresStore) Messages(ctx context.Context, userID string) ([]*models.Message, error) {
	query := `
		SELECT id, user_id, contenu, photo_url, created_at
		FROM messages
		WHERE user_id = $1
		ORDER BY created_at, id
	`
	rows, err := s.execer().QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.UserID, &m.Contenu, &m.PhotoURL, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Comments(ctx context.Context, userID string) ([]*models.Comment, error) {
	query := `
		SELECT id, user_id, contenu, photo_url, created_at
		FROM commentaires
		WHERE user_id = $1
		ORDER BY created_at, id
	`
	rows, err := s.execer().QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var out []*models.Comment
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.UserID, &c.Contenu, &c.PhotoURL, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Documents(ctx context.Context, userID string) ([]*models.Document, error) {
	query := `
		SELECT id, user_id, nom, chemin, created_at
		FROM documents
		WHERE user_id = $1
		ORDER BY created_at, id
	`
	rows, err := s.execer().QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []*models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(&d.ID, &d.UserID, &d.Nom, &d.Chemin, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.execer().QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) AnonymizeProfile(ctx context.Context, userID, anonymizedEmail string) error {
	query := `
		UPDATE users
		SET email = $2, nom = '', prenom = '', telephone = NULL,
		    entreprise = NULL, adresse = NULL, image = NULL
		WHERE id = $1
	`
	res, err := s.execer().ExecContext(ctx, query, userID, anonymizedEmail)
	if err != nil {
		return fmt.Errorf("anonymize profile: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("anonymize profile: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) RedactMessages(ctx context.Context, userID, placeholder string) (int, error) {
	res, err := s.execer().ExecContext(ctx,
		`UPDATE messages SET contenu = $2, photo_url = NULL WHERE user_id = $1`,
		userID, placeholder)
	if err != nil {
		return 0, fmt.Errorf("redact messages: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("redact messages: %w", err)
	}
	return int(affected), nil
}

func (s *PostgresStore) RedactComments(ctx context.Context, userID, placeholder string) (int, error) {
	res, err := s.execer().ExecContext(ctx,
		`UPDATE commentaires SET contenu = $2, photo_url = NULL WHERE user_id = $1`,
		userID, placeholder)
	if err != nil {
		return 0, fmt.Errorf("redact comments: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("redact comments: %w", err)
	}
	return int(affected), nil
}

func (s *PostgresStore) DeleteDocuments(ctx context.Context, userID string) (int, error) {
	res, err := s.execer().ExecContext(ctx,
		`DELETE FROM documents WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete documents: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete documents: %w", err)
	}
	return int(affected), nil
}

func (s *PostgresStore) queryGeneric(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := s.execer().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = vals[i]
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
