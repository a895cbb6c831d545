// Package pgstore persists the roster and the audit log in PostgreSQL via pgx.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"tg_roster_bot/internal/domain"
	"tg_roster_bot/internal/logging"
)

const uniqueViolationCode = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS members (
	fiscal_code       text PRIMARY KEY,
	member_code       text NOT NULL DEFAULT '',
	first_name        text NOT NULL DEFAULT '',
	last_name         text NOT NULL DEFAULT '',
	sex               text NOT NULL DEFAULT '',
	birth_date        timestamptz,
	birth_place       text NOT NULL DEFAULT '',
	address           text NOT NULL DEFAULT '',
	street_number     text NOT NULL DEFAULT '',
	city              text NOT NULL DEFAULT '',
	province          text NOT NULL DEFAULT '',
	postal_code       text NOT NULL DEFAULT '',
	privacy_consent_a boolean NOT NULL DEFAULT false,
	privacy_consent_b boolean NOT NULL DEFAULT false,
	image_consent     boolean NOT NULL DEFAULT false,
	training_level    text NOT NULL DEFAULT '',
	code_eligible     boolean NOT NULL DEFAULT false,
	branch            text NOT NULL DEFAULT '',
	phone             text NOT NULL DEFAULT '',
	email             text NOT NULL DEFAULT '',
	telegram_handle   text NOT NULL DEFAULT '',
	telegram_id       bigint,
	auth_code         text NOT NULL DEFAULT '',
	active            boolean NOT NULL DEFAULT true,
	role              text NOT NULL DEFAULT 'member',
	created_at        timestamptz NOT NULL,
	updated_at        timestamptz NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS members_telegram_id_unique ON members (telegram_id);
CREATE INDEX IF NOT EXISTS members_member_code_lower ON members (lower(member_code));
CREATE TABLE IF NOT EXISTS audit_logs (
	id        text PRIMARY KEY,
	logged_at timestamptz NOT NULL,
	username  text NOT NULL DEFAULT '',
	command   text NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS audit_logs_logged_at ON audit_logs (logged_at);
`

// Store owns the connection pool. It implements domain.MemberRepository; the
// audit log is exposed through Audit.
type Store struct {
	pool   *pgxpool.Pool
	logger *logrus.Entry
}

// Open connects to databaseURL, pings it and applies the schema.
func Open(ctx context.Context, databaseURL string, logger *logrus.Entry) (*Store, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{pool: pool, logger: logger}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.WithField("event", "postgres_ready").Info("postgres store ready")
	return s, nil
}

// EnsureSchema creates tables and indexes if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return errors.New("postgres store is not initialized")
	}
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply postgres schema: %w", err)
	}
	return nil
}

// Audit returns the audit log sharing this pool.
func (s *Store) Audit() *AuditLog {
	return &AuditLog{pool: s.pool}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if s == nil || s.pool == nil {
		return errors.New("postgres store is not initialized")
	}
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close(context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

const memberColumns = `fiscal_code, member_code, first_name, last_name, sex, birth_date, birth_place,
	address, street_number, city, province, postal_code, privacy_consent_a, privacy_consent_b,
	image_consent, training_level, code_eligible, branch, phone, email, telegram_handle,
	telegram_id, auth_code, active, role, created_at, updated_at`

const orderMembers = ` ORDER BY lower(last_name), lower(first_name), fiscal_code`

func (s *Store) Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.Member, error) {
	var (
		where []string
		args  []any
	)
	if !opts.MatchesEverything(query) {
		args = append(args, strings.ToLower(strings.TrimSpace(query)))
		where = append(where, `(strpos(lower(last_name), $1) > 0 OR strpos(lower(first_name), $1) > 0 OR
			strpos(lower(member_code), $1) > 0 OR strpos(lower(fiscal_code), $1) > 0 OR strpos(lower(branch), $1) > 0)`)
	}
	if opts.ActiveOnly {
		where = append(where, "active = true")
	}

	sql := `SELECT ` + memberColumns + ` FROM members`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	return s.query(ctx, sql+orderMembers, args...)
}

func (s *Store) FindByIdentifier(ctx context.Context, id string) ([]domain.Member, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return []domain.Member{}, nil
	}
	return s.query(ctx, `SELECT `+memberColumns+` FROM members
		WHERE lower(member_code) = lower($1) OR fiscal_code = upper($1)`+orderMembers, id)
}

func (s *Store) FindByTelegramID(ctx context.Context, telegramID int64) ([]domain.Member, error) {
	if telegramID == 0 {
		return []domain.Member{}, nil
	}
	return s.query(ctx, `SELECT `+memberColumns+` FROM members WHERE telegram_id = $1`+orderMembers, telegramID)
}

func (s *Store) FindByAuthCode(ctx context.Context, code string) ([]domain.Member, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return []domain.Member{}, nil
	}
	return s.query(ctx, `SELECT `+memberColumns+` FROM members WHERE lower(auth_code) = lower($1)`+orderMembers, code)
}

func (s *Store) ListEnabled(ctx context.Context) ([]domain.Member, error) {
	return s.query(ctx, `SELECT `+memberColumns+` FROM members WHERE btrim(telegram_handle) <> ''`+orderMembers)
}

func (s *Store) ListCodeEligible(ctx context.Context, withoutCodeOnly bool) ([]domain.Member, error) {
	sql := `SELECT ` + memberColumns + ` FROM members WHERE code_eligible = true`
	if withoutCodeOnly {
		sql += ` AND auth_code = ''`
	}
	return s.query(ctx, sql+orderMembers)
}

func (s *Store) Update(ctx context.Context, fiscalCode string, patch domain.MemberPatch) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	set, args := patchAssignments(patch, time.Now().UTC())
	args = append(args, strings.ToUpper(strings.TrimSpace(fiscalCode)))
	sql := fmt.Sprintf(`UPDATE members SET %s WHERE fiscal_code = $%d`, set, len(args))

	ct, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		var pe *pgconn.PgError
		if errors.As(err, &pe) && pe.Code == uniqueViolationCode {
			return fmt.Errorf("update member: telegram id already bound: %w", err)
		}
		return fmt.Errorf("update member: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrMemberNotFound
	}
	return nil
}

const upsertMember = `
INSERT INTO members (
	fiscal_code, member_code, first_name, last_name, sex, birth_date, birth_place,
	address, street_number, city, province, postal_code, privacy_consent_a, privacy_consent_b,
	image_consent, training_level, code_eligible, branch, phone, email,
	role, active, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, true, $22, $23)
ON CONFLICT (fiscal_code) DO UPDATE SET
	member_code = EXCLUDED.member_code,
	first_name = EXCLUDED.first_name,
	last_name = EXCLUDED.last_name,
	sex = EXCLUDED.sex,
	birth_date = EXCLUDED.birth_date,
	birth_place = EXCLUDED.birth_place,
	address = EXCLUDED.address,
	street_number = EXCLUDED.street_number,
	city = EXCLUDED.city,
	province = EXCLUDED.province,
	postal_code = EXCLUDED.postal_code,
	privacy_consent_a = EXCLUDED.privacy_consent_a,
	privacy_consent_b = EXCLUDED.privacy_consent_b,
	image_consent = EXCLUDED.image_consent,
	training_level = EXCLUDED.training_level,
	code_eligible = EXCLUDED.code_eligible,
	branch = EXCLUDED.branch,
	phone = EXCLUDED.phone,
	email = EXCLUDED.email,
	updated_at = EXCLUDED.updated_at
RETURNING (xmax = 0) AS inserted`

func (s *Store) UpsertBatch(ctx context.Context, members []domain.Member) (int, int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, 0, err
	}

	now := time.Now().UTC()
	batch := make([]domain.Member, 0, len(members))
	for _, m := range members {
		m = domain.NormalizeForImport(m, now)
		if m.FiscalCode == "" {
			return 0, 0, errors.New("upsert members: fiscal code is required")
		}
		batch = append(batch, m)
	}

	inserted, updated := 0, 0
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, m := range batch {
			var isInsert bool
			err := tx.QueryRow(ctx, upsertMember,
				m.FiscalCode, m.MemberCode, m.FirstName, m.LastName, string(m.Sex), nullTime(m.BirthDate),
				m.BirthPlace, m.Address, m.StreetNumber, m.City, m.Province, m.PostalCode,
				m.PrivacyConsentA, m.PrivacyConsentB, m.ImageConsent, m.TrainingLevel, m.CodeEligible,
				string(m.Branch), m.Phone, m.Email, string(m.Role), m.CreatedAt, m.UpdatedAt,
			).Scan(&isInsert)
			if err != nil {
				return fmt.Errorf("upsert member %s: %w", m.FiscalCode, err)
			}
			if isInsert {
				inserted++
			} else {
				updated++
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return inserted, updated, nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}

	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM members`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return count, nil
}

func (s *Store) query(ctx context.Context, sql string, args ...any) ([]domain.Member, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Member, 0)
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	domain.SortMembers(out)
	return out, nil
}

func (s *Store) ready(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if s == nil || s.pool == nil {
		return errors.New("postgres store is not initialized")
	}
	return nil
}

func scanMember(row interface {
	Scan(dest ...any) error
}) (domain.Member, error) {
	var (
		m          domain.Member
		sex        string
		branch     string
		role       string
		birthDate  *time.Time
		telegramID *int64
	)
	if err := row.Scan(
		&m.FiscalCode, &m.MemberCode, &m.FirstName, &m.LastName, &sex, &birthDate, &m.BirthPlace,
		&m.Address, &m.StreetNumber, &m.City, &m.Province, &m.PostalCode, &m.PrivacyConsentA, &m.PrivacyConsentB,
		&m.ImageConsent, &m.TrainingLevel, &m.CodeEligible, &branch, &m.Phone, &m.Email, &m.TelegramHandle,
		&telegramID, &m.AuthCode, &m.Active, &role, &m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Member{}, domain.ErrMemberNotFound
		}
		return domain.Member{}, fmt.Errorf("scan member: %w", err)
	}

	m.Sex = domain.Sex(sex)
	m.Branch = domain.Branch(branch)
	m.Role = domain.Role(role)
	if birthDate != nil {
		m.BirthDate = birthDate.UTC()
	}
	if telegramID != nil {
		m.TelegramID = *telegramID
	}
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return m, nil
}

// patchAssignments renders the SET list for patch; placeholders start at $1.
func patchAssignments(patch domain.MemberPatch, now time.Time) (string, []any) {
	var (
		cols []string
		args []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		cols = append(cols, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if patch.Role != nil {
		add("role", string(*patch.Role))
	}
	if patch.Active != nil {
		add("active", *patch.Active)
	}
	if patch.AuthCode != nil {
		add("auth_code", *patch.AuthCode)
	}
	if patch.TelegramHandle != nil {
		add("telegram_handle", *patch.TelegramHandle)
	}
	if patch.TelegramID != nil {
		if *patch.TelegramID == 0 {
			add("telegram_id", nil)
		} else {
			add("telegram_id", *patch.TelegramID)
		}
	}
	add("updated_at", now)
	return strings.Join(cols, ", "), args
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

var _ domain.MemberRepository = (*Store)(nil)
