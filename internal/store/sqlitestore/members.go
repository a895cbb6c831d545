package sqlitestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"tg_roster_bot/internal/domain"
)

type memberRecord struct {
	FiscalCode      string `gorm:"primaryKey;size:32"`
	MemberCode      string `gorm:"index;size:32"`
	FirstName       string
	LastName        string `gorm:"index"`
	Sex             string `gorm:"size:1"`
	BirthDate       time.Time
	BirthPlace      string
	Address         string
	StreetNumber    string
	City            string
	Province        string
	PostalCode      string
	PrivacyConsentA bool
	PrivacyConsentB bool
	ImageConsent    bool
	TrainingLevel   string
	CodeEligible    bool
	Branch          string
	Phone           string
	Email           string
	TelegramHandle  string
	TelegramID      *int64 `gorm:"uniqueIndex"`
	AuthCode        string `gorm:"index"`
	Active          bool
	Role            string `gorm:"size:16"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (memberRecord) TableName() string {
	return "members"
}

func toRecord(m domain.Member) memberRecord {
	rec := memberRecord{
		FiscalCode:      m.FiscalCode,
		MemberCode:      m.MemberCode,
		FirstName:       m.FirstName,
		LastName:        m.LastName,
		Sex:             string(m.Sex),
		BirthDate:       m.BirthDate.UTC(),
		BirthPlace:      m.BirthPlace,
		Address:         m.Address,
		StreetNumber:    m.StreetNumber,
		City:            m.City,
		Province:        m.Province,
		PostalCode:      m.PostalCode,
		PrivacyConsentA: m.PrivacyConsentA,
		PrivacyConsentB: m.PrivacyConsentB,
		ImageConsent:    m.ImageConsent,
		TrainingLevel:   m.TrainingLevel,
		CodeEligible:    m.CodeEligible,
		Branch:          string(m.Branch),
		Phone:           m.Phone,
		Email:           m.Email,
		TelegramHandle:  m.TelegramHandle,
		AuthCode:        m.AuthCode,
		Active:          m.Active,
		Role:            string(m.Role),
		CreatedAt:       m.CreatedAt.UTC(),
		UpdatedAt:       m.UpdatedAt.UTC(),
	}
	if m.TelegramID != 0 {
		id := m.TelegramID
		rec.TelegramID = &id
	}
	return rec
}

func (r memberRecord) toDomain() domain.Member {
	m := domain.Member{
		FiscalCode:      r.FiscalCode,
		MemberCode:      r.MemberCode,
		FirstName:       r.FirstName,
		LastName:        r.LastName,
		Sex:             domain.Sex(r.Sex),
		BirthDate:       r.BirthDate,
		BirthPlace:      r.BirthPlace,
		Address:         r.Address,
		StreetNumber:    r.StreetNumber,
		City:            r.City,
		Province:        r.Province,
		PostalCode:      r.PostalCode,
		PrivacyConsentA: r.PrivacyConsentA,
		PrivacyConsentB: r.PrivacyConsentB,
		ImageConsent:    r.ImageConsent,
		TrainingLevel:   r.TrainingLevel,
		CodeEligible:    r.CodeEligible,
		Branch:          domain.Branch(r.Branch),
		Phone:           r.Phone,
		Email:           r.Email,
		TelegramHandle:  r.TelegramHandle,
		AuthCode:        r.AuthCode,
		Active:          r.Active,
		Role:            domain.Role(r.Role),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.TelegramID != nil {
		m.TelegramID = *r.TelegramID
	}
	return m
}

const searchClause = "instr(lower(last_name), ?) > 0 OR instr(lower(first_name), ?) > 0 OR " +
	"instr(lower(member_code), ?) > 0 OR instr(lower(fiscal_code), ?) > 0 OR instr(lower(branch), ?) > 0"

func (s *Store) Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.Member, error) {
	db, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}

	q := db.Model(&memberRecord{})
	if !opts.MatchesEverything(query) {
		needle := strings.ToLower(strings.TrimSpace(query))
		q = q.Where(searchClause, needle, needle, needle, needle, needle)
	}
	if opts.ActiveOnly {
		q = q.Where("active = ?", true)
	}
	return find(q)
}

func (s *Store) FindByIdentifier(ctx context.Context, id string) ([]domain.Member, error) {
	db, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return []domain.Member{}, nil
	}
	return find(db.Where("lower(member_code) = ? OR fiscal_code = ?", strings.ToLower(id), strings.ToUpper(id)))
}

func (s *Store) FindByTelegramID(ctx context.Context, telegramID int64) ([]domain.Member, error) {
	db, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	if telegramID == 0 {
		return []domain.Member{}, nil
	}
	return find(db.Where("telegram_id = ?", telegramID))
}

func (s *Store) FindByAuthCode(ctx context.Context, code string) ([]domain.Member, error) {
	db, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return []domain.Member{}, nil
	}
	return find(db.Where("lower(auth_code) = ?", strings.ToLower(code)))
}

func (s *Store) ListEnabled(ctx context.Context) ([]domain.Member, error) {
	db, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	return find(db.Where("trim(coalesce(telegram_handle, '')) <> ''"))
}

func (s *Store) ListCodeEligible(ctx context.Context, withoutCodeOnly bool) ([]domain.Member, error) {
	db, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	q := db.Where("code_eligible = ?", true)
	if withoutCodeOnly {
		q = q.Where("coalesce(auth_code, '') = ''")
	}
	return find(q)
}

func (s *Store) Update(ctx context.Context, fiscalCode string, patch domain.MemberPatch) error {
	db, err := s.ready(ctx)
	if err != nil {
		return err
	}

	res := db.Model(&memberRecord{}).
		Where("fiscal_code = ?", strings.ToUpper(strings.TrimSpace(fiscalCode))).
		Updates(patchColumns(patch, time.Now().UTC()))
	if res.Error != nil {
		return fmt.Errorf("update member: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrMemberNotFound
	}
	return nil
}

func (s *Store) UpsertBatch(ctx context.Context, members []domain.Member) (int, int, error) {
	db, err := s.ready(ctx)
	if err != nil {
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
	err = db.Transaction(func(tx *gorm.DB) error {
		for _, m := range batch {
			var existing memberRecord
			err := tx.Where("fiscal_code = ?", m.FiscalCode).Take(&existing).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				m.Active = true
				m.TelegramHandle, m.TelegramID, m.AuthCode = "", 0, ""
				rec := toRecord(m)
				if err := tx.Create(&rec).Error; err != nil {
					return fmt.Errorf("insert member %s: %w", m.FiscalCode, err)
				}
				inserted++
			case err != nil:
				return fmt.Errorf("load member %s: %w", m.FiscalCode, err)
			default:
				current := existing.toDomain()
				m.Role = current.Role
				m.Active = current.Active
				m.TelegramHandle = current.TelegramHandle
				m.TelegramID = current.TelegramID
				m.AuthCode = current.AuthCode
				m.CreatedAt = current.CreatedAt
				rec := toRecord(m)
				if err := tx.Save(&rec).Error; err != nil {
					return fmt.Errorf("update member %s: %w", m.FiscalCode, err)
				}
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
	db, err := s.ready(ctx)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := db.Model(&memberRecord{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return count, nil
}

func find(q *gorm.DB) ([]domain.Member, error) {
	var records []memberRecord
	if err := q.Order("last_name COLLATE NOCASE, first_name COLLATE NOCASE, fiscal_code").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("find members: %w", err)
	}

	members := make([]domain.Member, 0, len(records))
	for _, rec := range records {
		members = append(members, rec.toDomain())
	}
	domain.SortMembers(members)
	return members, nil
}

func patchColumns(patch domain.MemberPatch, now time.Time) map[string]interface{} {
	cols := map[string]interface{}{"updated_at": now}
	if patch.Role != nil {
		cols["role"] = string(*patch.Role)
	}
	if patch.Active != nil {
		cols["active"] = *patch.Active
	}
	if patch.AuthCode != nil {
		cols["auth_code"] = *patch.AuthCode
	}
	if patch.TelegramHandle != nil {
		cols["telegram_handle"] = *patch.TelegramHandle
	}
	if patch.TelegramID != nil {
		if *patch.TelegramID == 0 {
			cols["telegram_id"] = nil
		} else {
			cols["telegram_id"] = *patch.TelegramID
		}
	}
	return cols
}

var _ domain.MemberRepository = (*Store)(nil)
