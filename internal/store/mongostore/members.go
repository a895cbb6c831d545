package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tg_roster_bot/internal/domain"
)

type memberCollection interface {
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

// transactionRunner executes fn atomically.
type transactionRunner func(ctx context.Context, fn func(context.Context) error) error

// searchFields are matched, as substrings, by free-text search.
var searchFields = []string{"last_name", "first_name", "member_code", "fiscal_code", "branch"}

// MemberRepository implements domain.MemberRepository over a Mongo collection.
type MemberRepository struct {
	coll memberCollection
	tx   transactionRunner
	now  func() time.Time
}

// NewMemberRepository wraps coll; tx scopes UpsertBatch.
func NewMemberRepository(coll memberCollection, tx transactionRunner) *MemberRepository {
	return &MemberRepository{
		coll: coll,
		tx:   tx,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemberRepository) Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.Member, error) {
	return r.find(ctx, searchFilter(query, opts))
}

func (r *MemberRepository) FindByIdentifier(ctx context.Context, id string) ([]domain.Member, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return []domain.Member{}, nil
	}
	return r.find(ctx, identifierFilter(id))
}

func (r *MemberRepository) FindByTelegramID(ctx context.Context, telegramID int64) ([]domain.Member, error) {
	if telegramID == 0 {
		return []domain.Member{}, nil
	}
	return r.find(ctx, bson.M{"telegram_id": telegramID})
}

func (r *MemberRepository) FindByAuthCode(ctx context.Context, code string) ([]domain.Member, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return []domain.Member{}, nil
	}
	return r.find(ctx, bson.M{"auth_code": exactFold(code)})
}

func (r *MemberRepository) ListEnabled(ctx context.Context) ([]domain.Member, error) {
	return r.find(ctx, enabledFilter())
}

func (r *MemberRepository) ListCodeEligible(ctx context.Context, withoutCodeOnly bool) ([]domain.Member, error) {
	filter := bson.M{"code_eligible": true}
	if withoutCodeOnly {
		filter["auth_code"] = bson.M{"$in": bson.A{nil, ""}}
	}
	return r.find(ctx, filter)
}

func (r *MemberRepository) Update(ctx context.Context, fiscalCode string, patch domain.MemberPatch) error {
	if err := r.ready(ctx); err != nil {
		return err
	}

	filter := bson.M{"fiscal_code": strings.ToUpper(strings.TrimSpace(fiscalCode))}
	res, err := r.coll.UpdateOne(ctx, filter, bson.M{"$set": patchDocument(patch, r.now())})
	if err != nil {
		return fmt.Errorf("update member: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrMemberNotFound
	}
	return nil
}

func (r *MemberRepository) UpsertBatch(ctx context.Context, members []domain.Member) (int, int, error) {
	if err := r.ready(ctx); err != nil {
		return 0, 0, err
	}

	now := r.now()
	batch := make([]domain.Member, 0, len(members))
	for _, m := range members {
		m = domain.NormalizeForImport(m, now)
		if m.FiscalCode == "" {
			return 0, 0, errors.New("upsert members: fiscal code is required")
		}
		batch = append(batch, m)
	}

	var inserted, updated int
	run := func(txCtx context.Context) error {
		// The driver may retry the callback; counts restart with it.
		inserted, updated = 0, 0
		for _, m := range batch {
			res, err := r.coll.UpdateOne(txCtx,
				bson.M{"fiscal_code": m.FiscalCode},
				upsertDocument(m),
				options.Update().SetUpsert(true),
			)
			if err != nil {
				return fmt.Errorf("upsert member %s: %w", m.FiscalCode, err)
			}
			if res.UpsertedCount > 0 {
				inserted++
			} else {
				updated++
			}
		}
		return nil
	}

	if r.tx == nil {
		return 0, 0, errors.New("member repository has no transaction runner")
	}
	if err := r.tx(ctx, run); err != nil {
		return 0, 0, err
	}
	return inserted, updated, nil
}

func (r *MemberRepository) Count(ctx context.Context) (int64, error) {
	if err := r.ready(ctx); err != nil {
		return 0, err
	}

	count, err := r.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return count, nil
}

func (r *MemberRepository) find(ctx context.Context, filter interface{}) ([]domain.Member, error) {
	if err := r.ready(ctx); err != nil {
		return nil, err
	}

	cursor, err := r.coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find members: %w", err)
	}

	members := make([]domain.Member, 0)
	if err := cursor.All(ctx, &members); err != nil {
		return nil, fmt.Errorf("decode members: %w", err)
	}
	domain.SortMembers(members)
	return members, nil
}

func (r *MemberRepository) ready(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if r == nil || r.coll == nil {
		return errors.New("member repository is not initialized")
	}
	return nil
}

func searchFilter(query string, opts domain.SearchOptions) bson.M {
	filter := bson.M{}
	if !opts.MatchesEverything(query) {
		needle := primitive.Regex{Pattern: regexp.QuoteMeta(strings.TrimSpace(query)), Options: "i"}
		or := make(bson.A, 0, len(searchFields))
		for _, field := range searchFields {
			or = append(or, bson.M{field: needle})
		}
		filter["$or"] = or
	}
	if opts.ActiveOnly {
		filter["active"] = true
	}
	return filter
}

func identifierFilter(id string) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"member_code": exactFold(id)},
		bson.M{"fiscal_code": strings.ToUpper(id)},
	}}
}

// enabledFilter selects members carrying a non-blank chat handle.
func enabledFilter() bson.M {
	return bson.M{"telegram_handle": primitive.Regex{Pattern: `\S`}}
}

func exactFold(value string) primitive.Regex {
	return primitive.Regex{Pattern: "^" + regexp.QuoteMeta(value) + "$", Options: "i"}
}

func patchDocument(patch domain.MemberPatch, now time.Time) bson.M {
	set := bson.M{"updated_at": now}
	if patch.Role != nil {
		set["role"] = *patch.Role
	}
	if patch.Active != nil {
		set["active"] = *patch.Active
	}
	if patch.AuthCode != nil {
		set["auth_code"] = *patch.AuthCode
	}
	if patch.TelegramHandle != nil {
		set["telegram_handle"] = *patch.TelegramHandle
	}
	if patch.TelegramID != nil {
		set["telegram_id"] = *patch.TelegramID
	}
	return set
}

// upsertDocument overwrites imported fields and only seeds the bot-managed
// ones on insert.
func upsertDocument(m domain.Member) bson.M {
	return bson.M{
		"$set": bson.M{
			"member_code":       m.MemberCode,
			"first_name":        m.FirstName,
			"last_name":         m.LastName,
			"sex":               m.Sex,
			"birth_date":        m.BirthDate,
			"birth_place":       m.BirthPlace,
			"address":           m.Address,
			"street_number":     m.StreetNumber,
			"city":              m.City,
			"province":          m.Province,
			"postal_code":       m.PostalCode,
			"privacy_consent_a": m.PrivacyConsentA,
			"privacy_consent_b": m.PrivacyConsentB,
			"image_consent":     m.ImageConsent,
			"training_level":    m.TrainingLevel,
			"code_eligible":     m.CodeEligible,
			"branch":            m.Branch,
			"phone":             m.Phone,
			"email":             m.Email,
			"updated_at":        m.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"role":       m.Role,
			"active":     true,
			"created_at": m.CreatedAt,
		},
	}
}

var _ domain.MemberRepository = (*MemberRepository)(nil)
