package domain

import (
	"strings"
	"time"
)

// Sex drives grammatical gender in generated text.
type Sex string

const (
	SexMale   Sex = "M"
	SexFemale Sex = "F"
)

// Branch is the unit a member belongs to.
type Branch string

const (
	BranchCubs   Branch = "Branca L/C"
	BranchScouts Branch = "Branca E/G"
	BranchRovers Branch = "Branca R/S"
	BranchAdults Branch = "Adulti"
)

// Branches lists every branch in display order.
var Branches = []Branch{BranchCubs, BranchScouts, BranchRovers, BranchAdults}

// DisplayName returns the label shown in chat; adults are the Co.Ca.
func (b Branch) DisplayName() string {
	if b == BranchAdults {
		return "Co.Ca."
	}
	return string(b)
}

// ParseBranch matches the stored label, case-insensitively, or the short
// unit names (L/C, E/G, R/S).
func ParseBranch(value string) (Branch, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, b := range Branches {
		label := strings.ToLower(string(b))
		if normalized == label || normalized == strings.TrimPrefix(label, "branca ") {
			return b, true
		}
	}
	if normalized == "co.ca." || normalized == "coca" {
		return BranchAdults, true
	}
	return "", false
}

// Member represents one roster entry. FiscalCode is the immutable natural key.
// TelegramID is zero while the member has not bound a chat identity.
type Member struct {
	FiscalCode      string    `bson:"fiscal_code" json:"fiscal_code"`
	MemberCode      string    `bson:"member_code" json:"member_code"`
	FirstName       string    `bson:"first_name" json:"first_name"`
	LastName        string    `bson:"last_name" json:"last_name"`
	Sex             Sex       `bson:"sex" json:"sex"`
	BirthDate       time.Time `bson:"birth_date" json:"birth_date"`
	BirthPlace      string    `bson:"birth_place" json:"birth_place"`
	Address         string    `bson:"address" json:"address"`
	StreetNumber    string    `bson:"street_number" json:"street_number"`
	City            string    `bson:"city" json:"city"`
	Province        string    `bson:"province" json:"province"`
	PostalCode      string    `bson:"postal_code" json:"postal_code"`
	PrivacyConsentA bool      `bson:"privacy_consent_a" json:"privacy_consent_a"`
	PrivacyConsentB bool      `bson:"privacy_consent_b" json:"privacy_consent_b"`
	ImageConsent    bool      `bson:"image_consent" json:"image_consent"`
	TrainingLevel   string    `bson:"training_level,omitempty" json:"training_level,omitempty"`
	CodeEligible    bool      `bson:"code_eligible" json:"code_eligible"`
	Branch          Branch    `bson:"branch" json:"branch"`
	Phone           string    `bson:"phone,omitempty" json:"phone,omitempty"`
	Email           string    `bson:"email,omitempty" json:"email,omitempty"`
	TelegramHandle  string    `bson:"telegram_handle,omitempty" json:"telegram_handle,omitempty"`
	TelegramID      int64     `bson:"telegram_id,omitempty" json:"telegram_id,omitempty"`
	AuthCode        string    `bson:"auth_code,omitempty" json:"auth_code,omitempty"`
	Active          bool      `bson:"active" json:"active"`
	Role            Role      `bson:"role" json:"role"`
	CreatedAt       time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at" json:"updated_at"`
}

// FullName is "First Last".
func (m Member) FullName() string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

// Gendered picks the masculine or feminine form for the member.
func (m Member) Gendered(masculine, feminine string) string {
	if m.Sex == SexMale {
		return masculine
	}
	return feminine
}

// Bound reports whether a chat identity is attached.
func (m Member) Bound() bool {
	return m.TelegramID != 0
}

// Enabled mirrors the enabled-members view: a bound handle, excluding members
// that are both unbound and inactive.
func (m Member) Enabled() bool {
	hasHandle := strings.TrimSpace(m.TelegramHandle) != ""
	return hasHandle && !(!hasHandle && !m.Active)
}

// SameIdentity reports whether two records describe the same person, by
// membership code (case-insensitive) or fiscal code.
func (m Member) SameIdentity(other Member) bool {
	if m.MemberCode != "" && strings.EqualFold(m.MemberCode, other.MemberCode) {
		return true
	}
	return m.FiscalCode != "" && strings.EqualFold(m.FiscalCode, other.FiscalCode)
}

// Matches reports whether q is a case-insensitive substring of the searchable
// fields: last name, first name, membership code, fiscal code or branch.
func (m Member) Matches(q string) bool {
	needle := strings.ToLower(q)
	for _, field := range []string{m.LastName, m.FirstName, m.MemberCode, m.FiscalCode, string(m.Branch)} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

// HasIdentifier reports an exact case-insensitive match on membership or
// fiscal code.
func (m Member) HasIdentifier(id string) bool {
	return strings.EqualFold(m.MemberCode, id) || strings.EqualFold(m.FiscalCode, id)
}

// MemberPatch carries the fields command handlers may change; nil fields are
// left untouched.
type MemberPatch struct {
	Role           *Role
	Active         *bool
	AuthCode       *string
	TelegramHandle *string
	TelegramID     *int64
}

// Empty reports whether the patch changes nothing.
func (p MemberPatch) Empty() bool {
	return p.Role == nil && p.Active == nil && p.AuthCode == nil && p.TelegramHandle == nil && p.TelegramID == nil
}

// Apply copies the set fields onto m.
func (p MemberPatch) Apply(m *Member) {
	if p.Role != nil {
		m.Role = *p.Role
	}
	if p.Active != nil {
		m.Active = *p.Active
	}
	if p.AuthCode != nil {
		m.AuthCode = *p.AuthCode
	}
	if p.TelegramHandle != nil {
		m.TelegramHandle = *p.TelegramHandle
	}
	if p.TelegramID != nil {
		m.TelegramID = *p.TelegramID
	}
}

// SetRole builds a patch changing only the role.
func SetRole(role Role) MemberPatch {
	return MemberPatch{Role: &role}
}

// SetActive builds a patch changing only the active flag.
func SetActive(active bool) MemberPatch {
	return MemberPatch{Active: &active}
}

// SetAuthCode builds a patch changing only the authorization code.
func SetAuthCode(code string) MemberPatch {
	return MemberPatch{AuthCode: &code}
}

// BindTelegram builds a patch attaching a chat identity.
func BindTelegram(handle string, id int64) MemberPatch {
	return MemberPatch{TelegramHandle: &handle, TelegramID: &id}
}
