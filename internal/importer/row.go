package importer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"tg_roster_bot/internal/domain"
)

// ErrInvalidRow marks a roster row that failed validation.
var ErrInvalidRow = errors.New("invalid roster row")

// Spreadsheet column headers.
const (
	ColFiscalCode    = "CodiceFiscale"
	ColMemberCode    = "CodiceSocio"
	ColFirstName     = "Nome"
	ColLastName      = "Cognome"
	ColSex           = "Sesso"
	ColBirthDate     = "DataNascita"
	ColBirthPlace    = "ComuneNascita"
	ColAddress       = "Indirizzo"
	ColStreetNumber  = "Civico"
	ColCity          = "ComuneResidenza"
	ColProvince      = "ProvinciaResidenza"
	ColPostalCode    = "Cap"
	ColPrivacyA      = "Informativa2a"
	ColPrivacyB      = "Informativa2b"
	ColImageConsent  = "ConsensoImmagini"
	ColTrainingLevel = "LivelloFoCa"
	ColUnit          = "CUN"
	ColBranch        = "Branca"
	ColPhone         = "Cellulare"
	ColEmail         = "Email"
)

// RequiredColumns must all be present in a spreadsheet header.
var RequiredColumns = []string{
	ColFiscalCode, ColMemberCode, ColFirstName, ColLastName, ColSex,
	ColBirthDate, ColBranch,
}

var birthDateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"01-02-06",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// Row is one roster record as read from the source, before validation.
type Row struct {
	FiscalCode    string `yaml:"CodiceFiscale"`
	MemberCode    string `yaml:"CodiceSocio"`
	FirstName     string `yaml:"Nome"`
	LastName      string `yaml:"Cognome"`
	Sex           string `yaml:"Sesso"`
	BirthDate     string `yaml:"DataNascita"`
	BirthPlace    string `yaml:"ComuneNascita"`
	Address       string `yaml:"Indirizzo"`
	StreetNumber  string `yaml:"Civico"`
	City          string `yaml:"ComuneResidenza"`
	Province      string `yaml:"ProvinciaResidenza"`
	PostalCode    string `yaml:"Cap"`
	PrivacyA      string `yaml:"Informativa2a"`
	PrivacyB      string `yaml:"Informativa2b"`
	ImageConsent  string `yaml:"ConsensoImmagini"`
	TrainingLevel string `yaml:"LivelloFoCa"`
	Unit          string `yaml:"CUN"`
	Branch        string `yaml:"Branca"`
	Phone         string `yaml:"Cellulare"`
	Email         string `yaml:"Email"`
}

// rowFromRecord maps a header-keyed record onto a Row.
func rowFromRecord(record map[string]string) Row {
	return Row{
		FiscalCode:    record[ColFiscalCode],
		MemberCode:    record[ColMemberCode],
		FirstName:     record[ColFirstName],
		LastName:      record[ColLastName],
		Sex:           record[ColSex],
		BirthDate:     record[ColBirthDate],
		BirthPlace:    record[ColBirthPlace],
		Address:       record[ColAddress],
		StreetNumber:  record[ColStreetNumber],
		City:          record[ColCity],
		Province:      record[ColProvince],
		PostalCode:    record[ColPostalCode],
		PrivacyA:      record[ColPrivacyA],
		PrivacyB:      record[ColPrivacyB],
		ImageConsent:  record[ColImageConsent],
		TrainingLevel: record[ColTrainingLevel],
		Unit:          record[ColUnit],
		Branch:        record[ColBranch],
		Phone:         record[ColPhone],
		Email:         record[ColEmail],
	}
}

// Member validates the row and converts it. Errors wrap ErrInvalidRow.
func (r Row) Member() (domain.Member, error) {
	fiscalCode := strings.ToUpper(strings.TrimSpace(r.FiscalCode))
	if fiscalCode == "" {
		return domain.Member{}, invalid(ColFiscalCode, "is required")
	}

	required := map[string]string{
		ColMemberCode: r.MemberCode,
		ColFirstName:  r.FirstName,
		ColLastName:   r.LastName,
	}
	for _, col := range []string{ColMemberCode, ColFirstName, ColLastName} {
		if strings.TrimSpace(required[col]) == "" {
			return domain.Member{}, invalid(col, "is required")
		}
	}

	sex := domain.Sex(strings.ToUpper(strings.TrimSpace(r.Sex)))
	if sex != domain.SexMale && sex != domain.SexFemale {
		return domain.Member{}, invalid(ColSex, fmt.Sprintf("must be M or F, got %q", r.Sex))
	}

	birthDate, err := parseBirthDate(r.BirthDate)
	if err != nil {
		return domain.Member{}, invalid(ColBirthDate, err.Error())
	}

	branch, ok := domain.ParseBranch(r.Branch)
	if !ok {
		return domain.Member{}, invalid(ColBranch, fmt.Sprintf("unknown branch %q", r.Branch))
	}

	return domain.Member{
		FiscalCode:      fiscalCode,
		MemberCode:      strings.TrimSpace(r.MemberCode),
		FirstName:       strings.TrimSpace(r.FirstName),
		LastName:        strings.TrimSpace(r.LastName),
		Sex:             sex,
		BirthDate:       birthDate,
		BirthPlace:      strings.TrimSpace(r.BirthPlace),
		Address:         strings.TrimSpace(r.Address),
		StreetNumber:    strings.TrimSpace(r.StreetNumber),
		City:            strings.TrimSpace(r.City),
		Province:        province(r.Province),
		PostalCode:      strings.TrimSpace(r.PostalCode),
		PrivacyConsentA: yes(r.PrivacyA),
		PrivacyConsentB: yes(r.PrivacyB),
		ImageConsent:    yes(r.ImageConsent),
		TrainingLevel:   optional(r.TrainingLevel),
		CodeEligible:    strings.EqualFold(strings.TrimSpace(r.Unit), "G"),
		Branch:          branch,
		Phone:           optional(r.Phone),
		Email:           optional(r.Email),
	}, nil
}

func invalid(column, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidRow, column, reason)
}

func parseBirthDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("is required")
	}

	for _, layout := range birthDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}

	// Unformatted cells carry the spreadsheet serial number.
	if serial, err := strconv.ParseFloat(raw, 64); err == nil && serial > 0 {
		t, convErr := excelize.ExcelDateToTime(serial, false)
		if convErr == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognised date %q", raw)
}

func province(raw string) string {
	p := []rune(strings.TrimSpace(raw))
	if len(p) > 2 {
		p = p[:2]
	}
	return strings.ToUpper(string(p))
}

func yes(raw string) bool {
	return strings.EqualFold(strings.TrimSpace(raw), "si")
}

// optional normalizes blank and "nan" spreadsheet values to absent.
func optional(raw string) string {
	v := strings.TrimSpace(raw)
	if strings.EqualFold(v, "nan") {
		return ""
	}
	return v
}
