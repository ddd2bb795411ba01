package model

import "time"

// Capability is one (NAICS, PSC, maturity) tuple a company declares.
type Capability struct {
	NAICSCode string `json:"naicsCode" yaml:"naics_code"`
	PSCCode   string `json:"pscCode" yaml:"psc_code"`
	Maturity  string `json:"maturity" yaml:"maturity" validate:"omitempty,oneof=emerging established expert"`
}

// Certification keys understood by the set-aside rules.
const (
	Cert8a            = "8a"
	CertHUBZone       = "hubzone"
	CertWOSB          = "wosb"
	CertSDVOSB        = "sdvosb"
	CertSmallBusiness = "small_business"
)

// CompanyProfile describes what a buyer can deliver. It is owned by the
// caller and never modified by scoring.
type CompanyProfile struct {
	ID             string          `json:"id" yaml:"id"`
	OrganizationID string          `json:"organizationId" yaml:"organization_id"`
	Name           string          `json:"name" yaml:"name" validate:"required"`
	Capabilities   []Capability    `json:"capabilities" yaml:"capabilities" validate:"dive"`
	Certifications map[string]bool `json:"certifications" yaml:"certifications"`
	Keywords       []string        `json:"keywords" yaml:"keywords"`
}

// Tier is the bucket a scored opportunity lands in.
type Tier string

const (
	TierMatched   Tier = "matched"
	TierNearMatch Tier = "nearMatch"
	TierStretch   Tier = "stretch"
	TierExcluded  Tier = "excluded"
)

// MatchResult is the per-opportunity scoring output. It is rebuilt on every
// pass and never stored.
type MatchResult struct {
	NoticeID      string   `json:"noticeId"`
	Title         string   `json:"title"`
	NAICSScore    int      `json:"naicsScore"`
	PSCScore      int      `json:"pscScore"`
	KeywordScore  int      `json:"keywordScore"`
	SetAsideScore int      `json:"setAsideScore"`
	Total         int      `json:"total"`
	Tier          Tier     `json:"tier"`
	Reasons       []string `json:"reasons"`
	Gaps          []string `json:"gaps"`
}

// SavedFilter is the criteria blob of a saved search.
type SavedFilter struct {
	Keywords        []string `json:"keywords,omitempty"`
	ExcludeKeywords []string `json:"excludeKeywords,omitempty"`
	NAICSCodes      []string `json:"naicsCodes,omitempty"`
	SetAsides       []string `json:"setAsides,omitempty"`
	Types           []string `json:"types,omitempty"`
}

// SavedSearch mirrors the saved_searches row relevant to the daily sweep.
type SavedSearch struct {
	ID        string
	UserID    string
	Name      string
	Filter    SavedFilter
	IsActive  bool
	LastRunAt *time.Time
}

// Reminder mirrors a reminders row.
type Reminder struct {
	ID       string
	UserID   string
	NoticeID string
	Title    string
	Message  string
	RemindAt time.Time
	Status   string
	SentAt   *time.Time
}
