// Package model defines shared data structures for the discovery service.
package model

import (
	"time"

	"github.com/google/uuid"
)

// RawRecord is one untouched record as returned by the opportunity source.
// It is normalised exactly once, at the ingestion boundary.
type RawRecord map[string]any

// Opportunity is the normalised projection of a source record. Field-name
// variance in the source is resolved by opportunity.Normalize; nothing
// downstream looks at raw field names again.
type Opportunity struct {
	NoticeID           string     `json:"noticeId"`
	Title              string     `json:"title"`
	Type               string     `json:"type"`
	PostedDate         *time.Time `json:"postedDate,omitempty"`
	ResponseDeadline   *time.Time `json:"responseDeadline,omitempty"`
	NAICSCode          string     `json:"naicsCode"`
	PSCCode            string     `json:"pscCode"`
	SetAsideType       string     `json:"setAsideType"`
	ContractingOffice  string     `json:"contractingOffice"`
	PlaceOfPerformance string     `json:"placeOfPerformance"`
	Description        string     `json:"description"`
}

// CachedOpportunity mirrors a cached_opportunities row: the normalised
// snapshot taken on first sight plus visibility metadata.
type CachedOpportunity struct {
	ID int64 `json:"id"`
	Opportunity
	FirstSeenAt     time.Time  `json:"firstSeenAt"`
	LastSeenAt      time.Time  `json:"lastSeenAt"`
	SeenCount       int        `json:"seenCount"`
	RawPayload      RawPayload `json:"-"`
	LinkedTrackedID *string    `json:"linkedTrackedId,omitempty"`
}

// SyncWindow is the inclusive [Start, End] posted-date range of one sync call.
type SyncWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// SearchParams records what a sync call asked the source for.
type SearchParams struct {
	PostedFrom string `json:"postedFrom"`
	PostedTo   string `json:"postedTo"`
	Keyword    string `json:"keyword,omitempty"`
	PageSize   int    `json:"pageSize"`
}

// SearchHistoryRecord is the audit trail of one sync invocation.
// Written once, never updated.
type SearchHistoryRecord struct {
	ID             uuid.UUID    `json:"id"`
	Params         SearchParams `json:"params"`
	TotalAvailable int          `json:"totalAvailable"`
	Fetched        int          `json:"fetched"`
	New            int          `json:"new"`
	Existing       int          `json:"existing"`
	Skipped        int          `json:"skipped"`
	Error          *string      `json:"error,omitempty"`
	InitiatedBy    *string      `json:"initiatedBy,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// Credential is an api_credentials row. A nil OrganizationID marks the
// system-wide credential.
type Credential struct {
	ID             string
	OrganizationID *string
	APIKey         string
}

// MatchHistoryRecord holds the aggregate counts of one scoring pass.
type MatchHistoryRecord struct {
	ID            uuid.UUID `json:"id"`
	ProfileID     string    `json:"profileId"`
	Matched       int       `json:"matched"`
	NearMatch     int       `json:"nearMatch"`
	Stretch       int       `json:"stretch"`
	TotalAnalyzed int       `json:"totalAnalyzed"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Notification is a fire-and-forget message for a recipient.
type Notification struct {
	ID          uuid.UUID      `json:"id"`
	RecipientID string         `json:"recipientId"`
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// Notification types emitted by the scheduler.
const (
	NotificationReminder    = "REMINDER_DUE"
	NotificationSavedSearch = "SAVED_SEARCH_MATCH"
	NotificationNewMatches  = "NEW_OPPORTUNITY_MATCHES"
)
