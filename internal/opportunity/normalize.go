// Package opportunity turns raw source records into the canonical
// model.Opportunity shape. It is the only place that knows about the source's
// field-name variants.
package opportunity

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"govwatch/discovery-service/internal/model"
)

// ErrMissingNoticeID marks a record that carries no usable identifier. Such
// records are skipped, never fatal to a batch.
var ErrMissingNoticeID = errors.New("record has no notice id")

// Field-name variants, in lookup order.
var (
	noticeIDKeys    = []string{"noticeId", "notice_id", "id"}
	titleKeys       = []string{"title", "name"}
	typeKeys        = []string{"type", "baseType", "noticeType", "notice_type"}
	postedKeys      = []string{"postedDate", "posted_date", "publishDate"}
	deadlineKeys    = []string{"responseDeadLine", "responseDeadline", "response_deadline"}
	naicsKeys       = []string{"naicsCode", "naics_code", "naics"}
	pscKeys         = []string{"classificationCode", "pscCode", "psc_code"}
	setAsideKeys    = []string{"typeOfSetAsideDescription", "setAsideType", "set_aside_type", "typeOfSetAside", "setAside"}
	officeKeys      = []string{"fullParentPathName", "contractingOffice", "contracting_office", "organizationName"}
	placeKeys       = []string{"placeOfPerformance", "place_of_performance"}
	descriptionKeys = []string{"description", "desc", "summary"}
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// Normalize projects rec onto model.Opportunity. It returns
// ErrMissingNoticeID when no identifier can be extracted.
func Normalize(rec model.RawRecord) (model.Opportunity, error) {
	id := firstString(rec, noticeIDKeys)
	if id == "" {
		return model.Opportunity{}, ErrMissingNoticeID
	}

	opp := model.Opportunity{
		NoticeID:           id,
		Title:              firstString(rec, titleKeys),
		Type:               firstString(rec, typeKeys),
		NAICSCode:          firstString(rec, naicsKeys),
		PSCCode:            firstString(rec, pscKeys),
		SetAsideType:       firstString(rec, setAsideKeys),
		ContractingOffice:  firstString(rec, officeKeys),
		PlaceOfPerformance: place(rec),
		Description:        firstString(rec, descriptionKeys),
	}
	opp.PostedDate = firstDate(rec, postedKeys)
	opp.ResponseDeadline = firstDate(rec, deadlineKeys)
	return opp, nil
}

// ParseDate accepts every date layout the source has been seen to emit.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

func firstString(rec model.RawRecord, keys []string) string {
	for _, k := range keys {
		v, ok := rec[k]
		if !ok || v == nil {
			continue
		}
		if s := stringify(v); s != "" {
			return s
		}
	}
	return ""
}

func firstDate(rec model.RawRecord, keys []string) *time.Time {
	s := firstString(rec, keys)
	if s == "" {
		return nil
	}
	t, err := ParseDate(s)
	if err != nil {
		return nil
	}
	return &t
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	return ""
}

// place flattens the nested placeOfPerformance object
// ({city:{name}, state:{code}, country:{code}}) into "City, ST, CC".
func place(rec model.RawRecord) string {
	for _, k := range placeKeys {
		switch v := rec[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case map[string]any:
			var parts []string
			for _, field := range []string{"city", "state", "country"} {
				if s := nestedName(v[field]); s != "" {
					parts = append(parts, s)
				}
			}
			if len(parts) > 0 {
				return strings.Join(parts, ", ")
			}
		}
	}
	return ""
}

func nestedName(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		for _, k := range []string{"name", "code"} {
			if s, ok := t[k].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}
