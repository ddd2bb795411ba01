package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"govwatch/discovery-service/internal/model"
)

// ─── Service ─────────────────────────────────────────────────────────────────

// Service reads and updates reminders, saved searches and company profiles.
// It is transport-agnostic: used by the scheduler and the CLI.
type Service struct {
	pool *pgxpool.Pool
}

// NewService returns a configured Service.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// ─── Reminders ───────────────────────────────────────────────────────────────

const reminderColumns = `id, user_id, notice_id, title, message, remind_at, status, sent_at`

// CreateReminder inserts a PENDING reminder.
func (s *Service) CreateReminder(ctx context.Context, r model.Reminder) (*model.Reminder, error) {
	if strings.TrimSpace(r.UserID) == "" || strings.TrimSpace(r.NoticeID) == "" {
		return nil, &ValidationError{Msg: "userId and noticeId are required"}
	}
	if r.RemindAt.IsZero() {
		return nil, &ValidationError{Msg: "remindAt is required"}
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO reminders (id, user_id, notice_id, title, message, remind_at, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+reminderColumns,
		r.ID, r.UserID, r.NoticeID, r.Title, r.Message, r.RemindAt, string(StatusPending),
	)
	out, err := scanReminder(row)
	if err != nil {
		return nil, fmt.Errorf("createReminder: %w", err)
	}
	return out, nil
}

// DueReminders returns PENDING reminders whose time has come, oldest first.
func (s *Service) DueReminders(ctx context.Context, now time.Time) ([]model.Reminder, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+reminderColumns+` FROM reminders
		 WHERE status = $1 AND remind_at <= $2
		 ORDER BY remind_at ASC`,
		string(StatusPending), now,
	)
	if err != nil {
		return nil, fmt.Errorf("dueReminders query: %w", err)
	}
	defer rows.Close()

	out := make([]model.Reminder, 0)
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("dueReminders scan: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// MarkSent moves a reminder PENDING → SENT, stamping sent_at.
func (s *Service) MarkSent(ctx context.Context, id string, at time.Time) error {
	return s.transition(ctx, id, StatusSent, &at)
}

// CancelReminder moves a reminder PENDING → CANCELLED.
func (s *Service) CancelReminder(ctx context.Context, id string) error {
	return s.transition(ctx, id, StatusCancelled, nil)
}

// transition applies one state-machine step. The update is conditional on
// the status read, so two sweepers racing on a reminder cannot both win.
func (s *Service) transition(ctx context.Context, id string, to Status, sentAt *time.Time) error {
	var currentStr string
	err := s.pool.QueryRow(ctx, `SELECT status FROM reminders WHERE id = $1`, id).Scan(&currentStr)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("transition read: %w", err)
	}

	current, err := ParseStatus(currentStr)
	if err != nil {
		return &ValidationError{Msg: err.Error()}
	}
	if !IsTransitionAllowed(current, to) {
		return &ValidationError{Msg: fmt.Sprintf("transition %s → %s is not allowed", current, to)}
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE reminders SET status = $1, sent_at = COALESCE($2, sent_at)
		 WHERE id = $3 AND status = $4`,
		string(to), sentAt, id, string(current),
	)
	if err != nil {
		return fmt.Errorf("transition update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// ─── Saved searches ──────────────────────────────────────────────────────────

// CreateSavedSearch stores an active saved search.
func (s *Service) CreateSavedSearch(ctx context.Context, ss model.SavedSearch) (*model.SavedSearch, error) {
	if strings.TrimSpace(ss.UserID) == "" || strings.TrimSpace(ss.Name) == "" {
		return nil, &ValidationError{Msg: "userId and name are required"}
	}
	if ss.ID == "" {
		ss.ID = uuid.NewString()
	}
	filters, err := json.Marshal(ss.Filter)
	if err != nil {
		return nil, fmt.Errorf("encode filters: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO saved_searches (id, user_id, name, filters, is_active)
		 VALUES ($1, $2, $3, $4::jsonb, TRUE)`,
		ss.ID, ss.UserID, ss.Name, string(filters),
	)
	if err != nil {
		return nil, fmt.Errorf("createSavedSearch: %w", err)
	}
	ss.IsActive = true
	return &ss, nil
}

// ActiveSavedSearches returns every is_active saved search.
func (s *Service) ActiveSavedSearches(ctx context.Context) ([]model.SavedSearch, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, filters, is_active, last_run_at
		 FROM saved_searches WHERE is_active = TRUE ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("activeSavedSearches query: %w", err)
	}
	defer rows.Close()

	out := make([]model.SavedSearch, 0)
	for rows.Next() {
		var (
			ss      model.SavedSearch
			filters []byte
		)
		if err := rows.Scan(&ss.ID, &ss.UserID, &ss.Name, &filters, &ss.IsActive, &ss.LastRunAt); err != nil {
			return nil, fmt.Errorf("activeSavedSearches scan: %w", err)
		}
		if err := json.Unmarshal(filters, &ss.Filter); err != nil {
			return nil, fmt.Errorf("saved search %s: decode filters: %w", ss.ID, err)
		}
		out = append(out, ss)
	}
	return out, rows.Err()
}

// MarkSavedSearchRun records a successful evaluation, whether or not it
// matched anything.
func (s *Service) MarkSavedSearchRun(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE saved_searches SET last_run_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("markSavedSearchRun: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ─── Company profiles ────────────────────────────────────────────────────────

// ActiveProfiles returns every is_active company profile.
func (s *Service) ActiveProfiles(ctx context.Context) ([]model.CompanyProfile, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, organization_id, name, capabilities, certifications, keywords
		 FROM company_profiles WHERE is_active = TRUE ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("activeProfiles query: %w", err)
	}
	defer rows.Close()

	out := make([]model.CompanyProfile, 0)
	for rows.Next() {
		var (
			p           model.CompanyProfile
			caps, certs []byte
		)
		if err := rows.Scan(&p.ID, &p.OrganizationID, &p.Name, &caps, &certs, &p.Keywords); err != nil {
			return nil, fmt.Errorf("activeProfiles scan: %w", err)
		}
		if err := json.Unmarshal(caps, &p.Capabilities); err != nil {
			return nil, fmt.Errorf("profile %s: decode capabilities: %w", p.ID, err)
		}
		if err := json.Unmarshal(certs, &p.Certifications); err != nil {
			return nil, fmt.Errorf("profile %s: decode certifications: %w", p.ID, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanReminder(row pgx.Row) (*model.Reminder, error) {
	var r model.Reminder
	if err := row.Scan(&r.ID, &r.UserID, &r.NoticeID, &r.Title, &r.Message, &r.RemindAt, &r.Status, &r.SentAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// ─── Sentinel errors ─────────────────────────────────────────────────────────

// ErrNotFound is returned when a reminder or saved search does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a concurrent update won the race.
var ErrConflict = errors.New("concurrent update")

// ValidationError wraps a user-facing validation message.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }
