// Package audit records the connection outcome of every status poll.
//
// Each cycle leaves a short trail in the audit_logs table: the session being
// opened and closed, or the kind of failure that ended it. Tunnel states are
// not recorded. Old rows are removed by PurgeOlderThan, which the service
// runs on a schedule.
package audit

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/lcalzado/vpn-monitor/internal/appliance"
	"github.com/lcalzado/vpn-monitor/internal/database"
	"github.com/lcalzado/vpn-monitor/internal/logutil"
	"github.com/lcalzado/vpn-monitor/internal/vpnstatus"
	"gorm.io/gorm"
)

// Event types.
const (
	EventSessionOpened        = "session_opened"
	EventSessionClosed        = "session_closed"
	EventConnectionFailed     = "connection_failed"
	EventAuthenticationFailed = "authentication_failed"
	EventCommandFailed        = "command_failed"
	EventParseFailed          = "parse_failed"
)

// DefaultRetentionDays is the default number of days to keep audit logs.
const DefaultRetentionDays = 90

const maxDetails = 512

// Entry contains the fields needed to create an audit log entry.
type Entry struct {
	CycleID    string
	EventType  string
	Host       string
	Username   string
	Details    string
	DurationMs int64
}

// Auditor records and queries session audit logs.
type Auditor struct {
	mu            sync.RWMutex
	db            *gorm.DB
	retentionDays int
	nowFn         func() time.Time
}

// NewAuditor creates an Auditor that writes to db. If retentionDays is 0,
// DefaultRetentionDays is used.
func NewAuditor(db *gorm.DB, retentionDays int) *Auditor {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &Auditor{
		db:            db,
		retentionDays: retentionDays,
		nowFn:         time.Now,
	}
}

// Log records an audit event to the database and the standard logger.
func (a *Auditor) Log(entry Entry) error {
	details := logutil.Truncate(logutil.SanitizeForLog(entry.Details), maxDetails)
	record := database.AuditLog{
		CycleID:    entry.CycleID,
		EventType:  entry.EventType,
		Host:       entry.Host,
		Username:   entry.Username,
		Details:    details,
		DurationMs: entry.DurationMs,
		CreatedAt:  a.now(),
	}

	a.mu.Lock()
	err := a.db.Create(&record).Error
	a.mu.Unlock()
	if err != nil {
		log.Printf("[audit] failed to write audit log: %v", err)
		return err
	}

	log.Printf("[audit] %s cycle=%s host=%s user=%s details=%s",
		entry.EventType, entry.CycleID, entry.Host, logutil.SanitizeForLog(entry.Username), details)
	return nil
}

// QueryOptions specifies filters for retrieving audit logs.
type QueryOptions struct {
	EventType string
	CycleID   string
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}

// QueryResult contains audit log entries and pagination metadata.
type QueryResult struct {
	Entries []database.AuditLog `json:"entries"`
	Total   int64               `json:"total"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
}

// Query retrieves audit log entries matching opts, newest first.
func (a *Auditor) Query(opts QueryOptions) (*QueryResult, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	tx := a.db.Model(&database.AuditLog{})
	if opts.EventType != "" {
		tx = tx.Where("event_type = ?", opts.EventType)
	}
	if opts.CycleID != "" {
		tx = tx.Where("cycle_id = ?", opts.CycleID)
	}
	if opts.Since != nil {
		tx = tx.Where("created_at >= ?", *opts.Since)
	}
	if opts.Until != nil {
		tx = tx.Where("created_at <= ?", *opts.Until)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, err
	}

	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if opts.Limit > 1000 {
		opts.Limit = 1000
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	entries := []database.AuditLog{}
	if err := tx.Order("created_at DESC, id DESC").Offset(opts.Offset).Limit(opts.Limit).Find(&entries).Error; err != nil {
		return nil, err
	}

	return &QueryResult{
		Entries: entries,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	}, nil
}

// PurgeOlderThan removes entries older than days, or the configured retention
// period when days is 0. It returns the number of rows deleted.
func (a *Auditor) PurgeOlderThan(days int) (int64, error) {
	if days <= 0 {
		days = a.retentionDays
	}
	cutoff := a.now().AddDate(0, 0, -days)

	a.mu.Lock()
	result := a.db.Where("created_at < ?", cutoff).Delete(&database.AuditLog{})
	a.mu.Unlock()
	if result.Error != nil {
		log.Printf("[audit] purge failed: %v", result.Error)
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		log.Printf("[audit] purged %d audit log entries older than %d days", result.RowsAffected, days)
	}
	return result.RowsAffected, nil
}

// RetentionDays returns the configured retention period.
func (a *Auditor) RetentionDays() int {
	return a.retentionDays
}

// SetNowFunc sets the clock function used for testing.
func (a *Auditor) SetNowFunc(fn func() time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nowFn = fn
}

func (a *Auditor) now() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.nowFn()
}

// FailureEvent returns the event type recorded for a poll that failed with err.
func FailureEvent(err error) string {
	switch {
	case errors.Is(err, appliance.ErrAuthentication):
		return EventAuthenticationFailed
	case errors.Is(err, appliance.ErrCommand):
		return EventCommandFailed
	case errors.Is(err, appliance.ErrParse):
		return EventParseFailed
	default:
		return EventConnectionFailed
	}
}

// StateListener returns a callback that records the session events of every
// monitor cycle against host and username.
func (a *Auditor) StateListener(host, username string) vpnstatus.StateChangeCallback {
	var (
		mu     sync.Mutex
		starts = make(map[string]time.Time)
	)
	elapsed := func(id string, at time.Time, done bool) int64 {
		mu.Lock()
		defer mu.Unlock()
		start, ok := starts[id]
		if done {
			delete(starts, id)
		}
		if !ok {
			return 0
		}
		return at.Sub(start).Milliseconds()
	}

	return func(cycleID string, t vpnstatus.StateTransition) {
		entry := Entry{CycleID: cycleID, Host: host, Username: username}
		switch t.To {
		case vpnstatus.StateConnecting:
			mu.Lock()
			starts[cycleID] = t.Timestamp
			mu.Unlock()
			return
		case vpnstatus.StateContextSelected:
			entry.EventType = EventSessionOpened
			entry.Details = "context " + t.Reason
		case vpnstatus.StateDone:
			entry.EventType = EventSessionClosed
			entry.Details = t.Reason
			entry.DurationMs = elapsed(cycleID, t.Timestamp, true)
		case vpnstatus.StateFailed:
			entry.EventType = FailureEvent(t.Err)
			entry.Details = t.Reason
			entry.DurationMs = elapsed(cycleID, t.Timestamp, true)
		default:
			return
		}
		a.Log(entry)
	}
}
