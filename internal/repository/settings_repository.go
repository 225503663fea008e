package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/welldanyogia/replydesk/backend/internal/metrics"
)

// AutoReplyEnabledKey is the app_settings key holding the global auto-reply toggle
const AutoReplyEnabledKey = "auto_reply_enabled"

// SettingsRepository reads and writes process-wide settings.
// Values are read straight from the database on every call; nothing is cached in-process.
type SettingsRepository interface {
	AutoReplyEnabled(ctx context.Context) (bool, error)
	SetAutoReplyEnabled(ctx context.Context, enabled bool) error
}

type settingsRepository struct {
	pool *pgxpool.Pool
}

// NewSettingsRepository creates a new SettingsRepository instance
func NewSettingsRepository(pool *pgxpool.Pool) SettingsRepository {
	return &settingsRepository{pool: pool}
}

// AutoReplyEnabled returns the global toggle. A missing row means disabled.
func (r *settingsRepository) AutoReplyEnabled(ctx context.Context) (bool, error) {
	defer metrics.TimeQuery("settings_toggle_read")()

	var raw []byte
	err := r.pool.QueryRow(ctx, `SELECT value FROM app_settings WHERE key = $1`, AutoReplyEnabledKey).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	var enabled bool
	if err := json.Unmarshal(raw, &enabled); err != nil {
		// A non-boolean value is treated like an absent one
		return false, nil
	}
	return enabled, nil
}

// SetAutoReplyEnabled upserts the global toggle
func (r *settingsRepository) SetAutoReplyEnabled(ctx context.Context, enabled bool) error {
	raw, err := json.Marshal(enabled)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO app_settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, AutoReplyEnabledKey, raw)
	return err
}
