package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"snipebot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db       *sql.DB
	log      logx.Logger
	defaults Defaults
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	def := cfg.Defaults
	if def.MaxSnipes <= 0 {
		def.MaxSnipes = 10
	}
	if def.NotifLimit < MinNotifLimit || def.NotifLimit > MaxNotifLimit {
		def.NotifLimit = 5
	}

	st := &sqliteStore{db: db, log: log, defaults: def}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AddWatch(ctx context.Context, userID, courseIndex string) (AddResult, error) {
	cfg, err := s.GetOrCreateUserConfig(ctx, userID)
	if err != nil {
		return 0, err
	}
	if cfg.Banned {
		return AddBanned, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	// INSERT OR IGNORE keeps the uniqueness invariant without matching on
	// driver-specific constraint errors: zero rows affected means duplicate.
	// The insert runs before the quota check so re-adding an existing watch
	// reports duplicate even for a user already at quota.
	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO snipes(user_id, index_number, notifications_sent) VALUES(?,?,0)`,
		userID, courseIndex)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return AddDuplicate, nil
	}

	if !cfg.Moderator {
		var n int
		err = tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM snipes WHERE user_id = ?`, userID).Scan(&n)
		if err != nil {
			return 0, err
		}
		// n includes the row just inserted; over quota rolls it back.
		if n > cfg.MaxSnipes {
			return AddLimitReached, nil
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return AddCreated, nil
}

func (s *sqliteStore) RemoveWatch(ctx context.Context, userID, courseIndex string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM snipes WHERE user_id = ? AND index_number = ?`, userID, courseIndex)
	return err
}

func (s *sqliteStore) ClearWatches(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM snipes WHERE user_id = ?`, userID)
	return err
}

func (s *sqliteStore) ListWatches(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT index_number FROM snipes WHERE user_id = ? ORDER BY index_number`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var idx string
		if err := rows.Scan(&idx); err != nil {
			return nil, err
		}
		out = append(out, idx)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ListAllWatches(ctx context.Context) ([]WatchEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, index_number, notifications_sent FROM snipes ORDER BY user_id, index_number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWatchEntries(rows)
}

func (s *sqliteStore) DistinctWatchedCourses(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT index_number FROM snipes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var idx string
		if err := rows.Scan(&idx); err != nil {
			return nil, err
		}
		out = append(out, idx)
	}
	return out, rows.Err()
}

func (s *sqliteStore) WatchesForCourse(ctx context.Context, courseIndex string) ([]WatchEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, index_number, notifications_sent FROM snipes WHERE index_number = ?`, courseIndex)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWatchEntries(rows)
}

func (s *sqliteStore) RecordNotification(ctx context.Context, userID, courseIndex string) (int, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, err
	}
	defer func() { _ = tx.Rollback() }()

	var sent int
	err = tx.QueryRowContext(ctx,
		`SELECT notifications_sent FROM snipes WHERE user_id = ? AND index_number = ?`,
		userID, courseIndex).Scan(&sent)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, ErrNotFound
	}
	if err != nil {
		return 0, false, err
	}

	limit := s.defaults.NotifLimit
	err = tx.QueryRowContext(ctx,
		`SELECT notif_limit FROM user_configs WHERE user_id = ?`, userID).Scan(&limit)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, false, err
	}

	newCount := sent + 1
	removed := newCount >= limit
	if removed {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM snipes WHERE user_id = ? AND index_number = ?`, userID, courseIndex)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE snipes SET notifications_sent = ? WHERE user_id = ? AND index_number = ?`,
			newCount, userID, courseIndex)
	}
	if err != nil {
		return 0, false, err
	}
	if err := tx.Commit(); err != nil {
		return 0, false, err
	}
	return newCount, removed, nil
}

func (s *sqliteStore) GetOrCreateUserConfig(ctx context.Context, userID string) (UserConfig, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_configs(user_id, max_snipes, notif_limit) VALUES(?,?,?)`,
		userID, s.defaults.MaxSnipes, s.defaults.NotifLimit)
	if err != nil {
		return UserConfig{}, err
	}
	return s.getUserConfig(ctx, userID)
}

func (s *sqliteStore) getUserConfig(ctx context.Context, userID string) (UserConfig, error) {
	var (
		cfg                       UserConfig
		banned, isMod, ttsEnabled int
	)
	cfg.UserID = userID
	err := s.db.QueryRowContext(ctx,
		`SELECT max_snipes, banned, is_mod, notif_limit, tts_enabled FROM user_configs WHERE user_id = ?`,
		userID).Scan(&cfg.MaxSnipes, &banned, &isMod, &cfg.NotifLimit, &ttsEnabled)
	if errors.Is(err, sql.ErrNoRows) {
		return UserConfig{}, ErrNotFound
	}
	if err != nil {
		return UserConfig{}, err
	}
	cfg.Banned = banned != 0
	cfg.Moderator = isMod != 0
	cfg.SpeechOutput = ttsEnabled != 0
	return cfg, nil
}

// setField upserts one user_configs column, creating the row with defaults
// when the user has never interacted before.
func (s *sqliteStore) setField(ctx context.Context, userID, column string, value any) error {
	q := fmt.Sprintf(
		`INSERT INTO user_configs(user_id, max_snipes, notif_limit, %[1]s) VALUES(?,?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET %[1]s = excluded.%[1]s`, column)
	_, err := s.db.ExecContext(ctx, q, userID, s.defaults.MaxSnipes, s.defaults.NotifLimit, value)
	return err
}

func (s *sqliteStore) SetMaxWatches(ctx context.Context, userID string, n int) error {
	if n < 0 {
		return ErrInvalidLimit
	}
	return s.setField(ctx, userID, "max_snipes", n)
}

func (s *sqliteStore) SetBanned(ctx context.Context, userID string, banned bool) error {
	return s.setField(ctx, userID, "banned", boolInt(banned))
}

func (s *sqliteStore) SetModerator(ctx context.Context, userID string, mod bool) error {
	return s.setField(ctx, userID, "is_mod", boolInt(mod))
}

func (s *sqliteStore) SetNotificationCap(ctx context.Context, userID string, n int) error {
	if n < MinNotifLimit || n > MaxNotifLimit {
		return ErrInvalidLimit
	}
	return s.setField(ctx, userID, "notif_limit", n)
}

func (s *sqliteStore) SetSpeechOutput(ctx context.Context, userID string, enabled bool) error {
	return s.setField(ctx, userID, "tts_enabled", boolInt(enabled))
}

func (s *sqliteStore) ListModerators(ctx context.Context) ([]UserConfig, error) {
	return s.listByFlag(ctx, "is_mod")
}

func (s *sqliteStore) ListBanned(ctx context.Context) ([]UserConfig, error) {
	return s.listByFlag(ctx, "banned")
}

func (s *sqliteStore) listByFlag(ctx context.Context, column string) ([]UserConfig, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT user_id, max_snipes, banned, is_mod, notif_limit, tts_enabled
		 FROM user_configs WHERE %s != 0 ORDER BY user_id`, column))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UserConfig
	for rows.Next() {
		var (
			cfg                       UserConfig
			banned, isMod, ttsEnabled int
		)
		if err := rows.Scan(&cfg.UserID, &cfg.MaxSnipes, &banned, &isMod, &cfg.NotifLimit, &ttsEnabled); err != nil {
			return nil, err
		}
		cfg.Banned = banned != 0
		cfg.Moderator = isMod != 0
		cfg.SpeechOutput = ttsEnabled != 0
		out = append(out, cfg)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	row := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM snipes),
			(SELECT COUNT(*) FROM user_configs),
			(SELECT COUNT(*) FROM user_configs WHERE banned != 0),
			(SELECT COUNT(*) FROM user_configs WHERE is_mod != 0)`)
	if err := row.Scan(&st.Watches, &st.Users, &st.Banned, &st.Moderators); err != nil {
		return Stats{}, err
	}
	return st, nil
}

func scanWatchEntries(rows *sql.Rows) ([]WatchEntry, error) {
	var out []WatchEntry
	for rows.Next() {
		var e WatchEntry
		if err := rows.Scan(&e.UserID, &e.CourseIndex, &e.NotificationsSent); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
