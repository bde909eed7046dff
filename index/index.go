package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite driver
	"github.com/rs/zerolog"

	"discord-scraper/models"
)

// ErrBadTimestamp marks a stored timestamp that failed to parse. Callers
// must treat it as data corruption, never as missing data: masking it risks
// either re-walking the whole history or silently skipping it.
var ErrBadTimestamp = errors.New("index: unparseable stored timestamp")

// timeLayout is fixed-width so lexicographic order of stored timestamps
// equals chronological order; all values are normalized to UTC first.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Index is the sink: an upsert-by-identity message store with full-text
// search over the message text.
type Index struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (creating if needed) the sqlite index at path and ensures the
// schema exists.
func Open(path string, logger zerolog.Logger) (*Index, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create index directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to index: %w", err)
	}

	ix := &Index{db: db, log: logger}
	if err := ix.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize index schema: %w", err)
	}
	logger.Info().Str("path", path).Msg("search index opened")
	return ix, nil
}

func (ix *Index) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		message_id TEXT PRIMARY KEY,
		server_name TEXT NOT NULL DEFAULT '',
		server_id TEXT NOT NULL DEFAULT '',
		sender_id TEXT NOT NULL DEFAULT '',
		sender_username TEXT NOT NULL DEFAULT '',
		sender_display_name TEXT NOT NULL DEFAULT '',
		sender_is_bot INTEGER NOT NULL DEFAULT 0,
		sender_roles TEXT NOT NULL DEFAULT '[]',
		channel_id TEXT NOT NULL DEFAULT '',
		channel_title TEXT NOT NULL DEFAULT '',
		channel_category TEXT NOT NULL DEFAULT '',
		channel_category_id TEXT NOT NULL DEFAULT '',
		thread_id TEXT NOT NULL DEFAULT '',
		thread_title TEXT NOT NULL DEFAULT '',
		thread_category TEXT NOT NULL DEFAULT '',
		thread_category_id TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL DEFAULT '',
		clean_text TEXT NOT NULL DEFAULT '',
		emoji_list TEXT NOT NULL DEFAULT '[]',
		emoji_img_list TEXT NOT NULL DEFAULT '[]',
		cashtag_list TEXT NOT NULL DEFAULT '[]',
		timestamp TEXT NOT NULL,
		computed_at TEXT NOT NULL,
		is_reply INTEGER NOT NULL DEFAULT 0,
		reply_to_msg TEXT NOT NULL DEFAULT '',
		mentions TEXT NOT NULL DEFAULT '[]',
		reactions TEXT NOT NULL DEFAULT '{}',
		reactions_img TEXT NOT NULL DEFAULT '{}',
		media TEXT NOT NULL DEFAULT '[]'
	);

	CREATE INDEX IF NOT EXISTS idx_channel_timestamp ON messages(channel_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_server_timestamp ON messages(server_name, timestamp);

	CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
		text, clean_text, content='messages', content_rowid='rowid'
	);

	CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
		INSERT INTO messages_fts(rowid, text, clean_text)
		VALUES (new.rowid, new.text, new.clean_text);
	END;
	CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
		INSERT INTO messages_fts(messages_fts, rowid, text, clean_text)
		VALUES ('delete', old.rowid, old.text, old.clean_text);
	END;
	CREATE TRIGGER IF NOT EXISTS messages_au AFTER UPDATE ON messages BEGIN
		INSERT INTO messages_fts(messages_fts, rowid, text, clean_text)
		VALUES ('delete', old.rowid, old.text, old.clean_text);
		INSERT INTO messages_fts(rowid, text, clean_text)
		VALUES (new.rowid, new.text, new.clean_text);
	END;
	`
	_, err := ix.db.Exec(schema)
	return err
}

const upsertQuery = `
	INSERT INTO messages (
		message_id, server_name, server_id, sender_id, sender_username,
		sender_display_name, sender_is_bot, sender_roles, channel_id,
		channel_title, channel_category, channel_category_id, thread_id,
		thread_title, thread_category, thread_category_id, text, clean_text,
		emoji_list, emoji_img_list, cashtag_list, timestamp, computed_at,
		is_reply, reply_to_msg, mentions, reactions, reactions_img, media
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(message_id) DO UPDATE SET
		server_name = excluded.server_name,
		server_id = excluded.server_id,
		sender_id = excluded.sender_id,
		sender_username = excluded.sender_username,
		sender_display_name = excluded.sender_display_name,
		sender_is_bot = excluded.sender_is_bot,
		sender_roles = excluded.sender_roles,
		channel_id = excluded.channel_id,
		channel_title = excluded.channel_title,
		channel_category = excluded.channel_category,
		channel_category_id = excluded.channel_category_id,
		thread_id = excluded.thread_id,
		thread_title = excluded.thread_title,
		thread_category = excluded.thread_category,
		thread_category_id = excluded.thread_category_id,
		text = excluded.text,
		clean_text = excluded.clean_text,
		emoji_list = excluded.emoji_list,
		emoji_img_list = excluded.emoji_img_list,
		cashtag_list = excluded.cashtag_list,
		timestamp = excluded.timestamp,
		computed_at = excluded.computed_at,
		is_reply = excluded.is_reply,
		reply_to_msg = excluded.reply_to_msg,
		mentions = excluded.mentions,
		reactions = excluded.reactions,
		reactions_img = excluded.reactions_img,
		media = excluded.media`

// Upsert writes a single record, replacing any previous version of the same
// message identity.
func (ix *Index) Upsert(rec models.Record) error {
	if _, err := ix.db.Exec(upsertQuery, upsertArgs(rec)...); err != nil {
		return fmt.Errorf("upsert message %s: %w", rec.MessageID, err)
	}
	return nil
}

// UpsertBatch writes a batch in one transaction. A record that fails to
// index is logged and skipped so the rest of the batch still lands; there is
// no retry, the next polling pass re-reads the same window anyway.
func (ix *Index) UpsertBatch(recs []models.Record) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := ix.db.Begin()
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	stmt, err := tx.Prepare(upsertQuery)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare batch: %w", err)
	}
	defer stmt.Close()

	failed := 0
	for _, rec := range recs {
		if _, err := stmt.Exec(upsertArgs(rec)...); err != nil {
			ix.log.Warn().Err(err).Str("message_id", rec.MessageID).Msg("record failed to index, skipping")
			failed++
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	if failed > 0 {
		ix.log.Warn().Int("failed", failed).Int("batch_size", len(recs)).Msg("dropped records from batch")
	}
	return nil
}

func upsertArgs(rec models.Record) []any {
	return []any{
		rec.MessageID,
		rec.ServerName,
		rec.ServerID,
		rec.SenderID,
		rec.SenderUsername,
		rec.SenderDisplayName,
		rec.SenderIsBot,
		jsonList(rec.SenderRoles),
		rec.ChannelID,
		rec.ChannelTitle,
		rec.ChannelCategory,
		rec.ChannelCategoryID,
		rec.ThreadID,
		rec.ThreadTitle,
		rec.ThreadCategory,
		rec.ThreadCategoryID,
		rec.Text,
		rec.CleanText,
		jsonList(rec.EmojiList),
		jsonList(rec.EmojiImgList),
		jsonList(rec.CashtagList),
		rec.Timestamp.UTC().Format(timeLayout),
		rec.ComputedAt.UTC().Format(timeLayout),
		rec.IsReply,
		rec.ReplyToMessageID,
		jsonList(rec.Mentions),
		jsonMap(rec.Reactions),
		jsonMap(rec.ReactionsImg),
		jsonList(rec.Media),
	}
}

func jsonList(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func jsonMap(v map[string]int) string {
	if v == nil {
		v = map[string]int{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

// LatestTimestamp returns the most recent stored message timestamp for a
// channel. sql.ErrNoRows means the channel has nothing stored yet. A stored
// value that no longer parses is reported as ErrBadTimestamp.
func (ix *Index) LatestTimestamp(channelID string) (time.Time, error) {
	var raw string
	err := ix.db.QueryRow(
		`SELECT timestamp FROM messages WHERE channel_id = ? ORDER BY timestamp DESC LIMIT 1`,
		channelID,
	).Scan(&raw)
	if err != nil {
		return time.Time{}, err
	}

	ts, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: channel %s holds %q", ErrBadTimestamp, channelID, raw)
	}
	return ts, nil
}

// CountSince reports how many documents for the given server landed inside
// the trailing window. The health surface treats zero as unhealthy.
func (ix *Index) CountSince(serverName string, window time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-window).Format(timeLayout)
	var count int64
	err := ix.db.QueryRow(
		`SELECT COUNT(*) FROM messages WHERE server_name = ? AND timestamp >= ?`,
		serverName, cutoff,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count recent documents: %w", err)
	}
	return count, nil
}

// SearchHit is one full-text match.
type SearchHit struct {
	MessageID      string    `json:"message_id"`
	ChannelID      string    `json:"channel_id"`
	ChannelTitle   string    `json:"channel_title"`
	SenderUsername string    `json:"sender_username"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
}

// Search runs an FTS5 match over message text, best matches first.
func (ix *Index) Search(query string, limit int) ([]SearchHit, error) {
	rows, err := ix.db.Query(`
		SELECT m.message_id, m.channel_id, m.channel_title, m.sender_username, m.text, m.timestamp
		FROM messages_fts f
		JOIN messages m ON m.rowid = f.rowid
		WHERE messages_fts MATCH ?
		ORDER BY f.rank
		LIMIT ?`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var hit SearchHit
		var raw string
		if err := rows.Scan(&hit.MessageID, &hit.ChannelID, &hit.ChannelTitle, &hit.SenderUsername, &hit.Text, &raw); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		if ts, err := time.Parse(timeLayout, raw); err == nil {
			hit.Timestamp = ts
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search hits: %w", err)
	}
	return hits, nil
}

// Close closes the underlying database.
func (ix *Index) Close() error {
	return ix.db.Close()
}
