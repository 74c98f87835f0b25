package storage

import (
	"database/sql"
	"embed"
	"strconv"
	"strings"
	"time"

	"github.com/maaaruch/tg-award-bot/internal/domain"
)

//go:embed schema.sql
var embeddedSchema embed.FS

// Ledger records chat members and the award roles granted to them.
type Ledger struct {
	db *sql.DB
}

func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) InitSchema() error {
	if _, err := l.db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return err
	}

	b, err := embeddedSchema.ReadFile("schema.sql")
	if err != nil {
		return err
	}

	schema := strings.TrimSpace(string(b))
	_, err = l.db.Exec(schema)
	return err
}

// ---------- Members ----------

func (l *Ledger) UpsertMember(m domain.Member) error {
	_, err := l.db.Exec(`
INSERT INTO members(chat_id, user_id, username, display_name, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(chat_id, user_id) DO UPDATE SET
    username = excluded.username,
    display_name = excluded.display_name,
    updated_at = excluded.updated_at
`, m.ChatID, m.UserID, m.Username, m.DisplayName, time.Now().UTC())
	return err
}

// ResolveMember finds a member of chatID by numeric user id or by username
// (with or without the leading @). Unknown members yield ErrNotFound.
func (l *Ledger) ResolveMember(chatID int64, ref string) (domain.Member, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return domain.Member{}, ErrNotFound
	}

	var row *sql.Row
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		row = l.db.QueryRow(`
SELECT chat_id, user_id, username, display_name
FROM members
WHERE chat_id = ? AND user_id = ?
`, chatID, id)
	} else {
		row = l.db.QueryRow(`
SELECT chat_id, user_id, username, display_name
FROM members
WHERE chat_id = ? AND username = ? COLLATE NOCASE
ORDER BY updated_at DESC
LIMIT 1
`, chatID, strings.TrimPrefix(ref, "@"))
	}

	var m domain.Member
	if err := row.Scan(&m.ChatID, &m.UserID, &m.Username, &m.DisplayName); err != nil {
		if err == sql.ErrNoRows {
			return domain.Member{}, ErrNotFound
		}
		return domain.Member{}, err
	}
	return m, nil
}

// ---------- Roles ----------

// EnsureRole returns the role called name in chatID, creating it if needed.
func (l *Ledger) EnsureRole(chatID int64, name string) (domain.Role, error) {
	if _, err := l.db.Exec(`
INSERT INTO roles(chat_id, name) VALUES (?, ?)
ON CONFLICT(chat_id, name) DO NOTHING
`, chatID, name); err != nil {
		return domain.Role{}, err
	}

	r := domain.Role{ChatID: chatID, Name: name}
	err := l.db.QueryRow(`SELECT id FROM roles WHERE chat_id = ? AND name = ?`, chatID, name).Scan(&r.ID)
	if err != nil {
		return domain.Role{}, err
	}
	return r, nil
}

// GrantRole gives roleID to userID. It reports false when the member
// already had the role.
func (l *Ledger) GrantRole(roleID, userID int64, nominationID string, at time.Time) (bool, error) {
	res, err := l.db.Exec(`
INSERT INTO member_roles(role_id, user_id, nomination_id, granted_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(role_id, user_id) DO NOTHING
`, roleID, userID, nominationID, at.UTC())
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (l *Ledger) ListMemberRoles(chatID, userID int64) ([]domain.MemberRole, error) {
	rows, err := l.db.Query(`
SELECT r.name, mr.nomination_id, mr.granted_at
FROM member_roles mr
JOIN roles r ON mr.role_id = r.id
WHERE r.chat_id = ? AND mr.user_id = ?
ORDER BY mr.granted_at, mr.id
`, chatID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.MemberRole
	for rows.Next() {
		var mr domain.MemberRole
		if err := rows.Scan(&mr.RoleName, &mr.NominationID, &mr.GrantedAt); err != nil {
			return nil, err
		}
		out = append(out, mr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
