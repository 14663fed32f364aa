package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"strings"
	"time"

	"github.com/VcentLngW/podcast-streaming-restapi/internal/models"
)

type SQLStore struct {
	db *sql.DB
}

func New(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) CreateUser(ctx context.Context, email string, passwordHash string, role string) (models.User, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO users (email, password_hash, role, create_time, update_time)
		VALUES (?, ?, ?, ?, ?)`,
		email,
		passwordHash,
		role,
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return models.User{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.User{}, err
	}
	return s.GetUserByID(ctx, id)
}

func (s *SQLStore) GetUserByID(ctx context.Context, id int64) (models.User, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, email, password_hash, role, create_time, update_time
		FROM users
		WHERE id = ?`,
		id,
	)
	return scanUser(row)
}

func (s *SQLStore) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, email, password_hash, role, create_time, update_time
		FROM users
		WHERE email = ? COLLATE NOCASE`,
		email,
	)
	return scanUser(row)
}

func (s *SQLStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *SQLStore) CreatePersonalAccessToken(ctx context.Context, userID int64, rawToken string, description string) (models.PersonalAccessToken, error) {
	return s.CreatePersonalAccessTokenWithExpiry(ctx, userID, rawToken, description, nil)
}

func (s *SQLStore) CreatePersonalAccessTokenWithExpiry(ctx context.Context, userID int64, rawToken string, description string, expiresAt *time.Time) (models.PersonalAccessToken, error) {
	now := time.Now().UTC()
	tokenHash := HashToken(rawToken)
	tokenPrefix := rawToken
	if len(tokenPrefix) > 8 {
		tokenPrefix = tokenPrefix[:8]
	}
	var expiresValue any
	if expiresAt != nil {
		expiresValue = expiresAt.UTC().Format(time.RFC3339Nano)
	}
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO personal_access_tokens (user_id, token_prefix, token_hash, description, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		userID,
		tokenPrefix,
		tokenHash,
		description,
		now.Format(time.RFC3339Nano),
		expiresValue,
	)
	if err != nil {
		return models.PersonalAccessToken{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.PersonalAccessToken{}, err
	}
	return s.GetPersonalAccessTokenByID(ctx, id)
}

func (s *SQLStore) GetPersonalAccessTokenByID(ctx context.Context, id int64) (models.PersonalAccessToken, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, user_id, token_prefix, token_hash, description, created_at, last_used_at, expires_at, revoked_at
		FROM personal_access_tokens WHERE id = ?`,
		id,
	)
	return scanPersonalAccessToken(row)
}

func (s *SQLStore) ListPersonalAccessTokensByUserID(ctx context.Context, userID int64) ([]models.PersonalAccessToken, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, user_id, token_prefix, token_hash, description, created_at, last_used_at, expires_at, revoked_at
		FROM personal_access_tokens
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]models.PersonalAccessToken, 0)
	for rows.Next() {
		token, err := scanPersonalAccessToken(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, token)
	}
	return result, rows.Err()
}

func (s *SQLStore) RevokePersonalAccessToken(ctx context.Context, tokenID int64) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE personal_access_tokens
		SET revoked_at = ?
		WHERE id = ? AND revoked_at IS NULL`,
		time.Now().UTC().Format(time.RFC3339Nano),
		tokenID,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *SQLStore) GetUserByToken(ctx context.Context, rawToken string) (models.User, models.PersonalAccessToken, error) {
	tokenHash := HashToken(rawToken)
	now := time.Now().UTC().Format(time.RFC3339Nano)
	var user models.User
	var token models.PersonalAccessToken
	var userCreateTime string
	var userUpdateTime string
	var tokenCreateTime string
	var lastUsedAt sql.NullString
	var expiresAt sql.NullString
	var revokedAt sql.NullString

	err := s.db.QueryRowContext(
		ctx,
		`SELECT
			u.id, u.email, u.password_hash, u.role, u.create_time, u.update_time,
			t.id, t.user_id, t.token_prefix, t.token_hash, t.description, t.created_at, t.last_used_at, t.expires_at, t.revoked_at
		FROM personal_access_tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.token_hash = ?
			AND t.revoked_at IS NULL
			AND (t.expires_at IS NULL OR t.expires_at > ?)`,
		tokenHash,
		now,
	).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&userCreateTime,
		&userUpdateTime,
		&token.ID,
		&token.UserID,
		&token.TokenPrefix,
		&token.TokenHash,
		&token.Description,
		&tokenCreateTime,
		&lastUsedAt,
		&expiresAt,
		&revokedAt,
	)
	if err != nil {
		return models.User{}, models.PersonalAccessToken{}, err
	}

	var errParse error
	user.CreateTime, errParse = parseTime(userCreateTime)
	if errParse != nil {
		return models.User{}, models.PersonalAccessToken{}, errParse
	}
	user.UpdateTime, errParse = parseTime(userUpdateTime)
	if errParse != nil {
		return models.User{}, models.PersonalAccessToken{}, errParse
	}
	token.CreatedAt, errParse = parseTime(tokenCreateTime)
	if errParse != nil {
		return models.User{}, models.PersonalAccessToken{}, errParse
	}
	token.LastUsedAt, errParse = parseNullableTime(lastUsedAt)
	if errParse != nil {
		return models.User{}, models.PersonalAccessToken{}, errParse
	}
	token.ExpiresAt, errParse = parseNullableTime(expiresAt)
	if errParse != nil {
		return models.User{}, models.PersonalAccessToken{}, errParse
	}
	token.RevokedAt, errParse = parseNullableTime(revokedAt)
	if errParse != nil {
		return models.User{}, models.PersonalAccessToken{}, errParse
	}
	return user, token, nil
}

func (s *SQLStore) TouchPersonalAccessToken(ctx context.Context, tokenID int64) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE personal_access_tokens SET last_used_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
		tokenID,
	)
	return err
}

func scanUser(scanner interface {
	Scan(dest ...any) error
}) (models.User, error) {
	var user models.User
	var createTime string
	var updateTime string
	if err := scanner.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&createTime,
		&updateTime,
	); err != nil {
		return models.User{}, err
	}
	var err error
	user.CreateTime, err = parseTime(createTime)
	if err != nil {
		return models.User{}, err
	}
	user.UpdateTime, err = parseTime(updateTime)
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

func scanPersonalAccessToken(scanner interface {
	Scan(dest ...any) error
}) (models.PersonalAccessToken, error) {
	var token models.PersonalAccessToken
	var createdAt string
	var lastUsedAt sql.NullString
	var expiresAt sql.NullString
	var revokedAt sql.NullString
	if err := scanner.Scan(
		&token.ID,
		&token.UserID,
		&token.TokenPrefix,
		&token.TokenHash,
		&token.Description,
		&createdAt,
		&lastUsedAt,
		&expiresAt,
		&revokedAt,
	); err != nil {
		return models.PersonalAccessToken{}, err
	}
	var err error
	token.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return models.PersonalAccessToken{}, err
	}
	token.LastUsedAt, err = parseNullableTime(lastUsedAt)
	if err != nil {
		return models.PersonalAccessToken{}, err
	}
	token.ExpiresAt, err = parseNullableTime(expiresAt)
	if err != nil {
		return models.PersonalAccessToken{}, err
	}
	token.RevokedAt, err = parseNullableTime(revokedAt)
	if err != nil {
		return models.PersonalAccessToken{}, err
	}
	return token, nil
}

func parseTime(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, raw)
}

func parseNullableTime(raw sql.NullString) (*time.Time, error) {
	if !raw.Valid {
		return nil, nil
	}
	t, err := parseTime(raw.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// IsUniqueConstraintErr reports whether err comes from a violated UNIQUE
// constraint. modernc.org/sqlite surfaces these as plain error strings.
func IsUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") || strings.Contains(msg, "constraint failed")
}
