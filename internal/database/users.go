package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/PaulBabatuyi/filesync/internal/models"
	"go.uber.org/zap"
)

// InsertUser stores a new user. A taken username yields models.ErrDuplicateUsername.
func (p *DB) InsertUser(ctx context.Context, username, secretHash string) (*models.User, error) {
	u := models.User{Username: username, SecretHash: secretHash, CreatedAt: time.Now().UTC()}

	query, args, err := p.qb().Insert("users").
		Columns("username", "secret_hash", "created_at").
		Values(u.Username, u.SecretHash, u.CreatedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return nil, queryErr("build insert user", err)
	}

	if err := p.db.QueryRowContext(ctx, query, args...).Scan(&u.ID); err != nil {
		if isUniqueViolation(err) {
			return nil, models.ErrDuplicateUsername
		}
		return nil, queryErr("insert user", err)
	}
	p.logger.Debug("user inserted", zap.Int64("user_id", u.ID), zap.String("username", u.Username))
	return &u, nil
}

func (p *DB) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return p.findUser(ctx, sq.Eq{"username": username})
}

func (p *DB) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return p.findUser(ctx, sq.Eq{"id": id})
}

func (p *DB) CountUsers(ctx context.Context) (int64, error) {
	query, args, err := p.qb().Select("COUNT(*)").From("users").ToSql()
	if err != nil {
		return 0, queryErr("build count users", err)
	}
	var n int64
	if err := p.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, queryErr("count users", err)
	}
	return n, nil
}

func (p *DB) findUser(ctx context.Context, where sq.Eq) (*models.User, error) {
	query, args, err := p.qb().Select("id", "username", "secret_hash", "created_at").
		From("users").
		Where(where).
		ToSql()
	if err != nil {
		return nil, queryErr("build select user", err)
	}

	var u models.User
	err = p.db.QueryRowContext(ctx, query, args...).Scan(&u.ID, &u.Username, &u.SecretHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		return nil, queryErr("select user", err)
	}
	return &u, nil
}
