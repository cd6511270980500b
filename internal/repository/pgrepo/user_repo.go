package pgrepo

import (
	"context"

	"github.com/fsdevblog/groph-pay/internal/domain"
	"github.com/fsdevblog/groph-pay/internal/repository/repoargs"
	"github.com/fsdevblog/groph-pay/pkg/uow"
)

const (
	usersInsertQuery = `
		INSERT INTO users (username, password)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at, username, password`

	usersFindByUsernameQuery = `
		SELECT id, created_at, updated_at, username, password
		FROM users
		WHERE username = $1`
)

type UserRepository struct {
	conn uow.DBTX
}

func NewUserRepository(conn uow.DBTX) *UserRepository {
	return &UserRepository{conn: conn}
}

// Create создает юзера. Пароль ожидается уже захешированным.
func (u *UserRepository) Create(ctx context.Context, args repoargs.CreateUser) (*domain.User, error) {
	var user domain.User
	err := u.conn.QueryRow(ctx, usersInsertQuery, args.Username, args.Password).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt, &user.Username, &user.Password)
	if err != nil {
		return nil, convertErr(err, "creating user `%s`", args.Username)
	}
	return &user, nil
}

func (u *UserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	var user domain.User
	err := u.conn.QueryRow(ctx, usersFindByUsernameQuery, username).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt, &user.Username, &user.Password)
	if err != nil {
		return nil, convertErr(err, "finding user by username `%s`", username)
	}
	return &user, nil
}
