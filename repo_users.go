package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SetVerificationTokenSQL only touches accounts still pending verification
var SetVerificationTokenSQL = `UPDATE "users"
SET
	"verification_token" = ?,
	"updated_at" = ?
WHERE
	"id" = ?
AND "is_verified" = FALSE
RETURNING *;`

// Users is the credential store. Every method is atomic for the record it
// touches; the Tx variants run inside a caller supplied transaction.
type Users interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	List(ctx context.Context) ([]*User, error)

	Create(ctx context.Context, email, passwordHash string) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, email, passwordHash string) (*User, error)
	GetOrCreate(ctx context.Context, record *User) (*User, bool, error)
	GetOrCreateTx(ctx context.Context, tx bun.IDB, record *User) (*User, bool, error)
	Update(ctx context.Context, id uuid.UUID, update UserUpdate) (*User, error)
	UpdateTx(ctx context.Context, tx bun.IDB, id uuid.UUID, update UserUpdate) (*User, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error

	SetVerificationToken(ctx context.Context, id uuid.UUID, token string) error
	SetVerificationTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token string) error
	RedeemVerificationToken(ctx context.Context, token string) (*User, error)
	SetResetToken(ctx context.Context, id uuid.UUID, token string, expiry time.Time) error
	RedeemResetToken(ctx context.Context, token, passwordHash string, now time.Time) (*User, error)
	ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}

type users struct {
	repository.Repository[*User]
	db  *bun.DB
	now Clock
}

var _ Users = (*users)(nil)

type UsersOption func(*users)

// WithUsersClock overrides the clock used for created_at and updated_at
func WithUsersClock(clock Clock) UsersOption {
	return func(u *users) {
		if clock != nil {
			u.now = clock
		}
	}
}

func NewUsersRepository(db *bun.DB, opts ...UsersOption) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
	})

	repoUsers := &users{
		Repository: repo,
		db:         db,
		now:        defaultClock,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repoUsers)
		}
	}
	return repoUsers
}

func (a *users) FindByEmail(ctx context.Context, email string) (*User, error) {
	return a.findBy(ctx, a.db, "email", NormalizeEmail(email))
}

func (a *users) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	record, err := a.Repository.GetByID(ctx, id.String())
	if err != nil {
		if isRecordNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, internalError(err, "unable to load user")
	}
	return record, nil
}

func (a *users) findBy(ctx context.Context, tx bun.IDB, column string, value any) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.? = ?", bun.Ident(column), value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, internalError(err, "unable to load user")
	}
	return record, nil
}

func isRecordNotFound(err error) bool {
	return repository.IsRecordNotFound(err) || errors.Is(err, sql.ErrNoRows)
}

func (a *users) List(ctx context.Context) ([]*User, error) {
	records := []*User{}
	err := a.db.NewSelect().
		Model(&records).
		Order("created_at ASC", "email ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, internalError(err, "unable to list users")
	}
	return records, nil
}

func (a *users) Create(ctx context.Context, email, passwordHash string) (*User, error) {
	return a.CreateTx(ctx, a.db, email, passwordHash)
}

// CreateTx inserts a new unverified user. A concurrent or earlier insert for
// the same email makes the statement a no-op and ErrConflict is returned.
func (a *users) CreateTx(ctx context.Context, tx bun.IDB, email, passwordHash string) (*User, error) {
	record := &User{
		Email:        email,
		PasswordHash: passwordHash,
	}

	inserted, err := a.insertIfAbsent(ctx, tx, record)
	if err != nil {
		return nil, err
	}

	if !inserted {
		return nil, ErrConflict
	}

	return record, nil
}

func (a *users) GetOrCreate(ctx context.Context, record *User) (*User, bool, error) {
	return a.GetOrCreateTx(ctx, a.db, record)
}

// GetOrCreateTx returns the user owning record.Email, inserting record when
// there is none. The bool reports whether this call created the row.
func (a *users) GetOrCreateTx(ctx context.Context, tx bun.IDB, record *User) (*User, bool, error) {
	if record == nil {
		return nil, false, goerrors.New("user record is required", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	inserted, err := a.insertIfAbsent(ctx, tx, record)
	if err != nil {
		return nil, false, err
	}

	user, err := a.findBy(ctx, tx, "email", record.Email)
	if err != nil {
		return nil, false, err
	}

	return user, inserted, nil
}

func (a *users) insertIfAbsent(ctx context.Context, tx bun.IDB, record *User) (bool, error) {
	prepareUserDefaults(record, a.now())

	res, err := tx.NewInsert().
		Model(record).
		On("CONFLICT (email) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, internalError(err, "unable to create user")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, internalError(err, "unable to create user")
	}

	return n == 1, nil
}

func (a *users) Update(ctx context.Context, id uuid.UUID, update UserUpdate) (*User, error) {
	return a.UpdateTx(ctx, a.db, id, update)
}

func (a *users) UpdateTx(ctx context.Context, tx bun.IDB, id uuid.UUID, update UserUpdate) (*User, error) {
	if update.empty() {
		return a.findBy(ctx, tx, "id", id)
	}

	record := &User{}
	q := tx.NewUpdate().
		Model(record).
		Set("updated_at = ?", a.now())

	if update.PasswordHash != nil {
		q = q.Set("password_hash = ?", *update.PasswordHash)
	}

	if update.IsVerified != nil {
		q = q.Set("is_verified = ?", *update.IsVerified)
	}

	switch {
	case update.ClearVerificationToken:
		q = q.Set("verification_token = NULL")
	case update.VerificationToken != nil:
		q = q.Set("verification_token = ?", *update.VerificationToken)
	}

	switch {
	case update.ClearResetToken:
		q = q.Set("reset_token = NULL").Set("reset_token_expiry = NULL")
	default:
		if update.ResetToken != nil {
			q = q.Set("reset_token = ?", *update.ResetToken)
		}
		if update.ResetTokenExpiry != nil {
			q = q.Set("reset_token_expiry = ?", update.ResetTokenExpiry.UTC())
		}
	}

	err := q.Where("id = ?", id).
		Returning("*").
		Scan(ctx)

	return scanUpdated(record, err, ErrNotFound, "unable to update user")
}

func (a *users) Delete(ctx context.Context, id uuid.UUID) error {
	return a.DeleteTx(ctx, a.db, id)
}

func (a *users) DeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	res, err := tx.NewDelete().
		Model((*User)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return internalError(err, "unable to delete user")
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return nil
}

// SetVerificationToken stores token on a user still pending verification.
// ErrNotFound is returned when the user is gone or already verified.
func (a *users) SetVerificationToken(ctx context.Context, id uuid.UUID, token string) error {
	return a.SetVerificationTokenTx(ctx, a.db, id, token)
}

func (a *users) SetVerificationTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token string) error {
	res, err := a.Repository.RawTx(ctx, tx, SetVerificationTokenSQL, token, a.now(), id.String())
	if err != nil {
		if isRecordNotFound(err) {
			return ErrNotFound
		}
		return internalError(err, "unable to store verification token")
	}

	if len(res) == 0 {
		return ErrNotFound
	}

	return nil
}

// RedeemVerificationToken marks the owner of token verified and clears the
// token in one statement. Of two concurrent callers only one gets the row.
func (a *users) RedeemVerificationToken(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	record := &User{}
	err := a.db.NewUpdate().
		Model(record).
		Set("is_verified = ?", true).
		Set("verification_token = NULL").
		Set("updated_at = ?", a.now()).
		Where("verification_token = ?", token).
		Returning("*").
		Scan(ctx)

	return scanUpdated(record, err, ErrInvalidToken, "unable to redeem verification token")
}

func (a *users) SetResetToken(ctx context.Context, id uuid.UUID, token string, expiry time.Time) error {
	_, err := a.Update(ctx, id, UserUpdate{ResetToken: &token, ResetTokenExpiry: &expiry})
	return err
}

// RedeemResetToken sets passwordHash and clears the reset token when token
// is known and unexpired at now. Of two concurrent callers only one succeeds.
func (a *users) RedeemResetToken(ctx context.Context, token, passwordHash string, now time.Time) (*User, error) {
	if token == "" {
		return nil, ErrInvalidOrExpiredToken
	}

	record := &User{}
	err := a.db.NewUpdate().
		Model(record).
		Set("password_hash = ?", passwordHash).
		Set("reset_token = NULL").
		Set("reset_token_expiry = NULL").
		Set("updated_at = ?", a.now()).
		Where("reset_token = ?", token).
		Where("reset_token_expiry > ?", now.UTC()).
		Returning("*").
		Scan(ctx)

	return scanUpdated(record, err, ErrInvalidOrExpiredToken, "unable to redeem reset token")
}

// ClearExpiredResetTokens drops reset tokens whose expiry is at or before
// now and returns how many rows were touched.
func (a *users) ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("reset_token = NULL").
		Set("reset_token_expiry = NULL").
		Where("reset_token_expiry IS NOT NULL").
		Where("reset_token_expiry <= ?", now.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, internalError(err, "unable to clear expired reset tokens")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, internalError(err, "unable to clear expired reset tokens")
	}
	return n, nil
}

func scanUpdated(record *User, err error, missing error, message string) (*User, error) {
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, missing
		}
		return nil, internalError(err, message)
	}

	if record.ID == uuid.Nil {
		return nil, missing
	}

	return record, nil
}

func (u UserUpdate) empty() bool {
	return u.PasswordHash == nil &&
		u.IsVerified == nil &&
		u.VerificationToken == nil &&
		!u.ClearVerificationToken &&
		u.ResetToken == nil &&
		u.ResetTokenExpiry == nil &&
		!u.ClearResetToken
}

func prepareUserDefaults(record *User, now time.Time) {
	if record == nil {
		return
	}

	record.Email = NormalizeEmail(record.Email)

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}

	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}
}
