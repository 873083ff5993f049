package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/appauth/pkg/models"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// db returns the transaction carried by ctx, or the pool outside of one.
func (s *PostgresStore) db(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return s.pool
}

// --- Users ---

const userColumns = `appuser_id, appuser_name, appuser_password`

func (s *PostgresStore) GetUserByName(ctx context.Context, name string) (*models.User, error) {
	var u models.User
	err := s.db(ctx).QueryRow(ctx,
		`SELECT `+userColumns+` FROM appuser WHERE lower(appuser_name) = lower($1)`, name,
	).Scan(&u.ID, &u.Name, &u.Password)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by name: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	err := s.db(ctx).QueryRow(ctx,
		`SELECT `+userColumns+` FROM appuser WHERE appuser_id = $1`, id,
	).Scan(&u.ID, &u.Name, &u.Password)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := s.db(ctx).Query(ctx,
		`SELECT `+userColumns+` FROM appuser ORDER BY appuser_id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Password); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	err := s.db(ctx).QueryRow(ctx,
		`INSERT INTO appuser (appuser_name, appuser_password) VALUES ($1, $2) RETURNING appuser_id`,
		user.Name, user.Password,
	).Scan(&user.ID)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetUserPassword(ctx context.Context, id int64, hash *string) error {
	tag, err := s.db(ctx).Exec(ctx,
		`UPDATE appuser SET appuser_password = $2 WHERE appuser_id = $1`, id, hash)
	if err != nil {
		return fmt.Errorf("set user password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- API Keys ---

func (s *PostgresStore) APIKeysByIdent(ctx context.Context, ident string) ([]*models.APIKey, error) {
	rows, err := s.db(ctx).Query(ctx,
		`SELECT appuserapikey_id, appuserapikey_appuser_id, appuserapikey_key
		 FROM appuserapikey WHERE appuserapikey_key LIKE $1 ORDER BY appuserapikey_id`,
		escapeLike(ident)+"-%")
	if err != nil {
		return nil, fmt.Errorf("get api keys by ident: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Key); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	err := s.db(ctx).QueryRow(ctx,
		`INSERT INTO appuserapikey (appuserapikey_appuser_id, appuserapikey_key) VALUES ($1, $2)
		 RETURNING appuserapikey_id`,
		key.UserID, key.Key,
	).Scan(&key.ID)
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

// --- Sessions ---

const sessionColumns = `appuserlogin_id, appuserlogin_appuser_id, appuserlogin_cookie,
	appuserlogin_nextcookie, appuserlogin_done, appuserlogin_created_at`

func scanSession(row pgx.Row) (*models.Session, error) {
	var sess models.Session
	err := row.Scan(&sess.ID, &sess.UserID, &sess.Cookie, &sess.NextCookie, &sess.Done, &sess.CreatedAt)
	return &sess, err
}

func (s *PostgresStore) CreateSession(ctx context.Context, sess *models.Session) error {
	err := s.db(ctx).QueryRow(ctx,
		`INSERT INTO appuserlogin (appuserlogin_appuser_id, appuserlogin_cookie)
		 VALUES ($1, $2) RETURNING appuserlogin_id, appuserlogin_created_at`,
		sess.UserID, sess.Cookie,
	).Scan(&sess.ID, &sess.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindSession(ctx context.Context, value string) (*models.Session, error) {
	sess, err := scanSession(s.db(ctx).QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM appuserlogin
		 WHERE NOT appuserlogin_done
		   AND (appuserlogin_cookie = $1 OR appuserlogin_nextcookie = $1)
		 ORDER BY appuserlogin_id LIMIT 1`, value))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) PromoteNextCookie(ctx context.Context, id int64, next string) (bool, error) {
	tag, err := s.db(ctx).Exec(ctx,
		`UPDATE appuserlogin
		 SET appuserlogin_cookie = appuserlogin_nextcookie, appuserlogin_nextcookie = NULL
		 WHERE appuserlogin_id = $1 AND appuserlogin_nextcookie = $2 AND NOT appuserlogin_done`,
		id, next)
	if err != nil {
		return false, fmt.Errorf("promote next cookie: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) AssignNextCookies(ctx context.Context) (int64, error) {
	tag, err := s.db(ctx).Exec(ctx,
		`UPDATE appuserlogin SET appuserlogin_nextcookie = gen_random_uuid()::text
		 WHERE NOT appuserlogin_done AND appuserlogin_nextcookie IS NULL`)
	if err != nil {
		return 0, fmt.Errorf("assign next cookies: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) EndSession(ctx context.Context, value string) (int64, error) {
	tag, err := s.db(ctx).Exec(ctx,
		`UPDATE appuserlogin SET appuserlogin_done = true, appuserlogin_nextcookie = NULL
		 WHERE NOT appuserlogin_done
		   AND (appuserlogin_cookie = $1 OR appuserlogin_nextcookie = $1)`, value)
	if err != nil {
		return 0, fmt.Errorf("end session: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, userID int64) ([]*models.Session, error) {
	rows, err := s.db(ctx).Query(ctx,
		`SELECT `+sessionColumns+` FROM appuserlogin
		 WHERE appuserlogin_appuser_id = $1 AND NOT appuserlogin_done
		 ORDER BY appuserlogin_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// --- Permissions ---

func (s *PostgresStore) PermissionNames(ctx context.Context, userID int64, roles []string) ([]string, error) {
	if roles == nil {
		roles = []string{}
	}
	rows, err := s.db(ctx).Query(ctx,
		`SELECT p.appperm_name
		 FROM appperm p
		 JOIN appuserxperm ux ON ux.appuserxperm_appperm_id = p.appperm_id
		 WHERE ux.appuserxperm_appuser_id = $1
		 UNION
		 SELECT p.appperm_name
		 FROM appperm p
		 JOIN apppermxgroup gx ON gx.apppermxgroup_appperm_id = p.appperm_id
		 JOIN appgroup g ON g.appgroup_id = gx.apppermxgroup_appgroup_id
		 WHERE g.appgroup_zoperole = ANY($2)
		 ORDER BY 1`, userID, roles)
	if err != nil {
		return nil, fmt.Errorf("get permission names: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan permission name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *PostgresStore) GrantUserPermission(ctx context.Context, userID int64, perm string) error {
	permID, err := s.ensurePermission(ctx, perm)
	if err != nil {
		return err
	}
	_, err = s.db(ctx).Exec(ctx,
		`INSERT INTO appuserxperm (appuserxperm_appuser_id, appuserxperm_appperm_id)
		 VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, permID)
	if err != nil {
		return fmt.Errorf("grant user permission: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeUserPermission(ctx context.Context, userID int64, perm string) error {
	tag, err := s.db(ctx).Exec(ctx,
		`DELETE FROM appuserxperm ux USING appperm p
		 WHERE ux.appuserxperm_appperm_id = p.appperm_id
		   AND ux.appuserxperm_appuser_id = $1 AND p.appperm_name = $2`, userID, perm)
	if err != nil {
		return fmt.Errorf("revoke user permission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GrantGroupPermission(ctx context.Context, role, perm string) error {
	permID, err := s.ensurePermission(ctx, perm)
	if err != nil {
		return err
	}

	var groupID int64
	err = s.db(ctx).QueryRow(ctx,
		`SELECT appgroup_id FROM appgroup WHERE appgroup_zoperole = $1 ORDER BY appgroup_id LIMIT 1`, role,
	).Scan(&groupID)
	if errors.Is(err, pgx.ErrNoRows) {
		err = s.db(ctx).QueryRow(ctx,
			`INSERT INTO appgroup (appgroup_zoperole) VALUES ($1) RETURNING appgroup_id`, role,
		).Scan(&groupID)
	}
	if err != nil {
		return fmt.Errorf("ensure group: %w", err)
	}

	_, err = s.db(ctx).Exec(ctx,
		`INSERT INTO apppermxgroup (apppermxgroup_appgroup_id, apppermxgroup_appperm_id)
		 VALUES ($1, $2) ON CONFLICT DO NOTHING`, groupID, permID)
	if err != nil {
		return fmt.Errorf("grant group permission: %w", err)
	}
	return nil
}

func (s *PostgresStore) ensurePermission(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.db(ctx).QueryRow(ctx,
		`INSERT INTO appperm (appperm_name) VALUES ($1)
		 ON CONFLICT (appperm_name) DO UPDATE SET appperm_name = EXCLUDED.appperm_name
		 RETURNING appperm_id`, name,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ensure permission: %w", err)
	}
	return id, nil
}

// escapeLike escapes LIKE metacharacters so ident matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
