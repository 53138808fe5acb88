package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goToken "github.com/MrEthical07/goToken"
	"github.com/MrEthical07/goToken/password"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var ErrNotFound = errors.New("account not found")

type accountModel struct {
	ID           string    `gorm:"column:id;primaryKey;size:36"`
	Username     string    `gorm:"column:username;uniqueIndex;size:255;not null"`
	PasswordHash string    `gorm:"column:password_hash;not null"`
	Role         string    `gorm:"column:role;size:32;not null"`
	Name         string    `gorm:"column:name"`
	Phone        *string   `gorm:"column:phone"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (accountModel) TableName() string { return "accounts" }

// Account is the public view of a stored account.
type Account struct {
	ID        string
	Username  string
	Role      string
	Name      string
	Phone     string
	CreatedAt time.Time
}

func toAccount(m accountModel) Account {
	var phone string
	if m.Phone != nil {
		phone = *m.Phone
	}
	return Account{
		ID:        m.ID,
		Username:  m.Username,
		Role:      m.Role,
		Name:      m.Name,
		Phone:     phone,
		CreatedAt: m.CreatedAt,
	}
}

// Store implements goToken.UserProvider. New passwords are hashed with
// Argon2id; bcrypt hashes from imported accounts still verify and are
// rehashed on the next successful login.
type Store struct {
	db      *gorm.DB
	pwCfg   password.Config
	hasher  *password.Argon2
	dummyPH string
}

type Option func(*Store)

// WithPasswordConfig overrides password.DefaultConfig.
func WithPasswordConfig(cfg password.Config) Option {
	return func(s *Store) {
		s.pwCfg = cfg
	}
}

// Open connects to dsn and migrates the accounts table.
func Open(dsn string, opts ...Option) (*Store, error) {
	db, err := Connect(dsn)
	if err != nil {
		return nil, fmt.Errorf("open user database: %w", err)
	}
	return New(db, opts...)
}

// Connect opens PostgreSQL for postgres:// and postgresql:// DSNs and the
// pure-Go SQLite driver for anything else.
func Connect(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return gorm.Open(postgres.Open(dsn), cfg)
	}
	return gorm.Open(gormsqlite.New(gormsqlite.Config{
		DriverName: "sqlite",
		DSN:        dsn,
	}), cfg)
}

func New(db *gorm.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, errors.New("nil gorm db")
	}
	s := &Store{db: db, pwCfg: password.DefaultConfig()}
	for _, opt := range opts {
		opt(s)
	}

	hasher, err := password.NewArgon2(s.pwCfg)
	if err != nil {
		return nil, err
	}
	s.hasher = hasher
	// Compared against for unknown usernames so lookups cost the same
	// whether or not the account exists.
	if s.dummyPH, err = hasher.Hash("gotoken-dummy-password"); err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&accountModel{}); err != nil {
		return nil, fmt.Errorf("migrate accounts: %w", err)
	}
	return s, nil
}

func normalizeUsername(u string) string {
	return strings.ToLower(strings.TrimSpace(u))
}

func (s *Store) findByUsername(ctx context.Context, username string) (accountModel, error) {
	var m accountModel
	tx := s.db.WithContext(ctx).Where("username = ?", normalizeUsername(username)).First(&m)
	if tx.Error != nil {
		if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
			return m, ErrNotFound
		}
		return m, tx.Error
	}
	return m, nil
}

// VerifyCredentials returns goToken.ErrInvalidCredentials for an unknown
// username or a wrong password.
func (s *Store) VerifyCredentials(ctx context.Context, username, pw string) (goToken.Identity, error) {
	m, err := s.findByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		_, _ = s.hasher.Verify(pw, s.dummyPH)
		return goToken.Identity{}, goToken.ErrInvalidCredentials
	}
	if err != nil {
		return goToken.Identity{}, err
	}

	ok, rehash := s.checkPassword(pw, m.PasswordHash)
	if !ok {
		return goToken.Identity{}, goToken.ErrInvalidCredentials
	}
	if rehash {
		s.upgradeHash(ctx, m.ID, pw)
	}
	return goToken.Identity{Subject: m.ID, Role: m.Role}, nil
}

// checkPassword reports whether pw matches and whether the stored hash
// should be replaced.
func (s *Store) checkPassword(pw, stored string) (ok, rehash bool) {
	if !password.IsPHC(stored) {
		if bcrypt.CompareHashAndPassword([]byte(stored), []byte(pw)) != nil {
			return false, false
		}
		return true, true
	}

	ok, err := s.hasher.Verify(pw, stored)
	if err != nil || !ok {
		return false, false
	}
	up, err := s.hasher.NeedsUpgrade(stored)
	return true, err == nil && up
}

// upgradeHash is best effort; the login already succeeded.
func (s *Store) upgradeHash(ctx context.Context, id, pw string) {
	hash, err := s.hasher.Hash(pw)
	if err != nil {
		return
	}
	s.db.WithContext(ctx).Model(&accountModel{}).Where("id = ?", id).Update("password_hash", hash)
}

// CreateAccount returns goToken.ErrAccountExists when the username is taken
// and goToken.ErrInvalidCredentials for an empty username or a password
// outside the accepted length.
func (s *Store) CreateAccount(ctx context.Context, info goToken.RegistrationInfo) (goToken.Identity, error) {
	username := normalizeUsername(info.Username)
	if username == "" {
		return goToken.Identity{}, goToken.ErrInvalidCredentials
	}

	if _, err := s.findByUsername(ctx, username); err == nil {
		return goToken.Identity{}, goToken.ErrAccountExists
	} else if !errors.Is(err, ErrNotFound) {
		return goToken.Identity{}, err
	}

	hash, err := s.hasher.Hash(info.Password)
	if errors.Is(err, password.ErrPasswordTooShort) || errors.Is(err, password.ErrPasswordTooLong) {
		return goToken.Identity{}, goToken.ErrInvalidCredentials
	}
	if err != nil {
		return goToken.Identity{}, fmt.Errorf("hash password: %w", err)
	}

	var phone *string
	if p := strings.TrimSpace(info.Phone); p != "" {
		phone = &p
	}
	m := accountModel{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		Role:         RoleUser,
		Name:         strings.TrimSpace(info.Name),
		Phone:        phone,
	}

	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return goToken.Identity{}, goToken.ErrAccountExists
		}
		return goToken.Identity{}, err
	}
	return goToken.Identity{Subject: m.ID, Role: m.Role}, nil
}

// Get returns the account for subject (the account ID).
func (s *Store) Get(ctx context.Context, subject string) (Account, error) {
	var m accountModel
	tx := s.db.WithContext(ctx).Where("id = ?", subject).First(&m)
	if tx.Error != nil {
		if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
			return Account{}, ErrNotFound
		}
		return Account{}, tx.Error
	}
	return toAccount(m), nil
}

// SetRole changes the role claim future tokens carry for username.
// Tokens already issued keep their role until they expire or rotate.
func (s *Store) SetRole(ctx context.Context, username, role string) error {
	tx := s.db.WithContext(ctx).
		Model(&accountModel{}).
		Where("username = ?", normalizeUsername(username)).
		Update("role", role)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
