package models

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/sha3"

	"github.com/chainid/console/internal/db"
)

const (
	bcryptCost     = 10
	shake256Length = 16 // bytes → 32 hex chars
	jwtExpiration  = 30 * 24 * time.Hour
	secretAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	secretLength   = 64
)

// Role is the authorization level of a user.
type Role int

const (
	RoleAdministrator Role = 1
	RoleStandard      Role = 2
)

func (r Role) String() string {
	switch r {
	case RoleAdministrator:
		return "administrator"
	case RoleStandard:
		return "user"
	default:
		return "unknown"
	}
}

type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
	Active   bool   `json:"active"`
}

// IsAdmin reports whether the user has the administrator role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdministrator
}

type JWTClaims struct {
	Username string `json:"username"`
	H        string `json:"h"`
	jwt.RegisteredClaims
}

type UserStore struct {
	db *bolt.DB
}

func NewUserStore(database *bolt.DB) *UserStore {
	return &UserStore{db: database}
}

// itob converts a uint64 to an 8-byte big-endian slice for use as a bbolt key.
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// FindByUsername returns the user or nil if not found or inactive.
func (s *UserStore) FindByUsername(username string) (*User, error) {
	var u *User
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(db.BucketUsers).Get([]byte(username))
		if v == nil {
			return nil
		}
		u = &User{}
		if err := json.Unmarshal(v, u); err != nil {
			return fmt.Errorf("unmarshal user: %w", err)
		}
		if !u.Active {
			u = nil
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

// FindByID returns the user or nil if not found.
func (s *UserStore) FindByID(id int) (*User, error) {
	var u *User
	err := s.db.View(func(tx *bolt.Tx) error {
		// Look up username from ID index
		username := tx.Bucket(db.BucketUsersByID).Get(itob(uint64(id)))
		if username == nil {
			return nil
		}
		v := tx.Bucket(db.BucketUsers).Get(username)
		if v == nil {
			return nil
		}
		u = &User{}
		return json.Unmarshal(v, u)
	})
	if err != nil {
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return u, nil
}

// List returns every user in ID order.
func (s *UserStore) List() ([]User, error) {
	var users []User
	err := s.db.View(func(tx *bolt.Tx) error {
		byName := tx.Bucket(db.BucketUsers)
		return tx.Bucket(db.BucketUsersByID).ForEach(func(_, username []byte) error {
			v := byName.Get(username)
			if v == nil {
				return nil
			}
			var u User
			if err := json.Unmarshal(v, &u); err != nil {
				return fmt.Errorf("unmarshal user %q: %w", string(username), err)
			}
			users = append(users, u)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// Count returns the number of users in the database.
func (s *UserStore) Count() (int, error) {
	var count int
	err := s.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(db.BucketUsers).Stats().KeyN
		return nil
	})
	return count, err
}

// Create inserts a new user with a bcrypt-hashed password.
func (s *UserStore) Create(username, password string, role Role) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var u *User
	err = s.db.Update(func(tx *bolt.Tx) error {
		users := tx.Bucket(db.BucketUsers)
		if users.Get([]byte(username)) != nil {
			return fmt.Errorf("user %q already exists", username)
		}

		// Get next ID from the users_by_id bucket sequence
		idBucket := tx.Bucket(db.BucketUsersByID)
		seq, err := idBucket.NextSequence()
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}

		u = &User{
			ID:       int(seq),
			Username: username,
			Password: string(hash),
			Role:     role,
			Active:   true,
		}

		data, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("marshal user: %w", err)
		}

		if err := users.Put([]byte(username), data); err != nil {
			return err
		}

		// Store ID → username index
		return idBucket.Put(itob(seq), []byte(username))
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// VerifyPassword checks a plaintext password against the stored bcrypt hash.
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// CreateJWT creates an HS256 JWT token for the user. The token carries a
// digest of the password hash so that it stops verifying once the password
// changes.
func CreateJWT(user *User, secret string) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		Username: user.Username,
		H:        Shake256Hex(user.Password, shake256Length),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(jwtExpiration)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// VerifyJWT parses and validates a JWT token.
func VerifyJWT(tokenString, secret string) (*JWTClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
	)
	token, err := parser.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// Matches reports whether the token was issued for this user and the user's
// password has not changed since.
func (c *JWTClaims) Matches(user *User) bool {
	return user != nil && c.Username == user.Username &&
		c.H == Shake256Hex(user.Password, shake256Length)
}

// Shake256Hex computes SHAKE256 of data and returns the first `length` bytes as hex.
func Shake256Hex(data string, length int) string {
	if data == "" {
		return ""
	}
	h := sha3.NewShake256()
	h.Write([]byte(data))
	out := make([]byte, length)
	h.Read(out)
	return hex.EncodeToString(out)
}

// GenSecret generates a cryptographically random alphanumeric string.
func GenSecret(length int) (string, error) {
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(secretAlphabet))))
		if err != nil {
			return "", err
		}
		b[i] = secretAlphabet[n.Int64()]
	}
	return string(b), nil
}
