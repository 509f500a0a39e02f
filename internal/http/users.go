package httpapi

import (
	"strings"
	"sync"

	"github.com/fairyhunter13/storefront-client/internal/model"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type account struct {
	user model.User
	hash []byte
}

// UserStore keeps registered accounts in memory, keyed by lowercased email.
type UserStore struct {
	mu      sync.RWMutex
	byEmail map[string]*account
	cost    int
}

// NewUserStore creates an empty store. cost is the bcrypt cost; values
// outside bcrypt's range use bcrypt.DefaultCost.
func NewUserStore(cost int) *UserStore {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &UserStore{byEmail: map[string]*account{}, cost: cost}
}

// Register creates an account and returns its public profile.
func (s *UserStore) Register(reg model.Registration) (model.User, error) {
	email := strings.ToLower(strings.TrimSpace(reg.Email))
	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), s.cost)
	if err != nil {
		return model.User{}, errors.Wrap(err, "hash password")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[email]; ok {
		return model.User{}, ErrEmailTaken
	}
	u := model.User{ID: model.ID(uuid.NewString()), Username: strings.TrimSpace(reg.Username), Email: email}
	s.byEmail[email] = &account{user: u, hash: hash}
	return u, nil
}

// Authenticate checks a password and returns the matching user.
func (s *UserStore) Authenticate(email, password string) (model.User, error) {
	s.mu.RLock()
	acc, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	s.mu.RUnlock()
	if !ok {
		return model.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acc.hash, []byte(password)); err != nil {
		return model.User{}, ErrInvalidCredentials
	}
	return acc.user, nil
}

func (s *UserStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byEmail)
}
