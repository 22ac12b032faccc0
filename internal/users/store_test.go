package users

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/posadmin/posadmin/internal/mail"
	"github.com/posadmin/posadmin/internal/rbac"
	"github.com/posadmin/posadmin/internal/shared"
)

type memStore struct {
	mu            sync.Mutex
	users         map[int64]*User
	verifications []*Verification
	nextID        int64
}

func newMemStore(users ...User) *memStore {
	s := &memStore{users: map[int64]*User{}, nextID: 100}
	for i := range users {
		u := users[i]
		s.users[u.ID] = &u
	}
	return s
}

func (s *memStore) ListUsers(ctx context.Context) ([]User, error) {
	var out []User
	for _, u := range s.users {
		out = append(out, *u)
	}
	return out, nil
}

func (s *memStore) ToggleStatus(ctx context.Context, id int64) (string, error) {
	u, ok := s.users[id]
	if !ok {
		return "", ErrUserNotFound
	}
	if u.Status == StatusActive {
		u.Status = StatusInactive
	} else {
		u.Status = StatusActive
	}
	return u.Status, nil
}

func (s *memStore) MaxCodeSuffix(ctx context.Context, prefix string) (int, error) {
	max := 0
	for _, u := range s.users {
		if !strings.HasPrefix(u.UserCode, prefix) {
			continue
		}
		n := 0
		ok := len(u.UserCode) > len(prefix)
		for _, c := range u.UserCode[len(prefix):] {
			if c < '0' || c > '9' {
				ok = false
				break
			}
			n = n*10 + int(c-'0')
		}
		if ok && n > max {
			max = n
		}
	}
	return max, nil
}

func (s *memStore) CodeExists(ctx context.Context, code string) (bool, error) {
	for _, u := range s.users {
		if u.UserCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) EmailExists(ctx context.Context, email string) (bool, error) {
	id, _ := s.UserIDByEmail(ctx, email)
	return id != nil, nil
}

func (s *memStore) UserIDByEmail(ctx context.Context, email string) (*int64, error) {
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			id := u.ID
			return &id, nil
		}
	}
	return nil, nil
}

func (s *memStore) CreateUser(ctx context.Context, nu NewUser) (int64, error) {
	s.nextID++
	s.users[s.nextID] = &User{ID: s.nextID, UserCode: nu.UserCode, Name: nu.Name, Email: nu.Email, RoleID: nu.RoleID, Status: StatusActive}
	return s.nextID, nil
}

func (s *memStore) LastIssuedAt(ctx context.Context, email string) (time.Time, error) {
	var last time.Time
	for _, v := range s.verifications {
		if v.Email == email && v.CreatedAt.After(last) {
			last = v.CreatedAt
		}
	}
	return last, nil
}

func (s *memStore) CreateVerification(ctx context.Context, v Verification) (int64, error) {
	s.nextID++
	v.ID = s.nextID
	s.verifications = append(s.verifications, &v)
	return v.ID, nil
}

func (s *memStore) DeleteVerification(ctx context.Context, id int64) error {
	for i, v := range s.verifications {
		if v.ID == id {
			s.verifications = append(s.verifications[:i], s.verifications[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *memStore) LatestPendingVerification(ctx context.Context, email string) (Verification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.verifications) - 1; i >= 0; i-- {
		v := s.verifications[i]
		if v.Email == email && v.VerifiedAt == nil {
			return *v, nil
		}
	}
	return Verification{}, ErrOTPNotFound
}

func (s *memStore) ReserveAttempt(ctx context.Context, id int64, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.verifications {
		if v.ID != id {
			continue
		}
		if v.Attempts >= limit {
			return 0, ErrOTPLocked
		}
		v.Attempts++
		return v.Attempts, nil
	}
	return 0, ErrOTPNotFound
}

func (s *memStore) MarkVerified(ctx context.Context, id int64) error {
	now := time.Now()
	for _, v := range s.verifications {
		if v.ID == id {
			v.VerifiedAt = &now
			return nil
		}
	}
	return ErrOTPNotFound
}

func (s *memStore) SetEmailVerified(ctx context.Context, email string) (int64, error) {
	var n int64
	now := time.Now()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			u.EmailVerifiedAt = &now
			n++
		}
	}
	return n, nil
}

func (s *memStore) VerifiedSince(ctx context.Context, email string, since time.Time) (bool, error) {
	for _, v := range s.verifications {
		if v.Email == email && v.VerifiedAt != nil && !v.VerifiedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx, s)
}

type stubSettings map[string]string

func (s stubSettings) String(ctx context.Context, key, def string) (string, error) {
	if v, ok := s[key]; ok {
		return v, nil
	}
	return def, nil
}

type stubRoles struct{}

func (stubRoles) ListRoles(ctx context.Context) ([]rbac.Role, error) {
	return []rbac.Role{{ID: 1, Name: "admin"}}, nil
}

func (stubRoles) GetRole(ctx context.Context, id int64) (rbac.Role, error) {
	if id == 1 {
		return rbac.Role{ID: 1, Name: "admin"}, nil
	}
	return rbac.Role{}, rbac.ErrNotFound
}

type outbox struct {
	sent []mail.Message
	err  error
}

func (o *outbox) Dispatch(ctx context.Context, msg mail.Message) error {
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, msg)
	return nil
}

type activitySpy struct{ entries []shared.ActivityLog }

func (a *activitySpy) Record(ctx context.Context, log shared.ActivityLog) error {
	a.entries = append(a.entries, log)
	return nil
}

var _ Store = (*memStore)(nil)
