// Package boltrepo provides a BBolt-backed principal repository, used when no
// relational store is configured.
package boltrepo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shelfward/shelfward-server/principals"
	"go.etcd.io/bbolt"
)

const (
	principalBucket = "principals"
	emailIdxBucket  = "principal_email_idx"
)

var _ principals.Repo = (*Store)(nil)

// Store implements principals.Repo backed by a BBolt database.
type Store struct {
	db *bbolt.DB
}

// record is the stored form of a Principal. The Principal JSON tags hide the
// credential fields from API responses, so persistence needs its own shape.
type record struct {
	ID           string              `json:"id"`
	Email        string              `json:"email"`
	Role         principals.RoleType `json:"role"`
	PasswordHash string              `json:"password_hash"`
	Blocked      bool                `json:"blocked"`
	MFAEnabled   bool                `json:"mfa_enabled"`
	SessionID    *string             `json:"session_id,omitempty"`
	OTPCode      *string             `json:"otp_code,omitempty"`
	APIKey       *string             `json:"api_key,omitempty"`
	DateJoined   time.Time           `json:"date_joined"`
	LastLogin    time.Time           `json:"last_login"`
}

// NewRepository returns a Repo backed by the given BBolt database.
func NewRepository(db *bbolt.DB) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(principalBucket)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(emailIdxBucket))
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "[boltrepo.NewRepository] creating buckets")
	}
	return &Store{db: db}, nil
}

// NewRepositoryFromFile opens a BBolt database at the given path and returns a new Repo.
func NewRepositoryFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, errors.Wrap(err, "[boltrepo.NewRepositoryFromFile] opening bbolt db")
	}
	return NewRepository(db)
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Upsert(_ context.Context, p *principals.Principal) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.DateJoined.IsZero() {
		p.DateJoined = time.Now()
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		rec := toRecord(p)
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := tx.Bucket([]byte(principalBucket)).Put([]byte(rec.ID), data); err != nil {
			return err
		}
		return tx.Bucket([]byte(emailIdxBucket)).Put([]byte(rec.Email), []byte(rec.ID))
	})
}

func (s *Store) Delete(_ context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(principalBucket))
		data := b.Get([]byte(id))
		if data == nil {
			return principals.ErrNotFound
		}
		var rec record
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		if err := tx.Bucket([]byte(emailIdxBucket)).Delete([]byte(rec.Email)); err != nil {
			return err
		}
		return b.Delete([]byte(id))
	})
}

func (s *Store) GetByID(_ context.Context, id string) (*principals.Principal, error) {
	var p *principals.Principal
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(principalBucket)).Get([]byte(id))
		if data == nil {
			return principals.ErrNotFound
		}
		var rec record
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		p = fromRecord(&rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*principals.Principal, error) {
	var id string
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(emailIdxBucket)).Get([]byte(email))
		if v == nil {
			return principals.ErrNotFound
		}
		id = string(v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

func (s *Store) List(_ context.Context, offset, limit int) ([]*principals.Principal, error) {
	var list []*principals.Principal
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(principalBucket)).Cursor()
		i := 0
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if i < offset {
				i++
				continue
			}
			if limit > 0 && len(list) >= limit {
				break
			}
			var rec record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			list = append(list, fromRecord(&rec))
			i++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (s *Store) SetSession(_ context.Context, id, sessionID string) error {
	return s.mutate(id, func(rec *record) {
		rec.SessionID = &sessionID
	})
}

func (s *Store) SetAPIKey(_ context.Context, id, apiKey string) error {
	return s.mutate(id, func(rec *record) {
		rec.APIKey = &apiKey
		rec.LastLogin = time.Now()
	})
}

func (s *Store) SetOTP(_ context.Context, id, code string) error {
	return s.mutate(id, func(rec *record) {
		rec.OTPCode = &code
	})
}

func (s *Store) ClearOTP(_ context.Context, id string) error {
	return s.mutate(id, func(rec *record) {
		rec.OTPCode = nil
	})
}

func (s *Store) ClearSession(_ context.Context, id string) error {
	return s.mutate(id, func(rec *record) {
		rec.SessionID = nil
		rec.APIKey = nil
		rec.OTPCode = nil
	})
}

func (s *Store) SetBlocked(_ context.Context, id string, blocked bool) error {
	return s.mutate(id, func(rec *record) {
		rec.Blocked = blocked
	})
}

// mutate applies fn to the stored record inside a single update transaction.
func (s *Store) mutate(id string, fn func(*record)) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(principalBucket))
		data := b.Get([]byte(id))
		if data == nil {
			return principals.ErrNotFound
		}
		var rec record
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		fn(&rec)
		out, err := json.Marshal(&rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), out)
	})
}

func toRecord(p *principals.Principal) *record {
	return &record{
		ID:           p.ID,
		Email:        p.Email,
		Role:         p.Role,
		PasswordHash: p.PasswordHash,
		Blocked:      p.Blocked,
		MFAEnabled:   p.MFAEnabled,
		SessionID:    p.SessionID,
		OTPCode:      p.OTPCode,
		APIKey:       p.APIKey,
		DateJoined:   p.DateJoined,
		LastLogin:    p.LastLogin,
	}
}

func fromRecord(rec *record) *principals.Principal {
	return &principals.Principal{
		ID:           rec.ID,
		Email:        rec.Email,
		Role:         rec.Role,
		PasswordHash: rec.PasswordHash,
		Blocked:      rec.Blocked,
		MFAEnabled:   rec.MFAEnabled,
		SessionID:    rec.SessionID,
		OTPCode:      rec.OTPCode,
		APIKey:       rec.APIKey,
		DateJoined:   rec.DateJoined,
		LastLogin:    rec.LastLogin,
	}
}
