package storage

import (
	"encoding/json"
	"fmt"

	"labelaudit/internal/users"

	"go.etcd.io/bbolt"
)

// PutUser stores or replaces an account keyed by username
func (s *Store) PutUser(u users.User) error {
	if err := u.Validate(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("marshal user: %w", err)
		}
		return tx.Bucket([]byte(usersBucket)).Put([]byte(u.Username), data)
	})
}

// User looks up an account by username
func (s *Store) User(username string) (users.User, error) {
	var u users.User

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(usersBucket)).Get([]byte(username))
		if data == nil {
			return fmt.Errorf("user %q: %w", username, ErrNotFound)
		}
		return json.Unmarshal(data, &u)
	})

	return u, err
}
