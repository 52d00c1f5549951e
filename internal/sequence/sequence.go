// Package sequence implements the numbering collaborator: unique,
// human-readable references for new requisitions.
package sequence

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KeyRequisition is the sequence key used for purchase requisitions.
const KeyRequisition = "purchase.requisition"

// Numbering hands out the next unique reference for a sequence key. It never
// returns the creation placeholder.
type Numbering interface {
	Next(ctx context.Context, key string) (string, error)
}

// Sequence is one named counter row.
type Sequence struct {
	Key     string `gorm:"primaryKey"`
	Prefix  string
	Padding int
	Counter int64
}

// Store is a database-backed Numbering implementation. Each Next call
// increments the counter row under a row lock so concurrent creations never
// receive the same reference.
type Store struct {
	db      *gorm.DB
	prefix  string
	padding int
}

// NewStore builds a Store creating missing sequences on demand with the
// given prefix and zero padding.
func NewStore(db *gorm.DB, prefix string, padding int) *Store {
	if prefix == "" {
		prefix = "PR"
	}
	if padding <= 0 {
		padding = 5
	}
	return &Store{db: db, prefix: prefix, padding: padding}
}

// Next returns the next reference for key, e.g. "PR00042".
func (s *Store) Next(ctx context.Context, key string) (string, error) {
	var ref string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var seq Sequence
		err := q.First(&seq, "key = ?", key).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			seq = Sequence{Key: key, Prefix: s.prefix, Padding: s.padding, Counter: 0}
		case err != nil:
			return errors.WithStack(err)
		}
		seq.Counter++
		ref = fmt.Sprintf("%s%0*d", seq.Prefix, seq.Padding, seq.Counter)
		return errors.WithStack(tx.Save(&seq).Error)
	})
	if err != nil {
		return "", err
	}
	return ref, nil
}
