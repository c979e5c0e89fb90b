package inmemdb

import (
	"sync"

	"github.com/nexaric/portal/core/payment"
)

type (
	DB struct {
		attempts *attemptTable
	}

	attemptTable struct {
		sync.RWMutex
		table map[string]payment.Attempt
	}
)

func Open() *DB {
	return &DB{
		attempts: &attemptTable{table: make(map[string]payment.Attempt)},
	}
}

// Reset empties every table.
func (db *DB) Reset() {
	db.attempts.Lock()
	db.attempts.table = make(map[string]payment.Attempt)
	db.attempts.Unlock()
}
