package inmemdb

import (
	"sync"

	"github.com/trezcool/curricula/core/curriculum"
)

type (
	DB struct {
		sync.RWMutex
		seq       int
		curricula map[string]*row
		levels    map[curriculum.Level]map[string]*row
	}

	// row keeps the insertion order so queries are stable without a clock.
	row struct {
		seq        int
		curriculum curriculum.Curriculum
		entity     curriculum.Entity
	}
)

func Open() *DB {
	db := &DB{
		curricula: make(map[string]*row),
		levels:    make(map[curriculum.Level]map[string]*row, len(curriculum.Levels)),
	}
	for _, level := range curriculum.Levels {
		db.levels[level] = make(map[string]*row)
	}
	return db
}

func (db *DB) next() int {
	db.seq++
	return db.seq
}
