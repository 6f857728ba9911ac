package main

import (
	"fmt"
	"path/filepath"

	"github.com/fwojciec/eka"
	"github.com/fwojciec/eka/bolt"
	ekajson "github.com/fwojciec/eka/json"
	"github.com/fwojciec/eka/sqlite"
)

// Database file names inside the data directory.
const (
	boltFile   = "conversations.db"
	sqliteFile = "conversations.sqlite"
)

// openStore opens the conversation store of the given kind under dir. The
// returned close function releases it.
func openStore(kind, dir string) (eka.ConversationStore, func() error, error) {
	switch kind {
	case storeJSON:
		return ekajson.NewStore(dir), func() error { return nil }, nil
	case storeBolt:
		s, err := bolt.Open(filepath.Join(dir, boltFile))
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case storeSQLite:
		s, err := sqlite.Open(filepath.Join(dir, sqliteFile))
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", kind)
	}
}
