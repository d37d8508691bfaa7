package store

import (
	"strconv"

	"github.com/forest6511/snipctl/pkg/audit"
)

// Migrate encrypts every stored value that is still plaintext and returns how
// many lines changed. The file is rewritten only when at least one did, raw
// lines are kept verbatim, and a second run changes nothing.
func (s *Store) Migrate() (int, error) {
	n, err := s.migrate()
	if err != nil || n > 0 {
		s.auditEvent(audit.OpMigrate, "", err, map[string]string{"count": strconv.Itoa(n)})
	}
	return n, err
}

func (s *Store) migrate() (int, error) {
	db, err := s.load()
	if err != nil {
		return 0, err
	}

	changed := 0
	for i, l := range db.lines {
		if l.IsRaw() || l.Payload == "" {
			continue
		}
		if s.codec.Classify(l).IsEncrypted() {
			continue
		}
		sealed, err := s.codec.SealPayload(l)
		if err != nil {
			return 0, err
		}
		db.lines[i] = sealed
		changed++
	}

	if changed == 0 {
		return 0, nil
	}
	if err := s.persist(db); err != nil {
		return 0, err
	}
	s.logger.Info("encrypted legacy plaintext values", "count", changed, "path", s.path)
	return changed, nil
}
