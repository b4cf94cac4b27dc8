package store

import (
	"fmt"

	"github.com/mahaj/chunkchat/pkg/db"
)

// Open returns the Store named by driver ("scylla" or "memory") and a
// function that releases it.
func Open(driver string, hosts []string, keyspace string) (Store, func(), error) {
	switch driver {
	case "memory":
		return NewMemory(), func() {}, nil
	case "scylla", "":
		session, err := db.NewSession(hosts, keyspace)
		if err != nil {
			return nil, nil, err
		}
		return NewScylla(session), session.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", driver)
}
