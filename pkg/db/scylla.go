package db

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"
)

type Session struct {
	*gocql.Session
}

func NewSession(hosts []string, keyspace string) (*Session, error) {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = 5 * time.Second
	cluster.ConnectTimeout = 5 * time.Second

	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 3,
		Min:        100 * time.Millisecond,
		Max:        1 * time.Second,
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connect scylla %v/%s: %w", hosts, keyspace, err)
	}
	return &Session{Session: session}, nil
}

var tables = []string{
	// one row per chunk; messages is the compact JSON array
	`CREATE TABLE IF NOT EXISTS message_chunks (
		room_id text,
		chunk_num int,
		messages text,
		message_count int,
		updated_at timestamp,
		PRIMARY KEY (room_id, chunk_num)
	) WITH CLUSTERING ORDER BY (chunk_num DESC)`,

	`CREATE TABLE IF NOT EXISTS read_markers (
		room_id text,
		user_id text,
		message_id text,
		read_ts bigint,
		PRIMARY KEY (room_id, user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS user_rooms (
		user_id text,
		room_id text,
		last_updated timestamp,
		PRIMARY KEY (user_id, room_id)
	)`,
}

// Migrate creates the keyspace and tables if they do not exist. It connects
// through the system keyspace first, so it works on an empty cluster.
func Migrate(hosts []string, keyspace string) error {
	sys, err := NewSession(hosts, "system")
	if err != nil {
		return err
	}
	err = sys.Query(fmt.Sprintf(`CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = { 'class' : 'SimpleStrategy', 'replication_factor' : 1 }`, keyspace)).Exec()
	sys.Close()
	if err != nil {
		return fmt.Errorf("create keyspace: %w", err)
	}

	session, err := NewSession(hosts, keyspace)
	if err != nil {
		return err
	}
	defer session.Close()

	for _, stmt := range tables {
		if err := session.Query(stmt).Exec(); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

// Drop removes the tables created by Migrate.
func Drop(session *Session) error {
	for _, name := range []string{"message_chunks", "read_markers", "user_rooms"} {
		if err := session.Query("DROP TABLE IF EXISTS " + name).Exec(); err != nil {
			return fmt.Errorf("drop %s: %w", name, err)
		}
	}
	return nil
}
