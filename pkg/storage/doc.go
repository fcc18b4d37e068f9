// Package storage holds the flood history backends.
//
// SQLHistoryStore works against an existing table (postgres via lib/pq or
// sqlite via go-sqlite3) with ip and timestamp columns. RedisHistoryStore
// keeps only the most recent action per address.
//
//	db, err := storage.OpenDB(ctx, storage.DBConfig{Dialect: storage.DialectSQLite, URL: "file:keyhole.db"})
//	store, err := storage.NewSQLHistoryStore(db, storage.DialectSQLite, "submissions", time.UTC)
//	history := storage.Instrument(store, "sqlite", metrics)
package storage
