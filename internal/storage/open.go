package storage

import (
	"context"
	"fmt"
)

// Backend kinds accepted by Open.
const (
	KindSQLite = "sqlite"
	KindMongo  = "mongo"
	KindRedis  = "redis"
	KindMemory = "memory"
)

// Options selects and configures a Backend.
type Options struct {
	Kind    string
	DataDir string

	MongoURI      string
	MongoDatabase string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Open returns the backend named by opts.Kind. An empty kind means SQLite.
func Open(ctx context.Context, opts Options) (Backend, error) {
	switch opts.Kind {
	case "", KindSQLite:
		return OpenSQLite(opts.DataDir)
	case KindMongo:
		if opts.MongoURI == "" {
			return nil, fmt.Errorf("mongo backend requires a URI")
		}
		db := opts.MongoDatabase
		if db == "" {
			db = "apex"
		}
		return OpenMongo(ctx, opts.MongoURI, db)
	case KindRedis:
		if opts.RedisAddr == "" {
			return nil, fmt.Errorf("redis backend requires an address")
		}
		return OpenRedis(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisDB)
	case KindMemory:
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Kind)
	}
}
