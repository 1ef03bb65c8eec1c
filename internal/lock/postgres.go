package lock

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres holds locks as session advisory locks. Each held lock pins one
// pooled connection until it is released.
type Postgres struct {
	pool *pgxpool.Pool

	mu   sync.Mutex
	held map[string]*pgxpool.Conn
}

// NewPostgres creates an advisory-lock backend on pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, held: make(map[string]*pgxpool.Conn)}
}

// LockID derives the advisory lock key of name from the first eight bytes
// of its SHA-256.
func LockID(name string) int64 {
	sum := sha256.Sum256([]byte(name))
	var id int64
	for i := range 8 {
		id = (id << 8) | int64(sum[i])
	}
	return id
}

func (p *Postgres) TryLock(ctx context.Context, name, owner string) (bool, error) {
	key := name + "\x00" + owner

	p.mu.Lock()
	_, already := p.held[key]
	p.mu.Unlock()
	if already {
		return true, nil
	}

	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	var ok bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", LockID(name)).Scan(&ok); err != nil {
		conn.Release()
		return false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !ok {
		conn.Release()
		return false, nil
	}

	p.mu.Lock()
	p.held[key] = conn
	p.mu.Unlock()
	return true, nil
}

func (p *Postgres) Unlock(ctx context.Context, name, owner string) error {
	key := name + "\x00" + owner

	p.mu.Lock()
	conn, ok := p.held[key]
	delete(p.held, key)
	p.mu.Unlock()
	if !ok {
		return nil
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", LockID(name)); err != nil {
		return fmt.Errorf("advisory unlock: %w", err)
	}
	return nil
}
