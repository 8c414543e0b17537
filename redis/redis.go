// Package redis journals pending transactions in Redis.
package redis

import (
	"encoding/json"
	"fmt"
	"time"

	"sigresponder/types"

	"github.com/gomodule/redigo/redis"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const pendingSet = "responder:pending"

func timeoutDialOptions(password string, db int) []redis.DialOption {
	return []redis.DialOption{
		redis.DialConnectTimeout(5 * time.Second),
		redis.DialReadTimeout(5 * time.Second),
		redis.DialWriteTimeout(5 * time.Second),
		redis.DialPassword(password),
		redis.DialDatabase(db),
	}
}

func recordKey(txID string) string {
	return fmt.Sprintf("responder:pending:%s", txID)
}

type Store struct {
	pool   *redis.Pool
	logger *zap.Logger
}

// NewStore dials lazily through a pool but pings once so a bad address is
// reported at startup.
func NewStore(host string, port int, password string, db int, logger *zap.Logger) (*Store, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	s := &Store{
		pool: &redis.Pool{
			MaxIdle:     5,
			IdleTimeout: 4 * time.Minute,
			Dial:        func() (redis.Conn, error) { return redis.Dial("tcp", addr, timeoutDialOptions(password, db)...) },
		},
		logger: logger,
	}

	conn := s.pool.Get()
	defer conn.Close()
	if _, err := conn.Do("PING"); err != nil {
		s.pool.Close()
		return nil, errors.Wrapf(err, "redis %s", addr)
	}
	return s, nil
}

func (s *Store) Save(p *types.PendingTransaction) error {
	if p == nil || p.TxID == "" {
		return errors.New("pending transaction without id")
	}
	conn := s.pool.Get()
	defer conn.Close()

	data, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "marshal pending transaction")
	}

	key := recordKey(p.TxID)
	if _, err := conn.Do("SET", key, data); err != nil {
		return errors.Wrap(err, "redis SET")
	}
	// also add the key to the index set
	if _, err := conn.Do("SADD", pendingSet, key); err != nil {
		return errors.Wrap(err, "redis SADD")
	}
	return nil
}

func (s *Store) Delete(txID string) error {
	conn := s.pool.Get()
	defer conn.Close()

	key := recordKey(txID)
	if _, err := conn.Do("SREM", pendingSet, key); err != nil {
		return errors.Wrap(err, "redis SREM")
	}
	if _, err := conn.Do("DEL", key); err != nil {
		return errors.Wrap(err, "redis DEL")
	}
	return nil
}

// LoadAll walks the index set. Keys whose record vanished are skipped.
func (s *Store) LoadAll() ([]*types.PendingTransaction, error) {
	conn := s.pool.Get()
	defer conn.Close()

	var out []*types.PendingTransaction
	var cursor int64
	for {
		values, err := redis.Values(conn.Do("SSCAN", pendingSet, cursor))
		if err != nil {
			return nil, errors.Wrap(err, "redis SSCAN")
		}

		var keys []string
		if _, err := redis.Scan(values, &cursor, &keys); err != nil {
			return nil, err
		}

		for _, key := range keys {
			data, err := redis.Bytes(conn.Do("GET", key))
			if errors.Is(err, redis.ErrNil) {
				s.logger.Sugar().Warnw("Dangling pending transaction key", "key", key)
				continue
			}
			if err != nil {
				return nil, errors.Wrap(err, "redis GET")
			}

			var p types.PendingTransaction
			if err := json.Unmarshal(data, &p); err != nil {
				return nil, errors.Wrapf(err, "decode %s", key)
			}
			out = append(out, &p)
		}

		if cursor == 0 {
			break
		}
	}
	return out, nil
}

func (s *Store) Close() error {
	return s.pool.Close()
}
