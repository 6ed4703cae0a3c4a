package directory

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/sugunalabs/callserver/internal/domain"
	"github.com/sugunalabs/callserver/internal/fieldcipher"
)

// Key layout, one namespace per tenant database:
//
//	presence:<id>    hash  CallEnabled/AudioCallEnabled/VideoCallEnabled/Language (encrypted), Busy (raw "1"/"0")
//	presence:index   set   identities with a presence record
//	wallet:<id>      hash  BonusCoins/RechargeCoins (encrypted)
//	profile:<id>     hash  WakeToken (encrypted)
//	violations:<id>  list  raw entries
const (
	presencePrefix   = "presence:"
	presenceIndexKey = "presence:index"
	walletPrefix     = "wallet:"
	profilePrefix    = "profile:"
	violationsPrefix = "violations:"
)

// RedisStore adapts one tenant's redis database to the Store
// interface. Encrypted fields are decoded with the tenant cipher; a
// field that fails to decrypt reads as absent, never as an error.
type RedisStore struct {
	rdb    *redis.Client
	cipher *fieldcipher.Cipher
}

func NewRedisStore(rdb *redis.Client, cipher *fieldcipher.Cipher) *RedisStore {
	return &RedisStore{rdb: rdb, cipher: cipher}
}

func (s *RedisStore) Presence(ctx context.Context, id domain.Identity) (*domain.PresenceRecord, error) {
	fields, err := s.rdb.HGetAll(ctx, presencePrefix+string(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return s.decodePresence(id, fields), nil
}

func (s *RedisStore) ListPresence(ctx context.Context) ([]domain.PresenceRecord, error) {
	ids, err := s.rdb.SMembers(ctx, presenceIndexKey).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.PresenceRecord, 0, len(ids))
	for _, raw := range ids {
		id := domain.Identity(raw)
		rec, err := s.Presence(ctx, id)
		if err == ErrNotFound {
			// Stale index entry, skip it.
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (s *RedisStore) SetBusy(ctx context.Context, id domain.Identity, busy bool) error {
	val := "0"
	if busy {
		val = "1"
	}
	return s.rdb.HSet(ctx, presencePrefix+string(id), "Busy", val).Err()
}

func (s *RedisStore) CoinBalance(ctx context.Context, id domain.Identity) (int, error) {
	fields, err := s.rdb.HGetAll(ctx, walletPrefix+string(id)).Result()
	if err != nil {
		return 0, err
	}
	if len(fields) == 0 {
		return 0, ErrNotFound
	}
	return s.decodeInt(fields["BonusCoins"]) + s.decodeInt(fields["RechargeCoins"]), nil
}

func (s *RedisStore) WakeToken(ctx context.Context, id domain.Identity) (string, error) {
	encrypted, err := s.rdb.HGet(ctx, profilePrefix+string(id), "WakeToken").Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	token, ok := s.cipher.Decrypt(encrypted)
	if !ok {
		log.Warn().Str("module", "directory").Str("identity", string(id)).Msg("wake token failed to decrypt")
		return "", ErrNotFound
	}
	return token, nil
}

func (s *RedisStore) AppendViolation(ctx context.Context, id domain.Identity, entry string) error {
	return s.rdb.RPush(ctx, violationsPrefix+string(id), entry).Err()
}

func (s *RedisStore) SetRecord(ctx context.Context, key string, fields map[string]string) error {
	return s.rdb.HSet(ctx, key, toArgs(fields)...).Err()
}

func (s *RedisStore) UpdateRecord(ctx context.Context, key string, fields map[string]string) error {
	return s.rdb.HSet(ctx, key, toArgs(fields)...).Err()
}

func (s *RedisStore) GetRecord(ctx context.Context, key string) (map[string]string, error) {
	fields, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return fields, nil
}

func (s *RedisStore) decodePresence(id domain.Identity, fields map[string]string) *domain.PresenceRecord {
	lang, _ := s.cipher.Decrypt(fields["Language"])
	return &domain.PresenceRecord{
		Identity:     id,
		CallEnabled:  s.decodeBool(fields["CallEnabled"]),
		AudioEnabled: s.decodeBool(fields["AudioCallEnabled"]),
		VideoEnabled: s.decodeBool(fields["VideoCallEnabled"]),
		Busy:         fields["Busy"] == "1",
		Language:     lang,
	}
}

func (s *RedisStore) decodeBool(encrypted string) bool {
	val, ok := s.cipher.Decrypt(encrypted)
	return ok && val == "true"
}

func (s *RedisStore) decodeInt(encrypted string) int {
	val, ok := s.cipher.Decrypt(encrypted)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0
	}
	return n
}

func toArgs(fields map[string]string) []interface{} {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}

// NewRedisClient dials a tenant database. The address may be a plain
// host:port or a redis URL.
func NewRedisClient(addr string, db int) *redis.Client {
	if opt, err := redis.ParseURL(addr); err == nil {
		opt.DB = db
		return redis.NewClient(opt)
	}
	return redis.NewClient(&redis.Options{Addr: addr, DB: db})
}

var _ Store = (*RedisStore)(nil)

// HistoryKey and UserHistoryKey name the call-history records.
func HistoryKey(roomID domain.RoomID) string {
	return fmt.Sprintf("history:%s", roomID)
}

func UserHistoryKey(id domain.Identity, roomID domain.RoomID) string {
	return fmt.Sprintf("history:%s:%s", id, roomID)
}
