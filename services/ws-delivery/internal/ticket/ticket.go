// Package ticket implements the one-shot upgrade ticket WS-Delivery
// issues over an authenticated HTTP endpoint and redeems on WebSocket
// upgrade (spec §4.7), backed by Redis's TTL and atomic GETDEL, wrapping
// a *redis.Client the same way the rest of this codebase wraps its
// storage clients.
package ticket

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrInvalid = errors.New("ticket invalid, expired, or already used")

// Store issues and redeems one-shot (user_id, device_id)-bound tickets.
// Issuing a new ticket for a device invalidates any ticket still
// outstanding for that device (spec's supplemented single-flight
// invariant, §4.7 / SPEC_FULL "Ticket issuance is per-(user_id,
// device_id)").
type Store struct {
	client   *redis.Client
	lifespan time.Duration
}

func New(addr, password string, db int, lifespan time.Duration) *Store {
	return &Store{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		lifespan: lifespan,
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}

func deviceKey(userID, deviceID uuid.UUID) string {
	return fmt.Sprintf("wsd:device:%s:%s", userID, deviceID)
}

func ticketKey(ticketID uuid.UUID) string {
	return "wsd:ticket:" + ticketID.String()
}

// Issue mints a fresh ticket for (userID, deviceID), invalidating any
// ticket already outstanding for that device.
func (s *Store) Issue(ctx context.Context, userID, deviceID uuid.UUID) (uuid.UUID, error) {
	dk := deviceKey(userID, deviceID)
	if old, err := s.client.GetDel(ctx, dk).Result(); err == nil && old != "" {
		s.client.Del(ctx, ticketKey(uuid.MustParse(old)))
	}

	ticketID := uuid.New()
	payload := userID.String() + ":" + deviceID.String()

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, ticketKey(ticketID), payload, s.lifespan)
	pipe.Set(ctx, dk, ticketID.String(), s.lifespan)
	if _, err := pipe.Exec(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("issue ticket: %w", err)
	}
	return ticketID, nil
}

// Redeem atomically consumes ticketID, returning the bound principal.
// A ticket can only ever be redeemed once (GETDEL), satisfying the
// "one-shot" requirement without a separate read-then-delete race.
func (s *Store) Redeem(ctx context.Context, ticketID uuid.UUID) (userID, deviceID uuid.UUID, err error) {
	payload, err := s.client.GetDel(ctx, ticketKey(ticketID)).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, uuid.Nil, ErrInvalid
	}
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("redeem ticket: %w", err)
	}

	return parseTicketPayload(payload)
}

// parseTicketPayload decodes the "user_id:device_id" string stored
// under a ticket key, split out so it is testable without Redis.
func parseTicketPayload(payload string) (userID, deviceID uuid.UUID, err error) {
	userStr, deviceStr, ok := strings.Cut(payload, ":")
	if !ok {
		return uuid.Nil, uuid.Nil, ErrInvalid
	}
	userID, err = uuid.Parse(userStr)
	if err != nil {
		return uuid.Nil, uuid.Nil, ErrInvalid
	}
	deviceID, err = uuid.Parse(deviceStr)
	if err != nil {
		return uuid.Nil, uuid.Nil, ErrInvalid
	}
	return userID, deviceID, nil
}
