// Package services – CallService
//
// This file implements CallService, which registers calls and serves the
// query boundary: a call with its optional recording, the recording's
// silence intervals and a currently valid presigned URL. Presigned URLs are
// cached on the record and refreshed lazily, in the read transaction, when
// they are about to expire.
package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-callrec-backend/internal/domain"
	"github.com/tbourn/go-callrec-backend/internal/repo"
	"github.com/tbourn/go-callrec-backend/internal/storage"
)

// ScopeCreateCall namespaces idempotency keys for POST /calls.
const ScopeCreateCall = "create_call"

var phoneRE = regexp.MustCompile(`^\+?[0-9]{3,20}$`)

// CreateCallInput carries the fields of a new call.
type CreateCallInput struct {
	Caller    string
	Receiver  string
	StartedAt time.Time
}

// CallFilter narrows Search. Zero values match anything.
type CallFilter struct {
	Status   string
	Caller   string
	Receiver string
}

// CallService provides call registration and read operations.
type CallService struct {
	DB    *gorm.DB
	Store storage.Gateway

	// PresignTTL is the lifetime of issued URLs.
	PresignTTL time.Duration
	// RefreshMargin refreshes URLs that expire within this window.
	RefreshMargin time.Duration
	// IdempotencyTTL bounds how long an Idempotency-Key replays.
	IdempotencyTTL time.Duration

	// Now is overridable in tests.
	Now func() time.Time
}

// NewCallService constructs a CallService with a one hour presign TTL.
func NewCallService(db *gorm.DB, store storage.Gateway) *CallService {
	return &CallService{
		DB:             db,
		Store:          store,
		PresignTTL:     time.Hour,
		RefreshMargin:  time.Minute,
		IdempotencyTTL: 24 * time.Hour,
		Now:            func() time.Time { return time.Now().UTC() },
	}
}

func (s *CallService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// NormalizePhone strips spaces and dashes and validates the result.
func NormalizePhone(p string) (string, error) {
	p = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(p))
	if !phoneRE.MatchString(p) {
		return "", fmt.Errorf("%w: phone number %q", ErrInvalidInput, p)
	}
	return p, nil
}

// Create registers a call in status created.
func (s *CallService) Create(ctx context.Context, in CreateCallInput) (*domain.Call, error) {
	tr := otel.Tracer("services/CallService")
	ctx, span := tr.Start(ctx, "Create")
	defer span.End()

	caller, receiver, startedAt, err := s.validate(in)
	if err != nil {
		return nil, err
	}
	c, err := repo.CreateCall(ctx, s.DB, caller, receiver, startedAt)
	if err != nil {
		return nil, persistErr("create_call", err)
	}
	return c, nil
}

// CreateIdempotent behaves like Create but replays the original call when
// key was already used within IdempotencyTTL. replay reports whether the
// returned call was created by an earlier request.
func (s *CallService) CreateIdempotent(ctx context.Context, key string, in CreateCallInput) (call *domain.Call, replay bool, err error) {
	key = strings.TrimSpace(key)
	if key == "" {
		c, err := s.Create(ctx, in)
		return c, false, err
	}

	tr := otel.Tracer("services/CallService")
	ctx, span := tr.Start(ctx, "CreateIdempotent",
		trace.WithAttributes(attribute.String("idempotency.key", key)),
	)
	defer span.End()

	if c, ok, err := s.replay(ctx, key); err != nil || ok {
		return c, ok, err
	}

	caller, receiver, startedAt, err := s.validate(in)
	if err != nil {
		return nil, false, err
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := repo.CreateCall(ctx, tx, caller, receiver, startedAt)
		if err != nil {
			return err
		}
		if _, err := repo.CreateIdempotency(ctx, tx, ScopeCreateCall, key, c.ID, 201, s.IdempotencyTTL); err != nil {
			return err
		}
		call = c
		return nil
	})
	if errors.Is(err, repo.ErrDuplicate) {
		// A concurrent request with the same key won the race.
		c, ok, rerr := s.replay(ctx, key)
		if rerr == nil && ok {
			return c, true, nil
		}
	}
	if err != nil {
		return nil, false, persistErr("create_call", err)
	}
	return call, false, nil
}

func (s *CallService) replay(ctx context.Context, key string) (*domain.Call, bool, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, ScopeCreateCall, key, s.now())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, persistErr("idempotency_lookup", err)
	}
	c, err := repo.GetCall(ctx, s.DB, rec.ResourceID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, persistErr("get_call", err)
	}
	return c, true, nil
}

func (s *CallService) validate(in CreateCallInput) (caller, receiver string, startedAt time.Time, err error) {
	if caller, err = NormalizePhone(in.Caller); err != nil {
		return
	}
	if receiver, err = NormalizePhone(in.Receiver); err != nil {
		return
	}
	startedAt = in.StartedAt
	if startedAt.IsZero() {
		startedAt = s.now()
	}
	return caller, receiver, startedAt.UTC(), nil
}

// Get returns the call with its record, ranges and a valid presigned URL.
// The URL is regenerated and persisted when it expires within RefreshMargin.
func (s *CallService) Get(ctx context.Context, id string) (*repo.CallDetail, error) {
	tr := otel.Tracer("services/CallService")
	ctx, span := tr.Start(ctx, "Get",
		trace.WithAttributes(attribute.String("call.id", id)),
	)
	defer span.End()

	var detail *repo.CallDetail
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := repo.GetCallDetail(ctx, tx, id)
		if err != nil {
			return err
		}
		if d.Record != nil {
			refreshed, err := s.refreshPresign(ctx, tx, d.Record)
			if err != nil {
				return err
			}
			span.SetAttributes(attribute.Bool("presign.refreshed", refreshed))
		}
		detail = d
		return nil
	})
	switch {
	case err == nil:
		return detail, nil
	case errors.Is(err, repo.ErrNotFound):
		return nil, ErrCallNotFound
	default:
		var se *storage.StorageError
		if errors.As(err, &se) {
			return nil, err
		}
		return nil, persistErr("get_call", err)
	}
}

// GetRecord returns the recording of callID, or ErrRecordNotFound when the
// call has none yet.
func (s *CallService) GetRecord(ctx context.Context, callID string) (*domain.Record, []domain.SilentRange, error) {
	d, err := s.Get(ctx, callID)
	if err != nil {
		return nil, nil, err
	}
	if d.Record == nil {
		return nil, nil, ErrRecordNotFound
	}
	return d.Record, d.Ranges, nil
}

// refreshPresign updates rec in place when its URL is missing or expiring.
func (s *CallService) refreshPresign(ctx context.Context, tx *gorm.DB, rec *domain.Record) (bool, error) {
	now := s.now()
	if rec.PresignedURL != "" && rec.ExpiresAt.After(now.Add(s.RefreshMargin)) {
		return false, nil
	}
	ttl := s.PresignTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	exp := now.Add(ttl)
	u, err := s.Store.Presign(ctx, rec.ObjectPath, exp)
	if err != nil {
		return false, err
	}
	if err := repo.UpdateRecordPresign(ctx, tx, rec.ID, u, exp); err != nil {
		return false, err
	}
	rec.PresignedURL = u
	rec.ExpiresAt = exp
	return true, nil
}

// FindByPhone lists calls where phone is the caller or the receiver.
func (s *CallService) FindByPhone(ctx context.Context, phone string) ([]domain.Call, error) {
	tr := otel.Tracer("services/CallService")
	ctx, span := tr.Start(ctx, "FindByPhone")
	defer span.End()

	p, err := NormalizePhone(phone)
	if err != nil {
		return nil, err
	}
	calls, err := repo.FindCallsByPhone(ctx, s.DB, p)
	if err != nil {
		return nil, persistErr("find_calls", err)
	}
	if calls == nil {
		calls = []domain.Call{}
	}
	return calls, nil
}

func toRepoFilter(f CallFilter) (repo.CallFilter, error) {
	out := repo.CallFilter{Caller: f.Caller, Receiver: f.Receiver}
	if st := strings.ToLower(strings.TrimSpace(f.Status)); st != "" {
		status := domain.CallStatus(st)
		if !status.Valid() {
			return out, fmt.Errorf("%w: status %q", ErrInvalidInput, f.Status)
		}
		out.Status = status
	}
	return out, nil
}

// Search returns a page of calls matching f and the total match count.
// It applies defaults for invalid page/pageSize.
func (s *CallService) Search(ctx context.Context, f CallFilter, page, pageSize int) ([]domain.Call, int64, error) {
	tr := otel.Tracer("services/CallService")
	ctx, span := tr.Start(ctx, "Search",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	rf, err := toRepoFilter(f)
	if err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	total, err := repo.CountCalls(ctx, s.DB, rf)
	if err != nil {
		return nil, 0, persistErr("count_calls", err)
	}
	if total == 0 {
		return []domain.Call{}, 0, nil
	}
	items, err := repo.SearchCalls(ctx, s.DB, rf, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, persistErr("search_calls", err)
	}
	return items, total, nil
}

// Stats returns the match count and latest update for f, used for ETags.
func (s *CallService) Stats(ctx context.Context, f CallFilter) (int64, *time.Time, error) {
	rf, err := toRepoFilter(f)
	if err != nil {
		return 0, nil, err
	}
	return repo.CallsStats(ctx, s.DB, rf)
}
