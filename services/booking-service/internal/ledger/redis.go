package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/model"
	"github.com/redis/go-redis/v9"
)

const defaultRedisRetries = 8

// Redis keeps appointments as JSON documents plus sorted indexes by start time.
// Writers WATCH a ledger version key and commit with MULTI/EXEC; a lost race
// re-runs the conflict check from scratch.
type Redis struct {
	rdb     redis.UniversalClient
	prefix  string
	retries int
	now     func() time.Time
}

type redisRecord struct {
	ID           string    `json:"id"`
	CustomerRef  string    `json:"customer_ref"`
	CustomerName string    `json:"customer_name,omitempty"`
	Recipient    string    `json:"recipient"`
	Service      string    `json:"service"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Status       string    `json:"status"`
	CancelReason string    `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func NewRedis(rdb redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "barberbook:ledger"
	}
	return &Redis{rdb: rdb, prefix: prefix, retries: defaultRedisRetries, now: time.Now}
}

func (r *Redis) versionKey() string { return r.prefix + ":version" }
func (r *Redis) startKey() string   { return r.prefix + ":by_start" }
func (r *Redis) apptKey(id string) string {
	return r.prefix + ":appt:" + id
}
func (r *Redis) customerKey(ref string) string {
	return r.prefix + ":customer:" + ref
}

func (r *Redis) FindConflicts(ctx context.Context, iv model.Interval) ([]model.Appointment, error) {
	appts, err := r.conflicts(ctx, r.rdb, iv, "")
	if err != nil {
		return nil, unavailable("find conflicts", err)
	}
	return appts, nil
}

func (r *Redis) Insert(ctx context.Context, appt model.Appointment) (model.Appointment, error) {
	if err := validInsert(appt); err != nil {
		return model.Appointment{}, err
	}
	appt = prepare(appt, uuid.NewString(), r.now().UTC())
	doc, err := json.Marshal(toRecord(appt))
	if err != nil {
		return model.Appointment{}, err
	}

	err = r.commit(ctx, "insert", func(tx *redis.Tx) error {
		conflicts, err := r.conflicts(ctx, tx, appt.Interval(), "")
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetNX(ctx, r.apptKey(appt.ID), doc, 0)
			r.index(ctx, pipe, appt)
			pipe.Incr(ctx, r.versionKey())
			return nil
		})
		return err
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func (r *Redis) Cancel(ctx context.Context, id, reason string) (model.Appointment, error) {
	return r.transition(ctx, id, model.ActionCancel, false, func(a *model.Appointment) {
		a.Status = model.StatusCancelled
		a.CancelReason = reason
	})
}

func (r *Redis) Complete(ctx context.Context, id string) (model.Appointment, error) {
	return r.transition(ctx, id, model.ActionComplete, false, func(a *model.Appointment) {
		a.Status = model.StatusCompleted
	})
}

func (r *Redis) Reschedule(ctx context.Context, id string, iv model.Interval) (model.Appointment, error) {
	if err := validInterval(iv); err != nil {
		return model.Appointment{}, err
	}
	return r.transition(ctx, id, model.ActionReschedule, true, func(a *model.Appointment) {
		a.StartTime = iv.Start
		a.EndTime = iv.End
	})
}

func (r *Redis) transition(ctx context.Context, id, action string, moving bool, fn func(*model.Appointment)) (model.Appointment, error) {
	var out model.Appointment
	err := r.commit(ctx, action, func(tx *redis.Tx) error {
		appt, err := r.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := checkTransition(action, appt.Status); err != nil {
			return err
		}
		fn(&appt)
		appt.UpdatedAt = r.now().UTC()
		if moving {
			conflicts, err := r.conflicts(ctx, tx, appt.Interval(), appt.ID)
			if err != nil {
				return err
			}
			if len(conflicts) > 0 {
				return ErrConflict
			}
		}
		doc, err := json.Marshal(toRecord(appt))
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.apptKey(appt.ID), doc, 0)
			if appt.Status == model.StatusConfirmed {
				r.index(ctx, pipe, appt)
			} else {
				pipe.ZRem(ctx, r.startKey(), appt.ID)
				pipe.ZRem(ctx, r.customerKey(appt.CustomerRef), appt.ID)
			}
			pipe.Incr(ctx, r.versionKey())
			return nil
		})
		if err != nil {
			return err
		}
		out = appt
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return out, nil
}

// commit runs fn under WATCH on the version key, retrying when another writer
// committed in between.
func (r *Redis) commit(ctx context.Context, op string, fn func(*redis.Tx) error) error {
	var err error
	for attempt := 0; attempt < r.retries; attempt++ {
		err = r.rdb.Watch(ctx, fn, r.versionKey())
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrConflict), errors.Is(err, ErrNotFound),
		errors.Is(err, ErrAlreadyTerminal), errors.Is(err, ErrInvalid):
		return err
	}
	return unavailable(op, err)
}

func (r *Redis) index(ctx context.Context, pipe redis.Pipeliner, appt model.Appointment) {
	score := float64(appt.StartTime.Unix())
	pipe.ZAdd(ctx, r.startKey(), redis.Z{Score: score, Member: appt.ID})
	pipe.ZAdd(ctx, r.customerKey(appt.CustomerRef), redis.Z{Score: score, Member: appt.ID})
}

func (r *Redis) Get(ctx context.Context, id string) (model.Appointment, error) {
	appt, err := r.load(ctx, r.rdb, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.Appointment{}, err
		}
		return model.Appointment{}, unavailable("get", err)
	}
	return appt, nil
}

func (r *Redis) ListUpcoming(ctx context.Context, from time.Time, window time.Duration) ([]model.Appointment, error) {
	until := from.Add(window)
	appts, err := r.rangeByStart(ctx, r.rdb, r.startKey(), from.Add(-time.Second), until)
	if err != nil {
		return nil, unavailable("list upcoming", err)
	}
	return filter(appts, func(a model.Appointment) bool {
		return !a.StartTime.Before(from) && a.StartTime.Before(until)
	}), nil
}

func (r *Redis) ListByCustomer(ctx context.Context, customerRef string, from time.Time) ([]model.Appointment, error) {
	appts, err := r.rangeByStart(ctx, r.rdb, r.customerKey(customerRef), from.Add(-time.Second), time.Time{})
	if err != nil {
		return nil, unavailable("list by customer", err)
	}
	return filter(appts, func(a model.Appointment) bool {
		return a.CustomerRef == customerRef && !a.StartTime.Before(from)
	}), nil
}

func (r *Redis) conflicts(ctx context.Context, c redis.Cmdable, iv model.Interval, exclude string) ([]model.Appointment, error) {
	candidates, err := r.rangeByStart(ctx, c, r.startKey(), iv.Start.Add(-MaxSpan), iv.End)
	if err != nil {
		return nil, err
	}
	return filter(candidates, func(a model.Appointment) bool {
		return a.ID != exclude && a.Interval().Overlaps(iv)
	}), nil
}

// rangeByStart loads members scored in [min, max]; a zero max means unbounded.
func (r *Redis) rangeByStart(ctx context.Context, c redis.Cmdable, key string, min, max time.Time) ([]model.Appointment, error) {
	maxScore := "+inf"
	if !max.IsZero() {
		maxScore = strconv.FormatInt(max.Unix(), 10)
	}
	ids, err := c.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: strconv.FormatInt(min.Unix(), 10),
		Max: maxScore,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, r.apptKey(id))
	}
	docs, err := c.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	appts := make([]model.Appointment, 0, len(docs))
	for _, doc := range docs {
		raw, ok := doc.(string)
		if !ok {
			continue
		}
		appt, err := decodeRecord([]byte(raw))
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	return appts, nil
}

func (r *Redis) load(ctx context.Context, c redis.Cmdable, id string) (model.Appointment, error) {
	raw, err := c.Get(ctx, r.apptKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Appointment{}, ErrNotFound
	}
	if err != nil {
		return model.Appointment{}, err
	}
	return decodeRecord(raw)
}

func filter(appts []model.Appointment, keep func(model.Appointment) bool) []model.Appointment {
	var out []model.Appointment
	for _, a := range appts {
		if a.Status == model.StatusConfirmed && keep(a) {
			out = append(out, a)
		}
	}
	sortByStart(out)
	return out
}

func toRecord(a model.Appointment) redisRecord {
	return redisRecord{
		ID:           a.ID,
		CustomerRef:  a.CustomerRef,
		CustomerName: a.CustomerName,
		Recipient:    a.Recipient,
		Service:      a.Service,
		StartTime:    a.StartTime.UTC(),
		EndTime:      a.EndTime.UTC(),
		Status:       string(a.Status),
		CancelReason: a.CancelReason,
		CreatedAt:    a.CreatedAt.UTC(),
		UpdatedAt:    a.UpdatedAt.UTC(),
	}
}

func decodeRecord(raw []byte) (model.Appointment, error) {
	var rec redisRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return model.Appointment{}, err
	}
	return model.Appointment{
		ID:           rec.ID,
		CustomerRef:  rec.CustomerRef,
		CustomerName: rec.CustomerName,
		Recipient:    rec.Recipient,
		Service:      rec.Service,
		StartTime:    rec.StartTime,
		EndTime:      rec.EndTime,
		Status:       model.Status(rec.Status),
		CancelReason: rec.CancelReason,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}, nil
}
