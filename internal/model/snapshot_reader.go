package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"compass/internal/softdelete"
)

// snapshotReader reads fields until the first failure and keeps that error.
type snapshotReader struct {
	s   softdelete.Snapshot
	err error
}

func (r *snapshotReader) text(field string) string {
	if r.err != nil {
		return ""
	}
	v, err := r.s.Text(field)
	r.err = err
	return v
}

func (r *snapshotReader) optText(field string) *string {
	if r.err != nil {
		return nil
	}
	v, err := r.s.OptText(field)
	r.err = err
	return v
}

func (r *snapshotReader) time(field string) time.Time {
	if r.err != nil {
		return time.Time{}
	}
	v, err := r.s.Time(field)
	r.err = err
	return v
}

func (r *snapshotReader) optDate(field string) *Date {
	if r.err != nil {
		return nil
	}
	v, err := r.s.OptDate(field)
	r.err = err
	return DatePtr(v)
}

func (r *snapshotReader) int64(field string) int64 {
	if r.err != nil {
		return 0
	}
	v, err := r.s.Int64(field)
	r.err = err
	return v
}

func (r *snapshotReader) optInt64(field string) *int64 {
	if r.err != nil {
		return nil
	}
	v, err := r.s.OptInt64(field)
	r.err = err
	return v
}

func (r *snapshotReader) uuid(field string) uuid.UUID {
	if r.err != nil {
		return uuid.Nil
	}
	v, err := r.s.UUID(field)
	r.err = err
	return v
}

func (r *snapshotReader) optUUID(field string) *uuid.UUID {
	if r.err != nil {
		return nil
	}
	v, err := r.s.OptUUID(field)
	r.err = err
	return v
}

func (r *snapshotReader) decimal(field string) decimal.Decimal {
	if r.err != nil {
		return decimal.Zero
	}
	v, err := r.s.Decimal(field)
	r.err = err
	return v
}
