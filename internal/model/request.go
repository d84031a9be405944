package model

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
	// maxPage keeps (Page-1)*Limit far below any int overflow.
	maxPage          = 1_000_000
)

// PageQuery is the page/limit pair every list endpoint accepts.
type PageQuery struct {
	Page  int
	Limit int
}

func (q *PageQuery) Normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Page > maxPage {
		q.Page = maxPage
	}
	if q.Limit <= 0 {
		q.Limit = defaultPageLimit
	}
	if q.Limit > maxPageLimit {
		q.Limit = maxPageLimit
	}
}

func (q PageQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

func (q PageQuery) Meta(total int) Meta {
	return NewMeta(q.Page, q.Limit, total)
}

var scopeFieldPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// RecycleBinQuery filters the recycle-bin listing. EntityType and the scope
// pair are optional; the scope compares one snapshot field as text.
type RecycleBinQuery struct {
	PageQuery
	EntityType string
	ScopeField string
	ScopeValue string
}

func (q *RecycleBinQuery) Validate() error {
	q.EntityType = strings.TrimSpace(q.EntityType)
	q.ScopeField = strings.TrimSpace(q.ScopeField)
	q.PageQuery.Normalize()

	if q.ScopeField == "" && q.ScopeValue != "" {
		return fmt.Errorf("%w: scope_value requires scope_field", ErrInvalidInput)
	}
	if q.ScopeField != "" && !scopeFieldPattern.MatchString(q.ScopeField) {
		return fmt.Errorf("%w: scope_field %q is not a field name", ErrInvalidInput, q.ScopeField)
	}
	return nil
}
