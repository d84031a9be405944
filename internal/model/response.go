package model

// APIResponse is the envelope of every JSON reply.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    *Meta     `json:"meta,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Meta describes one page of a list reply.
type Meta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func NewMeta(page int, limit int, total int) Meta {
	m := Meta{Page: page, Limit: limit, Total: total}
	if total > 0 && limit > 0 {
		m.TotalPages = (total + limit - 1) / limit
	}
	return m
}

// ListData wraps list payloads so the envelope stays extensible.
type ListData[T any] struct {
	Items []T `json:"items"`
}
