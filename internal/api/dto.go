package api

import (
	"github.com/nanjiek/pixiu-behaviors/internal/links"
)

type AdmissionRequest struct {
	Identity string `json:"identity"`
	Scope    string `json:"scope"`
	Action   string `json:"action"`
}

type AdmissionResponse struct {
	Allowed      bool   `json:"allowed"`
	RetryAfterMs int64  `json:"retryAfterMs"`
	Reason       string `json:"reason"`
}

// LinksRequest carries ids for a plain set or kinds for a kinded one.
type LinksRequest struct {
	IDs   []links.ID            `json:"ids"`
	Kinds map[string][]links.ID `json:"kinds"`
}

type LinksResponse struct {
	Set   string                `json:"set"`
	Owner links.ID              `json:"owner"`
	IDs   []links.ID            `json:"ids,omitempty"`
	Kinds map[string][]links.ID `json:"kinds,omitempty"`
}

type FailureDTO struct {
	Op     string   `json:"op"`
	Target links.ID `json:"target,omitempty"`
	Kind   int      `json:"kind,omitempty"`
	Error  string   `json:"error"`
}

type ReconcileResponse struct {
	Added   []links.ID   `json:"added"`
	Removed []links.ID   `json:"removed"`
	Failed  []FailureDTO `json:"failed,omitempty"`
	Error   string       `json:"error,omitempty"`
}

type ImagesRequest struct {
	Images []string `json:"images"`
}

type ImagesResponse struct {
	Owner  links.ID `json:"owner"`
	Images []string `json:"images"`
	Main   string   `json:"main"`
}

type FormatRequest struct {
	Type          string `json:"type"`
	Value         any    `json:"value"`
	TruncateWords int    `json:"truncateWords"`
}

type FormatResponse struct {
	Type     string `json:"type"`
	TypeName string `json:"typeName"`
	Value    any    `json:"value"`
	Pretty   string `json:"pretty"`
}

type ErrorDetail struct {
	Reason     string `json:"reason,omitempty"`
	Scope      string `json:"scope,omitempty"`
	Action     string `json:"action,omitempty"`
	RetryAfter int64  `json:"retry_after,omitempty"`
}

type ErrorResponse struct {
	Code    int          `json:"code"`
	Message string       `json:"message"`
	Detail  *ErrorDetail `json:"detail,omitempty"`
}
