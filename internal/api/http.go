package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
)

import (
	"github.com/gorilla/mux"
)

import (
	"github.com/nanjiek/pixiu-behaviors/internal/admission"
	"github.com/nanjiek/pixiu-behaviors/internal/config"
	"github.com/nanjiek/pixiu-behaviors/internal/core"
	"github.com/nanjiek/pixiu-behaviors/internal/identity"
	"github.com/nanjiek/pixiu-behaviors/internal/links"
	"github.com/nanjiek/pixiu-behaviors/internal/types"
	"github.com/nanjiek/pixiu-behaviors/internal/valuetype"
)

const (
	scopeAdmission = "admission"
	scopeImages    = "images"
	scopeValues    = "values"
)

type Server struct {
	cfg       config.ServerCfg
	gate      *admission.Gate
	resolver  *identity.Resolver
	lifecycle *core.Lifecycle
	logger    *slog.Logger
}

func NewServer(cfg config.ServerCfg, gate *admission.Gate, resolver *identity.Resolver, lifecycle *core.Lifecycle, logger *slog.Logger) *Server {
	if gate == nil || resolver == nil || lifecycle == nil {
		panic("api: nil dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:       cfg,
		gate:      gate,
		resolver:  resolver,
		lifecycle: lifecycle,
		logger:    logger,
	}
}

func (s *Server) RegisterRoutes(r *mux.Router) {
	r.Handle("/v1/admission/check", s.admit(fixedScope(scopeAdmission), "check", s.checkHandler)).Methods(http.MethodPost)

	r.Handle("/v1/links/{set}/{owner}", s.knownSet(s.admit(varScope("set"), "view", s.getLinksHandler))).Methods(http.MethodGet)
	r.Handle("/v1/links/{set}/{owner}", s.knownSet(s.admit(varScope("set"), "update", s.putLinksHandler))).Methods(http.MethodPut)
	r.Handle("/v1/links/{set}/{owner}", s.knownSet(s.admit(varScope("set"), "delete", s.deleteLinksHandler))).Methods(http.MethodDelete)

	r.Handle("/v1/images/{owner}", s.admit(fixedScope(scopeImages), "view", s.getImagesHandler)).Methods(http.MethodGet)
	r.Handle("/v1/images/{owner}", s.admit(fixedScope(scopeImages), "update", s.putImagesHandler)).Methods(http.MethodPut)
	r.Handle("/v1/images/{owner}", s.admit(fixedScope(scopeImages), "delete", s.deleteImagesHandler)).Methods(http.MethodDelete)

	r.Handle("/v1/values/types", s.admit(fixedScope(scopeValues), "index", s.typesHandler)).Methods(http.MethodGet)
	r.Handle("/v1/values/format", s.admit(fixedScope(scopeValues), "format", s.formatHandler)).Methods(http.MethodPost)
}

// ---------------- Admission middleware ----------------

type scopeFunc func(r *http.Request) string

func fixedScope(scope string) scopeFunc {
	return func(*http.Request) string { return scope }
}

func varScope(name string) scopeFunc {
	return func(r *http.Request) string { return mux.Vars(r)[name] }
}

// knownSet answers 404 for link sets that are not configured, before any
// admission stamp is written for them.
func (s *Server) knownSet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["set"]
		if _, ok := s.lifecycle.Set(name); !ok {
			w.Header().Set("Content-Type", "application/json")
			errResp(w, http.StatusNotFound, "link set not found: "+name, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// admit ends the request with 401 when no identity is presented and with 429
// when the gate rejects it.
func (s *Server) admit(scope scopeFunc, action string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		sc := scope(r)

		key, err := s.resolver.Resolve(r)
		if err != nil {
			errResp(w, http.StatusUnauthorized, "identity required", &ErrorDetail{Reason: "missing_identity"})
			return
		}

		dec, err := s.gate.Admit(r.Context(), key.Key, sc, action)
		if errors.Is(err, admission.ErrMissingIdentity) {
			errResp(w, http.StatusUnauthorized, "identity required", &ErrorDetail{Reason: "missing_identity"})
			return
		}
		if err != nil {
			errResp(w, http.StatusInternalServerError, "admission check failed: "+err.Error(), nil)
			return
		}
		if !dec.Allowed {
			s.reject(w, dec, sc, action)
			return
		}
		next(w, r)
	})
}

func (s *Server) reject(w http.ResponseWriter, dec types.Decision, scope, action string) {
	status, msg := rejectStatus(dec)
	setRetryAfter(w, dec)
	errResp(w, status, msg, &ErrorDetail{
		Reason:     dec.Reason,
		Scope:      scope,
		Action:     action,
		RetryAfter: dec.RetryAfterMs,
	})
}

// rejectStatus is 429 for a rate rejection and 503 when the gate could not decide.
func rejectStatus(dec types.Decision) (int, string) {
	if errors.Is(dec.Err, admission.ErrTooManyRequests) {
		return http.StatusTooManyRequests, "too many requests"
	}
	return http.StatusServiceUnavailable, "admission unavailable"
}

func setRetryAfter(w http.ResponseWriter, dec types.Decision) {
	if dec.RetryAfterMs > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt((dec.RetryAfterMs+999)/1000, 10))
	}
}

// ---------------- Handlers ----------------

func (s *Server) checkHandler(w http.ResponseWriter, r *http.Request) {
	var req AdmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp(w, http.StatusBadRequest, "invalid request body: "+err.Error(), nil)
		return
	}
	dec, err := s.gate.Admit(r.Context(), req.Identity, req.Scope, req.Action)
	if errors.Is(err, admission.ErrMissingIdentity) {
		errResp(w, http.StatusBadRequest, "identity is required", &ErrorDetail{Reason: dec.Reason})
		return
	}
	if err != nil {
		errResp(w, http.StatusInternalServerError, "admission check failed: "+err.Error(), nil)
		return
	}
	if !dec.Allowed {
		status, _ := rejectStatus(dec)
		setRetryAfter(w, dec)
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(AdmissionResponse{
		Allowed:      dec.Allowed,
		RetryAfterMs: dec.RetryAfterMs,
		Reason:       dec.Reason,
	})
}

func (s *Server) getLinksHandler(w http.ResponseWriter, r *http.Request) {
	set, owner, ok := s.linkTarget(w, r)
	if !ok {
		return
	}
	resp := LinksResponse{Set: set.Name, Owner: owner}
	if set.Kinds {
		byKind, err := s.lifecycle.LinkedByKind(r.Context(), links.OwnerID(owner), set.Name)
		if err != nil {
			errResp(w, http.StatusInternalServerError, "failed to load links: "+err.Error(), nil)
			return
		}
		resp.Kinds = make(map[string][]links.ID, len(byKind))
		for kind, ids := range byKind {
			resp.Kinds[strconv.Itoa(kind)] = ids.Sorted()
		}
	} else {
		ids, err := s.lifecycle.Linked(r.Context(), links.OwnerID(owner), set.Name)
		if err != nil {
			errResp(w, http.StatusInternalServerError, "failed to load links: "+err.Error(), nil)
			return
		}
		resp.IDs = ids.Sorted()
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) putLinksHandler(w http.ResponseWriter, r *http.Request) {
	set, owner, ok := s.linkTarget(w, r)
	if !ok {
		return
	}
	var req LinksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp(w, http.StatusBadRequest, "invalid request body: "+err.Error(), nil)
		return
	}

	var ch core.Changes
	if set.Kinds {
		if req.IDs != nil {
			errResp(w, http.StatusBadRequest, "set "+set.Name+" expects kinds", nil)
			return
		}
		byKind := make(map[int][]links.ID, len(req.Kinds))
		for k, ids := range req.Kinds {
			kind, err := strconv.Atoi(k)
			if err != nil {
				errResp(w, http.StatusBadRequest, "invalid kind: "+k, nil)
				return
			}
			byKind[kind] = ids
		}
		ch.Kinded = map[string]map[int][]links.ID{set.Name: byKind}
	} else {
		if req.Kinds != nil {
			errResp(w, http.StatusBadRequest, "set "+set.Name+" expects ids", nil)
			return
		}
		ch.Links = map[string][]links.ID{set.Name: req.IDs}
	}

	res, err := s.lifecycle.AfterSave(r.Context(), links.OwnerID(owner), ch)
	resp := reconcileResponse(res, set)
	if err != nil {
		s.logger.Error("link reconcile failed", "set", set.Name, "owner", owner, "err", err)
		resp.Error = err.Error()
		w.WriteHeader(http.StatusInternalServerError)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) deleteLinksHandler(w http.ResponseWriter, r *http.Request) {
	set, owner, ok := s.linkTarget(w, r)
	if !ok {
		return
	}
	if err := s.lifecycle.ClearSet(r.Context(), links.OwnerID(owner), set.Name); err != nil {
		errResp(w, http.StatusInternalServerError, "failed to clear links: "+err.Error(), nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getImagesHandler(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerVar(w, r)
	if !ok {
		return
	}
	images, err := s.lifecycle.Images(r.Context(), links.OwnerID(owner))
	if err != nil {
		errResp(w, http.StatusInternalServerError, "failed to load images: "+err.Error(), nil)
		return
	}
	resp := ImagesResponse{Owner: owner, Images: images}
	if len(images) > 0 {
		resp.Main = images[0]
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) putImagesHandler(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerVar(w, r)
	if !ok {
		return
	}
	var req ImagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp(w, http.StatusBadRequest, "invalid request body: "+err.Error(), nil)
		return
	}
	images := req.Images
	if images == nil {
		images = []string{}
	}
	if _, err := s.lifecycle.AfterSave(r.Context(), links.OwnerID(owner), core.Changes{Images: images}); err != nil {
		errResp(w, http.StatusInternalServerError, "failed to save images: "+err.Error(), nil)
		return
	}
	s.getImagesHandler(w, r)
}

func (s *Server) deleteImagesHandler(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerVar(w, r)
	if !ok {
		return
	}
	if err := s.lifecycle.ClearImages(r.Context(), links.OwnerID(owner)); err != nil {
		errResp(w, http.StatusInternalServerError, "failed to clear images: "+err.Error(), nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) typesHandler(w http.ResponseWriter, r *http.Request) {
	_ = json.NewEncoder(w).Encode(valuetype.TypeList(valuetype.Lang(r.Header.Get("Accept-Language"))))
}

func (s *Server) formatHandler(w http.ResponseWriter, r *http.Request) {
	var req FormatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp(w, http.StatusBadRequest, "invalid request body: "+err.Error(), nil)
		return
	}
	if req.Type == "" {
		errResp(w, http.StatusBadRequest, "type is required", nil)
		return
	}
	lang := valuetype.Lang(r.Header.Get("Accept-Language"))
	_ = json.NewEncoder(w).Encode(FormatResponse{
		Type:     req.Type,
		TypeName: valuetype.TypeName(req.Type, lang),
		Value:    valuetype.Format(req.Type, req.Value),
		Pretty:   valuetype.Prettify(req.Type, req.Value, req.TruncateWords, lang),
	})
}

// ---------------- Helpers ----------------

func (s *Server) linkTarget(w http.ResponseWriter, r *http.Request) (config.LinkSetCfg, links.ID, bool) {
	name := mux.Vars(r)["set"]
	set, ok := s.lifecycle.Set(name)
	if !ok {
		errResp(w, http.StatusNotFound, "link set not found: "+name, nil)
		return config.LinkSetCfg{}, 0, false
	}
	owner, ok := ownerVar(w, r)
	return set, owner, ok
}

func ownerVar(w http.ResponseWriter, r *http.Request) (links.ID, bool) {
	raw := mux.Vars(r)["owner"]
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || n == 0 {
		errResp(w, http.StatusBadRequest, "invalid owner: "+raw, nil)
		return 0, false
	}
	return links.ID(n), true
}

func reconcileResponse(res core.Result, set config.LinkSetCfg) ReconcileResponse {
	out := ReconcileResponse{Added: []links.ID{}, Removed: []links.ID{}}
	add := func(rep links.Report) {
		out.Added = append(out.Added, rep.Added...)
		out.Removed = append(out.Removed, rep.Removed...)
		for _, f := range rep.Failed {
			out.Failed = append(out.Failed, FailureDTO{Op: f.Op, Target: f.Target, Kind: f.Kind, Error: f.Err.Error()})
		}
	}
	if set.Kinds {
		kr := res.Kinded[set.Name]
		kinds := make([]int, 0, len(kr))
		for k := range kr {
			kinds = append(kinds, k)
		}
		sort.Ints(kinds)
		for _, k := range kinds {
			add(kr[k])
		}
	} else {
		add(res.Links[set.Name])
	}
	return out
}

func errResp(w http.ResponseWriter, status int, msg string, detail *ErrorDetail) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Code: status, Message: msg, Detail: detail})
}
