// Package http provides the read-only HTTP API: health, the item type
// registry, the device catalogue, node config trees and compiled artifacts.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/artpar/nodecfg/adapters/metrics"
	"github.com/artpar/nodecfg/core/artifact"
	"github.com/artpar/nodecfg/core/capability"
	"github.com/artpar/nodecfg/core/cgm"
	"github.com/artpar/nodecfg/core/registry"
	"github.com/artpar/nodecfg/core/schema"
	"github.com/artpar/nodecfg/core/tree"
	"github.com/artpar/nodecfg/ports"
)

// Nodes reads managed nodes.
type Nodes interface {
	ListNodes(ctx context.Context) ([]ports.Node, error)
	GetNode(ctx context.Context, id string) (ports.Node, error)
	LoadGeneral(ctx context.Context, nodeID string) (ports.General, error)
}

// Trees reads node config trees.
type Trees interface {
	Tree(ctx context.Context, nodeID string) (*tree.Tree, error)
}

// Compiler compiles a node into an artifact.
type Compiler interface {
	Compile(ctx context.Context, nodeID string) (*artifact.Artifact, error)
}

// ErrorBody is the JSON error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes an error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RouterConfig holds the dependencies of the router.
type RouterConfig struct {
	Nodes     Nodes
	Trees     Trees
	Compiler  Compiler
	Point     *registry.Point
	Catalogue *capability.Catalogue

	Version string

	// Metrics enables request metrics and the metrics endpoint.
	Metrics        *metrics.Collector
	MetricsPath    string       // default "/metrics"
	MetricsHandler http.Handler // default promhttp.Handler()
}

// Handler serves the API.
type Handler struct {
	cfg    RouterConfig
	logger zerolog.Logger
}

// NewRouter creates the HTTP router.
func NewRouter(cfg RouterConfig, logger zerolog.Logger) chi.Router {
	h := &Handler{cfg: cfg, logger: logger}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	if cfg.Metrics != nil {
		r.Use(NewMetricsMiddleware(cfg.Metrics))
	}

	r.Get("/health", h.Liveness)
	r.Get("/version", h.Version)

	if cfg.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		handler := cfg.MetricsHandler
		if handler == nil {
			handler = promhttp.Handler()
		}
		r.Handle(path, handler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/items", h.ListItems)
		r.Get("/items/{type}", h.GetItem)
		r.Get("/choices", h.ListChoices)
		r.Get("/platforms", h.ListPlatforms)
		r.Get("/platforms/{platform}/routers/{router}", h.GetRouter)

		r.Get("/nodes", h.ListNodes)
		r.Get("/nodes/{id}", h.GetNode)
		r.Get("/nodes/{id}/config", h.GetConfig)
		r.Get("/nodes/{id}/artifact", h.GetArtifact)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no such endpoint")
	})

	return r
}

// Liveness reports that the process is serving.
func (h *Handler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Version reports the build version.
func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	version := h.cfg.Version
	if version == "" {
		version = "dev"
	}
	writeJSON(w, http.StatusOK, map[string]string{"service": "nodecfg", "version": version})
}

type itemView struct {
	ID       string   `json:"id"`
	Extends  string   `json:"extends,omitempty"`
	Slot     string   `json:"slot"`
	Name     string   `json:"name"`
	Section  string   `json:"section,omitempty"`
	Multiple bool     `json:"multiple"`
	Hidden   bool     `json:"hidden,omitempty"`
	Parents  []string `json:"parents,omitempty"`
}

func viewItem(t *registry.ItemType) itemView {
	return itemView{
		ID:       t.ID,
		Extends:  t.Extends,
		Slot:     t.Slot,
		Name:     t.Name,
		Section:  t.Section,
		Multiple: t.Multiple,
		Hidden:   t.Hidden,
		Parents:  t.Parents(),
	}
}

// ListItems lists registered item types in form order.
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	items := h.cfg.Point.Items()
	result := make([]itemView, 0, len(items))
	for _, t := range items {
		if t.Hidden && r.URL.Query().Get("hidden") != "true" {
			continue
		}
		result = append(result, viewItem(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": result})
}

type attrView struct {
	schema.Field
	Owner string `json:"owner"`
	Proxy bool   `json:"proxy,omitempty"`
}

// GetItem returns one item type with its attribute surface.
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	typeID := chi.URLParam(r, "type")
	surface, err := h.cfg.Point.Schema(typeID)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	attrs := make([]attrView, 0)
	for _, a := range surface.Attrs() {
		attrs = append(attrs, attrView{Field: a.Field, Owner: a.Owner, Proxy: a.Proxy})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"item":       viewItem(surface.Type),
			"attributes": attrs,
		},
	})
}

// ListChoices returns the choices of ?key=..., or every choice key.
func (h *Handler) ListChoices(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeJSON(w, http.StatusOK, map[string]any{"data": h.cfg.Point.ChoiceKeys()})
		return
	}
	choices := h.cfg.Point.Choices(key)
	if choices == nil {
		writeError(w, http.StatusNotFound, "not_found", "unknown choice key "+key)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "data": choices})
}

type routerView struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Architecture string            `json:"architecture"`
	Radios       []radioView       `json:"radios,omitempty"`
	Ports        []capability.Port `json:"ports,omitempty"`
}

type radioView struct {
	ID         string                 `json:"id"`
	Index      int                    `json:"index"`
	Protocols  []protocolView         `json:"protocols"`
	Connectors []capability.Connector `json:"connectors,omitempty"`
}

type protocolView struct {
	Code     string               `json:"code"`
	Name     string               `json:"name"`
	Channels []capability.Channel `json:"channels"`
}

func viewRouter(rt *capability.Router) routerView {
	v := routerView{ID: rt.ID, Name: rt.Name, Architecture: rt.Architecture, Ports: rt.Ports()}
	for _, radio := range rt.Radios() {
		rv := radioView{ID: radio.ID, Index: radio.Index, Connectors: radio.Connectors()}
		for _, p := range radio.Protocols() {
			rv.Protocols = append(rv.Protocols, protocolView{Code: p.Code, Name: p.Name, Channels: p.Channels(nil)})
		}
		v.Radios = append(v.Radios, rv)
	}
	return v
}

// ListPlatforms lists platforms and the ids of their routers.
func (h *Handler) ListPlatforms(w http.ResponseWriter, r *http.Request) {
	type platformView struct {
		Name    string   `json:"name"`
		Routers []string `json:"routers"`
	}
	var result []platformView
	for _, p := range h.cfg.Catalogue.Platforms() {
		pv := platformView{Name: p.Name}
		for _, rt := range p.Routers() {
			pv.Routers = append(pv.Routers, rt.ID)
		}
		result = append(result, pv)
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": result})
}

// GetRouter describes one router with its radios and ports.
func (h *Handler) GetRouter(w http.ResponseWriter, r *http.Request) {
	rt, err := h.cfg.Catalogue.Router(chi.URLParam(r, "platform"), chi.URLParam(r, "router"))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": viewRouter(rt)})
}

type nodeView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func viewNode(n ports.Node) nodeView {
	return nodeView{ID: n.ID, Name: n.Name, CreatedAt: n.CreatedAt, UpdatedAt: n.UpdatedAt}
}

// ListNodes lists managed nodes.
func (h *Handler) ListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.cfg.Nodes.ListNodes(r.Context())
	if err != nil {
		h.writeErr(w, err)
		return
	}
	result := make([]nodeView, len(nodes))
	for i, n := range nodes {
		result[i] = viewNode(n)
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": result})
}

type generalView struct {
	Name     string `json:"name"`
	Platform string `json:"platform"`
	Router   string `json:"router"`
	Version  string `json:"version,omitempty"`
}

// GetNode returns one node with its general settings, when set.
func (h *Handler) GetNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := h.cfg.Nodes.GetNode(r.Context(), id)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	body := map[string]any{"data": viewNode(n)}

	g, err := h.cfg.Nodes.LoadGeneral(r.Context(), id)
	switch {
	case err == nil:
		body["general"] = generalView{Name: g.Name, Platform: g.Platform, Router: g.Router, Version: g.Version}
	case !errors.Is(err, ports.ErrNotFound):
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// GetConfig returns the node's config instances in form order.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	tr, err := h.cfg.Trees.Tree(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	instances := tr.All()
	if instances == nil {
		instances = []*tree.Instance{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"node": tr.Node, "data": instances})
}

// GetArtifact compiles the node and returns the artifact as JSON, or as
// YAML or CBOR when ?format= asks for it.
func (h *Handler) GetArtifact(w http.ResponseWriter, r *http.Request) {
	art, err := h.cfg.Compiler.Compile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeErr(w, err)
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		w.Header().Set("ETag", `"`+art.Digest+`"`)
		writeJSON(w, http.StatusOK, art)
	case "yaml":
		out, err := yaml.Marshal(art)
		if err != nil {
			h.writeErr(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.Header().Set("ETag", `"`+art.Digest+`"`)
		w.WriteHeader(http.StatusOK)
		w.Write(out)
	case "cbor":
		out, err := art.Encode()
		if err != nil {
			h.writeErr(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/cbor")
		w.Header().Set("ETag", `"`+art.Digest+`"`)
		w.WriteHeader(http.StatusOK)
		w.Write(out)
	default:
		writeError(w, http.StatusBadRequest, "bad_request", "unknown format "+format)
	}
}

// writeErr maps domain errors to status codes.
func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	var (
		cerr   *cgm.CompileError
		lookup *capability.LookupError
	)
	switch {
	case errors.Is(err, ports.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.As(err, &cerr):
		h.logger.Warn().Err(err).Str("node", cerr.Node).Str("stage", string(cerr.Stage)).Msg("compile failed")
		writeError(w, http.StatusUnprocessableEntity, "compile_failed", err.Error())
	case errors.Is(err, registry.ErrUnknownItem), errors.As(err, &lookup):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		h.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorBody{Error: ErrorDetail{Code: code, Message: message}})
}
