// Package fakeapi serves fixture records with the envelope conventions read by
// the model package. It backs the end-to-end tests and the serve command.
package fakeapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/go-chi/chi/v5"

	"github.com/diwise/restmodel/pkg/model"
	"github.com/diwise/restmodel/pkg/model/inflect"
	"github.com/diwise/restmodel/pkg/model/params"
)

const serviceName string = "restmodel-fakeapi"

// New returns a handler serving the collections of store:
//
//	GET  /{collection}                     {"<collection>": [...], "total_count": n}
//	GET  /{collection}/count               {"count": n}
//	POST /{collection}/batch               {"<collection>": [...]}
//	GET  /{collection}/{id}                {"<singular>": {...}}
//	GET  /{owner}/{ownerID}/{collection}   records with <singular owner>_id = ownerID
//
// Requests are checked against the authenticator given with WithAuthenticator.
func New(store *Store, logger *slog.Logger, options ...Option) http.Handler {
	cfg := &serverConfig{}
	for _, option := range options {
		option(cfg)
	}

	r := newRouter(serviceName, logger)

	if cfg.authenticator != nil {
		r.Use(Authorize(cfg.authenticator))
	}

	r.Route("/{collection}", func(r chi.Router) {
		r.Get("/", NewQueryHandler(store))
		r.Get("/count", NewCountHandler(store))
		r.Post("/batch", NewBatchHandler(store))
		r.Get("/{id}", NewRetrieveHandler(store))
		r.Get("/{ownerID}/{nested}", NewNestedQueryHandler(store))
	})

	return r
}

type serverConfig struct {
	authenticator Authenticator
}

type Option func(*serverConfig)

func WithAuthenticator(authenticator Authenticator) Option {
	return func(c *serverConfig) {
		c.authenticator = authenticator
	}
}

var reserved = map[string]bool{
	params.KeyLimit:  true,
	params.KeyOffset: true,
	params.KeyLinks:  true,
	params.KeyVoid:   true,
}

func NewQueryHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		collection := chi.URLParam(r, "collection")
		query(w, r, store, collection, filtersFrom(r))
	}
}

func NewNestedQueryHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := chi.URLParam(r, "collection")
		collection := chi.URLParam(r, "nested")

		filters := filtersFrom(r)
		filters[inflect.Default.Singularize(owner)+"_id"] = chi.URLParam(r, "ownerID")

		query(w, r, store, collection, filters)
	}
}

func query(w http.ResponseWriter, r *http.Request, store *Store, collection string, filters map[string]string) {
	if !store.Has(collection) {
		notFound(w, fmt.Sprintf("no collection named %s", collection))
		return
	}

	records := store.Query(collection, filters)
	total := len(records)

	offset, err := intQueryParam(r, params.KeyOffset)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	limit, err := intQueryParam(r, params.KeyLimit)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	records = page(records, offset, limit)

	links := linkNames(r)
	for _, record := range records {
		embed(store, collection, record, links)
	}

	logging.GetFromContext(r.Context()).Debug("query", "collection", collection, "filters", filters, "matches", total)

	respond(w, http.StatusOK, map[string]any{
		collection:          records,
		model.TotalCountKey: total,
	})
}

func NewCountHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		collection := chi.URLParam(r, "collection")
		if !store.Has(collection) {
			notFound(w, fmt.Sprintf("no collection named %s", collection))
			return
		}

		respond(w, http.StatusOK, map[string]any{
			"count": len(store.Query(collection, filtersFrom(r))),
		})
	}
}

func NewBatchHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		collection := chi.URLParam(r, "collection")

		body := struct {
			IDs []any `json:"id"`
		}{}

		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			badRequest(w, fmt.Sprintf("failed to decode request body: %s", err.Error()))
			return
		}

		respond(w, http.StatusOK, map[string]any{
			collection: store.Batch(collection, body.IDs),
		})
	}
}

func NewRetrieveHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		collection := chi.URLParam(r, "collection")
		id := chi.URLParam(r, "id")

		record, ok := store.Get(collection, id)
		if !ok {
			notFound(w, fmt.Sprintf("no %s with id %s", collection, id))
			return
		}

		embed(store, collection, record, linkNames(r))

		respond(w, http.StatusOK, map[string]any{
			inflect.Default.Singularize(collection): record,
		})
	}
}

// embed adds the records of every linked collection that refer back to record.
func embed(store *Store, collection string, record map[string]any, links []string) {
	foreignKey := inflect.Default.Singularize(collection) + "_id"

	for _, link := range links {
		linked := inflect.Default.Pluralize(link)
		if !store.Has(linked) {
			continue
		}

		record[link] = store.Query(linked, map[string]string{foreignKey: fmt.Sprint(record["id"])})
	}
}

func filtersFrom(r *http.Request) map[string]string {
	filters := map[string]string{}

	for k, v := range r.URL.Query() {
		if reserved[k] || strings.Contains(k, "[") || len(v) == 0 {
			continue
		}
		filters[k] = v[0]
	}

	return filters
}

func linkNames(r *http.Request) []string {
	p := params.Params{}
	if links := r.URL.Query().Get(params.KeyLinks); links != "" {
		p[params.KeyLinks] = links
	}
	return p.LinkNames()
}

func intQueryParam(r *http.Request, key string) (int, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return -1, nil
	}

	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return -1, fmt.Errorf("%s must be a non negative integer", key)
	}

	return n, nil
}

func page(records []map[string]any, offset, limit int) []map[string]any {
	if offset > 0 {
		if offset >= len(records) {
			return []map[string]any{}
		}
		records = records[offset:]
	}

	if limit >= 0 && limit < len(records) {
		records = records[:limit]
	}

	return records
}

func respond(w http.ResponseWriter, code int, body any) {
	b, err := json.Marshal(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(b)
}

func notFound(w http.ResponseWriter, detail string) {
	respond(w, http.StatusNotFound, map[string]string{"error": detail})
}

func badRequest(w http.ResponseWriter, detail string) {
	respond(w, http.StatusBadRequest, map[string]string{"error": detail})
}
