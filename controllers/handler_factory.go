package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"

	"github.com/gin-gonic/gin"

	"natours-api/models"
	"natours-api/utils"
)

// Record is the behaviour the generic handlers need from a resource.
type Record[T any] interface {
	*T
	Prepare()
	Validate() error
}

// Store is the persistence behind a resource.
type Store[T any] interface {
	List(ctx context.Context, query url.Values, where map[string]interface{}) ([]T, *utils.APIFeatures, error)
	FindByID(ctx context.Context, id string, preloads ...string) (*T, error)
	Create(ctx context.Context, record *T) error
	Update(ctx context.Context, record *T, columns []string) error
	Delete(ctx context.Context, id string) error
}

// Patch is a decoded request body, keyed by JSON attribute.
type Patch map[string]json.RawMessage

func (p Patch) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Take removes key from the patch and decodes its value into dest. It
// reports whether the key was present.
func (p Patch) Take(key string, dest interface{}) (bool, error) {
	raw, ok := p[key]
	if !ok {
		return false, nil
	}
	delete(p, key)
	if err := json.Unmarshal(raw, dest); err != nil {
		return true, &utils.CastError{Path: key, Value: string(raw)}
	}
	return true, nil
}

// MergeInto decodes the patch onto record, leaving absent attributes as
// they are.
func (p Patch) MergeInto(record interface{}) error {
	if len(p) == 0 {
		return nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, record)
}

// Writable drops the attributes that are not in columns.
func (p Patch) Writable(columns models.ColumnMap) Patch {
	out := make(Patch, len(p))
	for k, v := range p {
		if _, ok := columns[k]; ok {
			out[k] = v
		}
	}
	return out
}

// DecodePatch reads a JSON object body. An empty body is an empty patch.
func DecodePatch(c *gin.Context) (Patch, error) {
	patch := Patch{}
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return patch, nil
	}
	if err := json.NewDecoder(c.Request.Body).Decode(&patch); err != nil {
		return nil, err
	}
	return patch, nil
}

// ResourceOptions describes one resource to the generic handlers.
type ResourceOptions[T any] struct {
	// Envelope keys of single records and lists.
	Singular string
	Plural   string

	// Writable maps the attributes a body may set to their columns.
	Writable models.ColumnMap

	// OnePreloads are the associations GetOne expands.
	OnePreloads []string

	// ParentParam names the route parameter that scopes lists, stored in
	// ParentColumn.
	ParentParam  string
	ParentColumn string

	// Bind runs before the patch is merged. It may consume attributes that
	// are not plain columns, such as guide references.
	Bind func(c *gin.Context, record *T, patch Patch, creating bool) error

	// AfterWrite runs after every successful create, update and delete.
	AfterWrite func(c *gin.Context)
}

// ResourceHandler provides list, fetch, create, update and delete handlers
// for one resource.
type ResourceHandler[T any, P Record[T]] struct {
	store Store[T]
	opts  ResourceOptions[T]
}

func NewResourceHandler[T any, P Record[T]](store Store[T], opts ResourceOptions[T]) *ResourceHandler[T, P] {
	return &ResourceHandler[T, P]{store: store, opts: opts}
}

// List runs the shaped query and returns the (projected) records with
// their count.
func (h *ResourceHandler[T, P]) List(c *gin.Context) (interface{}, int, error) {
	var where map[string]interface{}
	if h.opts.ParentParam != "" {
		if raw := c.Param(h.opts.ParentParam); raw != "" {
			parentID, err := utils.ParseID(h.opts.ParentParam, raw)
			if err != nil {
				return nil, 0, err
			}
			where = map[string]interface{}{h.opts.ParentColumn: parentID}
		}
	}

	records, features, err := h.store.List(c.Request.Context(), c.Request.URL.Query(), where)
	if err != nil {
		return nil, 0, err
	}
	items, err := features.Project(records)
	if err != nil {
		return nil, 0, err
	}
	return items, len(records), nil
}

func (h *ResourceHandler[T, P]) GetAll(c *gin.Context) {
	items, count, err := h.List(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	utils.SendList(c, h.opts.Plural, items, count)
}

func (h *ResourceHandler[T, P]) GetOne(c *gin.Context) {
	id, err := utils.ParseID("id", c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	record, err := h.store.FindByID(c.Request.Context(), id, h.opts.OnePreloads...)
	if err != nil {
		_ = c.Error(err)
		return
	}
	utils.SendData(c, http.StatusOK, h.opts.Singular, record)
}

func (h *ResourceHandler[T, P]) CreateOne(c *gin.Context) {
	patch, err := DecodePatch(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	patch = patch.Writable(h.opts.Writable)

	record := new(T)
	if h.opts.Bind != nil {
		if err := h.opts.Bind(c, record, patch, true); err != nil {
			_ = c.Error(err)
			return
		}
	}
	if err := patch.MergeInto(record); err != nil {
		_ = c.Error(err)
		return
	}

	P(record).Prepare()
	if err := P(record).Validate(); err != nil {
		_ = c.Error(err)
		return
	}
	if err := h.store.Create(c.Request.Context(), record); err != nil {
		_ = c.Error(err)
		return
	}

	h.afterWrite(c)
	utils.SendData(c, http.StatusCreated, h.opts.Singular, record)
}

func (h *ResourceHandler[T, P]) UpdateOne(c *gin.Context) {
	patch, err := DecodePatch(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.UpdateWith(c, patch)
}

// UpdateWith applies an already decoded patch to the record named by the
// :id parameter and responds with the stored result.
func (h *ResourceHandler[T, P]) UpdateWith(c *gin.Context, patch Patch) {
	ctx := c.Request.Context()
	id, err := utils.ParseID("id", c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	record, err := h.store.FindByID(ctx, id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	patch = patch.Writable(h.opts.Writable)
	if h.opts.Bind != nil {
		if err := h.opts.Bind(c, record, patch, false); err != nil {
			_ = c.Error(err)
			return
		}
	}
	if err := patch.MergeInto(record); err != nil {
		_ = c.Error(err)
		return
	}

	P(record).Prepare()
	if err := P(record).Validate(); err != nil {
		_ = c.Error(err)
		return
	}

	columns, _ := h.opts.Writable.Columns(patch.Keys())
	if err := h.store.Update(ctx, record, columns); err != nil {
		_ = c.Error(err)
		return
	}

	updated, err := h.store.FindByID(ctx, id, h.opts.OnePreloads...)
	if err != nil {
		_ = c.Error(err)
		return
	}

	h.afterWrite(c)
	utils.SendData(c, http.StatusOK, h.opts.Singular, updated)
}

func (h *ResourceHandler[T, P]) DeleteOne(c *gin.Context) {
	id, err := utils.ParseID("id", c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	if err := h.store.Delete(c.Request.Context(), id); err != nil {
		_ = c.Error(err)
		return
	}

	h.afterWrite(c)
	utils.SendNoContent(c)
}

func (h *ResourceHandler[T, P]) afterWrite(c *gin.Context) {
	if h.opts.AfterWrite != nil {
		h.opts.AfterWrite(c)
	}
}
