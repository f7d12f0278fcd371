package memory

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"
	"time"
)

// Registry owns collection metadata and permissions. All mutations run under
// one mutex so concurrent duplicate creates fail deterministically with
// AlreadyExists instead of silently overwriting.
type Registry struct {
	store     VectorStore
	dimension int

	mu          sync.Mutex
	collections map[string]*Collection
}

// NewRegistry creates a registry that mirrors collection lifecycle into the
// given vector store using the configured embedding dimension.
func NewRegistry(store VectorStore, dimension int) *Registry {
	return &Registry{
		store:       store,
		dimension:   dimension,
		collections: make(map[string]*Collection),
	}
}

// CollectionSpec describes a collection to create.
type CollectionSpec struct {
	Name        string
	Description string
	Tags        []string
	Category    string
	Project     string

	// Permissions, when nil, defaults to world-readable and
	// creator-writable.
	Permissions *Permissions
	CreatedBy   string
}

// Create registers a new collection and provisions its backing storage.
func (r *Registry) Create(ctx context.Context, spec CollectionSpec) (*Collection, error) {
	if spec.Name == "" {
		return nil, Errorf(KindValidation, "collection name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.collections[spec.Name]; ok {
		return nil, Errorf(KindAlreadyExists, "collection %q already exists", spec.Name)
	}

	perms := DefaultPermissions(spec.CreatedBy)
	if spec.Permissions != nil {
		perms = *spec.Permissions
	}

	if err := r.store.EnsureCollection(ctx, spec.Name, r.dimension); err != nil {
		return nil, err
	}

	col := &Collection{
		Name:        spec.Name,
		Description: spec.Description,
		Tags:        append([]string(nil), spec.Tags...),
		Category:    spec.Category,
		Project:     spec.Project,
		Permissions: perms,
		CreatedBy:   spec.CreatedBy,
		CreatedAt:   time.Now().UTC(),
	}
	r.collections[spec.Name] = col

	log.Printf("[REGISTRY] Created collection %q (created_by=%s)", spec.Name, spec.CreatedBy)
	return col.clone(), nil
}

// Get returns the metadata for one collection.
func (r *Registry) Get(name string) (*Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	col, ok := r.collections[name]
	if !ok {
		return nil, Errorf(KindNotFound, "collection %q not found", name)
	}
	return col.clone(), nil
}

// Exists reports whether a collection is registered.
func (r *Registry) Exists(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.collections[name]
	return ok
}

// ListFilter narrows List results. All supplied filters must match; the tag
// filter matches collections carrying any of the listed tags.
type ListFilter struct {
	Tags     []string
	Category string
	Project  string
	OwnedBy  string
}

// List returns all collections matching the filter, sorted by name.
func (r *Registry) List(filter ListFilter) []*Collection {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Collection
	for _, col := range r.collections {
		if !filter.matches(col) {
			continue
		}
		out = append(out, col.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (f ListFilter) matches(col *Collection) bool {
	if f.Category != "" && col.Category != f.Category {
		return false
	}
	if f.Project != "" && col.Project != f.Project {
		return false
	}
	if f.OwnedBy != "" && col.CreatedBy != f.OwnedBy {
		return false
	}
	if len(f.Tags) > 0 {
		any := false
		for _, want := range f.Tags {
			for _, have := range col.Tags {
				if want == have {
					any = true
					break
				}
			}
		}
		if !any {
			return false
		}
	}
	return true
}

// Readable returns the names of all collections the principal may read,
// sorted by name.
func (r *Registry) Readable(principal string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var names []string
	for name, col := range r.collections {
		if col.Permissions.CanRead(principal) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// NamesWithPrefix returns registered collection names starting with prefix,
// sorted so fallback selection is deterministic.
func (r *Registry) NamesWithPrefix(prefix string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var names []string
	for name := range r.collections {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// UpdateSpec carries the fields of an update. Nil fields are left unchanged;
// existing records are never re-embedded by a metadata update.
type UpdateSpec struct {
	Description *string
	Tags        []string
	Category    *string
	Project     *string
	Permissions *Permissions
	UpdatedBy   string
}

// Update merges the supplied fields into an existing collection.
func (r *Registry) Update(ctx context.Context, name string, spec UpdateSpec) (*Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	col, ok := r.collections[name]
	if !ok {
		return nil, Errorf(KindNotFound, "collection %q not found", name)
	}

	// Only admins may rewrite the permission sets; otherwise any principal
	// could grant itself write and walk past the Add/Delete checks. Checked
	// before any field merges so a mixed update never half-applies.
	if spec.Permissions != nil && !col.Permissions.CanAdmin(spec.UpdatedBy) {
		return nil, Errorf(KindForbidden, "principal %q is not an admin of collection %q", spec.UpdatedBy, name)
	}

	if spec.Description != nil {
		col.Description = *spec.Description
	}
	if spec.Tags != nil {
		col.Tags = append([]string(nil), spec.Tags...)
	}
	if spec.Category != nil {
		col.Category = *spec.Category
	}
	if spec.Project != nil {
		col.Project = *spec.Project
	}
	if spec.Permissions != nil {
		col.Permissions = *spec.Permissions
	}

	log.Printf("[REGISTRY] Updated collection %q (updated_by=%s)", name, spec.UpdatedBy)
	return col.clone(), nil
}

// Delete removes a collection and cascades to every record stored under it.
// Without confirm it never mutates state and always fails with
// ConfirmationRequired.
func (r *Registry) Delete(ctx context.Context, name, deletedBy string, confirm bool) error {
	if !confirm {
		return Errorf(KindConfirmationRequired,
			"confirmation required: set 'confirm' to true to delete collection %q and all its contents", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	col, ok := r.collections[name]
	if !ok {
		return Errorf(KindNotFound, "collection %q not found", name)
	}
	if !col.Permissions.CanAdmin(deletedBy) {
		return Errorf(KindForbidden, "principal %q is not an admin of collection %q", deletedBy, name)
	}

	if err := r.store.DropCollection(ctx, name); err != nil {
		return err
	}
	delete(r.collections, name)

	log.Printf("[REGISTRY] Deleted collection %q (deleted_by=%s)", name, deletedBy)
	return nil
}

func (c *Collection) clone() *Collection {
	cp := *c
	cp.Tags = append([]string(nil), c.Tags...)
	cp.Permissions.Read = append([]string(nil), c.Permissions.Read...)
	cp.Permissions.Write = append([]string(nil), c.Permissions.Write...)
	cp.Permissions.Admin = append([]string(nil), c.Permissions.Admin...)
	return &cp
}
