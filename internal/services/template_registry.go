package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"fisse/internal/core"
	"fisse/internal/store"
)

// TemplateRegistry is the only writer of recurring templates.
type TemplateRegistry struct {
	store *store.Adapter
	now   func() time.Time
}

func NewTemplateRegistry(s *store.Adapter) *TemplateRegistry {
	return &TemplateRegistry{store: s, now: time.Now}
}

// List returns every template of side ordered by display name.
func (r *TemplateRegistry) List(ctx context.Context, side core.Side) ([]core.Template, error) {
	if err := side.Validate(); err != nil {
		return nil, err
	}
	docs, err := store.ListAs[core.Template](ctx, r.store, side.TemplatesCollection())
	if err != nil {
		return nil, fmt.Errorf("list %s templates: %w", side, err)
	}

	out := make([]core.Template, 0, len(docs))
	for id, t := range docs {
		if t.ID == "" {
			t.ID = id
		}
		t.Side = side
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].DisplayName), strings.ToLower(out[j].DisplayName)
		if a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Active returns the templates of side that participate in new periods.
func (r *TemplateRegistry) Active(ctx context.Context, side core.Side) ([]core.Template, error) {
	all, err := r.List(ctx, side)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, t := range all {
		if t.Active {
			active = append(active, t)
		}
	}
	return active, nil
}

func (r *TemplateRegistry) Get(ctx context.Context, side core.Side, id string) (core.Template, error) {
	if err := side.Validate(); err != nil {
		return core.Template{}, err
	}
	var t core.Template
	found, err := r.store.Read(ctx, side.TemplatesCollection(), id, &t)
	if err != nil {
		return core.Template{}, fmt.Errorf("read template %s: %w", id, err)
	}
	if !found {
		return core.Template{}, fmt.Errorf("%w: %s", core.ErrTemplateNotFound, id)
	}
	if t.ID == "" {
		t.ID = id
	}
	t.Side = side
	return t, nil
}

// Upsert validates and stores t. A missing id is assigned, as are the
// timestamps; the returned template is what was persisted.
func (r *TemplateRegistry) Upsert(ctx context.Context, t core.Template) (core.Template, error) {
	t.DisplayName = strings.TrimSpace(t.DisplayName)
	t.Category = strings.TrimSpace(t.Category)
	t.DefaultAmount = t.DefaultAmount.Round(2)
	if err := t.Validate(); err != nil {
		return core.Template{}, err
	}

	now := r.now().UTC()
	if t.ID == "" {
		t.ID = r.store.NewID(ctx, t.Side.TemplatesCollection())
		t.CreatedAt = now
	} else if t.CreatedAt.IsZero() {
		if existing, err := r.Get(ctx, t.Side, t.ID); err == nil {
			t.CreatedAt = existing.CreatedAt
		} else {
			t.CreatedAt = now
		}
	}
	t.UpdatedAt = now

	if err := r.store.Write(ctx, t.Side.TemplatesCollection(), t.ID, t); err != nil {
		return core.Template{}, fmt.Errorf("write template %s: %w", t.ID, err)
	}

	slog.InfoContext(ctx, "Template saved",
		"side", t.Side,
		"template_id", t.ID,
		"name", t.DisplayName,
		"active", t.Active)

	return t, nil
}

// Delete removes the template. Items already materialized from it stay in
// their periods; only future periods are affected.
func (r *TemplateRegistry) Delete(ctx context.Context, side core.Side, id string) error {
	if err := side.Validate(); err != nil {
		return err
	}
	if err := r.store.Delete(ctx, side.TemplatesCollection(), id); err != nil {
		return fmt.Errorf("delete template %s: %w", id, err)
	}
	slog.InfoContext(ctx, "Template deleted", "side", side, "template_id", id)
	return nil
}
