package hierarchy

import (
	"log/slog"

	"github.com/masahif/pwcdb/internal/intern"
	"github.com/masahif/pwcdb/internal/normalize"
)

// AreaRow is an area with its surrogate id
type AreaRow struct {
	ID int64
	Area
}

// CategoryRow is a category created during this run
type CategoryRow struct {
	ID     int64
	Name   string
	AreaID int64
	Area   Area
}

// Link is a method to category membership
type Link struct {
	MethodID   int64
	CategoryID int64
}

// Assignment is what Assign produced for one method
type Assignment struct {
	NewCategories []CategoryRow
	Links         []Link
}

// Builder binds categories to areas and methods to categories. Bindings
// are first-write-wins and never change once made.
type Builder struct {
	interner   *intern.Interner
	classifier *Classifier
	areaIDs    map[string]int64 // slug -> id
	bindings   map[int64]Area   // category id -> area

	Classified  int // categories bound by the classifier
	FromSource  int // categories bound by a source-supplied area
	Conflicting int // later references whose source area disagreed with the binding
}

// NewBuilder creates a Builder that allocates ids from in. Area ids are
// interned immediately so AreaRows can be written before any method.
func NewBuilder(in *intern.Interner, classifier *Classifier) *Builder {
	b := &Builder{
		interner:   in,
		classifier: classifier,
		areaIDs:    make(map[string]int64, len(Areas)),
		bindings:   make(map[int64]Area),
	}
	for _, a := range Areas {
		id, _ := in.Intern(intern.Area, a.Slug)
		b.areaIDs[a.Slug] = id
	}
	return b
}

// AreaRows returns every area with its id
func (b *Builder) AreaRows() []AreaRow {
	rows := make([]AreaRow, 0, len(Areas))
	for _, a := range Areas {
		rows = append(rows, AreaRow{ID: b.areaIDs[a.Slug], Area: a})
	}
	return rows
}

// AreaID returns the id of an area
func (b *Builder) AreaID(a Area) int64 {
	return b.areaIDs[a.Slug]
}

// Bind records an existing category binding read from the store. The
// category id must already be preloaded into the interner.
func (b *Builder) Bind(categoryID int64, areaSlug string) {
	area, ok := AreaBySlug(areaSlug)
	if !ok {
		area = General
	}
	if _, bound := b.bindings[categoryID]; !bound {
		b.bindings[categoryID] = area
	}
}

// Binding returns the area a category is bound to
func (b *Builder) Binding(categoryID int64) (Area, bool) {
	a, ok := b.bindings[categoryID]
	return a, ok
}

// Assign links a method to the categories named by labels, creating and
// binding any category not seen before. A method without labels gets no
// links.
func (b *Builder) Assign(methodID int64, labels []normalize.Label) Assignment {
	var out Assignment
	for _, lbl := range labels {
		if lbl.Name == "" {
			continue
		}
		catID, _ := b.interner.Intern(intern.Category, lbl.Name)

		if bound, ok := b.bindings[catID]; ok {
			if src, ok := b.classifier.CanonicalArea(lbl.Area); ok && src != bound {
				b.Conflicting++
				slog.Debug("Category keeps first area binding",
					"category", lbl.Name, "bound_area", bound.Name, "source_area", src.Name)
			}
		} else {
			area := b.resolveArea(lbl)
			b.bindings[catID] = area
			out.NewCategories = append(out.NewCategories, CategoryRow{
				ID:     catID,
				Name:   lbl.Name,
				AreaID: b.areaIDs[area.Slug],
				Area:   area,
			})
		}

		out.Links = append(out.Links, Link{MethodID: methodID, CategoryID: catID})
	}
	return out
}

func (b *Builder) resolveArea(lbl normalize.Label) Area {
	if area, ok := b.classifier.CanonicalArea(lbl.Area); ok {
		b.FromSource++
		return area
	}
	b.Classified++
	return b.classifier.Classify(lbl.Name)
}

// AreasOf returns the union of the areas of the given categories, in
// first-seen order. This is a method's display area membership.
func (b *Builder) AreasOf(categoryIDs []int64) []Area {
	seen := make(map[string]bool)
	var areas []Area
	for _, id := range categoryIDs {
		a, ok := b.bindings[id]
		if !ok || seen[a.Slug] {
			continue
		}
		seen[a.Slug] = true
		areas = append(areas, a)
	}
	return areas
}
