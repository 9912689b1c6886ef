// Package catalog holds the static animalitos reference set and the fuzzy
// resolution of scraped tokens against it.
package catalog

import (
	"animalitos-analytics/internal/models"
)

// entries is the full animalitos table. Codes "00".."36" are unique and
// the slice order is the canonical catalog iteration order.
var entries = []models.Entity{
	{ID: "ballena", Name: "Ballena", Code: "00", Icon: "🐋"},
	{ID: "carnero", Name: "Carnero", Code: "01", Icon: "🐏"},
	{ID: "toro", Name: "Toro", Code: "02", Icon: "🐂"},
	{ID: "ciempies", Name: "Ciempiés", Code: "03", Icon: "🐛"},
	{ID: "alacran", Name: "Alacrán", Code: "04", Icon: "🦂"},
	{ID: "leon", Name: "León", Code: "05", Icon: "🦁"},
	{ID: "rana", Name: "Rana", Code: "06", Icon: "🐸"},
	{ID: "perico", Name: "Perico", Code: "07", Icon: "🦜"},
	{ID: "raton", Name: "Ratón", Code: "08", Icon: "🐭"},
	{ID: "aguila", Name: "Águila", Code: "09", Icon: "🦅"},
	{ID: "tigre", Name: "Tigre", Code: "10", Icon: "🐯"},
	{ID: "gato", Name: "Gato", Code: "11", Icon: "🐱"},
	{ID: "caballo", Name: "Caballo", Code: "12", Icon: "🐴"},
	{ID: "mono", Name: "Mono", Code: "13", Icon: "🐵"},
	{ID: "paloma", Name: "Paloma", Code: "14", Icon: "🕊️"},
	{ID: "zorro", Name: "Zorro", Code: "15", Icon: "🦊"},
	{ID: "oso", Name: "Oso", Code: "16", Icon: "🐻"},
	{ID: "pavo", Name: "Pavo", Code: "17", Icon: "🦃"},
	{ID: "burro", Name: "Burro", Code: "18", Icon: "🐴"},
	{ID: "chivo", Name: "Chivo", Code: "19", Icon: "🐐"},
	{ID: "cochino", Name: "Cochino", Code: "20", Icon: "🐷"},
	{ID: "gallo", Name: "Gallo", Code: "21", Icon: "🐓"},
	{ID: "camello", Name: "Camello", Code: "22", Icon: "🐫"},
	{ID: "cebra", Name: "Cebra", Code: "23", Icon: "🦓"},
	{ID: "iguana", Name: "Iguana", Code: "24", Icon: "🦎"},
	{ID: "gallina", Name: "Gallina", Code: "25", Icon: "🐔"},
	{ID: "vaca", Name: "Vaca", Code: "26", Icon: "🐮"},
	{ID: "perro", Name: "Perro", Code: "27", Icon: "🐶"},
	{ID: "zamuro", Name: "Zamuro", Code: "28", Icon: "🦅"},
	{ID: "elefante", Name: "Elefante", Code: "29", Icon: "🐘"},
	{ID: "caiman", Name: "Caimán", Code: "30", Icon: "🐊"},
	{ID: "lapa", Name: "Lapa", Code: "31", Icon: "🐹"},
	{ID: "ardilla", Name: "Ardilla", Code: "32", Icon: "🐿️"},
	{ID: "pescado", Name: "Pescado", Code: "33", Icon: "🐟"},
	{ID: "venado", Name: "Venado", Code: "34", Icon: "🦌"},
	{ID: "jirafa", Name: "Jirafa", Code: "35", Icon: "🦒"},
	{ID: "culebra", Name: "Culebra", Code: "36", Icon: "🐍"},
}

// Catalog is the immutable animalitos reference set, indexed for the
// lookups the resolver and analyzer need.
type Catalog struct {
	entities []models.Entity
	byID     map[string]models.Entity
	byCode   map[string]models.Entity
}

// New loads the static catalog. Call once at startup and share.
func New() *Catalog {
	c := &Catalog{
		entities: entries,
		byID:     make(map[string]models.Entity, len(entries)),
		byCode:   make(map[string]models.Entity, len(entries)),
	}
	for _, e := range entries {
		c.byID[e.ID] = e
		c.byCode[e.Code] = e
	}
	return c
}

// Entities returns the catalog in canonical order. Callers must not
// mutate the returned slice.
func (c *Catalog) Entities() []models.Entity {
	return c.entities
}

// Size returns the number of catalog entities.
func (c *Catalog) Size() int {
	return len(c.entities)
}

// ByID looks an entity up by its identifier.
func (c *Catalog) ByID(id string) (models.Entity, bool) {
	e, ok := c.byID[id]
	return e, ok
}

// ByCode looks an entity up by its two-digit code.
func (c *Catalog) ByCode(code string) (models.Entity, bool) {
	e, ok := c.byCode[code]
	return e, ok
}
