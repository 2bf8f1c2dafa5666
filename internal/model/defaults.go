package model

import "fmt"

// Floor sections of the default layout.
const (
	SectionSalle    = "Salle"
	SectionTerrasse = "Terrasse"
	SectionBar      = "Bar"
)

type layoutRange struct {
	from, to int
	section  string
	seats    int
}

// defaultLayout is the floor plan seeded on first launch.
var defaultLayout = []layoutRange{
	{1, 6, SectionSalle, 4},
	{7, 8, SectionSalle, 6},
	{9, 14, SectionTerrasse, 4},
	{15, 16, SectionBar, 2},
}

// DefaultTables returns a fresh copy of the default floor plan: 16 tables
// across Salle (1-8), Terrasse (9-14) and Bar (15-16), all available.
func DefaultTables() []Table {
	var tables []Table
	for _, r := range defaultLayout {
		for id := r.from; id <= r.to; id++ {
			tables = append(tables, Table{
				ID:      id,
				Name:    fmt.Sprintf("Table %d", id),
				Section: r.section,
				Status:  TableAvailable,
				Seats:   r.seats,
			})
		}
	}
	return tables
}

// DefaultTable returns the default layout entry for id.
func DefaultTable(id int) (Table, bool) {
	for _, r := range defaultLayout {
		if id >= r.from && id <= r.to {
			return Table{
				ID:      id,
				Name:    fmt.Sprintf("Table %d", id),
				Section: r.section,
				Status:  TableAvailable,
				Seats:   r.seats,
			}, true
		}
	}
	return Table{}, false
}
