package data

import (
	"context"
	"fmt"
)

// Area is one named surface region in normalized map coordinates
// ([0,1] relative to the 960x720 operator map).
type Area struct {
	ID   int
	Name string
	X1   float64
	Y1   float64
	X2   float64
	Y2   float64
}

// Contains reports whether a normalized map point falls inside the area.
func (a Area) Contains(x, y float64) bool {
	return x >= a.X1 && x < a.X2 && y >= a.Y1 && y < a.Y2
}

// DefaultAreas is the surveyed layout seeded by the migrator: two runways,
// four taxiways and the grass strips between them.
func DefaultAreas() []Area {
	return []Area{
		{ID: 1, Name: "RWY_A", X1: 0.00, Y1: 0.00, X2: 1.00, Y2: 0.20},
		{ID: 2, Name: "RWY_B", X1: 0.00, Y1: 0.80, X2: 1.00, Y2: 1.00},
		{ID: 3, Name: "TWY_A", X1: 0.00, Y1: 0.35, X2: 0.25, Y2: 0.65},
		{ID: 4, Name: "TWY_B", X1: 0.25, Y1: 0.35, X2: 0.50, Y2: 0.65},
		{ID: 5, Name: "TWY_C", X1: 0.50, Y1: 0.35, X2: 0.75, Y2: 0.65},
		{ID: 6, Name: "TWY_D", X1: 0.75, Y1: 0.35, X2: 1.00, Y2: 0.65},
		{ID: 7, Name: "GRASS_A", X1: 0.00, Y1: 0.20, X2: 1.00, Y2: 0.35},
		{ID: 8, Name: "GRASS_B", X1: 0.00, Y1: 0.65, X2: 1.00, Y2: 0.80},
	}
}

// AreaModel reads the seeded area table.
type AreaModel struct {
	DB DBTX
}

func (m AreaModel) List(ctx context.Context) ([]Area, error) {
	rows, err := m.DB.QueryContext(ctx, `
		SELECT area_id, name, x1, y1, x2, y2
		FROM area
		ORDER BY area_id`)
	if err != nil {
		return nil, fmt.Errorf("list areas: %w", err)
	}
	defer rows.Close()

	var out []Area
	for rows.Next() {
		var a Area
		if err := rows.Scan(&a.ID, &a.Name, &a.X1, &a.Y1, &a.X2, &a.Y2); err != nil {
			return nil, fmt.Errorf("list areas: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
