package route

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

var (
	// ErrNoRoutes is returned when a route file yields no route.
	ErrNoRoutes = errors.New("route: file contains no routes")
	// ErrUnpairedWaypoint is returned when loose waypoints do not pair up.
	ErrUnpairedWaypoint = errors.New("route: loose waypoint has no destination")
)

// routeElement is a <route> with its <waypoint> children in driving order.
type routeElement struct {
	ID        string     `xml:"id,attr"`
	Waypoints []Waypoint `xml:"waypoint"`
}

// FilePath returns the conventional route file for a town and navigation type.
func FilePath(dir, town, navigationType string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.xml", town, navigationType))
}

// LoadFile parses every route in an XML route file. A missing file is reported
// with an error wrapping os.ErrNotExist.
func LoadFile(path string) ([]Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading routes: %w", err)
	}
	routes, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return routes, nil
}

// Parse decodes route XML. A <route> element becomes one route over all of
// its waypoints. Waypoints outside any <route> pair up in document order,
// each (start, end) pair forming a two-point route. A document that yields
// no route is an error.
func Parse(data []byte) ([]Route, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var (
		routes  []Route
		pending *Waypoint
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing routes: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "route":
			var el routeElement
			if err := dec.DecodeElement(&el, &start); err != nil {
				return nil, fmt.Errorf("parsing routes: %w", err)
			}
			r, err := New(el.Waypoints)
			if err != nil {
				return nil, fmt.Errorf("route %d (id=%q): %w", len(routes), el.ID, err)
			}
			routes = append(routes, r)
		case "waypoint":
			var w Waypoint
			if err := dec.DecodeElement(&w, &start); err != nil {
				return nil, fmt.Errorf("parsing routes: %w", err)
			}
			if pending == nil {
				pending = &w
				continue
			}
			r, err := New([]Waypoint{*pending, w})
			if err != nil {
				return nil, fmt.Errorf("route %d: %w", len(routes), err)
			}
			routes = append(routes, r)
			pending = nil
		}
	}
	if pending != nil {
		return nil, fmt.Errorf("%w: (%g, %g)", ErrUnpairedWaypoint, pending.X, pending.Y)
	}
	if len(routes) == 0 {
		return nil, ErrNoRoutes
	}
	return routes, nil
}
