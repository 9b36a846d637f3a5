package route

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRoutes = `<?xml version="1.0" encoding="UTF-8"?>
<routes>
  <route id="0" town="Town01">
    <waypoint pitch="0.0" roll="0.0" x="338.7" y="226.8" yaw="-90.0" z="0.0"/>
    <waypoint pitch="0.0" roll="0.0" x="321.9" y="2.2" yaw="180.0" z="0.0"/>
  </route>
  <route id="1" town="Town01">
    <waypoint pitch="0.0" roll="0.0" x="92.1" y="86.4" yaw="0.0" z="0.0"/>
    <waypoint pitch="0.0" roll="0.0" x="92.1" y="159.9" yaw="90.0" z="0.0"/>
  </route>
</routes>`

func TestLoadFile_ParsesRoutesInOrder(t *testing.T) {
	dir := t.TempDir()
	path := FilePath(dir, "Town01", "straight")
	require.NoError(t, os.WriteFile(path, []byte(sampleRoutes), 0o644))

	routes, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, Waypoint{X: 338.7, Y: 226.8, Yaw: -90}, routes[0].Start())
	assert.Equal(t, Waypoint{X: 92.1, Y: 159.9, Yaw: 90}, routes[1].End())
	assert.Equal(t, filepath.Join(dir, "Town01_straight.xml"), path)
}

func TestLoadFile_MissingFileWrapsNotExist(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.xml"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestParse_RejectsSingleWaypointRoute(t *testing.T) {
	_, err := Parse([]byte(`<routes><route id="7"><waypoint x="1" y="2" z="0" yaw="0"/></route></routes>`))
	assert.ErrorIs(t, err, ErrTooShort)
	assert.Contains(t, err.Error(), `id="7"`)
}

func TestParse_PairsLooseWaypoints(t *testing.T) {
	// GIVEN four waypoints directly under the root, as in the corl2017 files
	doc := `<routes>
  <waypoint x="0" y="0" z="0" yaw="0"/>
  <waypoint x="10" y="0" z="0" yaw="0"/>
  <waypoint x="20" y="5" z="0" yaw="90"/>
  <waypoint x="20" y="30" z="0" yaw="90"/>
</routes>`

	// WHEN the file is parsed
	routes, err := Parse([]byte(doc))

	// THEN consecutive waypoints form (start, end) routes in document order
	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, []Waypoint{{X: 0, Y: 0}, {X: 10, Y: 0}}, routes[0].Waypoints)
	assert.Equal(t, []Waypoint{{X: 20, Y: 5, Yaw: 90}, {X: 20, Y: 30, Yaw: 90}}, routes[1].Waypoints)
}

func TestParse_RouteElementKeepsAllWaypoints(t *testing.T) {
	doc := `<routes>
  <route id="0"><waypoint x="0" y="0"/><waypoint x="10" y="0"/><waypoint x="20" y="5"/><waypoint x="30" y="15"/></route>
  <waypoint x="50" y="0"/><waypoint x="60" y="0"/>
</routes>`

	routes, err := Parse([]byte(doc))

	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, 4, routes[0].Len())
	assert.Equal(t, 2, routes[1].Len())
}

func TestParse_OddLooseWaypointCount(t *testing.T) {
	_, err := Parse([]byte(`<routes><waypoint x="0" y="0"/><waypoint x="5" y="0"/><waypoint x="9" y="0"/></routes>`))
	assert.ErrorIs(t, err, ErrUnpairedWaypoint)
}

func TestParse_NoRoutesIsAnError(t *testing.T) {
	for name, doc := range map[string]string{
		"empty document": "",
		"empty routes":   `<routes></routes>`,
		"empty route":    `<?xml version="1.0"?><routes><route id="0"></route></routes>`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
	_, err := Parse([]byte(`<routes></routes>`))
	assert.ErrorIs(t, err, ErrNoRoutes)
}

func TestLoadFile_NoRoutesNamesTheFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Town01_turn.xml")
	require.NoError(t, os.WriteFile(path, []byte(`<routes></routes>`), 0o644))

	_, err := LoadFile(path)

	assert.ErrorIs(t, err, ErrNoRoutes)
	assert.Contains(t, err.Error(), path)
}
