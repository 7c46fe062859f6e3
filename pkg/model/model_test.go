package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocationValidate(t *testing.T) {
	tests := []struct {
		name    string
		loc     Location
		wantErr bool
	}{
		{"valid", Location{Lat: 40.0, Lon: -74.0}, false},
		{"lat too high", Location{Lat: 90.5, Lon: 0}, true},
		{"lat too low", Location{Lat: -91, Lon: 0}, true},
		{"lon too high", Location{Lat: 0, Lon: 180.1}, true},
		{"lon too low", Location{Lat: 0, Lon: -181}, true},
		{"boundary", Location{Lat: 90, Lon: -180}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.loc.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLocationToWKTPoint(t *testing.T) {
	loc := Location{Lat: 40.5, Lon: -74.25}
	assert.Equal(t, "POINT(-74.25 40.5)", loc.ToWKTPoint())
}

func TestNewActorDefaults(t *testing.T) {
	a := NewActor("alpha", "commander")
	assert.Equal(t, ResolutionMacro, a.Resolution)
	assert.Equal(t, "active", a.Status)
	assert.NotNil(t, a.Assets)
	assert.NotNil(t, a.Attributes)
	require.NoError(t, a.Validate())
}

func TestActorValidate(t *testing.T) {
	a := NewActor("", "commander")
	assert.Error(t, a.Validate())

	a = NewActor("alpha", "")
	assert.Error(t, a.Validate())

	a = NewActor("alpha", "commander")
	a.Location = &Location{Lat: 200, Lon: 0}
	assert.Error(t, a.Validate())
}

func TestAssetLocationObj(t *testing.T) {
	a := &Asset{AssetID: "truck-1", Location: map[string]float64{"lat": 10, "lon": 20}}
	loc := a.LocationObj()
	require.NotNil(t, loc)
	assert.Equal(t, 10.0, loc.Lat)
	assert.Equal(t, 20.0, loc.Lon)
	assert.Nil(t, loc.Elevation)

	a.Location["elevation"] = 150.0
	loc = a.LocationObj()
	require.NotNil(t, loc.Elevation)
	assert.Equal(t, 150.0, *loc.Elevation)

	a = &Asset{AssetID: "truck-2", Location: map[string]float64{"lat": 10}}
	assert.Nil(t, a.LocationObj())
}

func TestWorldStateValidate(t *testing.T) {
	w := NewWorldState("sim-1")
	require.NoError(t, w.Validate())

	w.Actors["alpha"] = NewActor("alpha", "commander")
	w.Actors["alpha"].Assets = []string{"truck-1"}
	assert.Error(t, w.Validate(), "actor references missing asset")

	w.Assets["truck-1"] = &Asset{AssetID: "truck-1", Name: "Truck", Status: "operational"}
	require.NoError(t, w.Validate())

	w.Environment.Cycle = -1
	assert.Error(t, w.Validate())
}

func TestTerrainValidate(t *testing.T) {
	tr := &Terrain{
		TerrainID:    "ridge",
		TerrainType:  TerrainMountains,
		GeometryWKT:  "POLYGON((0 0, 1 0, 1 1, 0 1, 0 0))",
		MovementCost: 3.0,
	}
	require.NoError(t, tr.Validate())

	tr.MovementCost = -1
	assert.Error(t, tr.Validate())

	tr.MovementCost = 1
	tr.GeometryWKT = ""
	assert.Error(t, tr.Validate())
}
