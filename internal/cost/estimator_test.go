package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quobo-ops/aecos/internal/element"
)

func newWallFolder(t *testing.T) (string, *element.Store, string) {
	t.Helper()
	store, err := element.NewStore(t.TempDir())
	require.NoError(t, err)

	thickness := 0.2
	vol := 3.0
	elem, err := store.Create(element.CreateParams{
		IFCClass: "IfcWall",
		Name:     "Wall",
		Materials: []element.MaterialLayer{
			{Name: "concrete", Thickness: &thickness},
		},
		Geometry: &element.GeometryInfo{
			BoundingBox: element.BoundingBox{MaxX: 5, MaxY: 0.2, MaxZ: 3},
			Volume:      &vol,
		},
	})
	require.NoError(t, err)
	return store.Folder(elem.GlobalID), store, elem.GlobalID
}

func TestEstimateWall(t *testing.T) {
	folder, _, id := newWallFolder(t)
	e := NewEngine(nil)

	report, err := e.Estimate(folder, "US")
	require.NoError(t, err)
	assert.Equal(t, id, report.ElementID)
	assert.Equal(t, "IfcWall", report.IFCClass)
	require.Len(t, report.Lines, 1)

	line := report.Lines[0]
	assert.Equal(t, "concrete", line.Material)
	assert.Equal(t, "m3", line.UnitType)
	// 3 m3 at (180 + 95) USD/m3 at factor 1.0.
	assert.InDelta(t, 3*(180+95), report.Total, 0.01)
	assert.Greater(t, report.DurationDays, 0.0)
}

func TestRegionFactor(t *testing.T) {
	folder, _, _ := newWallFolder(t)
	e := NewEngine(nil)

	us, err := e.Estimate(folder, "US")
	require.NoError(t, err)
	ca, err := e.Estimate(folder, "CA")
	require.NoError(t, err)
	assert.Greater(t, ca.Total, us.Total)
}

func TestUnpricedMaterial(t *testing.T) {
	store, err := element.NewStore(t.TempDir())
	require.NoError(t, err)
	elem, err := store.Create(element.CreateParams{
		IFCClass:  "IfcWall",
		Materials: []element.MaterialLayer{{Name: "unobtainium"}},
	})
	require.NoError(t, err)

	e := NewEngine(nil)
	report, err := e.Estimate(store.Folder(elem.GlobalID), "")
	require.NoError(t, err)
	assert.Empty(t, report.Lines)
	assert.Equal(t, []string{"unobtainium"}, report.Unpriced)
	assert.Equal(t, 0.0, report.Total)
}

func TestAddPricing(t *testing.T) {
	e := NewEngine(Table{})
	e.AddPricing(PricingKey{Material: "Foamglas", IFCClass: "*"},
		Pricing{MaterialCostPerUnit: 40, LaborCostPerUnit: 10, UnitType: "m2"})

	p, ok := e.lookup("foamglas", "IfcWall")
	require.True(t, ok)
	assert.Equal(t, 40.0, p.MaterialCostPerUnit)
}

func TestEstimateMissingFolder(t *testing.T) {
	e := NewEngine(nil)
	_, err := e.Estimate(t.TempDir()+"/nope", "")
	assert.Error(t, err)
}

func TestReportMarkdown(t *testing.T) {
	folder, _, _ := newWallFolder(t)
	e := NewEngine(nil)
	report, err := e.Estimate(folder, "US")
	require.NoError(t, err)

	md := report.ToMarkdown()
	assert.Contains(t, md, "# Cost Data")
	assert.Contains(t, md, "Total Installed Cost")
	assert.Contains(t, md, "concrete")

	schedule := report.ToScheduleMarkdown()
	assert.Contains(t, schedule, "# Schedule")
	assert.Contains(t, schedule, "days")
}
