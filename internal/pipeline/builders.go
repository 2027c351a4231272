// Package pipeline orchestrates Parse -> Comply -> Build -> Persist ->
// Validate -> Cost -> Regenerate -> Commit -> Audit for parametric element
// generation, and owns the registry that routes IFC classes to builders.
package pipeline

import (
	"math"

	"github.com/quobo-ops/aecos/internal/element"
)

// Builder emits the canonical JSON artifacts for one IFC class from a
// parsed spec. Builders are pure functions over their inputs.
type Builder interface {
	IFCClass() string
	BuildPsets(props, perf map[string]any) map[string]map[string]any
	BuildMaterials(materials []string, props map[string]any) []element.MaterialLayer
	BuildGeometry(props map[string]any) element.GeometryInfo
	BuildSpatial() element.SpatialReference
}

func numProp(props map[string]any, key string, def float64) float64 {
	if v, ok := props[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		}
	}
	return def
}

func boolProp(props map[string]any, key string, def bool) bool {
	if v, ok := props[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

func stringProp(props map[string]any, key, def string) string {
	if v, ok := props[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}

func mmToM(mm float64) float64 { return mm / 1000.0 }

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

func boxGeometry(x, y, z float64) element.GeometryInfo {
	vol := round(x*y*z, 6)
	return element.GeometryInfo{
		BoundingBox: element.BoundingBox{MaxX: x, MaxY: y, MaxZ: z},
		Volume:      &vol,
		Centroid:    []float64{round(x/2, 4), round(y/2, 4), round(z/2, 4)},
	}
}

func layered(names []string, thickness *float64, category string) []element.MaterialLayer {
	out := make([]element.MaterialLayer, 0, len(names))
	for _, name := range names {
		cat := category
		out = append(out, element.MaterialLayer{Name: name, Thickness: thickness, Category: &cat})
	}
	return out
}

func commonPerf(pset map[string]any, perf map[string]any) {
	if v, ok := perf["fire_rating"]; ok {
		pset["FireRating"] = v
	}
	if v, ok := perf["acoustic_stc"]; ok {
		pset["AcousticRating"] = v
	}
	if v, ok := perf["thermal_r_value"]; ok {
		pset["ThermalTransmittance"] = v
	}
}

// WallBuilder produces IfcWall data.
type WallBuilder struct{}

func (WallBuilder) IFCClass() string { return "IfcWall" }

func (WallBuilder) BuildPsets(props, perf map[string]any) map[string]map[string]any {
	common := map[string]any{
		"IsExternal":  boolProp(props, "is_external", true),
		"LoadBearing": boolProp(props, "load_bearing", false),
		"Reference":   stringProp(props, "reference", ""),
	}
	commonPerf(common, perf)
	return map[string]map[string]any{
		"Pset_WallCommon": common,
		"Dimensions": {
			"thickness_mm": numProp(props, "thickness_mm", 200),
			"height_mm":    numProp(props, "height_mm", 3000),
			"length_mm":    numProp(props, "length_mm", 5000),
		},
	}
}

func (WallBuilder) BuildMaterials(materials []string, props map[string]any) []element.MaterialLayer {
	thickness := numProp(props, "thickness_mm", 200)
	if len(materials) == 0 {
		materials = []string{"Concrete"}
	}
	layerT := round(thickness/float64(len(materials)), 1)
	return layered(materials, &layerT, "wall")
}

func (WallBuilder) BuildGeometry(props map[string]any) element.GeometryInfo {
	return boxGeometry(
		mmToM(numProp(props, "length_mm", 5000)),
		mmToM(numProp(props, "thickness_mm", 200)),
		mmToM(numProp(props, "height_mm", 3000)),
	)
}

func (WallBuilder) BuildSpatial() element.SpatialReference { return element.SpatialReference{} }

// DoorBuilder produces IfcDoor data.
type DoorBuilder struct{}

func (DoorBuilder) IFCClass() string { return "IfcDoor" }

func (DoorBuilder) BuildPsets(props, perf map[string]any) map[string]map[string]any {
	common := map[string]any{
		"IsExternal":         boolProp(props, "is_external", false),
		"Reference":          stringProp(props, "reference", ""),
		"HandicapAccessible": boolProp(props, "handicap_accessible", false),
	}
	commonPerf(common, perf)
	return map[string]map[string]any{
		"Pset_DoorCommon": common,
		"Dimensions": {
			"width_mm":        numProp(props, "width_mm", 914),
			"height_mm":       numProp(props, "height_mm", 2134),
			"swing_direction": stringProp(props, "swing_direction", "left"),
		},
		"Hardware": {
			"hardware_type": stringProp(props, "hardware_type", "lever"),
			"closer":        boolProp(props, "closer", false),
		},
	}
}

func (DoorBuilder) BuildMaterials(materials []string, _ map[string]any) []element.MaterialLayer {
	if len(materials) == 0 {
		materials = []string{"Wood"}
	}
	return layered(materials, nil, "door")
}

func (DoorBuilder) BuildGeometry(props map[string]any) element.GeometryInfo {
	return boxGeometry(
		mmToM(numProp(props, "width_mm", 914)),
		0.05,
		mmToM(numProp(props, "height_mm", 2134)),
	)
}

func (DoorBuilder) BuildSpatial() element.SpatialReference { return element.SpatialReference{} }

// WindowBuilder produces IfcWindow data.
type WindowBuilder struct{}

func (WindowBuilder) IFCClass() string { return "IfcWindow" }

func (WindowBuilder) BuildPsets(props, perf map[string]any) map[string]map[string]any {
	common := map[string]any{
		"IsExternal":  boolProp(props, "is_external", true),
		"Reference":   stringProp(props, "reference", ""),
		"GlazingType": stringProp(props, "glazing_type", "double"),
	}
	if v, ok := perf["thermal_u_value"]; ok {
		common["ThermalTransmittance"] = v
	}
	if v, ok := perf["fire_rating"]; ok {
		common["FireRating"] = v
	}
	return map[string]map[string]any{
		"Pset_WindowCommon": common,
		"Dimensions": {
			"width_mm":       numProp(props, "width_mm", 1200),
			"height_mm":      numProp(props, "height_mm", 1500),
			"sill_height_mm": numProp(props, "sill_height_mm", 900),
		},
	}
}

func (WindowBuilder) BuildMaterials(materials []string, _ map[string]any) []element.MaterialLayer {
	if len(materials) == 0 {
		materials = []string{"Glass"}
	}
	return layered(materials, nil, "window")
}

func (WindowBuilder) BuildGeometry(props map[string]any) element.GeometryInfo {
	return boxGeometry(
		mmToM(numProp(props, "width_mm", 1200)),
		0.03,
		mmToM(numProp(props, "height_mm", 1500)),
	)
}

func (WindowBuilder) BuildSpatial() element.SpatialReference { return element.SpatialReference{} }

// SlabBuilder produces IfcSlab data.
type SlabBuilder struct{}

func (SlabBuilder) IFCClass() string { return "IfcSlab" }

func (SlabBuilder) BuildPsets(props, perf map[string]any) map[string]map[string]any {
	common := map[string]any{
		"IsExternal":  boolProp(props, "is_external", false),
		"LoadBearing": boolProp(props, "load_bearing", true),
		"Reference":   stringProp(props, "reference", ""),
	}
	if v, ok := perf["fire_rating"]; ok {
		common["FireRating"] = v
	}
	return map[string]map[string]any{
		"Pset_SlabCommon": common,
		"Dimensions": {
			"thickness_mm": numProp(props, "thickness_mm", 200),
			"length_mm":    numProp(props, "length_mm", 6000),
			"width_mm":     numProp(props, "width_mm", 6000),
			"slope":        numProp(props, "slope", 0),
		},
		"Reinforcement": {
			"reinforcement": stringProp(props, "reinforcement", "standard"),
		},
	}
}

func (SlabBuilder) BuildMaterials(materials []string, props map[string]any) []element.MaterialLayer {
	thickness := numProp(props, "thickness_mm", 200)
	if len(materials) == 0 {
		materials = []string{"Concrete"}
	}
	layerT := round(thickness/float64(len(materials)), 1)
	return layered(materials, &layerT, "slab")
}

func (SlabBuilder) BuildGeometry(props map[string]any) element.GeometryInfo {
	return boxGeometry(
		mmToM(numProp(props, "length_mm", 6000)),
		mmToM(numProp(props, "width_mm", 6000)),
		mmToM(numProp(props, "thickness_mm", 200)),
	)
}

func (SlabBuilder) BuildSpatial() element.SpatialReference { return element.SpatialReference{} }

// ColumnBuilder produces IfcColumn data.
type ColumnBuilder struct{}

func (ColumnBuilder) IFCClass() string { return "IfcColumn" }

func (ColumnBuilder) BuildPsets(props, perf map[string]any) map[string]map[string]any {
	common := map[string]any{
		"LoadBearing": boolProp(props, "load_bearing", true),
		"Reference":   stringProp(props, "reference", ""),
	}
	if v, ok := perf["fire_rating"]; ok {
		common["FireRating"] = v
	}
	dims := map[string]any{
		"width_mm":  numProp(props, "width_mm", 400),
		"height_mm": numProp(props, "height_mm", 3600),
		"shape":     stringProp(props, "shape", "rectangular"),
	}
	if stringProp(props, "shape", "rectangular") == "circular" {
		dims["diameter_mm"] = numProp(props, "diameter_mm", numProp(props, "width_mm", 400))
	} else {
		dims["depth_mm"] = numProp(props, "depth_mm", numProp(props, "width_mm", 400))
	}
	return map[string]map[string]any{
		"Pset_ColumnCommon": common,
		"Dimensions":        dims,
		"Reinforcement": {
			"reinforcement": stringProp(props, "reinforcement", "standard"),
		},
	}
}

func (ColumnBuilder) BuildMaterials(materials []string, _ map[string]any) []element.MaterialLayer {
	if len(materials) == 0 {
		materials = []string{"Concrete"}
	}
	return layered(materials, nil, "column")
}

func (ColumnBuilder) BuildGeometry(props map[string]any) element.GeometryInfo {
	h := mmToM(numProp(props, "height_mm", 3600))
	w := mmToM(numProp(props, "width_mm", 400))
	if stringProp(props, "shape", "rectangular") == "circular" {
		d := mmToM(numProp(props, "diameter_mm", numProp(props, "width_mm", 400)))
		r := d / 2
		vol := round(math.Pi*r*r*h, 6)
		return element.GeometryInfo{
			BoundingBox: element.BoundingBox{MaxX: d, MaxY: d, MaxZ: h},
			Volume:      &vol,
			Centroid:    []float64{round(d/2, 4), round(d/2, 4), round(h/2, 4)},
		}
	}
	depth := mmToM(numProp(props, "depth_mm", numProp(props, "width_mm", 400)))
	return boxGeometry(w, depth, h)
}

func (ColumnBuilder) BuildSpatial() element.SpatialReference { return element.SpatialReference{} }

// BeamBuilder produces IfcBeam data.
type BeamBuilder struct{}

func (BeamBuilder) IFCClass() string { return "IfcBeam" }

func (BeamBuilder) BuildPsets(props, perf map[string]any) map[string]map[string]any {
	span := numProp(props, "length_mm", 6000)
	common := map[string]any{
		"LoadBearing": boolProp(props, "load_bearing", true),
		"Reference":   stringProp(props, "reference", ""),
		"Span":        span,
	}
	if v, ok := perf["fire_rating"]; ok {
		common["FireRating"] = v
	}
	return map[string]map[string]any{
		"Pset_BeamCommon": common,
		"Dimensions": {
			"depth_mm":     numProp(props, "depth_mm", 500),
			"width_mm":     numProp(props, "width_mm", 300),
			"length_mm":    span,
			"profile_type": stringProp(props, "profile_type", "W"),
		},
	}
}

func (BeamBuilder) BuildMaterials(materials []string, _ map[string]any) []element.MaterialLayer {
	if len(materials) == 0 {
		materials = []string{"Steel"}
	}
	return layered(materials, nil, "beam")
}

func (BeamBuilder) BuildGeometry(props map[string]any) element.GeometryInfo {
	return boxGeometry(
		mmToM(numProp(props, "length_mm", 6000)),
		mmToM(numProp(props, "width_mm", 300)),
		mmToM(numProp(props, "depth_mm", 500)),
	)
}

func (BeamBuilder) BuildSpatial() element.SpatialReference { return element.SpatialReference{} }

// GenericBuilder handles unknown classes by emitting a generic skeleton.
type GenericBuilder struct {
	Class string
}

func (g GenericBuilder) IFCClass() string {
	if g.Class != "" {
		return g.Class
	}
	return "IfcBuildingElementProxy"
}

func (g GenericBuilder) BuildPsets(props, perf map[string]any) map[string]map[string]any {
	common := map[string]any{
		"Reference": stringProp(props, "reference", ""),
	}
	commonPerf(common, perf)
	dims := map[string]any{}
	for _, key := range []string{"height_mm", "width_mm", "thickness_mm", "length_mm", "depth_mm"} {
		if v, ok := props[key]; ok {
			dims[key] = v
		}
	}
	psets := map[string]map[string]any{"Pset_Common": common}
	if len(dims) > 0 {
		psets["Dimensions"] = dims
	}
	return psets
}

func (GenericBuilder) BuildMaterials(materials []string, _ map[string]any) []element.MaterialLayer {
	return layered(materials, nil, "generic")
}

func (GenericBuilder) BuildGeometry(props map[string]any) element.GeometryInfo {
	return boxGeometry(
		mmToM(numProp(props, "length_mm", 1000)),
		mmToM(numProp(props, "width_mm", 1000)),
		mmToM(numProp(props, "height_mm", 1000)),
	)
}

func (GenericBuilder) BuildSpatial() element.SpatialReference { return element.SpatialReference{} }
