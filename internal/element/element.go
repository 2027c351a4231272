// Package element implements the folder-per-element persistence layer. The
// on-disk folder is the canonical representation of an element; the
// in-memory Element is a parsed view. All writes are deterministic (stable
// key order, stable formatting, newline-terminated) and atomic at the level
// of a single file.
package element

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// FolderPrefix is the naming prefix of every element folder.
const FolderPrefix = "element_"

// Canonical file names inside an element folder.
const (
	MetadataFile  = "metadata.json"
	PsetsFile     = "properties/psets.json"
	MaterialsFile = "materials/materials.json"
	GeometryFile  = "geometry/shape.json"
	SpatialFile   = "relationships/spatial.json"
)

// BoundingBox is an axis-aligned bounding box in meters.
type BoundingBox struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MinZ float64 `json:"min_z"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
	MaxZ float64 `json:"max_z"`
}

// GeometryInfo is the lightweight geometric summary of an element.
type GeometryInfo struct {
	BoundingBox BoundingBox `json:"bounding_box"`
	Volume      *float64    `json:"volume"`
	Centroid    []float64   `json:"centroid"`
}

// MaterialLayer is a single material layer or constituent.
type MaterialLayer struct {
	Name      string   `json:"name"`
	Thickness *float64 `json:"thickness"`
	Category  *string  `json:"category"`
	Fraction  *float64 `json:"fraction"`
}

// SpatialReference locates an element in the site/building/storey hierarchy.
type SpatialReference struct {
	SiteName     *string `json:"site_name"`
	SiteID       *string `json:"site_id"`
	BuildingName *string `json:"building_name"`
	BuildingID   *string `json:"building_id"`
	StoreyName   *string `json:"storey_name"`
	StoreyID     *string `json:"storey_id"`
}

// Element is the atomic unit of the system, mirroring the per-element
// folder layout.
type Element struct {
	GlobalID   string                    `json:"global_id"`
	IFCClass   string                    `json:"ifc_class"`
	Name       string                    `json:"name,omitempty"`
	ObjectType *string                   `json:"object_type,omitempty"`
	Tag        *string                   `json:"tag,omitempty"`
	Geometry   GeometryInfo              `json:"geometry"`
	Psets      map[string]map[string]any `json:"psets"`
	Materials  []MaterialLayer           `json:"materials"`
	Spatial    SpatialReference          `json:"spatial"`
}

// FlattenPsets builds the "<PsetName>.<PropertyName>" -> value map stored
// in metadata.json.
func FlattenPsets(psets map[string]map[string]any) map[string]any {
	flat := make(map[string]any)
	for psetName, props := range psets {
		for propName, val := range props {
			flat[psetName+"."+propName] = val
		}
	}
	return flat
}

// NewGlobalID mints a fresh 22-character GlobalId from a random UUID.
func NewGlobalID() string {
	u := uuid.New()
	return strings.ToUpper(hex.EncodeToString(u[:]))[:22]
}

// FolderName returns the canonical folder name for a GlobalId.
func FolderName(globalID string) string { return FolderPrefix + globalID }
