package farm

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Record is the canonical farm shape every downstream analysis consumes.
type Record struct {
	Polygon       *Polygon               `json:"polygon"`
	Name          string                 `json:"name"`
	FarmID        string                 `json:"farmId"`
	Owner         string                 `json:"owner,omitempty"`
	Metadata      map[string]interface{} `json:"metadata"`
	TreeInventory []TreeMeasurement      `json:"treeInventory,omitempty"`
	Location      map[string]interface{} `json:"location,omitempty"`

	// Simplified is set when a MultiPolygon input was reduced to its
	// first constituent polygon. DroppedPolygons counts the discarded
	// constituents so batch summaries can report the simplification.
	Simplified      bool `json:"-"`
	DroppedPolygons int  `json:"-"`
}

// TreeMeasurement is one row of a ground inventory. Measurements with a
// non-positive diameter or height are excluded from aggregation.
type TreeMeasurement struct {
	Species string  `json:"species"`
	DBHCm   float64 `json:"dbh_cm"`
	HeightM float64 `json:"height_m"`
	Count   int     `json:"count"`
}

// LoadRecord reads a farm file (JSON or GeoJSON) and normalizes it.
func LoadRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read farm file: %w", err)
	}
	return ParseRecord(data, path)
}

// ParseRecord normalizes raw farm JSON into a Record. Three input shapes
// are supported: a GeoJSON FeatureCollection (first feature wins), a
// single GeoJSON Feature, and a bespoke object carrying a `polygon` field
// that is either a raw geometry or a wrapped Feature. sourcePath seeds
// the name and farmId fallbacks.
func ParseRecord(raw []byte, sourcePath string) (*Record, error) {
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse farm JSON: %w", err)
	}

	stem := fileStem(sourcePath)
	generatedID := "farm-" + strings.ToLower(strings.ReplaceAll(stem, " ", "-"))

	var (
		polygon  *Polygon
		dropped  int
		name     string
		owner    string
		metadata map[string]interface{}
		err      error
	)

	switch {
	case stringField(data, "type") == "FeatureCollection":
		features, _ := data["features"].([]interface{})
		if len(features) == 0 {
			return nil, invalidGeometry("FeatureCollection has no features")
		}
		feature, _ := features[0].(map[string]interface{})
		geometry, ok := feature["geometry"]
		if !ok || geometry == nil {
			return nil, invalidGeometry("feature has no geometry")
		}
		polygon, dropped, err = NormalizeGeometry(geometry)
		if err != nil {
			return nil, err
		}
		props, _ := feature["properties"].(map[string]interface{})
		name = firstPresent(props, "name", "Name", "Description")
		owner = firstPresent(props, "owner", "Owner")
		metadata = mergeMetadata(props, data["metadata"])

	case stringField(data, "type") == "Feature":
		geometry, ok := data["geometry"]
		if !ok || geometry == nil {
			return nil, invalidGeometry("feature has no geometry")
		}
		polygon, dropped, err = NormalizeGeometry(geometry)
		if err != nil {
			return nil, err
		}
		props, _ := data["properties"].(map[string]interface{})
		name = firstPresent(props, "name", "Name", "Description")
		owner = firstPresent(props, "owner", "Owner")
		metadata = mergeMetadata(props, data["metadata"])

	case data["polygon"] != nil:
		rawPolygon := data["polygon"]
		if wrapped, ok := rawPolygon.(map[string]interface{}); ok && stringField(wrapped, "type") == "Feature" {
			geometry, ok := wrapped["geometry"]
			if !ok || geometry == nil {
				return nil, invalidGeometry("feature in 'polygon' has no geometry")
			}
			polygon, dropped, err = NormalizeGeometry(geometry)
		} else {
			polygon, dropped, err = NormalizeGeometry(rawPolygon)
		}
		if err != nil {
			return nil, err
		}
		name = firstPresent(data, "name", "Name")
		owner = firstPresent(data, "owner", "Owner")
		metadata = mergeMetadata(nil, data["metadata"])

	default:
		return nil, invalidGeometry("unsupported farm format: expected FeatureCollection, Feature, or an object with a 'polygon' field")
	}

	// Root-level fallbacks.
	if name == "" {
		name = firstPresent(data, "name", "Name")
	}
	if name == "" {
		name = stem
	}
	if owner == "" {
		owner = firstPresent(data, "owner", "Owner")
	}

	farmID := firstPresent(data, "farmId", "projectId")
	if farmID == "" {
		farmID = generatedID
	}

	record := &Record{
		Polygon:         polygon,
		Name:            name,
		FarmID:          farmID,
		Owner:           owner,
		Metadata:        metadata,
		Simplified:      dropped > 0,
		DroppedPolygons: dropped,
	}

	if location, ok := data["location"].(map[string]interface{}); ok {
		record.Location = location
	}
	if rawInventory, ok := data["treeInventory"]; ok {
		record.TreeInventory = parseInventory(rawInventory)
	}

	return record, nil
}

// parseInventory converts a raw inventory list, tolerating the legacy
// avgDbh/avgHeight key names alongside dbh_cm/height_m.
func parseInventory(raw interface{}) []TreeMeasurement {
	entries, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	inventory := make([]TreeMeasurement, 0, len(entries))
	for _, rawEntry := range entries {
		entry, ok := rawEntry.(map[string]interface{})
		if !ok {
			continue
		}
		measurement := TreeMeasurement{
			Species: stringField(entry, "species"),
			DBHCm:   numberField(entry, "dbh_cm", "avgDbh"),
			HeightM: numberField(entry, "height_m", "avgHeight"),
			Count:   1,
		}
		if measurement.Species == "" {
			measurement.Species = "default"
		}
		if count, ok := entry["count"].(float64); ok {
			measurement.Count = int(count)
		}
		inventory = append(inventory, measurement)
	}
	return inventory
}

// mergeMetadata unions feature properties with an explicit metadata field,
// metadata winning on key collision. Non-map metadata is wrapped.
func mergeMetadata(props map[string]interface{}, rawMetadata interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(props))
	for k, v := range props {
		merged[k] = v
	}
	switch metadata := rawMetadata.(type) {
	case nil:
	case map[string]interface{}:
		for k, v := range metadata {
			merged[k] = v
		}
	default:
		merged["value"] = metadata
	}
	return merged
}

// firstPresent returns the first non-empty string value among the given
// keys, in order.
func firstPresent(m map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if value, ok := m[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

func stringField(m map[string]interface{}, key string) string {
	value, _ := m[key].(string)
	return value
}

func numberField(m map[string]interface{}, keys ...string) float64 {
	for _, key := range keys {
		if value, ok := m[key].(float64); ok {
			return value
		}
	}
	return 0
}

func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
