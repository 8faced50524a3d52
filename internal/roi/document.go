package roi

// SchemaVersion is the current registry document schema. Bump when the
// Definition shape changes; stores tolerate unknown fields so additive
// changes do not require a version bump.
const SchemaVersion = 1

// Document is the persisted form of the registry: every definition keyed by
// camera and ROI id, plus the schema version it was written with.
type Document struct {
	SchemaVersion int                              `json:"schema_version"`
	Cameras       map[string]map[string]Definition `json:"cameras"`
}

// NewDocument returns an empty document at the current schema version.
func NewDocument() Document {
	return Document{
		SchemaVersion: SchemaVersion,
		Cameras:       make(map[string]map[string]Definition),
	}
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	out := Document{
		SchemaVersion: d.SchemaVersion,
		Cameras:       make(map[string]map[string]Definition, len(d.Cameras)),
	}
	for camera, rois := range d.Cameras {
		m := make(map[string]Definition, len(rois))
		for id, def := range rois {
			m[id] = def
		}
		out.Cameras[camera] = m
	}
	return out
}
