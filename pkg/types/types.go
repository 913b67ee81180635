package types

// ImageDescriptor describes one image of a dataset as listed by the storage backend
type ImageDescriptor struct {
	Filename      string `json:"filename"`
	Path          string `json:"path"`
	HasAnnotation bool   `json:"has_annotation"`
}

// Collection is the listing returned for a dataset selection
type Collection struct {
	Dataset   string            `json:"dataset_name"`
	Split     string            `json:"split"`
	Total     int               `json:"total_images"`
	Annotated int               `json:"annotated"`
	Images    []ImageDescriptor `json:"images"`
}

// PixelBox is a bounding box in image-native pixels with a top-left origin
type PixelBox struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	ClassID int     `json:"class_id"`
}

// NormalizedBox is a center/size box with geometry divided by the image dimensions
type NormalizedBox struct {
	ClassID int     `json:"class_id"`
	XCenter float64 `json:"x_center"`
	YCenter float64 `json:"y_center"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

// Point is a 2D coordinate in either screen or image space
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Transform maps image space onto the drawing surface: screen = image*Scale + Offset
type Transform struct {
	Scale   float64 `json:"scale"`
	OffsetX float64 `json:"offset_x"`
	OffsetY float64 `json:"offset_y"`
}

// RelBox represents a normalized bounding box with coordinates in [0,1] range
type RelBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Detection is one object reported by a vision model
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        RelBox  `json:"box"`
}

// DetectionResult contains the complete result from the vision model
type DetectionResult struct {
	Objects     []Detection `json:"objects"`
	Description string      `json:"description"`
}
