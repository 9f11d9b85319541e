package models

type UploadProfilePictureResponse struct {
	Message          string  `json:"message"`
	ProfileURL       string  `json:"profileUrl"`
	OriginalFormat   string  `json:"originalFormat"`
	OptimizedFormat  string  `json:"optimizedFormat"`
	Dimensions       string  `json:"dimensions"`
	OriginalSize     int64   `json:"originalSize"`
	OptimizedSize    int     `json:"optimizedSize"`
	CompressionRatio float64 `json:"compressionRatio"`
	IsAnimated       bool    `json:"isAnimated"`
}

type DeleteProfilePictureResponse struct {
	Message    string `json:"message"`
	ProfileURL string `json:"profileUrl"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
