package fetch

// Listing is one normalized property listing as fetched from a source.
type Listing struct {
	Source     string `json:"source"`
	ExternalID string `json:"external_id"`

	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Link        string `json:"link,omitempty"`

	Price       float64 `json:"price"`
	Currency    string  `json:"currency,omitempty"`
	PricePerSqm float64 `json:"price_per_sqm,omitempty"`

	Rooms       int     `json:"rooms,omitempty"`
	Area        float64 `json:"area,omitempty"`
	Floor       int     `json:"floor,omitempty"`
	TotalFloors int     `json:"total_floors,omitempty"`

	City      string  `json:"city,omitempty"`
	District  string  `json:"district,omitempty"`
	Address   string  `json:"address,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`

	Photos   []string       `json:"photos,omitempty"`
	Features map[string]any `json:"features,omitempty"`
}

// Identity is the listing's stable dedup key.
func (l Listing) Identity() string {
	return l.Source + ":" + l.ExternalID
}
