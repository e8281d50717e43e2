package model

// AOIRequest describes one analysis request: a named circular area of
// interest defined by its center point and target area.
type AOIRequest struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	AreaSqM   float64 `json:"area_sq_m"`
}

// Validate checks the request against the input contract. It returns a
// ValidationError naming the violated constraint, or nil.
func (r AOIRequest) Validate() error {
	if r.Name == "" {
		return Validationf("name must not be empty")
	}
	if r.Latitude < -90 || r.Latitude > 90 {
		return Validationf("latitude %v outside [-90, 90]", r.Latitude)
	}
	if r.Longitude < -180 || r.Longitude > 180 {
		return Validationf("longitude %v outside [-180, 180]", r.Longitude)
	}
	if r.AreaSqM <= 0 {
		return Validationf("area_sq_m %v must be positive", r.AreaSqM)
	}
	return nil
}
