package domain

import "strings"

// GeoRequirement describes where the engagement takes place.
type GeoRequirement struct {
	RegionID                 string `json:"region_id"`
	RegionName               string `json:"region_name"`
	RequiresPhysicalPresence bool   `json:"requires_physical_presence"`
	AllowsRemoteWork         bool   `json:"allows_remote_work"`
}

func normalizeGeo(g GeoRequirement) GeoRequirement {
	g.RegionID = strings.TrimSpace(g.RegionID)
	g.RegionName = strings.TrimSpace(g.RegionName)
	return g
}

// IsZero reports whether no region was supplied.
func (g GeoRequirement) IsZero() bool {
	return g.RegionID == "" && g.RegionName == ""
}

// Customer is a weak reference to a customer record.
type Customer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func normalizeCustomer(c Customer) Customer {
	c.ID = strings.TrimSpace(c.ID)
	c.Name = strings.TrimSpace(c.Name)
	return c
}
