package balance

import "vspcbal/internal/geo"

func validateRecords(units []UnitRecord, centers []CenterRecord) error {
	if len(centers) == 0 {
		return &ConfigError{Field: "centers", Reason: "at least one center is required"}
	}
	seen := make(map[string]struct{}, len(centers))
	for _, c := range centers {
		if c.ID == "" {
			return &DataError{Kind: "center", Reason: "empty id"}
		}
		if _, dup := seen[c.ID]; dup {
			return &DataError{Kind: "center", ID: c.ID, Reason: "duplicate id"}
		}
		seen[c.ID] = struct{}{}
		if err := geo.Validate(c.Location); err != nil {
			return &DataError{Kind: "center", ID: c.ID, Reason: err.Error()}
		}
	}

	unitSeen := make(map[string]struct{}, len(units))
	for _, u := range units {
		if u.ID == "" {
			return &DataError{Kind: "unit", Reason: "empty id"}
		}
		if _, dup := unitSeen[u.ID]; dup {
			return &DataError{Kind: "unit", ID: u.ID, Reason: "duplicate id"}
		}
		unitSeen[u.ID] = struct{}{}
		if u.Weight < 0 {
			return &DataError{Kind: "unit", ID: u.ID, Reason: "negative weight"}
		}
		if err := geo.Validate(u.Location); err != nil {
			return &DataError{Kind: "unit", ID: u.ID, Reason: err.Error()}
		}
		if u.PinnedCenterID != "" {
			if !u.Pinned {
				return &DataError{Kind: "unit", ID: u.ID, Reason: "pinned center set on unpinned unit"}
			}
			if _, ok := seen[u.PinnedCenterID]; !ok {
				return &DataError{Kind: "unit", ID: u.ID, Reason: "pinned to unknown center " + u.PinnedCenterID}
			}
		}
	}
	return nil
}
