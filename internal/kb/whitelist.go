package kb

// Whitelist is the fixed set of relation identifiers the engine may ground
// to. Stored relation identifiers carry a trailing direction marker
// character ("P31v"); membership is checked on the stripped identifier.
type Whitelist map[string]bool

// Allows reports whether the marker-suffixed relation identifier is in the
// whitelist. Empty identifiers are never allowed.
func (w Whitelist) Allows(kbID string) bool {
	if len(kbID) < 2 {
		return false
	}
	return w[kbID[:len(kbID)-1]]
}

// AllowsAll reports whether every given identifier passes.
func (w Whitelist) AllowsAll(kbIDs []string) bool {
	for _, id := range kbIDs {
		if !w.Allows(id) {
			return false
		}
	}
	return true
}

func NewWhitelist(ids []string) Whitelist {
	w := make(Whitelist, len(ids))
	for _, id := range ids {
		w[id] = true
	}
	return w
}

// DefaultWhitelist covers the relation inventory the generator is trusted
// with: biographical, geographic, organizational and temporal properties.
func DefaultWhitelist() Whitelist {
	return NewWhitelist([]string{
		"P6", "P17", "P19", "P20", "P21", "P22", "P25", "P26", "P27",
		"P30", "P31", "P35", "P36", "P37", "P39", "P40", "P47", "P50",
		"P54", "P57", "P58", "P69", "P86", "P102", "P106", "P108",
		"P112", "P115", "P118", "P123", "P131", "P136", "P138", "P140",
		"P150", "P155", "P156", "P159", "P161", "P162", "P166", "P170",
		"P175", "P176", "P178", "P179", "P190", "P194", "P205", "P206",
		"P241", "P264", "P272", "P276", "P279", "P286", "P344", "P355",
		"P361", "P364", "P400", "P403", "P449", "P463", "P488", "P495",
		"P527", "P551", "P569", "P570", "P571", "P576", "P577", "P580",
		"P582", "P585", "P607", "P610", "P625", "P641", "P647", "P674",
		"P676", "P706", "P710", "P737", "P740", "P749", "P800", "P866",
		"P937", "P1056", "P1303", "P1346", "P1376", "P1441", "P2348",
	})
}
