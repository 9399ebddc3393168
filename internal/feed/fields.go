package feed

// Header alias sets for the fields the engine extracts. Third-party
// feeds name the same column many ways; the first alias present in the
// header wins for each field, even when its value is empty.
var (
	cropAliases   = []string{"crop", "crop_name", "commodity", "crop name", "productname"}
	regionAliases = []string{"region", "region_name", "county", "district"}
	marketAliases = []string{"market", "market_name", "market name"}
	priceAliases  = []string{"price", "unit price", "wholesale", "retail"}
	dateAliases   = []string{"entry_date", "date"}
)

func (r Row) lookup(aliases []string) string {
	for _, a := range aliases {
		if v, ok := r.Fields[a]; ok {
			return CleanCell(v)
		}
	}
	return ""
}

// Crop returns the raw commodity name, or "" when no crop column exists.
func (r Row) Crop() string { return r.lookup(cropAliases) }

// Region returns the raw region name, or "" when no region column exists.
func (r Row) Region() string { return r.lookup(regionAliases) }

// Market returns the raw market name; markets are optional so "" is a
// normal value.
func (r Row) Market() string { return r.lookup(marketAliases) }

// Price returns the raw price cell.
func (r Row) Price() string { return r.lookup(priceAliases) }

// Date returns the raw entry date cell.
func (r Row) Date() string { return r.lookup(dateAliases) }
