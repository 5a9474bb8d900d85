// Package storefront maps vendor country/region codes to the numeric
// storefront identifiers the store protocol expects. The table is static:
// each region code maps to exactly one storefront id.
package storefront

import "strings"

// ids maps region codes to storefront ids.
var ids = map[string]string{
	"AE": "143481",
	"AR": "143505",
	"AT": "143445",
	"AU": "143460",
	"BE": "143446",
	"BG": "143526",
	"BR": "143503",
	"CA": "143455",
	"CH": "143459",
	"CL": "143483",
	"CN": "143465",
	"CO": "143501",
	"CZ": "143489",
	"DE": "143443",
	"DK": "143458",
	"EE": "143518",
	"EG": "143516",
	"ES": "143454",
	"FI": "143447",
	"FR": "143442",
	"GB": "143444",
	"GR": "143448",
	"HK": "143463",
	"HR": "143494",
	"HU": "143482",
	"ID": "143476",
	"IE": "143449",
	"IL": "143491",
	"IN": "143467",
	"IT": "143450",
	"JP": "143462",
	"KR": "143466",
	"LT": "143520",
	"LV": "143519",
	"MX": "143468",
	"MY": "143473",
	"NG": "143561",
	"NL": "143452",
	"NO": "143457",
	"NZ": "143461",
	"PH": "143474",
	"PK": "143477",
	"PL": "143478",
	"PT": "143453",
	"RO": "143487",
	"RU": "143469",
	"SA": "143479",
	"SE": "143456",
	"SG": "143464",
	"SK": "143496",
	"TH": "143475",
	"TR": "143480",
	"TW": "143470",
	"UA": "143492",
	"US": "143441",
	"VN": "143471",
	"ZA": "143472",
}

// ID returns the numeric storefront id for a two-letter region code.
func ID(region string) (string, bool) {
	id, ok := ids[strings.ToUpper(region)]
	return id, ok
}

// Region returns the region code for a numeric storefront id.
func Region(id string) (string, bool) {
	for region, sf := range ids {
		if sf == id {
			return region, true
		}
	}
	return "", false
}

// Header renders the X-Apple-Store-Front value for a region. The ",29"
// suffix selects the plist response flavor.
func Header(region string) (string, bool) {
	id, ok := ID(region)
	if !ok {
		return "", false
	}
	return id + "-1,29", true
}

// Regions returns all known region codes. Order is unspecified.
func Regions() []string {
	out := make([]string, 0, len(ids))
	for region := range ids {
		out = append(out, region)
	}
	return out
}
