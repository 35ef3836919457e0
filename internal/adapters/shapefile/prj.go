package shapefile

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/jobrunner/geosight/internal/domain"
)

var (
	authorityPattern = regexp.MustCompile(`AUTHORITY\[\s*"EPSG"\s*,\s*"?(\d+)"?\s*\]`)
	utmPattern       = regexp.MustCompile(`(?i)UTM[_ ]zone[_ ](\d{1,2})\s*([NS])`)
)

// ParseSRID derives the EPSG code from a .prj WKT definition. OGC WKT
// carries an EPSG authority; ESRI WKT is matched by name. An unrecognized
// definition returns 0.
func ParseSRID(wkt string) int {
	wkt = strings.TrimSpace(wkt)
	if wkt == "" {
		return 0
	}

	// The outermost AUTHORITY comes last.
	if m := authorityPattern.FindAllStringSubmatch(wkt, -1); len(m) > 0 {
		if code, err := strconv.Atoi(m[len(m)-1][1]); err == nil {
			return code
		}
	}

	upper := strings.ToUpper(wkt)
	if strings.HasPrefix(upper, "PROJCS") {
		if m := utmPattern.FindStringSubmatch(wkt); m != nil && isWGS84(upper) {
			zone, _ := strconv.Atoi(m[1])
			if zone < 1 || zone > 60 {
				return 0
			}
			if strings.EqualFold(m[2], "S") {
				return 32700 + zone
			}
			return 32600 + zone
		}
		if strings.Contains(upper, "MERCATOR_AUXILIARY_SPHERE") || strings.Contains(upper, "PSEUDO-MERCATOR") {
			return domain.SRIDWebMercator
		}
		return 0
	}

	if strings.HasPrefix(upper, "GEOGCS") && isWGS84(upper) {
		return domain.SRIDWGS84
	}
	return 0
}

func isWGS84(upper string) bool {
	return strings.Contains(upper, "WGS_1984") || strings.Contains(upper, "WGS 84") || strings.Contains(upper, "WGS84")
}
