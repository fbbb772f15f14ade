package sender

import "strings"

const (
	sourceExt = ".json"
	outputExt = ".xml"
)

// DeriveOutputName replaces one trailing, case-sensitive ".json" with
// ".xml". Other names pass through unchanged.
//
//	orders.json   -> orders.xml
//	a.json.json   -> a.json.xml
//	ORDERS.JSON   -> ORDERS.JSON
//	noext         -> noext
func DeriveOutputName(filename string) string {
	if base, ok := strings.CutSuffix(filename, sourceExt); ok {
		return base + outputExt
	}
	return filename
}
