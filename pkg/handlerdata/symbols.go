package handlerdata

import "reflect"

// ImportPath is the path interpreted handlers use to import this package.
const ImportPath = "github.com/httpmocker/httpmocker/pkg/handlerdata"

// Symbols exports this package to the Go interpreter. Keys follow the
// interpreter's "importpath/name" convention.
var Symbols = map[string]map[string]reflect.Value{
	ImportPath + "/handlerdata": {
		"From":        reflect.ValueOf(From),
		"Value":       reflect.ValueOf(Value),
		"WriteJSON":   reflect.ValueOf(WriteJSON),
		"Select":      reflect.ValueOf(Select),
		"NewContext":  reflect.ValueOf(NewContext),
		"ErrNotFound": reflect.ValueOf(&ErrNotFound).Elem(),
	},
}
