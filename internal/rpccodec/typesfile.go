package rpccodec

import (
	"encoding/json"
	"os"
)

// fileTypeNames maps JSON type names to ParamType values.
var fileTypeNames = map[string]ParamType{
	"nvarchar":         TypeNVarChar,
	"int":              TypeInt,
	"bit":              TypeBit,
	"decimal":          TypeDecimal,
	"date":             TypeDate,
	"time":             TypeTime,
	"datetime2":        TypeDateTime2,
	"datetimeoffset":   TypeDateTimeOffset,
	"uniqueidentifier": TypeUniqueIdentifier,
	"varbinary":        TypeVarBinary,
}

// FileResolver is a TypeResolver backed by a JSON file of the shape
// {"proc_name": {"@param": "type_name", ...}, ...}, used to drive the
// optional from-scratch repack builder when RPC_PARAM_TYPES_PATH is set.
type FileResolver struct {
	procs map[string]map[string]ParamType
}

// LoadFileResolver reads path and builds a FileResolver. Unknown type
// names are skipped rather than failing the whole load.
func LoadFileResolver(path string) (*FileResolver, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc map[string]map[string]string
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	procs := make(map[string]map[string]ParamType, len(doc))
	for proc, params := range doc {
		pm := make(map[string]ParamType, len(params))
		for name, typeName := range params {
			if t, ok := fileTypeNames[typeName]; ok {
				pm[name] = t
			}
		}
		procs[proc] = pm
	}
	return &FileResolver{procs: procs}, nil
}

// ResolveType implements TypeResolver.
func (f *FileResolver) ResolveType(proc, param string) (ParamType, bool) {
	if f == nil {
		return 0, false
	}
	params, ok := f.procs[proc]
	if !ok {
		return 0, false
	}
	t, ok := params[param]
	return t, ok
}
