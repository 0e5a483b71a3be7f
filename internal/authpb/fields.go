package authpb

import "google.golang.org/protobuf/types/known/structpb"

// String returns the string field key of s, or "" when it is missing or not
// a string.
func String(s *structpb.Struct, key string) string {
	if s == nil {
		return ""
	}
	v, ok := s.GetFields()[key]
	if !ok {
		return ""
	}
	return v.GetStringValue()
}

// Int returns the numeric field key of s truncated to int64.
func Int(s *structpb.Struct, key string) int64 {
	if s == nil {
		return 0
	}
	return int64(s.GetFields()[key].GetNumberValue())
}

// Object returns the nested struct field key of s, or nil.
func Object(s *structpb.Struct, key string) *structpb.Struct {
	if s == nil {
		return nil
	}
	return s.GetFields()[key].GetStructValue()
}

// Strings builds a Struct of string fields.
func Strings(kv map[string]string) *structpb.Struct {
	fields := make(map[string]*structpb.Value, len(kv))
	for k, v := range kv {
		fields[k] = structpb.NewStringValue(v)
	}
	return &structpb.Struct{Fields: fields}
}
