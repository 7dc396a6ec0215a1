package config

import (
	"reflect"
	"strings"
	"time"
)

// settings renders v as nested maps keyed by mapstructure tags, with
// durations as strings, so viper writes the same keys it reads back.
func settings(v any) map[string]any {
	out, _ := render(reflect.ValueOf(v)).(map[string]any)
	return out
}

var durationType = reflect.TypeOf(time.Duration(0))

func render(v reflect.Value) any {
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Type() == durationType {
		return time.Duration(v.Int()).String()
	}

	switch v.Kind() {
	case reflect.Struct:
		m := make(map[string]any, v.NumField())
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
			if name == "" || name == "-" {
				continue
			}
			m[name] = render(v.Field(i))
		}
		return m
	case reflect.Map:
		m := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = render(iter.Value())
		}
		return m
	case reflect.Slice:
		s := make([]any, v.Len())
		for i := range s {
			s[i] = render(v.Index(i))
		}
		return s
	default:
		return v.Interface()
	}
}
