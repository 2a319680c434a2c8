package exec

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
)

// TypeName names the GraphQL type of obj: a TypeName() method first, then a
// "__typename" map key
func TypeName(obj any) string {
	switch v := obj.(type) {
	case interface{ TypeName() string }:
		return v.TypeName()
	case map[string]any:
		name, _ := v["__typename"].(string)
		return name
	case *OrderedMap:
		raw, _ := v.Get("__typename")
		name, _ := raw.(string)
		return name
	}
	return ""
}

// DecodeArg decodes args[name] (an input object or a list of them) into out,
// matching json tags
func DecodeArg(args map[string]any, name string, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(args[name]); err != nil {
		return fmt.Errorf("argument %s: %w", name, err)
	}
	return nil
}

// StringArg returns args[name] as a string; ID arguments may arrive as numbers
func StringArg(args map[string]any, name string) string {
	switch v := args[name].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// fieldIndex caches json-name -> struct field index per type
var fieldIndex sync.Map

func structFields(t reflect.Type) map[string][]int {
	if cached, ok := fieldIndex.Load(t); ok {
		return cached.(map[string][]int)
	}

	fields := make(map[string][]int)
	for _, sf := range reflect.VisibleFields(t) {
		if !sf.IsExported() || sf.Anonymous {
			continue
		}
		name := sf.Name
		if tag, ok := sf.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		fields[name] = sf.Index
	}

	fieldIndex.Store(t, fields)
	return fields
}

// DefaultResolver reads field from a map or from the struct field whose json
// name (or Go name) equals field
func DefaultResolver(obj any, field string) (any, error) {
	switch v := obj.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return v[field], nil
	case *OrderedMap:
		value, _ := v.Get(field)
		return value, nil
	}

	rv := reflect.ValueOf(obj)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("cannot resolve field %s on %T", field, obj)
	}

	index, ok := structFields(rv.Type())[field]
	if !ok {
		return nil, fmt.Errorf("%T has no field %s", obj, field)
	}
	return rv.FieldByIndex(index).Interface(), nil
}

// introspectionField reads field from gqlgen's introspection wrappers: the
// method named after the field (fields and enumValues take includeDeprecated),
// then the exported struct field
func introspectionField(obj any, field string, args map[string]any) (any, error) {
	rv := reflect.ValueOf(obj)
	if rv.Kind() != reflect.Pointer {
		// wrappers come in slices by value, their methods have pointer receivers
		ptr := reflect.New(rv.Type())
		ptr.Elem().Set(rv)
		rv = ptr
	}

	name := strings.ToUpper(field[:1]) + field[1:]
	if m := rv.MethodByName(name); m.IsValid() && m.Type().NumOut() >= 1 {
		var in []reflect.Value
		switch {
		case m.Type().NumIn() == 0:
		case m.Type().NumIn() == 1 && m.Type().In(0).Kind() == reflect.Bool:
			include, _ := args["includeDeprecated"].(bool)
			in = append(in, reflect.ValueOf(include))
		default:
			return nil, fmt.Errorf("cannot call %s on %T", name, obj)
		}
		return m.Call(in)[0].Interface(), nil
	}

	if rv.Elem().Kind() == reflect.Struct {
		if f := rv.Elem().FieldByName(name); f.IsValid() && f.CanInterface() {
			return f.Interface(), nil
		}
	}

	switch field {
	case "isDeprecated", "isOneOf":
		return false, nil
	case "deprecationReason", "specifiedByURL", "description":
		return nil, nil
	}
	return nil, fmt.Errorf("%T has no field %s", obj, field)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

func deref(v any) any {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	return rv.Interface()
}

func serializeScalar(name string, val any) (any, error) {
	val = deref(val)

	switch name {
	case "ID", "String":
		switch v := val.(type) {
		case string:
			return v, nil
		case fmt.Stringer:
			return v.String(), nil
		case []byte:
			return string(v), nil
		}
		rv := reflect.ValueOf(val)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return strconv.FormatInt(rv.Int(), 10), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return strconv.FormatUint(rv.Uint(), 10), nil
		case reflect.String:
			return rv.String(), nil
		}
		return nil, fmt.Errorf("%s cannot represent %T", name, val)
	case "Int":
		rv := reflect.ValueOf(val)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return rv.Int(), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return int64(rv.Uint()), nil
		case reflect.Float32, reflect.Float64:
			f := rv.Float()
			if f == math.Trunc(f) {
				return int64(f), nil
			}
		}
		return nil, fmt.Errorf("Int cannot represent %v", val)
	case "Float":
		rv := reflect.ValueOf(val)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return float64(rv.Int()), nil
		case reflect.Float32, reflect.Float64:
			return rv.Float(), nil
		}
		return nil, fmt.Errorf("Float cannot represent %v", val)
	case "Boolean":
		if b, ok := val.(bool); ok {
			return b, nil
		}
		return nil, fmt.Errorf("Boolean cannot represent %v", val)
	}

	// custom scalars are passed through
	return val, nil
}
