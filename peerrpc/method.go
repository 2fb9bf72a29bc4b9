package peerrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"unicode"
)

var typeOfError = reflect.TypeOf((*error)(nil)).Elem()
var typeOfContext = reflect.TypeOf((*context.Context)(nil)).Elem()

// funcArgTypes returns the arg types and whether all the types are valid
// (exported or builtin). skip is the number of leading args to ignore (the
// receiver, for methods).
func funcArgTypes(funcType reflect.Type, skip int) (argTypes []reflect.Type, hasCtx bool, ok bool) {
	argNum := funcType.NumIn()
	argTypes = make([]reflect.Type, 0, argNum-skip)
	for argPos := skip; argPos < argNum; argPos++ {
		argType := funcType.In(argPos)
		if !isExportedOrBuiltin(argType) {
			return nil, hasCtx, false
		}
		if argType == typeOfContext {
			hasCtx = true
			continue
		}
		argTypes = append(argTypes, argType)
	}
	return argTypes, hasCtx, true
}

// funcErrPos returns the return value index position of an error type for
// supported return layouts: (), (T), (error), (T, error)
func funcErrPos(funcType reflect.Type) (int, bool) {
	switch funcType.NumOut() {
	case 0:
		return -1, true
	case 1:
		if funcType.Out(0) == typeOfError {
			// Single error return value
			return 0, true
		}
		// Single non-error return value
		return -1, true
	case 2:
		if funcType.Out(1) == typeOfError {
			// Two return values, one error type
			return 1, true
		}
		// Two return values, no error type, unsupported.
		return -1, false
	}
	return -1, false
}

// Func wraps a plain function value as a callable Method. The function may
// optionally take a leading context.Context, and may return any of: nothing,
// a value, an error, or a value and an error.
func Func(fn interface{}) (Method, error) {
	val := reflect.ValueOf(fn)
	if val.Kind() != reflect.Func {
		return Method{}, fmt.Errorf("not a function: %T", fn)
	}
	argTypes, hasCtx, ok := funcArgTypes(val.Type(), 0)
	if !ok {
		return Method{}, fmt.Errorf("unexported arg types in function: %T", fn)
	}
	errPos, ok := funcErrPos(val.Type())
	if !ok {
		return Method{}, fmt.Errorf("unsupported return values in function: %T", fn)
	}
	return Method{
		Func:     val,
		ArgTypes: argTypes,
		ErrPos:   errPos,
		HasCtx:   hasCtx,
	}, nil
}

// Funcs converts a mapping of method names to plain functions into a
// registry of callable methods.
func Funcs(funcs map[string]interface{}) (map[string]Method, error) {
	registry := make(map[string]Method, len(funcs))
	for name, fn := range funcs {
		m, err := Func(fn)
		if err != nil {
			return nil, fmt.Errorf("%s: %s", name, err)
		}
		registry[name] = m
	}
	return registry, nil
}

// Methods returns a mapping of valid method names to Method definitions for
// an instance's receiver. Method names have their first letter lowercased.
func Methods(receiver interface{}) (map[string]Method, error) {
	kind := reflect.TypeOf(receiver)
	val := reflect.ValueOf(receiver)
	if name := reflect.Indirect(val).Type().Name(); !isExported(name) {
		return nil, fmt.Errorf("receiver must be exported: %s", name)
	}

	methods := map[string]Method{}
	for i := 0; i < kind.NumMethod(); i++ {
		method := kind.Method(i)
		if method.PkgPath != "" {
			// Skip unexported methods
			continue
		}

		// Load arg types (skip first arg, the receiver)
		argTypes, hasCtx, ok := funcArgTypes(method.Type, 1)
		if !ok {
			// Skip methods with unexported arg types
			continue
		}

		errPos, ok := funcErrPos(method.Type)
		if !ok {
			return nil, fmt.Errorf("unsupported return values in method: %s", method.Name)
		}

		name := string(unicode.ToLower(rune(method.Name[0]))) + method.Name[1:]
		methods[name] = Method{
			Func:     method.Func,
			Receiver: val,
			ArgTypes: argTypes,
			ErrPos:   errPos,
			HasCtx:   hasCtx,
		}
	}

	return methods, nil
}

// Method is the definition of a locally exposed callable.
type Method struct {
	Func     reflect.Value
	Receiver reflect.Value // zero for plain functions
	ArgTypes []reflect.Type
	ErrPos   int
	HasCtx   bool
}

// CallJSON wraps Call but decodes JSON-encoded positional args first.
func (m *Method) CallJSON(ctx context.Context, rawArgs json.RawMessage) (interface{}, error) {
	args, err := parsePositionalArguments(rawArgs, m.ArgTypes)
	if err != nil {
		return nil, err
	}
	return m.Call(ctx, args)
}

// Call executes the method with the given arguments.
func (m *Method) Call(ctx context.Context, args []reflect.Value) (interface{}, error) {
	if len(args) != len(m.ArgTypes) {
		return nil, fmt.Errorf("invalid number of args: expected %d, got %d", len(m.ArgTypes), len(args))
	}

	arguments := make([]reflect.Value, 0, len(args)+2)
	if m.Receiver.IsValid() {
		arguments = append(arguments, m.Receiver)
	}
	if m.HasCtx {
		arguments = append(arguments, reflect.ValueOf(ctx))
	}
	arguments = append(arguments, args...)

	reply := m.Func.Call(arguments)

	// Are there any return values?
	if len(reply) == 0 {
		return nil, nil
	}
	// Is there an error return value?
	if m.ErrPos >= 0 && !reply[m.ErrPos].IsNil() {
		return nil, reply[m.ErrPos].Interface().(error)
	}
	if m.ErrPos == 0 {
		// Single error return layout with a nil error.
		return nil, nil
	}

	// All is good, assume the first result is what we want to return
	// This supports (T), (T, err)
	return reply[0].Interface(), nil
}
