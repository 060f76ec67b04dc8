package obmemo

import (
	"context"
	"fmt"
	"reflect"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// Wrap memoizes any function using Go generics.
// T must be a function type accepted by ValidateWrappableFunction.
//
// A leading context.Context parameter is passed through to fn but is not part
// of the cache key. A trailing error result maps onto the memoizer's error
// path, so failed calls are not cached. Functions without an error result
// re-panic with the error when the computation fails.
//
// The returned Memoizer gives access to the admin operations; its Call takes
// the key arguments only (no context).
func Wrap[T any](fn T, opts ...Option) (T, *Memoizer, error) {
	var zero T

	if err := ValidateWrappableFunction(fn); err != nil {
		return zero, nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	fnValue := reflect.ValueOf(fn)
	fnType := fnValue.Type()
	hasErr := hasErrorReturn(fnType)

	config := NewDefaultConfig()
	for _, opt := range opts {
		opt(config)
	}

	checkSeeds := seedChecker(fnType, hasErr)
	if err := checkSeeds(config.Base); err != nil {
		return zero, nil, err
	}

	m, err := newMemoizer(func(ctx context.Context, args []any) (any, error) {
		in, err := buildArgs(fnType, ctx, args)
		if err != nil {
			return nil, err
		}
		return processResults(fnValue.Call(in), hasErr)
	}, fn, config)
	if err != nil {
		return zero, nil, err
	}
	m.checkSeeds = checkSeeds

	wrapper := reflect.MakeFunc(fnType, func(args []reflect.Value) []reflect.Value {
		ctx, keyArgs := extractContextAndArgs(fnType, args)
		value, err := m.CallContext(ctx, keyArgs...)
		if err != nil {
			if hasErr {
				return createErrorReturn(fnType, err)
			}
			panic(err)
		}
		return convertValue(value, fnType, hasErr)
	})

	return wrapper.Interface().(T), m, nil
}

func takesContext(fnType reflect.Type) bool {
	return fnType.NumIn() > 0 && fnType.In(0) == contextType
}

// extractContextAndArgs extracts context and key args from function arguments
func extractContextAndArgs(fnType reflect.Type, args []reflect.Value) (context.Context, []any) {
	ctx := context.Background()
	offset := 0

	if takesContext(fnType) {
		if c, ok := args[0].Interface().(context.Context); ok && c != nil {
			ctx = c
		}
		offset = 1
	}

	keyArgs := make([]any, len(args)-offset)
	for i := offset; i < len(args); i++ {
		keyArgs[i-offset] = args[i].Interface()
	}
	return ctx, keyArgs
}

// buildArgs turns key args back into call arguments, restoring the context
func buildArgs(fnType reflect.Type, ctx context.Context, args []any) ([]reflect.Value, error) {
	offset := 0
	if takesContext(fnType) {
		offset = 1
	}
	if len(args)+offset != fnType.NumIn() {
		return nil, fmt.Errorf("obmemo: %s takes %d arguments, got %d", fnType, fnType.NumIn()-offset, len(args))
	}

	in := make([]reflect.Value, fnType.NumIn())
	if offset == 1 {
		in[0] = reflect.ValueOf(&ctx).Elem()
	}
	for i, arg := range args {
		in[i+offset] = valueOrZero(arg, fnType.In(i+offset))
	}
	return in, nil
}

// seedChecker returns a check that every seed calls fnType with arguments it
// accepts and holds a value convertValue can turn back into its results
func seedChecker(fnType reflect.Type, hasErr bool) func([]Seed) error {
	offset := 0
	if takesContext(fnType) {
		offset = 1
	}
	numValues := fnType.NumOut()
	if hasErr {
		numValues--
	}

	return func(base []Seed) error {
		for i, s := range base {
			if len(s.Args)+offset != fnType.NumIn() {
				return fmt.Errorf("%w: base entry %d: %s takes %d arguments, got %d",
					ErrInvalidConfig, i, fnType, fnType.NumIn()-offset, len(s.Args))
			}
			for j, arg := range s.Args {
				if !assignable(arg, fnType.In(j+offset)) {
					return fmt.Errorf("%w: base entry %d: argument %d: %T is not assignable to %s",
						ErrInvalidConfig, i, j, arg, fnType.In(j+offset))
				}
			}

			if numValues == 1 {
				if !assignable(s.Value, fnType.Out(0)) {
					return fmt.Errorf("%w: base entry %d: value %T is not assignable to %s",
						ErrInvalidConfig, i, s.Value, fnType.Out(0))
				}
				continue
			}
			values, ok := s.Value.([]any)
			if !ok || len(values) != numValues {
				return fmt.Errorf("%w: base entry %d: value must be []any with %d results",
					ErrInvalidConfig, i, numValues)
			}
			for j, v := range values {
				if !assignable(v, fnType.Out(j)) {
					return fmt.Errorf("%w: base entry %d: result %d: %T is not assignable to %s",
						ErrInvalidConfig, i, j, v, fnType.Out(j))
				}
			}
		}
		return nil
	}
}

// assignable reports whether v can stand in for a value of type t.
// nil stands for the zero value of types that can be nil.
func assignable(v any, t reflect.Type) bool {
	if v == nil {
		switch t.Kind() {
		case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
			return true
		}
		return false
	}
	return reflect.TypeOf(v).AssignableTo(t)
}

// hasErrorReturn checks if function returns error as last parameter
func hasErrorReturn(fnType reflect.Type) bool {
	return fnType.NumOut() >= 2 &&
		fnType.Out(fnType.NumOut()-1) == errorType
}

// processResults collapses function results into one cached value
func processResults(results []reflect.Value, hasErr bool) (any, error) {
	if hasErr {
		errResult := results[len(results)-1]
		if !errResult.IsNil() {
			return nil, errResult.Interface().(error)
		}
		results = results[:len(results)-1]
	}

	if len(results) == 1 {
		return results[0].Interface(), nil
	}
	values := make([]any, len(results))
	for i, result := range results {
		values[i] = result.Interface()
	}
	return values, nil
}

// convertValue converts a cached value back to the function's results
func convertValue(value any, fnType reflect.Type, hasErr bool) []reflect.Value {
	numOut := fnType.NumOut()
	results := make([]reflect.Value, numOut)

	numValues := numOut
	if hasErr {
		results[numOut-1] = reflect.Zero(fnType.Out(numOut - 1))
		numValues--
	}

	if numValues == 1 {
		results[0] = valueOrZero(value, fnType.Out(0))
		return results
	}

	values := value.([]any)
	for i := 0; i < numValues; i++ {
		results[i] = valueOrZero(values[i], fnType.Out(i))
	}
	return results
}

// valueOrZero returns v as a reflect.Value of type t; nil becomes t's zero value
func valueOrZero(v any, t reflect.Type) reflect.Value {
	if v == nil {
		return reflect.Zero(t)
	}
	return reflect.ValueOf(v)
}

// createErrorReturn creates a return value slice with the given error
func createErrorReturn(fnType reflect.Type, err error) []reflect.Value {
	numOut := fnType.NumOut()
	results := make([]reflect.Value, numOut)

	// Set all non-error returns to zero values
	for i := 0; i < numOut-1; i++ {
		results[i] = reflect.Zero(fnType.Out(i))
	}

	// Set the error
	results[numOut-1] = reflect.ValueOf(&err).Elem()

	return results
}

// WrapFunc1 wraps a function with one argument
func WrapFunc1[T, R any](fn func(T) R, opts ...Option) (func(T) R, *Memoizer, error) {
	return Wrap(fn, opts...)
}

// WrapFunc2 wraps a function with two arguments
func WrapFunc2[T1, T2, R any](fn func(T1, T2) R, opts ...Option) (func(T1, T2) R, *Memoizer, error) {
	return Wrap(fn, opts...)
}

// WrapFunc1WithError wraps a function with one argument that returns an error
func WrapFunc1WithError[T, R any](fn func(T) (R, error), opts ...Option) (func(T) (R, error), *Memoizer, error) {
	return Wrap(fn, opts...)
}

// WrapFunc2WithError wraps a function with two arguments that returns an error
func WrapFunc2WithError[T1, T2, R any](fn func(T1, T2) (R, error), opts ...Option) (func(T1, T2) (R, error), *Memoizer, error) {
	return Wrap(fn, opts...)
}

// ValidateWrappableFunction checks if a function can be wrapped
// This is useful for providing better error messages at runtime
func ValidateWrappableFunction(fn any) error {
	fnType := reflect.TypeOf(fn)

	if fnType == nil || fnType.Kind() != reflect.Func {
		return fmt.Errorf("not a function: %T", fn)
	}
	if reflect.ValueOf(fn).IsNil() {
		return fmt.Errorf("function is nil")
	}

	// Check if function is variadic (not currently supported)
	if fnType.IsVariadic() {
		return fmt.Errorf("variadic functions are not currently supported")
	}

	// Validate return types
	numOut := fnType.NumOut()
	if numOut == 0 {
		return fmt.Errorf("functions with no return values cannot be memoized")
	}

	// If there are multiple returns, the last one should be error
	if numOut > 1 {
		if fnType.Out(numOut-1) != errorType {
			return fmt.Errorf("multi-return functions must have error as the last return value")
		}
	}

	return nil
}
