package assert

import "fmt"

func NotNil(value any) {
	if value == nil {
		panic("expected value to be not nil")
	}
}

func NotEmptyStr(str string) {
	if str == "" {
		panic("expected string to be non-empty")
	}
}

// Positive panics if n is not greater than zero, `name` describes the value.
func Positive[T ~int | ~int64 | ~float64](name string, n T) {
	if n <= 0 {
		panic(fmt.Sprintf("expected %s to be positive, got %v", name, n))
	}
}
