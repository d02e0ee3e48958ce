package cacheback

import (
	"errors"
	"reflect"
	"testing"
)

func TestRegisterDuplicate(t *testing.T) {
	h := newHarness(t, nil)
	err := Register[userRecord](h.registry, "UserLookup", func(Constructor) (Job[userRecord], error) {
		return userLookup{}, nil
	}, h.cache)
	if !errors.Is(err, ErrDuplicateJob) {
		t.Fatalf("err = %v, want ErrDuplicateJob", err)
	}
}

func TestMustRegisterPanicsOnDuplicate(t *testing.T) {
	h := newHarness(t, nil)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	MustRegister[userRecord](h.registry, "UserLookup", func(Constructor) (Job[userRecord], error) {
		return userLookup{}, nil
	}, h.cache)
}

func TestRegisterValidatesArguments(t *testing.T) {
	h := newHarness(t, nil)
	factory := func(Constructor) (Job[userRecord], error) { return userLookup{}, nil }

	if err := Register[userRecord](nil, "x", factory, h.cache); err == nil {
		t.Fatalf("nil registry accepted")
	}
	if err := Register[userRecord](h.registry, "x", nil, h.cache); err == nil {
		t.Fatalf("nil factory accepted")
	}
	if err := Register[userRecord](h.registry, "x", factory, nil); err == nil {
		t.Fatalf("nil cache accepted")
	}
	if err := Register[userRecord](h.registry, "", factory, h.cache); err == nil {
		t.Fatalf("empty name accepted")
	}
}

func TestRegistryNames(t *testing.T) {
	h := newHarness(t, nil)
	for _, name := range []string{"b", "a"} {
		MustRegister[userRecord](h.registry, name, func(Constructor) (Job[userRecord], error) {
			return userLookup{}, nil
		}, h.cache)
	}
	want := []string{"UserLookup", "a", "b"}
	if got := h.registry.Names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
}
