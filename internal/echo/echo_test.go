package echo

import (
	"errors"
	"reflect"
	"testing"
)

func TestTransformPoints(t *testing.T) {
	points := [][3]float64{{0, 0, 0}, {1, 0, 0}, {2, 0, 0}, {3, 0, 0}}
	// Translation by 1 along z
	matrix := [4][4]float64{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 1},
		{0, 0, 0, 1},
	}

	out, err := TransformPoints(nil, points, matrix)
	if err != nil {
		t.Fatal(err)
	}

	expected := [][3]float64{{0, 0, 1}, {1, 0, 1}, {2, 0, 1}, {3, 0, 1}}
	if !reflect.DeepEqual(out, expected) {
		t.Errorf("expected %v, got %v", expected, out)
	}

	_, err = TransformPoints(nil, points, [4][4]float64{})
	if !errors.Is(err, ErrDegenerate) {
		t.Errorf("expected ErrDegenerate, got %v", err)
	}
}

func TestEcho(t *testing.T) {
	e := Echo{}

	if got := e.Echo(nil); !reflect.DeepEqual(got, []any{}) {
		t.Errorf("expected empty slice, got %#v", got)
	}

	if got := e.Sum(nil, 1, 2, 3.5); got != 6.5 {
		t.Errorf("expected 6.5, got %v", got)
	}

	if err := e.Fail(nil, "nope"); err == nil || err.Error() != "nope" {
		t.Errorf("expected nope, got %v", err)
	}
}
