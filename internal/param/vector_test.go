package param

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestArrayOffsetRoundTrip(t *testing.T) {
	a := NewArray(2, 3, 4)
	if a.Len() != 24 {
		t.Fatalf("Expected 24 elements, got %d", a.Len())
	}

	for flat := 0; flat < a.Len(); flat++ {
		idx := a.MultiIndex(flat)
		got, err := a.Offset(idx...)
		if err != nil {
			t.Fatalf("Offset(%v) failed: %v", idx, err)
		}
		if got != flat {
			t.Errorf("Offset(MultiIndex(%d)) = %d", flat, got)
		}
	}

	// Row-major: last dimension varies fastest
	off, _ := a.Offset(1, 0, 2)
	if off != 14 {
		t.Errorf("Expected offset 14 for [1 0 2], got %d", off)
	}
}

func TestArrayBounds(t *testing.T) {
	a := NewArray(2, 2)

	if _, err := a.Offset(2, 0); err == nil {
		t.Error("Expected error for out-of-range index")
	}
	if _, err := a.Offset(0); err == nil {
		t.Error("Expected error for wrong number of dimensions")
	}
	if err := a.Set(1.5, 1, 1); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	v, err := a.At(1, 1)
	if err != nil || v != 1.5 {
		t.Errorf("At(1,1) = %v, %v; want 1.5", v, err)
	}
}

func TestFromDataValidatesShape(t *testing.T) {
	if _, err := FromData([]int{2, 2}, []float64{1, 2, 3}); err == nil {
		t.Error("Expected shape mismatch error")
	}
	if _, err := FromData([]int{3}, []float64{1, 2, 3}); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestVectorCloneIsDeep(t *testing.T) {
	v := NewVector([]int{2}, []int{1})
	v.Single.Data[0] = 1

	c := v.Clone()
	c.Single.Data[0] = 99
	c.Two.Data[0] = 7

	if v.Single.Data[0] != 1 || v.Two.Data[0] != 0 {
		t.Error("Clone shares storage with original")
	}
	if !v.SameShape(c) {
		t.Error("Clone changed shape")
	}
}

func TestVectorIndicesOrder(t *testing.T) {
	v := NewVector([]int{2, 1}, []int{3})
	indices := v.Indices()

	if len(indices) != 5 {
		t.Fatalf("Expected 5 indices, got %d", len(indices))
	}
	for i := 0; i < 2; i++ {
		if indices[i] != (Index{Family: SingleFrequency, Flat: i}) {
			t.Errorf("indices[%d] = %v", i, indices[i])
		}
	}
	for i := 0; i < 3; i++ {
		if indices[2+i] != (Index{Family: TwoFrequency, Flat: i}) {
			t.Errorf("indices[%d] = %v", 2+i, indices[2+i])
		}
	}
}

func TestVectorFlattenUnflatten(t *testing.T) {
	v := NewVector([]int{2}, []int{2})
	if err := v.Unflatten([]float64{1, 2, 3, 4}); err != nil {
		t.Fatalf("Unflatten failed: %v", err)
	}
	if v.Single.Data[1] != 2 || v.Two.Data[0] != 3 {
		t.Errorf("Unexpected layout: %s", v)
	}
	flat := v.Flatten()
	if len(flat) != 4 || flat[3] != 4 {
		t.Errorf("Flatten = %v", flat)
	}
	if err := v.Unflatten([]float64{1}); err == nil {
		t.Error("Expected length error")
	}
}

func TestVectorRejectsInvalidFamily(t *testing.T) {
	v := NewVector([]int{1}, []int{1})
	_, err := v.Get(Index{Family: Family(5)})
	if !errors.Is(err, ErrInvalidFamily) {
		t.Errorf("Expected ErrInvalidFamily, got %v", err)
	}
}

func TestFamilyJSON(t *testing.T) {
	data, err := json.Marshal([]Family{SingleFrequency, TwoFrequency})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `["single","two"]` {
		t.Errorf("Unexpected JSON: %s", data)
	}

	var back []Family
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if back[1] != TwoFrequency {
		t.Errorf("Expected TwoFrequency, got %v", back[1])
	}

	var bad Family
	if err := json.Unmarshal([]byte(`"triple"`), &bad); !errors.Is(err, ErrInvalidFamily) {
		t.Errorf("Expected ErrInvalidFamily, got %v", err)
	}
	if _, err := json.Marshal(Family(9)); err == nil {
		t.Error("Expected marshal error for invalid family")
	}
}

func TestFamilyPeriod(t *testing.T) {
	p1, _ := SingleFrequency.Period()
	p2, _ := TwoFrequency.Period()
	if p2 != 2*p1 {
		t.Errorf("TwoFrequency period should be twice SingleFrequency: %v vs %v", p2, p1)
	}
	if _, err := Family(-1).Period(); err == nil {
		t.Error("Expected error for invalid family")
	}
}
