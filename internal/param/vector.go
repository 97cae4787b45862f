package param

import "fmt"

// Array is a row-major numeric array with a fixed shape.
// Only element values mutate after creation.
type Array struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// NewArray creates a zero-filled array with the given shape.
// A shape with no dimensions is treated as an empty array.
func NewArray(shape ...int) *Array {
	return &Array{
		Shape: append([]int{}, shape...),
		Data:  make([]float64, shapeSize(shape)),
	}
}

// FromData wraps data in an array of the given shape.
func FromData(shape []int, data []float64) (*Array, error) {
	a := &Array{Shape: append([]int{}, shape...), Data: data}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

func shapeSize(shape []int) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Validate checks that the shape is non-negative and matches the data length.
func (a *Array) Validate() error {
	for i, d := range a.Shape {
		if d < 0 {
			return fmt.Errorf("dimension %d is negative: %d", i, d)
		}
	}
	if want := shapeSize(a.Shape); want != len(a.Data) {
		return fmt.Errorf("shape %v needs %d values, got %d", a.Shape, want, len(a.Data))
	}
	return nil
}

// Len returns the number of elements.
func (a *Array) Len() int {
	if a == nil {
		return 0
	}
	return len(a.Data)
}

// Clone returns a deep copy.
func (a *Array) Clone() *Array {
	if a == nil {
		return nil
	}
	return &Array{
		Shape: append([]int{}, a.Shape...),
		Data:  append([]float64{}, a.Data...),
	}
}

// Offset converts a multi-dimensional index to a flat row-major offset.
func (a *Array) Offset(index ...int) (int, error) {
	if len(index) != len(a.Shape) {
		return 0, fmt.Errorf("index %v has %d dimensions, array has %d", index, len(index), len(a.Shape))
	}
	offset := 0
	for i, idx := range index {
		if idx < 0 || idx >= a.Shape[i] {
			return 0, fmt.Errorf("index %v out of range for shape %v", index, a.Shape)
		}
		offset = offset*a.Shape[i] + idx
	}
	return offset, nil
}

// MultiIndex converts a flat row-major offset to a multi-dimensional index.
func (a *Array) MultiIndex(offset int) []int {
	index := make([]int, len(a.Shape))
	for i := len(a.Shape) - 1; i >= 0; i-- {
		if a.Shape[i] == 0 {
			return index
		}
		index[i] = offset % a.Shape[i]
		offset /= a.Shape[i]
	}
	return index
}

// At returns the value at a multi-dimensional index.
func (a *Array) At(index ...int) (float64, error) {
	offset, err := a.Offset(index...)
	if err != nil {
		return 0, err
	}
	return a.Data[offset], nil
}

// Set writes the value at a multi-dimensional index.
func (a *Array) Set(value float64, index ...int) error {
	offset, err := a.Offset(index...)
	if err != nil {
		return err
	}
	a.Data[offset] = value
	return nil
}

// SameShape reports whether b has exactly the shape of a.
func (a *Array) SameShape(b *Array) bool {
	if len(a.Shape) != len(b.Shape) {
		return false
	}
	for i := range a.Shape {
		if a.Shape[i] != b.Shape[i] {
			return false
		}
	}
	return true
}

// Index addresses one parameter slot of a Vector.
type Index struct {
	Family Family
	Flat   int
}

func (i Index) String() string {
	return fmt.Sprintf("%s[%d]", i.Family, i.Flat)
}

// Vector is the pair of parameter arrays driven by the cost function:
// Single holds SingleFrequency parameters, Two holds TwoFrequency parameters.
type Vector struct {
	Single *Array `json:"single"`
	Two    *Array `json:"two"`
}

// NewVector creates a zero vector with the given shapes.
func NewVector(singleShape, twoShape []int) *Vector {
	return &Vector{
		Single: NewArray(singleShape...),
		Two:    NewArray(twoShape...),
	}
}

// Clone returns a deep copy so callers can mutate it freely.
func (v *Vector) Clone() *Vector {
	return &Vector{Single: v.Single.Clone(), Two: v.Two.Clone()}
}

// Validate checks both arrays.
func (v *Vector) Validate() error {
	if v == nil || v.Single == nil || v.Two == nil {
		return fmt.Errorf("parameter vector needs both arrays")
	}
	if err := v.Single.Validate(); err != nil {
		return fmt.Errorf("single-frequency params: %w", err)
	}
	if err := v.Two.Validate(); err != nil {
		return fmt.Errorf("two-frequency params: %w", err)
	}
	return nil
}

// SameShape reports whether w has the same shapes as v.
func (v *Vector) SameShape(w *Vector) bool {
	return v.Single.SameShape(w.Single) && v.Two.SameShape(w.Two)
}

// Array returns the array holding parameters of the given family.
func (v *Vector) Array(f Family) (*Array, error) {
	switch f {
	case SingleFrequency:
		return v.Single, nil
	case TwoFrequency:
		return v.Two, nil
	default:
		return nil, &InvalidFamilyError{Value: int(f)}
	}
}

// Count returns the number of parameters per family.
func (v *Vector) Count() (n1, n2 int) {
	return v.Single.Len(), v.Two.Len()
}

// Get returns the value at idx.
func (v *Vector) Get(idx Index) (float64, error) {
	a, err := v.Array(idx.Family)
	if err != nil {
		return 0, err
	}
	if idx.Flat < 0 || idx.Flat >= a.Len() {
		return 0, fmt.Errorf("index %s out of range", idx)
	}
	return a.Data[idx.Flat], nil
}

// Put writes value at idx.
func (v *Vector) Put(idx Index, value float64) error {
	a, err := v.Array(idx.Family)
	if err != nil {
		return err
	}
	if idx.Flat < 0 || idx.Flat >= a.Len() {
		return fmt.Errorf("index %s out of range", idx)
	}
	a.Data[idx.Flat] = value
	return nil
}

// Indices lists every slot in sweep order: all SingleFrequency slots in
// row-major order, then all TwoFrequency slots in row-major order.
func (v *Vector) Indices() []Index {
	n1, n2 := v.Count()
	out := make([]Index, 0, n1+n2)
	for i := 0; i < n1; i++ {
		out = append(out, Index{Family: SingleFrequency, Flat: i})
	}
	for i := 0; i < n2; i++ {
		out = append(out, Index{Family: TwoFrequency, Flat: i})
	}
	return out
}

// Flatten concatenates both arrays.
func (v *Vector) Flatten() []float64 {
	out := make([]float64, 0, v.Single.Len()+v.Two.Len())
	out = append(out, v.Single.Data...)
	return append(out, v.Two.Data...)
}

// Unflatten overwrites the vector from a slice produced by Flatten.
func (v *Vector) Unflatten(flat []float64) error {
	n1, n2 := v.Count()
	if len(flat) != n1+n2 {
		return fmt.Errorf("flat vector has %d values, want %d", len(flat), n1+n2)
	}
	copy(v.Single.Data, flat[:n1])
	copy(v.Two.Data, flat[n1:])
	return nil
}

func (v *Vector) String() string {
	return fmt.Sprintf("single%v=%v two%v=%v", v.Single.Shape, v.Single.Data, v.Two.Shape, v.Two.Data)
}
