package draft

import "github.com/menta2k/wound-roi/pkg/types"

// SetFilter stores property for imageIndex, clamped to the property's range
func (d *Draft) SetFilter(imageIndex int, property types.FilterProperty, value int) error {
	return d.updateFilter(imageIndex, func(f types.FilterParams) (types.FilterParams, error) {
		return f.With(property, value)
	})
}

// ApplyPreset applies a quick filter to imageIndex
func (d *Draft) ApplyPreset(imageIndex int, preset types.FilterPreset) error {
	return d.updateFilter(imageIndex, preset.Apply)
}

// ResetFilters restores the default parameters of imageIndex
func (d *Draft) ResetFilters(imageIndex int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.validLocked(imageIndex) {
		return ErrIndexOutOfRange
	}
	delete(d.filters, imageIndex)
	return nil
}

// Effect returns the parameters the renderer applies to imageIndex
func (d *Draft) Effect(imageIndex int) types.FilterParams {
	d.mu.Lock()
	defer d.mu.Unlock()
	if f, ok := d.filters[imageIndex]; ok {
		return f
	}
	return types.DefaultFilterParams()
}

func (d *Draft) updateFilter(imageIndex int, fn func(types.FilterParams) (types.FilterParams, error)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.validLocked(imageIndex) {
		return ErrIndexOutOfRange
	}

	current, ok := d.filters[imageIndex]
	if !ok {
		current = types.DefaultFilterParams()
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	d.filters[imageIndex] = next
	return nil
}
