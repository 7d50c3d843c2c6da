package huffarc

// Progress receives completion updates as source or archive bytes
// are consumed. Implementations must be cheap: Update is called once
// per block.
type Progress interface {
	// Reset announces the total byte count of the coming operation.
	Reset(total int64)
	// Update reports n more bytes processed.
	Update(n int)
}

// NopProgress discards all updates.
type NopProgress struct{}

func (NopProgress) Reset(int64) {}
func (NopProgress) Update(int)  {}
