package images

import (
	"image"
	"runtime"
	"sync"
)

// Parallel fans a data range out across the available CPU cores and
// waits for every partition to finish. Ranges too small to amortize the
// goroutine overhead run serially.
//
// Example:
//
//	Parallel(height, func(start, end int) {
//	    for y := start; y < end; y++ {
//	        // process row y
//	    }
//	})
func Parallel(dataSize int, fn func(partStart, partEnd int)) {
	workers := runtime.NumCPU()
	if dataSize < workers*2 {
		fn(0, dataSize)
		return
	}

	partSize := dataSize / workers

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		partStart := i * partSize
		partEnd := partStart + partSize
		if i == workers-1 {
			partEnd = dataSize
		}
		go func(start, end int) {
			defer wg.Done()
			fn(start, end)
		}(partStart, partEnd)
	}
	wg.Wait()
}

// GrayPlane extracts the luminance of every pixel as a row-major float32
// plane in [0, 255], using ITU-R BT.709 luma coefficients. Gradient and
// threshold scans work on the plane directly instead of round-tripping
// through an image type.
func GrayPlane(img image.Image) []float32 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil
	}

	const (
		redWeight   = 0.2126
		greenWeight = 0.7152
		blueWeight  = 0.0722
	)

	plane := make([]float32, width*height)
	Parallel(height, func(partStart, partEnd int) {
		for y := partStart; y < partEnd; y++ {
			srcY := bounds.Min.Y + y
			row := plane[y*width : (y+1)*width]
			for x := 0; x < width; x++ {
				r, g, b, _ := img.At(bounds.Min.X+x, srcY).RGBA()
				// RGBA returns 16-bit channels; fold to 8-bit space.
				luma := float64(r>>8)*redWeight + float64(g>>8)*greenWeight + float64(b>>8)*blueWeight
				row[x] = float32(luma)
			}
		}
	})
	return plane
}
