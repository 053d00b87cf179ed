package validation

import (
	"math"

	"gocv.io/x/gocv"
)

const (
	// MinStaffLines is the number of long horizontal lines that indicates a staff.
	MinStaffLines = 5

	horizontalTolerance = 5
)

// StaffDetector looks for the five-line staves of printed music.
type StaffDetector interface {
	HasStaffLines(path string) bool
	CountHorizontalLines(path string) (int, bool)
}

// HoughStaffDetector finds long horizontal segments with a probabilistic
// Hough transform over Canny edges.
type HoughStaffDetector struct{}

// NewHoughStaffDetector returns the OpenCV-backed staff detector.
func NewHoughStaffDetector() HoughStaffDetector {
	return HoughStaffDetector{}
}

// HasStaffLines is true when at least MinStaffLines horizontal lines are found.
func (d HoughStaffDetector) HasStaffLines(path string) bool {
	n, ok := d.CountHorizontalLines(path)
	return ok && n >= MinStaffLines
}

// CountHorizontalLines returns the number of near-horizontal segments spanning
// at least half the image width. ok is false when the image cannot be read.
func (HoughStaffDetector) CountHorizontalLines(path string) (int, bool) {
	img := gocv.IMRead(path, gocv.IMReadGrayScale)
	defer img.Close()
	if img.Empty() {
		return 0, false
	}

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(img, &edges, 50, 150)

	lines := gocv.NewMat()
	defer lines.Close()
	gocv.HoughLinesPWithParams(edges, &lines, 1, math.Pi/180, 100, float32(img.Cols())/2, 10)

	count := 0
	for i := 0; i < lines.Rows(); i++ {
		v := lines.GetVeciAt(i, 0)
		if len(v) < 4 {
			continue
		}
		if abs32(v[1]-v[3]) < horizontalTolerance {
			count++
		}
	}
	return count, true
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
