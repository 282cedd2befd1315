package facts

// Window is a contiguous circular window over hourly buckets. End is
// inclusive: a width-1 window starting at hour 5 has Start=5, End=5.
type Window struct {
	Start int `json:"start"`
	End   int `json:"end"`
	Sum   int `json:"sum"`
}

// BestRollingWindow finds the contiguous window of exactly width buckets with
// the maximum sum, treating the bucket array as circular. Single left-to-right
// scan with an incrementally maintained running sum, O(n) regardless of
// width. Ties go to the lowest start index. Width is clamped to [1, len];
// an empty bucket slice yields the zero Window.
func BestRollingWindow(buckets []int, width int) Window {
	n := len(buckets)
	if n == 0 {
		return Window{}
	}
	if width < 1 {
		width = 1
	}
	if width > n {
		width = n
	}

	sum := 0
	for i := 0; i < width; i++ {
		sum += buckets[i%n]
	}

	bestStart, bestSum := 0, sum
	for start := 1; start < n; start++ {
		sum += buckets[(start+width-1)%n] - buckets[start-1]
		if sum > bestSum {
			bestSum = sum
			bestStart = start
		}
	}
	return Window{
		Start: bestStart,
		End:   (bestStart + width - 1) % n,
		Sum:   bestSum,
	}
}
