package storagegroup

// Selector picks the bounded candidate set a merge task should work on
// next: which unsequential files to fold in, and which sequential files
// they may target, within a memory budget (§4.4: "ask the configured
// selector for candidate sets within a memory budget"). The two
// selectors named in the configuration surface (§6) trade off
// differently between merge frequency and per-merge cost.
type Selector interface {
	Select(unsequential, sequential []*FileResource, memoryBudget int64) (selectedUnsequential, selectedSequential []*FileResource)
}

// maxFileNumSelector greedily takes as many unsequential files as fit
// under the memory budget, oldest first, and bounds the sequential
// target set to the same count, favoring fewer, larger merges.
type maxFileNumSelector struct{}

func (maxFileNumSelector) Select(unsequential, sequential []*FileResource, memoryBudget int64) ([]*FileResource, []*FileResource) {
	const assumedBytesPerFile = 4 * 1024 * 1024
	maxFiles := int(memoryBudget / assumedBytesPerFile)
	if maxFiles <= 0 {
		maxFiles = 1
	}

	unseqCount := maxFiles
	if unseqCount > len(unsequential) {
		unseqCount = len(unsequential)
	}
	seqCount := maxFiles
	if seqCount > len(sequential) {
		seqCount = len(sequential)
	}

	return append([]*FileResource(nil), unsequential[:unseqCount]...),
		append([]*FileResource(nil), sequential[:seqCount]...)
}

// maxSeriesNumSelector bounds each side of the candidate set by total
// distinct device count rather than file count, favoring more frequent,
// smaller merges when files are series-dense.
type maxSeriesNumSelector struct {
	maxSeries int
}

func (s maxSeriesNumSelector) Select(unsequential, sequential []*FileResource, memoryBudget int64) ([]*FileResource, []*FileResource) {
	limit := s.maxSeries
	if limit <= 0 {
		limit = 1000
	}

	return boundBySeriesCount(unsequential, limit), boundBySeriesCount(sequential, limit)
}

func boundBySeriesCount(files []*FileResource, limit int) []*FileResource {
	seen := map[string]struct{}{}
	var out []*FileResource
	for _, f := range files {
		for _, d := range f.Devices() {
			seen[d] = struct{}{}
		}
		out = append(out, f)
		if len(seen) >= limit {
			break
		}
	}
	return out
}

func selectorFor(strategy MergeFileStrategy) Selector {
	switch strategy {
	case MaxSeriesNum:
		return maxSeriesNumSelector{maxSeries: 1000}
	default:
		return maxFileNumSelector{}
	}
}
