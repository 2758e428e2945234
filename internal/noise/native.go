package noise

import (
	"context"
	"math"
	"sort"

	"github.com/rs/zerolog/log"
)

// thresholdSlack lets probabilities equal to a class threshold count as
// confident despite float rounding.
const thresholdSlack = 1e-6

// Native computes noise indices in process.
type Native struct{}

func NewNative() *Native { return &Native{} }

// FindNoiseIndices returns the rows suspected of label errors ordered by the
// request's sorted index method.
func (n *Native) FindNoiseIndices(ctx context.Context, req Request) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req, err := req.normalize()
	if err != nil {
		return nil, err
	}
	if len(req.Extra) > 0 {
		keys := make([]string, 0, len(req.Extra))
		for k := range req.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		log.Debug().Strs("keys", keys).Msg("native detector ignores extra options")
	}

	thresholds := classThresholds(req)
	confident := confidentLabels(req, thresholds)

	var mask []bool
	if req.MultiLabel {
		mask = multiLabelMask(req, confident)
	} else {
		cj := calibrate(req, confidentJoint(req, confident))
		switch req.PruneMethod {
		case PruneByClass:
			mask = pruneByClass(req, cj)
		case PruneBoth:
			byRate := pruneByNoiseRate(req, cj)
			byClass := pruneByClass(req, cj)
			mask = make([]bool, len(byRate))
			for i := range mask {
				mask[i] = byRate[i] && byClass[i]
			}
		default:
			mask = pruneByNoiseRate(req, cj)
		}
	}

	var indices []int
	for i, noisy := range mask {
		if noisy {
			indices = append(indices, i)
		}
	}

	orderIndices(req, indices)
	return indices, nil
}

// classThresholds returns, per class, the mean predicted probability of the
// class over the rows given that class. Classes never given get +Inf so they
// are never confident.
func classThresholds(req Request) []float64 {
	k := len(req.Probabilities[0])
	sums := make([]float64, k)
	counts := make([]int, k)

	for i, row := range req.Probabilities {
		for _, l := range req.givenSet(i) {
			sums[l] += row[l]
			counts[l]++
		}
	}

	thresholds := make([]float64, k)
	for j := range thresholds {
		if counts[j] == 0 {
			thresholds[j] = math.Inf(1)
			continue
		}
		thresholds[j] = sums[j] / float64(counts[j])
	}
	return thresholds
}

// confidentLabels picks for each row the most probable class among those at
// or above their threshold, or -1 when there is none.
func confidentLabels(req Request, thresholds []float64) []int {
	out := make([]int, len(req.Probabilities))
	for i, row := range req.Probabilities {
		best := -1
		for j, p := range row {
			if p < thresholds[j]-thresholdSlack {
				continue
			}
			if best < 0 || p > row[best] {
				best = j
			}
		}
		out[i] = best
	}
	return out
}

// confidentJoint counts rows by (given label, confident label).
func confidentJoint(req Request, confident []int) [][]float64 {
	k := len(req.Probabilities[0])
	cj := make([][]float64, k)
	for j := range cj {
		cj[j] = make([]float64, k)
	}
	for i, c := range confident {
		if c < 0 {
			continue
		}
		cj[req.Labels[i]][c]++
	}
	return cj
}

// calibrate scales each row of the confident joint so it sums to the number
// of rows given that label.
func calibrate(req Request, cj [][]float64) [][]float64 {
	counts := make([]float64, len(cj))
	for _, l := range req.Labels {
		counts[l]++
	}

	for k, row := range cj {
		var total float64
		for _, v := range row {
			total += v
		}
		if total == 0 {
			continue
		}
		scale := counts[k] / total
		for j := range row {
			row[j] *= scale
		}
	}
	return cj
}

// pruneByNoiseRate removes, for every off-diagonal cell (k, j), the rows given
// k with the largest margin of class j over class k.
func pruneByNoiseRate(req Request, cj [][]float64) []bool {
	mask := make([]bool, len(req.Probabilities))
	rowsByLabel := groupByLabel(req)

	for k, rows := range rowsByLabel {
		for j := range cj[k] {
			if j == k {
				continue
			}
			num := int(math.Round(cj[k][j] * req.FracNoise))
			if num <= 0 {
				continue
			}

			candidates := append([]int(nil), rows...)
			sort.SliceStable(candidates, func(a, b int) bool {
				pa := req.Probabilities[candidates[a]]
				pb := req.Probabilities[candidates[b]]
				return pa[j]-pa[k] > pb[j]-pb[k]
			})
			for _, i := range candidates[:min(num, len(candidates))] {
				mask[i] = true
			}
		}
	}
	return mask
}

// pruneByClass removes, per given class, the rows least confident in that
// class.
func pruneByClass(req Request, cj [][]float64) []bool {
	mask := make([]bool, len(req.Probabilities))
	rowsByLabel := groupByLabel(req)

	for k, rows := range rowsByLabel {
		var num int
		if req.NumToRemovePerClass != nil {
			num = req.NumToRemovePerClass[k]
		} else {
			var offDiagonal float64
			for j, v := range cj[k] {
				if j != k {
					offDiagonal += v
				}
			}
			num = int(math.Round(offDiagonal * req.FracNoise))
		}
		if num <= 0 {
			continue
		}

		candidates := append([]int(nil), rows...)
		sort.SliceStable(candidates, func(a, b int) bool {
			return req.Probabilities[candidates[a]][k] < req.Probabilities[candidates[b]][k]
		})
		for _, i := range candidates[:min(num, len(candidates))] {
			mask[i] = true
		}
	}
	return mask
}

// multiLabelMask flags rows whose confident class is not among the given
// ones.
func multiLabelMask(req Request, confident []int) []bool {
	mask := make([]bool, len(req.Probabilities))
	for i, c := range confident {
		if c < 0 {
			continue
		}
		mask[i] = !contains(req.MultiLabels[i], c)
	}
	return mask
}

func groupByLabel(req Request) [][]int {
	groups := make([][]int, len(req.Probabilities[0]))
	for i, l := range req.Labels {
		groups[l] = append(groups[l], i)
	}
	return groups
}

// orderIndices sorts in place, lowest score first.
func orderIndices(req Request, indices []int) {
	score := selfConfidence
	if req.SortedIndexMethod == MethodNormalizedMargin {
		score = normalizedMargin
	}

	scores := make(map[int]float64, len(indices))
	for _, i := range indices {
		scores[i] = score(req.Probabilities[i], req.givenSet(i))
	}
	sort.SliceStable(indices, func(a, b int) bool {
		sa, sb := scores[indices[a]], scores[indices[b]]
		if sa != sb {
			return sa < sb
		}
		return indices[a] < indices[b]
	})
}

// selfConfidence is the mean probability of the given labels.
func selfConfidence(row []float64, given []int) float64 {
	var sum float64
	for _, l := range given {
		sum += row[l]
	}
	return sum / float64(len(given))
}

// normalizedMargin is the lowest given-label probability minus the highest
// probability of any other class.
func normalizedMargin(row []float64, given []int) float64 {
	lowest := math.Inf(1)
	for _, l := range given {
		lowest = math.Min(lowest, row[l])
	}
	var other float64
	for j, p := range row {
		if !contains(given, j) && p > other {
			other = p
		}
	}
	return lowest - other
}

func contains(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
