package stats

import (
	"sort"

	"github.com/nvr-ai/go-detbench/images"
	"github.com/nvr-ai/go-detbench/models/model"
	"github.com/nvr-ai/go-detbench/pipeline"
)

// MatchIoU is the overlap at which two same-class boxes from different
// backends count as the same object.
const MatchIoU float32 = 0.5

// Agreement counts how many backends found a given class.
type Agreement struct {
	Class string       `json:"class"`
	Found []model.Name `json:"found"`
	// Missed is empty when every backend found the class.
	Missed []model.Name `json:"missed,omitempty"`
}

// PairAgreement is the box-level agreement between two backends.
type PairAgreement struct {
	A model.Name `json:"a"`
	B model.Name `json:"b"`
	// Matched counts one-to-one same-class matches with IoU ≥ MatchIoU.
	Matched int `json:"matched"`
	// Rate is Matched over the larger detection count, 1 when both are empty.
	Rate float64 `json:"rate"`
}

// Comparison ranks backends of one run.
type Comparison struct {
	Summaries []Summary  `json:"summaries"`
	Fastest   model.Name `json:"fastest"`
	Slowest   model.Name `json:"slowest"`

	// SpeedupPercent is how much faster Fastest was than Slowest.
	SpeedupPercent float64 `json:"speedup_percent"`

	MostDetections    model.Name `json:"most_detections"`
	LeastDetections   model.Name `json:"least_detections"`
	HighestConfidence model.Name `json:"highest_confidence"`

	// AllFound lists classes every backend found; Partial the rest.
	AllFound []Agreement `json:"all_found"`
	Partial  []Agreement `json:"partial"`

	// AgreementRate is len(AllFound) over the number of distinct classes.
	AgreementRate float64         `json:"agreement_rate"`
	Pairs         []PairAgreement `json:"pairs"`
}

// Compare summarizes and ranks results. order fixes the backend order; names
// absent from results are skipped. Ties go to the earlier backend.
func Compare(results map[model.Name]*pipeline.DetectionResult, order []model.Name, width, height int) Comparison {
	var names []model.Name
	for _, name := range order {
		if results[name] != nil {
			names = append(names, name)
		}
	}

	var c Comparison
	if len(names) == 0 {
		return c
	}

	for _, name := range names {
		c.Summaries = append(c.Summaries, Summarize(results[name], width, height, DefaultGridSize))
	}

	fastest, slowest, most, least, conf := 0, 0, 0, 0, 0
	for i, s := range c.Summaries {
		if s.ProcessingTime < c.Summaries[fastest].ProcessingTime {
			fastest = i
		}
		if s.ProcessingTime > c.Summaries[slowest].ProcessingTime {
			slowest = i
		}
		if s.Count > c.Summaries[most].Count {
			most = i
		}
		if s.Count < c.Summaries[least].Count {
			least = i
		}
		if s.Confidence.Mean > c.Summaries[conf].Confidence.Mean {
			conf = i
		}
	}
	c.Fastest, c.Slowest = names[fastest], names[slowest]
	c.MostDetections, c.LeastDetections = names[most], names[least]
	c.HighestConfidence = names[conf]
	if ft := c.Summaries[fastest].ProcessingTime; ft > 0 {
		c.SpeedupPercent = float64(c.Summaries[slowest].ProcessingTime-ft) / float64(ft) * 100
	}

	c.AllFound, c.Partial = classAgreement(results, names)
	if total := len(c.AllFound) + len(c.Partial); total > 0 {
		c.AgreementRate = float64(len(c.AllFound)) / float64(total)
	}

	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			c.Pairs = append(c.Pairs, matchPair(results[names[i]], results[names[j]]))
		}
	}
	return c
}

func classAgreement(results map[model.Name]*pipeline.DetectionResult, names []model.Name) (all, partial []Agreement) {
	found := map[string][]model.Name{}
	for _, name := range names {
		for class := range classSet(results[name].Detections) {
			found[class] = append(found[class], name)
		}
	}

	classes := make([]string, 0, len(found))
	for class := range found {
		classes = append(classes, class)
	}
	sort.Strings(classes)

	for _, class := range classes {
		a := Agreement{Class: class}
		hit := map[model.Name]bool{}
		for _, n := range found[class] {
			hit[n] = true
		}
		for _, n := range names {
			if hit[n] {
				a.Found = append(a.Found, n)
			} else {
				a.Missed = append(a.Missed, n)
			}
		}
		if len(a.Missed) == 0 {
			all = append(all, a)
		} else {
			partial = append(partial, a)
		}
	}
	return all, partial
}

// matchPair greedily pairs same-class boxes by descending IoU.
func matchPair(a, b *pipeline.DetectionResult) PairAgreement {
	p := PairAgreement{A: a.Backend, B: b.Backend}

	type pair struct {
		i, j int
		iou  float32
	}
	var pairs []pair
	for i, da := range a.Detections {
		for j, db := range b.Detections {
			if da.Class != db.Class {
				continue
			}
			if iou := images.CalculateIoU(da.Bounds(), db.Bounds()); iou >= MatchIoU {
				pairs = append(pairs, pair{i, j, iou})
			}
		}
	}
	sort.SliceStable(pairs, func(x, y int) bool { return pairs[x].iou > pairs[y].iou })

	usedA := make(map[int]bool)
	usedB := make(map[int]bool)
	for _, pr := range pairs {
		if usedA[pr.i] || usedB[pr.j] {
			continue
		}
		usedA[pr.i], usedB[pr.j] = true, true
		p.Matched++
	}

	denom := len(a.Detections)
	if len(b.Detections) > denom {
		denom = len(b.Detections)
	}
	if denom == 0 {
		p.Rate = 1
	} else {
		p.Rate = float64(p.Matched) / float64(denom)
	}
	return p
}
