package ml

import "fmt"

// ClassReport holds per-class precision, recall and F1 for a binary problem.
type ClassReport struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// ClassificationReport summarizes hold-out performance of the final model.
type ClassificationReport struct {
	Accuracy float64     `json:"accuracy"`
	Hold     ClassReport `json:"hold"`
	Buy      ClassReport `json:"buy"`
}

// Evaluate computes accuracy plus per-class metrics from hard predictions.
// Classes absent from both prediction and truth report zeros rather than NaN.
func Evaluate(pred, truth []float64) (ClassificationReport, error) {
	if len(pred) == 0 || len(pred) != len(truth) {
		return ClassificationReport{}, fmt.Errorf("mismatched evaluation sets: %d predictions, %d labels", len(pred), len(truth))
	}
	var tp, fp, tn, fn int
	for i := range pred {
		p := pred[i] >= 0.5
		q := truth[i] >= 0.5
		switch {
		case p && q:
			tp++
		case p && !q:
			fp++
		case !p && q:
			fn++
		default:
			tn++
		}
	}
	rep := ClassificationReport{
		Accuracy: float64(tp+tn) / float64(len(pred)),
		Buy:      classStats(tp, fp, fn),
		Hold:     classStats(tn, fn, fp),
	}
	rep.Buy.Support = tp + fn
	rep.Hold.Support = tn + fp
	return rep, nil
}

func classStats(tp, fp, fn int) ClassReport {
	var r ClassReport
	if tp+fp > 0 {
		r.Precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		r.Recall = float64(tp) / float64(tp+fn)
	}
	if r.Precision+r.Recall > 0 {
		r.F1 = 2 * r.Precision * r.Recall / (r.Precision + r.Recall)
	}
	return r
}
