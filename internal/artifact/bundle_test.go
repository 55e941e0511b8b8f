package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omerbh/tradelab-go/internal/dataset"
	"github.com/omerbh/tradelab-go/internal/ml"
	"github.com/omerbh/tradelab-go/internal/models"
)

func trainedBundle(t *testing.T, stamp string) *Bundle {
	t.Helper()
	n := 60
	x := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		v := float64(i%10) - 4.5
		x[i] = []float64{v, float64(i % 3)}
		if v > 0 {
			y[i] = 1
		}
	}
	names := []string{"rsi_14", "macd"}

	var scaler dataset.StandardScaler
	scaled, err := scaler.FitTransform(x)
	require.NoError(t, err)

	model, err := ml.TrainClassifier(scaled, y, names, ml.DefaultHyperParams())
	require.NoError(t, err)

	return &Bundle{
		Model:  model,
		Scaler: scaler,
		Config: models.BundleConfig{
			TrainingRunTimestamp: stamp,
			StudyName:            "unit_study",
			SelectedFeatures:     names,
			Params: map[string]models.ParamValue{
				"horizon": {Value: 5, Optimized: false},
			},
			RiskParams: models.RiskParams{StopLossPct: 2, TakeProfitPct: 4, RiskPerTrade: 0.02},
		},
	}
}

func TestSaveAndLoadCandidate(t *testing.T) {
	store := NewStore(t.TempDir())
	bundle := trainedBundle(t, "20240101_090000")

	require.NoError(t, store.SaveCandidate(bundle))

	loaded, err := store.LoadCandidate()
	require.NoError(t, err)
	assert.Equal(t, bundle.Config, loaded.Config)
	assert.Equal(t, bundle.Scaler.Mean, loaded.Scaler.Mean)
	assert.Equal(t, bundle.Model.FeatureNames(), loaded.Model.FeatureNames())

	// The reloaded model must score identically.
	probe := [][]float64{{1.2, -0.5}, {-2.0, 0.3}}
	assert.Equal(t, bundle.Model.PredictProba(probe), loaded.Model.PredictProba(probe))
}

func TestLoadChampionMissing(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.LoadChampion()
	assert.Error(t, err)
}

func TestPromoteWithoutCandidate(t *testing.T) {
	store := NewStore(t.TempDir())
	assert.ErrorContains(t, store.Promote(), "no promotable candidate")
}

func TestPromoteAndArchive(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	// First generation becomes champion without anything to archive.
	require.NoError(t, store.SaveCandidate(trainedBundle(t, "20240101_090000")))
	require.NoError(t, store.Promote())

	champion, err := store.LoadChampion()
	require.NoError(t, err)
	assert.Equal(t, "20240101_090000", champion.Config.TrainingRunTimestamp)

	// Second generation archives the first.
	require.NoError(t, store.SaveCandidate(trainedBundle(t, "20240301_090000")))
	require.NoError(t, store.Promote())

	champion, err = store.LoadChampion()
	require.NoError(t, err)
	assert.Equal(t, "20240301_090000", champion.Config.TrainingRunTimestamp)

	archived := filepath.Join(dir, "archive", "20240101_090000", "champion_config.json")
	_, err = os.Stat(archived)
	assert.NoError(t, err)
}

func TestLoadRejectsTamperedArtifacts(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	require.NoError(t, store.SaveCandidate(trainedBundle(t, "20240101_090000")))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "candidate_scaler.json"), []byte("{not json"), 0o644))
	_, err := store.LoadCandidate()
	assert.ErrorContains(t, err, "artifact invalid")
}

func TestSaveRejectsInconsistentBundle(t *testing.T) {
	store := NewStore(t.TempDir())
	bundle := trainedBundle(t, "20240101_090000")
	bundle.Config.SelectedFeatures = []string{"rsi_14"}

	assert.ErrorContains(t, store.SaveCandidate(bundle), "refusing to save")
}
