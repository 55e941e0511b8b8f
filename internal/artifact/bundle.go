package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/omerbh/tradelab-go/internal/dataset"
	"github.com/omerbh/tradelab-go/internal/ml"
	"github.com/omerbh/tradelab-go/internal/models"
)

// Artifact file names inside the models directory. A training run always
// writes a candidate; promotion moves it into the champion slot that the
// backtester and any live consumer load.
const (
	candidateModelFile  = "candidate_model.json"
	candidateScalerFile = "candidate_scaler.json"
	candidateConfigFile = "candidate_config.json"
	championModelFile   = "champion_model.json"
	championScalerFile  = "champion_scaler.json"
	championConfigFile  = "champion_config.json"
	archiveDirName      = "archive"
)

// Bundle is the complete deployable output of one training run: the fitted
// classifier, the scaler frozen on its training rows, and the configuration
// needed to reproduce its inputs. The three parts are only meaningful
// together; loading enforces their consistency.
type Bundle struct {
	Model  *ml.Classifier
	Scaler dataset.StandardScaler
	Config models.BundleConfig
}

// Store reads and writes bundles under a single models directory.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// SaveCandidate persists the bundle into the candidate slot, overwriting any
// previous candidate. The champion slot is never touched here.
func (s *Store) SaveCandidate(b *Bundle) error {
	if err := validate(b); err != nil {
		return fmt.Errorf("refusing to save: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create models dir: %w", err)
	}

	modelBlob, err := b.Model.Encode()
	if err != nil {
		return err
	}
	scalerBlob, err := json.MarshalIndent(b.Scaler, "", "  ")
	if err != nil {
		return fmt.Errorf("encode scaler: %w", err)
	}
	configBlob, err := json.MarshalIndent(b.Config, "", "  ")
	if err != nil {
		return fmt.Errorf("encode bundle config: %w", err)
	}

	for _, f := range []struct {
		name string
		blob []byte
	}{
		{candidateModelFile, modelBlob},
		{candidateScalerFile, scalerBlob},
		{candidateConfigFile, configBlob},
	} {
		if err := os.WriteFile(filepath.Join(s.dir, f.name), f.blob, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", f.name, err)
		}
	}
	return nil
}

// LoadCandidate loads the most recently trained, not yet promoted bundle.
func (s *Store) LoadCandidate() (*Bundle, error) {
	return s.load(candidateModelFile, candidateScalerFile, candidateConfigFile)
}

// LoadChampion loads the promoted production bundle.
func (s *Store) LoadChampion() (*Bundle, error) {
	return s.load(championModelFile, championScalerFile, championConfigFile)
}

func (s *Store) load(modelFile, scalerFile, configFile string) (*Bundle, error) {
	modelBlob, err := os.ReadFile(filepath.Join(s.dir, modelFile))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", modelFile, err)
	}
	model, err := ml.DecodeClassifier(modelBlob)
	if err != nil {
		return nil, fmt.Errorf("artifact invalid: %w", err)
	}

	b := &Bundle{Model: model}
	if err := readJSON(filepath.Join(s.dir, scalerFile), &b.Scaler); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(s.dir, configFile), &b.Config); err != nil {
		return nil, err
	}
	if err := validate(b); err != nil {
		return nil, fmt.Errorf("artifact invalid: %w", err)
	}
	return b, nil
}

// Promote replaces the champion with the current candidate. An existing
// champion is archived first under archive/<its run timestamp>/ so a bad
// promotion can always be rolled back by hand.
func (s *Store) Promote() error {
	if _, err := s.LoadCandidate(); err != nil {
		return fmt.Errorf("no promotable candidate: %w", err)
	}

	if champion, err := s.LoadChampion(); err == nil {
		stamp := champion.Config.TrainingRunTimestamp
		if stamp == "" {
			stamp = time.Now().UTC().Format("20060102_150405")
		}
		archiveDir := filepath.Join(s.dir, archiveDirName, stamp)
		if err := os.MkdirAll(archiveDir, 0o755); err != nil {
			return fmt.Errorf("create archive dir: %w", err)
		}
		for _, name := range []string{championModelFile, championScalerFile, championConfigFile} {
			if err := copyFile(filepath.Join(s.dir, name), filepath.Join(archiveDir, name)); err != nil {
				return fmt.Errorf("archive champion: %w", err)
			}
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		// A corrupt champion blocks promotion; a missing one does not.
		return fmt.Errorf("existing champion unreadable: %w", err)
	}

	pairs := [][2]string{
		{candidateModelFile, championModelFile},
		{candidateScalerFile, championScalerFile},
		{candidateConfigFile, championConfigFile},
	}
	for _, p := range pairs {
		if err := copyFile(filepath.Join(s.dir, p[0]), filepath.Join(s.dir, p[1])); err != nil {
			return fmt.Errorf("promote candidate: %w", err)
		}
	}
	return nil
}

func validate(b *Bundle) error {
	if b == nil || b.Model == nil {
		return fmt.Errorf("bundle has no model")
	}
	if len(b.Scaler.Mean) == 0 || len(b.Scaler.Mean) != len(b.Scaler.Std) {
		return fmt.Errorf("bundle scaler is not fitted")
	}
	names := b.Model.FeatureNames()
	if len(names) != len(b.Scaler.Mean) {
		return fmt.Errorf("model expects %d features, scaler fitted on %d", len(names), len(b.Scaler.Mean))
	}
	if len(b.Config.SelectedFeatures) != len(names) {
		return fmt.Errorf("config lists %d features, model expects %d", len(b.Config.SelectedFeatures), len(names))
	}
	for i, name := range names {
		if b.Config.SelectedFeatures[i] != name {
			return fmt.Errorf("feature order mismatch at %d: config %q, model %q", i, b.Config.SelectedFeatures[i], name)
		}
	}
	return nil
}

func readJSON(path string, v any) error {
	blob, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(blob, v); err != nil {
		return fmt.Errorf("artifact invalid: decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

func copyFile(src, dst string) error {
	blob, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, blob, 0o644)
}
