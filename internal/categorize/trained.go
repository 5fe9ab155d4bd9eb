package categorize

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/sjwhitworth/golearn/base"
	"github.com/sjwhitworth/golearn/knn"

	"github.com/fennwick/ledgermail/internal/common"
	"github.com/fennwick/ledgermail/internal/model"
)

// minTrainingSamples is the smallest labeled-expense count worth fitting a
// per-user model on.
const minTrainingSamples = 10

const neighbors = 3

// modelArtifact is the on-disk form of a trained per-user classifier: the
// bag-of-words vocabulary plus the training matrix. The nearest-neighbor
// model is re-fit from the matrix on load, which keeps the artifact a stable
// JSON document instead of a library-internal serialization.
type modelArtifact struct {
	Vocab   []string    `json:"vocab"`
	Targets []string    `json:"targets"`
	Rows    [][]float64 `json:"rows"`
}

// userModel is a fitted classifier ready for prediction.
type userModel struct {
	classifier *knn.KNNClassifier
	vocab      map[string]int
	labels     []string
}

// TrainedClassifier manages per-user nearest-neighbor category models.
// Models load lazily and are cached; training replaces the cached model and
// its artifact under an exclusive lock.
type TrainedClassifier struct {
	models map[int64]*userModel
	dir    string
	mu     sync.RWMutex
}

// NewTrainedClassifier creates a classifier store rooted at dir.
func NewTrainedClassifier(dir string) *TrainedClassifier {
	return &TrainedClassifier{
		dir:    dir,
		models: make(map[int64]*userModel),
	}
}

func (t *TrainedClassifier) artifactPath(userID int64) string {
	return filepath.Join(t.dir, fmt.Sprintf("categories_user_%d.json", userID))
}

// Train fits a model from the user's labeled expenses and persists its
// artifact. Returns ErrModelUnavailable when there is too little data.
func (t *TrainedClassifier) Train(userID int64, expenses []model.Expense) error {
	var texts, targets []string
	for _, e := range expenses {
		if e.CategoryName == "" {
			continue
		}
		texts = append(texts, expenseText(e.Merchant, e.Description))
		targets = append(targets, e.CategoryName)
	}

	if len(texts) < minTrainingSamples {
		return fmt.Errorf("%w: %d labeled expenses, need %d",
			common.ErrModelUnavailable, len(texts), minTrainingSamples)
	}

	vocab := buildVocab(texts)
	artifact := modelArtifact{
		Vocab:   vocab,
		Targets: targets,
		Rows:    make([][]float64, len(texts)),
	}

	index := vocabIndex(vocab)
	for i, text := range texts {
		artifact.Rows[i] = vectorize(text, index)
	}

	fitted, err := fitModel(artifact)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.saveArtifact(userID, artifact); err != nil {
		return err
	}
	t.models[userID] = fitted

	return nil
}

// Predict returns the model's category for a merchant/description pair.
// Returns ErrModelUnavailable when no model has been trained for the user.
func (t *TrainedClassifier) Predict(userID int64, merchant, description string) (string, error) {
	m, err := t.userModelFor(userID)
	if err != nil {
		return "", err
	}

	row := vectorize(expenseText(merchant, description), m.vocab)

	grid, err := buildInstances(vocabFromIndex(m.vocab), [][]float64{row}, []string{m.labels[0]}, m.labels)
	if err != nil {
		return "", err
	}

	predicted, err := m.classifier.Predict(grid)
	if err != nil {
		return "", fmt.Errorf("prediction failed: %w", err)
	}

	return base.GetClass(predicted, 0), nil
}

// userModelFor returns the cached model, loading the artifact on first use.
func (t *TrainedClassifier) userModelFor(userID int64) (*userModel, error) {
	t.mu.RLock()
	m, ok := t.models[userID]
	t.mu.RUnlock()
	if ok {
		return m, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if m, ok := t.models[userID]; ok {
		return m, nil
	}

	data, err := os.ReadFile(t.artifactPath(userID))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: no model for user %d", common.ErrModelUnavailable, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrModelUnavailable, err)
	}

	var artifact modelArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("%w: corrupt artifact: %w", common.ErrModelUnavailable, err)
	}

	fitted, err := fitModel(artifact)
	if err != nil {
		return nil, err
	}
	t.models[userID] = fitted

	return fitted, nil
}

func (t *TrainedClassifier) saveArtifact(userID int64, artifact modelArtifact) error {
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}

	data, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("failed to encode model artifact: %w", err)
	}

	path := t.artifactPath(userID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write model artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace model artifact: %w", err)
	}

	return nil
}

// fitModel builds a nearest-neighbor classifier from an artifact.
func fitModel(artifact modelArtifact) (*userModel, error) {
	if len(artifact.Rows) == 0 || len(artifact.Vocab) == 0 {
		return nil, fmt.Errorf("%w: empty artifact", common.ErrModelUnavailable)
	}

	labels := distinct(artifact.Targets)

	grid, err := buildInstances(artifact.Vocab, artifact.Rows, artifact.Targets, labels)
	if err != nil {
		return nil, err
	}

	classifier := knn.NewKnnClassifier("euclidean", "linear", neighbors)
	if err := classifier.Fit(grid); err != nil {
		return nil, fmt.Errorf("failed to fit classifier: %w", err)
	}

	return &userModel{
		classifier: classifier,
		vocab:      vocabIndex(artifact.Vocab),
		labels:     labels,
	}, nil
}

// buildInstances assembles a dense data grid with one float attribute per
// vocabulary term and a categorical class attribute.
func buildInstances(vocab []string, rows [][]float64, targets, labels []string) (*base.DenseInstances, error) {
	inst := base.NewDenseInstances()

	specs := make([]base.AttributeSpec, 0, len(vocab))
	for _, term := range vocab {
		specs = append(specs, inst.AddAttribute(base.NewFloatAttribute(term)))
	}

	classAttr := new(base.CategoricalAttribute)
	classAttr.SetName("category")
	for _, label := range labels {
		classAttr.GetSysValFromString(label)
	}
	classSpec := inst.AddAttribute(classAttr)
	if err := inst.AddClassAttribute(classAttr); err != nil {
		return nil, fmt.Errorf("failed to set class attribute: %w", err)
	}

	if err := inst.Extend(len(rows)); err != nil {
		return nil, fmt.Errorf("failed to size data grid: %w", err)
	}

	for i, row := range rows {
		for j, v := range row {
			inst.Set(specs[j], i, base.PackFloatToBytes(v))
		}
		inst.Set(classSpec, i, classAttr.GetSysValFromString(targets[i]))
	}

	return inst, nil
}

var tokenPattern = regexp.MustCompile(`[a-z0-9&+]+`)

func expenseText(merchant, description string) string {
	return strings.TrimSpace(merchant + " " + description)
}

func tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// buildVocab collects every token seen in the corpus, in first-seen order.
func buildVocab(texts []string) []string {
	seen := make(map[string]struct{})
	var vocab []string
	for _, text := range texts {
		for _, token := range tokenize(text) {
			if _, ok := seen[token]; !ok {
				seen[token] = struct{}{}
				vocab = append(vocab, token)
			}
		}
	}
	return vocab
}

func vocabIndex(vocab []string) map[string]int {
	index := make(map[string]int, len(vocab))
	for i, term := range vocab {
		index[term] = i
	}
	return index
}

func vocabFromIndex(index map[string]int) []string {
	vocab := make([]string, len(index))
	for term, i := range index {
		vocab[i] = term
	}
	return vocab
}

// vectorize produces a bag-of-words count vector over the vocabulary.
func vectorize(text string, index map[string]int) []float64 {
	row := make([]float64, len(index))
	for _, token := range tokenize(text) {
		if i, ok := index[token]; ok {
			row[i]++
		}
	}
	return row
}

func distinct(values []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, v := range values {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
