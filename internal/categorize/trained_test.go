package categorize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fennwick/ledgermail/internal/common"
	"github.com/fennwick/ledgermail/internal/model"
)

func labeledExpenses(n int, merchant, description, category string) []model.Expense {
	expenses := make([]model.Expense, n)
	for i := range expenses {
		expenses[i] = model.Expense{
			Merchant:     merchant,
			Description:  description,
			CategoryName: category,
		}
	}
	return expenses
}

func TestTrainRequiresMinimumSamples(t *testing.T) {
	classifier := NewTrainedClassifier(t.TempDir())

	err := classifier.Train(1, labeledExpenses(5, "bookshop", "novel", "Books"))
	assert.ErrorIs(t, err, common.ErrModelUnavailable)
}

func TestTrainIgnoresUnlabeledExpenses(t *testing.T) {
	classifier := NewTrainedClassifier(t.TempDir())

	expenses := labeledExpenses(8, "bookshop", "novel", "Books")
	expenses = append(expenses, labeledExpenses(8, "cafe", "espresso", "")...)

	err := classifier.Train(1, expenses)
	assert.ErrorIs(t, err, common.ErrModelUnavailable)
}

func TestTrainAndPredict(t *testing.T) {
	classifier := NewTrainedClassifier(t.TempDir())

	expenses := labeledExpenses(6, "bookshop", "paperback novel", "Books")
	expenses = append(expenses, labeledExpenses(6, "corner cafe", "espresso latte", "Coffee")...)

	require.NoError(t, classifier.Train(1, expenses))

	predicted, err := classifier.Predict(1, "corner cafe", "oat latte")
	require.NoError(t, err)
	assert.Equal(t, "Coffee", predicted)

	predicted, err = classifier.Predict(1, "bookshop", "novel")
	require.NoError(t, err)
	assert.Equal(t, "Books", predicted)
}

func TestPredictReloadsArtifactFromDisk(t *testing.T) {
	dir := t.TempDir()

	trainer := NewTrainedClassifier(dir)
	expenses := labeledExpenses(6, "bookshop", "paperback novel", "Books")
	expenses = append(expenses, labeledExpenses(6, "corner cafe", "espresso latte", "Coffee")...)
	require.NoError(t, trainer.Train(1, expenses))

	// Fresh instance must load the persisted artifact
	reader := NewTrainedClassifier(dir)
	predicted, err := reader.Predict(1, "corner cafe", "espresso")
	require.NoError(t, err)
	assert.Equal(t, "Coffee", predicted)
}

func TestPredictWithoutModel(t *testing.T) {
	classifier := NewTrainedClassifier(t.TempDir())

	_, err := classifier.Predict(42, "bookshop", "novel")
	assert.ErrorIs(t, err, common.ErrModelUnavailable)
}

func TestModelsAreScopedPerUser(t *testing.T) {
	classifier := NewTrainedClassifier(t.TempDir())

	expenses := labeledExpenses(6, "bookshop", "novel", "Books")
	expenses = append(expenses, labeledExpenses(6, "cafe", "latte", "Coffee")...)
	require.NoError(t, classifier.Train(1, expenses))

	_, err := classifier.Predict(2, "bookshop", "novel")
	assert.ErrorIs(t, err, common.ErrModelUnavailable)
}
