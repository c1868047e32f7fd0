package csvimport

import (
	"math/rand"
	"strings"
	"testing"

	"sostrack/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const export = "\ufeffOrder ID,Product Name,Product Description,Product Quantity,SKU\n" +
	"1001,Blue Raz #1,4oz pouch,2,\n" +
	"1002,Blue Raz #2,4oz pouch,3,GUM-BR-4OZ\n" +
	"1003,Watermelon,8oz jar,abc,GUM-WM-8OZ\n" +
	",,,,\n" +
	"1004,Sour  Apple,4oz pouch,7\n"

func TestParse_HeaderAndRows(t *testing.T) {
	rows, err := Parse(strings.NewReader(export))
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, "Blue Raz", rows[0].Name)
	assert.Equal(t, "4oz pouch", rows[0].Description)
	assert.Equal(t, 2, rows[0].Quantity)
	assert.Equal(t, "1001", rows[0].Raw["Order ID"], "unrecognized columns are preserved")

	assert.Equal(t, 0, rows[2].Quantity, "non-numeric quantity counts as zero")
	assert.Equal(t, "abc", rows[2].Raw["Product Quantity"])

	assert.Equal(t, "Sour Apple", rows[3].Name)
	assert.Equal(t, "", rows[3].Raw["SKU"], "ragged row pads missing cells")
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = Parse(strings.NewReader("Name,Qty\nx,1\n"))
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestParse_DuplicateHeaderFirstMatchWins(t *testing.T) {
	const in = "SKU,Product Name,sku,Product Quantity,product quantity\n" +
		"GUM-BR-4OZ,Blue Raz,GUM-BR-8OZ,3,9\n" +
		",Blue Raz #2,GUM-BR-8OZ,2,9\n"

	for i := 0; i < 20; i++ {
		rows, err := Parse(strings.NewReader(in))
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "GUM-BR-4OZ", rows[0].SKU)
		assert.Equal(t, 3, rows[0].Quantity)
		assert.Equal(t, "", rows[1].SKU)

		grouped := Group(rows)
		require.Len(t, grouped, 1)
		assert.Equal(t, "5", grouped[0].Raw["Product Quantity"])
		assert.Equal(t, "9", grouped[0].Raw["product quantity"])
		assert.Equal(t, "GUM-BR-8OZ", grouped[0].Raw["sku"])
	}

	// a blank header cell is not mistaken for the missing description column
	rows, err := Parse(strings.NewReader("Product Name,,Product Quantity\nLime,note,1\n"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "", rows[0].Description)
	assert.Equal(t, "note", rows[0].Raw[""])
}

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"Blue Raz #1":      "Blue Raz",
		"  Blue   Raz #22 ": "Blue Raz",
		"Mix #1 Berry":     "Mix #1 Berry",
		"Lemon#3":          "Lemon",
		"":                 "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeName(in), in)
	}
}

func TestGroup_MergesOrdinalVariants(t *testing.T) {
	rows, err := Parse(strings.NewReader(export))
	require.NoError(t, err)

	grouped := Group(rows)
	require.Len(t, grouped, 3)

	blue := grouped[0]
	assert.Equal(t, "Blue Raz", blue.Name)
	assert.Equal(t, 5, blue.Quantity)
	assert.Equal(t, 2, blue.SourceRows)
	assert.Equal(t, "GUM-BR-4OZ", blue.SKU, "first non-empty SKU is kept")
	assert.Equal(t, "blue raz|4oz pouch", blue.GroupKey)
	assert.Equal(t, "5", blue.Raw["Product Quantity"])
	assert.Equal(t, "GUM-BR-4OZ", blue.Raw["SKU"])

	// source rows are not mutated
	assert.Equal(t, "2", rows[0].Raw["Product Quantity"])
}

func TestGroup_CaseInsensitiveKey(t *testing.T) {
	rows := []Row{
		rowOf(map[string]string{"Product Name": "BLUE RAZ", "Product Description": "Pouch", "Product Quantity": "1"}),
		rowOf(map[string]string{"Product Name": "blue raz #4", "Product Description": "pouch", "Product Quantity": "4"}),
		rowOf(map[string]string{"Product Name": "blue raz", "Product Description": "jar", "Product Quantity": "2"}),
	}
	grouped := Group(rows)
	require.Len(t, grouped, 2)
	assert.Equal(t, 5, grouped[0].Quantity)
	assert.Equal(t, 2, grouped[1].Quantity)
}

func totals(rows []Row) map[string]int {
	out := make(map[string]int)
	for _, r := range rows {
		out[r.GroupKey] = r.Quantity
	}
	return out
}

func TestGroup_OrderInvariant(t *testing.T) {
	var rows []Row
	names := []string{"Blue Raz #1", "Blue Raz #2", "Watermelon", "Peach #9", "peach", "Lime"}
	descs := []string{"4oz", "8oz"}
	for i := 0; i < 60; i++ {
		rows = append(rows, rowOf(map[string]string{
			"Product Name":        names[i%len(names)],
			"Product Description": descs[i%len(descs)],
			"Product Quantity":    []string{"1", "2", "x", "5"}[i%4],
		}))
	}
	want := totals(Group(rows))

	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 5; round++ {
		shuffled := append([]Row(nil), rows...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		assert.Equal(t, want, totals(Group(shuffled)))
	}
}

func TestSortForReview(t *testing.T) {
	rows := []Row{
		{Name: "Apple", SKU: "X-1", Quantity: 3},
		{Name: "Zest", Quantity: 1},
		{Name: "Berry", SKU: "X-2", Quantity: 9},
		{Name: "Apple", Quantity: 1},
		{Name: "Cherry", SKU: "X-3", Quantity: 3},
	}
	SortForReview(rows)

	got := make([]string, len(rows))
	for i, r := range rows {
		got[i] = r.Name
	}
	assert.Equal(t, []string{"Apple", "Zest", "Berry", "Apple", "Cherry"}, got)
	assert.Empty(t, rows[0].SKU)
	assert.Empty(t, rows[1].SKU)
}

func TestSKUSuffix(t *testing.T) {
	assert.Equal(t, "4OZ", SKUSuffix("GUM-BR-4OZ"))
	assert.Equal(t, "4OZ", SKUSuffix("4OZ"))
	assert.Equal(t, "", SKUSuffix("GUM-"))
}

func TestResolveContainer(t *testing.T) {
	small := model.ContainerTemplate{ID: uuid.New(), Name: "4oz pouch", SKU: "4oz"}
	large := model.ContainerTemplate{ID: uuid.New(), Name: "8oz jar", SKU: "8OZ"}
	cat := model.Category{ID: uuid.New(), Name: "Gummies", Containers: []model.ContainerTemplate{small, large}}

	id, ok := ResolveContainer(Row{SKU: "GUM-BR-4OZ"}, cat)
	require.True(t, ok)
	assert.Equal(t, small.ID, id)

	explicit := large.ID
	id, ok = ResolveContainer(Row{SKU: "GUM-BR-4OZ", AssignedContainerID: &explicit}, cat)
	require.True(t, ok)
	assert.Equal(t, large.ID, id, "explicit assignment wins over SKU")

	foreign := uuid.New()
	id, ok = ResolveContainer(Row{SKU: "GUM-BR-8OZ", AssignedContainerID: &foreign}, cat)
	require.True(t, ok)
	assert.Equal(t, large.ID, id, "unknown explicit id falls back to SKU")

	_, ok = ResolveContainer(Row{SKU: "GUM-BR-16OZ"}, cat)
	assert.False(t, ok)

	_, ok = ResolveContainer(Row{SKU: "GUM-BR-4OZ"}, model.Category{Name: "Empty"})
	assert.False(t, ok, "category without templates never resolves")
}

func TestSuggestProduct(t *testing.T) {
	gummies := model.Category{ID: uuid.New(), Name: "Gummies"}
	hard := model.Category{ID: uuid.New(), Name: "Hard Candy"}
	cats := map[uuid.UUID]model.Category{gummies.ID: gummies, hard.ID: hard}
	blueGummy := model.Product{ID: uuid.New(), CategoryID: gummies.ID, Flavor: "Blue Raz"}
	blueHard := model.Product{ID: uuid.New(), CategoryID: hard.ID, Flavor: "Blue Raz"}
	lime := model.Product{ID: uuid.New(), CategoryID: hard.ID, Flavor: "Lime"}
	products := []model.Product{blueGummy, blueHard, lime}

	id, ok := SuggestProduct(Row{Name: "blue raz gummies"}, products, cats)
	require.True(t, ok)
	assert.Equal(t, blueGummy.ID, id)

	id, ok = SuggestProduct(Row{Name: "Lime"}, products, cats)
	require.True(t, ok)
	assert.Equal(t, lime.ID, id)

	_, ok = SuggestProduct(Row{Name: "Blue Raz"}, products, cats)
	assert.False(t, ok, "ambiguous flavor is not suggested")
}

func rowOf(raw map[string]string) Row {
	return newRow(raw, columnsOf(raw))
}
