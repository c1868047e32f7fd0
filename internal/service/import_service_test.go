package service

import (
	"encoding/json"
	"strings"
	"testing"

	"sostrack/internal/csvimport"
	"sostrack/internal/dto"
	"sostrack/internal/model"
	"sostrack/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const salesExport = `Product Name,Product Description,Product Quantity,SKU,Order
Blue Raz #1,Sour,2,GUM-BR-JAR,1001
Blue Raz #2,Sour,3,,1002
Mango,Sweet,4,,1003
Blue Raz,Sour,1,GUM-BR-PCH,1004
`

func TestImport_ParseGroupsAndResolves(t *testing.T) {
	f := newFixture(t)

	resp, err := f.imports.Parse(f.ctx, "orders.csv", strings.NewReader(salesExport))
	require.NoError(t, err)
	assert.Equal(t, 4, resp.SourceRows)
	assert.Equal(t, salesExport, resp.Content)
	require.Len(t, resp.Rows, 2)

	// SKU-less rows sort first
	assert.Equal(t, "Mango", resp.Rows[0].Name)
	assert.Nil(t, resp.Rows[0].AssignedProductID)

	br := resp.Rows[1]
	assert.Equal(t, "Blue Raz", br.Name)
	assert.Equal(t, 6, br.Quantity)
	assert.Equal(t, 3, br.SourceRows)
	assert.Equal(t, "1001", br.Raw["Order"])
	require.NotNil(t, br.AssignedProductID)
	assert.Equal(t, f.product.ID, *br.AssignedProductID)
	require.NotNil(t, br.AssignedContainerID)
	assert.Equal(t, f.jar, *br.AssignedContainerID)
	assert.Equal(t, 1, resp.Unresolved)
}

func TestImport_ParseRejectsMissingColumns(t *testing.T) {
	f := newFixture(t)
	_, err := f.imports.Parse(f.ctx, "bad.csv", strings.NewReader("Name,Qty\nx,1\n"))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func (f *fixture) row(name string, qty int, container *uuid.UUID) csvimport.Row {
	id := f.product.ID
	return csvimport.Row{
		Raw:                 map[string]string{"Product Name": name, "Product Quantity": "x"},
		Name:                name,
		Quantity:            qty,
		AssignedProductID:   &id,
		AssignedContainerID: container,
	}
}

func TestImport_PreviewAccumulatesWithoutWriting(t *testing.T) {
	f := newFixture(t)
	f.setStock(t, 5, 1)

	resp, err := f.imports.Preview(f.ctx, dto.PreviewRequest{Rows: []csvimport.Row{
		f.row("Blue Raz", 2, &f.jar),
		f.row("Blue Raz", 4, &f.jar),
		f.row("Blue Raz", 1, &f.pouch),
	}})
	require.NoError(t, err)
	require.Len(t, resp.Lines, 2)
	assert.Equal(t, dto.PreviewLine{
		ProductID:   f.product.ID.String(),
		ProductName: "Blue Raz Gummies",
		TemplateID:  f.jar.String(),
		Container:   "Jar",
		CurrentQty:  5,
		Deduction:   6,
		FinalQty:    -1,
		Negative:    true,
	}, resp.Lines[0])
	assert.Equal(t, 0, resp.Lines[1].FinalQty)
	assert.True(t, resp.Negative)

	assert.Equal(t, 5, f.quantity(t, f.jar))
}

func TestImport_CommitGoesNegativeAndRecordsHistory(t *testing.T) {
	f := newFixture(t)
	f.setStock(t, 5, 1)

	resp, err := f.imports.Commit(f.ctx, dto.CommitRequest{
		Rows:     []csvimport.Row{f.row("Blue Raz", 8, &f.jar)},
		FileName: "orders.csv",
		Content:  salesExport,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Applied)
	require.NotNil(t, resp.CSVFileID)
	assert.Equal(t, -3, f.quantity(t, f.jar))

	hist, err := f.store.ListHistory(f.ctx, repository.HistoryFilter{ProductID: &f.product.ID, Limit: 1})
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, model.ChangeCSVImport, hist[0].ChangeType)
	require.NotNil(t, hist[0].CSVFileID)
	assert.Equal(t, *resp.CSVFileID, hist[0].CSVFileID.String())

	var details importDetails
	require.NoError(t, json.Unmarshal(hist[0].Details, &details))
	assert.Equal(t, 5, details.QuantityBefore)
	assert.Equal(t, -3, details.QuantityAfter)
	assert.Equal(t, 8, details.Deducted)
	assert.Equal(t, "Blue Raz", details.Row["Product Name"])

	file, err := f.imports.GetFile(f.ctx, *hist[0].CSVFileID)
	require.NoError(t, err)
	assert.Equal(t, salesExport, file.Content)
}

func TestImport_CommitSkipsUnusableRows(t *testing.T) {
	f := newFixture(t)
	f.setStock(t, 5, 1)

	unassigned := f.row("Mango", 3, &f.jar)
	unassigned.AssignedProductID = nil
	missing := f.row("Ghost", 3, &f.jar)
	ghost := uuid.New()
	missing.AssignedProductID = &ghost

	resp, err := f.imports.Commit(f.ctx, dto.CommitRequest{Rows: []csvimport.Row{
		unassigned,
		missing,
		f.row("Blue Raz", 0, &f.jar),
		f.row("Blue Raz", 2, nil),
		f.row("Blue Raz", 2, &f.pouch),
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Applied)
	assert.Equal(t, 4, resp.Skipped)
	assert.Nil(t, resp.CSVFileID)
	assert.Equal(t, 5, f.quantity(t, f.jar))
	assert.Equal(t, -1, f.quantity(t, f.pouch))
}

func TestImport_CommitIsAtomic(t *testing.T) {
	f := newFixture(t)
	f.setStock(t, 5, 1)

	f.store.FailCommits(assert.AnError)
	_, err := f.imports.Commit(f.ctx, dto.CommitRequest{Rows: []csvimport.Row{f.row("Blue Raz", 2, &f.jar)}, Content: salesExport})
	assert.ErrorIs(t, err, ErrWriteFailure)
	f.store.FailCommits(nil)

	assert.Equal(t, 5, f.quantity(t, f.jar))
	files, err := f.store.ListCSVFiles(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestImport_ReplaceFile(t *testing.T) {
	f := newFixture(t)
	resp, err := f.imports.Commit(f.ctx, dto.CommitRequest{
		Rows:     []csvimport.Row{f.row("Blue Raz", 1, &f.jar)},
		FileName: "orders.csv",
		Content:  salesExport,
	})
	require.NoError(t, err)
	id := uuid.MustParse(*resp.CSVFileID)

	got, err := f.imports.ReplaceFile(f.ctx, id, dto.ReplaceCSVFileRequest{Content: "Product Name,Product Quantity\n"})
	require.NoError(t, err)
	assert.Equal(t, "orders.csv", got.FileName)
	assert.Equal(t, "Product Name,Product Quantity\n", got.Content)

	_, err = f.imports.ReplaceFile(f.ctx, uuid.New(), dto.ReplaceCSVFileRequest{Content: "x"})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
