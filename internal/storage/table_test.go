package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/enadl/internal/transfer"
)

func row(path string, status transfer.Status) Row {
	return Row{RunID: "SRR1", Role: transfer.RoleUnpaired, LocalPath: path, Status: status}
}

func TestTable_UpsertKeepsPosition(t *testing.T) {
	tbl := NewTable(row("a", transfer.StatusOK), row("b", transfer.StatusError), row("c", transfer.StatusExists))

	tbl.Upsert(row("b", transfer.StatusOK))
	tbl.Upsert(row("d", transfer.StatusError))

	rows := tbl.Rows()
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"a", "b", "c", "d"}, []string{rows[0].LocalPath, rows[1].LocalPath, rows[2].LocalPath, rows[3].LocalPath})
	assert.Equal(t, transfer.StatusOK, rows[1].Status)
}

func TestTable_MergeLeavesUntouchedRows(t *testing.T) {
	prior := NewTable(row("a", transfer.StatusOK), row("b", transfer.StatusError), row("c", transfer.StatusExists))
	rerun := NewTable(Row{RunID: "SRR1", LocalPath: "b", Status: transfer.StatusOK})

	merged := prior.Merge(rerun)

	assert.Equal(t, prior.Rows()[0], merged.Rows()[0])
	assert.Equal(t, prior.Rows()[2], merged.Rows()[2])
	assert.Equal(t, transfer.StatusOK, merged.Rows()[1].Status)

	// prior is not mutated
	got, ok := prior.Get("b")
	require.True(t, ok)
	assert.Equal(t, transfer.StatusError, got.Status)
}

func TestTable_CountsAndFilter(t *testing.T) {
	tbl := NewTable(row("a", transfer.StatusOK), row("b", transfer.StatusError), row("c", transfer.StatusError))

	assert.Equal(t, map[transfer.Status]int{
		transfer.StatusOK:     1,
		transfer.StatusExists: 0,
		transfer.StatusError:  2,
	}, tbl.Counts())
	assert.Len(t, tbl.WithStatus(transfer.StatusError), 2)
}

func TestTable_NilIsEmpty(t *testing.T) {
	var tbl *Table

	assert.Equal(t, 0, tbl.Len())
	assert.Empty(t, tbl.Rows())

	_, ok := tbl.Get("x")
	assert.False(t, ok)
}

func TestRow_EntryRoundTrip(t *testing.T) {
	e := transfer.FileEntry{
		RunID:            "ERR1",
		Role:             transfer.RoleReverse,
		URL:              "https://host/ERR1_2.fastq.gz",
		ExpectedChecksum: "abc",
		LocalPath:        "/w/raw_reads/ERR1/ERR1_2.fastq.gz",
	}

	r := NewRow(e, transfer.StatusError, "checksum mismatch")

	assert.Equal(t, e, r.Entry())
	assert.False(t, r.UpdatedAt.IsZero())
}
