package pdfgen

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDocument() Document {
	return Document{Pages: []Page{
		{Width: 612, Height: 792, Texts: []Text{
			{X: 72, Y: 700, Size: 12, Value: "Hello (world)"},
		}},
		{Width: 300, Height: 400, Texts: []Text{
			{X: 10, Y: 380, Size: 10, Value: "second page"},
		}},
		{Width: 200, Height: 200},
	}}
}

func TestBuild(t *testing.T) {
	ctx, err := Build(sampleDocument())
	require.NoError(t, err)
	assert.Equal(t, 3, ctx.PageCount)

	dims, err := ctx.PageDims()
	require.NoError(t, err)
	require.Len(t, dims, 3)
	assert.Equal(t, 612.0, dims[0].Width)
	assert.Equal(t, 792.0, dims[0].Height)
	assert.Equal(t, 300.0, dims[1].Width)
	assert.Equal(t, 400.0, dims[1].Height)

	d, _, _, err := ctx.PageDict(1, false)
	require.NoError(t, err)
	content, err := ctx.PageContent(d, 1)
	require.NoError(t, err)
	assert.Contains(t, string(content), "/F1 12.00 Tf")
	assert.Contains(t, string(content), `(Hello \(world\)) Tj`)
}

func TestWrite_InvalidDocument(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Write(&buf, Document{}))
	assert.Error(t, Write(&buf, Document{Pages: []Page{{Width: 0, Height: 10}}}))
}

func TestBytes(t *testing.T) {
	b, err := Bytes(sampleDocument())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(b, []byte("%PDF-")))
}

func TestWriteFile_PageCountAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "sample.pdf")
	require.NoError(t, WriteFile(path, sampleDocument()))

	n, err := PageCount(path)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.NoError(t, Validate(path))
}

func TestValidate_Missing(t *testing.T) {
	assert.Error(t, Validate(filepath.Join(t.TempDir(), "missing.pdf")))
}
