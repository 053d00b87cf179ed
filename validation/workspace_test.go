package validation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeName(t *testing.T) {
	tests := map[string]string{
		"sheet.pdf":           "sheet.pdf",
		"My Song (1).PNG":     "My_Song__1_.PNG",
		"../../etc/passwd":    "passwd",
		`C:\scans\página.jpg`: "p_gina.jpg",
		"":                    "upload",
		"...":                 "upload",
		"Ação.pdf":            "A__o.pdf",
	}
	for in, want := range tests {
		assert.Equal(t, want, SafeName(in), in)
	}
}

func TestWorkspace(t *testing.T) {
	root := filepath.Join(t.TempDir(), "work")
	ws, err := NewWorkspace(root)
	require.NoError(t, err)
	assert.Equal(t, root, filepath.Dir(ws.Dir))

	path, err := ws.Save(Upload{Filename: "../x/sheet.pdf", Data: []byte("%PDF")})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(ws.Dir, "sheet.pdf"), path)

	require.NoError(t, ws.Remove())
	_, err = os.Stat(ws.Dir)
	assert.True(t, os.IsNotExist(err))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindPDF, KindOf("a.PDF"))
	assert.Equal(t, KindImage, KindOf("a.jpeg"))
	assert.Equal(t, KindImage, KindOf("a.tiff"))
	assert.Equal(t, KindNotation, KindOf("a.mxl"))
	assert.Equal(t, KindUnknown, KindOf("a.docx"))
	assert.Equal(t, "pdf", KindPDF.String())
}
