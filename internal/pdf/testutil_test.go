package pdf

import (
	"bytes"
	"fmt"
	"testing"

	"codeberg.org/go-pdf/fpdf"
	"github.com/stretchr/testify/require"
)

// makePDF builds an A4 document with n numbered pages.
func makePDF(t *testing.T, n int) []byte {
	t.Helper()

	doc := fpdf.New("P", "pt", "A4", "")
	doc.SetFont("Helvetica", "", 24)
	for i := 1; i <= n; i++ {
		doc.AddPage()
		doc.Cell(200, 40, fmt.Sprintf("Page %d", i))
		doc.Rect(100, 200, 150, 150, "D")
	}

	var buf bytes.Buffer
	require.NoError(t, doc.Output(&buf))
	return buf.Bytes()
}
