package printing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChromedpRenderer_Defaults(t *testing.T) {
	r, err := NewChromedpRenderer(nil)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, defaultChromeTimeout, r.config.DefaultTimeout)
	assert.Equal(t, defaultScale, r.config.Scale)
	assert.NotNil(t, r.allocCtx)
}

func TestBuildPrintParams(t *testing.T) {
	r := &ChromedpRenderer{config: ChromedpConfig{Scale: 1}}

	t.Run("A4 portrait", func(t *testing.T) {
		params := r.buildPrintParams(&RenderRequest{PaperSize: PaperSizeA4, Margins: DefaultMargins()})
		assert.InDelta(t, mmToInches(210), params.paperWidth, 0.001)
		assert.InDelta(t, mmToInches(297), params.paperHeight, 0.001)
		assert.InDelta(t, mmToInches(15), params.marginTop, 0.001)
		assert.False(t, params.landscape)
		assert.False(t, params.displayHeaderFooter)
	})

	t.Run("letter landscape", func(t *testing.T) {
		params := r.buildPrintParams(&RenderRequest{PaperSize: PaperSizeLetter, Landscape: true})
		assert.InDelta(t, 8.5, params.paperWidth, 0.001)
		assert.InDelta(t, 11, params.paperHeight, 0.001)
		assert.True(t, params.landscape)
	})

	t.Run("footer enforces bottom margin", func(t *testing.T) {
		params := r.buildPrintParams(&RenderRequest{PaperSize: PaperSizeA5, FooterHTML: "<span class=pageNumber></span>"})
		assert.True(t, params.displayHeaderFooter)
		assert.Equal(t, "<span></span>", params.headerTemplate)
		assert.InDelta(t, mmToInches(10), params.marginBottom, 0.001)
		assert.Zero(t, params.marginTop)
	})
}

func TestValidateRequest(t *testing.T) {
	var rerr *RenderError

	require.ErrorAs(t, validateRequest(nil), &rerr)
	assert.Equal(t, ErrCodeInvalidHTML, rerr.Code)

	require.ErrorAs(t, validateRequest(&RenderRequest{HTML: " "}), &rerr)
	assert.Equal(t, ErrCodeInvalidHTML, rerr.Code)

	require.ErrorAs(t, validateRequest(&RenderRequest{HTML: "<p>x</p>", PaperSize: "B7"}), &rerr)
	assert.Equal(t, ErrCodeInvalidPaperSize, rerr.Code)

	req := &RenderRequest{HTML: "<p>x</p>"}
	require.NoError(t, validateRequest(req))
	assert.Equal(t, PaperSizeA4, req.PaperSize)
}

func TestRender_RejectsBeforeLaunchingBrowser(t *testing.T) {
	r, err := NewChromedpRenderer(&ChromedpConfig{DefaultTimeout: time.Second})
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Render(context.Background(), &RenderRequest{})
	assert.Error(t, err)
}

func TestBuildCompleteHTML(t *testing.T) {
	full := "<!DOCTYPE html><html><body>x</body></html>"
	assert.Equal(t, full, buildCompleteHTML(&RenderRequest{HTML: full}))

	wrapped := buildCompleteHTML(&RenderRequest{HTML: "<p>x</p>", Title: "A&B"})
	assert.Contains(t, wrapped, "<title>A&amp;B</title>")
	assert.Contains(t, wrapped, "<body><p>x</p></body>")
}

func TestEstimatePageCount(t *testing.T) {
	pdf := []byte("<< /Type /Pages /Count 2 >> << /Type /Page >> << /Type /Page >>")
	assert.Equal(t, 2, estimatePageCount(pdf))
	assert.Equal(t, 1, estimatePageCount([]byte("%PDF-1.4")))
}
