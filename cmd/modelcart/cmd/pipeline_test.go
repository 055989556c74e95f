package cmd

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-modelcart/index"
	"go-modelcart/internal/config"
	"go-modelcart/internal/dispatcher"
	"go-modelcart/internal/models"
)

// TestFetchPipeline runs the full parse -> dispatch -> record chain against a
// local HTTP server using only the built-in client.
func TestFetchPipeline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/files/base.safetensors", "/files/style-lora.safetensors":
			_, _ = w.Write([]byte("payload for " + r.URL.Path))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	saveDir := t.TempDir()
	origConfig := globalConfig
	t.Cleanup(func() { globalConfig = origConfig })
	globalConfig = config.DefaultConfig()
	globalConfig.SavePath = saveDir
	globalConfig.DatabasePath = filepath.Join(saveDir, "history_db")

	// Defaults record history and index it; no toggles needed.
	require.False(t, globalConfig.DisableHistory)
	require.False(t, globalConfig.DisableIndexing)

	requestText := fmt.Sprintf(`// pasted request
#model
%s/files/base.safetensors
$lora
%s/files/style-lora.safetensors
%s/files/broken.safetensors
`, server.URL, server.URL, server.URL)

	p, err := buildParser()
	require.NoError(t, err)

	jobs, dropped := p.Parse(requestText)
	require.Empty(t, dropped)
	require.Len(t, jobs, 3)
	assert.Equal(t, models.CategoryModel, jobs[0].Category)
	assert.Equal(t, models.CategoryLora, jobs[1].Category)
	assert.Equal(t, models.CategoryLora, jobs[2].Category, "category carries forward to the failing URL")

	report := p.Validate(jobs, dropped)
	assert.Equal(t, 3, report.TotalCount)
	assert.Empty(t, report.Errors)
	// httptest serves from 127.0.0.1, which is not on the default host list.
	assert.NotEmpty(t, report.Warnings)

	d := dispatcher.New(dispatcher.Options{
		UserAgent:     "pipeline-test",
		ClientTimeout: 10 * time.Second,
		NativeOnly:    true,
	})
	summary := d.Run(jobs, nil)

	assert.Equal(t, 3, summary.Total)
	require.Len(t, summary.Downloaded, 2)
	require.Len(t, summary.Failed, 1)
	assert.Equal(t, "Download completed: 2 successful, 1 failed", summary.String())

	// Files landed in the category directories.
	assert.FileExists(t, filepath.Join(saveDir, "Stable-diffusion", "base.safetensors"))
	assert.FileExists(t, filepath.Join(saveDir, "Lora", "style-lora.safetensors"))
	_, statErr := os.Stat(filepath.Join(saveDir, "Lora", "broken.safetensors"))
	assert.True(t, os.IsNotExist(statErr), "failed job must not leave a file behind")

	// History records carry checksums for successes and details for failures.
	require.NoError(t, recordSession(summary))

	db, err := openHistoryDB()
	require.NoError(t, err)
	defer db.Close()

	entries, err := db.ListEntries()
	require.NoError(t, err)
	require.Len(t, entries, 3)

	byStatus := map[string]int{}
	for _, entry := range entries {
		byStatus[entry.Status]++
		switch entry.Status {
		case models.StatusDownloaded:
			assert.NotEmpty(t, entry.BLAKE3)
			assert.Positive(t, entry.SizeBytes)
		case models.StatusError:
			assert.NotEmpty(t, entry.ErrorDetails)
		}
	}
	assert.Equal(t, 2, byStatus[models.StatusDownloaded])
	assert.Equal(t, 1, byStatus[models.StatusError])

	// Indexing is on by default too: both successes are searchable.
	idx, err := index.OpenOrCreateIndex(indexPath())
	require.NoError(t, err)
	defer idx.Close()
	count, err := idx.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count, "only successful fetches are indexed")
}

// TestFetchPipelineDedup covers repeated URLs across categories in one request.
func TestFetchPipelineDedup(t *testing.T) {
	origConfig := globalConfig
	t.Cleanup(func() { globalConfig = origConfig })
	globalConfig = config.DefaultConfig()
	globalConfig.SavePath = t.TempDir()

	p, err := buildParser()
	require.NoError(t, err)

	jobs, _ := p.Parse(`$vae
https://huggingface.co/repo/resolve/main/shared.safetensors
$lora
https://huggingface.co/repo/resolve/main/shared.safetensors
`)
	require.Len(t, jobs, 1, "same URL under two tags collapses to one job")
	assert.Equal(t, models.CategoryVae, jobs[0].Category, "first occurrence decides the category")
}

// TestStrictValidationBlocksMalformedInput covers the strict pre-flight path:
// malformed candidates become report errors and refuse dispatch.
func TestStrictValidationBlocksMalformedInput(t *testing.T) {
	origConfig := globalConfig
	t.Cleanup(func() { globalConfig = origConfig })
	globalConfig = config.DefaultConfig()
	globalConfig.SavePath = t.TempDir()

	p, err := buildParser()
	require.NoError(t, err)

	jobs, dropped := p.Parse(`$ckpt
not a url at all
https://civitai.com/api/download/models/1234
`)
	require.Len(t, jobs, 1)
	require.Len(t, dropped, 1)

	report := p.Validate(jobs, dropped)
	require.NotEmpty(t, report.Errors)

	assert.Error(t, reportValidation(report, true), "strict mode must refuse to dispatch")
	assert.NoError(t, reportValidation(report, false), "default mode stays advisory")
}
