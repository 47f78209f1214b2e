package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/scenebridge/internal/config"
	"github.com/muurk/scenebridge/internal/rodin"
)

func newGeneratedFixture(t *testing.T, status string) *fixture {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/v2/rodin", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"uuid": "task-1", "jobs": {"uuids": ["job-a"], "subscription_key": "sub-1"}}`)
	})
	mux.HandleFunc("/v2/status", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jobs": []map[string]string{{"uuid": "job-a", "status": status}},
		})
	})
	mux.HandleFunc("/v2/download", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"list": [{"url": "%s/files/model.glb", "name": "model.glb"}]}`, srv.URL)
	})
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "glTF")
	})

	f := newFixture(t, func(d *Deps) {
		d.Rodin = rodin.NewClient(srv.URL, "key")
		d.Rodin.DownloadDir = t.TempDir()
	})
	f.flags.Apply(config.FeaturesConfig{GeneratedContent: true})
	return f
}

func TestCreateRodinJob(t *testing.T) {
	f := newGeneratedFixture(t, rodin.StatusWaiting)

	resp := f.do("create_rodin_job", map[string]any{"text_prompt": "a red chair"})
	require.True(t, resp.OK(), resp.Message)
	result := resp.Result.(map[string]any)
	assert.Equal(t, "task-1", result["task_uuid"])
	assert.Equal(t, "sub-1", result["subscription_key"])

	resp = f.do("create_rodin_job", nil)
	assert.Equal(t, "either a text prompt or at least one image is required", resp.Message)
}

func TestPollRodinJobStatus(t *testing.T) {
	tests := []struct {
		status string
		want   string
	}{
		{rodin.StatusDone, rodin.StatusDone},
		{rodin.StatusWaiting, rodin.StatusGenerating},
		{rodin.StatusFailed, rodin.StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			f := newGeneratedFixture(t, tt.status)
			resp := f.do("poll_rodin_job_status", map[string]any{"subscription_key": "sub-1"})
			require.True(t, resp.OK(), resp.Message)
			assert.Equal(t, tt.want, resp.Result.(map[string]any)["status"])
		})
	}
}

func TestImportGeneratedAsset(t *testing.T) {
	f := newGeneratedFixture(t, rodin.StatusDone)

	resp := f.do("import_generated_asset", map[string]any{"name": "Chair", "task_uuid": "task-1"})
	require.True(t, resp.OK(), resp.Message)
	assert.Equal(t, "Chair", resp.Result.(map[string]any)["name"])

	obj, err := f.scene.Object("Chair")
	require.NoError(t, err)
	assert.Equal(t, resp.Result.(map[string]any)["filepath"], obj.Source)
}

func TestGeneratedContentNeedsAPIKey(t *testing.T) {
	f := newGeneratedFixture(t, rodin.StatusDone)
	f.deps.Rodin.APIKey = ""

	resp := f.do("poll_rodin_job_status", map[string]any{"subscription_key": "sub-1"})
	assert.Equal(t, rodin.ErrNoAPIKey.Error(), resp.Message)
}
