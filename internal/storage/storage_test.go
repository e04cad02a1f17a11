package storage_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"cvision/internal/config"
	"cvision/internal/storage"
	"cvision/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCollection = "test_collection"

// fakeQdrant 记录收到的请求，按路径返回预设响应
type fakeQdrant struct {
	mu       sync.Mutex
	requests map[string][]byte
	exists   bool
	search   string
}

func (f *fakeQdrant) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.requests[r.Method+" "+r.URL.Path] = body
		f.mu.Unlock()

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/collections/"+testCollection:
			if !f.exists {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Write([]byte(`{"result": {"config": {"params": {"vectors": {"size": 4, "distance": "Cosine"}}}}}`))
		case r.Method == http.MethodPut:
			w.Write([]byte(`{"result": {"status": "completed"}, "status": "ok"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/collections/"+testCollection+"/points/search":
			w.Write([]byte(f.search))
		default:
			t.Logf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func newQdrant(t *testing.T, f *fakeQdrant) *storage.Qdrant {
	t.Helper()
	if f.requests == nil {
		f.requests = map[string][]byte{}
	}
	server := httptest.NewServer(f.handler(t))
	t.Cleanup(server.Close)

	q, err := storage.NewQdrant(&config.QdrantConfig{
		Endpoint:   server.URL,
		Collection: testCollection,
		Dimension:  4,
	}, storage.WithHttpTimeout(5*time.Second))
	require.NoError(t, err, "应该成功创建Qdrant客户端")
	return q
}

func TestQdrantCreatesMissingCollection(t *testing.T) {
	f := &fakeQdrant{}
	newQdrant(t, f)

	create, ok := f.requests["PUT /collections/"+testCollection]
	require.True(t, ok, "集合不存在时应发送创建请求")
	var body map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(create, &body))
	assert.EqualValues(t, 4, body["vectors"]["size"])
	assert.Equal(t, "Cosine", body["vectors"]["distance"])
	assert.Contains(t, f.requests, "PUT /collections/"+testCollection+"/index", "应为 payload 建索引")
}

func TestQdrantUpsertResumeViews(t *testing.T) {
	f := &fakeQdrant{exists: true}
	q := newQdrant(t, f)

	emb := types.ViewEmbeddings{
		types.ViewSkills:   {1, 0, 0, 0},
		types.ViewFullText: {0, 1, 0, 0},
		types.ViewPhrases:  {1, 2, 3}, // 维度不符，跳过
	}
	ids, err := q.UpsertResumeViews(context.Background(), "resume-1", "cv.pdf", emb)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, storage.PointID("resume-1", types.ViewSkills), ids[0], "按视图固定顺序写入")
	assert.Equal(t, storage.PointID("resume-1", types.ViewFullText), ids[1])

	var body struct {
		Points []struct {
			ID      string            `json:"id"`
			Vector  []float64         `json:"vector"`
			Payload map[string]string `json:"payload"`
		} `json:"points"`
	}
	require.NoError(t, json.Unmarshal(f.requests["PUT /collections/"+testCollection+"/points"], &body))
	require.Len(t, body.Points, 2)
	assert.Equal(t, "skills", body.Points[0].Payload["view"])
	assert.Equal(t, "resume-1", body.Points[1].Payload["resume_id"])
	assert.Equal(t, "cv.pdf", body.Points[1].Payload["resume_file"])
}

func TestQdrantUpsertNothingToStore(t *testing.T) {
	f := &fakeQdrant{exists: true}
	q := newQdrant(t, f)

	ids, err := q.UpsertResumeViews(context.Background(), "resume-1", "cv.pdf", types.ViewEmbeddings{})
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.NotContains(t, f.requests, "PUT /collections/"+testCollection+"/points")
}

func TestQdrantSearchResumesDedupesByResume(t *testing.T) {
	f := &fakeQdrant{exists: true, search: `{
		"result": [
			{"id": "p1", "score": 0.95, "payload": {"resume_id": "r1", "view": "full_text"}},
			{"id": "p2", "score": 0.90, "payload": {"resume_id": "r1", "view": "full_text"}},
			{"id": "p3", "score": 0.80, "payload": {"resume_id": "r2", "view": "full_text"}},
			{"id": "p4", "score": 0.70, "payload": {}}
		]
	}`}
	q := newQdrant(t, f)

	results, err := q.SearchResumes(context.Background(), types.ViewFullText, []float64{0, 0, 1, 0}, 50)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "r1", results[0].ResumeID)
	assert.InDelta(t, 0.95, float64(results[0].Score), 1e-6)
	assert.Equal(t, "r2", results[1].ResumeID)

	var req struct {
		Limit  int `json:"limit"`
		Filter struct {
			Must []struct {
				Key   string `json:"key"`
				Match struct {
					Value string `json:"value"`
				} `json:"match"`
			} `json:"must"`
		} `json:"filter"`
	}
	require.NoError(t, json.Unmarshal(f.requests["POST /collections/"+testCollection+"/points/search"], &req))
	assert.Equal(t, 50, req.Limit)
	require.Len(t, req.Filter.Must, 1)
	assert.Equal(t, "view", req.Filter.Must[0].Key)
	assert.Equal(t, "full_text", req.Filter.Must[0].Match.Value)
}

func TestQdrantSearchRejectsWrongDimension(t *testing.T) {
	q := newQdrant(t, &fakeQdrant{exists: true})
	_, err := q.SearchResumes(context.Background(), types.ViewFullText, []float64{1, 2}, 10)
	require.Error(t, err)
}

func TestPointIDDeterministic(t *testing.T) {
	a := storage.PointID("r1", types.ViewSkills)
	assert.Equal(t, a, storage.PointID("r1", types.ViewSkills))
	assert.NotEqual(t, a, storage.PointID("r1", types.ViewFullText))
	assert.NotEqual(t, a, storage.PointID("r2", types.ViewSkills))
	assert.Len(t, a, 36)
}

func TestKeyFormats(t *testing.T) {
	assert.Equal(t, "cvision:file:md5_to_id:abc", storage.FileMD5Key("abc"))
	assert.Equal(t, "cvision:job:vector:j1", storage.JobEmbeddingsKey("j1"))
	assert.Equal(t, "resume/r1/original.pdf", storage.OriginalObjectKey("r1", "My CV.PDF"))
	assert.Equal(t, "resume/r1/original", storage.OriginalObjectKey("r1", "noext"))
	assert.Equal(t, "resume/r1/structured.json", storage.StructuredObjectKey("r1"))
}

func TestViewEmbeddingsHashEncoding(t *testing.T) {
	fields, err := storage.EncodeViewEmbeddings(types.ViewEmbeddings{
		types.ViewSkills:    {0.5, 0.25},
		types.ViewEducation: nil,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"skills": "[0.5,0.25]"}, fields, "空向量不写入缓存")

	emb, err := storage.DecodeViewEmbeddings(map[string]string{"skills": "[0.5,0.25]"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.25}, emb[types.ViewSkills])

	_, err = storage.DecodeViewEmbeddings(map[string]string{"skills": "not-json"})
	require.Error(t, err)
}

func TestBuildDSN(t *testing.T) {
	cfg := &config.MySQLConfig{Host: "db", Port: 3306, Username: "u", Password: "p", Database: "cvision"}
	assert.Equal(t, "u:p@tcp(db:3306)/cvision?charset=utf8mb4&parseTime=True&loc=Local", storage.BuildDSN(cfg))

	cfg.DSN = "custom"
	assert.Equal(t, "custom", storage.BuildDSN(cfg))
}
