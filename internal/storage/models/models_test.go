package models

import (
	"encoding/json"
	"testing"

	"cvision/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestParsedResumeToCandidate(t *testing.T) {
	views, err := ToJSON(types.Views{types.ViewFullText: "go engineer"})
	require.NoError(t, err)
	emb, err := ToJSON(types.ViewEmbeddings{types.ViewFullText: {1, 0}})
	require.NoError(t, err)

	p := &ParsedResume{ResumeID: "r1", OriginalFilename: "cv.pdf", ViewsJSON: views, EmbeddingsJSON: emb}
	c, err := p.ToCandidate()
	require.NoError(t, err)
	assert.Equal(t, "r1", c.CandidateID)
	assert.Equal(t, "cv.pdf", c.ResumeFile)
	assert.Equal(t, "go engineer", c.Views[types.ViewFullText])
	assert.Equal(t, []float64{1, 0}, c.Embeddings[types.ViewFullText])
}

func TestParsedResumeWithoutEmbeddings(t *testing.T) {
	p := &ParsedResume{ResumeID: "r1", EmbeddingsJSON: datatypes.JSON("null")}
	c, err := p.ToCandidate()
	require.NoError(t, err)
	assert.NotNil(t, c.Embeddings)
	assert.Empty(t, c.Embeddings)
}

func TestParsedResumeBadJSON(t *testing.T) {
	p := &ParsedResume{ResumeID: "r1", ViewsJSON: datatypes.JSON("{")}
	_, err := p.ToCandidate()
	require.Error(t, err)
}

func TestJobRequirementForm(t *testing.T) {
	form := types.JobDescriptionForm{
		JobTitle:       "Backend Engineer",
		JobDescription: "Build and run Go services at scale",
		Skills:         []string{"Go", "MySQL"},
		Experience:     "3 years",
	}
	job, err := NewJobRequirement("j1", form, 0, "pending")
	require.NoError(t, err)
	assert.Equal(t, 5, job.CandidateCount, "未指定时默认推荐 5 人")

	got, err := job.Form()
	require.NoError(t, err)
	assert.Equal(t, form, got)

	emb, err := job.Embeddings()
	require.NoError(t, err)
	assert.Nil(t, emb, "尚未嵌入")
}

func TestNewOutboxMessage(t *testing.T) {
	msg, err := NewOutboxMessage("r1", "resume.structured", "ex", "rk", map[string]string{"resume_id": "r1"})
	require.NoError(t, err)
	assert.Equal(t, OutboxStatusPending, msg.Status)

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &payload))
	assert.Equal(t, "r1", payload["resume_id"])
}
