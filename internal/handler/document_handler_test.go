package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PixlGalaxy/EagleDocs/internal/dto"
	"github.com/PixlGalaxy/EagleDocs/internal/middleware"
	"github.com/PixlGalaxy/EagleDocs/internal/models"
	appErrors "github.com/PixlGalaxy/EagleDocs/pkg/errors"
)

type documentServiceMock struct {
	uploadResp  *dto.UploadDocumentResponse
	uploadErr   error
	listResp    []models.CourseDocument
	deleteErr   error
	reindexResp *dto.ReindexResponse
	reindexErr  error
	downloadDoc *models.CourseDocument
	downloadAt  string
	downloadErr error

	lastActor  *models.JWTClaims
	lastCourse string
	lastDoc    string
	lastUpload dto.UploadDocumentRequest
	lastSig    string
}

func (m *documentServiceMock) Upload(ctx context.Context, actor *models.JWTClaims, courseID string, req dto.UploadDocumentRequest) (*dto.UploadDocumentResponse, error) {
	m.lastActor, m.lastCourse, m.lastUpload = actor, courseID, req
	return m.uploadResp, m.uploadErr
}

func (m *documentServiceMock) List(ctx context.Context, courseID string) ([]models.CourseDocument, error) {
	m.lastCourse = courseID
	return m.listResp, nil
}

func (m *documentServiceMock) Delete(ctx context.Context, actor *models.JWTClaims, courseID, documentID string) error {
	m.lastActor, m.lastCourse, m.lastDoc = actor, courseID, documentID
	return m.deleteErr
}

func (m *documentServiceMock) Reindex(ctx context.Context, actor *models.JWTClaims, courseID string) (*dto.ReindexResponse, error) {
	m.lastCourse = courseID
	return m.reindexResp, m.reindexErr
}

func (m *documentServiceMock) Download(ctx context.Context, documentID, expires, signature string) (*models.CourseDocument, string, error) {
	m.lastDoc, m.lastSig = documentID, signature
	return m.downloadDoc, m.downloadAt, m.downloadErr
}

func newDocumentContext(method, target string, body []byte, params gin.Params, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, target, bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = params
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, w
}

func instructorClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "inst-1", Role: models.RoleInstructor, Email: "prof@fgcu.edu"}
}

func TestDocumentHandlerUpload(t *testing.T) {
	svc := &documentServiceMock{uploadResp: &dto.UploadDocumentResponse{
		Document:   models.CourseDocument{ID: "doc-1", OriginalName: "syllabus.pdf"},
		ChunkCount: 3,
	}}
	body := []byte(`{"fileName":"syllabus.pdf","fileData":"JVBERi0xLjQ="}`)
	c, w := newDocumentContext(http.MethodPost, "/courses/course-1/documents", body, gin.Params{{Key: "courseId", Value: "course-1"}}, instructorClaims())

	NewDocumentHandler(svc).Upload(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "course-1", svc.lastCourse)
	assert.Equal(t, "syllabus.pdf", svc.lastUpload.FileName)
	assert.Equal(t, "inst-1", svc.lastActor.UserID)
}

func TestDocumentHandlerUploadErrors(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{name: "bad json", body: `{`, status: http.StatusBadRequest},
		{name: "too large", body: `{"fileName":"a.pdf","fileData":"AA=="}`, err: appErrors.ErrPayloadTooLarge, status: http.StatusRequestEntityTooLarge},
		{name: "no text", body: `{"fileName":"a.pdf","fileData":"AA=="}`, err: appErrors.ErrExtractionFailed, status: http.StatusUnprocessableEntity},
		{name: "not owner", body: `{"fileName":"a.pdf","fileData":"AA=="}`, err: appErrors.ErrForbidden, status: http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &documentServiceMock{uploadErr: tc.err}
			c, w := newDocumentContext(http.MethodPost, "/courses/c/documents", []byte(tc.body), gin.Params{{Key: "courseId", Value: "c"}}, instructorClaims())
			NewDocumentHandler(svc).Upload(c)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestDocumentHandlerListAndDelete(t *testing.T) {
	svc := &documentServiceMock{listResp: []models.CourseDocument{{ID: "doc-1", OriginalName: "notes.pdf"}}}
	params := gin.Params{{Key: "courseId", Value: "course-1"}, {Key: "documentId", Value: "doc-1"}}

	c, w := newDocumentContext(http.MethodGet, "/courses/course-1/documents", nil, params, studentClaims())
	NewDocumentHandler(svc).List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "notes.pdf")

	c, _ = newDocumentContext(http.MethodDelete, "/courses/course-1/documents/doc-1", nil, params, instructorClaims())
	NewDocumentHandler(svc).Delete(c)
	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.Equal(t, "doc-1", svc.lastDoc)
}

func TestDocumentHandlerReindex(t *testing.T) {
	svc := &documentServiceMock{reindexResp: &dto.ReindexResponse{CourseID: "course-1", Queued: 2}}
	c, w := newDocumentContext(http.MethodPost, "/courses/course-1/reindex", nil, gin.Params{{Key: "courseId", Value: "course-1"}}, instructorClaims())

	NewDocumentHandler(svc).Reindex(c)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"queued":2`)
}

func TestDocumentHandlerReindexQueueFull(t *testing.T) {
	svc := &documentServiceMock{reindexErr: appErrors.New("QUEUE_FULL", http.StatusServiceUnavailable, "reindex queue is full")}
	c, w := newDocumentContext(http.MethodPost, "/courses/course-1/reindex", nil, gin.Params{{Key: "courseId", Value: "course-1"}}, instructorClaims())

	NewDocumentHandler(svc).Reindex(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestDocumentHandlerDownload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stored.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 test"), 0o600))

	svc := &documentServiceMock{downloadDoc: &models.CourseDocument{ID: "doc-1", OriginalName: "Week 1.pdf"}, downloadAt: path}
	c, w := newDocumentContext(http.MethodGet, "/documents/doc-1/download?expires=123&signature=abc", nil, gin.Params{{Key: "documentId", Value: "doc-1"}}, nil)

	NewDocumentHandler(svc).Download(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc", svc.lastSig)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "Week 1.pdf")
	assert.Equal(t, "%PDF-1.4 test", w.Body.String())
}

func TestDocumentHandlerDownloadBadSignature(t *testing.T) {
	svc := &documentServiceMock{downloadErr: appErrors.Clone(appErrors.ErrForbidden, "invalid download signature")}
	c, w := newDocumentContext(http.MethodGet, "/documents/doc-1/download", nil, gin.Params{{Key: "documentId", Value: "doc-1"}}, nil)

	NewDocumentHandler(svc).Download(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
}
