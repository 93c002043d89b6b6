package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/markaz-adp-api/internal/dto"
	"github.com/noah-isme/markaz-adp-api/internal/middleware"
	"github.com/noah-isme/markaz-adp-api/internal/models"
	appErrors "github.com/noah-isme/markaz-adp-api/pkg/errors"
)

type fakeLessonSrv struct {
	approveErr    error
	approvedCalls []string

	createResp *models.IndividualLesson
	createErr  error

	approveAllResult *models.ApproveAllResult
}

func (f *fakeLessonSrv) ListIndividual(context.Context, *models.JWTClaims, models.LessonFilter) ([]models.IndividualLesson, int, error) {
	return nil, 0, nil
}

func (f *fakeLessonSrv) ListGroup(context.Context, *models.JWTClaims, models.LessonFilter) ([]models.GroupLesson, int, error) {
	return nil, 0, nil
}

func (f *fakeLessonSrv) ListRemedial(context.Context, *models.JWTClaims, models.LessonFilter) ([]models.RemedialLesson, int, error) {
	return nil, 0, nil
}

func (f *fakeLessonSrv) GetIndividual(context.Context, *models.JWTClaims, string) (*models.IndividualLesson, error) {
	return nil, appErrors.ErrNotFound
}

func (f *fakeLessonSrv) GetGroup(context.Context, *models.JWTClaims, string) (*models.GroupLesson, error) {
	return nil, appErrors.ErrNotFound
}

func (f *fakeLessonSrv) GetRemedial(context.Context, *models.JWTClaims, string) (*models.RemedialLesson, error) {
	return nil, appErrors.ErrNotFound
}

func (f *fakeLessonSrv) CreateIndividual(_ context.Context, _ *models.JWTClaims, req dto.CreateIndividualLessonRequest) (*models.IndividualLesson, error) {
	return f.createResp, f.createErr
}

func (f *fakeLessonSrv) CreateGroup(context.Context, *models.JWTClaims, dto.CreateGroupLessonRequest) (*models.GroupLesson, error) {
	return nil, nil
}

func (f *fakeLessonSrv) CreateRemedial(context.Context, *models.JWTClaims, dto.CreateRemedialLessonRequest) (*models.RemedialLesson, error) {
	return nil, nil
}

func (f *fakeLessonSrv) UpdateIndividual(context.Context, *models.JWTClaims, string, dto.UpdateIndividualLessonRequest) (*models.IndividualLesson, error) {
	return nil, nil
}

func (f *fakeLessonSrv) UpdateGroup(context.Context, *models.JWTClaims, string, dto.UpdateGroupLessonRequest) (*models.GroupLesson, error) {
	return nil, nil
}

func (f *fakeLessonSrv) UpdateRemedial(context.Context, *models.JWTClaims, string, dto.UpdateRemedialLessonRequest) (*models.RemedialLesson, error) {
	return nil, nil
}

func (f *fakeLessonSrv) AddParticipant(context.Context, *models.JWTClaims, string, string) (*models.GroupLesson, error) {
	return nil, nil
}

func (f *fakeLessonSrv) RemoveParticipant(context.Context, *models.JWTClaims, string, string) (*models.GroupLesson, error) {
	return nil, nil
}

func (f *fakeLessonSrv) Approve(_ context.Context, _ *models.JWTClaims, lessonType models.LessonType, id string) error {
	f.approvedCalls = append(f.approvedCalls, string(lessonType)+"/"+id)
	return f.approveErr
}

func (f *fakeLessonSrv) ApproveAll(context.Context, *models.JWTClaims, models.LessonType) (*models.ApproveAllResult, error) {
	return f.approveAllResult, nil
}

func (f *fakeLessonSrv) Delete(context.Context, *models.JWTClaims, models.LessonType, string, dto.DeleteLessonRequest) error {
	return nil
}

type fakeLessonExporter struct {
	payload []byte
	err     error
}

func (f *fakeLessonExporter) RenderLessons(context.Context) ([]byte, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return f.payload, "text/csv; charset=utf-8", nil
}

func authedContext(t *testing.T, rec *httptest.ResponseRecorder, req *http.Request) *gin.Context {
	t.Helper()
	c, _ := gin.CreateTestContext(rec)
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	return c
}

func TestLessonHandlerApprove(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &fakeLessonSrv{}
	handler := NewLessonHandler(service, &fakeLessonExporter{})

	rec := httptest.NewRecorder()
	c := authedContext(t, rec, httptest.NewRequest(http.MethodPost, "/lessons/individual/l1/approve", nil))
	c.Params = gin.Params{{Key: "id", Value: "l1"}}

	handler.Approve(models.LessonTypeIndividual)(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"individual/l1"}, service.approvedCalls)
}

func TestLessonHandlerApproveBusinessRule(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &fakeLessonSrv{approveErr: appErrors.Clone(appErrors.ErrBusinessRule, "lesson has no computed cost; configure pricing first")}
	handler := NewLessonHandler(service, &fakeLessonExporter{})

	rec := httptest.NewRecorder()
	c := authedContext(t, rec, httptest.NewRequest(http.MethodPost, "/lessons/individual/l1/approve", nil))
	c.Params = gin.Params{{Key: "id", Value: "l1"}}

	handler.Approve(models.LessonTypeIndividual)(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var envelope struct {
		Error *appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, appErrors.ErrBusinessRule.Code, envelope.Error.Code)
}

func TestLessonHandlerApproveWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewLessonHandler(&fakeLessonSrv{}, &fakeLessonExporter{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/lessons/individual/l1/approve", nil)

	handler.Approve(models.LessonTypeIndividual)(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLessonHandlerApproveAll(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &fakeLessonSrv{approveAllResult: &models.ApproveAllResult{Approved: 3, Failed: 1, Total: 4}}
	handler := NewLessonHandler(service, &fakeLessonExporter{})

	rec := httptest.NewRecorder()
	c := authedContext(t, rec, httptest.NewRequest(http.MethodPost, "/lessons/remedial/approve-all", nil))

	handler.ApproveAll(models.LessonTypeRemedial)(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data models.ApproveAllResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, 3, envelope.Data.Approved)
	assert.Equal(t, 1, envelope.Data.Failed)
}

func TestLessonHandlerExport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	exporter := &fakeLessonExporter{payload: []byte("csv-bytes")}
	handler := NewLessonHandler(&fakeLessonSrv{}, exporter)

	rec := httptest.NewRecorder()
	c := authedContext(t, rec, httptest.NewRequest(http.MethodGet, "/lessons/export", nil))

	handler.Export(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "lessons-")
	assert.Equal(t, "csv-bytes", rec.Body.String())
}

func TestLessonHandlerCreateIndividualBadPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewLessonHandler(&fakeLessonSrv{}, &fakeLessonExporter{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/lessons/individual", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	c := authedContext(t, rec, req)

	handler.CreateIndividual(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
