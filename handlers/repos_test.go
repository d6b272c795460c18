package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"effortsync/store"
	"effortsync/types"
	"effortsync/watcher"
	"effortsync/websocket"
)

type ReposHandlerSuite struct {
	suite.Suite
	router  *gin.Engine
	watcher *watcher.Watcher
	store   *store.Store
}

func (s *ReposHandlerSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	w, err := watcher.New(10 * time.Millisecond)
	require.NoError(s.T(), err)
	s.watcher = w
	s.store = store.New()
	hub := websocket.NewHub(s.store, false)

	h := NewReposHandler(w, s.store, hub)
	s.router = gin.New()
	s.router.GET("/repos", h.List)
	s.router.POST("/repos", h.Add)
	s.router.DELETE("/repos/:name", h.Remove)
}

func (s *ReposHandlerSuite) TearDownTest() {
	s.watcher.Close()
}

func (s *ReposHandlerSuite) request(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.T(), json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *ReposHandlerSuite) TestAddListRemove() {
	dir := s.T().TempDir()

	rec := s.request(http.MethodPost, "/repos", types.RepoRef{Name: "docs", Path: dir})
	s.Equal(http.StatusCreated, rec.Code)

	rec = s.request(http.MethodGet, "/repos", nil)
	s.Equal(http.StatusOK, rec.Code)
	var listResp struct {
		Data []struct {
			Name string `json:"name"`
			Path string `json:"path"`
		} `json:"data"`
	}
	require.NoError(s.T(), json.Unmarshal(rec.Body.Bytes(), &listResp))
	require.Len(s.T(), listResp.Data, 1)
	s.Equal("docs", listResp.Data[0].Name)
	s.Equal(dir, listResp.Data[0].Path)

	rec = s.request(http.MethodDelete, "/repos/docs", nil)
	s.Equal(http.StatusOK, rec.Code)

	rec = s.request(http.MethodGet, "/repos", nil)
	require.NoError(s.T(), json.Unmarshal(rec.Body.Bytes(), &listResp))
	s.Empty(listResp.Data)
}

func (s *ReposHandlerSuite) TestAddRejectsMissingFields() {
	rec := s.request(http.MethodPost, "/repos", types.RepoRef{Name: "docs"})
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *ReposHandlerSuite) TestAddDuplicateNameConflicts() {
	dir := s.T().TempDir()
	rec := s.request(http.MethodPost, "/repos", types.RepoRef{Name: "docs", Path: dir})
	s.Equal(http.StatusCreated, rec.Code)

	rec = s.request(http.MethodPost, "/repos", types.RepoRef{Name: "docs", Path: dir})
	s.Equal(http.StatusConflict, rec.Code)
}

func (s *ReposHandlerSuite) TestRemoveUnknownRepo() {
	rec := s.request(http.MethodDelete, "/repos/nope", nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func TestReposHandlerSuite(t *testing.T) {
	suite.Run(t, new(ReposHandlerSuite))
}
