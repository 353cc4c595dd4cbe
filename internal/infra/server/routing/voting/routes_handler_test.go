package voting

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	votingController "github.com/fedus/safe-crossing-cf/internal/api/controllers/voting"
	"github.com/fedus/safe-crossing-cf/internal/api/models/common"
	"github.com/fedus/safe-crossing-cf/internal/api/models/voting"
	"github.com/fedus/safe-crossing-cf/internal/domain/crossing"
	"github.com/fedus/safe-crossing-cf/internal/domain/user"
	"github.com/fedus/safe-crossing-cf/internal/domain/vote"
	domainVoting "github.com/fedus/safe-crossing-cf/internal/domain/voting"
	"github.com/fedus/safe-crossing-cf/internal/infra/server/binding/validation"
	"github.com/fedus/safe-crossing-cf/internal/infra/server/routing"
)

func init() {
	validation.SetUpValidators()
}

const userUuid = "0b6cc3a4-0b6f-4f0e-9d53-3c1e1f1f6b01"

type data map[string]interface{}

type stringResponse struct {
	Result string `json:"result"`
}

type crossingsResponse struct {
	Result []voting.Crossing `json:"result"`
}

type metaResponse struct {
	Result voting.Meta `json:"result"`
}

var mockApiCrossing = voting.FromDomainCrossing(&domainVoting.MockDomainCrossing)
var mockApiMeta = voting.FromDomainMeta(&domainVoting.MockMeta)

func Test_InitializeUser_Ok(t *testing.T) {
	router, mockController := setupRouter()
	resp := performRequest(router, http.MethodPost, "/initializeUser", data{"data": data{"userUuid": userUuid}}, nil)
	assert.EqualValues(t, http.StatusOK, resp.Code)
	assert.EqualValues(t, 1, mockController.initializeUserCalled)
	assert.EqualValues(t, userUuid, mockController.lastUserId)
	var body stringResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Error(err)
	} else {
		assert.EqualValues(t, domainVoting.USER_INITIALIZED, body.Result)
	}
}

func Test_InitializeUser_InvalidBody(t *testing.T) {
	tests := []struct {
		name string
		body interface{}
	}{
		{"no body", nil},
		{"no data", data{}},
		{"no user", data{"data": data{}}},
		{"not a uuid", data{"data": data{"userUuid": "bob"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, mockController := setupRouter()
			resp := performRequest(router, http.MethodPost, "/initializeUser", tt.body, nil)
			assert.EqualValues(t, http.StatusBadRequest, resp.Code)
			assert.EqualValues(t, 0, mockController.initializeUserCalled)
		})
	}
}

func Test_InitializeUser_Err(t *testing.T) {
	router, mockController := setupRouter()
	apiErr := common.ApiError{
		StatusCode: http.StatusInternalServerError,
		Body: common.Body{
			Message: "nope",
		},
	}
	mockController.initializeUserOverride = func() (domainVoting.InitOutcome, *common.ApiError) {
		return "", &apiErr
	}
	resp := performRequest(router, http.MethodPost, "/initializeUser", data{"data": data{"userUuid": userUuid}}, nil)
	assert.EqualValues(t, apiErr.StatusCode, resp.Code)
	var body common.Body
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Error(err)
	} else {
		assert.EqualValues(t, apiErr.Body, body)
	}
}

func Test_Vote_Ok(t *testing.T) {
	for _, v := range []vote.Vote{vote.NOT_SURE, vote.OK, vote.TOO_CLOSE} {
		t.Run(v.String(), func(t *testing.T) {
			router, mockController := setupRouter()
			resp := performRequest(router, http.MethodPost, "/vote", data{"data": data{
				"userUuid":       userUuid,
				"crossingNodeId": "node/2847133",
				"vote":           int(v),
			}}, nil)
			assert.EqualValues(t, http.StatusOK, resp.Code)
			assert.EqualValues(t, 1, mockController.voteCalled)
			assert.EqualValues(t, v, mockController.lastVote)
			assert.EqualValues(t, "node/2847133", mockController.lastNodeId)
			var body stringResponse
			if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
				t.Error(err)
			} else {
				assert.Equal(t, votingController.VoteCast, body.Result)
			}
		})
	}
}

func Test_Vote_InvalidBody(t *testing.T) {
	valid := func() data {
		return data{
			"userUuid":       userUuid,
			"crossingNodeId": "node/2847133",
			"vote":           1,
		}
	}
	tests := []struct {
		name   string
		mangle func(d data)
	}{
		{"missing vote", func(d data) { delete(d, "vote") }},
		{"vote out of range", func(d data) { d["vote"] = 3 }},
		{"negative vote", func(d data) { d["vote"] = -1 }},
		{"vote as a string", func(d data) { d["vote"] = "OK" }},
		{"missing node id", func(d data) { delete(d, "crossingNodeId") }},
		{"node id without namespace", func(d data) { d["crossingNodeId"] = "2847133" }},
		{"missing user", func(d data) { delete(d, "userUuid") }},
		{"user not a uuid", func(d data) { d["userUuid"] = "bob" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, mockController := setupRouter()
			d := valid()
			tt.mangle(d)
			resp := performRequest(router, http.MethodPost, "/vote", data{"data": d}, nil)
			assert.EqualValues(t, http.StatusBadRequest, resp.Code)
			assert.EqualValues(t, 0, mockController.voteCalled)
		})
	}
}

func Test_Vote_FailureString(t *testing.T) {
	router, mockController := setupRouter()
	mockController.voteOverride = func() (string, *common.ApiError) {
		return "Failed to cast vote: crossing [2847133] not found", nil
	}
	resp := performRequest(router, http.MethodPost, "/vote", data{"data": data{
		"userUuid":       userUuid,
		"crossingNodeId": "node/2847133",
		"vote":           0,
	}}, nil)
	assert.EqualValues(t, http.StatusOK, resp.Code)
	var body stringResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Error(err)
	} else {
		assert.Equal(t, "Failed to cast vote: crossing [2847133] not found", body.Result)
	}
}

func Test_GetNextBatch_Ok(t *testing.T) {
	router, mockController := setupRouter()
	resp := performRequest(router, http.MethodPost, "/getNextBatch", data{"data": data{
		"userId":         userUuid,
		"quantity":       20,
		"lastCrossingId": "node/1",
	}}, nil)
	assert.EqualValues(t, http.StatusOK, resp.Code)
	assert.EqualValues(t, 1, mockController.nextBatchCalled)
	assert.EqualValues(t, 20, mockController.lastQuantity)
	if assert.NotNil(t, mockController.lastCrossingId) {
		assert.EqualValues(t, "node/1", *mockController.lastCrossingId)
	}
	var body crossingsResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Error(err)
	} else {
		assert.EqualValues(t, []voting.Crossing{mockApiCrossing}, body.Result)
	}
}

func Test_GetNextBatch_NoCursor(t *testing.T) {
	router, mockController := setupRouter()
	resp := performRequest(router, http.MethodPost, "/getNextBatch", data{"data": data{
		"userId":   userUuid,
		"quantity": 1,
	}}, nil)
	assert.EqualValues(t, http.StatusOK, resp.Code)
	assert.Nil(t, mockController.lastCrossingId)
}

func Test_GetNextBatch_ProjectionHidesUnseenBy(t *testing.T) {
	router, _ := setupRouter()
	resp := performRequest(router, http.MethodPost, "/getNextBatch", data{"data": data{
		"userId":   userUuid,
		"quantity": 1,
	}}, nil)
	assert.EqualValues(t, http.StatusOK, resp.Code)
	assert.NotContains(t, resp.Body.String(), "unseen")
}

func Test_GetNextBatch_InvalidBody(t *testing.T) {
	tests := []struct {
		name string
		d    data
	}{
		{"zero quantity", data{"userId": userUuid, "quantity": 0}},
		{"missing quantity", data{"userId": userUuid}},
		{"negative quantity", data{"userId": userUuid, "quantity": -3}},
		{"bad cursor", data{"userId": userUuid, "quantity": 3, "lastCrossingId": "nope"}},
		{"missing user", data{"quantity": 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, mockController := setupRouter()
			resp := performRequest(router, http.MethodPost, "/getNextBatch", data{"data": tt.d}, nil)
			assert.EqualValues(t, http.StatusBadRequest, resp.Code)
			assert.EqualValues(t, 0, mockController.nextBatchCalled)
		})
	}
}

func Test_GetNextBatch_Err(t *testing.T) {
	router, mockController := setupRouter()
	apiErr := common.ApiError{
		StatusCode: http.StatusNotFound,
		Body: common.Body{
			Message: "gone",
		},
	}
	mockController.nextBatchOverride = func() ([]voting.Crossing, *common.ApiError) {
		return nil, &apiErr
	}
	resp := performRequest(router, http.MethodPost, "/getNextBatch", data{"data": data{
		"userId":         userUuid,
		"quantity":       2,
		"lastCrossingId": "node/404",
	}}, nil)
	assert.EqualValues(t, apiErr.StatusCode, resp.Code)
	var body common.Body
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Error(err)
	} else {
		assert.EqualValues(t, apiErr.Body, body)
	}
}

func Test_Meta_Ok(t *testing.T) {
	router, mockController := setupRouter()
	resp := performRequest(router, http.MethodGet, "/meta", nil, nil)
	assert.EqualValues(t, http.StatusOK, resp.Code)
	assert.EqualValues(t, 1, mockController.metaCalled)
	var body metaResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Error(err)
	} else {
		assert.EqualValues(t, mockApiMeta, body.Result)
	}
}

func Test_Meta_Err(t *testing.T) {
	router, mockController := setupRouter()
	mockController.metaOverride = func() (*voting.Meta, *common.ApiError) {
		return nil, &common.ApiError{StatusCode: http.StatusInternalServerError, Body: common.Body{Message: "down"}}
	}
	resp := performRequest(router, http.MethodGet, "/meta", nil, nil)
	assert.EqualValues(t, http.StatusInternalServerError, resp.Code)
}

func setupRouter() (*gin.Engine, *mockVotingController) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	mockController := mockVotingController{}
	topLevelRouterGroup := routing.NewTopLevelRoutesGroup(nil, engine)
	handler := RoutesHandler{Controller: &mockController}
	handler.RegisterRoutes(topLevelRouterGroup)

	return engine, &mockController
}

func performRequest(r http.Handler, method, url string, body interface{}, header http.Header) *httptest.ResponseRecorder {
	var bodyToSend io.Reader
	if body != nil {
		asBytes, _ := json.Marshal(body)
		bodyToSend = bytes.NewBuffer(asBytes)
	}
	req, _ := http.NewRequest(method, url, bodyToSend)
	if header != nil {
		req.Header = header
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type mockVotingController struct {
	initializeUserCalled   uint
	initializeUserOverride func() (domainVoting.InitOutcome, *common.ApiError)
	voteCalled             uint
	voteOverride           func() (string, *common.ApiError)
	nextBatchCalled        uint
	nextBatchOverride      func() ([]voting.Crossing, *common.ApiError)
	metaCalled             uint
	metaOverride           func() (*voting.Meta, *common.ApiError)

	lastUserId     user.Id
	lastNodeId     crossing.NodeId
	lastVote       vote.Vote
	lastQuantity   uint
	lastCrossingId *crossing.NodeId
}

func (m *mockVotingController) InitializeUser(ctx context.Context, userId user.Id) (domainVoting.InitOutcome, *common.ApiError) {
	m.initializeUserCalled++
	m.lastUserId = userId
	if m.initializeUserOverride != nil {
		return m.initializeUserOverride()
	} else {
		return domainVoting.USER_INITIALIZED, nil
	}
}

func (m *mockVotingController) Vote(ctx context.Context, userId user.Id, nodeId crossing.NodeId, v vote.Vote) (string, *common.ApiError) {
	m.voteCalled++
	m.lastUserId = userId
	m.lastNodeId = nodeId
	m.lastVote = v
	if m.voteOverride != nil {
		return m.voteOverride()
	} else {
		return votingController.VoteCast, nil
	}
}

func (m *mockVotingController) NextBatch(ctx context.Context, userId user.Id, quantity uint, lastCrossingId *crossing.NodeId) ([]voting.Crossing, *common.ApiError) {
	m.nextBatchCalled++
	m.lastUserId = userId
	m.lastQuantity = quantity
	m.lastCrossingId = lastCrossingId
	if m.nextBatchOverride != nil {
		return m.nextBatchOverride()
	} else {
		return []voting.Crossing{mockApiCrossing}, nil
	}
}

func (m *mockVotingController) Meta(ctx context.Context) (*voting.Meta, *common.ApiError) {
	m.metaCalled++
	if m.metaOverride != nil {
		return m.metaOverride()
	} else {
		return &mockApiMeta, nil
	}
}
