package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.viam.com/test"

	"github.com/viamrobotics/pcregister/logging"
	"github.com/viamrobotics/pcregister/registration"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	log, err := logging.New(logging.ERROR)
	test.That(t, err, test.ShouldBeNil)
	return NewServer(log, registration.DefaultParams())
}

func TestHealthEndpoint(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	test.That(t, rec.Code, test.ShouldEqual, http.StatusOK)
	var body healthResponse
	test.That(t, json.Unmarshal(rec.Body.Bytes(), &body), test.ShouldBeNil)
	test.That(t, body.Status, test.ShouldEqual, "healthy")
}

func TestProcessPointCloudsIdentity(t *testing.T) {
	s := testServer(t)
	cube := [][3]float64{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	reqBody, err := json.Marshal(pointsRequest{SourcePoints: cube, TargetPoints: cube})
	test.That(t, err, test.ShouldBeNil)

	req := httptest.NewRequest(http.MethodPost, "/process_point_clouds", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	test.That(t, rec.Code, test.ShouldEqual, http.StatusOK)
	var body pointsResponse
	test.That(t, json.Unmarshal(rec.Body.Bytes(), &body), test.ShouldBeNil)
	test.That(t, body.IsSuccess, test.ShouldBeTrue)
	test.That(t, body.InlierRMSE < 1e-6, test.ShouldBeTrue)
}

func TestProcessPointCloudsRejectsTooFewPoints(t *testing.T) {
	s := testServer(t)
	reqBody, err := json.Marshal(pointsRequest{
		SourcePoints: [][3]float64{{0, 0, 0}, {1, 0, 0}},
		TargetPoints: [][3]float64{{0, 0, 0}, {1, 0, 0}},
	})
	test.That(t, err, test.ShouldBeNil)

	req := httptest.NewRequest(http.MethodPost, "/process_point_clouds", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	test.That(t, rec.Code, test.ShouldEqual, http.StatusBadRequest)
}

func TestProcessPointCloudsRejectsMalformedJSON(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodPost, "/process_point_clouds", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	test.That(t, rec.Code, test.ShouldEqual, http.StatusBadRequest)
}
