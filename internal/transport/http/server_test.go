package http

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/esp32-home/iot-gateway/internal/constants"
	"github.com/esp32-home/iot-gateway/internal/mocks"
	"github.com/esp32-home/iot-gateway/internal/models"
	"github.com/esp32-home/iot-gateway/internal/services"
)

type serverFixture struct {
	server     *Server
	mqttClient *mocks.MockMQTTClient
	cache      *services.StateCache
	liveness   *services.LivenessService
	fanout     *services.Fanout
}

func newServerFixture() *serverFixture {
	logger := zerolog.Nop()
	devices := []string{"fan", "light"}

	f := &serverFixture{
		mqttClient: new(mocks.MockMQTTClient),
		cache:      services.NewStateCache(devices),
		fanout:     services.NewFanout(logger),
	}
	f.liveness = services.NewLivenessService(time.Hour, time.Hour, logger)
	locks := services.NewDeviceLocks(devices)
	dispatcher := services.NewDispatcherService(
		"esp32", 1, time.Second, false,
		f.mqttClient, f.cache, f.liveness, locks, f.fanout, logger,
	)
	f.server = NewServer(":0", dispatcher, f.cache, f.liveness, f.fanout, logger)
	return f
}

func TestHandleStatus(t *testing.T) {
	f := newServerFixture()
	f.liveness.RecordEvidence(time.Now())
	f.cache.Set("fan", constants.StateOn, time.Now())

	recorder := httptest.NewRecorder()
	f.server.handleStatus(recorder, httptest.NewRequest(http.MethodGet, "/api/control/status", nil))

	assert.Equal(t, http.StatusOK, recorder.Code)
	var response statusResponse
	assert.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.True(t, response.Connected)
	assert.Len(t, response.Devices, 2)
	assert.Equal(t, constants.StateOn, response.Devices["fan"].State)
	assert.Equal(t, constants.StateOff, response.Devices["light"].State)
}

func postControl(t *testing.T, f *serverFixture, body string) *httptest.ResponseRecorder {
	t.Helper()
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/api/control", bytes.NewBufferString(body))
	f.server.handleControl(recorder, request)
	return recorder
}

func TestHandleControl_Success(t *testing.T) {
	f := newServerFixture()
	f.liveness.RecordEvidence(time.Now())
	f.mqttClient.On("Publish", "esp32/fan/set", byte(1), false, []byte(constants.StateOn)).
		Return(mocks.NewToken(nil))

	recorder := postControl(t, f, `{"device":"fan","action":"ON"}`)

	assert.Equal(t, http.StatusOK, recorder.Code)
	var response map[string]string
	assert.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.Equal(t, "OK", response["status"])
	f.mqttClient.AssertExpectations(t)
}

func TestHandleControl_MalformedBody(t *testing.T) {
	f := newServerFixture()
	recorder := postControl(t, f, `{broken`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestHandleControl_MissingFields(t *testing.T) {
	f := newServerFixture()
	recorder := postControl(t, f, `{"device":"fan"}`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestHandleControl_UnknownDevice(t *testing.T) {
	f := newServerFixture()
	f.liveness.RecordEvidence(time.Now())
	recorder := postControl(t, f, `{"device":"toaster","action":"ON"}`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestHandleControl_Disconnected(t *testing.T) {
	f := newServerFixture()
	recorder := postControl(t, f, `{"device":"fan","action":"ON"}`)
	assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
}

func TestHandleControl_PendingConflict(t *testing.T) {
	f := newServerFixture()
	f.liveness.RecordEvidence(time.Now())
	f.mqttClient.On("Publish", "esp32/fan/set", byte(1), false, []byte(constants.StateOn)).
		Return(mocks.NewToken(nil))

	assert.Equal(t, http.StatusOK, postControl(t, f, `{"device":"fan","action":"ON"}`).Code)
	assert.Equal(t, http.StatusConflict, postControl(t, f, `{"device":"fan","action":"OFF"}`).Code)
}

func TestHandleControl_PublishFailure(t *testing.T) {
	f := newServerFixture()
	f.liveness.RecordEvidence(time.Now())
	f.mqttClient.On("Publish", "esp32/fan/set", byte(1), false, mock.Anything).
		Return(mocks.NewToken(assert.AnError))

	recorder := postControl(t, f, `{"device":"fan","action":"ON"}`)
	assert.Equal(t, http.StatusBadGateway, recorder.Code)
}

func TestHandleEvents_StreamsNotifications(t *testing.T) {
	f := newServerFixture()

	testServer := httptest.NewServer(http.HandlerFunc(f.server.handleEvents))
	defer testServer.Close()

	response, err := http.Get(testServer.URL)
	assert.NoError(t, err)
	defer response.Body.Close()
	assert.Equal(t, "text/event-stream", response.Header.Get("Content-Type"))

	reader := bufio.NewReader(response.Body)

	// The handler announces readiness before relaying events, so a
	// publish after the ready frame cannot be lost.
	line, err := reader.ReadString('\n')
	assert.NoError(t, err)
	assert.Equal(t, "event: ready\n", line)

	f.fanout.Publish(models.StateChangeEvent{
		Device:    "fan",
		State:     constants.StateOn,
		Kind:      constants.EventStateChange,
		Timestamp: time.Now(),
	})

	var frame []string
	for len(frame) < 2 {
		line, err = reader.ReadString('\n')
		assert.NoError(t, err)
		if trimmed := strings.TrimRight(line, "\n"); trimmed != "" && trimmed != "data: {}" {
			frame = append(frame, trimmed)
		}
	}
	assert.Equal(t, "event: "+constants.EventStateChange, frame[0])
	assert.Contains(t, frame[1], `"device":"fan"`)
	assert.Contains(t, frame[1], `"state":"ON"`)
}
