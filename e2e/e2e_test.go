package e2e_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/iulianpascalau/gpu-rack-telemetry/services/telemetry/config"
	"github.com/iulianpascalau/gpu-rack-telemetry/services/telemetry/core"
	"github.com/iulianpascalau/gpu-rack-telemetry/services/telemetry/factory"
	logger "github.com/multiversx/mx-chain-logger-go"
	"github.com/stretchr/testify/require"
)

var log = logger.GetOrCreate("e2e-test")

func createE2EConfig() config.Config {
	return config.Config{
		ListenAddress:                     "127.0.0.1:0",
		RetentionSeconds:                  3600,
		ClockSkewSeconds:                  300,
		AggregationIntervalSeconds:        1,
		LookbackWindowSeconds:             120,
		HeartbeatStaleThresholdSeconds:    120,
		HeartbeatCriticalThresholdSeconds: 300,
		TemperatureCriticalThreshold:      85,
		RenotifyIntervalSeconds:           900,
		LeaseTTLSeconds:                   30,
		LeaseRenewSeconds:                 10,
		Scada: config.ScadaConfig{
			TimeoutSeconds:                 5,
			CircuitBreakerFailureThreshold: 5,
			CircuitBreakerCooldownSeconds:  60,
			MaxPublishRetries:              0,
		},
	}
}

func loginOperator(t *testing.T, baseURL string) string {
	loginBody, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "password",
	})
	respLogin, err := http.Post(baseURL+"/api/auth/login", "application/json", bytes.NewBuffer(loginBody))
	require.NoError(t, err)
	defer func() {
		_ = respLogin.Body.Close()
	}()
	require.Equal(t, http.StatusOK, respLogin.StatusCode)

	var loginData struct {
		Token string `json:"token"`
	}
	err = json.NewDecoder(respLogin.Body).Decode(&loginData)
	require.NoError(t, err)
	require.NotEmpty(t, loginData.Token)

	return loginData.Token
}

func getJSON(t *testing.T, url string, token string, target any) int {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if target != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.Unmarshal(body, target))
	}

	return resp.StatusCode
}

func submitReadings(t *testing.T, baseURL string, serviceKey string, readings []core.TelemetryReading) {
	body, err := json.Marshal(map[string]any{"readings": readings})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/telemetry", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", serviceKey)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestE2EFlow(t *testing.T) {
	log.Info("======== 1. Start a mock SCADA endpoint that collects pushed alerts")
	var mutReceived sync.Mutex
	receivedEvents := make([]core.AbnormalityEvent, 0)
	mockScada := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "test-scada-key", r.Header.Get("X-Api-Key"))

		var event core.AbnormalityEvent
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &event))

		mutReceived.Lock()
		receivedEvents = append(receivedEvents, event)
		mutReceived.Unlock()

		w.WriteHeader(http.StatusOK)
	}))
	defer mockScada.Close()

	log.Info("======== 2. Prepare SQLite path for the telemetry service")
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "e2e_sqlite.db")

	log.Info("======== 3. Start the telemetry service via componentsHandler")
	cfg := createE2EConfig()
	cfg.Scada.Endpoint = mockScada.URL

	handler, err := factory.NewComponentsHandler(
		dbPath,
		"test-service-key",
		"test-scada-key",
		"admin",
		"password",
		cfg,
	)
	require.NoError(t, err)

	handler.Start()
	defer handler.Close()

	_, port, err := net.SplitHostPort(handler.GetServer().Address())
	require.NoError(t, err)
	baseURL := fmt.Sprintf("http://127.0.0.1:%s", port)

	log.Info("======== 3.1. Wait a moment for server to start")
	time.Sleep(100 * time.Millisecond)

	log.Info("======== 4. Submit telemetry readings, one device running hot")
	now := time.Now().Unix()
	submitReadings(t, baseURL, "test-service-key", []core.TelemetryReading{
		{DeviceID: "gpu-1", RackID: "rack-1", Timestamp: now, MetricType: core.MetricTemperature, Value: 95, SequenceNumber: 1},
		{DeviceID: "gpu-2", RackID: "rack-1", Timestamp: now, MetricType: core.MetricTemperature, Value: 62, SequenceNumber: 1},
		{DeviceID: "gpu-3", RackID: "rack-2", Timestamp: now, MetricType: core.MetricHeartbeat, SequenceNumber: 1},
	})

	log.Info("======== 5. Wait for at least 2 aggregation cycles, about 2.5 seconds...")
	time.Sleep(2500 * time.Millisecond)

	log.Info("======== 6. Test the operator API using HTTP calls")
	log.Info("======== 6.a. Login to get JWT")
	token := loginOperator(t, baseURL)

	log.Info("======== 6.b. Fetch all rack summaries")
	var racksData struct {
		Racks []core.RackHealthSummary `json:"racks"`
	}
	status := getJSON(t, baseURL+"/api/racks", token, &racksData)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, racksData.Racks, 2)

	log.Info("======== 6.c. Verify rack-1 carries the maximum temperature")
	var summary core.RackHealthSummary
	status = getJSON(t, baseURL+"/api/racks/rack-1/summary", token, &summary)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "rack-1", summary.RackID)
	require.Equal(t, 2, summary.DeviceCount)
	require.Equal(t, 2, summary.HealthyCount)
	require.Equal(t, float64(95), summary.MaxTemperature)

	log.Info("======== 6.d. Verify an unknown rack yields 404")
	status = getJSON(t, baseURL+"/api/racks/rack-404/summary", token, nil)
	require.Equal(t, http.StatusNotFound, status)

	log.Info("======== 6.e. Verify the over temperature event is recorded")
	var eventsData struct {
		Events []core.AbnormalityEvent `json:"events"`
	}
	status = getJSON(t, baseURL+"/api/events", token, &eventsData)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, eventsData.Events, 1)
	require.Equal(t, core.KindOverTemp, eventsData.Events[0].Kind)
	require.Equal(t, core.SeverityCritical, eventsData.Events[0].Severity)
	require.Equal(t, "rack-1", eventsData.Events[0].RackID)

	log.Info("======== 7. Verify SCADA received the alert exactly once despite multiple cycles")
	mutReceived.Lock()
	defer mutReceived.Unlock()
	require.Len(t, receivedEvents, 1)
	require.Equal(t, core.KindOverTemp, receivedEvents[0].Kind)
	require.Equal(t, core.SeverityCritical, receivedEvents[0].Severity)
	require.Equal(t, eventsData.Events[0].EventID, receivedEvents[0].EventID)
}

func TestE2EFlowWithScadaDown(t *testing.T) {
	log.Info("======== 1. Start a mock SCADA endpoint that rejects every push")
	mockScada := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer mockScada.Close()

	log.Info("======== 2. Prepare SQLite path for the telemetry service")
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "e2e_sqlite.db")

	log.Info("======== 3. Start the telemetry service via componentsHandler")
	cfg := createE2EConfig()
	cfg.Scada.Endpoint = mockScada.URL

	handler, err := factory.NewComponentsHandler(
		dbPath,
		"test-service-key",
		"test-scada-key",
		"admin",
		"password",
		cfg,
	)
	require.NoError(t, err)

	handler.Start()
	defer handler.Close()

	_, port, err := net.SplitHostPort(handler.GetServer().Address())
	require.NoError(t, err)
	baseURL := fmt.Sprintf("http://127.0.0.1:%s", port)

	log.Info("======== 3.1. Wait a moment for server to start")
	time.Sleep(100 * time.Millisecond)

	log.Info("======== 4. Submit an over temperature reading")
	now := time.Now().Unix()
	submitReadings(t, baseURL, "test-service-key", []core.TelemetryReading{
		{DeviceID: "gpu-1", RackID: "rack-1", Timestamp: now, MetricType: core.MetricTemperature, Value: 99, SequenceNumber: 1},
	})

	log.Info("======== 5. Wait for an aggregation cycle and the failed delivery, about 2.5 seconds...")
	time.Sleep(2500 * time.Millisecond)

	log.Info("======== 6. Verify the undeliverable alert was durably recorded")
	token := loginOperator(t, baseURL)

	var failedData struct {
		FailedPublishes []core.FailedPublish `json:"failedPublishes"`
	}
	status := getJSON(t, baseURL+"/api/publishes/failed", token, &failedData)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, failedData.FailedPublishes, 1)
	require.Equal(t, core.KindOverTemp, failedData.FailedPublishes[0].Event.Kind)
	require.Equal(t, "rack-1", failedData.FailedPublishes[0].Event.RackID)
	require.NotEmpty(t, failedData.FailedPublishes[0].LastError)
	require.Equal(t, 1, failedData.FailedPublishes[0].Attempts)
}
