package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"finpay-ledger/internal/auth"
	"finpay-ledger/internal/config"
	"finpay-ledger/internal/events"
	"finpay-ledger/internal/repository"
	"finpay-ledger/internal/server"
	"finpay-ledger/internal/service"
)

type IntegrationTestSuite struct {
	suite.Suite
	postgresContainer *postgres.PostgresContainer
	serverInstance    *server.Server
	cfg               *config.Config
	authenticator     *auth.Authenticator
	baseURL           string
	client            *http.Client

	alice, bob      account
	adminToken      string
	pendingTransfer string
}

type account struct {
	ID        string
	AccountNo string
	Token     string
}

type apiResponse struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (suite *IntegrationTestSuite) SetupSuite() {
	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("finpay"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		suite.T().Fatalf("Failed to start postgres container: %s", err)
	}
	suite.postgresContainer = postgresContainer

	host, err := postgresContainer.Host(ctx)
	if err != nil {
		suite.T().Fatalf("Failed to get container host: %s", err)
	}
	port, err := postgresContainer.MappedPort(ctx, "5432")
	if err != nil {
		suite.T().Fatalf("Failed to get mapped port: %s", err)
	}

	cfg := config.Default()
	cfg.DBDriver = config.DriverPostgres
	cfg.DBHost = host
	cfg.DBPort = port.Port()
	cfg.DBName = "finpay"
	cfg.DBUser = "postgres"
	cfg.DBPassword = "password"
	cfg.JWTSecret = "integration-secret"
	cfg.ServerPort = "0" // Let OS choose a free port
	suite.cfg = cfg

	if err := suite.runMigrations(ctx); err != nil {
		suite.T().Fatalf("Failed to run migrations: %s", err)
	}

	serverInstance, serverPort, err := server.StartServer(ctx, cfg)
	if err != nil {
		suite.T().Fatalf("Failed to start application server: %s", err)
	}
	suite.serverInstance = serverInstance
	suite.baseURL = "http://localhost:" + serverPort
	suite.client = &http.Client{Timeout: 30 * time.Second}

	suite.authenticator, err = auth.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer)
	require.NoError(suite.T(), err)
	suite.adminToken, err = suite.authenticator.IssueToken(uuid.New(), auth.RoleAdmin, time.Hour)
	require.NoError(suite.T(), err)

	if err := suite.waitForServerReady(); err != nil {
		suite.T().Fatalf("Server not ready: %s", err)
	}
}

func (suite *IntegrationTestSuite) runMigrations(ctx context.Context) error {
	db, dialect, err := repository.Open(ctx, suite.cfg, nil)
	if err != nil {
		return err
	}
	defer db.Close()

	// Applying twice must be a no-op.
	if err := repository.Migrate(ctx, db, dialect, nil); err != nil {
		return err
	}
	return repository.Migrate(ctx, db, dialect, nil)
}

func (suite *IntegrationTestSuite) waitForServerReady() error {
	timeout := 30 * time.Second
	start := time.Now()

	for time.Since(start) < timeout {
		resp, err := http.Get(suite.baseURL + "/health")
		if err == nil && resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			return nil
		}
		if resp != nil {
			resp.Body.Close()
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("server not ready after %v", timeout)
}

func (suite *IntegrationTestSuite) TearDownSuite() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if suite.serverInstance != nil {
		suite.serverInstance.Stop(ctx)
	}
	if suite.postgresContainer != nil {
		suite.postgresContainer.Terminate(ctx)
	}
}

func (suite *IntegrationTestSuite) call(method, path, token string, body interface{}) (int, apiResponse) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(suite.T(), err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, suite.baseURL+path, reader)
	require.NoError(suite.T(), err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := suite.client.Do(req)
	require.NoError(suite.T(), err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(suite.T(), err)
	suite.T().Logf("%s %s -> %d %s", method, path, resp.StatusCode, raw)

	var parsed apiResponse
	require.NoError(suite.T(), json.Unmarshal(raw, &parsed))
	return resp.StatusCode, parsed
}

func (suite *IntegrationTestSuite) field(resp apiResponse, name string) string {
	var data map[string]interface{}
	require.NoError(suite.T(), json.Unmarshal(resp.Data, &data))
	value, _ := data[name].(string)
	return value
}

func (suite *IntegrationTestSuite) signup(ref, opening string) account {
	status, resp := suite.call(http.MethodPost, "/accounts", "", map[string]string{
		"external_ref":    ref,
		"opening_balance": opening,
	})
	require.Equal(suite.T(), http.StatusCreated, status)

	id := suite.field(resp, "account_id")
	token, err := suite.authenticator.IssueToken(uuid.MustParse(id), "", time.Hour)
	require.NoError(suite.T(), err)
	return account{ID: id, AccountNo: suite.field(resp, "account_no"), Token: token}
}

func (suite *IntegrationTestSuite) assertBalance(acc account, expected string) {
	status, resp := suite.call(http.MethodGet, "/accounts/"+acc.ID+"/balance", acc.Token, nil)
	require.Equal(suite.T(), http.StatusOK, status)
	assert.Equal(suite.T(), expected, suite.field(resp, "balance"))
}

// ------------------------------------------------------------------
// Steps below run in the order invoked by TestFlow.
// ------------------------------------------------------------------

func (suite *IntegrationTestSuite) stepHealthCheck() {
	resp, err := suite.client.Get(suite.baseURL + "/health")
	require.NoError(suite.T(), err)
	defer resp.Body.Close()
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)

	var health map[string]string
	require.NoError(suite.T(), json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(suite.T(), "healthy", health["status"])
}

func (suite *IntegrationTestSuite) stepCreateAccounts() {
	suite.alice = suite.signup("alice@example.com", "100")
	suite.bob = suite.signup("+254700000001", "0")
	suite.assertBalance(suite.alice, "100.00")
	suite.assertBalance(suite.bob, "0.00")

	status, resp := suite.call(http.MethodPost, "/accounts", "", map[string]string{"external_ref": "alice@example.com"})
	assert.Equal(suite.T(), http.StatusConflict, status)
	assert.Equal(suite.T(), "duplicate_ref", resp.Error.Code)
}

func (suite *IntegrationTestSuite) stepInternalTransfer() {
	body := map[string]string{
		"to":              suite.bob.AccountNo,
		"amount":          "50.00",
		"idempotency_key": uuid.NewString(),
	}
	status, resp := suite.call(http.MethodPost, "/transfers", suite.alice.Token, body)
	require.Equal(suite.T(), http.StatusCreated, status)
	assert.Equal(suite.T(), "success", suite.field(resp, "status"))
	first := suite.field(resp, "transaction_id")

	// A replay returns the recorded transaction without moving money again.
	status, resp = suite.call(http.MethodPost, "/transfers", suite.alice.Token, body)
	require.Less(suite.T(), status, http.StatusMultipleChoices)
	assert.Equal(suite.T(), first, suite.field(resp, "transaction_id"))

	suite.assertBalance(suite.alice, "50.00")
	suite.assertBalance(suite.bob, "50.00")
}

func (suite *IntegrationTestSuite) stepExternalTransfer() {
	status, resp := suite.call(http.MethodPost, "/transfers", suite.alice.Token, map[string]string{
		"to":     "friend@elsewhere.com",
		"amount": "30.00",
	})
	require.Equal(suite.T(), http.StatusCreated, status)
	assert.Equal(suite.T(), "pending", suite.field(resp, "status"))
	suite.pendingTransfer = suite.field(resp, "transaction_id")

	suite.assertBalance(suite.alice, "20.00")
}

func (suite *IntegrationTestSuite) stepRejectedTransfers() {
	status, resp := suite.call(http.MethodPost, "/transfers", suite.alice.Token, map[string]string{
		"to": suite.bob.ID, "amount": "20.01",
	})
	assert.Equal(suite.T(), http.StatusUnprocessableEntity, status)
	assert.Equal(suite.T(), "insufficient_funds", resp.Error.Code)

	status, resp = suite.call(http.MethodPost, "/transfers", suite.alice.Token, map[string]string{
		"to": suite.bob.ID, "amount": "0",
	})
	assert.Equal(suite.T(), http.StatusBadRequest, status)
	assert.Equal(suite.T(), "invalid_amount", resp.Error.Code)

	suite.assertBalance(suite.alice, "20.00")
	suite.assertBalance(suite.bob, "50.00")
}

func (suite *IntegrationTestSuite) stepTopUp() {
	status, resp := suite.call(http.MethodPost, "/topups", suite.bob.Token, map[string]string{"amount": "100", "currency": "KES"})
	require.Equal(suite.T(), http.StatusCreated, status)
	assert.Equal(suite.T(), "KES", suite.field(resp, "currency"))
	suite.assertBalance(suite.bob, "150.00")
}

func (suite *IntegrationTestSuite) stepConcurrentDebits() {
	carol := suite.signup("carol@example.com", "100")

	var wg sync.WaitGroup
	statuses := make([]int, 2)
	for i := range statuses {
		wg.Add(1)
		go func() {
			defer wg.Done()
			statuses[i], _ = suite.call(http.MethodPost, "/transfers", carol.Token, map[string]string{
				"to": suite.bob.ID, "amount": "60",
			})
		}()
	}
	wg.Wait()

	assert.ElementsMatch(suite.T(), []int{http.StatusCreated, http.StatusUnprocessableEntity}, statuses)
	suite.assertBalance(carol, "40.00")
}

func (suite *IntegrationTestSuite) stepSettlement() {
	path := "/transactions/" + suite.pendingTransfer + "/status"

	status, _ := suite.call(http.MethodPost, path, suite.alice.Token, map[string]string{"status": "failed"})
	assert.Equal(suite.T(), http.StatusForbidden, status)

	status, resp := suite.call(http.MethodPost, path, suite.adminToken, map[string]string{"status": "failed"})
	require.Equal(suite.T(), http.StatusOK, status)
	assert.Equal(suite.T(), "failed", suite.field(resp, "status"))
	suite.assertBalance(suite.alice, "50.00")

	status, resp = suite.call(http.MethodPost, path, suite.adminToken, map[string]string{"status": "pending"})
	assert.Equal(suite.T(), http.StatusConflict, status)
	assert.Equal(suite.T(), "invalid_transition", resp.Error.Code)
}

func (suite *IntegrationTestSuite) stepTransactionHistory() {
	status, resp := suite.call(http.MethodGet, "/accounts/"+suite.alice.ID+"/transactions", suite.alice.Token, nil)
	require.Equal(suite.T(), http.StatusOK, status)

	var list []map[string]interface{}
	require.NoError(suite.T(), json.Unmarshal(resp.Data, &list))
	require.Len(suite.T(), list, 2)
	assert.Equal(suite.T(), suite.pendingTransfer, list[0]["transaction_id"])
}

func (suite *IntegrationTestSuite) stepReconciliation() {
	ctx := context.Background()
	db, dialect, err := repository.Open(ctx, suite.cfg, nil)
	require.NoError(suite.T(), err)
	defer db.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger := service.NewLedgerService(repository.NewStore(db, dialect, logger), events.NewNoopPublisher(), suite.cfg, logger)

	reports, err := ledger.ReconcileAll(ctx)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), reports, 3)

	total := decimal.Zero
	for _, report := range reports {
		assert.True(suite.T(), report.Consistent(), "account %s drifted by %s", report.AccountID, report.Drift)
		total = total.Add(report.Stored)
	}
	// 200 opened + 100 topped up, no money left the system.
	assert.Equal(suite.T(), "300", total.String())
}

func (suite *IntegrationTestSuite) TestFlow() {
	if testing.Short() {
		suite.T().Skip("Skipping integration test in short mode")
	}

	suite.stepHealthCheck()
	suite.stepCreateAccounts()
	suite.stepInternalTransfer()
	suite.stepExternalTransfer()
	suite.stepRejectedTransfers()
	suite.stepTopUp()
	suite.stepConcurrentDebits()
	suite.stepSettlement()
	suite.stepTransactionHistory()
	suite.stepReconciliation()
}

func TestIntegrationTestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	suite.Run(t, new(IntegrationTestSuite))
}
