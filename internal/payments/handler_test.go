package payments

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/simkas/backend/internal/models"
)

func newWebhookRouter(gateway Gateway, ledger StatusWriter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	adapter := NewAdapter(ledger, gateway, nil)
	handler := NewWebhookHandler(adapter, nil)
	router := gin.New()
	router.POST("/payment/notification", handler.PaymentNotification)
	return router
}

func postNotification(t *testing.T, router *gin.Engine, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/payment/notification", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestPaymentNotification_AcknowledgesResolved(t *testing.T) {
	regID := uuid.New()
	ledger := &fakeLedger{known: map[uuid.UUID]*models.Registration{
		regID: {ID: regID, Status: models.RegistrationStatusPending},
	}}
	gateway := &fakeGateway{
		status:   &Notification{OrderID: regID.String(), TransactionStatus: "capture", FraudStatus: "accept"},
		validSig: true,
	}
	router := newWebhookRouter(gateway, ledger)

	rec := postNotification(t, router, Notification{OrderID: regID.String()})
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"OK"}`, rec.Body.String())
	require.Equal(t, models.RegistrationStatusApproved, ledger.known[regID].Status)
}

func TestPaymentNotification_AcknowledgesUnresolvable(t *testing.T) {
	orderID := uuid.New().String()
	ledger := &fakeLedger{known: map[uuid.UUID]*models.Registration{}}
	gateway := &fakeGateway{
		status:   &Notification{OrderID: orderID, TransactionStatus: "settlement"},
		validSig: true,
	}
	router := newWebhookRouter(gateway, ledger)

	rec := postNotification(t, router, Notification{OrderID: orderID})
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"OK"}`, rec.Body.String())
}

func TestPaymentNotification_RejectsUnverifiable(t *testing.T) {
	ledger := &fakeLedger{known: map[uuid.UUID]*models.Registration{}}
	gateway := &fakeGateway{err: ErrUnverified}
	router := newWebhookRouter(gateway, ledger)

	rec := postNotification(t, router, Notification{OrderID: "forged-order"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, ledger.calls)
}

func TestPaymentNotification_RetriesOnGatewayOutage(t *testing.T) {
	ledger := &fakeLedger{known: map[uuid.UUID]*models.Registration{}}
	gateway := &fakeGateway{err: ErrGatewayUnavailable}
	router := newWebhookRouter(gateway, ledger)

	rec := postNotification(t, router, Notification{OrderID: "some-order"})
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestPaymentNotification_RejectsMissingOrderID(t *testing.T) {
	router := newWebhookRouter(&fakeGateway{}, &fakeLedger{})

	rec := postNotification(t, router, Notification{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
