package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/skillswap-hub/skillswap-core/pkg/circuitbreaker"
)

func TestRecorder_Counters(t *testing.T) {
	r := NewRecorder()

	r.TransactionPosted("earned", "session_teaching", 56)
	r.TransactionPosted("earned", "session_teaching", 4)
	r.TransactionRejected("insufficient_balance")
	r.BadgeAwarded("first_session", "common")
	r.MatchServed("sos", true, 3*time.Millisecond)
	r.EventHandled("session.completed", time.Millisecond, errors.New("x"))
	r.BreakerStateChanged("redis-rates", circuitbreaker.StateClosed, circuitbreaker.StateOpen)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.ledgerTransactions.WithLabelValues("earned", "session_teaching")))
	assert.Equal(t, 60.0, testutil.ToFloat64(r.ledgerCredits.WithLabelValues("earned")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ledgerRejections.WithLabelValues("insufficient_balance")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.badgesAwarded.WithLabelValues("first_session", "common")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.matchRequests.WithLabelValues("sos", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.eventsHandled.WithLabelValues("session.completed", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.breakerState.WithLabelValues("redis-rates")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.breakerTrips.WithLabelValues("redis-rates")))
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder()
	r.TransactionPosted("spent", "session_booking", 10)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `skillswap_ledger_transactions_total{source="session_booking",type="spent"} 1`)
}
