package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRequest(t *testing.T) {
	counter := outboundRequests.WithLabelValues("track_event", OutcomeSuccess)
	before := testutil.ToFloat64(counter)

	ObserveRequest("track_event", OutcomeSuccess, 20*time.Millisecond)
	ObserveRequest("track_event", OutcomeSuccess, 0)

	assert.Equal(t, float64(2), testutil.ToFloat64(counter)-before)
}

func TestObserveReferralStored(t *testing.T) {
	changed := referralsStored.WithLabelValues("true")
	same := referralsStored.WithLabelValues("false")
	beforeChanged := testutil.ToFloat64(changed)
	beforeSame := testutil.ToFloat64(same)

	ObserveReferralStored(true)
	ObserveReferralStored(false)
	ObserveReferralStored(false)

	assert.Equal(t, float64(1), testutil.ToFloat64(changed)-beforeChanged)
	assert.Equal(t, float64(2), testutil.ToFloat64(same)-beforeSame)
}

func TestObserveNotification(t *testing.T) {
	beforeDelivered := testutil.ToFloat64(notificationsDelivered)
	beforeDropped := testutil.ToFloat64(notificationsDropped)
	beforePanics := testutil.ToFloat64(observerPanics)

	ObserveNotification(true)
	ObserveNotification(false)
	ObserveObserverPanic()

	assert.Equal(t, float64(1), testutil.ToFloat64(notificationsDelivered)-beforeDelivered)
	assert.Equal(t, float64(1), testutil.ToFloat64(notificationsDropped)-beforeDropped)
	assert.Equal(t, float64(1), testutil.ToFloat64(observerPanics)-beforePanics)
}

func TestSetQueueDepth(t *testing.T) {
	SetQueueDepth(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(notificationQueueDepth))
	SetQueueDepth(0)
	assert.Equal(t, float64(0), testutil.ToFloat64(notificationQueueDepth))
}

func TestHandler_ServesCollectors(t *testing.T) {
	ObserveRequest("check_affiliate", OutcomeAbsent, 0)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "reflink_outbound_requests_total"))
	assert.True(t, strings.Contains(body, "reflink_notification_queue_depth"))
}
