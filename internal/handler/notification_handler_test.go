package handler_test

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/tripmate-api/internal/dto"
	"github.com/noah-isme/tripmate-api/internal/handler"
)

func newNotificationApp(svc *stubNotificationService) *fiber.App {
	app := fiber.New()
	group := app.Group("/api/v1/notifications", withUser("user-1", "ana@example.com", "Ana"))
	handler.NewNotificationHandler(svc, zerolog.Nop(), 30*time.Second).Register(group)
	return app
}

func TestNotificationHandlerList(t *testing.T) {
	svc := &stubNotificationService{items: []dto.NotificationResponse{
		{ID: 1, UserID: "user-1", Message: "Trip in 3 days"},
		{ID: 2, UserID: "user-1", Message: "Trip tomorrow", Read: true},
	}}

	resp, err := newNotificationApp(svc).Test(httptest.NewRequest(http.MethodGet, "/api/v1/notifications?limit=10", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body envelope[[]dto.NotificationResponse]
	decodeResponse(t, resp, &body)
	require.Len(t, body.Data, 2)
	require.Equal(t, "user-1", svc.listUser)
	require.EqualValues(t, 10, body.Meta["limit"])
	require.EqualValues(t, 1, body.Meta["unread"])
}

func TestNotificationHandlerMarkAllRead(t *testing.T) {
	svc := &stubNotificationService{items: []dto.NotificationResponse{{ID: 1}, {ID: 2}}}

	resp, err := newNotificationApp(svc).Test(httptest.NewRequest(http.MethodPatch, "/api/v1/notifications/read-all", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body envelope[dto.NotificationReadAllResponse]
	decodeResponse(t, resp, &body)
	require.EqualValues(t, 2, body.Data.Updated)
	require.Equal(t, "user-1", svc.readAll)
}

func TestNotificationHandlerListRejectsBadLimit(t *testing.T) {
	resp, err := newNotificationApp(&stubNotificationService{}).Test(httptest.NewRequest(http.MethodGet, "/api/v1/notifications?limit=ten", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestNotificationHandlerMarkRead(t *testing.T) {
	svc := &stubNotificationService{}
	app := newNotificationApp(svc)

	resp, err := app.Test(httptest.NewRequest(http.MethodPatch, "/api/v1/notifications/4/read", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, uint(4), svc.marked)

	svc.markErr = gorm.ErrRecordNotFound
	resp, err = app.Test(httptest.NewRequest(http.MethodPatch, "/api/v1/notifications/5/read", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestNotificationHandlerStreamWritesEvents(t *testing.T) {
	events := make(chan dto.NotificationResponse, 1)
	events <- dto.NotificationResponse{ID: 3, UserID: "user-1", Message: "Your trip starts today"}
	addr := startFiberServer(t, newNotificationApp(&stubNotificationService{subscribe: events}))

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get("http://" + addr + "/api/v1/notifications/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	var lines []string
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
		if strings.HasPrefix(line, "data: ") {
			break
		}
	}
	require.Equal(t, []string{"retry: 5000", "id: 3", "event: notification"}, lines[:3])
	require.Contains(t, lines[3], "Your trip starts today")
}
