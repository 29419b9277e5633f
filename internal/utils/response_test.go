package utils_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/medlink-health/medlink-api/internal/utils"
)

func TestSendSuccessDefaultsMessage(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return utils.SendSuccess(c, "", map[string]string{"hello": "world"})
	})

	resp := performRequest(t, app, http.MethodGet, "/")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload struct {
		Success bool              `json:"success"`
		Message string            `json:"message"`
		Data    map[string]string `json:"data"`
		Kind    string            `json:"kind"`
	}
	decode(t, resp, &payload)

	require.True(t, payload.Success)
	require.Equal(t, "success", payload.Message)
	require.Equal(t, "world", payload.Data["hello"])
	require.Empty(t, payload.Kind)
}

func TestSendErrorCarriesKind(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return utils.SendError(c, fiber.StatusForbidden, "not a member of this chat")
	})

	resp := performRequest(t, app, http.MethodGet, "/")
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	var payload struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Kind    string `json:"kind"`
	}
	decode(t, resp, &payload)

	require.False(t, payload.Success)
	require.Equal(t, "not a member of this chat", payload.Message)
	require.Equal(t, "forbidden", payload.Kind)
}

func TestKindForStatus(t *testing.T) {
	require.Equal(t, "unauthorized", utils.KindForStatus(fiber.StatusUnauthorized))
	require.Equal(t, "not_found", utils.KindForStatus(fiber.StatusNotFound))
	require.Equal(t, "bad_request", utils.KindForStatus(fiber.StatusRequestEntityTooLarge))
	require.Equal(t, "conflict", utils.KindForStatus(fiber.StatusConflict))
	require.Equal(t, "internal", utils.KindForStatus(fiber.StatusBadGateway))
	require.Empty(t, utils.KindForStatus(fiber.StatusAccepted))
}

func performRequest(t *testing.T, app *fiber.App, method, path string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}
