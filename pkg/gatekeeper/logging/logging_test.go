package logging

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestNewWithWriter_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "warn", "json")

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Expected info message to be filtered, got %s", out)
	}
	if !strings.Contains(out, `"message":"shown"`) {
		t.Errorf("Expected warn message in output, got %s", out)
	}
}

func TestNewWithWriter_UnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "loud", "json")

	logger.Debug().Msg("debug")
	logger.Info().Msg("info")

	out := buf.String()
	if strings.Contains(out, `"message":"debug"`) {
		t.Error("Expected debug message to be filtered")
	}
	if !strings.Contains(out, `"message":"info"`) {
		t.Error("Expected info message in output")
	}
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(NewWithWriter(&buf, "info", "json"), "ldap")
	logger.Info().Msg("hello")

	if !strings.Contains(buf.String(), `"component":"ldap"`) {
		t.Errorf("Expected component field, got %s", buf.String())
	}
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(NewWithWriter(&buf, "info", "json")))
	r.GET("/missing/:id", func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	req, _ := http.NewRequest("GET", "/missing/1", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	out := buf.String()
	for _, want := range []string{`"level":"warn"`, `"status":404`, `"path":"/missing/:id"`, `"method":"GET"`} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %s in output, got %s", want, out)
		}
	}
}
