package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type examPayload struct {
	Title    string `json:"title" binding:"required,notblank"`
	Duration int    `json:"duration_minutes" binding:"required,min=1"`
}

func init() {
	gin.SetMode(gin.TestMode)
	Setup()
}

func bindBody(t *testing.T, body, lang string) map[string]string {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	if lang != "" {
		c.Request.Header.Set("Accept-Language", lang)
	}
	var p examPayload
	return Bind(c, &p)
}

func TestBind_KeysByJSONName(t *testing.T) {
	fields := bindBody(t, `{}`, "")
	require.NotNil(t, fields)
	assert.Contains(t, fields, "title")
	assert.Contains(t, fields, "duration_minutes")
}

func TestBind_NotBlank(t *testing.T) {
	fields := bindBody(t, `{"title":"   ","duration_minutes":30}`, "")
	require.Contains(t, fields, "title")
	assert.Equal(t, "title tidak boleh kosong", fields["title"])

	fields = bindBody(t, `{"title":"   ","duration_minutes":30}`, "en-US")
	assert.Equal(t, "title must not be blank", fields["title"])
}

func TestBind_MalformedJSONIsDetail(t *testing.T) {
	fields := bindBody(t, `{"title":`, "")
	require.Contains(t, fields, "detail")
	assert.Len(t, fields, 1)
}

func TestBind_Valid(t *testing.T) {
	assert.Nil(t, bindBody(t, `{"title":"Ujian Akhir","duration_minutes":60}`, ""))
}
