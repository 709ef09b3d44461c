package handlers

import (
	"net/http"
	"net/url"
	"regexp"
	"sync"
	"testing"

	"secrets/config"

	"github.com/dchest/captcha"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var captchaIDPattern = regexp.MustCompile(`name="captcha_id" value="([^"]+)"`)

// recordingStore lets tests read back the digits of an issued captcha.
type recordingStore struct {
	mu     sync.Mutex
	digits map[string][]byte
}

var _ captcha.Store = (*recordingStore)(nil)

func (s *recordingStore) Set(id string, digits []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.digits[id] = digits
}

func (s *recordingStore) Get(id string, clear bool) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.digits[id]
	if clear {
		delete(s.digits, id)
	}
	return d
}

func (s *recordingStore) solution(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := make([]byte, len(s.digits[id]))
	for i, d := range s.digits[id] {
		b[i] = '0' + d
	}
	return string(b)
}

func TestRegisterWithCaptcha(t *testing.T) {
	store := &recordingStore{digits: map[string][]byte{}}
	app := newTestApp(t,
		func(c *config.Config) { c.RegisterCaptcha = true },
		func(d *Deps) { d.Captcha = store },
	)
	b := app.newBrowser(t)

	registerWith := func(solve func(id string) string) *http.Response {
		_, page := b.get("/register")
		id := captchaIDPattern.FindStringSubmatch(page)
		require.Len(t, id, 2, "register page has no captcha")

		resp, _ := b.get("/captcha/" + id[1] + ".png")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		return b.post("/register", "/register", url.Values{
			"username":         {"grace"},
			"password":         {testPassword},
			"captcha_id":       {id[1]},
			"captcha_solution": {solve(id[1])},
		})
	}

	assertRedirect(t, registerWith(func(string) string { return "000000000" }), "/register")
	_, body := b.get("/register")
	assert.Contains(t, body, "The digits did not match, please try again.")

	assertRedirect(t, registerWith(store.solution), "/secrets")
}
