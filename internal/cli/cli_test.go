package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/srikandi/internal/client"
	"github.com/hitoshi/srikandi/internal/model"
)

type fakeAPI struct {
	*httptest.Server
	mu       sync.Mutex
	calls    map[string]int
	password string
	uploads  []map[string]string
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	api := &fakeAPI{calls: make(map[string]int), password: "rahasia123"}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != api.password {
			respond(w, http.StatusBadRequest, map[string]string{
				"code":    model.ErrCodeInvalidCredentials,
				"message": "Email atau password salah. Silakan coba lagi.",
			})
			return
		}
		respond(w, http.StatusOK, sessionBody(body["email"]))
	})
	mux.HandleFunc("POST /auth/v1/signup", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		respond(w, http.StatusOK, map[string]any{
			"user":    map[string]any{"id": "user-2", "email": body["email"], "created_at": "2026-01-05T00:00:00Z"},
			"session": nil,
		})
	})
	mux.HandleFunc("POST /auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /auth/v1/user", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, map[string]any{
			"id": "user-1", "email": "staf@dprd.go.id", "created_at": "2026-01-05T00:00:00Z",
			"email_confirmed_at": "2026-01-05T01:00:00Z",
		})
	})
	mux.HandleFunc("GET /api/archives", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, map[string]any{
			"archives": []map[string]any{{
				"id":            "a-1",
				"created_at":    "2026-01-05T03:00:00Z",
				"letter_number": "001/DPRD/2026",
				"title":         "Undangan Rapat Paripurna",
				"category":      "Surat Masuk",
				"letter_date":   "2026-01-05",
				"sender":        "Sekretariat Daerah",
				"file_url":      nil,
				"status":        "Diterima",
			}},
			"total": 1, "page": 1, "page_size": 10, "page_count": 1,
		})
	})
	mux.HandleFunc("POST /api/archives", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fields := map[string]string{}
		for k, v := range r.MultipartForm.Value {
			fields[k] = v[0]
		}
		if _, header, err := r.FormFile("file"); err == nil {
			fields["file"] = header.Filename
		}
		api.mu.Lock()
		api.uploads = append(api.uploads, fields)
		api.mu.Unlock()

		fileURL := "https://files.example.com/arsip/1-002.pdf"
		respond(w, http.StatusCreated, map[string]any{
			"id": "a-2", "created_at": "2026-01-05T03:00:00Z",
			"letter_number": fields["letter_number"], "title": fields["title"],
			"category": fields["category"], "letter_date": fields["letter_date"],
			"sender": fields["sender"], "file_url": fileURL, "status": fields["status"],
		})
	})
	mux.HandleFunc("GET /api/archives/summary", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, map[string]int{"incoming": 5, "outgoing": 3, "this_month": 2, "month": 1})
	})

	api.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		api.calls[r.Method+" "+r.URL.Path]++
		api.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(api.Close)
	return api
}

func (api *fakeAPI) count(key string) int {
	api.mu.Lock()
	defer api.mu.Unlock()
	return api.calls[key]
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func sessionBody(email string) map[string]any {
	return map[string]any{
		"access_token":  "access-1",
		"token_type":    "bearer",
		"expires_in":    3600,
		"expires_at":    time.Now().Add(time.Hour).Unix(),
		"refresh_token": "refresh-1",
		"user":          map[string]any{"id": "user-1", "email": email, "created_at": "2026-01-05T00:00:00Z"},
	}
}

// withPipedStdin はパスワードを端末ではなく標準入力から読ませる。
func withPipedStdin(t *testing.T) {
	t.Helper()
	orig := isTerminal
	isTerminal = func(int) bool { return false }
	t.Cleanup(func() { isTerminal = orig })
}

type harness struct {
	api        *fakeAPI
	configPath string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	withPipedStdin(t)
	return &harness{
		api:        newFakeAPI(t),
		configPath: filepath.Join(t.TempDir(), "config.yaml"),
	}
}

func (h *harness) tokenPath() string {
	return filepath.Join(filepath.Dir(h.configPath), "session.json")
}

func (h *harness) signIn(t *testing.T) {
	t.Helper()
	require.NoError(t, client.NewFileTokenStore(h.tokenPath()).Save(&model.Session{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(time.Hour),
		User:         model.User{ID: "user-1", Email: "staf@dprd.go.id"},
	}))
}

func (h *harness) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--server", h.api.URL, "--config", h.configPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "srikandi-cli", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"login", "signup", "logout", "whoami", "list", "upload", "summary"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	for _, name := range []string{"server", "config", "format", "verbose"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
	assert.Equal(t, "text", cmd.PersistentFlags().Lookup("format").DefValue)
}

func TestInvalidFormat(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "", "--format", "xml", "summary")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestInvalidServerURL(t *testing.T) {
	h := newHarness(t)
	cmd := NewRootCommand()
	cmd.SetOut(io.Discard)
	cmd.SetArgs([]string{"--server", "localhost:8080", "--config", h.configPath, "summary"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid server URL")
}

func TestLogin_PipedPassword(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "staf@dprd.go.id\nrahasia123\n", "login")
	require.NoError(t, err)
	assert.Contains(t, out, "Berhasil masuk sebagai staf@dprd.go.id.")

	saved, err := client.NewFileTokenStore(h.tokenPath()).Load()
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "access-1", saved.AccessToken)

	profile, err := LoadProfile(h.configPath)
	require.NoError(t, err)
	assert.Equal(t, "staf@dprd.go.id", profile.Email)
	assert.Equal(t, h.api.URL, profile.Server)
}

func TestLogin_TerminalPassword(t *testing.T) {
	h := newHarness(t)
	isTerminal = func(int) bool { return true }
	origRead := readPassword
	readPassword = func(int) ([]byte, error) { return []byte("rahasia123"), nil }
	t.Cleanup(func() { readPassword = origRead })

	out, err := h.run(t, "", "login", "--email", "staf@dprd.go.id")
	require.NoError(t, err)
	assert.Contains(t, out, "Berhasil masuk")
}

func TestLogin_UsesRememberedEmail(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, (&Profile{Email: "lama@dprd.go.id"}).Save(h.configPath))

	out, err := h.run(t, "\nrahasia123\n", "login")
	require.NoError(t, err)
	assert.Contains(t, out, "Email [lama@dprd.go.id]")
	assert.Contains(t, out, "Berhasil masuk sebagai lama@dprd.go.id.")
}

func TestLogin_InvalidCredentials(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "salah\n", "login", "-e", "staf@dprd.go.id")
	require.Error(t, err)
	assert.Equal(t, "Email atau password salah. Silakan coba lagi.", err.Error())

	_, statErr := os.Stat(h.tokenPath())
	assert.True(t, os.IsNotExist(statErr))
}

func TestLogin_AlreadySignedIn(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)

	out, err := h.run(t, "", "login")
	require.NoError(t, err)
	assert.Contains(t, out, "Anda sudah login sebagai staf@dprd.go.id.")
	assert.Zero(t, h.api.count("POST /auth/v1/token"))
}

func TestSignUp_PendingConfirmation(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "baru@dprd.go.id\nrahasia123\n", "signup")
	require.NoError(t, err)
	assert.Contains(t, out, "Silakan cek email Anda untuk verifikasi akun.")

	_, statErr := os.Stat(h.tokenPath())
	assert.True(t, os.IsNotExist(statErr))
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)

	out, err := h.run(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Jalankan 'srikandi-cli login' untuk masuk kembali.")
	assert.Contains(t, out, "Anda telah keluar.")
	assert.Equal(t, 1, h.api.count("POST /auth/v1/logout"))

	_, statErr := os.Stat(h.tokenPath())
	assert.True(t, os.IsNotExist(statErr))
}

func TestLogout_ServerDownStillClears(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)
	h.api.Close()

	out, err := h.run(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Anda telah keluar.")

	_, statErr := os.Stat(h.tokenPath())
	assert.True(t, os.IsNotExist(statErr))
}

func TestSessionRequiredCommands_NotSignedIn(t *testing.T) {
	for _, args := range [][]string{{"whoami"}, {"list"}, {"summary"}, {"upload", "--number", "1"}} {
		t.Run(args[0], func(t *testing.T) {
			h := newHarness(t)

			_, err := h.run(t, "", args...)
			assert.ErrorIs(t, err, ErrNotSignedIn)
			assert.Zero(t, h.api.count("GET /api/archives"))
			assert.Zero(t, h.api.count("POST /api/archives"))
		})
	}
}

func TestCommands_ReleaseAuthStateOnError(t *testing.T) {
	for _, tc := range []struct {
		name    string
		signIn  bool
		args    []string
		wantErr bool
	}{
		{name: "whoami not signed in", args: []string{"whoami"}, wantErr: true},
		{name: "list invalid sort", signIn: true, args: []string{"list", "--sort", "bogus"}, wantErr: true},
		{name: "whoami signed in", signIn: true, args: []string{"whoami"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			if tc.signIn {
				h.signIn(t)
			}

			rt := &runtime{opts: &RootOptions{}}
			cmd := newRootCommand(rt)
			cmd.SetOut(io.Discard)
			cmd.SetErr(io.Discard)
			cmd.SetArgs(append([]string{"--server", h.api.URL, "--config", h.configPath}, tc.args...))
			err := cmd.Execute()

			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Nil(t, rt.auth, "auth state should be closed after the command returns")
		})
	}
}

func TestWhoAmI(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)

	out, err := h.run(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Email:    staf@dprd.go.id")
	assert.Contains(t, out, "Verified: 2026-01-05")
}

func TestWhoAmI_JSON(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)

	out, err := h.run(t, "", "--format", "json", "whoami")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "staf@dprd.go.id", got["email"])
}

func TestList_Table(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)

	out, err := h.run(t, "", "list", "-q", "rapat")
	require.NoError(t, err)
	assert.Contains(t, out, "NOMOR SURAT")
	assert.Contains(t, out, "001/DPRD/2026")
	assert.Contains(t, out, "Menampilkan 1-1 dari 1 arsip (halaman 1/1)")
}

func TestList_JSON(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)

	out, err := h.run(t, "", "--format", "json", "list")
	require.NoError(t, err)

	var got struct {
		Archives []struct {
			LetterNumber string `json:"letter_number"`
		} `json:"archives"`
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 1, got.Total)
	require.Len(t, got.Archives, 1)
	assert.Equal(t, "001/DPRD/2026", got.Archives[0].LetterNumber)
}

func TestList_InvalidSort(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)

	_, err := h.run(t, "", "list", "--sort", "password")
	require.Error(t, err)
	assert.Zero(t, h.api.count("GET /api/archives"))
}

func TestUpload(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)
	pdf := filepath.Join(t.TempDir(), "undangan.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.4"), 0o600))

	out, err := h.run(t, "", "upload",
		"--number", "002/DPRD/2026",
		"--title", "Balasan Undangan",
		"--category", "keluar",
		"--date", "2026-01-05",
		"--sender", "Dinas Pendidikan",
		"--file", pdf,
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Arsip 002/DPRD/2026 berhasil disimpan.")
	assert.Contains(t, out, "File: https://files.example.com/arsip/1-002.pdf")

	require.Len(t, h.api.uploads, 1)
	got := h.api.uploads[0]
	assert.Equal(t, "Surat Keluar", got["category"])
	assert.Equal(t, model.DefaultArchiveStatus, got["status"])
	assert.Equal(t, "undangan.pdf", got["file"])
}

func TestUpload_InvalidCategory(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)

	_, err := h.run(t, "", "upload", "--number", "1", "--category", "internal")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid category")
	assert.Zero(t, h.api.count("POST /api/archives"))
}

func TestSummary(t *testing.T) {
	h := newHarness(t)
	h.signIn(t)

	out, err := h.run(t, "", "summary")
	require.NoError(t, err)
	assert.Contains(t, out, "Surat Masuk:  5")
	assert.Contains(t, out, "Surat Keluar: 3")
	assert.Contains(t, out, "Bulan ini:    2")
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in   string
		want model.Category
		err  bool
	}{
		{"masuk", model.CategoryIncoming, false},
		{"Keluar", model.CategoryOutgoing, false},
		{"Surat Masuk", model.CategoryIncoming, false},
		{"surat keluar", model.CategoryOutgoing, false},
		{"lainnya", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseCategory(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
