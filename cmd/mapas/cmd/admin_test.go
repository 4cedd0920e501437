package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"gratuity-map-service/internal/directory"
	"gratuity-map-service/pkg/errors"
)

// scriptEndpoint accepts every request and keeps the decoded payloads.
type scriptEndpoint struct {
	mu       sync.Mutex
	payloads []map[string]interface{}
}

func (e *scriptEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var p map[string]interface{}
	if err := json.Unmarshal(body, &p); err == nil {
		e.mu.Lock()
		e.payloads = append(e.payloads, p)
		e.mu.Unlock()
	}
	io.WriteString(w, `{"status":"success"}`)
}

func (e *scriptEndpoint) last(t *testing.T) map[string]interface{} {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.payloads) == 0 {
		t.Fatal("expected a request to the endpoint")
	}
	return e.payloads[len(e.payloads)-1]
}

func (e *scriptEndpoint) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.payloads)
}

func writeAppScriptConfig(t *testing.T, endpoint string) string {
	t.Helper()
	records, err := filepath.Abs(fixture)
	if err != nil {
		t.Fatalf("failed to resolve fixture: %v", err)
	}
	path := filepath.Join(t.TempDir(), "mapas.toml")
	content := fmt.Sprintf(`
[source]
kind = "file"
path = %q

[backend]
kind = "appscript"

[backend.appscript]
endpoint = %q

[log]
level = "error"
`, records, endpoint)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestOptionsFromRecords(t *testing.T) {
	cfg := writeSQLiteConfig(t)
	if _, err := execute(t, "--config", cfg, "import", "--from", fixture); err != nil {
		t.Fatalf("import failed: %v", err)
	}

	out, err := execute(t, "--config", cfg, "options", "--json")
	if err != nil {
		t.Fatalf("options failed: %v", err)
	}
	var aux directory.Auxiliar
	if err := json.Unmarshal([]byte(out), &aux); err != nil {
		t.Fatalf("options output is not JSON: %v\n%s", err, out)
	}
	if want := []string{"Curso de Formação", "Missão"}; !reflect.DeepEqual(aux.Eventos, want) {
		t.Errorf("expected events %v, got %v", want, aux.Eventos)
	}
	if want := []string{"OM-A", "OM-B", "OM-C"}; !reflect.DeepEqual(aux.OMs, want) {
		t.Errorf("expected units %v, got %v", want, aux.OMs)
	}
	if aux.ExercicioCorrente == "" {
		t.Error("expected the current year to be filled in")
	}

	out, err = execute(t, "--config", cfg, "--as-om", "OM-B", "options")
	if err != nil {
		t.Fatalf("options as a unit failed: %v", err)
	}
	if !strings.Contains(out, "OMs: OM-B\n") || !strings.Contains(out, "Eventos: Missão\n") {
		t.Errorf("unexpected options output: %s", out)
	}

	_, err = execute(t, "--config", cfg, "password", "--new", "s3nha")
	if appErr, ok := errors.AsAppError(err); !ok || appErr.Code != errors.CodeConfigConflict {
		t.Errorf("expected config conflict on the sqlite backend, got %v", err)
	}
}

func TestAdminCommands(t *testing.T) {
	endpoint := &scriptEndpoint{}
	srv := httptest.NewServer(endpoint)
	defer srv.Close()
	cfg := writeAppScriptConfig(t, srv.URL)

	out, err := execute(t, "--config", cfg, "options", "set",
		"--evento", "Curso", "--evento", " Missão ", "--exercicio", "2027")
	if err != nil {
		t.Fatalf("options set failed: %v", err)
	}
	if !strings.Contains(out, "exercício 2027, 2 eventos") {
		t.Errorf("unexpected options set output: %s", out)
	}
	p := endpoint.last(t)
	if p["action"] != "updateConfig" || p["exercicio"] != "2027" {
		t.Errorf("unexpected config payload: %v", p)
	}
	if eventos, _ := p["eventos"].([]interface{}); len(eventos) != 2 || eventos[1] != "Missão" {
		t.Errorf("expected trimmed events, got %v", p["eventos"])
	}

	usersFile := filepath.Join(t.TempDir(), "usuarios.csv")
	sheet := "OM,Senha,Email,Telefone,,,Admin Email,Admin Senha\n" +
		"OM-A,a1,a@4bda.test,111,,,admin@4bda.test,antiga\n" +
		"OM-B,b1,b@4bda.test,222,,,,\n" +
		",sem-om,,,,,,\n"
	if err := os.WriteFile(usersFile, []byte(sheet), 0o600); err != nil {
		t.Fatalf("failed to write users sheet: %v", err)
	}
	out, err = execute(t, "--config", cfg, "users", "set", "--from", usersFile, "--admin-password", "nova")
	if err != nil {
		t.Fatalf("users set failed: %v", err)
	}
	if !strings.Contains(out, "2 logins atualizados") {
		t.Errorf("unexpected users set output: %s", out)
	}
	p = endpoint.last(t)
	if p["action"] != "updateUsers" || p["adminEmail"] != "admin@4bda.test" || p["adminPassword"] != "nova" {
		t.Errorf("unexpected users payload: %v", p)
	}

	out, err = execute(t, "--config", cfg, "--as-om", "OM-A", "password", "--new", "s3nha")
	if err != nil {
		t.Fatalf("password failed: %v", err)
	}
	if !strings.Contains(out, "Senha de Oficial OM-A alterada") {
		t.Errorf("unexpected password output: %s", out)
	}
	p = endpoint.last(t)
	if p["action"] != "changePassword" || p["user"] != "OM-A" || p["type"] != "OM" || p["newPassword"] != "s3nha" {
		t.Errorf("unexpected password payload: %v", p)
	}

	sent := endpoint.count()
	tests := []struct {
		name string
		args []string
		code errors.ErrorCode
	}{
		{"unit sets options", []string{"--as-om", "OM-A", "options", "set", "--exercicio", "2027"}, errors.CodeForbidden},
		{"unit sets users", []string{"--as-om", "OM-A", "users", "set", "--from", usersFile}, errors.CodeForbidden},
		{"blank password", []string{"password", "--new", "  "}, errors.CodeMissingField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--config", cfg}, tt.args...)
			_, err := execute(t, args...)
			if appErr, ok := errors.AsAppError(err); !ok || appErr.Code != tt.code {
				t.Errorf("expected %s, got %v", tt.code, err)
			}
		})
	}
	if endpoint.count() != sent {
		t.Errorf("rejected commands reached the endpoint: %d requests", endpoint.count()-sent)
	}
}
